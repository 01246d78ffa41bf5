package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// CollectionGigs is the shared collection every client subscribes to.
const CollectionGigs = "gigs"

// Status is the lifecycle state of a gig.
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Document field keys as stored in the gig collection.
const (
	FieldTitle         = "title"
	FieldDescription   = "description"
	FieldReward        = "reward"
	FieldLocation      = "location"
	FieldStatus        = "status"
	FieldCreatedBy     = "createdBy"
	FieldCreatorName   = "creatorName"
	FieldClaimedBy     = "claimedBy"
	FieldClaimedByName = "claimedByName"
	FieldCreatedAt     = "createdAt"
)

// ErrMalformedGig is returned by ParseGig for documents that must be quarantined.
var ErrMalformedGig = errors.New("malformed gig document")

// Gig is a single task posting.
type Gig struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Reward        string     `json:"reward"`
	Location      string     `json:"location"`
	Status        Status     `json:"status"`
	CreatedBy     string     `json:"createdBy"`
	CreatorName   string     `json:"creatorName"`
	ClaimedBy     string     `json:"claimedBy,omitempty"`
	ClaimedByName string     `json:"claimedByName,omitempty"`
	CreatedAt     *time.Time `json:"createdAt,omitempty"` // nil until the store echoes its commit time
}

// Claimed reports whether someone has taken the gig.
func (g Gig) Claimed() bool { return g.ClaimedBy != "" }

// Fields returns the stored representation of g, without id.
func (g Gig) Fields() map[string]any {
	f := map[string]any{
		FieldTitle:         g.Title,
		FieldDescription:   g.Description,
		FieldReward:        g.Reward,
		FieldLocation:      g.Location,
		FieldStatus:        string(g.Status),
		FieldCreatedBy:     g.CreatedBy,
		FieldCreatorName:   g.CreatorName,
		FieldClaimedBy:     nil,
		FieldClaimedByName: nil,
		FieldCreatedAt:     nil,
	}
	if g.ClaimedBy != "" {
		f[FieldClaimedBy] = g.ClaimedBy
		f[FieldClaimedByName] = g.ClaimedByName
	}
	if g.CreatedAt != nil {
		f[FieldCreatedAt] = *g.CreatedAt
	}
	return f
}

// ParseGig decodes and validates a stored document. Documents missing required
// fields or violating the claim invariant return ErrMalformedGig.
func ParseGig(id string, fields map[string]any) (Gig, error) {
	if strings.TrimSpace(id) == "" {
		return Gig{}, fmt.Errorf("%w: missing id", ErrMalformedGig)
	}
	g := Gig{
		ID:            id,
		Title:         stringField(fields, FieldTitle),
		Description:   stringField(fields, FieldDescription),
		Reward:        stringField(fields, FieldReward),
		Location:      stringField(fields, FieldLocation),
		Status:        Status(stringField(fields, FieldStatus)),
		CreatedBy:     stringField(fields, FieldCreatedBy),
		CreatorName:   stringField(fields, FieldCreatorName),
		ClaimedBy:     stringField(fields, FieldClaimedBy),
		ClaimedByName: stringField(fields, FieldClaimedByName),
	}
	if g.Title == "" {
		return Gig{}, fmt.Errorf("%w: %s: missing title", ErrMalformedGig, id)
	}
	if g.CreatedBy == "" {
		return Gig{}, fmt.Errorf("%w: %s: missing createdBy", ErrMalformedGig, id)
	}
	if !g.Status.Valid() {
		return Gig{}, fmt.Errorf("%w: %s: unknown status %q", ErrMalformedGig, id, g.Status)
	}
	switch {
	case g.Status == StatusOpen && g.Claimed():
		return Gig{}, fmt.Errorf("%w: %s: open gig carries claimedBy", ErrMalformedGig, id)
	case g.Status == StatusInProgress && !g.Claimed():
		return Gig{}, fmt.Errorf("%w: %s: in-progress gig has no claimedBy", ErrMalformedGig, id)
	}
	ts, err := timeField(fields, FieldCreatedAt)
	if err != nil {
		return Gig{}, fmt.Errorf("%w: %s: %v", ErrMalformedGig, id, err)
	}
	g.CreatedAt = ts
	return g, nil
}

func stringField(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return v
	case *string:
		if v != nil {
			return *v
		}
	case fmt.Stringer:
		return v.String()
	}
	return ""
}

// timeField accepts a time value, a pointer to one, or an RFC 3339 string as
// decoded from JSON. Absent or null means "not yet assigned".
func timeField(fields map[string]any, key string) (*time.Time, error) {
	switch v := fields[key].(type) {
	case nil:
		return nil, nil
	case time.Time:
		if v.IsZero() {
			return nil, nil
		}
		return &v, nil
	case *time.Time:
		if v == nil || v.IsZero() {
			return nil, nil
		}
		t := *v
		return &t, nil
	case string:
		if v == "" {
			return nil, nil
		}
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("createdAt: %w", err)
		}
		return &t, nil
	default:
		return nil, fmt.Errorf("createdAt: unsupported type %T", v)
	}
}
