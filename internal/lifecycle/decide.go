// Package lifecycle decides which gig transitions are legal and submits them
// as conditional writes.
package lifecycle

import (
	"strings"

	"github.com/campus-gigs/backend/internal/collection"
	"github.com/campus-gigs/backend/internal/models"
)

// Action is something a participant can do to a gig.
type Action string

const (
	ActionCreate   Action = "create"
	ActionClaim    Action = "claim"
	ActionComplete Action = "complete"
	ActionDelete   Action = "delete"
)

// Actor is the participant attempting an action.
type Actor struct {
	ID   string
	Name string
}

// Draft is the user-supplied part of a new gig.
type Draft struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Reward      string `json:"reward"`
	Location    string `json:"location"`
}

// WriteKind selects the channel operation for a Write.
type WriteKind int

const (
	WriteCreate WriteKind = iota + 1
	WriteConditionalUpdate
	WriteDelete
)

// Write is the store mutation a legal action produces.
type Write struct {
	Kind     WriteKind
	GigID    string
	Expected collection.Fields
	Fields   collection.Fields
}

// NewGigFields validates a draft and returns the fields of a fresh OPEN gig.
func NewGigFields(actor Actor, d Draft) (collection.Fields, error) {
	if actor.ID == "" {
		return nil, refuse(ErrNotAuthenticated, ActionCreate, "", "")
	}
	title := strings.TrimSpace(d.Title)
	reward := strings.TrimSpace(d.Reward)
	switch {
	case title == "":
		return nil, refuse(ErrInvalidDraft, ActionCreate, "", "title is required")
	case reward == "":
		return nil, refuse(ErrInvalidDraft, ActionCreate, "", "reward is required")
	}
	return collection.Fields{
		models.FieldTitle:         title,
		models.FieldDescription:   strings.TrimSpace(d.Description),
		models.FieldReward:        reward,
		models.FieldLocation:      strings.TrimSpace(d.Location),
		models.FieldStatus:        string(models.StatusOpen),
		models.FieldCreatedBy:     actor.ID,
		models.FieldCreatorName:   actor.Name,
		models.FieldClaimedBy:     nil,
		models.FieldClaimedByName: nil,
	}, nil
}

// Decide checks action against the observed gig and returns the write to
// submit. It has no side effects.
func Decide(g models.Gig, action Action, actor Actor) (Write, error) {
	if actor.ID == "" {
		return Write{}, refuse(ErrNotAuthenticated, action, g.ID, "")
	}
	switch action {
	case ActionClaim:
		if actor.ID == g.CreatedBy {
			return Write{}, refuse(ErrForbidden, action, g.ID, "creators cannot claim their own gig")
		}
		if g.Status != models.StatusOpen {
			return Write{}, refuse(ErrStaleTransition, action, g.ID, "status is %s", g.Status)
		}
		return Write{
			Kind:     WriteConditionalUpdate,
			GigID:    g.ID,
			Expected: collection.Fields{models.FieldStatus: string(models.StatusOpen)},
			Fields: collection.Fields{
				models.FieldStatus:        string(models.StatusInProgress),
				models.FieldClaimedBy:     actor.ID,
				models.FieldClaimedByName: actor.Name,
			},
		}, nil

	case ActionComplete:
		if actor.ID != g.CreatedBy {
			return Write{}, refuse(ErrForbidden, action, g.ID, "only the creator can complete a gig")
		}
		if g.Status == models.StatusCompleted {
			return Write{}, refuse(ErrStaleTransition, action, g.ID, "already completed")
		}
		return Write{
			Kind:     WriteConditionalUpdate,
			GigID:    g.ID,
			Expected: collection.Fields{models.FieldStatus: string(g.Status)},
			Fields:   collection.Fields{models.FieldStatus: string(models.StatusCompleted)},
		}, nil

	case ActionDelete:
		if actor.ID != g.CreatedBy {
			return Write{}, refuse(ErrForbidden, action, g.ID, "only the creator can delete a gig")
		}
		return Write{Kind: WriteDelete, GigID: g.ID}, nil
	}
	return Write{}, refuse(ErrUnknownAction, action, g.ID, "")
}

// Advances reports whether moving from one status to another follows the
// lifecycle OPEN -> IN_PROGRESS -> COMPLETED (or OPEN -> COMPLETED).
func Advances(from, to models.Status) bool {
	switch from {
	case models.StatusOpen:
		return to == models.StatusInProgress || to == models.StatusCompleted
	case models.StatusInProgress:
		return to == models.StatusCompleted
	}
	return false
}
