// Package gigs serves the gigs collection over HTTP, backed by PostgreSQL.
package gigs

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campus-gigs/backend/internal/collection"
	"github.com/campus-gigs/backend/internal/models"
)

const gigColumns = `id::text, title, description, reward, location, status,
	created_by, creator_name, claimed_by, claimed_by_name, created_at`

// mutableColumns maps the document fields a conditional update may read or
// write to their columns. Everything else is fixed at create time.
var mutableColumns = map[string]string{
	models.FieldStatus:        "status",
	models.FieldClaimedBy:     "claimed_by",
	models.FieldClaimedByName: "claimed_by_name",
}

// Repository handles gig persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a gig repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanDocument(row pgx.Row) (collection.Document, error) {
	var (
		id, title, desc, reward, loc, status, createdBy, creatorName string
		claimedBy, claimedByName                                     *string
		createdAt                                                    time.Time
	)
	if err := row.Scan(&id, &title, &desc, &reward, &loc, &status,
		&createdBy, &creatorName, &claimedBy, &claimedByName, &createdAt); err != nil {
		return collection.Document{}, err
	}
	fields := collection.Fields{
		models.FieldTitle:         title,
		models.FieldDescription:   desc,
		models.FieldReward:        reward,
		models.FieldLocation:      loc,
		models.FieldStatus:        status,
		models.FieldCreatedBy:     createdBy,
		models.FieldCreatorName:   creatorName,
		models.FieldClaimedBy:     nil,
		models.FieldClaimedByName: nil,
		models.FieldCreatedAt:     createdAt.UTC(),
	}
	if claimedBy != nil {
		fields[models.FieldClaimedBy] = *claimedBy
	}
	if claimedByName != nil {
		fields[models.FieldClaimedByName] = *claimedByName
	}
	return collection.Document{ID: id, Fields: fields}, nil
}

// LoadSnapshot returns every document of the named collection, newest first.
func (r *Repository) LoadSnapshot(ctx context.Context, name string) ([]collection.Document, error) {
	if name != models.CollectionGigs {
		return nil, fmt.Errorf("%w: %s", collection.ErrUnknownCollection, name)
	}
	return r.List(ctx)
}

// List returns all gigs, newest first.
func (r *Repository) List(ctx context.Context) ([]collection.Document, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+gigColumns+` FROM gigs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := make([]collection.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Get returns a gig by ID. ok is false when it does not exist.
func (r *Repository) Get(ctx context.Context, id string) (collection.Document, bool, error) {
	gid, err := uuid.Parse(id)
	if err != nil {
		return collection.Document{}, false, nil
	}
	d, err := scanDocument(r.pool.QueryRow(ctx, `SELECT `+gigColumns+` FROM gigs WHERE id = $1`, gid))
	if errors.Is(err, pgx.ErrNoRows) {
		return collection.Document{}, false, nil
	}
	if err != nil {
		return collection.Document{}, false, err
	}
	return d, true, nil
}

// Create inserts a new gig. The database assigns the id and created_at.
func (r *Repository) Create(ctx context.Context, fields collection.Fields) (string, error) {
	const q = `INSERT INTO gigs (title, description, reward, location, status, created_by, creator_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id::text`
	var id string
	err := r.pool.QueryRow(ctx, q,
		text(fields, models.FieldTitle),
		text(fields, models.FieldDescription),
		text(fields, models.FieldReward),
		text(fields, models.FieldLocation),
		text(fields, models.FieldStatus),
		text(fields, models.FieldCreatedBy),
		text(fields, models.FieldCreatorName),
	).Scan(&id)
	return id, err
}

// ErrInvalidCondition is returned when a conditional update names a field
// that cannot be read or written, or carries a value that is not a string.
var ErrInvalidCondition = errors.New("invalid conditional update")

// ConditionalUpdate applies update only while every expected field still
// holds its expected value. A missing row or a mismatch returns
// collection.ErrConditionFailed.
func (r *Repository) ConditionalUpdate(ctx context.Context, id string, expected, update collection.Fields) error {
	gid, err := uuid.Parse(id)
	if err != nil {
		return collection.ErrConditionFailed
	}
	q, args, err := buildConditionalUpdate(gid, expected, update)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return collection.ErrConditionFailed
	}
	return nil
}

// buildConditionalUpdate renders the UPDATE statement for ConditionalUpdate.
// Fields are visited in sorted order so the same input always yields the same
// statement. A nil expected value matches NULL.
func buildConditionalUpdate(id uuid.UUID, expected, update collection.Fields) (string, []any, error) {
	if len(update) == 0 {
		return "", nil, fmt.Errorf("%w: empty update for gig %s", ErrInvalidCondition, id)
	}
	args := []any{id}
	set := make([]string, 0, len(update)+1)
	for _, k := range slices.Sorted(maps.Keys(update)) {
		col, ok := mutableColumns[k]
		if !ok {
			return "", nil, fmt.Errorf("%w: field %q is not updatable", ErrInvalidCondition, k)
		}
		v := update[k]
		if v == nil {
			set = append(set, col+" = NULL")
			continue
		}
		s, ok := v.(string)
		if !ok {
			return "", nil, fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidCondition, k, v)
		}
		args = append(args, s)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	set = append(set, "updated_at = NOW()")

	where := []string{"id = $1"}
	for _, k := range slices.Sorted(maps.Keys(expected)) {
		col, ok := mutableColumns[k]
		if !ok {
			return "", nil, fmt.Errorf("%w: field %q cannot be a precondition", ErrInvalidCondition, k)
		}
		v := expected[k]
		if v == nil {
			where = append(where, col+" IS NULL")
			continue
		}
		s, ok := v.(string)
		if !ok {
			return "", nil, fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidCondition, k, v)
		}
		args = append(args, s)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	q := `UPDATE gigs SET ` + strings.Join(set, ", ") + ` WHERE ` + strings.Join(where, " AND ")
	return q, args, nil
}

// Delete removes a gig. Deleting a missing gig is not an error.
func (r *Repository) Delete(ctx context.Context, id string) error {
	gid, err := uuid.Parse(id)
	if err != nil {
		return nil
	}
	_, err = r.pool.Exec(ctx, `DELETE FROM gigs WHERE id = $1`, gid)
	return err
}

// DeleteCompletedBefore removes COMPLETED gigs last changed before cutoff.
func (r *Repository) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM gigs WHERE status = $1 AND updated_at < $2`,
		string(models.StatusCompleted), cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func text(fields collection.Fields, key string) string {
	s, _ := fields[key].(string)
	return s
}
