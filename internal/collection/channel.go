// Package collection defines the shared document collection every client reads
// and writes, plus the in-memory and remote implementations of it.
package collection

import (
	"context"
	"errors"
	"maps"
)

var (
	// ErrConditionFailed means the stored document no longer matches the expected fields.
	ErrConditionFailed = errors.New("conditional update rejected")
	// ErrForbidden means the store refused the write for this caller.
	ErrForbidden = errors.New("write forbidden")
	// ErrUnknownCollection is returned for collections the store does not serve.
	ErrUnknownCollection = errors.New("unknown collection")
)

// Fields is the field set of one stored document.
type Fields map[string]any

// Clone returns a shallow copy of f.
func (f Fields) Clone() Fields {
	if f == nil {
		return Fields{}
	}
	return maps.Clone(f)
}

// Document is one entry of a snapshot.
type Document struct {
	ID     string `json:"id"`
	Fields Fields `json:"fields"`
}

// SnapshotHandler receives the full current document set of a collection.
// Calls for one subscription never overlap and arrive in store order.
type SnapshotHandler func(docs []Document)

// Subscription is an active listener on a collection.
type Subscription interface {
	ID() string
	// Cancel detaches the listener. Safe to call more than once.
	Cancel()
}

// Channel is the remote collection contract.
type Channel interface {
	Subscribe(ctx context.Context, collection string, fn SnapshotHandler) (Subscription, error)
	// Create stores a new document; the store assigns the id and createdAt.
	Create(ctx context.Context, collection string, fields Fields) (string, error)
	// ConditionalUpdate applies update only if every key in expected still holds
	// the expected value; otherwise it returns ErrConditionFailed.
	ConditionalUpdate(ctx context.Context, collection, id string, expected, update Fields) error
	// Delete removes a document. Deleting a missing id succeeds.
	Delete(ctx context.Context, collection, id string) error
}
