package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/campus-gigs/backend/internal/collection"
	"github.com/campus-gigs/backend/internal/models"
)

// Machine validates actions and submits them through the collection channel.
// It never touches a local view; effects become visible through the next
// snapshot only.
type Machine struct {
	channel    collection.Channel
	collection string
	logger     *zap.Logger
}

// NewMachine creates a machine writing to the gigs collection of ch.
func NewMachine(ch collection.Channel, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{channel: ch, collection: models.CollectionGigs, logger: logger}
}

// Create posts a new OPEN gig and returns the id assigned by the store.
func (m *Machine) Create(ctx context.Context, actor Actor, d Draft) (string, error) {
	fields, err := NewGigFields(actor, d)
	if err != nil {
		return "", err
	}
	id, err := m.channel.Create(ctx, m.collection, fields)
	if err != nil {
		m.logger.Warn("create gig failed", zap.String("actor", actor.ID), zap.Error(err))
		return "", &TransitionError{Kind: ErrRemoteWriteFailed, Action: ActionCreate, Err: err}
	}
	m.logger.Info("gig created", zap.String("gig_id", id), zap.String("actor", actor.ID))
	return id, nil
}

// Claim takes an OPEN gig for actor.
func (m *Machine) Claim(ctx context.Context, actor Actor, g models.Gig) error {
	return m.perform(ctx, ActionClaim, actor, g)
}

// Complete closes a gig owned by actor.
func (m *Machine) Complete(ctx context.Context, actor Actor, g models.Gig) error {
	return m.perform(ctx, ActionComplete, actor, g)
}

// Delete removes a gig owned by actor. Deleting an already deleted gig succeeds.
func (m *Machine) Delete(ctx context.Context, actor Actor, g models.Gig) error {
	return m.perform(ctx, ActionDelete, actor, g)
}

func (m *Machine) perform(ctx context.Context, action Action, actor Actor, g models.Gig) error {
	w, err := Decide(g, action, actor)
	if err != nil {
		m.logger.Debug("transition refused", zap.String("action", string(action)), zap.String("gig_id", g.ID), zap.Error(err))
		return err
	}
	if err := m.submit(ctx, w); err != nil {
		kind := ErrRemoteWriteFailed
		switch {
		case errors.Is(err, collection.ErrConditionFailed):
			kind = ErrStaleTransition
		case errors.Is(err, collection.ErrForbidden):
			kind = ErrForbidden
		}
		m.logger.Warn("transition failed",
			zap.String("action", string(action)),
			zap.String("gig_id", g.ID),
			zap.String("actor", actor.ID),
			zap.Error(err),
		)
		return &TransitionError{Kind: kind, Action: action, GigID: g.ID, Err: err}
	}
	m.logger.Info("transition submitted", zap.String("action", string(action)), zap.String("gig_id", g.ID), zap.String("actor", actor.ID))
	return nil
}

func (m *Machine) submit(ctx context.Context, w Write) error {
	switch w.Kind {
	case WriteConditionalUpdate:
		return m.channel.ConditionalUpdate(ctx, m.collection, w.GigID, w.Expected, w.Fields)
	case WriteDelete:
		return m.channel.Delete(ctx, m.collection, w.GigID)
	case WriteCreate:
		_, err := m.channel.Create(ctx, m.collection, w.Fields)
		return err
	}
	return fmt.Errorf("unsupported write kind %d", w.Kind)
}
