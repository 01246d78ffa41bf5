// Package gigsync mirrors the shared gig collection into a locally ordered view.
package gigsync

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/campus-gigs/backend/internal/collection"
	"github.com/campus-gigs/backend/internal/models"
)

// Listener receives every new view. It must not modify the slice or call
// Unsubscribe.
type Listener func(gigs []models.Gig)

// Option configures an Engine.
type Option func(*Engine)

// WithListener registers a listener called after each snapshot is applied.
func WithListener(fn Listener) Option {
	return func(e *Engine) { e.listeners = append(e.listeners, fn) }
}

// WithCollection overrides the subscribed collection name.
func WithCollection(name string) Option {
	return func(e *Engine) { e.collection = name }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// Engine owns the local gig view. It never writes to the channel; its view only
// changes when a snapshot arrives, and each snapshot replaces the view wholesale.
type Engine struct {
	channel    collection.Channel
	collection string
	logger     *zap.Logger
	listeners  []Listener
	updates    chan []models.Gig

	// deliver is held while a snapshot is applied and handed to listeners.
	deliver sync.Mutex

	mu          sync.RWMutex
	sub         collection.Subscription
	generation  uint64
	gigs        []models.Gig
	quarantined int
	received    bool
}

// NewEngine creates an engine reading from ch.
func NewEngine(ch collection.Channel, opts ...Option) *Engine {
	e := &Engine{
		channel:    ch,
		collection: models.CollectionGigs,
		logger:     zap.NewNop(),
		updates:    make(chan []models.Gig, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Subscribe starts receiving snapshots. It is a no-op while already subscribed.
func (e *Engine) Subscribe(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sub != nil {
		return nil
	}
	e.generation++
	gen := e.generation
	sub, err := e.channel.Subscribe(ctx, e.collection, func(docs []collection.Document) {
		e.apply(gen, docs)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", e.collection, err)
	}
	e.sub = sub
	e.logger.Info("gig sync subscribed", zap.String("subscription_id", sub.ID()))
	return nil
}

// Unsubscribe detaches from the channel. Safe to call repeatedly; snapshots
// arriving afterwards are discarded, as is an unread view on Updates. Once it
// returns no listener is running or will be called again.
func (e *Engine) Unsubscribe() {
	e.mu.Lock()
	sub := e.sub
	e.sub = nil
	e.generation++
	select {
	case <-e.updates:
	default:
	}
	e.mu.Unlock()

	// Wait out a delivery that passed the generation check before the bump.
	e.deliver.Lock()
	e.deliver.Unlock()

	if sub == nil {
		return
	}
	sub.Cancel()
	e.logger.Info("gig sync unsubscribed", zap.String("subscription_id", sub.ID()))
}

// Subscribed reports whether a subscription is active.
func (e *Engine) Subscribed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sub != nil
}

func (e *Engine) apply(gen uint64, docs []collection.Document) {
	view, dropped := Reconcile(docs, e.logger)

	e.deliver.Lock()
	defer e.deliver.Unlock()

	e.mu.Lock()
	if gen != e.generation {
		e.mu.Unlock()
		return
	}
	e.gigs = view
	e.quarantined = dropped
	e.received = true
	select {
	case <-e.updates:
	default:
	}
	e.updates <- view
	e.mu.Unlock()

	e.logger.Debug("gig snapshot applied", zap.Int("gigs", len(view)), zap.Int("quarantined", dropped))
	for _, fn := range e.listeners {
		fn(view)
	}
}

// Gigs returns a copy of the current view.
func (e *Engine) Gigs() []models.Gig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.gigs)
}

// Lookup returns the gig with id from the current view.
func (e *Engine) Lookup(id string) (models.Gig, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, g := range e.gigs {
		if g.ID == id {
			return g, true
		}
	}
	return models.Gig{}, false
}

// Ready reports whether at least one snapshot has been applied.
func (e *Engine) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.received
}

// Quarantined returns how many documents the last snapshot dropped.
func (e *Engine) Quarantined() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.quarantined
}

// Updates delivers the newest view; an unread view is replaced by a newer one.
func (e *Engine) Updates() <-chan []models.Gig {
	return e.updates
}
