package collection

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreatedAtField is the key the store stamps with its commit time.
const CreatedAtField = "createdAt"

// MemoryOption configures a Memory channel.
type MemoryOption func(*Memory)

// WithClock overrides the commit clock.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// WithPendingTimestamps leaves createdAt unset on create until StampPending runs,
// mimicking a store that echoes a write before its commit time is known.
func WithPendingTimestamps() MemoryOption {
	return func(m *Memory) { m.pending = true }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) MemoryOption {
	return func(m *Memory) { m.logger = logger }
}

type memCollection struct {
	order []string
	docs  map[string]Fields
}

// Memory is an in-process Channel. Every subscriber gets the full snapshot on
// subscribe and after each change.
type Memory struct {
	mu          sync.Mutex
	collections map[string]*memCollection
	subs        map[string]*memSub
	pending     bool
	now         func() time.Time
	logger      *zap.Logger
}

// NewMemory creates an empty in-memory collection store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		collections: make(map[string]*memCollection),
		subs:        make(map[string]*memSub),
		now:         time.Now,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) collection(name string) *memCollection {
	c, ok := m.collections[name]
	if !ok {
		c = &memCollection{docs: make(map[string]Fields)}
		m.collections[name] = c
	}
	return c
}

// snapshot must be called with m.mu held.
func (m *Memory) snapshot(name string) []Document {
	c := m.collection(name)
	docs := make([]Document, 0, len(c.order))
	for _, id := range c.order {
		docs = append(docs, Document{ID: id, Fields: c.docs[id].Clone()})
	}
	return docs
}

// notify must be called with m.mu held.
func (m *Memory) notify(name string) {
	docs := m.snapshot(name)
	for _, s := range m.subs {
		if s.collection == name {
			s.offer(docs)
		}
	}
}

// Subscribe implements Channel.
func (m *Memory) Subscribe(ctx context.Context, collection string, fn SnapshotHandler) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &memSub{
		id:         uuid.New().String(),
		collection: collection,
		fn:         fn,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		owner:      m,
	}
	m.mu.Lock()
	m.subs[s.id] = s
	s.offer(m.snapshot(collection))
	m.mu.Unlock()

	go s.run()
	m.logger.Debug("subscribed", zap.String("collection", collection), zap.String("subscription_id", s.id))
	return s, nil
}

// Create implements Channel.
func (m *Memory) Create(ctx context.Context, collection string, fields Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	doc := fields.Clone()
	delete(doc, CreatedAtField)
	if !m.pending {
		doc[CreatedAtField] = m.now().UTC()
	}
	id := uuid.New().String()

	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.collection(collection)
	c.order = append(c.order, id)
	c.docs[id] = doc
	m.notify(collection)
	return id, nil
}

// ConditionalUpdate implements Channel.
func (m *Memory) ConditionalUpdate(ctx context.Context, collection, id string, expected, update Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.collection(collection)
	doc, ok := c.docs[id]
	if !ok {
		return ErrConditionFailed
	}
	for k, want := range expected {
		if !reflect.DeepEqual(doc[k], want) {
			return ErrConditionFailed
		}
	}
	next := doc.Clone()
	for k, v := range update {
		if k == CreatedAtField {
			continue
		}
		next[k] = v
	}
	c.docs[id] = next
	m.notify(collection)
	return nil
}

// Delete implements Channel.
func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.collection(collection)
	if _, ok := c.docs[id]; !ok {
		return nil
	}
	delete(c.docs, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	m.notify(collection)
	return nil
}

// StampPending assigns the commit time to every document still lacking one.
func (m *Memory) StampPending(collection string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.collection(collection)
	changed := false
	for _, id := range c.order {
		doc := c.docs[id]
		if doc[CreatedAtField] == nil {
			next := doc.Clone()
			next[CreatedAtField] = m.now().UTC()
			c.docs[id] = next
			changed = true
		}
	}
	if changed {
		m.notify(collection)
	}
}

// Subscribers returns the number of active subscriptions.
func (m *Memory) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// memSub delivers snapshots on its own goroutine. Only the newest undelivered
// snapshot is kept, so delivery order always follows store order.
type memSub struct {
	id         string
	collection string
	fn         SnapshotHandler
	owner      *Memory

	mu     sync.Mutex
	latest []Document
	has    bool
	closed bool

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func (s *memSub) ID() string { return s.id }

func (s *memSub) offer(docs []Document) {
	s.mu.Lock()
	s.latest, s.has = docs, true
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *memSub) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		s.mu.Lock()
		if s.closed || !s.has {
			s.mu.Unlock()
			continue
		}
		docs := s.latest
		s.latest, s.has = nil, false
		s.mu.Unlock()
		s.fn(docs)
	}
}

func (s *memSub) Cancel() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
		s.owner.mu.Lock()
		delete(s.owner.subs, s.id)
		s.owner.mu.Unlock()
	})
}
