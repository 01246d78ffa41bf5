package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/campus-gigs/backend/internal/collection"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60

	loadTimeout = 10 * time.Second
)

// SnapshotLoader reads the full current document set of a collection.
type SnapshotLoader interface {
	LoadSnapshot(ctx context.Context, name string) ([]collection.Document, error)
}

// ChangePublisher announces that a collection changed (for cross-instance fan-out).
type ChangePublisher interface {
	PublishChanged(ctx context.Context, name string) error
}

// ChangeSubscriber delivers change announcements for a collection.
type ChangeSubscriber interface {
	SubscribeCollection(name string, handler func()) (cancel func(), err error)
}

// Hub maintains collection -> set of connections and pushes full snapshots.
// With Redis configured, a change is published and every instance (this one
// included) reloads and pushes on receipt; without it, the change is pushed
// locally.
type Hub struct {
	// collection -> map[clientID]*Client
	collections map[string]map[string]*Client
	subs        map[string]func() // cancel Redis subscription per collection
	mu          sync.RWMutex

	// refresh serializes load+push so a newer snapshot is never overtaken by an older one.
	refresh sync.Mutex

	loader   SnapshotLoader
	redis    ChangePublisher
	redisSub ChangeSubscriber
	logger   *zap.Logger
}

// NewHub creates a new WebSocket hub. redisPub and redisSub may be nil.
func NewHub(logger *zap.Logger, loader SnapshotLoader, redisPub ChangePublisher, redisSub ChangeSubscriber) *Hub {
	return &Hub{
		collections: make(map[string]map[string]*Client),
		subs:        make(map[string]func()),
		loader:      loader,
		redis:       redisPub,
		redisSub:    redisSub,
		logger:      logger,
	}
}

// Register adds a client to a collection and queues its initial snapshot.
// The Redis subscription is made before the snapshot is read, so a change
// published in between still reaches the client; a failed subscription is
// retried on the next Register.
func (h *Hub) Register(c *Client) error {
	h.refresh.Lock()
	defer h.refresh.Unlock()

	h.subscribe(c.Collection)
	msg, err := h.load(c.Collection)
	if err != nil {
		h.mu.Lock()
		h.release(c.Collection)
		h.mu.Unlock()
		return err
	}

	h.mu.Lock()
	if h.collections[c.Collection] == nil {
		h.collections[c.Collection] = make(map[string]*Client)
	}
	h.collections[c.Collection][c.ID] = c
	h.mu.Unlock()

	c.offer(msg)
	h.logger.Debug("client subscribed",
		zap.String("client_id", c.ID),
		zap.String("collection", c.Collection),
		zap.String("participant_id", c.ParticipantID),
	)
	return nil
}

// subscribe starts the Redis subscription for a collection unless one is
// already live. Callers hold h.refresh.
func (h *Hub) subscribe(name string) {
	if h.redisSub == nil || h.subscribed(name) {
		return
	}
	cancel, err := h.redisSub.SubscribeCollection(name, func() { h.Refresh(name) })
	if err != nil {
		h.logger.Warn("redis subscribe failed", zap.String("collection", name), zap.Error(err))
		return
	}
	h.mu.Lock()
	h.subs[name] = cancel
	h.mu.Unlock()
}

func (h *Hub) subscribed(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.subs[name]
	return ok
}

// release drops the Redis subscription of a collection with no clients left.
// Callers hold h.mu.
func (h *Hub) release(name string) {
	if len(h.collections[name]) > 0 {
		return
	}
	delete(h.collections, name)
	if cancel, ok := h.subs[name]; ok {
		cancel()
		delete(h.subs, name)
	}
}

// Unregister removes a client. Cancels the Redis subscription when the last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.refresh.Lock()
	defer h.refresh.Unlock()
	h.mu.Lock()
	if m, ok := h.collections[c.Collection]; ok {
		delete(m, c.ID)
		h.release(c.Collection)
	}
	h.mu.Unlock()
	h.logger.Debug("client unsubscribed", zap.String("client_id", c.ID), zap.String("collection", c.Collection))
}

// NotifyChanged is called after a committed write. It publishes to Redis and
// also refreshes local clients directly when Redis is not configured, the
// publish fails, or this instance holds no live subscription to hear it back.
func (h *Hub) NotifyChanged(name string) {
	if h.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), eventTTL)
		err := h.redis.PublishChanged(ctx, name)
		cancel()
		if err != nil {
			h.logger.Warn("publish change failed, refreshing locally", zap.String("collection", name), zap.Error(err))
		} else if h.subscribed(name) {
			return
		}
	}
	h.Refresh(name)
}

// Refresh reloads a collection and pushes the snapshot to its local clients.
func (h *Hub) Refresh(name string) {
	h.refresh.Lock()
	defer h.refresh.Unlock()

	h.mu.RLock()
	n := len(h.collections[name])
	h.mu.RUnlock()
	if n == 0 {
		return
	}
	msg, err := h.load(name)
	if err != nil {
		h.logger.Error("load snapshot", zap.String("collection", name), zap.Error(err))
		return
	}
	h.mu.RLock()
	for _, c := range h.collections[name] {
		c.offer(msg)
	}
	h.mu.RUnlock()
}

// Snapshot returns the current documents of a collection.
func (h *Hub) Snapshot(ctx context.Context, name string) ([]collection.Document, error) {
	return h.loader.LoadSnapshot(ctx, name)
}

// Subscribers returns the number of connected clients on a collection.
func (h *Hub) Subscribers(name string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.collections[name])
}

func (h *Hub) load(name string) (WSMessage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()
	docs, err := h.loader.LoadSnapshot(ctx, name)
	if err != nil {
		return WSMessage{}, err
	}
	data, err := json.Marshal(collection.SnapshotMessage{Collection: name, Documents: docs})
	if err != nil {
		return WSMessage{}, err
	}
	return WSMessage{Event: collection.EventSnapshot, Data: data}, nil
}
