package collection

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	snaps [][]Document
}

func (r *recorder) handle(docs []Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, docs)
}

func (r *recorder) last() []Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return nil
	}
	return r.snaps[len(r.snaps)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func TestMemory_SubscribeReceivesInitialAndChanges(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	rec := &recorder{}
	sub, err := m.Subscribe(ctx, "gigs", rec.handle)
	require.NoError(t, err)
	defer sub.Cancel()

	require.Eventually(t, func() bool { return rec.count() >= 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, rec.last())

	id, err := m.Create(ctx, "gigs", Fields{"title": "Move boxes"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(rec.last()) == 1 }, time.Second, 5*time.Millisecond)
	doc := rec.last()[0]
	assert.Equal(t, id, doc.ID)
	assert.NotNil(t, doc.Fields[CreatedAtField])
}

func TestMemory_ConditionalUpdate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id, err := m.Create(ctx, "gigs", Fields{"status": "OPEN"})
	require.NoError(t, err)

	err = m.ConditionalUpdate(ctx, "gigs", id, Fields{"status": "OPEN"}, Fields{"status": "IN_PROGRESS"})
	require.NoError(t, err)

	err = m.ConditionalUpdate(ctx, "gigs", id, Fields{"status": "OPEN"}, Fields{"status": "IN_PROGRESS"})
	assert.ErrorIs(t, err, ErrConditionFailed)

	err = m.ConditionalUpdate(ctx, "gigs", "missing", nil, Fields{"status": "COMPLETED"})
	assert.ErrorIs(t, err, ErrConditionFailed)
}

func TestMemory_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id, err := m.Create(ctx, "gigs", Fields{"title": "x"})
	require.NoError(t, err)
	require.NoError(t, m.Delete(ctx, "gigs", id))
	require.NoError(t, m.Delete(ctx, "gigs", id))
}

func TestMemory_PendingTimestamps(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(WithPendingTimestamps())
	rec := &recorder{}
	sub, err := m.Subscribe(ctx, "gigs", rec.handle)
	require.NoError(t, err)
	defer sub.Cancel()

	_, err = m.Create(ctx, "gigs", Fields{"title": "x"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(rec.last()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Nil(t, rec.last()[0].Fields[CreatedAtField])

	m.StampPending("gigs")
	require.Eventually(t, func() bool {
		docs := rec.last()
		return len(docs) == 1 && docs[0].Fields[CreatedAtField] != nil
	}, time.Second, 5*time.Millisecond)
}

func TestMemory_CancelStopsDelivery(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	rec := &recorder{}
	sub, err := m.Subscribe(ctx, "gigs", rec.handle)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	sub.Cancel()
	sub.Cancel()
	assert.Equal(t, 0, m.Subscribers())

	_, err = m.Create(ctx, "gigs", Fields{"title": "x"})
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}
