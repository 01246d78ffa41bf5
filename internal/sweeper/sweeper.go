// Package sweeper periodically removes completed gigs past their retention.
package sweeper

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/campus-gigs/backend/internal/models"
)

// Store deletes completed gigs older than a cutoff.
type Store interface {
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ChangePublisher announces a collection change to running servers.
type ChangePublisher interface {
	PublishChanged(ctx context.Context, collection string) error
}

// Sweeper deletes COMPLETED gigs once they are older than the retention.
type Sweeper struct {
	store     Store
	publisher ChangePublisher
	retention time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// New creates a sweeper. publisher may be nil when no server needs telling.
func New(store Store, publisher ChangePublisher, retention time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		store:     store,
		publisher: publisher,
		retention: retention,
		now:       time.Now,
		logger:    logger,
	}
}

// Sweep runs one pass and returns the number of gigs removed.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retention)
	n, err := s.store.DeleteCompletedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	s.logger.Info("swept completed gigs", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
	if s.publisher != nil {
		if err := s.publisher.PublishChanged(ctx, models.CollectionGigs); err != nil {
			s.logger.Warn("publish change", zap.Error(err))
		}
	}
	return n, nil
}

// Schedule registers a sweep every interval on sched. Overlapping runs are skipped.
func (s *Sweeper) Schedule(ctx context.Context, sched gocron.Scheduler, interval time.Duration) (gocron.Job, error) {
	return sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("sweep failed", zap.Error(err))
			}
		}),
		gocron.WithName("sweep-completed-gigs"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
}
