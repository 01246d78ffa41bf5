package gigsync

import (
	"errors"
	"slices"

	"go.uber.org/zap"

	"github.com/campus-gigs/backend/internal/collection"
	"github.com/campus-gigs/backend/internal/models"
)

// compareGigs orders newest first. A gig still waiting for its commit time
// counts as the oldest possible gig.
func compareGigs(a, b models.Gig) int {
	switch {
	case a.CreatedAt == nil && b.CreatedAt == nil:
		return 0
	case a.CreatedAt == nil:
		return 1
	case b.CreatedAt == nil:
		return -1
	}
	return b.CreatedAt.Compare(*a.CreatedAt)
}

// SortGigs sorts gigs into canonical order in place. Equal keys keep their
// relative order, so sorting a sorted slice is a no-op.
func SortGigs(gigs []models.Gig) {
	slices.SortStableFunc(gigs, compareGigs)
}

// Reconcile turns a snapshot into the canonical view. Malformed documents are
// dropped and counted.
func Reconcile(docs []collection.Document, logger *zap.Logger) ([]models.Gig, int) {
	gigs := make([]models.Gig, 0, len(docs))
	dropped := 0
	for _, d := range docs {
		g, err := models.ParseGig(d.ID, d.Fields)
		if err != nil {
			dropped++
			if logger != nil && errors.Is(err, models.ErrMalformedGig) {
				logger.Warn("quarantined gig document", zap.String("id", d.ID), zap.Error(err))
			}
			continue
		}
		gigs = append(gigs, g)
	}
	SortGigs(gigs)
	return gigs, dropped
}
