package gigs

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/campus-gigs/backend/internal/collection"
	"github.com/campus-gigs/backend/internal/lifecycle"
	"github.com/campus-gigs/backend/internal/middleware"
	"github.com/campus-gigs/backend/internal/models"
	"github.com/campus-gigs/backend/pkg/response"
)

// Store is the gig persistence the handler needs. *Repository implements it.
type Store interface {
	List(ctx context.Context) ([]collection.Document, error)
	Get(ctx context.Context, id string) (collection.Document, bool, error)
	Create(ctx context.Context, fields collection.Fields) (string, error)
	ConditionalUpdate(ctx context.Context, id string, expected, update collection.Fields) error
	Delete(ctx context.Context, id string) error
}

// Notifier is told after every committed change so subscribers get a fresh snapshot.
type Notifier interface {
	NotifyChanged(collection string)
}

// Handler handles gig HTTP endpoints. Every write is re-authorized against
// the stored gig, so a client cannot skip the lifecycle rules.
type Handler struct {
	store    Store
	notifier Notifier
	logger   *zap.Logger
}

// NewHandler creates a gigs handler.
func NewHandler(store Store, notifier Notifier, logger *zap.Logger) *Handler {
	return &Handler{store: store, notifier: notifier, logger: logger}
}

// Register mounts the gig routes on an authenticated group.
func (h *Handler) Register(g *gin.RouterGroup) {
	g.GET("", h.List)
	g.POST("", h.Create)
	g.PATCH("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}

// List handles GET /gigs.
func (h *Handler) List(c *gin.Context) {
	docs, err := h.store.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list gigs", zap.Error(err))
		response.Internal(c, "failed to list gigs")
		return
	}
	response.OK(c, docs)
}

// Create handles POST /gigs. The caller becomes the creator and the gig
// always starts OPEN and unclaimed, whatever the body says.
func (h *Handler) Create(c *gin.Context) {
	var body collection.Fields
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	actor := lifecycle.Actor{ID: middleware.ParticipantID(c), Name: text(body, models.FieldCreatorName)}
	fields, err := lifecycle.NewGigFields(actor, lifecycle.Draft{
		Title:       text(body, models.FieldTitle),
		Description: text(body, models.FieldDescription),
		Reward:      text(body, models.FieldReward),
		Location:    text(body, models.FieldLocation),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	id, err := h.store.Create(c.Request.Context(), fields)
	if err != nil {
		h.logger.Error("create gig", zap.Error(err))
		response.Internal(c, "failed to create gig")
		return
	}
	h.logger.Info("gig created", zap.String("gig_id", id), zap.String("participant_id", actor.ID))
	h.notifier.NotifyChanged(models.CollectionGigs)
	response.Created(c, gin.H{"id": id})
}

// Update handles PATCH /gigs/:id with a conditional update body.
func (h *Handler) Update(c *gin.Context) {
	var req collection.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	current, ok := h.load(c, id)
	if !ok {
		return
	}
	if current == nil {
		response.Conflict(c, "gig no longer exists")
		return
	}
	caller := middleware.ParticipantID(c)
	action, w, err := lifecycle.Authorize(*current, req.Update, caller)
	if err != nil {
		h.fail(c, err)
		return
	}
	expected, err := mergeExpected(w.Expected, req.Expected)
	if err != nil {
		h.logger.Info("update precondition refused", zap.String("gig_id", id), zap.Error(err))
		h.fail(c, err)
		return
	}
	if err := h.store.ConditionalUpdate(ctx, id, expected, w.Fields); err != nil {
		if errors.Is(err, collection.ErrConditionFailed) {
			h.logger.Info("conditional update rejected", zap.String("gig_id", id), zap.String("action", string(action)))
			response.Conflict(c, lifecycle.ErrStaleTransition.Error())
			return
		}
		if errors.Is(err, ErrInvalidCondition) {
			response.BadRequest(c, err.Error())
			return
		}
		h.logger.Error("update gig", zap.String("gig_id", id), zap.Error(err))
		response.Internal(c, "failed to update gig")
		return
	}
	h.logger.Info("gig updated",
		zap.String("gig_id", id),
		zap.String("action", string(action)),
		zap.String("participant_id", caller),
	)
	h.notifier.NotifyChanged(models.CollectionGigs)
	response.NoContent(c)
}

// Delete handles DELETE /gigs/:id. Only the creator may delete; a gig that
// is already gone counts as deleted.
func (h *Handler) Delete(c *gin.Context) {
	id := c.Param("id")
	current, ok := h.load(c, id)
	if !ok {
		return
	}
	if current == nil {
		response.NoContent(c)
		return
	}
	caller := middleware.ParticipantID(c)
	if _, err := lifecycle.Decide(*current, lifecycle.ActionDelete, lifecycle.Actor{ID: caller}); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		h.logger.Error("delete gig", zap.String("gig_id", id), zap.Error(err))
		response.Internal(c, "failed to delete gig")
		return
	}
	h.logger.Info("gig deleted", zap.String("gig_id", id), zap.String("participant_id", caller))
	h.notifier.NotifyChanged(models.CollectionGigs)
	response.NoContent(c)
}

// load returns the stored gig, nil if it does not exist. ok is false when a
// response has already been written.
func (h *Handler) load(c *gin.Context, id string) (*models.Gig, bool) {
	doc, found, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get gig", zap.String("gig_id", id), zap.Error(err))
		response.Internal(c, "failed to load gig")
		return nil, false
	}
	if !found {
		return nil, true
	}
	g, err := models.ParseGig(doc.ID, doc.Fields)
	if err != nil {
		h.logger.Error("stored gig is malformed", zap.String("gig_id", id), zap.Error(err))
		response.Internal(c, "stored gig is malformed")
		return nil, false
	}
	return &g, true
}

// mergeExpected combines the server-derived precondition with the one the
// client sent. The derived values always win; a client value that disagrees
// with them means the client acted on a stale view.
func mergeExpected(derived, sent collection.Fields) (collection.Fields, error) {
	out := derived.Clone()
	for k, v := range sent {
		if v != nil {
			if _, ok := v.(string); !ok {
				return nil, fmt.Errorf("%w: %s must be a string or null", ErrInvalidCondition, k)
			}
		}
		want, ok := out[k]
		if !ok {
			out[k] = v
			continue
		}
		if want != v {
			return nil, fmt.Errorf("%w: expected %s %v, gig is %v", lifecycle.ErrStaleTransition, k, v, want)
		}
	}
	return out, nil
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidCondition):
		response.BadRequest(c, err.Error())
	case errors.Is(err, lifecycle.ErrForbidden):
		response.Forbidden(c, err.Error())
	case errors.Is(err, lifecycle.ErrStaleTransition):
		response.Conflict(c, err.Error())
	case errors.Is(err, lifecycle.ErrInvalidDraft):
		response.BadRequest(c, err.Error())
	case errors.Is(err, lifecycle.ErrNotAuthenticated):
		response.Unauthorized(c, err.Error())
	default:
		response.Fail(c, http.StatusUnprocessableEntity, err.Error())
	}
}
