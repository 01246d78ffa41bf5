package assistant

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/campus-gigs/backend/internal/collection"
	"github.com/campus-gigs/backend/internal/gigsync"
	"github.com/campus-gigs/backend/pkg/response"
)

// GigSource lists the stored gig documents.
type GigSource interface {
	List(ctx context.Context) ([]collection.Document, error)
}

// DraftRequest is the body for POST /assistant/draft.
type DraftRequest struct {
	Title string `json:"title" binding:"required"`
}

// TextResponse carries generated (or fallback) text.
type TextResponse struct {
	Text string `json:"text"`
}

// Handler exposes the assistant over HTTP so the model key stays on the server.
type Handler struct {
	svc    *Service
	gigs   GigSource
	logger *zap.Logger
}

// NewHandler creates an assistant handler.
func NewHandler(svc *Service, gigs GigSource, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, gigs: gigs, logger: logger}
}

// Draft handles POST /assistant/draft.
func (h *Handler) Draft(c *gin.Context) {
	var req DraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	text, ok := h.svc.MagicDraft(c.Request.Context(), req.Title)
	if !ok {
		response.BadRequest(c, "title is required")
		return
	}
	response.OK(c, TextResponse{Text: text})
}

// Pulse handles GET /assistant/pulse.
func (h *Handler) Pulse(c *gin.Context) {
	docs, err := h.gigs.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list gigs for pulse", zap.Error(err))
		response.Internal(c, "failed to load gigs")
		return
	}
	gigs, _ := gigsync.Reconcile(docs, h.logger)
	response.OK(c, TextResponse{Text: h.svc.CampusPulse(c.Request.Context(), gigs)})
}
