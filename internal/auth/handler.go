package auth

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campus-gigs/backend/internal/identity"
	"github.com/campus-gigs/backend/internal/models"
	"github.com/campus-gigs/backend/pkg/response"
	"github.com/campus-gigs/backend/pkg/utils"
)

// Participants is the participant storage the handler needs.
type Participants interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Participant, error)
	Create(ctx context.Context, secretHash string) (*models.Participant, error)
	Touch(ctx context.Context, id uuid.UUID) error
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	repo   Participants
	jwt    *JWTService
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(repo Participants, jwt *JWTService, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, jwt: jwt, logger: logger}
}

// Anonymous handles POST /auth/anonymous. A known id with a matching device
// secret resumes that participant; anything else issues a new one.
func (h *Handler) Anonymous(c *gin.Context) {
	var req identity.AnonymousRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	ctx := c.Request.Context()

	if p := h.resume(ctx, req); p != nil {
		token, err := h.jwt.Generate(p.ID)
		if err != nil {
			h.logger.Error("generate token", zap.Error(err))
			response.Internal(c, "failed to generate token")
			return
		}
		response.OK(c, identity.AnonymousResponse{ID: p.ID.String(), Token: token, Resumed: true})
		return
	}

	secret, err := utils.NewDeviceSecret()
	if err != nil {
		h.logger.Error("generate device secret", zap.Error(err))
		response.Internal(c, "failed to issue identity")
		return
	}
	hash, err := utils.HashSecret(secret)
	if err != nil {
		h.logger.Error("hash secret", zap.Error(err))
		response.Internal(c, "failed to issue identity")
		return
	}
	p, err := h.repo.Create(ctx, hash)
	if err != nil {
		h.logger.Error("create participant", zap.Error(err))
		response.Internal(c, "failed to issue identity")
		return
	}
	token, err := h.jwt.Generate(p.ID)
	if err != nil {
		h.logger.Error("generate token", zap.Error(err))
		response.Internal(c, "failed to generate token")
		return
	}
	h.logger.Info("participant issued", zap.String("participant_id", p.ID.String()))
	response.OK(c, identity.AnonymousResponse{ID: p.ID.String(), Secret: secret, Token: token})
}

func (h *Handler) resume(ctx context.Context, req identity.AnonymousRequest) *models.Participant {
	if req.ID == "" || req.Secret == "" {
		return nil
	}
	id, err := uuid.Parse(req.ID)
	if err != nil {
		return nil
	}
	p, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return nil
	}
	if !utils.CheckSecret(req.Secret, p.SecretHash) {
		h.logger.Warn("device secret mismatch", zap.String("participant_id", req.ID))
		return nil
	}
	if err := h.repo.Touch(ctx, p.ID); err != nil {
		h.logger.Warn("touch participant", zap.Error(err))
	}
	return p
}
