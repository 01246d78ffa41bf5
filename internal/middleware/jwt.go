package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campus-gigs/backend/internal/auth"
	"github.com/campus-gigs/backend/pkg/response"
)

// ContextParticipantID is the key for the caller's participant ID (string) in gin context.
const ContextParticipantID = "participant_id"

// JWT returns a middleware that validates the bearer token and sets the participant in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextParticipantID, claims.ParticipantID.String())
		c.Next()
	}
}

// ParticipantID returns the authenticated caller, or "" outside JWT routes.
func ParticipantID(c *gin.Context) string {
	return c.GetString(ContextParticipantID)
}
