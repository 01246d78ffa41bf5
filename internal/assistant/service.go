// Package assistant drafts gig descriptions and summarizes open gigs through a
// text generation model. It never returns errors: failures become fixed
// fallback strings.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/campus-gigs/backend/internal/models"
)

const (
	FallbackNoKey = "AI Key missing."
	FallbackEmpty = "Could not generate text."
	FallbackError = "Error contacting AI."
	QuietCampus   = "It's quiet on campus right now!"
)

// Generator turns a prompt into text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Service wraps a Generator with the gig-specific prompts.
type Service struct {
	gen    Generator
	logger *zap.Logger
}

// NewService creates a service. gen may be nil when no model is configured.
func NewService(gen Generator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{gen: gen, logger: logger}
}

// Generate returns the model's answer or a fallback string.
func (s *Service) Generate(ctx context.Context, prompt string) string {
	if isNil(s.gen) {
		return FallbackNoKey
	}
	text, err := s.gen.Generate(ctx, prompt)
	switch {
	case errors.Is(err, ErrEmptyResponse):
		s.logger.Warn("assistant returned no text")
		return FallbackEmpty
	case err != nil:
		s.logger.Warn("assistant call failed", zap.Error(err))
		return FallbackError
	}
	return text
}

// MagicDraft writes a short description for a gig title. ok is false when the
// title is blank and nothing was generated.
func (s *Service) MagicDraft(ctx context.Context, title string) (text string, ok bool) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", false
	}
	return s.Generate(ctx, fmt.Sprintf("Write a short description for a campus task: \"%s\".", title)), true
}

// CampusPulse summarizes the titles of the OPEN gigs in view.
func (s *Service) CampusPulse(ctx context.Context, gigs []models.Gig) string {
	var titles []string
	for _, g := range gigs {
		if g.Status == models.StatusOpen {
			titles = append(titles, g.Title)
		}
	}
	if len(titles) == 0 {
		return QuietCampus
	}
	return s.Generate(ctx, fmt.Sprintf("Summarize the campus vibe based on these tasks: [%s].", strings.Join(titles, ", ")))
}

// isNil catches a typed nil *GeminiClient stored in the interface.
func isNil(g Generator) bool {
	if g == nil {
		return true
	}
	c, ok := g.(*GeminiClient)
	return ok && c == nil
}
