package assistant

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campus-gigs/backend/internal/collection"
	"github.com/campus-gigs/backend/pkg/response"
)

// assistantAPI serves the assistant routes behind a fixed bearer token.
func assistantAPI(t *testing.T, h *Handler) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("", func(c *gin.Context) {
		if c.GetHeader("Authorization") != "Bearer tok" {
			response.Unauthorized(c, "invalid token")
			c.Abort()
			return
		}
		c.Next()
	})
	api.POST("/assistant/draft", h.Draft)
	api.GET("/assistant/pulse", h.Pulse)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestRemote_GoesThroughServer(t *testing.T) {
	var prompts []string
	model := geminiServer(t, func(prompt string) any {
		prompts = append(prompts, prompt)
		return answer("from the server")
	})
	svc := NewService(NewGeminiClient(GeminiConfig{APIKey: "test-key", BaseURL: model.URL}), nil)
	gigs := staticGigs{
		{ID: "1", Fields: collection.Fields{"title": "Move boxes", "status": "OPEN", "createdBy": "a"}},
	}
	api := assistantAPI(t, NewHandler(svc, gigs, zap.NewNop()))
	remote := NewRemote(api.URL+"/", func() string { return "tok" }, nil)
	ctx := context.Background()

	text, ok := remote.MagicDraft(ctx, " Move boxes ")
	require.True(t, ok)
	assert.Equal(t, "from the server", text)
	assert.Equal(t, "from the server", remote.Pulse(ctx))
	assert.Equal(t, []string{
		`Write a short description for a campus task: "Move boxes".`,
		"Summarize the campus vibe based on these tasks: [Move boxes].",
	}, prompts)

	_, ok = remote.MagicDraft(ctx, "   ")
	assert.False(t, ok)
	assert.Len(t, prompts, 2)
}

func TestRemote_FallbackText(t *testing.T) {
	h := NewHandler(NewService(nil, nil), staticGigs{}, zap.NewNop())
	api := assistantAPI(t, h)
	ctx := context.Background()

	remote := NewRemote(api.URL, func() string { return "tok" }, nil)
	text, ok := remote.MagicDraft(ctx, "Tutor calc")
	require.True(t, ok)
	assert.Equal(t, FallbackNoKey, text)
	assert.Equal(t, QuietCampus, remote.Pulse(ctx))

	unauthenticated := NewRemote(api.URL, nil, nil)
	text, _ = unauthenticated.MagicDraft(ctx, "Tutor calc")
	assert.Equal(t, FallbackError, text)

	down := httptest.NewServer(http.NotFoundHandler())
	down.Close()
	assert.Equal(t, FallbackError, NewRemote(down.URL, nil, nil).Pulse(ctx))
}
