package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const remoteTimeout = 30 * time.Second

// Remote asks the gigs server's assistant routes, so the model key never
// leaves the server. Like Service it never returns errors.
type Remote struct {
	baseURL string
	token   func() string
	http    *http.Client
	logger  *zap.Logger
}

// NewRemote creates a client for the server at baseURL. token returns the
// current bearer token.
func NewRemote(baseURL string, token func() string, logger *zap.Logger) *Remote {
	if logger == nil {
		logger = zap.NewNop()
	}
	if token == nil {
		token = func() string { return "" }
	}
	return &Remote{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: remoteTimeout},
		logger:  logger,
	}
}

// MagicDraft asks the server for a description of title. ok is false when the
// title is blank.
func (r *Remote) MagicDraft(ctx context.Context, title string) (string, bool) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", false
	}
	return r.call(ctx, http.MethodPost, "/assistant/draft", DraftRequest{Title: title}), true
}

// Pulse asks the server to summarize the OPEN gigs it holds.
func (r *Remote) Pulse(ctx context.Context) string {
	return r.call(ctx, http.MethodGet, "/assistant/pulse", nil)
}

func (r *Remote) call(ctx context.Context, method, path string, body any) string {
	text, err := r.do(ctx, method, path, body)
	if err != nil {
		r.logger.Warn("assistant request failed", zap.String("path", path), zap.Error(err))
		return FallbackError
	}
	return text
}

func (r *Remote) do(ctx context.Context, method, path string, body any) (string, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return "", fmt.Errorf("marshal request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tok := r.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env struct {
		Success bool         `json:"success"`
		Data    TextResponse `json:"data"`
		Error   string       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", fmt.Errorf("%s %s: status %d: decode: %w", method, path, resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !env.Success {
		return "", fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, env.Error)
	}
	return env.Data.Text, nil
}
