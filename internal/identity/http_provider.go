package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/campus-gigs/backend/internal/kvstore"
)

// Profile keys for the device credential issued by the gigs server.
const (
	KeyParticipantID = "campusGigs_participantId"
	KeyDeviceSecret  = "campusGigs_deviceSecret"
)

// AnonymousRequest is the body of POST /auth/anonymous.
type AnonymousRequest struct {
	ID     string `json:"id,omitempty"`
	Secret string `json:"secret,omitempty"`
}

// AnonymousResponse is the data of a successful POST /auth/anonymous.
type AnonymousResponse struct {
	ID      string `json:"id"`
	Secret  string `json:"secret,omitempty"`
	Token   string `json:"token"`
	Resumed bool   `json:"resumed"`
}

// HTTPProvider authenticates against the gigs server and keeps the device
// credential in the profile store so the same id is resumed next time.
type HTTPProvider struct {
	baseURL string
	store   kvstore.Store
	http    *http.Client

	mu    sync.RWMutex
	token string
}

// NewHTTPProvider creates a provider for the server at baseURL.
func NewHTTPProvider(baseURL string, store kvstore.Store) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		store:   store,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// AuthenticateAnonymous implements Provider.
func (p *HTTPProvider) AuthenticateAnonymous(ctx context.Context) (string, error) {
	var req AnonymousRequest
	if id, ok, err := p.store.Get(KeyParticipantID); err == nil && ok {
		req.ID = id
	}
	if secret, ok, err := p.store.Get(KeyDeviceSecret); err == nil && ok {
		req.Secret = secret
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/auth/anonymous", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := p.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("auth request: %w", err)
	}
	defer resp.Body.Close()

	var env struct {
		Success bool              `json:"success"`
		Data    AnonymousResponse `json:"data"`
		Error   string            `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", fmt.Errorf("decode auth response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !env.Success {
		return "", fmt.Errorf("auth status %d: %s", resp.StatusCode, env.Error)
	}

	if env.Data.Secret != "" {
		if err := p.store.Set(KeyParticipantID, env.Data.ID); err != nil {
			return "", fmt.Errorf("persist participant id: %w", err)
		}
		if err := p.store.Set(KeyDeviceSecret, env.Data.Secret); err != nil {
			return "", fmt.Errorf("persist device secret: %w", err)
		}
	}
	p.mu.Lock()
	p.token = env.Data.Token
	p.mu.Unlock()
	return env.Data.ID, nil
}

// Token returns the latest access token, or "" before authentication.
func (p *HTTPProvider) Token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token
}
