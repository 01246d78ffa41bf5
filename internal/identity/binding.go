// Package identity binds the anonymous participant id issued by the identity
// provider to the display name chosen on this profile.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/campus-gigs/backend/internal/kvstore"
	"github.com/campus-gigs/backend/internal/lifecycle"
)

// KeyDisplayName is the profile key holding the joined display name.
const KeyDisplayName = "campusGigs_username"

var (
	// ErrAuthUnavailable means the identity provider could not be reached. Retryable.
	ErrAuthUnavailable = errors.New("identity provider unavailable")
	// ErrNotAuthenticated means Authenticate has not succeeded yet.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNotJoined means no display name has been chosen.
	ErrNotJoined = errors.New("not joined")
	// ErrEmptyName is returned by Join for blank names.
	ErrEmptyName = errors.New("display name is required")
)

// Provider issues anonymous identities that are stable for one client profile.
type Provider interface {
	AuthenticateAnonymous(ctx context.Context) (string, error)
}

// Session is who this client is.
type Session struct {
	AnonymousID string
	DisplayName string
	Joined      bool
}

// Binding owns the session for one profile.
type Binding struct {
	provider Provider
	store    kvstore.Store
	logger   *zap.Logger

	mu      sync.RWMutex
	session Session
}

// NewBinding creates a binding. Nothing is read until Authenticate.
func NewBinding(provider Provider, store kvstore.Store, logger *zap.Logger) *Binding {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Binding{provider: provider, store: store, logger: logger}
}

// Authenticate establishes or resumes the anonymous identity and restores a
// previously joined display name.
func (b *Binding) Authenticate(ctx context.Context) (string, error) {
	id, err := b.provider.AuthenticateAnonymous(ctx)
	if err != nil {
		b.logger.Warn("anonymous auth failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrAuthUnavailable, err)
	}
	if id == "" {
		return "", fmt.Errorf("%w: empty participant id", ErrAuthUnavailable)
	}

	name, ok, err := b.store.Get(KeyDisplayName)
	if err != nil {
		b.logger.Warn("read display name", zap.Error(err))
		ok = false
	}

	b.mu.Lock()
	b.session.AnonymousID = id
	if ok && strings.TrimSpace(name) != "" {
		b.session.DisplayName = name
		b.session.Joined = true
	}
	joined := b.session.Joined
	b.mu.Unlock()

	b.logger.Info("authenticated", zap.String("participant_id", id), zap.Bool("joined", joined))
	return id, nil
}

// Join records the display name locally. It has no network effect.
func (b *Binding) Join(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if err := b.store.Set(KeyDisplayName, name); err != nil {
		return fmt.Errorf("persist display name: %w", err)
	}
	b.mu.Lock()
	b.session.DisplayName = name
	b.session.Joined = true
	b.mu.Unlock()
	return nil
}

// Logout forgets the display name. The anonymous id is kept so a later Join
// resumes the same identity.
func (b *Binding) Logout() error {
	if err := b.store.Remove(KeyDisplayName); err != nil {
		return fmt.Errorf("clear display name: %w", err)
	}
	b.mu.Lock()
	b.session.DisplayName = ""
	b.session.Joined = false
	b.mu.Unlock()
	return nil
}

// Session returns a copy of the current session.
func (b *Binding) Session() Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session
}

// Ready reports whether the session may issue writes.
func (b *Binding) Ready() error {
	s := b.Session()
	switch {
	case s.AnonymousID == "":
		return ErrNotAuthenticated
	case !s.Joined:
		return ErrNotJoined
	}
	return nil
}

// Actor returns the session as a lifecycle actor, or the Ready error.
func (b *Binding) Actor() (lifecycle.Actor, error) {
	if err := b.Ready(); err != nil {
		return lifecycle.Actor{}, err
	}
	s := b.Session()
	return lifecycle.Actor{ID: s.AnonymousID, Name: s.DisplayName}, nil
}
