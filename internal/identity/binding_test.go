package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-gigs/backend/internal/kvstore"
	"github.com/campus-gigs/backend/internal/lifecycle"
)

type stubProvider struct {
	id  string
	err error
}

func (p *stubProvider) AuthenticateAnonymous(context.Context) (string, error) {
	return p.id, p.err
}

func TestBinding_AuthenticateFailureLeavesNotReady(t *testing.T) {
	b := NewBinding(&stubProvider{err: errors.New("connection refused")}, kvstore.NewMemory(), nil)

	_, err := b.Authenticate(context.Background())
	require.ErrorIs(t, err, ErrAuthUnavailable)
	assert.ErrorIs(t, b.Ready(), ErrNotAuthenticated)
	assert.Empty(t, b.Session().AnonymousID)
}

func TestBinding_JoinLogoutKeepsAnonymousID(t *testing.T) {
	store := kvstore.NewMemory()
	b := NewBinding(&stubProvider{id: "anon-1"}, store, nil)

	id, err := b.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "anon-1", id)
	assert.ErrorIs(t, b.Ready(), ErrNotJoined)

	assert.ErrorIs(t, b.Join("   "), ErrEmptyName)
	require.NoError(t, b.Join("  Ana  "))
	require.NoError(t, b.Ready())
	assert.Equal(t, Session{AnonymousID: "anon-1", DisplayName: "Ana", Joined: true}, b.Session())
	actor, err := b.Actor()
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Actor{ID: "anon-1", Name: "Ana"}, actor)

	v, ok, _ := store.Get(KeyDisplayName)
	assert.True(t, ok)
	assert.Equal(t, "Ana", v)

	require.NoError(t, b.Logout())
	assert.Equal(t, Session{AnonymousID: "anon-1"}, b.Session())
	_, err = b.Actor()
	assert.ErrorIs(t, err, ErrNotJoined)
	_, ok, _ = store.Get(KeyDisplayName)
	assert.False(t, ok)
}

func TestBinding_RestoresJoinedStateAfterReload(t *testing.T) {
	store := kvstore.NewMemory()
	require.NoError(t, store.Set(KeyDisplayName, "Ben"))

	b := NewBinding(&stubProvider{id: "anon-2"}, store, nil)
	_, err := b.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Session{AnonymousID: "anon-2", DisplayName: "Ben", Joined: true}, b.Session())
}

func TestHTTPProvider_PersistsAndResumesCredential(t *testing.T) {
	var calls []AnonymousRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/anonymous", r.URL.Path)
		var req AnonymousRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		calls = append(calls, req)

		data := AnonymousResponse{ID: "p-1", Token: "tok"}
		if req.ID == "" {
			data.Secret = "s-1"
		} else {
			data.Resumed = true
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
	}))
	defer srv.Close()

	store := kvstore.NewMemory()
	p := NewHTTPProvider(srv.URL, store)

	id, err := p.AuthenticateAnonymous(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "p-1", id)
	assert.Equal(t, "tok", p.Token())

	id, err = p.AuthenticateAnonymous(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "p-1", id)

	require.Len(t, calls, 2)
	assert.Equal(t, AnonymousRequest{}, calls[0])
	assert.Equal(t, AnonymousRequest{ID: "p-1", Secret: "s-1"}, calls[1])
}

func TestHTTPProvider_Unreachable(t *testing.T) {
	p := NewHTTPProvider("http://127.0.0.1:1", kvstore.NewMemory())
	b := NewBinding(p, kvstore.NewMemory(), nil)
	_, err := b.Authenticate(context.Background())
	assert.ErrorIs(t, err, ErrAuthUnavailable)
}
