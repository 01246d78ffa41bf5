package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campus-gigs/backend/internal/assistant"
	"github.com/campus-gigs/backend/internal/collection"
	"github.com/campus-gigs/backend/internal/gigsync"
	"github.com/campus-gigs/backend/internal/identity"
	"github.com/campus-gigs/backend/internal/kvstore"
	"github.com/campus-gigs/backend/internal/lifecycle"
)

type fixedProvider string

func (p fixedProvider) AuthenticateAnonymous(context.Context) (string, error) { return string(p), nil }

type profile struct {
	app *App
	out *bytes.Buffer
}

func newProfile(id string, ch collection.Channel) *profile {
	out := &bytes.Buffer{}
	return &profile{
		out: out,
		app: &App{
			Binding:      identity.NewBinding(fixedProvider(id), kvstore.NewMemory(), nil),
			Engine:       gigsync.NewEngine(ch),
			Machine:      lifecycle.NewMachine(ch, nil),
			Out:          out,
			SnapshotWait: time.Second,
		},
	}
}

func (p *profile) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	p.out.Reset()
	err := p.app.Run(context.Background(), args)
	return p.out.String(), err
}

var postedID = regexp.MustCompile(`Posted (\S+)\.`)

func TestApp_PostClaimComplete(t *testing.T) {
	ch := collection.NewMemory()
	ana := newProfile("ana", ch)
	ben := newProfile("ben", ch)

	_, err := ana.run(t, "post", "-title", "Move boxes", "-reward", "20")
	assert.ErrorIs(t, err, identity.ErrNotJoined)

	_, err = ana.run(t, "join", "Ana")
	require.NoError(t, err)
	_, err = ben.run(t, "join", "Ben")
	require.NoError(t, err)

	out, err := ana.run(t, "post", "-title", "Move boxes", "-reward", "20", "-location", "Dorm B")
	require.NoError(t, err)
	m := postedID.FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	id := m[1]

	out, err = ben.run(t, "list", "-open")
	require.NoError(t, err)
	assert.Contains(t, out, "Move boxes")
	assert.Contains(t, out, "claim")

	_, err = ana.run(t, "claim", id)
	assert.ErrorIs(t, err, lifecycle.ErrForbidden)

	_, err = ben.run(t, "claim", id)
	require.NoError(t, err)

	out, err = ana.run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "IN PROGRESS")
	assert.Contains(t, out, "Ben")

	_, err = ben.run(t, "claim", id)
	assert.ErrorIs(t, err, lifecycle.ErrStaleTransition)

	_, err = ana.run(t, "complete", id)
	require.NoError(t, err)
	out, err = ben.run(t, "list", "-mine")
	require.NoError(t, err)
	assert.Contains(t, out, "COMPLETED")
	assert.Contains(t, out, "done")

	_, err = ana.run(t, "delete", id)
	require.NoError(t, err)
	out, err = ben.run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No gigs yet.")
}

func TestApp_IdentityCommands(t *testing.T) {
	p := newProfile("p-1", collection.NewMemory())

	out, err := p.run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "p-1")
	assert.Contains(t, out, "(not joined)")

	_, err = p.run(t, "join", "  ")
	assert.ErrorIs(t, err, identity.ErrEmptyName)

	_, err = p.run(t, "join", "Cam", "Lee")
	require.NoError(t, err)
	out, err = p.run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Cam Lee")

	_, err = p.run(t, "logout")
	require.NoError(t, err)
	out, err = p.run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "(not joined)")
}

type noGigs struct{}

func (noGigs) List(context.Context) ([]collection.Document, error) { return nil, nil }

// assistantServer serves the assistant routes with no model configured.
func assistantServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := assistant.NewHandler(assistant.NewService(nil, nil), noGigs{}, zap.NewNop())
	r.POST("/assistant/draft", h.Draft)
	r.GET("/assistant/pulse", h.Pulse)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestApp_AssistantFallbacks(t *testing.T) {
	p := newProfile("p-1", collection.NewMemory())
	p.app.Assistant = assistant.NewRemote(assistantServer(t).URL, nil, nil)

	out, err := p.run(t, "draft", "Tutor", "calc")
	require.NoError(t, err)
	assert.Equal(t, assistant.FallbackNoKey, strings.TrimSpace(out))

	out, err = p.run(t, "pulse")
	require.NoError(t, err)
	assert.Equal(t, assistant.QuietCampus, strings.TrimSpace(out))
}

func TestApp_Usage(t *testing.T) {
	p := newProfile("p-1", collection.NewMemory())
	out, err := p.run(t)
	require.NoError(t, err)
	assert.Contains(t, out, "usage: gigctl")

	_, err = p.run(t, "dance")
	assert.ErrorIs(t, err, ErrUsage)

	_, err = p.run(t, "claim")
	assert.ErrorIs(t, err, ErrUsage)
}
