package gigs

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campus-gigs/backend/internal/collection"
	"github.com/campus-gigs/backend/internal/middleware"
	"github.com/campus-gigs/backend/internal/models"
)

type fakeStore struct {
	mu   sync.Mutex
	docs map[string]collection.Fields
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]collection.Fields)}
}

func (s *fakeStore) List(context.Context) ([]collection.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]collection.Document, 0, len(s.docs))
	for id, f := range s.docs {
		out = append(out, collection.Document{ID: id, Fields: f.Clone()})
	}
	return out, nil
}

func (s *fakeStore) Get(_ context.Context, id string) (collection.Document, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.docs[id]
	if !ok {
		return collection.Document{}, false, nil
	}
	return collection.Document{ID: id, Fields: f.Clone()}, true, nil
}

func (s *fakeStore) Create(_ context.Context, fields collection.Fields) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New().String()
	f := fields.Clone()
	f[models.FieldCreatedAt] = time.Now().UTC()
	s.docs[id] = f
	return id, nil
}

func (s *fakeStore) ConditionalUpdate(_ context.Context, id string, expected, update collection.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.docs[id]
	if !ok {
		return collection.ErrConditionFailed
	}
	for k, v := range expected {
		if !reflect.DeepEqual(f[k], v) {
			return collection.ErrConditionFailed
		}
	}
	for k, v := range update {
		f[k] = v
	}
	return nil
}

func (s *fakeStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	return nil
}

func (s *fakeStore) fields(id string) collection.Fields {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[id].Clone()
}

type countingNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *countingNotifier) NotifyChanged(string) {
	n.mu.Lock()
	n.calls++
	n.mu.Unlock()
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

const participantHeader = "X-Participant"

func newRouter(store Store, n Notifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := r.Group("/gigs", func(c *gin.Context) {
		c.Set(middleware.ContextParticipantID, c.GetHeader(participantHeader))
	})
	NewHandler(store, n, zap.NewNop()).Register(g)
	return r
}

func call(t *testing.T, r http.Handler, method, path, who string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(participantHeader, who)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createGig(t *testing.T, r http.Handler, who string) string {
	t.Helper()
	w := call(t, r, http.MethodPost, "/gigs", who, collection.Fields{
		models.FieldTitle:       "Move boxes",
		models.FieldReward:      "$20",
		models.FieldCreatorName: "Ana",
		models.FieldStatus:      "COMPLETED",
		models.FieldCreatedBy:   "someone-else",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var env struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env.Data.ID
}

func claimBody(who, name string) collection.UpdateRequest {
	return collection.UpdateRequest{
		Expected: collection.Fields{models.FieldStatus: "OPEN"},
		Update: collection.Fields{
			models.FieldStatus:        "IN_PROGRESS",
			models.FieldClaimedBy:     who,
			models.FieldClaimedByName: name,
		},
	}
}

func TestCreate_ForcesOwnershipAndStatus(t *testing.T) {
	store, n := newFakeStore(), &countingNotifier{}
	r := newRouter(store, n)

	id := createGig(t, r, "ana")
	f := store.fields(id)
	assert.Equal(t, "ana", f[models.FieldCreatedBy])
	assert.Equal(t, "OPEN", f[models.FieldStatus])
	assert.Nil(t, f[models.FieldClaimedBy])
	assert.Equal(t, 1, n.count())
}

func TestCreate_RequiresTitleAndReward(t *testing.T) {
	r := newRouter(newFakeStore(), &countingNotifier{})
	w := call(t, r, http.MethodPost, "/gigs", "ana", collection.Fields{models.FieldTitle: "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdate_ClaimThenStaleClaim(t *testing.T) {
	store, n := newFakeStore(), &countingNotifier{}
	r := newRouter(store, n)
	id := createGig(t, r, "ana")

	w := call(t, r, http.MethodPatch, "/gigs/"+id, "ben", claimBody("ben", "Ben"))
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	assert.Equal(t, "ben", store.fields(id)[models.FieldClaimedBy])

	w = call(t, r, http.MethodPatch, "/gigs/"+id, "cam", claimBody("cam", "Cam"))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ben", store.fields(id)[models.FieldClaimedBy])
	assert.Equal(t, 2, n.count())
}

// laggingStore serves reads from a frozen copy taken before later writes, so
// the handler authorizes against a view that another writer already changed.
type laggingStore struct {
	*fakeStore
	frozen map[string]collection.Fields
}

func (s *laggingStore) Get(_ context.Context, id string) (collection.Document, bool, error) {
	f, ok := s.frozen[id]
	if !ok {
		return collection.Document{}, false, nil
	}
	return collection.Document{ID: id, Fields: f.Clone()}, true, nil
}

func TestUpdate_ClientPreconditionCannotOverrideStoredState(t *testing.T) {
	store := newFakeStore()
	id := createGig(t, newRouter(store, &countingNotifier{}), "ana")
	lagging := &laggingStore{fakeStore: store, frozen: map[string]collection.Fields{id: store.fields(id)}}
	r := newRouter(lagging, &countingNotifier{})

	w := call(t, r, http.MethodPatch, "/gigs/"+id, "ben", claimBody("ben", "Ben"))
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	steal := claimBody("cam", "Cam")
	steal.Expected = collection.Fields{models.FieldStatus: "IN_PROGRESS"}
	w = call(t, r, http.MethodPatch, "/gigs/"+id, "cam", steal)
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	w = call(t, r, http.MethodPatch, "/gigs/"+id, "cam", claimBody("cam", "Cam"))
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	f := store.fields(id)
	assert.Equal(t, "ben", f[models.FieldClaimedBy])
	assert.Equal(t, "Ben", f[models.FieldClaimedByName])
}

func TestUpdate_NonStringPreconditionIsBadRequest(t *testing.T) {
	store := newFakeStore()
	r := newRouter(store, &countingNotifier{})
	id := createGig(t, r, "ana")

	for _, v := range []any{42, true, map[string]any{"$ne": "x"}} {
		body := claimBody("ben", "Ben")
		body.Expected = collection.Fields{models.FieldStatus: v}
		w := call(t, r, http.MethodPatch, "/gigs/"+id, "ben", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "%v: %s", v, w.Body.String())
	}
	assert.Equal(t, "OPEN", store.fields(id)[models.FieldStatus])
}

func TestUpdate_Forbidden(t *testing.T) {
	store := newFakeStore()
	r := newRouter(store, &countingNotifier{})
	id := createGig(t, r, "ana")

	tests := []struct {
		name string
		who  string
		body collection.UpdateRequest
	}{
		{"creator claims own gig", "ana", claimBody("ana", "Ana")},
		{"claim on behalf of another", "ben", claimBody("cam", "Cam")},
		{"non-creator completes", "ben", collection.UpdateRequest{
			Update: collection.Fields{models.FieldStatus: "COMPLETED"},
		}},
		{"immutable field", "ana", collection.UpdateRequest{
			Update: collection.Fields{models.FieldReward: "$1000"},
		}},
		{"backwards status", "ana", collection.UpdateRequest{
			Update: collection.Fields{models.FieldStatus: "OPEN"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := call(t, r, http.MethodPatch, "/gigs/"+id, tt.who, tt.body)
			assert.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
		})
	}
	assert.Equal(t, "OPEN", store.fields(id)[models.FieldStatus])
}

func TestUpdate_CompleteKeepsClaim(t *testing.T) {
	store := newFakeStore()
	r := newRouter(store, &countingNotifier{})
	id := createGig(t, r, "ana")
	require.Equal(t, http.StatusNoContent, call(t, r, http.MethodPatch, "/gigs/"+id, "ben", claimBody("ben", "Ben")).Code)

	complete := collection.UpdateRequest{
		Expected: collection.Fields{models.FieldStatus: "IN_PROGRESS"},
		Update:   collection.Fields{models.FieldStatus: "COMPLETED"},
	}
	w := call(t, r, http.MethodPatch, "/gigs/"+id, "ana", complete)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	f := store.fields(id)
	assert.Equal(t, "COMPLETED", f[models.FieldStatus])
	assert.Equal(t, "ben", f[models.FieldClaimedBy])

	w = call(t, r, http.MethodPatch, "/gigs/"+id, "ana", complete)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUpdate_MissingGigConflicts(t *testing.T) {
	r := newRouter(newFakeStore(), &countingNotifier{})
	w := call(t, r, http.MethodPatch, "/gigs/"+uuid.New().String(), "ben", claimBody("ben", "Ben"))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDelete(t *testing.T) {
	store, n := newFakeStore(), &countingNotifier{}
	r := newRouter(store, n)
	id := createGig(t, r, "ana")

	assert.Equal(t, http.StatusForbidden, call(t, r, http.MethodDelete, "/gigs/"+id, "ben", nil).Code)
	assert.Equal(t, http.StatusNoContent, call(t, r, http.MethodDelete, "/gigs/"+id, "ana", nil).Code)
	assert.Equal(t, http.StatusNoContent, call(t, r, http.MethodDelete, "/gigs/"+id, "ana", nil).Code)
	assert.Empty(t, store.fields(id))
	assert.Equal(t, 2, n.count())
}

func TestList(t *testing.T) {
	r := newRouter(newFakeStore(), &countingNotifier{})
	createGig(t, r, "ana")
	createGig(t, r, "ben")

	w := call(t, r, http.MethodGet, "/gigs", "ana", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var env struct {
		Data []collection.Document `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Len(t, env.Data, 2)
}
