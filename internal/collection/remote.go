package collection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// EventSnapshot is the WebSocket event carrying a full collection snapshot.
	EventSnapshot = "snapshot"

	reconnectBackoff = 3 * time.Second
	writeTimeout     = 15 * time.Second
)

// SnapshotMessage is the payload of an EventSnapshot message.
type SnapshotMessage struct {
	Collection string     `json:"collection"`
	Documents  []Document `json:"documents"`
}

// WireMessage is the WebSocket message envelope.
type WireMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// UpdateRequest is the body of a conditional update.
type UpdateRequest struct {
	Expected Fields `json:"expected"`
	Update   Fields `json:"update"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Remote is a Channel backed by the gigs server: writes go over HTTP and
// snapshots arrive over a WebSocket.
type Remote struct {
	baseURL string
	token   func() string
	http    *http.Client
	dialer  *websocket.Dialer
	logger  *zap.Logger
}

// NewRemote creates a remote channel. token returns the current bearer token.
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
		http:    &http.Client{Timeout: writeTimeout},
		dialer:  websocket.DefaultDialer,
		logger:  logger,
	}
}

// Create implements Channel.
func (r *Remote) Create(ctx context.Context, collection string, fields Fields) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := r.do(ctx, http.MethodPost, "/"+collection, fields, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// ConditionalUpdate implements Channel.
func (r *Remote) ConditionalUpdate(ctx context.Context, collection, id string, expected, update Fields) error {
	body := UpdateRequest{Expected: expected, Update: update}
	return r.do(ctx, http.MethodPatch, "/"+collection+"/"+url.PathEscape(id), body, nil)
}

// Delete implements Channel.
func (r *Remote) Delete(ctx context.Context, collection, id string) error {
	return r.do(ctx, http.MethodDelete, "/"+collection+"/"+url.PathEscape(id), nil, nil)
}

func (r *Remote) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tok := r.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil
	case http.StatusConflict:
		return ErrConditionFailed
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrUnknownCollection, path)
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: status %d: decode: %w", method, path, resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 || !env.Success {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, env.Error)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Subscribe implements Channel. The first snapshot is awaited only as far as
// the connection handshake; a dropped socket is redialed until Cancel.
func (r *Remote) Subscribe(ctx context.Context, collection string, fn SnapshotHandler) (Subscription, error) {
	conn, err := r.dial(ctx, collection)
	if err != nil {
		return nil, err
	}
	subCtx, cancel := context.WithCancel(context.Background())
	s := &remoteSub{id: uuid.New().String(), cancel: cancel}
	s.setConn(conn)
	go r.listen(subCtx, s, collection, fn)
	r.logger.Debug("subscribed", zap.String("collection", collection), zap.String("subscription_id", s.id))
	return s, nil
}

func (r *Remote) wsURL(collection string) (string, error) {
	u, err := url.Parse(r.baseURL + "/ws")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("collection", collection)
	q.Set("token", r.token())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (r *Remote) dial(ctx context.Context, collection string) (*websocket.Conn, error) {
	target, err := r.wsURL(collection)
	if err != nil {
		return nil, fmt.Errorf("websocket url: %w", err)
	}
	conn, _, err := r.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}
	return conn, nil
}

func (r *Remote) listen(ctx context.Context, s *remoteSub, collection string, fn SnapshotHandler) {
	for {
		conn := s.currentConn()
		for {
			var msg WireMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if ctx.Err() == nil {
					r.logger.Warn("subscription dropped", zap.String("subscription_id", s.id), zap.Error(err))
				}
				break
			}
			if msg.Event != EventSnapshot {
				continue
			}
			var snap SnapshotMessage
			if err := json.Unmarshal(msg.Data, &snap); err != nil {
				r.logger.Warn("invalid snapshot", zap.Error(err))
				continue
			}
			if ctx.Err() != nil {
				return
			}
			fn(snap.Documents)
		}
		_ = conn.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectBackoff):
			}
			next, err := r.dial(ctx, collection)
			if err != nil {
				r.logger.Warn("redial failed", zap.String("subscription_id", s.id), zap.Error(err))
				continue
			}
			if !s.setConn(next) {
				_ = next.Close()
				return
			}
			break
		}
	}
}

type remoteSub struct {
	id     string
	cancel context.CancelFunc

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func (s *remoteSub) ID() string { return s.id }

func (s *remoteSub) setConn(c *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conn = c
	return true
}

func (s *remoteSub) currentConn() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *remoteSub) Cancel() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()
	s.cancel()
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}
}
