package realtime

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/campus-gigs/backend/internal/collection"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage = collection.WireMessage

// Client is a single WebSocket connection subscribed to one collection.
// Only the newest undelivered snapshot is kept; a slow reader skips
// intermediate states but always ends on the latest.
type Client struct {
	ID            string
	Collection    string
	ParticipantID string
	hub           *Hub
	conn          *websocket.Conn
	logger        *zap.Logger

	mu      sync.Mutex
	pending *WSMessage
	wake    chan struct{}
	done    chan struct{}
}

func newClient(hub *Hub, conn *websocket.Conn, name, participantID string, logger *zap.Logger) *Client {
	return &Client{
		ID:            uuid.New().String(),
		Collection:    name,
		ParticipantID: participantID,
		hub:           hub,
		conn:          conn,
		logger:        logger,
		wake:          make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
}

func (c *Client) offer(msg WSMessage) {
	c.mu.Lock()
	c.pending = &msg
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Client) take() (WSMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return WSMessage{}, false
	}
	msg := *c.pending
	c.pending = nil
	return msg, true
}

// ServeWs handles the WebSocket upgrade and runs the client loop.
// validate returns the participant ID for a token.
func ServeWs(hub *Hub, logger *zap.Logger, validate func(token string) (string, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Query("collection")
		token := c.Query("token")
		if name == "" || token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "collection and token required"})
			return
		}
		participantID, err := validate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if _, err := hub.Snapshot(c.Request.Context(), name); err != nil {
			if errors.Is(err, collection.ErrUnknownCollection) {
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown collection"})
				return
			}
			logger.Error("load snapshot", zap.String("collection", name), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "snapshot unavailable"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := newClient(hub, conn, name, participantID, logger)
		if err := hub.Register(client); err != nil {
			logger.Error("register client", zap.String("collection", name), zap.Error(err))
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "snapshot unavailable"),
				time.Now().Add(time.Second))
			_ = conn.Close()
			return
		}
		go client.writePump()
		client.readPump()
	}
}

// readPump only watches for close and pong frames; subscribers never send events.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		close(c.done)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg json.RawMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
			msg, ok := c.take()
			if !ok {
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
