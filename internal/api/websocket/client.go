package websocket

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenUnitSync/internal/auth"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Time allowed for the auth message
	authWait = 10 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	// Send channel buffer size
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// clientMessage is what clients may send: auth (first message only),
// subscribe with a run_id, and unsubscribe.
type clientMessage struct {
	Type  string `json:"type"`
	Token string `json:"token,omitempty"`
	RunID string `json:"run_id,omitempty"`
}

type controlMessage struct {
	Type        string            `json:"type"`
	Timestamp   time.Time         `json:"timestamp"`
	Permissions []auth.Permission `json:"permissions,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	RunID       string            `json:"run_id,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *zap.Logger

	mu          sync.Mutex
	runFilter   uuid.UUID // uuid.Nil = alle Runs
	permissions []auth.Permission
}

func (c *Client) wants(runID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runFilter == uuid.Nil || runID == uuid.Nil || c.runFilter == runID
}

// authenticate reads the first message. Until it succeeds readPump is the
// only writer on the connection.
func (c *Client) authenticate() bool {
	c.conn.SetReadDeadline(time.Now().Add(authWait))

	var msg clientMessage
	if err := c.conn.ReadJSON(&msg); err != nil {
		c.logger.Debug("WebSocket auth read failed", zap.Error(err))
		return false
	}

	if msg.Type != "auth" || msg.Token == "" {
		c.writeControl(controlMessage{Type: "auth_failed", Reason: "First message must be authentication"})
		return false
	}

	_, permissions, err := c.hub.validator.ValidateToken(msg.Token)
	if err != nil {
		c.logger.Warn("WebSocket authentication failed",
			zap.Error(err),
			zap.String("remote_addr", c.conn.RemoteAddr().String()))
		c.writeControl(controlMessage{Type: "auth_failed", Reason: "Invalid or expired token"})
		return false
	}

	c.permissions = permissions
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	return c.writeControl(controlMessage{Type: "auth_success", Permissions: permissions}) == nil
}

func (c *Client) writeControl(msg controlMessage) error {
	msg.Timestamp = time.Now()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

// readPump handles reading messages from the WebSocket connection
func (c *Client) readPump() {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	if !c.authenticate() {
		return
	}

	// Erst nach erfolgreicher Auth registrieren
	if !c.hub.registerClient(c) {
		return
	}
	defer c.hub.unregisterClient(c)

	c.logger.Info("WebSocket client authenticated",
		zap.String("remote_addr", c.conn.RemoteAddr().String()),
		zap.Any("permissions", c.permissions))

	go c.writePump()

	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg clientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error",
					zap.Error(err),
					zap.String("remote_addr", c.conn.RemoteAddr().String()))
			}
			return
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg clientMessage) {
	switch msg.Type {
	case "subscribe":
		runID, err := uuid.Parse(msg.RunID)
		if err != nil {
			c.logger.Debug("Ignoring subscribe with invalid run id", zap.String("run_id", msg.RunID))
			return
		}
		c.mu.Lock()
		c.runFilter = runID
		c.mu.Unlock()
	case "unsubscribe":
		c.mu.Lock()
		c.runFilter = uuid.Nil
		c.mu.Unlock()
	default:
		c.logger.Debug("Received unknown client message",
			zap.String("remote_addr", c.conn.RemoteAddr().String()),
			zap.String("type", msg.Type))
	}
}

// writePump handles writing messages to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs handles WebSocket upgrade requests
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade error",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		logger: hub.logger,
	}

	go client.readPump()
}
