package hub

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/config"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/domain"
	"github.com/weiawesome/wes-chat-socket/pkg/log"
)

const defaultSendBuffer = 256

type Client struct {
	ID      string
	Hub     *Hub
	Conn    *websocket.Conn
	Send    chan []byte
	Session *domain.Session
	config  config.WebSocketConfig

	// guarded by Hub.mu
	rooms  map[domain.Room]struct{}
	closed bool
}

// NewClient creates a client. conn may be nil for clients that are only
// read through Send.
func NewClient(id string, hub *Hub, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	size := cfg.SendBuffer
	if size <= 0 {
		size = defaultSendBuffer
	}
	return &Client{
		ID:      id,
		Hub:     hub,
		Conn:    conn,
		Send:    make(chan []byte, size),
		Session: domain.NewSession(id),
		config:  cfg,
		rooms:   make(map[domain.Room]struct{}),
	}
}

// UserID returns the bound user or "".
func (c *Client) UserID() string {
	return c.Session.GetUserID()
}

// ReadPump reads frames until the connection fails and hands each one to
// handler in order. It unregisters the client on return.
func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer func() {
		c.Hub.Unregister(c)
		c.closeConn()
	}()

	l := log.L().With().Str(log.FieldConnectionID, c.ID).Logger()

	if c.config.MaxMessageSize > 0 {
		c.Conn.SetReadLimit(c.config.MaxMessageSize)
	}
	c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				l.Warn().Err(err).Msg("websocket read error")
			}
			break
		}

		c.Session.UpdateActivity()
		handler(c, message)
	}
}

// WritePump drains Send to the connection and keeps it alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.closeConn()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				l := log.L()
				l.Debug().Err(err).Str(log.FieldConnectionID, c.ID).Msg("websocket write failed")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendEvent encodes an envelope and queues it for this client only.
func (c *Client) SendEvent(eventType, ackID string, payload interface{}) error {
	data, err := domain.NewEnvelope(eventType, ackID, payload)
	if err != nil {
		return err
	}
	c.Hub.send(c, data)
	return nil
}

func (c *Client) closeConn() {
	if c.Conn != nil {
		c.Conn.Close()
	}
}
