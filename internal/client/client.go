package client

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/devaloi/roomrelay/internal/domain"
	"github.com/devaloi/roomrelay/internal/hub"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Voice clips arrive inline as
	// base64.
	maxMessageSize = 4 << 20

	sendBuffer = 256
)

// Client is a WebSocket connection attached to the hub.
type Client struct {
	id        string
	hub       *hub.Hub
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	claimed   string
	log       *slog.Logger
}

// New creates a new Client. claimed is the username carried by a verified
// token, or empty.
func New(h *hub.Hub, conn *websocket.Conn, claimed string, log *slog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:      id,
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		claimed: claimed,
		log:     log.With("conn", id),
	}
}

// ID returns the connection id.
func (c *Client) ID() string {
	return c.id
}

// Send queues a message to be sent to the WebSocket client. It never blocks.
func (c *Client) Send(data []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- data:
	default:
		c.log.Warn("send buffer full, dropping message")
	}
}

// Start registers the client with the hub and runs both pumps.
func (c *Client) Start() {
	c.hub.Connect(c, c.claimed)
	go c.WritePump()
	go c.ReadPump()
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// ReadPump reads frames from the WebSocket connection and dispatches them to
// the hub.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Disconnect(c)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Info("read error", "err", err)
			}
			return
		}
		c.handleMessage(data)
	}
}

// WritePump writes messages from the send channel to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// handleMessage decodes one frame. Malformed or unknown frames are dropped:
// the protocol has no generic error event.
func (c *Client) handleMessage(data []byte) {
	cmd, err := domain.DecodeCommand(data)
	if err != nil {
		c.log.Debug("frame dropped", "err", err)
		return
	}
	c.hub.Dispatch(c, cmd)
}
