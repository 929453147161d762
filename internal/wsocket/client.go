package wsocket

import (
	"encoding/json"
	"sync"
	"time"

	apperrors "consult_gateway_go_backend/internal/errors"
	"consult_gateway_go_backend/internal/models"
	"consult_gateway_go_backend/internal/services"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
)

// Client is one admitted connection. Writes go through the send buffer and
// are performed by writePump only.
type Client struct {
	id       string
	identity models.Identity
	party    services.Party
	conn     *websocket.Conn
	logger   zerolog.Logger

	send      chan []byte
	done      chan struct{}
	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, identity models.Identity, party services.Party, buffer int, logger zerolog.Logger) *Client {
	if buffer < 1 {
		buffer = 32
	}
	id := uuid.NewString()
	return &Client{
		id:       id,
		identity: identity,
		party:    party,
		conn:     conn,
		logger:   logger.With().Str("connection_id", id).Str("identity_id", identity.ID).Logger(),
		send:     make(chan []byte, buffer),
		done:     make(chan struct{}),
	}
}

func (c *Client) ID() string                { return c.id }
func (c *Client) Identity() models.Identity { return c.identity }

// enqueue queues a frame without blocking. A frame for a closed or saturated
// connection is dropped.
func (c *Client) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.logger.Warn().Msg("Send buffer full, dropping frame")
		return false
	}
}

func (c *Client) emit(event, ack string, data interface{}) bool {
	frame, err := encode(event, ack, data)
	if err != nil {
		c.logger.Error().Err(err).Str("event", event).Msg("Failed to encode frame")
		return false
	}
	return c.enqueue(frame)
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	})
}

// readPump decodes frames until the connection fails and hands each one to
// dispatch on the reading goroutine.
func (c *Client) readPump(pingInterval time.Duration, dispatch func(*Client, Envelope)) {
	pongWait := pingInterval * 2
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("Connection closed unexpectedly")
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			c.emit(EventAck, "", Ack{Success: false, Message: "Malformed frame", Code: string(apperrors.ErrorTypeValidation)})
			continue
		}
		dispatch(c, env)
	}
}

func (c *Client) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug().Err(err).Msg("Write failed")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
