package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/thereayou/circlechat/internal/models"
	"golang.org/x/time/rate"
)

const (
	writeWait = 10 * time.Second

	pongWait = 60 * time.Second

	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512 * 1024

	sendBuffer = 256
)

// State is the protocol state of a connection.
type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateGrace
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateGrace:
		return "grace"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handler processes the inbound frames of a client.
type Handler interface {
	HandleMessage(ctx context.Context, client *Client, env Envelope)
	Disconnect(client *Client)
}

type Client struct {
	ID       uuid.UUID
	Identity models.Identity

	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	log     *slog.Logger

	mu     sync.Mutex
	state  State
	closed bool
}

// NewClient wraps conn. conn may be nil, in which case frames are only
// queued and can be read from Outbound.
func NewClient(conn *websocket.Conn, identity models.Identity, limiter *rate.Limiter, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	id := uuid.New()
	return &Client{
		ID:       id,
		Identity: identity,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		limiter:  limiter,
		log:      log.With("conn_id", id, "user_id", identity.ID),
		state:    StateConnecting,
	}
}

func (c *Client) UserID() uuid.UUID {
	return c.Identity.ID
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) SetState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	c.state = s
}

// Outbound exposes the frame queue.
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

// Send encodes ev and queues it without blocking.
func (c *Client) Send(ev Event) error {
	frame, err := Encode(ev)
	if err != nil {
		return err
	}
	return c.enqueue(frame)
}

func (c *Client) SendError(message string) {
	if err := c.Send(MessageError{Error: message}); err != nil {
		c.log.Debug("drop error frame", "error", err)
	}
}

func (c *Client) enqueue(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrClientQueueFull
	}
}

// close stops the write pump. It is safe to call more than once.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Allow applies the inbound rate limit.
func (c *Client) Allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

// ReadPump feeds inbound frames to handler until the transport fails. It
// calls handler.Disconnect exactly once on return.
func (c *Client) ReadPump(ctx context.Context, handler Handler) {
	defer func() {
		handler.Disconnect(c)
		c.conn.Close()
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Info("websocket read failed", "error", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			c.SendError(ErrInvalidMessage.Error())
			continue
		}
		if !c.Allow() {
			c.SendError(ErrRateLimited.Error())
			continue
		}
		handler.HandleMessage(ctx, c, env)
	}
}

// WritePump drains the queue to the transport and keeps the connection alive
// with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

			// Flush what queued up meanwhile, one frame per message.
			n := len(c.send)
			for i := 0; i < n; i++ {
				frame, ok := <-c.send
				if !ok {
					return
				}
				if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
