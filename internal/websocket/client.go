package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"collab-service/internal/collab"
)

// Time allowed to write a message to the peer
const writeWait = 10 * time.Second

var (
	ErrClientDisconnected = errors.New("client disconnected")
	ErrSendBufferFull     = errors.New("send buffer full")
)

// ClientConfig bounds one connection.
type ClientConfig struct {
	SendBuffer     int
	MaxMessageSize int64
	PongWait       time.Duration
}

// pingPeriod must be less than PongWait
func (c ClientConfig) pingPeriod() time.Duration {
	return (c.PongWait * 9) / 10
}

// Client is one websocket connection. Inbound frames are handled in order on
// the read pump goroutine; outbound frames are queued on send and written by
// the write pump.
type Client struct {
	id       string
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	identity collab.Identity
	cfg      ClientConfig

	ctx       context.Context
	cancel    context.CancelFunc
	closed    int32
	closeOnce sync.Once
	closing   chan closeRequest

	wg sync.WaitGroup
}

func NewClient(hub *Hub, conn *websocket.Conn, identity collab.Identity, cfg ClientConfig) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		id:       uuid.New().String(),
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, cfg.SendBuffer),
		identity: identity,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		closing:  make(chan closeRequest, 1),
	}
}

type closeRequest struct {
	code   int
	reason string
	done   chan struct{}
}

func (c *Client) isClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

// close cancels the client context and the underlying connection, which ends
// both pumps. Safe to call from any goroutine, any number of times.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		atomic.StoreInt32(&c.closed, 1)
		c.cancel()
		if err := c.conn.Close(); err != nil {
			slog.Debug("Error closing connection", "clientID", c.id, "userID", c.identity.UserID, "error", err)
		}
		slog.Debug("Client marked as closed", "clientID", c.id, "userID", c.identity.UserID)
	})
}

// closeWithReason sends a close frame before closing the connection.
func (c *Client) closeWithReason(code int, reason string) {
	c.writeCloseFrame(code, reason)
	c.close()
}

func (c *Client) writeCloseFrame(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		slog.Debug("Error sending close frame", "clientID", c.id, "userID", c.identity.UserID, "error", err)
	}
}

// closeAfterFlush has the write pump deliver everything already queued, then
// the close frame, before the connection is closed.
func (c *Client) closeAfterFlush(code int, reason string) {
	req := closeRequest{code: code, reason: reason, done: make(chan struct{})}
	select {
	case c.closing <- req:
	default:
		c.closeWithReason(code, reason)
		return
	}

	select {
	case <-req.done:
	case <-c.ctx.Done():
	case <-time.After(writeWait):
	}
	c.close()
}

// Send implements collab.Sender. It never blocks: a client whose buffer is
// full is too slow to keep up and gets disconnected.
func (c *Client) Send(evt collab.Event) error {
	msg, err := NewEventMessage(evt)
	if err != nil {
		return err
	}
	return c.SendMessage(msg)
}

func (c *Client) SendMessage(message *Message) error {
	if c.isClosed() {
		return ErrClientDisconnected
	}

	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	default:
		slog.Warn("Send buffer full, closing client", "clientID", c.id, "userID", c.identity.UserID)
		go c.close()
		return ErrSendBufferFull
	}
}

func (c *Client) sendError(code, message string) {
	if err := c.SendMessage(NewErrorMessage(code, message)); err != nil {
		slog.Debug("Failed to send error message", "clientID", c.id, "userID", c.identity.UserID, "error", err)
	}
}

func (c *Client) readPump() {
	defer c.wg.Done()
	defer func() {
		c.close()
		c.hub.unregisterClient(c)
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		if c.isClosed() {
			return websocket.ErrCloseSent
		}
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	slog.Debug("ReadPump started", "clientID", c.id, "userID", c.identity.UserID)

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) && !c.isClosed() {
				slog.Error("WebSocket error", "clientID", c.id, "userID", c.identity.UserID, "error", err)
			} else {
				slog.Debug("WebSocket connection closed", "clientID", c.id, "userID", c.identity.UserID, "error", err)
			}
			return
		}

		if !c.hub.handleClientMessage(c.ctx, c, messageBytes) {
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.pingPeriod())
	defer func() {
		ticker.Stop()
		slog.Debug("WritePump finished", "clientID", c.id, "userID", c.identity.UserID)
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Debug("Error writing message", "clientID", c.id, "userID", c.identity.UserID, "error", err)
				c.close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Debug("Error sending ping", "clientID", c.id, "userID", c.identity.UserID, "error", err)
				c.close()
				return
			}

		case req := <-c.closing:
			c.flush()
			c.writeCloseFrame(req.code, req.reason)
			close(req.done)
			return

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) flush() {
	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Debug("Error writing message", "clientID", c.id, "userID", c.identity.UserID, "error", err)
				return
			}
		default:
			return
		}
	}
}

// waitForGoroutines waits for both pumps to finish, up to timeout.
func (c *Client) waitForGoroutines(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		slog.Warn("Timeout waiting for goroutines to finish", "clientID", c.id, "userID", c.identity.UserID, "timeout", timeout)
	}
}
