package chatsync

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nhle/teamdesk/internal/model"
)

// ErrConnClosed is returned when writing to a socket that is no longer open.
var ErrConnClosed = errors.New("chat connection closed")

// Conn is the WebSocket of a single chat. It owns one read goroutine and
// serializes writes, since gorilla/websocket allows a single writer.
type Conn struct {
	chatID int64
	ws     *websocket.Conn
	logger *zap.SugaredLogger

	writeMu sync.Mutex

	mu      sync.Mutex
	open    bool
	closing bool
	done    chan struct{}
}

func newConn(chatID int64, ws *websocket.Conn, logger *zap.SugaredLogger) *Conn {
	return &Conn{
		chatID: chatID,
		ws:     ws,
		logger: logger.With("chat_id", chatID),
		open:   true,
		done:   make(chan struct{}),
	}
}

// ChatID returns the chat this socket is bound to.
func (c *Conn) ChatID() int64 {
	return c.chatID
}

// IsOpen reports whether the socket can still carry frames.
func (c *Conn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Done is closed when the read loop exits.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// WriteJSON sends v as a single text frame.
func (c *Conn) WriteJSON(v interface{}) error {
	if !c.IsOpen() {
		return ErrConnClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.WriteJSON(v); err != nil {
		return fmt.Errorf("writing to chat %d: %w", c.chatID, err)
	}
	return nil
}

// Close sends a close frame and releases the socket. It is safe to call
// more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	c.open = false
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	if err := c.ws.Close(); err != nil {
		return fmt.Errorf("closing chat %d socket: %w", c.chatID, err)
	}
	return nil
}

// readLoop decodes inbound frames and hands messages to handle until the
// socket fails. A dropped socket is not re-dialed.
func (c *Conn) readLoop(handle func(model.Message)) {
	defer close(c.done)
	defer c.markClosed()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closing := c.closing
			c.mu.Unlock()

			if !closing && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warnw("chat socket dropped", "error", err)
			} else {
				c.logger.Debugw("chat socket closed")
			}
			return
		}

		msg, err := decodeFrame(c.chatID, data)
		if err != nil {
			if errors.Is(err, ErrServerError) {
				c.logger.Errorw("chat server rejected frame", "error", err)
			} else {
				c.logger.Debugw("ignoring chat frame", "error", err)
			}
			continue
		}

		handle(msg)
	}
}

func (c *Conn) markClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
}
