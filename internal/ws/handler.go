package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"nhooyr.io/websocket"
)

const (
	writeTimeout = 10 * time.Second
	pingPeriod   = 30 * time.Second

	// Clients only send small control messages.
	maxClientMessage = 4 << 10
)

// HandleWebSocket accepts a client connection, queues the current
// snapshot for it and serves it until either side hangs up.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}
	conn.SetReadLimit(maxClientMessage)

	c := &Client{hub: h, send: make(chan []byte, 256), conn: conn}
	h.register <- c
	c.queueSnapshot()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go c.writeLoop(ctx)

	err = c.readLoop(ctx)
	h.unregister <- c
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		h.logger.Debug("websocket client left")
		conn.Close(websocket.StatusNormalClosure, "")
	default:
		h.logger.Debug("websocket client dropped", "error", err)
		conn.Close(websocket.StatusInternalError, "")
	}
}

// readLoop handles client control messages until the connection fails.
func (c *Client) readLoop(ctx context.Context) error {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return err
		}
		if err := c.handle(data); err != nil {
			c.queue(errorMessage(err))
		}
	}
}

func (c *Client) handle(data []byte) error {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("malformed message: %w", err)
	}
	switch msg.Type {
	case MsgSync:
		c.queueSnapshot()
	case MsgSubscribe:
		var sub Subscribe
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &sub); err != nil {
				return fmt.Errorf("malformed subscribe payload: %w", err)
			}
		}
		c.subscribe(sub.SessionID)
		c.hub.logger.Debug("websocket client subscribed", "session", sub.SessionID)
	default:
		return fmt.Errorf("unsupported message type %q", msg.Type)
	}
	return nil
}

func (c *Client) queueSnapshot() {
	data, ok, err := c.hub.snapshot()
	if !ok {
		return
	}
	if err != nil {
		c.hub.logger.Warn("building websocket snapshot", "error", err)
		c.queue(errorMessage(errors.New("snapshot unavailable")))
		return
	}
	msg, err := NewMessage(MsgSnapshot, json.RawMessage(data))
	if err != nil {
		c.hub.logger.Error("failed to create snapshot message", "error", err)
		return
	}
	c.queue(msg)
}

// queue hands msg to the write loop. A client with a full queue misses
// the message; it can ask for a snapshot to catch up.
func (c *Client) queue(msg []byte) {
	if msg == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.hub.logger.Warn("websocket client queue full, dropping message")
	}
}

func errorMessage(err error) []byte {
	msg, _ := NewMessage(MsgError, map[string]string{"message": err.Error()})
	return msg
}

// writeLoop drains the send queue and keeps the connection alive. It
// returns when the hub closes the queue or ctx ends.
func (c *Client) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		var err error
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			err = c.withDeadline(ctx, func(ctx context.Context) error {
				return c.conn.Write(ctx, websocket.MessageText, msg)
			})
		case <-ticker.C:
			err = c.withDeadline(ctx, c.conn.Ping)
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func (c *Client) withDeadline(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return fn(ctx)
}
