package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"nhooyr.io/websocket"
)

// StateProviderFunc returns the snapshot sent to new clients and to
// clients asking for a re-sync, as JSON bytes.
type StateProviderFunc func() ([]byte, error)

// Hub manages WebSocket connections and broadcasts messages to all clients.
type Hub struct {
	clients       map[*Client]bool
	broadcast     chan outbound
	register      chan *Client
	unregister    chan *Client
	logger        *slog.Logger
	mu            sync.RWMutex
	stateProvider StateProviderFunc
}

// Client represents a single WebSocket connection.
type Client struct {
	hub  *Hub
	send chan []byte
	conn *websocket.Conn

	mu      sync.Mutex
	session string // empty: every session
	closed  bool
}

// outbound is a queued broadcast. Messages without a session go to
// every client.
type outbound struct {
	session string
	data    []byte
}

// close ends the client's send queue. The hub calls it with h.mu held.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) subscribe(sessionID string) {
	c.mu.Lock()
	c.session = sessionID
	c.mu.Unlock()
}

func (c *Client) wants(sessionID string) bool {
	if sessionID == "" {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session == "" || c.session == sessionID
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// SetStateProvider sets the function called to build the snapshot for
// new or reconnecting clients.
func (h *Hub) SetStateProvider(fn StateProviderFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stateProvider = fn
}

func (h *Hub) snapshot() ([]byte, bool, error) {
	h.mu.RLock()
	fn := h.stateProvider
	h.mu.RUnlock()
	if fn == nil {
		return nil, false, nil
	}
	data, err := fn()
	return data, true, err
}

// Run starts the hub's event loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("websocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
			}
			h.mu.Unlock()
			h.logger.Debug("websocket client disconnected")

		case out := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.wants(out.session) {
					continue
				}
				select {
				case client.send <- out.data:
				default:
					client.close()
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends a message to all connected clients. The message is
// dropped when the broadcast queue is full.
func (h *Hub) Broadcast(message []byte) {
	h.enqueue(outbound{data: message})
}

func (h *Hub) enqueue(out outbound) {
	select {
	case h.broadcast <- out:
	default:
		h.logger.Warn("websocket broadcast queue full, dropping message")
	}
}

// BroadcastNodeChanged tells clients subscribed to the session which of
// its nodes changed.
func (h *Hub) BroadcastNodeChanged(sessionID string, nodes any) {
	msg, err := NewMessage(MsgNodeChanged, NodeChanged{SessionID: sessionID, Nodes: nodes})
	if err != nil {
		h.logger.Error("failed to create node_changed message", "error", err)
		return
	}
	h.enqueue(outbound{session: sessionID, data: msg})
}

// BroadcastNotice forwards a session notice to the session's subscribers.
func (h *Hub) BroadcastNotice(sessionID string, notice any) {
	msg, err := NewMessage(MsgNotice, NoticePayload{SessionID: sessionID, Notice: notice})
	if err != nil {
		h.logger.Error("failed to create notice message", "error", err)
		return
	}
	h.enqueue(outbound{session: sessionID, data: msg})
}

// BroadcastError broadcasts an error to all clients.
func (h *Hub) BroadcastError(errMsg string) {
	msg, err := NewMessage(MsgError, map[string]string{"message": errMsg})
	if err != nil {
		return
	}
	h.Broadcast(msg)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastJSON broadcasts any JSON-serializable payload with the given message type.
func (h *Hub) BroadcastJSON(msgType MessageType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal broadcast payload", "error", err)
		return
	}
	msg, err := NewMessage(msgType, json.RawMessage(data))
	if err != nil {
		h.logger.Error("failed to create broadcast message", "error", err)
		return
	}
	h.Broadcast(msg)
}
