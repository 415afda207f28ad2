package ws

import "encoding/json"

// MessageType identifies the kind of WebSocket message.
type MessageType string

const (
	MsgNodeChanged MessageType = "node_changed"
	MsgNotice      MessageType = "notice"
	MsgError       MessageType = "error"
	MsgSync        MessageType = "sync"
	MsgSnapshot    MessageType = "snapshot"
	MsgSubscribe   MessageType = "subscribe"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NodeChanged is the payload of a node_changed message. Nodes holds the
// current view of every node whose state changed.
type NodeChanged struct {
	SessionID string `json:"session_id"`
	Nodes     any    `json:"nodes"`
}

// NoticePayload is the payload of a notice message.
type NoticePayload struct {
	SessionID string `json:"session_id"`
	Notice    any    `json:"notice"`
}

// Subscribe is sent by a client to limit node_changed and notice
// messages to one session. An empty SessionID subscribes to all sessions.
type Subscribe struct {
	SessionID string `json:"session_id"`
}

// NewMessage creates a new Message with the given type and payload.
func NewMessage(typ MessageType, payload any) ([]byte, error) {
	var p json.RawMessage
	if payload != nil {
		var err error
		p, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(Message{Type: typ, Payload: p})
}
