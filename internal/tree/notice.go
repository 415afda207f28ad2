package tree

import (
	"log/slog"
	"strings"
	"time"
)

// NoticeKind classifies a non-fatal event raised while browsing.
type NoticeKind string

const (
	NoticeCatalogUnavailable    NoticeKind = "catalog_unavailable"
	NoticeUnsupportedColumnType NoticeKind = "unsupported_column_type"
	NoticeEmptyContainer        NoticeKind = "empty_container"
	NoticeMappingSkipped        NoticeKind = "mapping_skipped"
)

const maxNotices = 100

// Notice is a user-facing, non-blocking message.
type Notice struct {
	Kind     NoticeKind `json:"kind"`
	Level    slog.Level `json:"level"`
	NodeID   string     `json:"node_id,omitempty"`
	Messages []string   `json:"messages"`
	Time     time.Time  `json:"time"`
}

// Text joins the notice messages.
func (n Notice) Text() string {
	return strings.Join(n.Messages, "; ")
}

// NoticeFunc receives notices as they are raised. It is never called
// while the session holds its lock.
type NoticeFunc func(sessionID string, n Notice)
