package api

import (
	"github.com/reloquent/catalogmap/internal/catalog"
	"github.com/reloquent/catalogmap/internal/location"
	"github.com/reloquent/catalogmap/internal/tree"
)

// SessionResponse describes an open browsing session.
type SessionResponse struct {
	ID       string        `json:"id"`
	Identity string        `json:"identity"`
	Root     tree.NodeView `json:"root"`
}

// ChildrenResponse is the response for a children lookup.
type ChildrenResponse struct {
	Node     tree.NodeView   `json:"node"`
	Children []tree.NodeView `json:"children"`
}

// CheckRequest changes the checked and, optionally, the enabled state of
// a node.
type CheckRequest struct {
	Node    string `json:"node"`
	Checked bool   `json:"checked"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// ChangesResponse lists the nodes whose state changed.
type ChangesResponse struct {
	Changed []tree.NodeView `json:"changed"`
}

// MappingResponse is the mapping of a single table or view.
type MappingResponse struct {
	IsSuccess          bool                       `json:"isSuccess"`
	ErrorMessages      []string                   `json:"errorMessages,omitempty"`
	DestinationName    []string                   `json:"destinationName,omitempty"`
	SourceLocation     location.Location          `json:"sourceLocation,omitempty"`
	Columns            []catalog.ColumnDefinition `json:"columns,omitempty"`
	UnsupportedColumns []catalog.ColumnDefinition `json:"unsupportedColumns,omitempty"`
}

// UpdateMappingRequest sets the destination name of a source object.
type UpdateMappingRequest struct {
	Location string                     `json:"location"`
	Schema   string                     `json:"schema"`
	Table    string                     `json:"table"`
	Columns  []catalog.ColumnDefinition `json:"columns,omitempty"`
}

// ValidateResponse is the result of validating a session.
type ValidateResponse struct {
	Valid    bool          `json:"valid"`
	Selected int           `json:"selected"`
	Error    string        `json:"error,omitempty"`
	Notices  []tree.Notice `json:"notices"`
}

// SnapshotResponse is sent to WebSocket clients on connect and on sync.
type SnapshotResponse struct {
	Sessions []string `json:"sessions"`
}
