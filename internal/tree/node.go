package tree

import (
	"slices"

	"github.com/reloquent/catalogmap/internal/location"
)

// Kind is the closed set of node variants.
type Kind int

const (
	KindRoot Kind = iota
	KindDatabase
	KindTableFolder
	KindViewFolder
	KindTable
	KindView
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindDatabase:
		return "database"
	case KindTableFolder:
		return "table_folder"
	case KindViewFolder:
		return "view_folder"
	case KindTable:
		return "table"
	case KindView:
		return "view"
	}
	return "unknown"
}

// IsLeafKind reports whether nodes of this kind never have children.
func (k Kind) IsLeafKind() bool {
	return k == KindTable || k == KindView
}

// Icon returns the icon file name rendered for nodes of this kind.
func (k Kind) Icon() string {
	switch k {
	case KindRoot:
		return "server.svg"
	case KindDatabase:
		return "database.svg"
	case KindTableFolder, KindViewFolder:
		return "folder.svg"
	case KindTable:
		return "table.svg"
	case KindView:
		return "view.svg"
	}
	return ""
}

// CheckState is a tri-state checkbox value.
type CheckState int

const (
	Unchecked CheckState = iota
	Checked
	Indeterminate
)

func (c CheckState) String() string {
	switch c {
	case Checked:
		return "checked"
	case Indeterminate:
		return "indeterminate"
	}
	return "unchecked"
}

// Bool collapses the state for hosts without a third value.
// Indeterminate reads as unchecked.
func (c CheckState) Bool() bool {
	return c == Checked
}

const (
	rootID          = "root"
	tablesFolderTag = "Tables"
	viewsFolderTag  = "Views"
)

// Node is one entry of the selection tree. The session owns every node;
// parent is a back-reference by id, looked up through the registry.
//
// Node accessors are not synchronized with operations running on the
// session. Concurrent readers should use Session.View.
type Node struct {
	id       string
	label    string
	kind     Kind
	parentID string
	database string
	location location.Location

	checked        CheckState
	enabled        bool
	isLeaf         bool
	forcedDisabled bool
	childrenLoaded bool
	children       []*Node
}

func (n *Node) ID() string                  { return n.id }
func (n *Node) Label() string               { return n.label }
func (n *Node) Kind() Kind                  { return n.kind }
func (n *Node) ParentID() string            { return n.parentID }
func (n *Node) Database() string            { return n.database }
func (n *Node) Location() location.Location { return slices.Clone(n.location) }
func (n *Node) Checked() CheckState         { return n.checked }
func (n *Node) Enabled() bool               { return n.enabled }
func (n *Node) IsLeaf() bool                { return n.isLeaf }
func (n *Node) Loaded() bool                { return n.childrenLoaded }
func (n *Node) Icon() string                { return n.kind.Icon() }

// Children returns the loaded children without triggering a load.
func (n *Node) Children() []*Node {
	return slices.Clone(n.children)
}

// childSpec describes a node before it is found or created.
type childSpec struct {
	id       string
	label    string
	kind     Kind
	database string
	location location.Location
}

func databaseID(db string) string {
	return location.New(db).String()
}

func folderID(db, tag string) string {
	return location.New(db, tag).String()
}

// aggregate computes the checked state of a container from its enabled
// children. Disabled children are always unchecked and do not count.
func aggregate(children []*Node) CheckState {
	var checked, unchecked int
	for _, c := range children {
		if !c.enabled {
			continue
		}
		switch c.checked {
		case Checked:
			checked++
		case Unchecked:
			unchecked++
		default:
			return Indeterminate
		}
	}
	switch {
	case checked == 0:
		return Unchecked
	case unchecked == 0:
		return Checked
	}
	return Indeterminate
}

func anyEnabled(children []*Node) bool {
	for _, c := range children {
		if c.enabled {
			return true
		}
	}
	return false
}

// NodeView is a point-in-time copy of a node's state.
type NodeView struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Kind     string `json:"kind"`
	Icon     string `json:"icon"`
	Checked  bool   `json:"checked"`
	State    string `json:"state"`
	Enabled  bool   `json:"enabled"`
	IsLeaf   bool   `json:"is_leaf"`
	Loaded   bool   `json:"loaded"`
	ParentID string `json:"parent_id,omitempty"`
	Location string `json:"location,omitempty"`
}

func viewOf(n *Node) NodeView {
	return NodeView{
		ID:       n.id,
		Label:    n.label,
		Kind:     n.kind.String(),
		Icon:     n.kind.Icon(),
		Checked:  n.checked.Bool(),
		State:    n.checked.String(),
		Enabled:  n.enabled,
		IsLeaf:   n.isLeaf,
		Loaded:   n.childrenLoaded,
		ParentID: n.parentID,
		Location: n.location.String(),
	}
}
