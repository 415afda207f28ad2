package tree

import (
	"fmt"
	"sort"
	"sync"
)

// RegistryConflictError is returned when a node id is registered twice in
// one session, or found with a different kind than requested.
type RegistryConflictError struct {
	SessionID string
	NodeID    string
	Kind      Kind
}

func (e *RegistryConflictError) Error() string {
	return fmt.Sprintf("node %s (%s) already registered in session %s", e.NodeID, e.Kind, e.SessionID)
}

// Registry is the flat node store of every session, keyed by session id
// and node id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*Node
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]map[string]*Node)}
}

// Register adds n under (sessionID, nodeID).
func (r *Registry) Register(sessionID, nodeID string, n *Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	nodes, ok := r.sessions[sessionID]
	if !ok {
		nodes = make(map[string]*Node)
		r.sessions[sessionID] = nodes
	}
	if existing, ok := nodes[nodeID]; ok {
		return &RegistryConflictError{SessionID: sessionID, NodeID: nodeID, Kind: existing.kind}
	}
	nodes[nodeID] = n
	return nil
}

// Find returns the node registered under (sessionID, nodeID).
func (r *Registry) Find(sessionID, nodeID string) (*Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.sessions[sessionID][nodeID]
	return n, ok
}

// Clear removes every node of a session.
func (r *Registry) Clear(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

// Nodes returns the nodes of a session ordered by id.
func (r *Registry) Nodes(sessionID string) []*Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nodes := make([]*Node, 0, len(r.sessions[sessionID]))
	for _, n := range r.sessions[sessionID] {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].id < nodes[j].id })
	return nodes
}

// Len returns the number of nodes registered for a session.
func (r *Registry) Len(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[sessionID])
}
