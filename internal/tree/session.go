package tree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/reloquent/catalogmap/internal/catalog"
	"github.com/reloquent/catalogmap/internal/location"
	"github.com/reloquent/catalogmap/internal/mapping"
	"github.com/reloquent/catalogmap/internal/selection"
)

var (
	// ErrNoObjectsSelected is returned by Validate when no enabled leaf is checked.
	ErrNoObjectsSelected = errors.New("no objects selected")

	// ErrSessionClosed is returned by operations on a dropped session.
	ErrSessionClosed = errors.New("session closed")
)

// Manager owns the registry and caches shared by browsing sessions and
// hands out one Session per opened identity.
type Manager struct {
	registry *Registry
	browser  *catalog.Browser
	resolver *mapping.Resolver
	logger   *slog.Logger
	onNotice NoticeFunc

	mu   sync.Mutex
	live map[string]int // open sessions per identity key
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithNoticeFunc registers a callback for notices from every session.
func WithNoticeFunc(fn NoticeFunc) Option {
	return func(m *Manager) {
		m.onNotice = fn
	}
}

// NewManager creates a Manager over browser and resolver.
func NewManager(browser *catalog.Browser, resolver *mapping.Resolver, opts ...Option) *Manager {
	m := &Manager{
		registry: NewRegistry(),
		browser:  browser,
		resolver: resolver,
		logger:   slog.Default(),
		live:     make(map[string]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry returns the node registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Open starts a browsing session for id. When no other session is open
// on id, its cached catalog data and mappings are discarded first, so the
// session sees fresh metadata. Sessions sharing an identity share its
// caches, including destination names edited by the user.
func (m *Manager) Open(id catalog.Identity) (*Session, error) {
	m.mu.Lock()
	if m.live[id.Key()] == 0 {
		m.clearIdentity(id)
	}
	m.live[id.Key()]++
	m.mu.Unlock()

	s := &Session{
		id:       uuid.NewString(),
		identity: id,
		m:        m,
		logger:   m.logger,
		changed:  make(map[string]bool),
	}
	s.logger = m.logger.With("session", s.id, "identity", id.Key())

	m.registry.Clear(s.id)
	root := &Node{
		id:      rootID,
		label:   id.DataSourceName,
		kind:    KindRoot,
		enabled: true,
	}
	if root.label == "" {
		root.label = id.SourceServerName
	}
	if err := m.registry.Register(s.id, root.id, root); err != nil {
		m.release(id)
		return nil, err
	}
	s.root = root

	s.logger.Info("browsing session opened")
	return s, nil
}

// Drop tears a session down. It waits for an operation in progress, then
// discards the session's nodes; the identity's caches go with the last
// session open on it. Later calls on the session return ErrSessionClosed.
func (m *Manager) Drop(s *Session) {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	wasClosed := s.closed
	s.closed = true
	s.mu.Unlock()
	if wasClosed {
		return
	}

	m.registry.Clear(s.id)
	m.release(s.identity)
	s.logger.Info("browsing session dropped")
}

// Refresh drops s and opens a new session for the same identity. Catalog
// metadata is always refetched; mappings survive while another session
// is open on the identity.
func (m *Manager) Refresh(s *Session) (*Session, error) {
	m.Drop(s)
	m.browser.ClearCache(s.identity)
	return m.Open(s.identity)
}

// Live returns the number of open sessions on id.
func (m *Manager) Live(id catalog.Identity) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live[id.Key()]
}

func (m *Manager) release(id catalog.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live[id.Key()]--
	if m.live[id.Key()] > 0 {
		return
	}
	delete(m.live, id.Key())
	m.clearIdentity(id)
}

func (m *Manager) clearIdentity(id catalog.Identity) {
	m.browser.ClearCache(id)
	m.resolver.Cache().Clear(id)
}

// Session is one browsing session over a single identity. Operations are
// expected to be issued one at a time; Children may be called
// concurrently.
type Session struct {
	id       string
	identity catalog.Identity
	m        *Manager
	logger   *slog.Logger
	root     *Node

	op    sync.Mutex // serializes user-triggered operations
	loads singleflight.Group

	mu      sync.Mutex // guards node state and the fields below
	closed  bool
	notices []Notice
	pending []Notice
	changed map[string]bool
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Identity returns the identity the session browses.
func (s *Session) Identity() catalog.Identity { return s.identity }

// Root returns the root node.
func (s *Session) Root() *Node { return s.root }

// Find returns the node with the given id.
func (s *Session) Find(nodeID string) (*Node, bool) {
	return s.m.registry.Find(s.id, nodeID)
}

// Parent returns the parent of n, or nil for the root.
func (s *Session) Parent(n *Node) *Node {
	if n.parentID == "" {
		return nil
	}
	p, _ := s.m.registry.Find(s.id, n.parentID)
	return p
}

// View returns a consistent copy of n's state.
func (s *Session) View(n *Node) NodeView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return viewOf(n)
}

// Notices returns the most recent notices, oldest first.
func (s *Session) Notices() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.notices)
}

// TakeChanges returns the ids of nodes whose state changed since the last
// call, in id order.
func (s *Session) TakeChanges() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.changed))
	for id := range s.changed {
		ids = append(ids, id)
	}
	s.changed = make(map[string]bool)
	sort.Strings(ids)
	return ids
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

// noticeLocked records a notice; it is delivered by flush.
func (s *Session) noticeLocked(kind NoticeKind, level slog.Level, nodeID string, msgs []string) {
	n := Notice{Kind: kind, Level: level, NodeID: nodeID, Messages: msgs, Time: time.Now()}
	s.notices = append(s.notices, n)
	if len(s.notices) > maxNotices {
		s.notices = s.notices[len(s.notices)-maxNotices:]
	}
	s.pending = append(s.pending, n)
	s.logger.Log(context.Background(), level, "notice", "kind", kind, "node", nodeID, "message", n.Text())
}

func (s *Session) notice(kind NoticeKind, level slog.Level, nodeID string, msgs []string) {
	s.mu.Lock()
	s.noticeLocked(kind, level, nodeID, msgs)
	s.mu.Unlock()
}

// flush delivers pending notices. It must not be called with s.mu held.
func (s *Session) flush() {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	if s.m.onNotice == nil {
		return
	}
	for _, n := range pending {
		s.m.onNotice(s.id, n)
	}
}

func (s *Session) parentLocked(n *Node) *Node {
	return s.Parent(n)
}

// Children returns the children of n, loading them on first use. Loads
// are memoized, and concurrent callers share a single load. A failed
// load raises a notice, leaves n untouched and may be retried.
func (s *Session) Children(ctx context.Context, n *Node) ([]*Node, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	defer s.flush()

	s.mu.Lock()
	if n.childrenLoaded || n.kind.IsLeafKind() {
		kids := slices.Clone(n.children)
		s.mu.Unlock()
		return kids, nil
	}
	s.mu.Unlock()

	v, err, _ := s.loads.Do(n.id, func() (any, error) {
		s.mu.Lock()
		if n.childrenLoaded {
			kids := slices.Clone(n.children)
			s.mu.Unlock()
			return kids, nil
		}
		s.mu.Unlock()

		specs, ok := s.fetchChildren(ctx, n)
		if !ok {
			return []*Node(nil), nil
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return nil, ErrSessionClosed
		}
		return s.attachChildrenLocked(n, specs)
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]*Node)), nil
}

func (s *Session) fetchChildren(ctx context.Context, n *Node) ([]childSpec, bool) {
	browser := s.m.browser
	var specs []childSpec

	switch n.kind {
	case KindRoot:
		res := browser.DatabaseNames(ctx, s.identity)
		if !res.IsSuccess {
			s.notice(NoticeCatalogUnavailable, slog.LevelWarn, n.id, res.ErrorMessages)
			return nil, false
		}
		for _, db := range res.Value {
			specs = append(specs, childSpec{id: databaseID(db), label: db, kind: KindDatabase, database: db})
		}

	case KindDatabase:
		specs = append(specs,
			childSpec{id: folderID(n.database, tablesFolderTag), label: tablesFolderTag, kind: KindTableFolder, database: n.database},
			childSpec{id: folderID(n.database, viewsFolderTag), label: viewsFolderTag, kind: KindViewFolder, database: n.database},
		)

	case KindTableFolder, KindViewFolder:
		var res catalog.Result[[]string]
		leafKind := KindTable
		if n.kind == KindTableFolder {
			res = browser.TableNames(ctx, s.identity, n.database, "")
		} else {
			res = browser.ViewNames(ctx, s.identity, n.database, "")
			leafKind = KindView
		}
		if !res.IsSuccess {
			s.notice(NoticeCatalogUnavailable, slog.LevelWarn, n.id, res.ErrorMessages)
			return nil, false
		}
		dbPrefix := location.EncloseWithBrackets(n.database) + "."
		for _, name := range res.Value {
			loc := location.Parse(dbPrefix + name)
			specs = append(specs, childSpec{id: loc.String(), label: loc.Label(), kind: leafKind, database: n.database, location: loc})
		}
	}
	return specs, true
}

// attachChildrenLocked finds or creates the nodes described by specs and
// stores them as n's children, sorted by label.
func (s *Session) attachChildrenLocked(n *Node, specs []childSpec) ([]*Node, error) {
	kids := make([]*Node, 0, len(specs))
	for _, spec := range specs {
		child, err := s.findOrCreateLocked(n, spec)
		if err != nil {
			return nil, err
		}
		kids = append(kids, child)
	}
	sortByLabel(kids)

	n.children = kids
	n.childrenLoaded = true
	s.changed[n.id] = true
	s.logger.Debug("children loaded", "node", n.id, "count", len(kids))

	if len(kids) == 0 {
		n.isLeaf = true
		n.enabled = false
		n.forcedDisabled = true
		n.checked = Unchecked
		s.noticeLocked(NoticeEmptyContainer, slog.LevelInfo, n.id, []string{n.label + " has no objects"})
		if p := s.parentLocked(n); p != nil {
			s.refreshLocked(p)
		}
	}
	return slices.Clone(kids), nil
}

func (s *Session) findOrCreateLocked(parent *Node, spec childSpec) (*Node, error) {
	if existing, ok := s.m.registry.Find(s.id, spec.id); ok {
		if existing.kind != spec.kind {
			return nil, &RegistryConflictError{SessionID: s.id, NodeID: spec.id, Kind: existing.kind}
		}
		return existing, nil
	}

	child := &Node{
		id:       spec.id,
		label:    spec.label,
		kind:     spec.kind,
		parentID: parent.id,
		database: spec.database,
		location: spec.location,
		enabled:  true,
		isLeaf:   spec.kind.IsLeafKind(),
	}
	if parent.checked == Checked {
		child.checked = Checked
	}
	if err := s.m.registry.Register(s.id, child.id, child); err != nil {
		return nil, err
	}
	s.changed[child.id] = true
	return child, nil
}

func sortByLabel(nodes []*Node) {
	c := collate.New(language.English)
	sort.SliceStable(nodes, func(i, j int) bool {
		if r := c.CompareString(nodes[i].label, nodes[j].label); r != 0 {
			return r < 0
		}
		return nodes[i].id < nodes[j].id
	})
}

// CheckedLeaves returns the table and view nodes that are both checked
// and enabled, ordered by id.
func (s *Session) CheckedLeaves() []*Node {
	s.mu.Lock()
	defer s.mu.Unlock()

	var leaves []*Node
	for _, n := range s.m.registry.Nodes(s.id) {
		if n.kind.IsLeafKind() && n.checked == Checked && n.enabled {
			leaves = append(leaves, n)
		}
	}
	return leaves
}

// MappingInfo resolves the mapping of leaf n, as done when a row is
// clicked. A leaf with unsupported columns is force-disabled.
func (s *Session) MappingInfo(ctx context.Context, n *Node) (mapping.Result, error) {
	if err := s.checkOpen(); err != nil {
		return mapping.Result{}, err
	}
	defer s.flush()
	return s.resolveLeaf(ctx, n), nil
}

// UpdateMapping stores a destination name chosen by the user for the
// object at loc.
func (s *Session) UpdateMapping(ctx context.Context, loc location.Location, schema, table string, columns []catalog.ColumnDefinition) (mapping.Result, error) {
	if err := s.checkOpen(); err != nil {
		return mapping.Result{}, err
	}
	s.op.Lock()
	defer s.op.Unlock()
	defer s.flush()

	res := s.m.resolver.StoreUserEdit(ctx, s.identity, loc, schema, table, columns)
	if res.IsSuccess {
		return res, nil
	}

	s.notice(NoticeMappingSkipped, slog.LevelWarn, loc.String(), res.ErrorMessages)
	if res.Unsupported() {
		if n, ok := s.Find(loc.String()); ok {
			s.forceDisable(n, NoticeUnsupportedColumnType, res.ErrorMessages)
		}
	}
	return res, nil
}

// Validate re-resolves the mappings of the checked leaves. Leaves with
// unsupported columns or no columns are disabled. A leaf whose mapping
// cannot be read from the catalog fails validation with a
// *catalog.RemoteError, so every checked, enabled leaf left after a
// successful Validate has a mapping record. ErrNoObjectsSelected is
// returned when no such leaf remains.
func (s *Session) Validate(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.op.Lock()
	defer s.op.Unlock()
	defer s.flush()

	var unresolved []string
	leaves := s.CheckedLeaves()
	for i := len(leaves) - 1; i >= 0; i-- {
		res := s.resolveLeaf(ctx, leaves[i])
		if !res.IsSuccess && !res.Definitive() {
			unresolved = append(unresolved, leaves[i].label+": "+strings.Join(res.ErrorMessages, "; "))
		}
	}
	if len(unresolved) > 0 {
		slices.Reverse(unresolved)
		return fmt.Errorf("validating selection: %w", &catalog.RemoteError{Op: "reading mappings", Messages: unresolved})
	}
	if len(s.CheckedLeaves()) == 0 {
		return ErrNoObjectsSelected
	}
	return nil
}

// Selection returns the mapping records of the checked, enabled leaves
// and the destination schemas they would create. existingSchemas is the
// destination's known-schema set.
func (s *Session) Selection(existingSchemas []string) *selection.Result {
	var records []mapping.Record
	for _, leaf := range s.CheckedLeaves() {
		if rec, ok := s.m.resolver.Cache().Get(s.identity, leaf.location); ok {
			records = append(records, *rec)
		}
	}
	return selection.Build(records, existingSchemas)
}
