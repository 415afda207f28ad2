package tree

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/reloquent/catalogmap/internal/mapping"
)

// leafResolveLimit bounds concurrent column lookups during a bulk check.
const leafResolveLimit = 8

// SetChecked checks or unchecks n and every loaded descendant, skipping
// disabled nodes. Checking a container whose children are not loaded
// loads them first. Every leaf that gets checked has its mapping
// resolved, so leaves with unsupported columns end up disabled. Ancestor
// state is recomputed afterwards.
func (s *Session) SetChecked(ctx context.Context, n *Node, checked bool) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.op.Lock()
	defer s.op.Unlock()
	defer s.flush()

	state := Unchecked
	if checked {
		state = Checked
	}

	var leaves, containers []*Node
	queue := []*Node{n}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		s.mu.Lock()
		if !cur.enabled {
			s.mu.Unlock()
			continue
		}
		s.setCheckedLocked(cur, state)
		loaded := cur.childrenLoaded
		kids := slices.Clone(cur.children)
		s.mu.Unlock()

		if cur.kind.IsLeafKind() {
			if checked {
				leaves = append(leaves, cur)
			}
			continue
		}
		containers = append(containers, cur)

		if checked && !loaded {
			var err error
			kids, err = s.Children(ctx, cur)
			if err != nil {
				return err
			}
		}
		queue = append(queue, kids...)
	}

	if err := s.resolveLeaves(ctx, leaves); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(containers) - 1; i >= 0; i-- {
		s.recomputeLocked(containers[i])
	}
	if p := s.parentLocked(n); p != nil {
		s.refreshLocked(p)
	}
	s.logger.Debug("check state set", "node", n.id, "state", state, "containers", len(containers), "leaves", len(leaves))
	return nil
}

// SetEnabled enables or disables n and its loaded descendants. Disabling
// also unchecks. Nodes disabled because they are empty or have
// unsupported columns are never re-enabled.
func (s *Session) SetEnabled(ctx context.Context, n *Node, enabled bool) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.op.Lock()
	defer s.op.Unlock()
	defer s.flush()

	s.mu.Lock()
	defer s.mu.Unlock()

	var containers []*Node
	queue := []*Node{n}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if enabled && cur.forcedDisabled {
			continue
		}
		s.setEnabledLocked(cur, enabled)
		if !cur.kind.IsLeafKind() {
			containers = append(containers, cur)
			queue = append(queue, cur.children...)
		}
	}

	for i := len(containers) - 1; i >= 0; i-- {
		s.recomputeLocked(containers[i])
	}
	if p := s.parentLocked(n); p != nil {
		s.refreshLocked(p)
	}
	return nil
}

// RefreshChecked recomputes the checked state of n and its ancestors,
// stopping at the first level whose state does not change.
func (s *Session) RefreshChecked(n *Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshCheckedLocked(n)
}

// RefreshEnabled is RefreshChecked for the enabled state.
func (s *Session) RefreshEnabled(n *Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshEnabledLocked(n)
}

func (s *Session) setCheckedLocked(n *Node, state CheckState) {
	if n.checked != state {
		n.checked = state
		s.changed[n.id] = true
	}
}

// setEnabledLocked changes n's enabled state directly; a disabled node is
// also unchecked.
func (s *Session) setEnabledLocked(n *Node, enabled bool) {
	s.setEnabledFlagLocked(n, enabled)
	if !enabled {
		s.setCheckedLocked(n, Unchecked)
	}
}

// setEnabledFlagLocked changes only the flag. Aggregated containers get
// their checked state from refreshCheckedLocked.
func (s *Session) setEnabledFlagLocked(n *Node, enabled bool) {
	if n.enabled != enabled {
		n.enabled = enabled
		s.changed[n.id] = true
	}
}

// recomputeLocked derives a container's state from its children. A
// container whose children were never loaded keeps its own state.
func (s *Session) recomputeLocked(n *Node) {
	if !n.childrenLoaded || len(n.children) == 0 {
		return
	}
	s.setEnabledFlagLocked(n, anyEnabled(n.children))
	s.setCheckedLocked(n, aggregate(n.children))
}

func (s *Session) refreshLocked(n *Node) {
	s.refreshEnabledLocked(n)
	s.refreshCheckedLocked(n)
}

func (s *Session) refreshCheckedLocked(n *Node) {
	for cur := n; cur != nil; cur = s.parentLocked(cur) {
		if !cur.childrenLoaded || len(cur.children) == 0 {
			return
		}
		state := aggregate(cur.children)
		if state == cur.checked {
			return
		}
		s.setCheckedLocked(cur, state)
	}
}

func (s *Session) refreshEnabledLocked(n *Node) {
	for cur := n; cur != nil; cur = s.parentLocked(cur) {
		if !cur.childrenLoaded || len(cur.children) == 0 {
			return
		}
		enabled := anyEnabled(cur.children)
		if enabled == cur.enabled {
			return
		}
		s.setEnabledFlagLocked(cur, enabled)
	}
}

func (s *Session) resolveLeaves(ctx context.Context, leaves []*Node) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(leafResolveLimit)
	for _, leaf := range leaves {
		g.Go(func() error {
			s.resolveLeaf(ctx, leaf)
			return nil
		})
	}
	return g.Wait()
}

// resolveLeaf resolves the mapping of n. Unsupported columns or no columns
// at all disable the leaf for the rest of the session; other failures
// only raise a notice.
func (s *Session) resolveLeaf(ctx context.Context, n *Node) mapping.Result {
	if !n.kind.IsLeafKind() {
		return mapping.Result{ErrorMessages: []string{n.label + " is not a table or view"}}
	}

	res := s.m.resolver.MappingInfo(ctx, s.identity, n.location)
	switch {
	case res.IsSuccess:
	case res.Unsupported():
		s.forceDisable(n, NoticeUnsupportedColumnType, res.ErrorMessages)
	case res.NoColumns:
		s.forceDisable(n, NoticeMappingSkipped, []string{n.label + ": " + strings.Join(res.ErrorMessages, "; ")})
	default:
		s.notice(NoticeCatalogUnavailable, slog.LevelWarn, n.id, res.ErrorMessages)
	}
	return res
}

func (s *Session) forceDisable(n *Node, kind NoticeKind, msgs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.forcedDisabled {
		return
	}
	n.forcedDisabled = true
	s.setEnabledLocked(n, false)
	s.noticeLocked(kind, slog.LevelWarn, n.id, msgs)
	if p := s.parentLocked(n); p != nil {
		s.refreshLocked(p)
	}
}
