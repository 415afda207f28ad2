package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/reloquent/catalogmap/internal/engine"
	"github.com/reloquent/catalogmap/internal/location"
	"github.com/reloquent/catalogmap/internal/mapping"
	"github.com/reloquent/catalogmap/internal/selection"
	"github.com/reloquent/catalogmap/internal/tree"
)

// row is one visible line of the tree.
type row struct {
	node  *tree.Node
	depth int
}

type childrenMsg struct {
	nodeID string
	expand bool
	err    error
}

type opDoneMsg struct {
	status string
	err    error
}

type mappingMsg struct {
	nodeID string
	res    mapping.Result
	err    error
}

type refreshedMsg struct {
	session *tree.Session
	err     error
}

type selectionMsg struct {
	res *selection.Result
	err error
}

// BrowserModel is the bubbletea model for browsing the catalog tree and
// checking the tables and views to map.
type BrowserModel struct {
	ctx     context.Context
	engine  *engine.Engine
	session *tree.Session

	rows     []row
	expanded map[string]bool
	cursor   int

	busy    bool
	spinner spinner.Model

	editing bool
	editFor *tree.Node
	input   textinput.Model

	detail    *mapping.Result
	detailFor string

	status    string
	err       error
	result    *selection.Result
	done      bool
	cancelled bool
	width     int
	height    int
}

// NewBrowserModel creates a tree browser over an open session.
func NewBrowserModel(ctx context.Context, eng *engine.Engine, s *tree.Session) BrowserModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	in := textinput.New()
	in.Placeholder = "schema.table"
	in.CharLimit = 256
	in.Width = 50

	return BrowserModel{
		ctx:      ctx,
		engine:   eng,
		session:  s,
		expanded: map[string]bool{s.Root().ID(): true},
		busy:     true,
		spinner:  sp,
		input:    in,
		width:    100,
		height:   24,
	}
}

func (m BrowserModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadChildren(m.session.Root(), true))
}

func (m BrowserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		if m.busy {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case childrenMsg:
		m.busy = false
		m.err = msg.err
		if msg.err == nil && msg.expand {
			m.expanded[msg.nodeID] = true
		}
		m.rebuild()
		return m, nil

	case opDoneMsg:
		m.busy = false
		m.err = msg.err
		m.status = msg.status
		m.rebuild()
		return m, nil

	case mappingMsg:
		m.busy = false
		m.err = msg.err
		if msg.err == nil {
			res := msg.res
			m.detail = &res
			m.detailFor = msg.nodeID
		}
		m.rebuild()
		return m, nil

	case refreshedMsg:
		m.busy = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.session = msg.session
		m.expanded = map[string]bool{msg.session.Root().ID(): true}
		m.cursor = 0
		m.detail = nil
		m.status = "Refreshed"
		m.busy = true
		return m, tea.Batch(m.spinner.Tick, m.loadChildren(m.session.Root(), true))

	case selectionMsg:
		m.busy = false
		if msg.err != nil {
			m.err = msg.err
			m.rebuild()
			return m, nil
		}
		m.result = msg.res
		m.done = true
		return m, tea.Quit

	case tea.KeyMsg:
		if m.editing {
			return m.updateEdit(msg)
		}
		if m.busy {
			if msg.String() == "ctrl+c" {
				m.cancelled = true
				m.done = true
				return m, tea.Quit
			}
			return m, nil
		}
		return m.updateNormal(msg)
	}
	return m, nil
}

func (m BrowserModel) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.cancelled = true
		m.done = true
		return m, tea.Quit

	case "up", "k":
		m.moveCursor(-1)

	case "down", "j":
		m.moveCursor(1)

	case "home":
		m.cursor = 0

	case "end":
		m.cursor = max(0, len(m.rows)-1)

	case "right", "l":
		n := m.current()
		if n == nil || n.IsLeaf() {
			return m, nil
		}
		if n.Loaded() {
			m.expanded[n.ID()] = true
			m.rebuild()
			return m, nil
		}
		return m.start(m.loadChildren(n, true))

	case "left", "h":
		n := m.current()
		if n == nil {
			return m, nil
		}
		if m.expanded[n.ID()] {
			delete(m.expanded, n.ID())
			m.rebuild()
			return m, nil
		}
		m.selectNode(n.ParentID())

	case " ":
		n := m.current()
		if n == nil {
			return m, nil
		}
		v := m.session.View(n)
		if !v.Enabled {
			m.status = v.Label + " is disabled"
			return m, nil
		}
		return m.start(m.setChecked(n, !v.Checked))

	case "x":
		n := m.current()
		if n == nil {
			return m, nil
		}
		return m.start(m.setEnabled(n, !m.session.View(n).Enabled))

	case "m", "enter":
		n := m.current()
		if n == nil || !n.Kind().IsLeafKind() {
			return m, nil
		}
		return m.start(m.loadMapping(n))

	case "e":
		n := m.current()
		if n == nil || !n.Kind().IsLeafKind() {
			return m, nil
		}
		m.editing = true
		m.editFor = n
		m.input.SetValue(m.destinationOf(n))
		m.input.CursorEnd()
		return m, m.input.Focus()

	case "r":
		return m.start(m.refresh())

	case "c":
		return m.start(m.confirm())
	}

	return m, nil
}

func (m BrowserModel) updateEdit(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.editing = false
		m.input.Blur()
		return m, nil

	case "enter":
		m.editing = false
		m.input.Blur()
		schema, table := splitDestination(m.input.Value())
		return m.start(m.updateMapping(m.editFor, schema, table))
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m BrowserModel) View() string {
	var b strings.Builder

	title := titleStyle.Render("Catalog: " + m.session.Root().Label())
	b.WriteString(title + "\n\n")

	listHeight := m.height - 14
	if listHeight < 5 {
		listHeight = 5
	}
	start := 0
	if m.cursor >= listHeight {
		start = m.cursor - listHeight + 1
	}
	end := min(start+listHeight, len(m.rows))

	if len(m.rows) == 0 && !m.busy {
		b.WriteString(dimStyle.Render("  Nothing to browse") + "\n")
	}
	for i := start; i < end; i++ {
		b.WriteString(m.renderRow(i) + "\n")
	}
	if len(m.rows) > listHeight {
		b.WriteString(dimStyle.Render(fmt.Sprintf("\n  Showing %d-%d of %d", start+1, end, len(m.rows))) + "\n")
	}
	b.WriteString("\n")

	if m.detail != nil {
		b.WriteString(m.renderDetail())
	}

	if m.editing {
		b.WriteString(highlightStyle.Render("  Destination: ") + m.input.View() + "\n")
		b.WriteString(dimStyle.Render("  enter save • esc cancel") + "\n")
		return b.String()
	}

	selected := len(m.session.CheckedLeaves())
	b.WriteString(summaryStyle.Render(fmt.Sprintf("  Selected: %d tables and views", selected)) + "\n")

	switch {
	case m.busy:
		b.WriteString(fmt.Sprintf("  %s Loading...\n", m.spinner.View()))
	case m.err != nil:
		b.WriteString(errStyle.Render("  "+m.err.Error()) + "\n")
	case m.status != "":
		b.WriteString(successStyle.Render("  "+m.status) + "\n")
	}

	notices := m.session.Notices()
	for _, n := range notices[max(0, len(notices)-3):] {
		b.WriteString(warnStyle.Render("  ⚠ "+truncate(n.Text(), max(20, m.width-6))) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("  space check • →/l expand • ←/h collapse • x enable • m details • e edit • r refresh • c confirm • q quit") + "\n")
	return b.String()
}

func (m BrowserModel) renderRow(i int) string {
	r := m.rows[i]
	v := m.session.View(r.node)

	cursor := "  "
	nameStyle := lipgloss.NewStyle()
	if i == m.cursor {
		cursor = highlightStyle.Render("> ")
		nameStyle = nameStyle.Bold(true)
	}

	box := "[ ]"
	switch v.State {
	case tree.Checked.String():
		box = selectedStyle.Render("[x]")
	case tree.Indeterminate.String():
		box = partialStyle.Render("[-]")
	}

	marker := " "
	if !v.IsLeaf {
		marker = "▸"
		if m.expanded[v.ID] {
			marker = "▾"
		}
	}

	label := nameStyle.Render(v.Label)
	if !v.Enabled {
		box = dimStyle.Render("[ ]")
		label = dimStyle.Render(v.Label + " (disabled)")
	}
	indent := strings.Repeat("  ", r.depth)
	return fmt.Sprintf("%s%s%s %s %s", cursor, indent, marker, box, label)
}

func (m BrowserModel) renderDetail() string {
	var b strings.Builder
	d := m.detail
	if !d.IsSuccess {
		b.WriteString(warnStyle.Render("  "+strings.Join(d.ErrorMessages, "; ")) + "\n")
		for _, c := range d.UnsupportedColumns {
			b.WriteString(dimStyle.Render(fmt.Sprintf("    %-30s %s", c.ColumnName, c.DataType)) + "\n")
		}
		return b.String() + "\n"
	}

	rec := d.Record
	b.WriteString(highlightStyle.Render(fmt.Sprintf("  %s → %s", rec.SourceLocation.Label(), rec.QualifiedDestination())) + "\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("    %-30s %-20s %s", "Column", "Type", "Null")) + "\n")
	shown := rec.Columns
	if len(shown) > 8 {
		shown = shown[:8]
	}
	for _, c := range shown {
		null := "no"
		if c.IsNullable {
			null = "yes"
		}
		b.WriteString(fmt.Sprintf("    %-30s %-20s %s\n", truncate(c.ColumnName, 30), truncate(c.DataType, 20), null))
	}
	if len(rec.Columns) > len(shown) {
		b.WriteString(dimStyle.Render(fmt.Sprintf("    ...and %d more columns", len(rec.Columns)-len(shown))) + "\n")
	}
	return b.String() + "\n"
}

// Result returns the confirmed selection, or nil if the user quit.
func (m BrowserModel) Result() *selection.Result {
	if m.cancelled {
		return nil
	}
	return m.result
}

// Session returns the session being browsed. It changes on refresh.
func (m BrowserModel) Session() *tree.Session {
	return m.session
}

// Done returns true if the model finished.
func (m BrowserModel) Done() bool {
	return m.done
}

// Cancelled returns true if the user quit without confirming.
func (m BrowserModel) Cancelled() bool {
	return m.cancelled
}

// --- internal helpers ---

func (m BrowserModel) start(cmd tea.Cmd) (tea.Model, tea.Cmd) {
	m.busy = true
	m.err = nil
	m.status = ""
	return m, tea.Batch(m.spinner.Tick, cmd)
}

func (m *BrowserModel) current() *tree.Node {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return nil
	}
	return m.rows[m.cursor].node
}

func (m *BrowserModel) moveCursor(delta int) {
	if len(m.rows) == 0 {
		return
	}
	m.cursor = min(max(m.cursor+delta, 0), len(m.rows)-1)
}

func (m *BrowserModel) selectNode(id string) {
	for i, r := range m.rows {
		if r.node.ID() == id {
			m.cursor = i
			return
		}
	}
}

// rebuild flattens the expanded part of the tree into rows. The root is
// not shown.
func (m *BrowserModel) rebuild() {
	var cur string
	if n := m.current(); n != nil {
		cur = n.ID()
	}

	m.rows = m.rows[:0]
	var walk func(n *tree.Node, depth int)
	walk = func(n *tree.Node, depth int) {
		for _, c := range n.Children() {
			m.rows = append(m.rows, row{node: c, depth: depth})
			if m.expanded[c.ID()] {
				walk(c, depth+1)
			}
		}
	}
	walk(m.session.Root(), 0)

	m.cursor = min(m.cursor, max(0, len(m.rows)-1))
	if cur != "" {
		m.selectNode(cur)
	}
}

func (m *BrowserModel) destinationOf(n *tree.Node) string {
	if m.detail != nil && m.detailFor == n.ID() && m.detail.Record != nil {
		return m.detail.Record.QualifiedDestination()
	}
	if rec, ok := m.engine.Resolver.Cache().Get(m.session.Identity(), n.Location()); ok {
		return rec.QualifiedDestination()
	}
	return strings.Join(mapping.DefaultDestination(n.Location()), ".")
}

// splitDestination splits "schema.table" at the last dot. A bare name
// has no schema.
func splitDestination(s string) (schema, table string) {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "."); i >= 0 {
		return location.PeelOffBrackets(s[:i]), location.PeelOffBrackets(s[i+1:])
	}
	return "", location.PeelOffBrackets(s)
}

func (m BrowserModel) loadChildren(n *tree.Node, expand bool) tea.Cmd {
	s, ctx := m.session, m.ctx
	return func() tea.Msg {
		_, err := s.Children(ctx, n)
		return childrenMsg{nodeID: n.ID(), expand: expand, err: err}
	}
}

func (m BrowserModel) setChecked(n *tree.Node, checked bool) tea.Cmd {
	s, ctx := m.session, m.ctx
	return func() tea.Msg {
		err := s.SetChecked(ctx, n, checked)
		return opDoneMsg{err: err}
	}
}

func (m BrowserModel) setEnabled(n *tree.Node, enabled bool) tea.Cmd {
	s, ctx := m.session, m.ctx
	return func() tea.Msg {
		err := s.SetEnabled(ctx, n, enabled)
		return opDoneMsg{err: err}
	}
}

func (m BrowserModel) loadMapping(n *tree.Node) tea.Cmd {
	s, ctx := m.session, m.ctx
	return func() tea.Msg {
		res, err := s.MappingInfo(ctx, n)
		return mappingMsg{nodeID: n.ID(), res: res, err: err}
	}
}

func (m BrowserModel) updateMapping(n *tree.Node, schema, table string) tea.Cmd {
	s, ctx := m.session, m.ctx
	return func() tea.Msg {
		res, err := s.UpdateMapping(ctx, n.Location(), schema, table, nil)
		if err != nil {
			return mappingMsg{nodeID: n.ID(), err: err}
		}
		return mappingMsg{nodeID: n.ID(), res: res}
	}
}

func (m BrowserModel) refresh() tea.Cmd {
	eng, id := m.engine, m.session.ID()
	return func() tea.Msg {
		s, err := eng.RefreshSession(id)
		return refreshedMsg{session: s, err: err}
	}
}

func (m BrowserModel) confirm() tea.Cmd {
	eng, s, ctx := m.engine, m.session, m.ctx
	return func() tea.Msg {
		res, err := eng.Selection(ctx, s)
		if errors.Is(err, tree.ErrNoObjectsSelected) {
			err = errors.New("nothing selected: check at least one table or view")
		}
		return selectionMsg{res: res, err: err}
	}
}
