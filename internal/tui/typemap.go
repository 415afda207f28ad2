package tui

import (
	"fmt"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/reloquent/catalogmap/internal/typemap"
)

// TypeMapModel is the bubbletea model for reviewing and overriding the
// source-to-destination type map.
type TypeMapModel struct {
	typeMap   *typemap.TypeMap
	types     []string // source types shown, sorted
	cursor    int
	done      bool
	cancelled bool
	width     int
	height    int
}

// NewTypeMapModel creates a type map editor. When inUse is empty every
// mapped type is listed; otherwise only the given types, which are added
// to the map with their resolved type if missing.
func NewTypeMapModel(tm *typemap.TypeMap, inUse []string) TypeMapModel {
	types := tm.SortedTypes()
	if len(inUse) > 0 {
		types = slices.Clone(inUse)
		slices.Sort(types)
		types = slices.Compact(types)
		for _, typ := range types {
			if _, ok := tm.Mappings[typ]; !ok {
				tm.Mappings[typ] = tm.Resolve(typ)
			}
		}
	}

	return TypeMapModel{
		typeMap: tm,
		types:   types,
		width:   100,
		height:  24,
	}
}

func (m TypeMapModel) Init() tea.Cmd {
	return nil
}

func (m TypeMapModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.done = true
			m.cancelled = true
			return m, tea.Quit

		case "enter", "f":
			m.done = true
			return m, tea.Quit
		}
		if len(m.types) == 0 {
			return m, nil
		}

		switch msg.String() {
		case "j", "down":
			if m.cursor < len(m.types)-1 {
				m.cursor++
			}

		case "k", "up":
			if m.cursor > 0 {
				m.cursor--
			}

		case "e": // cycle through destination types
			sourceType := m.types[m.cursor]
			m.typeMap.Override(sourceType, nextSQLType(m.typeMap.Resolve(sourceType)))

		case "u":
			m.typeMap.Override(m.types[m.cursor], typemap.Unsupported)

		case "d":
			m.typeMap.RestoreDefault(m.types[m.cursor])
		}
	}

	return m, nil
}

func (m TypeMapModel) View() string {
	var b strings.Builder

	title := titleStyle.Render("Type Map")
	b.WriteString(title + "\n\n")

	if len(m.types) == 0 {
		b.WriteString("  No source types to map.\n\n")
		b.WriteString(dimStyle.Render("  Press enter to confirm • q to cancel\n"))
		return b.String()
	}

	b.WriteString(fmt.Sprintf("  %-30s %-18s %s\n", "Source Type", "Destination Type", "Status"))
	b.WriteString("  " + strings.Repeat("─", 62) + "\n")

	maxVisible := m.height - 10
	if maxVisible < 5 {
		maxVisible = 5
	}
	start := 0
	if m.cursor >= maxVisible {
		start = m.cursor - maxVisible + 1
	}
	end := min(start+maxVisible, len(m.types))

	for i := start; i < end; i++ {
		sourceType := m.types[i]
		sqlType := m.typeMap.Resolve(sourceType)

		cursor := "  "
		if i == m.cursor {
			cursor = highlightStyle.Render("> ")
		}

		typ := string(sqlType)
		if sqlType == typemap.Unsupported {
			typ = warnStyle.Render(fmt.Sprintf("%-18s", typ))
		} else {
			typ = fmt.Sprintf("%-18s", typ)
		}

		status := dimStyle.Render("default")
		if m.typeMap.IsOverridden(sourceType) {
			status = successStyle.Render("override ★")
		}

		b.WriteString(fmt.Sprintf("%s%-30s %s %s\n", cursor, truncate(sourceType, 30), typ, status))
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("  e edit • u unsupported • d restore default • enter confirm • q cancel\n"))

	return b.String()
}

// Result returns the edited type map, or nil if cancelled.
func (m TypeMapModel) Result() *typemap.TypeMap {
	if m.cancelled {
		return nil
	}
	return m.typeMap
}

// Done returns true if the model has finished.
func (m TypeMapModel) Done() bool {
	return m.done
}

// Cancelled returns true if the user cancelled.
func (m TypeMapModel) Cancelled() bool {
	return m.done && m.cancelled
}

// nextSQLType returns the next destination type in the cycle.
func nextSQLType(current typemap.SQLType) typemap.SQLType {
	types := typemap.AllSQLTypes
	for i, t := range types {
		if t == current {
			return types[(i+1)%len(types)]
		}
	}
	return types[0]
}
