package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/reloquent/catalogmap/internal/typemap"
)

func testTypeMap(t *testing.T) *typemap.TypeMap {
	t.Helper()
	tm, err := typemap.ForDatabase("sqlserver")
	if err != nil {
		t.Fatal(err)
	}
	return tm
}

func inUseTypes() []string {
	return []string{"int", "nvarchar", "geography", "datetime2", "int", "varchar(20)"}
}

func TestTypeMapModel_Construction(t *testing.T) {
	m := NewTypeMapModel(testTypeMap(t), inUseTypes())

	// duplicates collapse
	if len(m.types) != 5 {
		t.Errorf("expected 5 unique types, got %d: %v", len(m.types), m.types)
	}
	for i := 1; i < len(m.types); i++ {
		if m.types[i] < m.types[i-1] {
			t.Errorf("types not sorted: %s before %s", m.types[i-1], m.types[i])
		}
	}
	if got := m.typeMap.Mappings["varchar(20)"]; got != typemap.SQLVarChar {
		t.Errorf("varchar(20) should be added as varchar, got %q", got)
	}
}

func TestTypeMapModel_AllTypes(t *testing.T) {
	tm := testTypeMap(t)
	m := NewTypeMapModel(tm, nil)
	if len(m.types) != len(tm.Mappings) {
		t.Errorf("expected all %d mapped types, got %d", len(tm.Mappings), len(m.types))
	}
}

func TestTypeMapModel_Navigation(t *testing.T) {
	m := NewTypeMapModel(testTypeMap(t), inUseTypes())

	result, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	m = result.(TypeMapModel)
	if m.cursor != 1 {
		t.Errorf("after j: cursor should be 1, got %d", m.cursor)
	}

	result, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'k'}})
	m = result.(TypeMapModel)
	if m.cursor != 0 {
		t.Errorf("after k: cursor should be 0, got %d", m.cursor)
	}

	result, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'k'}})
	m = result.(TypeMapModel)
	if m.cursor != 0 {
		t.Errorf("cursor should clamp at 0, got %d", m.cursor)
	}
}

func TestTypeMapModel_EditAndRestore(t *testing.T) {
	m := NewTypeMapModel(testTypeMap(t), inUseTypes())

	sourceType := m.types[m.cursor]
	original := m.typeMap.Resolve(sourceType)
	if m.typeMap.IsOverridden(sourceType) {
		t.Fatal("should not be overridden initially")
	}

	result, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'e'}})
	m = result.(TypeMapModel)
	if m.typeMap.Resolve(sourceType) == original {
		t.Error("pressing 'e' should change the destination type")
	}
	if !m.typeMap.IsOverridden(sourceType) {
		t.Error("should be overridden after edit")
	}

	result, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'d'}})
	m = result.(TypeMapModel)
	if got := m.typeMap.Resolve(sourceType); got != original {
		t.Errorf("after restore: expected %s, got %s", original, got)
	}
	if m.typeMap.IsOverridden(sourceType) {
		t.Error("should not be overridden after restore")
	}
}

func TestTypeMapModel_MarkUnsupported(t *testing.T) {
	m := NewTypeMapModel(testTypeMap(t), []string{"int"})

	result, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'u'}})
	m = result.(TypeMapModel)
	if m.typeMap.Supported("int") {
		t.Error("int should be unsupported after 'u'")
	}
}

func TestTypeMapModel_ConfirmAndCancel(t *testing.T) {
	m := NewTypeMapModel(testTypeMap(t), inUseTypes())

	result, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	rm := result.(TypeMapModel)
	if !rm.Done() || rm.Cancelled() || rm.Result() == nil {
		t.Error("enter should finish with a result")
	}

	result, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	rm = result.(TypeMapModel)
	if !rm.Done() || !rm.Cancelled() || rm.Result() != nil {
		t.Error("q should cancel without a result")
	}
}

func TestTypeMapModel_View(t *testing.T) {
	m := NewTypeMapModel(testTypeMap(t), inUseTypes())
	m.height = 30

	v := m.View()
	for _, want := range []string{"Type Map", "Source Type", "Destination Type", "geography", "unsupported", "default"} {
		if !strings.Contains(v, want) {
			t.Errorf("view should contain %q", want)
		}
	}
}

func TestNextSQLType(t *testing.T) {
	current := typemap.AllSQLTypes[0]
	seen := make(map[typemap.SQLType]bool)
	for range typemap.AllSQLTypes {
		seen[current] = true
		current = nextSQLType(current)
	}
	if len(seen) != len(typemap.AllSQLTypes) {
		t.Errorf("expected to cycle through all %d types, saw %d", len(typemap.AllSQLTypes), len(seen))
	}
	if current != typemap.AllSQLTypes[0] {
		t.Error("should wrap around to first type")
	}
}
