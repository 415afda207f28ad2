//go:build integration

package integration

import (
	"context"
	"slices"
	"testing"

	"github.com/reloquent/catalogmap/internal/location"
)

func TestBrowsePostgresCatalog(t *testing.T) {
	skipIfNoPostgres(t)
	seedFixture(t)
	ctx := context.Background()
	eng := newEngine(t)
	id := eng.Identity()

	dbs := eng.Browser.DatabaseNames(ctx, id)
	if err := dbs.Err(); err != nil {
		t.Fatalf("listing databases: %v", err)
	}
	if !slices.Contains(dbs.Value, pgDatabase()) {
		t.Fatalf("databases %v do not contain %s", dbs.Value, pgDatabase())
	}

	tables := eng.Browser.TableNames(ctx, id, pgDatabase(), fixtureSchema)
	if err := tables.Err(); err != nil {
		t.Fatalf("listing tables: %v", err)
	}
	for _, want := range []string{"[customers]", "[documents]", "[orders]"} {
		if !slices.Contains(tables.Value, want) {
			t.Errorf("tables %v missing %s", tables.Value, want)
		}
	}

	views := eng.Browser.ViewNames(ctx, id, pgDatabase(), fixtureSchema)
	if err := views.Err(); err != nil {
		t.Fatalf("listing views: %v", err)
	}
	if !slices.Contains(views.Value, "[big_orders]") {
		t.Errorf("views %v missing [big_orders]", views.Value)
	}

	loc := location.Location{pgDatabase(), fixtureSchema, "orders"}
	cols := eng.Browser.ColumnDefinitions(ctx, id, loc)
	if err := cols.Err(); err != nil {
		t.Fatalf("reading columns: %v", err)
	}
	if len(cols.Value) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(cols.Value))
	}
	for _, c := range cols.Value {
		if !c.IsSupported {
			t.Errorf("column %s (%s) should be supported", c.ColumnName, c.DataType)
		}
	}
}

func TestUnsupportedColumnDisablesTable(t *testing.T) {
	skipIfNoPostgres(t)
	seedFixture(t)
	ctx := context.Background()
	eng := newEngine(t)

	loc := location.Location{pgDatabase(), fixtureSchema, "documents"}
	res := eng.Resolver.MappingInfo(ctx, eng.Identity(), loc)
	if res.IsSuccess {
		t.Fatal("expected jsonb column to be rejected")
	}
	if !res.Unsupported() {
		t.Fatalf("expected an unsupported-column failure, got %v", res.ErrorMessages)
	}
}
