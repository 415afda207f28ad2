package mapping

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/reloquent/catalogmap/internal/catalog"
	"github.com/reloquent/catalogmap/internal/location"
)

// noTableInfo is the failure message for an object with no columns.
const noTableInfo = "no table information present"

// Result is the outcome of resolving a mapping. When IsSuccess is false
// and UnsupportedColumns is non-empty, the object exists but cannot be
// mapped. NoColumns marks an object the catalog reports without columns.
type Result struct {
	IsSuccess          bool
	ErrorMessages      []string
	Record             *Record
	UnsupportedColumns []catalog.ColumnDefinition
	NoColumns          bool
}

// Unsupported reports whether the failure is due to column types.
func (r Result) Unsupported() bool {
	return !r.IsSuccess && len(r.UnsupportedColumns) > 0
}

// Definitive reports whether the failure comes from the catalog's answer
// rather than from failing to get one, so retrying cannot succeed.
func (r Result) Definitive() bool {
	return r.Unsupported() || (!r.IsSuccess && r.NoColumns)
}

// Resolver produces the authoritative mapping for a source object from
// the mapping cache and the catalog browser.
type Resolver struct {
	browser *catalog.Browser
	cache   *Cache
	logger  *slog.Logger
}

// NewResolver creates a Resolver. A nil logger uses slog.Default.
func NewResolver(browser *catalog.Browser, cache *Cache, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{browser: browser, cache: cache, logger: logger}
}

// Cache returns the cache backing the resolver.
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// DefaultDestination is the destination name used when the user has not
// edited it: the source schema and table, unchanged.
func DefaultDestination(loc location.Location) []string {
	if s := loc.SchemaName(); s != "" {
		return []string{s, loc.TableName()}
	}
	return []string{loc.TableName()}
}

func unsupportedResult(loc location.Location, cols []catalog.ColumnDefinition) Result {
	msgs := make([]string, 0, len(cols))
	for _, c := range cols {
		msgs = append(msgs, fmt.Sprintf("column %s of %s has unsupported type %s", c.ColumnName, loc.Label(), c.DataType))
	}
	return Result{ErrorMessages: msgs, UnsupportedColumns: cols}
}

// MappingInfo returns the cached record for loc, or synthesizes and caches
// a default one from the column definitions. Objects without columns or
// with unsupported columns are reported as failures and nothing is cached.
func (r *Resolver) MappingInfo(ctx context.Context, id catalog.Identity, loc location.Location) Result {
	if rec, ok := r.cache.Get(id, loc); ok {
		return Result{IsSuccess: true, Record: rec}
	}

	cols := r.browser.ColumnDefinitions(ctx, id, loc)
	if !cols.IsSuccess {
		return Result{ErrorMessages: cols.ErrorMessages}
	}
	if len(cols.Value) == 0 {
		return Result{ErrorMessages: []string{noTableInfo}, NoColumns: true}
	}
	if bad := UnsupportedColumns(cols.Value); len(bad) > 0 {
		r.logger.Debug("unsupported columns", "location", loc.String(), "count", len(bad))
		return unsupportedResult(loc, bad)
	}

	r.cache.Put(id, DefaultDestination(loc), loc, cols.Value, false)
	rec, _ := r.cache.Get(id, loc)
	r.logger.Debug("default mapping created", "location", loc.String(), "destination", rec.QualifiedDestination())
	return Result{IsSuccess: true, Record: rec}
}

// StoreUserEdit saves a destination name chosen by the user, replacing any
// existing record. An empty table name falls back to the source table and
// an empty schema gives a one-part name. Nil columns use the server's
// column definitions. Objects with unsupported columns are not stored.
func (r *Resolver) StoreUserEdit(ctx context.Context, id catalog.Identity, loc location.Location, schema, table string, columns []catalog.ColumnDefinition) Result {
	cols := r.browser.ColumnDefinitions(ctx, id, loc)
	if !cols.IsSuccess {
		return Result{ErrorMessages: cols.ErrorMessages}
	}
	if bad := UnsupportedColumns(cols.Value); len(bad) > 0 {
		return unsupportedResult(loc, bad)
	}
	if columns == nil {
		columns = cols.Value
	}
	if len(columns) == 0 {
		return Result{ErrorMessages: []string{noTableInfo}, NoColumns: true}
	}

	if table == "" {
		table = loc.TableName()
	}
	dest := []string{table}
	if schema != "" {
		dest = []string{schema, table}
	}

	r.cache.Put(id, dest, loc, columns, true)
	rec, _ := r.cache.Get(id, loc)
	r.logger.Debug("mapping edited", "location", loc.String(), "destination", rec.QualifiedDestination())
	return Result{IsSuccess: true, Record: rec}
}
