package discovery

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/reloquent/catalogmap/internal/catalog"
	"github.com/reloquent/catalogmap/internal/config"
	"github.com/reloquent/catalogmap/internal/typemap"
)

// Catalog answers catalog browsing requests from a live source database.
// The identity passed to each call is informational; a Catalog is bound to
// the source it was created for.
type Catalog interface {
	catalog.Service

	// Close releases the connections held by the catalog.
	Close() error
}

// New creates a Catalog for the given source configuration. Column support
// is decided by tm; when tm is nil the default map for the source type is
// used.
func New(cfg *config.SourceConfig, tm *typemap.TypeMap) (Catalog, error) {
	if tm == nil {
		var err error
		if tm, err = typemap.ForDatabase(cfg.Type); err != nil {
			return nil, &UnsupportedSourceError{Type: cfg.Type}
		}
	}

	switch cfg.Type {
	case "postgresql":
		return NewPostgres(cfg, tm), nil
	case "oracle":
		return NewOracle(cfg, tm), nil
	case "sqlserver":
		return NewSQLServer(cfg, tm), nil
	case "mysql":
		return NewMySQL(cfg, tm), nil
	case "mongodb":
		return NewMongo(cfg, tm), nil
	default:
		return nil, &UnsupportedSourceError{Type: cfg.Type}
	}
}

// UnsupportedSourceError is returned when the source type has no catalog
// backend.
type UnsupportedSourceError struct {
	Type string
}

func (e *UnsupportedSourceError) Error() string {
	return "unsupported source type: " + e.Type
}

// objectRow is one table or view as listed by a catalog query.
type objectRow struct {
	schema string
	name   string
}

// groupBySchema groups rows by schema, keeping the order in which schemas
// first appear.
func groupBySchema(rows []objectRow) (schemas []string, names map[string][]string) {
	names = make(map[string][]string)
	for _, r := range rows {
		if _, ok := names[r.schema]; !ok {
			schemas = append(schemas, r.schema)
		}
		names[r.schema] = append(names[r.schema], r.name)
	}
	return schemas, names
}

func tablesResponse(rows []objectRow) *catalog.TablesResponse {
	resp := &catalog.TablesResponse{IsSuccess: true, SchemaTablesList: []catalog.SchemaTables{}}
	schemas, names := groupBySchema(rows)
	for _, s := range schemas {
		resp.SchemaTablesList = append(resp.SchemaTablesList, catalog.SchemaTables{SchemaName: s, TableNames: names[s]})
	}
	return resp
}

func viewsResponse(rows []objectRow) *catalog.ViewsResponse {
	resp := &catalog.ViewsResponse{IsSuccess: true, SchemaViewsList: []catalog.SchemaViews{}}
	schemas, names := groupBySchema(rows)
	for _, s := range schemas {
		resp.SchemaViewsList = append(resp.SchemaViewsList, catalog.SchemaViews{SchemaName: s, ViewNames: names[s]})
	}
	return resp
}

// unsuccessful reports a query failure as a structured response so the
// browser can surface the message without treating it as a transport error.
func unsuccessful(op string, err error) []string {
	return []string{fmt.Sprintf("%s: %v", op, err)}
}

func column(tm *typemap.TypeMap, name, dataType string, nullable bool, collation string) catalog.ColumnDefinition {
	return catalog.ColumnDefinition{
		ColumnName:    name,
		DataType:      dataType,
		IsNullable:    nullable,
		CollationName: collation,
		IsSupported:   tm.Supported(dataType),
	}
}

// lazyDB opens a database/sql handle on first use.
type lazyDB struct {
	driver   string
	dsn      string
	maxConns int

	mu sync.Mutex
	db *sql.DB
}

func (l *lazyDB) get(ctx context.Context) (*sql.DB, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db != nil {
		return l.db, nil
	}

	db, err := sql.Open(l.driver, l.dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s connection: %w", l.driver, err)
	}
	if l.maxConns > 0 {
		db.SetMaxOpenConns(l.maxConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging %s: %w", l.driver, err)
	}
	l.db = db
	return db, nil
}

func (l *lazyDB) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}

func queryObjects(ctx context.Context, db *sql.DB, query string, args ...any) ([]objectRow, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []objectRow
	for rows.Next() {
		var r objectRow
		if err := rows.Scan(&r.schema, &r.name); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func queryStrings(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
