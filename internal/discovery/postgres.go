package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reloquent/catalogmap/internal/catalog"
	"github.com/reloquent/catalogmap/internal/config"
	"github.com/reloquent/catalogmap/internal/location"
	"github.com/reloquent/catalogmap/internal/typemap"
)

// Postgres implements Catalog for PostgreSQL. A PostgreSQL connection is
// bound to one database, so a pool is opened per database on first use.
type Postgres struct {
	cfg *config.SourceConfig
	tm  *typemap.TypeMap

	mu    sync.Mutex
	pools map[string]*pgxpool.Pool
}

// NewPostgres creates a PostgreSQL catalog.
func NewPostgres(cfg *config.SourceConfig, tm *typemap.TypeMap) *Postgres {
	return &Postgres{cfg: cfg, tm: tm, pools: make(map[string]*pgxpool.Pool)}
}

// ConnString returns the keyword/value DSN for database.
func (p *Postgres) ConnString(database string) string {
	if database == "" {
		database = p.cfg.Database
	}
	if database == "" {
		database = "postgres"
	}
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s application_name=catalogmap default_query_exec_mode=simple_protocol",
		pgQuote(p.cfg.Host), p.cfg.Port, pgQuote(database), pgQuote(p.cfg.Username), pgQuote(p.cfg.Password),
	)
	if p.cfg.SSL {
		connStr += " sslmode=require"
	} else {
		connStr += " sslmode=disable"
	}
	return connStr
}

// pgQuote quotes a DSN value so spaces and quotes survive parsing.
func pgQuote(v string) string {
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v) + "'"
}

func (p *Postgres) pool(ctx context.Context, database string) (*pgxpool.Pool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pool, ok := p.pools[database]; ok {
		return pool, nil
	}

	poolCfg, err := pgxpool.ParseConfig(p.ConnString(database))
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	if p.cfg.MaxConnections > 0 {
		poolCfg.MaxConns = int32(p.cfg.MaxConnections)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging PostgreSQL: %w", err)
	}

	p.pools[database] = pool
	return pool, nil
}

func (p *Postgres) GetDatabases(ctx context.Context, _ catalog.Identity) (*catalog.DatabasesResponse, error) {
	pool, err := p.pool(ctx, p.cfg.Database)
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, `
		SELECT datname
		FROM pg_database
		WHERE NOT datistemplate
		  AND datallowconn
		ORDER BY datname`)
	if err != nil {
		return &catalog.DatabasesResponse{ErrorMessages: unsuccessful("listing databases", err)}, nil
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return &catalog.DatabasesResponse{ErrorMessages: unsuccessful("listing databases", err)}, nil
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return &catalog.DatabasesResponse{ErrorMessages: unsuccessful("listing databases", err)}, nil
	}
	return &catalog.DatabasesResponse{IsSuccess: true, DatabaseNames: names}, nil
}

func (p *Postgres) GetTables(ctx context.Context, _ catalog.Identity, database string) (*catalog.TablesResponse, error) {
	rows, err := p.objects(ctx, database, "BASE TABLE")
	if err != nil {
		return nil, err
	}
	if rows.err != nil {
		return &catalog.TablesResponse{ErrorMessages: unsuccessful("listing tables of "+database, rows.err)}, nil
	}
	return tablesResponse(rows.list), nil
}

func (p *Postgres) GetViews(ctx context.Context, _ catalog.Identity, database string) (*catalog.ViewsResponse, error) {
	rows, err := p.objects(ctx, database, "VIEW")
	if err != nil {
		return nil, err
	}
	if rows.err != nil {
		return &catalog.ViewsResponse{ErrorMessages: unsuccessful("listing views of "+database, rows.err)}, nil
	}
	return viewsResponse(rows.list), nil
}

// objectList separates query failures from connection failures.
type objectList struct {
	list []objectRow
	err  error
}

func (p *Postgres) objects(ctx context.Context, database, tableType string) (objectList, error) {
	pool, err := p.pool(ctx, database)
	if err != nil {
		return objectList{}, err
	}

	rows, err := pool.Query(ctx, `
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_type = $1
		  AND table_schema NOT IN ('pg_catalog', 'information_schema')
		  AND table_schema NOT LIKE 'pg_toast%'
		ORDER BY table_schema, table_name`, tableType)
	if err != nil {
		return objectList{err: err}, nil
	}
	defer rows.Close()

	var out objectList
	for rows.Next() {
		var r objectRow
		if err := rows.Scan(&r.schema, &r.name); err != nil {
			return objectList{err: err}, nil
		}
		out.list = append(out.list, r)
	}
	out.err = rows.Err()
	return out, nil
}

func (p *Postgres) GetColumnDefinitions(ctx context.Context, _ catalog.Identity, loc location.Location) (*catalog.ColumnsResponse, error) {
	pool, err := p.pool(ctx, loc.Database())
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, `
		SELECT column_name, data_type, is_nullable, collation_name
		FROM information_schema.columns
		WHERE table_schema = $1
		  AND table_name = $2
		ORDER BY ordinal_position`, loc.SchemaName(), loc.TableName())
	if err != nil {
		return &catalog.ColumnsResponse{ErrorMessages: unsuccessful("reading columns of "+loc.String(), err)}, nil
	}
	defer rows.Close()

	cols := []catalog.ColumnDefinition{}
	for rows.Next() {
		var name, dataType, nullable string
		var collation *string
		if err := rows.Scan(&name, &dataType, &nullable, &collation); err != nil {
			return &catalog.ColumnsResponse{ErrorMessages: unsuccessful("reading columns of "+loc.String(), err)}, nil
		}
		var coll string
		if collation != nil {
			coll = *collation
		}
		cols = append(cols, column(p.tm, name, dataType, nullable == "YES", coll))
	}
	if err := rows.Err(); err != nil {
		return &catalog.ColumnsResponse{ErrorMessages: unsuccessful("reading columns of "+loc.String(), err)}, nil
	}
	return &catalog.ColumnsResponse{IsSuccess: true, ColumnDefinitions: cols}, nil
}

func (p *Postgres) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, pool := range p.pools {
		pool.Close()
		delete(p.pools, name)
	}
	return nil
}

var _ Catalog = (*Postgres)(nil)
