package discovery

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/denisenkom/go-mssqldb"

	"github.com/reloquent/catalogmap/internal/catalog"
	"github.com/reloquent/catalogmap/internal/config"
	"github.com/reloquent/catalogmap/internal/location"
	"github.com/reloquent/catalogmap/internal/typemap"
)

// SQLServer implements Catalog for SQL Server. One connection to the
// configured database reaches every other database through three-part
// INFORMATION_SCHEMA names.
type SQLServer struct {
	cfg *config.SourceConfig
	tm  *typemap.TypeMap
	db  *lazyDB
}

// NewSQLServer creates a SQL Server catalog. No connection is made until
// the first request.
func NewSQLServer(cfg *config.SourceConfig, tm *typemap.TypeMap) *SQLServer {
	return &SQLServer{
		cfg: cfg,
		tm:  tm,
		db:  &lazyDB{driver: "sqlserver", dsn: sqlServerDSN(cfg), maxConns: cfg.MaxConnections},
	}
}

func sqlServerDSN(cfg *config.SourceConfig) string {
	q := url.Values{}
	if cfg.Database != "" {
		q.Set("database", cfg.Database)
	}
	if cfg.SSL {
		q.Set("encrypt", "true")
	} else {
		q.Set("encrypt", "disable")
	}
	q.Set("app name", "catalogmap")
	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		RawQuery: q.Encode(),
	}
	return u.String()
}

// quoteIdent brackets a SQL Server identifier for use in a query.
func quoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (s *SQLServer) GetDatabases(ctx context.Context, _ catalog.Identity) (*catalog.DatabasesResponse, error) {
	db, err := s.db.get(ctx)
	if err != nil {
		return nil, err
	}
	names, err := queryStrings(ctx, db, `
		SELECT name
		FROM sys.databases
		WHERE database_id > 4
		  AND state = 0
		ORDER BY name`)
	if err != nil {
		return &catalog.DatabasesResponse{ErrorMessages: unsuccessful("listing databases", err)}, nil
	}
	return &catalog.DatabasesResponse{IsSuccess: true, DatabaseNames: names}, nil
}

func (s *SQLServer) GetTables(ctx context.Context, _ catalog.Identity, database string) (*catalog.TablesResponse, error) {
	db, err := s.db.get(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := queryObjects(ctx, db, `
		SELECT TABLE_SCHEMA, TABLE_NAME
		FROM `+quoteIdent(database)+`.INFORMATION_SCHEMA.TABLES
		WHERE TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_SCHEMA, TABLE_NAME`)
	if err != nil {
		return &catalog.TablesResponse{ErrorMessages: unsuccessful("listing tables of "+database, err)}, nil
	}
	return tablesResponse(rows), nil
}

func (s *SQLServer) GetViews(ctx context.Context, _ catalog.Identity, database string) (*catalog.ViewsResponse, error) {
	db, err := s.db.get(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := queryObjects(ctx, db, `
		SELECT TABLE_SCHEMA, TABLE_NAME
		FROM `+quoteIdent(database)+`.INFORMATION_SCHEMA.VIEWS
		ORDER BY TABLE_SCHEMA, TABLE_NAME`)
	if err != nil {
		return &catalog.ViewsResponse{ErrorMessages: unsuccessful("listing views of "+database, err)}, nil
	}
	return viewsResponse(rows), nil
}

func (s *SQLServer) GetColumnDefinitions(ctx context.Context, _ catalog.Identity, loc location.Location) (*catalog.ColumnsResponse, error) {
	db, err := s.db.get(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE, COLLATION_NAME
		FROM `+quoteIdent(loc.Database())+`.INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = @p1
		  AND TABLE_NAME = @p2
		ORDER BY ORDINAL_POSITION`, loc.SchemaName(), loc.TableName())
	if err != nil {
		return &catalog.ColumnsResponse{ErrorMessages: unsuccessful("reading columns of "+loc.String(), err)}, nil
	}
	defer rows.Close()

	cols := []catalog.ColumnDefinition{}
	for rows.Next() {
		var name, dataType, nullable string
		var collation sql.NullString
		if err := rows.Scan(&name, &dataType, &nullable, &collation); err != nil {
			return &catalog.ColumnsResponse{ErrorMessages: unsuccessful("reading columns of "+loc.String(), err)}, nil
		}
		cols = append(cols, column(s.tm, name, dataType, nullable == "YES", collation.String))
	}
	if err := rows.Err(); err != nil {
		return &catalog.ColumnsResponse{ErrorMessages: unsuccessful("reading columns of "+loc.String(), err)}, nil
	}
	return &catalog.ColumnsResponse{IsSuccess: true, ColumnDefinitions: cols}, nil
}

func (s *SQLServer) Close() error {
	return s.db.close()
}

var _ Catalog = (*SQLServer)(nil)
