package discovery

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/reloquent/catalogmap/internal/catalog"
	"github.com/reloquent/catalogmap/internal/config"
	"github.com/reloquent/catalogmap/internal/location"
	"github.com/reloquent/catalogmap/internal/typemap"
)

// MySQL implements Catalog for MySQL and MariaDB. MySQL has no schema level
// below the database, so tables are reported under an empty schema name.
type MySQL struct {
	cfg *config.SourceConfig
	tm  *typemap.TypeMap
	db  *lazyDB
}

// NewMySQL creates a MySQL catalog.
func NewMySQL(cfg *config.SourceConfig, tm *typemap.TypeMap) *MySQL {
	return &MySQL{
		cfg: cfg,
		tm:  tm,
		db:  &lazyDB{driver: "mysql", dsn: mysqlDSN(cfg), maxConns: cfg.MaxConnections},
	}
}

func mysqlDSN(cfg *config.SourceConfig) string {
	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	mc.DBName = cfg.Database
	if cfg.SSL {
		mc.TLSConfig = "true"
	}
	return mc.FormatDSN()
}

func (m *MySQL) GetDatabases(ctx context.Context, _ catalog.Identity) (*catalog.DatabasesResponse, error) {
	db, err := m.db.get(ctx)
	if err != nil {
		return nil, err
	}
	names, err := queryStrings(ctx, db, `
		SELECT SCHEMA_NAME
		FROM information_schema.SCHEMATA
		WHERE SCHEMA_NAME NOT IN ('mysql', 'information_schema', 'performance_schema', 'sys')
		ORDER BY SCHEMA_NAME`)
	if err != nil {
		return &catalog.DatabasesResponse{ErrorMessages: unsuccessful("listing databases", err)}, nil
	}
	return &catalog.DatabasesResponse{IsSuccess: true, DatabaseNames: names}, nil
}

func (m *MySQL) GetTables(ctx context.Context, _ catalog.Identity, database string) (*catalog.TablesResponse, error) {
	db, err := m.db.get(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := objectsOfType(ctx, db, database, "BASE TABLE")
	if err != nil {
		return &catalog.TablesResponse{ErrorMessages: unsuccessful("listing tables of "+database, err)}, nil
	}
	return tablesResponse(rows), nil
}

func (m *MySQL) GetViews(ctx context.Context, _ catalog.Identity, database string) (*catalog.ViewsResponse, error) {
	db, err := m.db.get(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := objectsOfType(ctx, db, database, "VIEW")
	if err != nil {
		return &catalog.ViewsResponse{ErrorMessages: unsuccessful("listing views of "+database, err)}, nil
	}
	return viewsResponse(rows), nil
}

func objectsOfType(ctx context.Context, db *sql.DB, database, tableType string) ([]objectRow, error) {
	names, err := queryStrings(ctx, db, `
		SELECT TABLE_NAME
		FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = ?
		  AND TABLE_TYPE = ?
		ORDER BY TABLE_NAME`, database, tableType)
	if err != nil {
		return nil, err
	}
	rows := make([]objectRow, 0, len(names))
	for _, n := range names {
		rows = append(rows, objectRow{name: n})
	}
	return rows, nil
}

func (m *MySQL) GetColumnDefinitions(ctx context.Context, _ catalog.Identity, loc location.Location) (*catalog.ColumnsResponse, error) {
	db, err := m.db.get(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE, COLLATION_NAME
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = ?
		  AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`, loc.Database(), loc.TableName())
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
		cols = append(cols, column(m.tm, name, dataType, nullable == "YES", collation.String))
	}
	if err := rows.Err(); err != nil {
		return &catalog.ColumnsResponse{ErrorMessages: unsuccessful("reading columns of "+loc.String(), err)}, nil
	}
	return &catalog.ColumnsResponse{IsSuccess: true, ColumnDefinitions: cols}, nil
}

func (m *MySQL) Close() error {
	return m.db.close()
}

var _ Catalog = (*MySQL)(nil)
