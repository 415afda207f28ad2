package discovery

import (
	"context"
	"fmt"
	"net/url"

	_ "github.com/sijms/go-ora/v2"

	"github.com/reloquent/catalogmap/internal/catalog"
	"github.com/reloquent/catalogmap/internal/config"
	"github.com/reloquent/catalogmap/internal/location"
	"github.com/reloquent/catalogmap/internal/typemap"
)

// ownerFilter limits catalog queries to schemas not maintained by Oracle.
const ownerFilter = `OWNER IN (SELECT USERNAME FROM ALL_USERS WHERE ORACLE_MAINTAINED = 'N')`

// Oracle implements Catalog for Oracle databases using go-ora (pure Go, no
// Instant Client). The configured service is the only database; owners
// play the role of schemas.
type Oracle struct {
	cfg *config.SourceConfig
	tm  *typemap.TypeMap
	db  *lazyDB
}

// NewOracle creates an Oracle catalog. When cfg.Schema is set only that
// owner is listed.
func NewOracle(cfg *config.SourceConfig, tm *typemap.TypeMap) *Oracle {
	return &Oracle{
		cfg: cfg,
		tm:  tm,
		db:  &lazyDB{driver: "oracle", dsn: oracleDSN(cfg), maxConns: cfg.MaxConnections},
	}
}

func oracleDSN(cfg *config.SourceConfig) string {
	u := &url.URL{
		Scheme: "oracle",
		User:   url.UserPassword(cfg.Username, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   "/" + cfg.Database,
	}
	if cfg.SSL {
		u.RawQuery = url.Values{"SSL": {"true"}}.Encode()
	}
	return u.String()
}

func (o *Oracle) ownerClause() (string, []any) {
	if o.cfg.Schema != "" {
		return "OWNER = :1", []any{o.cfg.Schema}
	}
	return ownerFilter, nil
}

func (o *Oracle) GetDatabases(ctx context.Context, _ catalog.Identity) (*catalog.DatabasesResponse, error) {
	if _, err := o.db.get(ctx); err != nil {
		return nil, err
	}
	return &catalog.DatabasesResponse{IsSuccess: true, DatabaseNames: []string{o.cfg.Database}}, nil
}

func (o *Oracle) GetTables(ctx context.Context, _ catalog.Identity, database string) (*catalog.TablesResponse, error) {
	db, err := o.db.get(ctx)
	if err != nil {
		return nil, err
	}
	where, args := o.ownerClause()
	rows, err := queryObjects(ctx, db, `
		SELECT OWNER, TABLE_NAME
		FROM ALL_TABLES
		WHERE `+where+`
		ORDER BY OWNER, TABLE_NAME`, args...)
	if err != nil {
		return &catalog.TablesResponse{ErrorMessages: unsuccessful("listing tables of "+database, err)}, nil
	}
	return tablesResponse(rows), nil
}

func (o *Oracle) GetViews(ctx context.Context, _ catalog.Identity, database string) (*catalog.ViewsResponse, error) {
	db, err := o.db.get(ctx)
	if err != nil {
		return nil, err
	}
	where, args := o.ownerClause()
	rows, err := queryObjects(ctx, db, `
		SELECT OWNER, VIEW_NAME
		FROM ALL_VIEWS
		WHERE `+where+`
		ORDER BY OWNER, VIEW_NAME`, args...)
	if err != nil {
		return &catalog.ViewsResponse{ErrorMessages: unsuccessful("listing views of "+database, err)}, nil
	}
	return viewsResponse(rows), nil
}

func (o *Oracle) GetColumnDefinitions(ctx context.Context, _ catalog.Identity, loc location.Location) (*catalog.ColumnsResponse, error) {
	db, err := o.db.get(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT COLUMN_NAME, DATA_TYPE, NULLABLE
		FROM ALL_TAB_COLUMNS
		WHERE OWNER = :1
		  AND TABLE_NAME = :2
		ORDER BY COLUMN_ID`, loc.SchemaName(), loc.TableName())
	if err != nil {
		return &catalog.ColumnsResponse{ErrorMessages: unsuccessful("reading columns of "+loc.String(), err)}, nil
	}
	defer rows.Close()

	cols := []catalog.ColumnDefinition{}
	for rows.Next() {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return &catalog.ColumnsResponse{ErrorMessages: unsuccessful("reading columns of "+loc.String(), err)}, nil
		}
		cols = append(cols, column(o.tm, name, dataType, nullable == "Y", ""))
	}
	if err := rows.Err(); err != nil {
		return &catalog.ColumnsResponse{ErrorMessages: unsuccessful("reading columns of "+loc.String(), err)}, nil
	}
	return &catalog.ColumnsResponse{IsSuccess: true, ColumnDefinitions: cols}, nil
}

func (o *Oracle) Close() error {
	return o.db.close()
}

var _ Catalog = (*Oracle)(nil)
