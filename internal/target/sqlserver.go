package target

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"sync"

	_ "github.com/denisenkom/go-mssqldb"

	"github.com/reloquent/catalogmap/internal/config"
)

// SQLServerOperator implements Operator against a live SQL Server.
type SQLServerOperator struct {
	dsn string

	mu sync.Mutex
	db *sql.DB
}

// NewSQLServer creates an operator for the configured destination. The
// connection is opened on first use.
func NewSQLServer(cfg *config.DestinationConfig) *SQLServerOperator {
	port := cfg.Port
	if port == 0 {
		port = 1433
	}
	q := url.Values{"app name": {"catalogmap"}}
	if cfg.Database != "" {
		q.Set("database", cfg.Database)
	}
	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, port),
		RawQuery: q.Encode(),
	}
	return &SQLServerOperator{dsn: u.String()}
}

func (o *SQLServerOperator) conn(ctx context.Context) (*sql.DB, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.db != nil {
		return o.db, nil
	}
	db, err := sql.Open("sqlserver", o.dsn)
	if err != nil {
		return nil, fmt.Errorf("opening destination connection: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging destination: %w", err)
	}
	o.db = db
	return db, nil
}

// Schemas lists sys.schemas of the destination database.
func (o *SQLServerOperator) Schemas(ctx context.Context) ([]string, error) {
	db, err := o.conn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT name FROM sys.schemas ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing destination schemas: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning schema name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (o *SQLServerOperator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.db == nil {
		return nil
	}
	err := o.db.Close()
	o.db = nil
	return err
}

var _ Operator = (*SQLServerOperator)(nil)
