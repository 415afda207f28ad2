//go:build integration

package integration

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/reloquent/catalogmap/internal/config"
	"github.com/reloquent/catalogmap/internal/engine"
	"github.com/reloquent/catalogmap/internal/target"
)

const fixtureSchema = "catalogmap_it"

func pgHost() string     { return envOrDefault("CATALOGMAP_TEST_PG_HOST", "localhost") }
func pgDatabase() string { return envOrDefault("CATALOGMAP_TEST_PG_DATABASE", "catalogmap_test") }
func pgUser() string     { return envOrDefault("CATALOGMAP_TEST_PG_USER", "postgres") }
func pgPassword() string { return envOrDefault("CATALOGMAP_TEST_PG_PASSWORD", "postgres") }

func pgPort() int {
	port, err := strconv.Atoi(envOrDefault("CATALOGMAP_TEST_PG_PORT", "25432"))
	if err != nil {
		return 25432
	}
	return port
}

func pgConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		pgUser(), pgPassword(), pgHost(), pgPort(), pgDatabase())
}

func skipIfNoPostgres(t *testing.T) {
	t.Helper()
	if os.Getenv("CATALOGMAP_TEST_PG_HOST") == "" && os.Getenv("CATALOGMAP_TEST_PG_PORT") == "" {
		t.Skip("skipping: CATALOGMAP_TEST_PG_HOST/PORT not set")
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// seedFixture creates a schema with two supported tables, one table with
// an unsupported column and one view. It is dropped when the test ends.
func seedFixture(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	conn, err := pgx.Connect(ctx, pgConnString())
	if err != nil {
		t.Fatalf("connecting: %v", err)
	}
	defer conn.Close(ctx)

	stmts := []string{
		`DROP SCHEMA IF EXISTS ` + fixtureSchema + ` CASCADE`,
		`CREATE SCHEMA ` + fixtureSchema,
		`CREATE TABLE ` + fixtureSchema + `.customers (id integer PRIMARY KEY, name varchar(100) NOT NULL)`,
		`CREATE TABLE ` + fixtureSchema + `.orders (id integer PRIMARY KEY, customer_id integer, total numeric(10,2))`,
		`CREATE TABLE ` + fixtureSchema + `.documents (id integer PRIMARY KEY, body jsonb)`,
		`CREATE VIEW ` + fixtureSchema + `.big_orders AS SELECT id, total FROM ` + fixtureSchema + `.orders WHERE total > 100`,
	}
	for _, stmt := range stmts {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			t.Fatalf("seeding %q: %v", stmt, err)
		}
	}

	t.Cleanup(func() {
		conn, err := pgx.Connect(context.Background(), pgConnString())
		if err != nil {
			return
		}
		defer conn.Close(context.Background())
		conn.Exec(context.Background(), `DROP SCHEMA IF EXISTS `+fixtureSchema+` CASCADE`)
	})
}

func testConfig() *config.Config {
	return &config.Config{
		Version:        config.CurrentVersion,
		DataSourceName: "it",
		Source: config.SourceConfig{
			Type:           "postgresql",
			Host:           pgHost(),
			Port:           pgPort(),
			Database:       pgDatabase(),
			Username:       pgUser(),
			Password:       pgPassword(),
			MaxConnections: 2,
		},
		Destination: config.DestinationConfig{
			DefaultSchema: "dbo",
			KnownSchemas:  []string{"dbo"},
		},
	}
}

// newEngine returns an engine over the test database. The destination is
// static so only the catalog side needs a live server.
func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	cfg := testConfig()
	eng, err := engine.New(cfg, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
		engine.WithTarget(target.NewStatic(cfg.Destination.KnownSchemas)))
	if err != nil {
		t.Fatalf("creating engine: %v", err)
	}
	t.Cleanup(func() { eng.Close() })
	return eng
}
