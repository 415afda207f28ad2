package target

import (
	"context"
	"slices"

	"github.com/reloquent/catalogmap/internal/config"
)

// Operator reads the destination SQL Server instance.
type Operator interface {
	// Schemas lists the schema names that already exist at the destination.
	Schemas(ctx context.Context) ([]string, error)
	Close() error
}

// New returns a live SQL Server operator when a destination host is
// configured, otherwise a Static operator over the known schemas.
func New(cfg *config.DestinationConfig) Operator {
	if cfg.Host == "" {
		return NewStatic(cfg.KnownSchemas)
	}
	return NewSQLServer(cfg)
}

// Static serves a fixed schema list.
type Static struct {
	names []string
}

// NewStatic creates a Static operator. The default schema "dbo" always
// exists on SQL Server and is added when missing.
func NewStatic(names []string) *Static {
	out := slices.Clone(names)
	if !slices.Contains(out, "dbo") {
		out = append(out, "dbo")
	}
	return &Static{names: out}
}

func (s *Static) Schemas(context.Context) ([]string, error) {
	return slices.Clone(s.names), nil
}

func (s *Static) Close() error { return nil }

// ExistingSchemas lists the destination schemas, adding any known schemas
// from the config that the live listing did not report.
func ExistingSchemas(ctx context.Context, op Operator, known []string) ([]string, error) {
	names, err := op.Schemas(ctx)
	if err != nil {
		return nil, err
	}
	for _, k := range known {
		if !slices.Contains(names, k) {
			names = append(names, k)
		}
	}
	return names, nil
}
