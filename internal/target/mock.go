package target

import "context"

// MockOperator is a test double for the Operator interface.
type MockOperator struct {
	SchemaNames []string
	SchemasErr  error
	CloseErr    error

	// Track calls
	SchemaCalls int
	Closed      bool
}

func (m *MockOperator) Schemas(context.Context) ([]string, error) {
	m.SchemaCalls++
	if m.SchemasErr != nil {
		return nil, m.SchemasErr
	}
	return append([]string(nil), m.SchemaNames...), nil
}

func (m *MockOperator) Close() error {
	m.Closed = true
	return m.CloseErr
}
