package catalog

import (
	"context"
	"sync"

	"github.com/reloquent/catalogmap/internal/location"
)

// MockService is a test double for the Service interface. Responses are
// keyed by database name, and by location string for columns.
type MockService struct {
	Databases    []string
	DatabasesErr error
	Tables       map[string][]SchemaTables
	TablesErr    error
	Views        map[string][]SchemaViews
	ViewsErr     error
	Columns      map[string][]ColumnDefinition
	ColumnsErr   error

	// Unsuccessful makes every call answer IsSuccess=false with these messages.
	Unsuccessful []string

	// Gate, when set, blocks every call until it is closed.
	Gate chan struct{}

	mu    sync.Mutex
	calls map[string]int
}

// NewMockService creates an empty MockService.
func NewMockService() *MockService {
	return &MockService{
		Tables:  make(map[string][]SchemaTables),
		Views:   make(map[string][]SchemaViews),
		Columns: make(map[string][]ColumnDefinition),
	}
}

// Calls returns how many times method was invoked.
func (m *MockService) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// TotalCalls returns the number of calls across all methods.
func (m *MockService) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

func (m *MockService) record(ctx context.Context, method string) error {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[method]++
	gate := m.Gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (m *MockService) GetDatabases(ctx context.Context, _ Identity) (*DatabasesResponse, error) {
	if err := m.record(ctx, "GetDatabases"); err != nil {
		return nil, err
	}
	if m.DatabasesErr != nil {
		return nil, m.DatabasesErr
	}
	if m.Unsuccessful != nil {
		return &DatabasesResponse{ErrorMessages: m.Unsuccessful}, nil
	}
	return &DatabasesResponse{IsSuccess: true, DatabaseNames: m.Databases}, nil
}

func (m *MockService) GetTables(ctx context.Context, _ Identity, database string) (*TablesResponse, error) {
	if err := m.record(ctx, "GetTables"); err != nil {
		return nil, err
	}
	if m.TablesErr != nil {
		return nil, m.TablesErr
	}
	if m.Unsuccessful != nil {
		return &TablesResponse{ErrorMessages: m.Unsuccessful}, nil
	}
	return &TablesResponse{IsSuccess: true, SchemaTablesList: m.Tables[database]}, nil
}

func (m *MockService) GetViews(ctx context.Context, _ Identity, database string) (*ViewsResponse, error) {
	if err := m.record(ctx, "GetViews"); err != nil {
		return nil, err
	}
	if m.ViewsErr != nil {
		return nil, m.ViewsErr
	}
	if m.Unsuccessful != nil {
		return &ViewsResponse{ErrorMessages: m.Unsuccessful}, nil
	}
	return &ViewsResponse{IsSuccess: true, SchemaViewsList: m.Views[database]}, nil
}

func (m *MockService) GetColumnDefinitions(ctx context.Context, _ Identity, loc location.Location) (*ColumnsResponse, error) {
	if err := m.record(ctx, "GetColumnDefinitions"); err != nil {
		return nil, err
	}
	if m.ColumnsErr != nil {
		return nil, m.ColumnsErr
	}
	if m.Unsuccessful != nil {
		return &ColumnsResponse{ErrorMessages: m.Unsuccessful}, nil
	}
	return &ColumnsResponse{IsSuccess: true, ColumnDefinitions: m.Columns[loc.String()]}, nil
}
