package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/reloquent/catalogmap/internal/location"
)

// Identity scopes one browsing session. Cached data for one identity is
// never visible to another.
type Identity struct {
	DataSourceName     string `yaml:"data_source_name" json:"dataSourceName"`
	SourceServerName   string `yaml:"source_server_name" json:"sourceServerName"`
	SourceDatabaseName string `yaml:"source_database_name" json:"sourceDatabaseName"`
}

// Key returns the identity in the form "[ds@server@db]". Empty parts are
// written as "_".
func (id Identity) Key() string {
	return "[" + keyPart(id.DataSourceName) + "@" + keyPart(id.SourceServerName) + "@" + keyPart(id.SourceDatabaseName) + "]"
}

func (id Identity) String() string {
	return id.Key()
}

func keyPart(s string) string {
	s = location.PeelOffBrackets(s)
	if s == "" {
		return "_"
	}
	return s
}

// ColumnDefinition describes one column as reported by the catalog service.
type ColumnDefinition struct {
	ColumnName    string `yaml:"column_name" json:"columnName"`
	DataType      string `yaml:"data_type" json:"dataType"`
	IsNullable    bool   `yaml:"is_nullable" json:"isNullable"`
	CollationName string `yaml:"collation_name,omitempty" json:"collationName"`
	IsSupported   bool   `yaml:"is_supported" json:"isSupported"`
}

// SchemaTables groups table names by schema.
type SchemaTables struct {
	SchemaName string   `json:"schemaName"`
	TableNames []string `json:"tableNames"`
}

// SchemaViews groups view names by schema.
type SchemaViews struct {
	SchemaName string   `json:"schemaName"`
	ViewNames  []string `json:"viewNames"`
}

type DatabasesResponse struct {
	IsSuccess     bool     `json:"isSuccess"`
	ErrorMessages []string `json:"errorMessages,omitempty"`
	DatabaseNames []string `json:"databaseNames"`
}

type TablesResponse struct {
	IsSuccess        bool           `json:"isSuccess"`
	ErrorMessages    []string       `json:"errorMessages,omitempty"`
	SchemaTablesList []SchemaTables `json:"schemaTablesList"`
}

type ViewsResponse struct {
	IsSuccess       bool          `json:"isSuccess"`
	ErrorMessages   []string      `json:"errorMessages,omitempty"`
	SchemaViewsList []SchemaViews `json:"schemaViewsList"`
}

type ColumnsResponse struct {
	IsSuccess         bool               `json:"isSuccess"`
	ErrorMessages     []string           `json:"errorMessages,omitempty"`
	ColumnDefinitions []ColumnDefinition `json:"columnDefinitions"`
}

// Service is the remote catalog browsing service. A returned error is
// handled the same way as a response with IsSuccess=false.
type Service interface {
	GetDatabases(ctx context.Context, id Identity) (*DatabasesResponse, error)
	GetTables(ctx context.Context, id Identity, database string) (*TablesResponse, error)
	GetViews(ctx context.Context, id Identity, database string) (*ViewsResponse, error)
	GetColumnDefinitions(ctx context.Context, id Identity, loc location.Location) (*ColumnsResponse, error)
}

// Result is the structured outcome of a browser call. Remote failures are
// reported here instead of as Go errors.
type Result[T any] struct {
	IsSuccess     bool
	ErrorMessages []string
	Value         T
}

// Err returns nil on success, otherwise an error carrying the messages.
func (r Result[T]) Err() error {
	if r.IsSuccess {
		return nil
	}
	return &RemoteError{Messages: r.ErrorMessages}
}

func succeeded[T any](v T) Result[T] {
	return Result[T]{IsSuccess: true, Value: v}
}

func failed[T any](err error) Result[T] {
	return Result[T]{ErrorMessages: messagesOf(err)}
}

// RemoteError is a failed or unsuccessful call to the catalog service.
type RemoteError struct {
	Op       string
	Messages []string
}

func (e *RemoteError) Error() string {
	msg := strings.Join(e.Messages, "; ")
	if msg == "" {
		msg = "request failed"
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func messagesOf(err error) []string {
	var re *RemoteError
	if errors.As(err, &re) && len(re.Messages) > 0 {
		return re.Messages
	}
	return []string{err.Error()}
}

// checkResponse turns a nil or unsuccessful response into a RemoteError.
func checkResponse(op string, isSuccess bool, messages []string, err error) error {
	if err != nil {
		return &RemoteError{Messages: []string{op + ": " + err.Error()}}
	}
	if !isSuccess {
		return &RemoteError{Op: op, Messages: messages}
	}
	return nil
}
