package typemap

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// SQLType is a column type of the destination external table.
type SQLType string

const (
	SQLBigInt         SQLType = "bigint"
	SQLInt            SQLType = "int"
	SQLSmallInt       SQLType = "smallint"
	SQLTinyInt        SQLType = "tinyint"
	SQLBit            SQLType = "bit"
	SQLDecimal        SQLType = "decimal"
	SQLFloat          SQLType = "float"
	SQLReal           SQLType = "real"
	SQLNVarChar       SQLType = "nvarchar"
	SQLVarChar        SQLType = "varchar"
	SQLNChar          SQLType = "nchar"
	SQLDate           SQLType = "date"
	SQLTime           SQLType = "time"
	SQLDateTime2      SQLType = "datetime2"
	SQLDateTimeOffset SQLType = "datetimeoffset"
	SQLVarBinary      SQLType = "varbinary"
	SQLUniqueID       SQLType = "uniqueidentifier"

	// Unsupported marks a source type that cannot be represented at the
	// destination. Columns of this type make their table unselectable.
	Unsupported SQLType = "unsupported"
)

// AllSQLTypes lists the known destination types for cycling in the editor.
var AllSQLTypes = []SQLType{
	SQLBigInt,
	SQLInt,
	SQLSmallInt,
	SQLTinyInt,
	SQLBit,
	SQLDecimal,
	SQLFloat,
	SQLReal,
	SQLNVarChar,
	SQLVarChar,
	SQLNChar,
	SQLDate,
	SQLTime,
	SQLDateTime2,
	SQLDateTimeOffset,
	SQLVarBinary,
	SQLUniqueID,
	Unsupported,
}

// UnknownDatabaseError is returned for a source type with no default map.
type UnknownDatabaseError struct {
	DBType string
}

func (e *UnknownDatabaseError) Error() string {
	return fmt.Sprintf("no type map for database type %q", e.DBType)
}

// TypeMap holds the mapping from source column types to destination types.
type TypeMap struct {
	Mappings  map[string]SQLType `yaml:"mappings"`
	Overrides map[string]SQLType `yaml:"overrides,omitempty"`
	defaults  map[string]SQLType // not serialized; populated by ForDatabase
}

// DefaultPostgres returns the default type mapping for PostgreSQL.
func DefaultPostgres() *TypeMap {
	m := map[string]SQLType{
		"integer":                     SQLInt,
		"bigint":                      SQLBigInt,
		"smallint":                    SQLSmallInt,
		"numeric":                     SQLDecimal,
		"decimal":                     SQLDecimal,
		"real":                        SQLReal,
		"double precision":            SQLFloat,
		"character varying":           SQLNVarChar,
		"varchar":                     SQLNVarChar,
		"text":                        SQLNVarChar,
		"character":                   SQLNChar,
		"char":                        SQLNChar,
		"boolean":                     SQLBit,
		"date":                        SQLDate,
		"time without time zone":      SQLTime,
		"timestamp without time zone": SQLDateTime2,
		"timestamp with time zone":    SQLDateTimeOffset,
		"bytea":                       SQLVarBinary,
		"uuid":                        SQLUniqueID,
		"json":                        Unsupported,
		"jsonb":                       Unsupported,
		"xml":                         Unsupported,
		"ARRAY":                       Unsupported,
		"USER-DEFINED":                Unsupported,
		"tsvector":                    Unsupported,
		"interval":                    Unsupported,
	}
	return &TypeMap{Mappings: m}
}

// DefaultSQLServer returns the default type mapping for SQL Server.
func DefaultSQLServer() *TypeMap {
	m := map[string]SQLType{
		"bigint":           SQLBigInt,
		"int":              SQLInt,
		"smallint":         SQLSmallInt,
		"tinyint":          SQLTinyInt,
		"bit":              SQLBit,
		"decimal":          SQLDecimal,
		"numeric":          SQLDecimal,
		"money":            SQLDecimal,
		"smallmoney":       SQLDecimal,
		"float":            SQLFloat,
		"real":             SQLReal,
		"char":             SQLVarChar,
		"varchar":          SQLVarChar,
		"nchar":            SQLNChar,
		"nvarchar":         SQLNVarChar,
		"date":             SQLDate,
		"time":             SQLTime,
		"datetime":         SQLDateTime2,
		"datetime2":        SQLDateTime2,
		"smalldatetime":    SQLDateTime2,
		"datetimeoffset":   SQLDateTimeOffset,
		"binary":           SQLVarBinary,
		"varbinary":        SQLVarBinary,
		"uniqueidentifier": SQLUniqueID,
		"text":             Unsupported,
		"ntext":            Unsupported,
		"image":            Unsupported,
		"xml":              Unsupported,
		"sql_variant":      Unsupported,
		"geography":        Unsupported,
		"geometry":         Unsupported,
		"hierarchyid":      Unsupported,
		"timestamp":        Unsupported,
	}
	return &TypeMap{Mappings: m}
}

// DefaultOracle returns the default type mapping for Oracle.
func DefaultOracle() *TypeMap {
	m := map[string]SQLType{
		"NUMBER":                   SQLDecimal,
		"FLOAT":                    SQLFloat,
		"BINARY_FLOAT":             SQLReal,
		"BINARY_DOUBLE":            SQLFloat,
		"VARCHAR2":                 SQLVarChar,
		"NVARCHAR2":                SQLNVarChar,
		"CHAR":                     SQLVarChar,
		"NCHAR":                    SQLNChar,
		"CLOB":                     SQLVarChar,
		"NCLOB":                    SQLNVarChar,
		"DATE":                     SQLDateTime2,
		"TIMESTAMP":                SQLDateTime2,
		"TIMESTAMP WITH TIME ZONE": SQLDateTimeOffset,
		"RAW":                      SQLVarBinary,
		"BLOB":                     SQLVarBinary,
		"LONG":                     Unsupported,
		"LONG RAW":                 Unsupported,
		"BFILE":                    Unsupported,
		"XMLTYPE":                  Unsupported,
		"ROWID":                    Unsupported,
		"UROWID":                   Unsupported,
		"SDO_GEOMETRY":             Unsupported,
	}
	return &TypeMap{Mappings: m}
}

// DefaultMySQL returns the default type mapping for MySQL.
func DefaultMySQL() *TypeMap {
	m := map[string]SQLType{
		"bigint":     SQLBigInt,
		"int":        SQLInt,
		"mediumint":  SQLInt,
		"smallint":   SQLSmallInt,
		"tinyint":    SQLTinyInt,
		"bit":        SQLBit,
		"decimal":    SQLDecimal,
		"float":      SQLReal,
		"double":     SQLFloat,
		"char":       SQLNChar,
		"varchar":    SQLNVarChar,
		"text":       SQLNVarChar,
		"mediumtext": SQLNVarChar,
		"longtext":   SQLNVarChar,
		"enum":       SQLNVarChar,
		"date":       SQLDate,
		"time":       SQLTime,
		"datetime":   SQLDateTime2,
		"timestamp":  SQLDateTime2,
		"binary":     SQLVarBinary,
		"varbinary":  SQLVarBinary,
		"blob":       SQLVarBinary,
		"json":       Unsupported,
		"set":        Unsupported,
		"geometry":   Unsupported,
		"point":      Unsupported,
		"year":       SQLSmallInt,
	}
	return &TypeMap{Mappings: m}
}

// DefaultMongoDB returns the default type mapping for BSON types as
// reported by the MongoDB catalog.
func DefaultMongoDB() *TypeMap {
	m := map[string]SQLType{
		"double":                SQLFloat,
		"string":                SQLNVarChar,
		"objectID":              SQLNVarChar,
		"boolean":               SQLBit,
		"UTC datetime":          SQLDateTime2,
		"32-bit integer":        SQLInt,
		"64-bit integer":        SQLBigInt,
		"128-bit decimal":       SQLDecimal,
		"timestamp":             SQLDateTime2,
		"binary":                SQLVarBinary,
		"embedded document":     SQLNVarChar,
		"array":                 SQLNVarChar,
		"null":                  SQLNVarChar,
		"regex":                 Unsupported,
		"javascript":            Unsupported,
		"javascript with scope": Unsupported,
		"symbol":                Unsupported,
		"DBPointer":             Unsupported,
		"undefined":             Unsupported,
		"min key":               Unsupported,
		"max key":               Unsupported,
	}
	return &TypeMap{Mappings: m}
}

// ForDatabase returns a TypeMap with defaults for the given database type.
func ForDatabase(dbType string) (*TypeMap, error) {
	var tm *TypeMap
	switch dbType {
	case "postgresql", "postgres":
		tm = DefaultPostgres()
	case "sqlserver", "mssql":
		tm = DefaultSQLServer()
	case "oracle":
		tm = DefaultOracle()
	case "mysql":
		tm = DefaultMySQL()
	case "mongodb":
		tm = DefaultMongoDB()
	default:
		return nil, &UnknownDatabaseError{DBType: dbType}
	}
	// Store defaults for override tracking
	tm.defaults = make(map[string]SQLType, len(tm.Mappings))
	for k, v := range tm.Mappings {
		tm.defaults[k] = v
	}
	tm.Overrides = make(map[string]SQLType)
	return tm, nil
}

// baseType strips length, precision and similar suffixes:
// "varchar(20)" and "TIMESTAMP(6)" become "varchar" and "TIMESTAMP".
func baseType(sourceType string) string {
	t := strings.TrimSpace(sourceType)
	if i := strings.IndexByte(t, '('); i >= 0 {
		rest := ""
		if j := strings.IndexByte(t[i:], ')'); j >= 0 {
			rest = t[i+j+1:]
		}
		t = strings.TrimSpace(t[:i]) + rest
	}
	return strings.TrimSpace(t)
}

// Resolve returns the destination type for the given source type. Unknown
// types fall back to nvarchar.
func (tm *TypeMap) Resolve(sourceType string) SQLType {
	if t, ok := tm.Mappings[sourceType]; ok {
		return t
	}
	base := baseType(sourceType)
	if t, ok := tm.Mappings[base]; ok {
		return t
	}
	for k, t := range tm.Mappings {
		if strings.EqualFold(k, base) {
			return t
		}
	}
	return SQLNVarChar // fallback
}

// Supported reports whether columns of sourceType can be mapped.
func (tm *TypeMap) Supported(sourceType string) bool {
	return tm.Resolve(sourceType) != Unsupported
}

// Override applies a user override for a source type.
func (tm *TypeMap) Override(sourceType string, sqlType SQLType) {
	tm.Mappings[sourceType] = sqlType
	if tm.Overrides == nil {
		tm.Overrides = make(map[string]SQLType)
	}
	// Track override only if different from default
	if tm.defaults != nil {
		if def, ok := tm.defaults[sourceType]; ok && def == sqlType {
			delete(tm.Overrides, sourceType)
			return
		}
	}
	tm.Overrides[sourceType] = sqlType
}

// ApplyOverrides copies the overrides of other onto tm.
func (tm *TypeMap) ApplyOverrides(other *TypeMap) {
	if other == nil {
		return
	}
	for k, v := range other.Overrides {
		tm.Override(k, v)
	}
}

// RestoreDefault restores the default mapping for a source type.
func (tm *TypeMap) RestoreDefault(sourceType string) {
	if tm.defaults != nil {
		if def, ok := tm.defaults[sourceType]; ok {
			tm.Mappings[sourceType] = def
			delete(tm.Overrides, sourceType)
		}
	}
}

// IsOverridden returns true if the source type has been overridden from its default.
func (tm *TypeMap) IsOverridden(sourceType string) bool {
	if tm.Overrides == nil {
		return false
	}
	_, ok := tm.Overrides[sourceType]
	return ok
}

// SortedTypes returns the source type names sorted alphabetically.
func (tm *TypeMap) SortedTypes() []string {
	types := make([]string, 0, len(tm.Mappings))
	for k := range tm.Mappings {
		types = append(types, k)
	}
	sort.Strings(types)
	return types
}

// WriteYAML writes the type mapping to a YAML file.
func (tm *TypeMap) WriteYAML(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	data, err := yaml.Marshal(tm)
	if err != nil {
		return fmt.Errorf("marshaling type map: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// LoadYAML reads a type mapping from a YAML file.
func LoadYAML(path string) (*TypeMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading type map file: %w", err)
	}
	tm := &TypeMap{}
	if err := yaml.Unmarshal(data, tm); err != nil {
		return nil, fmt.Errorf("parsing type map: %w", err)
	}
	if tm.Mappings == nil {
		tm.Mappings = make(map[string]SQLType)
	}
	if tm.Overrides == nil {
		tm.Overrides = make(map[string]SQLType)
	}
	return tm, nil
}
