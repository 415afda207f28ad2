package discovery

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/reloquent/catalogmap/internal/catalog"
	"github.com/reloquent/catalogmap/internal/config"
	"github.com/reloquent/catalogmap/internal/location"
	"github.com/reloquent/catalogmap/internal/typemap"
)

// sampleSize is the number of documents read to infer a collection's fields.
const sampleSize = 20

var systemDatabases = []string{"admin", "config", "local"}

// Mongo implements Catalog for MongoDB. Collections are tables, views are
// views, and columns are inferred from a sample of documents.
type Mongo struct {
	cfg *config.SourceConfig
	tm  *typemap.TypeMap

	mu     sync.Mutex
	client *mongo.Client
}

// NewMongo creates a MongoDB catalog.
func NewMongo(cfg *config.SourceConfig, tm *typemap.TypeMap) *Mongo {
	return &Mongo{cfg: cfg, tm: tm}
}

// ConnString returns the connection URI, preferring an explicit
// connection_string over host and port.
func (m *Mongo) ConnString() string {
	if m.cfg.ConnectionString != "" {
		return m.cfg.ConnectionString
	}
	u := &url.URL{Scheme: "mongodb", Host: fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port), Path: "/"}
	if m.cfg.Username != "" {
		u.User = url.UserPassword(m.cfg.Username, m.cfg.Password)
	}
	q := url.Values{"appName": {"catalogmap"}}
	if m.cfg.SSL {
		q.Set("tls", "true")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (m *Mongo) connect(ctx context.Context) (*mongo.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		return m.client, nil
	}

	opts := options.Client().ApplyURI(m.ConnString())
	if m.cfg.MaxConnections > 0 {
		opts.SetMaxPoolSize(uint64(m.cfg.MaxConnections))
	}
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}
	m.client = client
	return client, nil
}

func (m *Mongo) GetDatabases(ctx context.Context, _ catalog.Identity) (*catalog.DatabasesResponse, error) {
	client, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	names, err := client.ListDatabaseNames(ctx, bson.D{})
	if err != nil {
		return &catalog.DatabasesResponse{ErrorMessages: unsuccessful("listing databases", err)}, nil
	}
	out := []string{}
	for _, n := range names {
		if !slices.Contains(systemDatabases, n) {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return &catalog.DatabasesResponse{IsSuccess: true, DatabaseNames: out}, nil
}

func (m *Mongo) collections(ctx context.Context, database, collType string) ([]objectRow, error) {
	client, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	specs, err := client.Database(database).ListCollectionSpecifications(ctx, bson.D{{Key: "type", Value: collType}})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		if collType == "collection" && strings.HasPrefix(s.Name, "system.") {
			continue
		}
		names = append(names, s.Name)
	}
	slices.Sort(names)
	rows := make([]objectRow, 0, len(names))
	for _, n := range names {
		rows = append(rows, objectRow{name: n})
	}
	return rows, nil
}

func (m *Mongo) GetTables(ctx context.Context, _ catalog.Identity, database string) (*catalog.TablesResponse, error) {
	if _, err := m.connect(ctx); err != nil {
		return nil, err
	}
	rows, err := m.collections(ctx, database, "collection")
	if err != nil {
		return &catalog.TablesResponse{ErrorMessages: unsuccessful("listing collections of "+database, err)}, nil
	}
	return tablesResponse(rows), nil
}

func (m *Mongo) GetViews(ctx context.Context, _ catalog.Identity, database string) (*catalog.ViewsResponse, error) {
	if _, err := m.connect(ctx); err != nil {
		return nil, err
	}
	rows, err := m.collections(ctx, database, "view")
	if err != nil {
		return &catalog.ViewsResponse{ErrorMessages: unsuccessful("listing views of "+database, err)}, nil
	}
	return viewsResponse(rows), nil
}

func (m *Mongo) GetColumnDefinitions(ctx context.Context, _ catalog.Identity, loc location.Location) (*catalog.ColumnsResponse, error) {
	client, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}

	coll := client.Database(loc.Database()).Collection(loc.TableName())
	cursor, err := coll.Find(ctx, bson.D{}, options.Find().SetLimit(sampleSize))
	if err != nil {
		return &catalog.ColumnsResponse{ErrorMessages: unsuccessful("sampling "+loc.String(), err)}, nil
	}
	defer cursor.Close(ctx)

	var docs []bson.Raw
	for cursor.Next(ctx) {
		docs = append(docs, slices.Clone(cursor.Current))
	}
	if err := cursor.Err(); err != nil {
		return &catalog.ColumnsResponse{ErrorMessages: unsuccessful("sampling "+loc.String(), err)}, nil
	}

	cols, err := inferColumns(m.tm, docs)
	if err != nil {
		return &catalog.ColumnsResponse{ErrorMessages: unsuccessful("sampling "+loc.String(), err)}, nil
	}
	return &catalog.ColumnsResponse{IsSuccess: true, ColumnDefinitions: cols}, nil
}

// inferColumns derives one column per top-level field, in first-seen order.
// A field's type is taken from its first non-null value; a field that is
// missing or null in any sampled document is nullable.
func inferColumns(tm *typemap.TypeMap, docs []bson.Raw) ([]catalog.ColumnDefinition, error) {
	type field struct {
		typ      bson.Type
		nullable bool
		seen     int
	}
	var order []string
	fields := make(map[string]*field)

	for _, doc := range docs {
		elems, err := doc.Elements()
		if err != nil {
			return nil, fmt.Errorf("reading document: %w", err)
		}
		for _, el := range elems {
			key := el.Key()
			f, ok := fields[key]
			if !ok {
				f = &field{typ: bson.TypeNull}
				fields[key] = f
				order = append(order, key)
			}
			f.seen++
			t := el.Value().Type
			if t == bson.TypeNull {
				f.nullable = true
				continue
			}
			if f.typ == bson.TypeNull {
				f.typ = t
			}
		}
	}

	cols := make([]catalog.ColumnDefinition, 0, len(order))
	for _, key := range order {
		f := fields[key]
		name := bsonTypeName(f.typ)
		cols = append(cols, column(tm, key, name, f.nullable || f.seen < len(docs), ""))
	}
	return cols, nil
}

// bsonTypeName names BSON types the way the MongoDB type map keys them.
func bsonTypeName(t bson.Type) string {
	switch t {
	case bson.TypeDouble:
		return "double"
	case bson.TypeString:
		return "string"
	case bson.TypeEmbeddedDocument:
		return "embedded document"
	case bson.TypeArray:
		return "array"
	case bson.TypeBinary:
		return "binary"
	case bson.TypeUndefined:
		return "undefined"
	case bson.TypeObjectID:
		return "objectID"
	case bson.TypeBoolean:
		return "boolean"
	case bson.TypeDateTime:
		return "UTC datetime"
	case bson.TypeNull:
		return "null"
	case bson.TypeRegex:
		return "regex"
	case bson.TypeDBPointer:
		return "DBPointer"
	case bson.TypeJavaScript:
		return "javascript"
	case bson.TypeSymbol:
		return "symbol"
	case bson.TypeCodeWithScope:
		return "javascript with scope"
	case bson.TypeInt32:
		return "32-bit integer"
	case bson.TypeTimestamp:
		return "timestamp"
	case bson.TypeInt64:
		return "64-bit integer"
	case bson.TypeDecimal128:
		return "128-bit decimal"
	case bson.TypeMinKey:
		return "min key"
	case bson.TypeMaxKey:
		return "max key"
	default:
		return fmt.Sprintf("bson type %d", byte(t))
	}
}

func (m *Mongo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil
	}
	err := m.client.Disconnect(context.Background())
	m.client = nil
	return err
}

var _ Catalog = (*Mongo)(nil)
