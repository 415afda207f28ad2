package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/reloquent/catalogmap/internal/location"
)

var errEmptyResponse = errors.New("empty response from catalog service")

type objectKind string

const (
	tableObjects objectKind = "tables"
	viewObjects  objectKind = "views"
)

// Browser caches catalog enumerations per identity. Table and view names
// for a whole database are fetched with one remote call, and concurrent
// misses for the same database or location share a single call.
type Browser struct {
	svc    Service
	logger *slog.Logger

	mu      sync.Mutex
	scopes  map[string]*scope
	nextGen uint64

	group singleflight.Group
}

// scope holds the four caches of one identity. Clearing an identity
// replaces its scope, so a flight started before the clear writes into
// the discarded one.
type scope struct {
	gen uint64

	databases       []string
	databasesLoaded bool

	objects map[objectKind]map[string][]string
	loaded  map[objectKind]map[string]bool

	columns map[string][]ColumnDefinition
}

// BrowserOption configures a Browser.
type BrowserOption func(*Browser)

// WithLogger sets the logger used for cache and remote call tracing.
func WithLogger(l *slog.Logger) BrowserOption {
	return func(b *Browser) {
		b.logger = l
	}
}

// NewBrowser creates a browser over the given catalog service.
func NewBrowser(svc Service, opts ...BrowserOption) *Browser {
	b := &Browser{
		svc:    svc,
		logger: slog.Default(),
		scopes: make(map[string]*scope),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Browser) scope(id Identity) *scope {
	b.mu.Lock()
	defer b.mu.Unlock()
	sc, ok := b.scopes[id.Key()]
	if !ok {
		b.nextGen++
		sc = &scope{
			gen: b.nextGen,
			objects: map[objectKind]map[string][]string{
				tableObjects: {},
				viewObjects:  {},
			},
			loaded: map[objectKind]map[string]bool{
				tableObjects: {},
				viewObjects:  {},
			},
			columns: make(map[string][]ColumnDefinition),
		}
		b.scopes[id.Key()] = sc
	}
	return sc
}

func (b *Browser) flightKey(id Identity, sc *scope, parts ...string) string {
	key := fmt.Sprintf("%s#%d", id.Key(), sc.gen)
	for _, p := range parts {
		key += "|" + p
	}
	return key
}

// ClearCache drops every cached value for id. Other identities are not
// affected.
func (b *Browser) ClearCache(id Identity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.scopes, id.Key())
	b.logger.Debug("catalog cache cleared", "identity", id.Key())
}

// DatabaseNames returns the databases visible to id.
func (b *Browser) DatabaseNames(ctx context.Context, id Identity) Result[[]string] {
	sc := b.scope(id)

	b.mu.Lock()
	if sc.databasesLoaded {
		names := slices.Clone(sc.databases)
		b.mu.Unlock()
		b.logger.Debug("catalog cache hit", "identity", id.Key(), "kind", "databases")
		return succeeded(names)
	}
	b.mu.Unlock()

	_, err, _ := b.group.Do(b.flightKey(id, sc, "databases"), func() (any, error) {
		b.mu.Lock()
		loaded := sc.databasesLoaded
		b.mu.Unlock()
		if loaded {
			return nil, nil
		}

		b.logger.Debug("fetching databases", "identity", id.Key())
		resp, err := b.svc.GetDatabases(ctx, id)
		if err == nil && resp == nil {
			err = errEmptyResponse
		}
		var ok bool
		var msgs []string
		if resp != nil {
			ok, msgs = resp.IsSuccess, resp.ErrorMessages
		}
		if err := checkResponse("getting databases", ok, msgs, err); err != nil {
			return nil, err
		}

		b.mu.Lock()
		sc.databases = slices.Clone(resp.DatabaseNames)
		sc.databasesLoaded = true
		b.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		b.logger.Warn("listing databases failed", "identity", id.Key(), "error", err)
		return failed[[]string](err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return succeeded(slices.Clone(sc.databases))
}

// TableNames returns the tables of database. With an empty schema the
// names are qualified as "[schema].[table]"; with a schema they are "[table]".
func (b *Browser) TableNames(ctx context.Context, id Identity, database, schema string) Result[[]string] {
	return b.objectNames(ctx, id, tableObjects, database, schema)
}

// ViewNames is TableNames for views.
func (b *Browser) ViewNames(ctx context.Context, id Identity, database, schema string) Result[[]string] {
	return b.objectNames(ctx, id, viewObjects, database, schema)
}

func objectKey(database, schema string) string {
	if schema == "" {
		return location.New(database).String()
	}
	return location.New(database, schema).String()
}

func (b *Browser) objectNames(ctx context.Context, id Identity, kind objectKind, database, schema string) Result[[]string] {
	sc := b.scope(id)
	key := objectKey(database, schema)
	dbKey := objectKey(database, "")

	b.mu.Lock()
	if sc.loaded[kind][dbKey] {
		names := slices.Clone(sc.objects[kind][key])
		b.mu.Unlock()
		b.logger.Debug("catalog cache hit", "identity", id.Key(), "kind", kind, "key", key)
		return succeeded(names)
	}
	b.mu.Unlock()

	_, err, shared := b.group.Do(b.flightKey(id, sc, string(kind), dbKey), func() (any, error) {
		b.mu.Lock()
		loaded := sc.loaded[kind][dbKey]
		b.mu.Unlock()
		if loaded {
			return nil, nil
		}

		b.logger.Debug("fetching catalog objects", "identity", id.Key(), "kind", kind, "database", database)
		groups, err := b.fetchObjects(ctx, id, kind, database)
		if err != nil {
			return nil, err
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		var all []string
		for _, g := range groups {
			for _, name := range g.names {
				if g.schema == "" {
					all = append(all, location.New(name).String())
					continue
				}
				all = append(all, location.New(g.schema, name).String())
				sk := objectKey(database, g.schema)
				sc.objects[kind][sk] = append(sc.objects[kind][sk], location.New(name).String())
			}
		}
		sc.objects[kind][dbKey] = all
		sc.loaded[kind][dbKey] = true
		return nil, nil
	})
	if err != nil {
		b.logger.Warn("listing catalog objects failed", "identity", id.Key(), "kind", kind, "database", database, "error", err)
		return failed[[]string](err)
	}
	if shared {
		b.logger.Debug("catalog fetch shared", "identity", id.Key(), "kind", kind, "key", key)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return succeeded(slices.Clone(sc.objects[kind][key]))
}

type nameGroup struct {
	schema string
	names  []string
}

func (b *Browser) fetchObjects(ctx context.Context, id Identity, kind objectKind, database string) ([]nameGroup, error) {
	var groups []nameGroup
	switch kind {
	case tableObjects:
		resp, err := b.svc.GetTables(ctx, id, database)
		if err == nil && resp == nil {
			err = errEmptyResponse
		}
		if err != nil {
			return nil, checkResponse("getting tables", false, nil, err)
		}
		if err := checkResponse("getting tables", resp.IsSuccess, resp.ErrorMessages, nil); err != nil {
			return nil, err
		}
		for _, st := range resp.SchemaTablesList {
			groups = append(groups, nameGroup{schema: st.SchemaName, names: st.TableNames})
		}
	case viewObjects:
		resp, err := b.svc.GetViews(ctx, id, database)
		if err == nil && resp == nil {
			err = errEmptyResponse
		}
		if err != nil {
			return nil, checkResponse("getting views", false, nil, err)
		}
		if err := checkResponse("getting views", resp.IsSuccess, resp.ErrorMessages, nil); err != nil {
			return nil, err
		}
		for _, sv := range resp.SchemaViewsList {
			groups = append(groups, nameGroup{schema: sv.SchemaName, names: sv.ViewNames})
		}
	}
	return groups, nil
}

// ColumnDefinitions returns the columns of the table or view at loc. Only
// successful lookups are cached.
func (b *Browser) ColumnDefinitions(ctx context.Context, id Identity, loc location.Location) Result[[]ColumnDefinition] {
	sc := b.scope(id)
	key := loc.String()

	b.mu.Lock()
	if cols, ok := sc.columns[key]; ok {
		cols = slices.Clone(cols)
		b.mu.Unlock()
		b.logger.Debug("catalog cache hit", "identity", id.Key(), "kind", "columns", "key", key)
		return succeeded(cols)
	}
	b.mu.Unlock()

	v, err, _ := b.group.Do(b.flightKey(id, sc, "columns", key), func() (any, error) {
		b.mu.Lock()
		cols, ok := sc.columns[key]
		b.mu.Unlock()
		if ok {
			return cols, nil
		}

		b.logger.Debug("fetching column definitions", "identity", id.Key(), "location", key)
		resp, err := b.svc.GetColumnDefinitions(ctx, id, loc)
		if err == nil && resp == nil {
			err = errEmptyResponse
		}
		var success bool
		var msgs []string
		if resp != nil {
			success, msgs = resp.IsSuccess, resp.ErrorMessages
		}
		if err := checkResponse("getting column definitions for "+key, success, msgs, err); err != nil {
			return nil, err
		}

		cols = slices.Clone(resp.ColumnDefinitions)
		b.mu.Lock()
		sc.columns[key] = cols
		b.mu.Unlock()
		return cols, nil
	})
	if err != nil {
		b.logger.Warn("loading column definitions failed", "identity", id.Key(), "location", key, "error", err)
		return failed[[]ColumnDefinition](err)
	}
	return succeeded(slices.Clone(v.([]ColumnDefinition)))
}
