package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/reloquent/catalogmap/internal/aws"
	"github.com/reloquent/catalogmap/internal/catalog"
	"github.com/reloquent/catalogmap/internal/config"
	"github.com/reloquent/catalogmap/internal/discovery"
	"github.com/reloquent/catalogmap/internal/mapping"
	"github.com/reloquent/catalogmap/internal/selection"
	"github.com/reloquent/catalogmap/internal/target"
	"github.com/reloquent/catalogmap/internal/tree"
	"github.com/reloquent/catalogmap/internal/typemap"
)

// ErrUnknownSession is returned for a session id that is not open.
var ErrUnknownSession = errors.New("unknown session")

// Engine wires the catalog, mapping and tree layers together and is
// shared by all interfaces.
type Engine struct {
	Config   *config.Config
	TypeMap  *typemap.TypeMap
	Logger   *slog.Logger
	Browser  *catalog.Browser
	Resolver *mapping.Resolver
	Manager  *tree.Manager

	service catalog.Service
	target  target.Operator

	awsMu     sync.Mutex
	awsClient aws.Client

	mu       sync.Mutex
	sessions map[string]*tree.Session
	onNotice tree.NoticeFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithService replaces the catalog backend built from the source config.
func WithService(svc catalog.Service) Option {
	return func(e *Engine) {
		e.service = svc
	}
}

// WithTarget replaces the destination operator built from the config.
func WithTarget(op target.Operator) Option {
	return func(e *Engine) {
		e.target = op
	}
}

// WithAWSClient sets the client used for s3:// output.
func WithAWSClient(c aws.Client) Option {
	return func(e *Engine) {
		e.awsClient = c
	}
}

// New creates an Engine for cfg. Without WithService the catalog backend
// for cfg.Source is created; no connection is made until first use.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		Config:   cfg,
		Logger:   logger,
		sessions: make(map[string]*tree.Session),
	}
	for _, opt := range opts {
		opt(e)
	}

	tm, err := LoadTypeMap(cfg)
	if err != nil {
		return nil, err
	}
	e.TypeMap = tm

	if e.service == nil {
		c, err := discovery.New(&cfg.Source, tm)
		if err != nil {
			return nil, fmt.Errorf("creating catalog: %w", err)
		}
		e.service = c
	}
	if e.target == nil {
		e.target = target.New(&cfg.Destination)
	}

	e.Browser = catalog.NewBrowser(e.service, catalog.WithLogger(logger))
	e.Resolver = mapping.NewResolver(e.Browser, mapping.NewCache(), logger)
	e.Manager = tree.NewManager(e.Browser, e.Resolver,
		tree.WithLogger(logger),
		tree.WithNoticeFunc(e.dispatchNotice),
	)
	return e, nil
}

// LoadTypeMap returns the default map for the source type with any
// overrides from cfg.TypeMapPath applied.
func LoadTypeMap(cfg *config.Config) (*typemap.TypeMap, error) {
	tm, err := typemap.ForDatabase(cfg.Source.Type)
	if err != nil {
		return nil, err
	}
	if cfg.TypeMapPath == "" {
		return tm, nil
	}
	overrides, err := typemap.LoadYAML(config.ExpandHome(cfg.TypeMapPath))
	if err != nil {
		return nil, err
	}
	tm.ApplyOverrides(overrides)
	return tm, nil
}

// SetNoticeFunc registers the callback that receives notices from every
// session. It replaces any previous callback.
func (e *Engine) SetNoticeFunc(fn tree.NoticeFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onNotice = fn
}

func (e *Engine) dispatchNotice(sessionID string, n tree.Notice) {
	e.mu.Lock()
	fn := e.onNotice
	e.mu.Unlock()

	e.Logger.Log(context.Background(), n.Level, "notice", "session", sessionID, "kind", n.Kind, "node", n.NodeID, "message", n.Text())
	if fn != nil {
		fn(sessionID, n)
	}
}

// Identity returns the browsing identity of the configured source.
func (e *Engine) Identity() catalog.Identity {
	return e.Config.Identity()
}

// OpenSession starts a browsing session over the configured source.
func (e *Engine) OpenSession() (*tree.Session, error) {
	s, err := e.Manager.Open(e.Identity())
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.sessions[s.ID()] = s
	e.mu.Unlock()
	return s, nil
}

// Session returns the open session with the given id.
func (e *Engine) Session(id string) (*tree.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return s, nil
}

// SessionIDs returns the ids of the open sessions, sorted.
func (e *Engine) SessionIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// DropSession closes the session and discards its caches.
func (e *Engine) DropSession(id string) error {
	e.mu.Lock()
	s, ok := e.sessions[id]
	delete(e.sessions, id)
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	e.Manager.Drop(s)
	return nil
}

// RefreshSession replaces the session with a fresh one over the same
// identity. The new session has a new id.
func (e *Engine) RefreshSession(id string) (*tree.Session, error) {
	e.mu.Lock()
	s, ok := e.sessions[id]
	delete(e.sessions, id)
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}

	fresh, err := e.Manager.Refresh(s)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.sessions[fresh.ID()] = fresh
	e.mu.Unlock()
	return fresh, nil
}

// ExistingSchemas lists the destination schemas used to compute new ones.
func (e *Engine) ExistingSchemas(ctx context.Context) ([]string, error) {
	names, err := target.ExistingSchemas(ctx, e.target, e.Config.Destination.KnownSchemas)
	if err != nil {
		return nil, fmt.Errorf("reading destination schemas: %w", err)
	}
	return names, nil
}

// Selection validates the session and returns its selection.
func (e *Engine) Selection(ctx context.Context, s *tree.Session) (*selection.Result, error) {
	if err := s.Validate(ctx); err != nil {
		return nil, err
	}
	existing, err := e.ExistingSchemas(ctx)
	if err != nil {
		return nil, err
	}
	return s.Selection(existing), nil
}

// Leaves loads every database and folder under the session root and
// returns the table and view nodes. When databases is not empty only
// those databases are walked.
func (e *Engine) Leaves(ctx context.Context, s *tree.Session, databases ...string) ([]*tree.Node, error) {
	dbs, err := s.Children(ctx, s.Root())
	if err != nil {
		return nil, err
	}

	var folders []*tree.Node
	for _, db := range dbs {
		if len(databases) > 0 && !slices.Contains(databases, db.Label()) {
			continue
		}
		kids, err := s.Children(ctx, db)
		if err != nil {
			return nil, err
		}
		folders = append(folders, kids...)
	}

	results := make([][]*tree.Node, len(folders))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, f := range folders {
		g.Go(func() error {
			kids, err := s.Children(gctx, f)
			results[i] = kids
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var leaves []*tree.Node
	for _, r := range results {
		for _, n := range r {
			if n.Kind().IsLeafKind() {
				leaves = append(leaves, n)
			}
		}
	}
	return leaves, nil
}

// SelectMatching checks every leaf whose label, or "database.label",
// matches pattern. It returns the ids of the leaves that ended up checked.
func (e *Engine) SelectMatching(ctx context.Context, s *tree.Session, pattern string, databases ...string) ([]string, error) {
	leaves, err := e.Leaves(ctx, s, databases...)
	if err != nil {
		return nil, err
	}

	var checked []string
	for _, leaf := range leaves {
		names := []string{leaf.Label(), leaf.Database() + "." + leaf.Label()}
		if len(selection.FilterByPattern(names, pattern)) == 0 {
			continue
		}
		if err := s.SetChecked(ctx, leaf, true); err != nil {
			return nil, err
		}
		if v := s.View(leaf); v.Checked && v.Enabled {
			checked = append(checked, leaf.ID())
		}
	}
	e.Logger.Info("pattern selection", "pattern", pattern, "matched", len(checked))
	return checked, nil
}

// Publish writes the selection YAML to dest, a local path or an s3://
// uri. An empty dest uses the configured output. It returns where the
// selection was written.
func (e *Engine) Publish(ctx context.Context, res *selection.Result, dest string) (string, error) {
	if dest == "" {
		dest = e.Config.Output
	}
	if dest == "" {
		return "", errors.New("no output destination configured")
	}

	if !aws.IsS3URI(dest) {
		path := config.ExpandHome(dest)
		if err := res.WriteYAML(path); err != nil {
			return "", err
		}
		e.Logger.Info("selection written", "path", path, "objects", len(res.TableInfoList))
		return path, nil
	}

	client, err := e.s3Client(ctx)
	if err != nil {
		return "", err
	}
	data, err := res.YAML()
	if err != nil {
		return "", err
	}
	uri, err := aws.NewSelectionUploader(client).Upload(ctx, dest, data)
	if err != nil {
		return "", err
	}
	e.Logger.Info("selection uploaded", "uri", uri, "objects", len(res.TableInfoList))
	return uri, nil
}

// CheckOutput verifies that the configured s3:// output is writable. Local
// outputs need no check.
func (e *Engine) CheckOutput(ctx context.Context, dest string) (*aws.OutputAccess, error) {
	if dest == "" {
		dest = e.Config.Output
	}
	if !aws.IsS3URI(dest) {
		return nil, nil
	}
	client, err := e.s3Client(ctx)
	if err != nil {
		return nil, err
	}
	return aws.CheckOutputAccess(ctx, client, dest)
}

func (e *Engine) s3Client(ctx context.Context) (aws.Client, error) {
	e.awsMu.Lock()
	defer e.awsMu.Unlock()
	if e.awsClient != nil {
		return e.awsClient, nil
	}
	c, err := aws.NewRealClient(ctx, e.Config.AWS.Profile, e.Config.AWS.Region)
	if err != nil {
		return nil, err
	}
	e.awsClient = c
	return c, nil
}

// Close drops every open session and releases backend connections.
func (e *Engine) Close() error {
	e.mu.Lock()
	sessions := make([]*tree.Session, 0, len(e.sessions))
	for id, s := range e.sessions {
		sessions = append(sessions, s)
		delete(e.sessions, id)
	}
	e.mu.Unlock()

	for _, s := range sessions {
		e.Manager.Drop(s)
	}

	var errs []error
	if c, ok := e.service.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	if e.target != nil {
		errs = append(errs, e.target.Close())
	}
	return errors.Join(errs...)
}
