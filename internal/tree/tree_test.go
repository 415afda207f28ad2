package tree

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reloquent/catalogmap/internal/catalog"
	"github.com/reloquent/catalogmap/internal/location"
	"github.com/reloquent/catalogmap/internal/mapping"
)

var (
	idA = catalog.Identity{DataSourceName: "warehouse", SourceServerName: "sql01", SourceDatabaseName: "master"}
	idB = catalog.Identity{DataSourceName: "archive", SourceServerName: "sql02", SourceDatabaseName: "master"}
)

func supported(names ...string) []catalog.ColumnDefinition {
	cols := make([]catalog.ColumnDefinition, 0, len(names))
	for _, n := range names {
		cols = append(cols, catalog.ColumnDefinition{ColumnName: n, DataType: "int", IsSupported: true})
	}
	return cols
}

// fixture: db has dbo.customers, dbo.orders, sales.shapes (unsupported)
// and the view dbo.v_active; reports has two tables and no views.
func fixture() *catalog.MockService {
	svc := catalog.NewMockService()
	svc.Databases = []string{"reports", "db"}
	svc.Tables["db"] = []catalog.SchemaTables{
		{SchemaName: "dbo", TableNames: []string{"orders", "customers"}},
		{SchemaName: "sales", TableNames: []string{"shapes"}},
	}
	svc.Views["db"] = []catalog.SchemaViews{
		{SchemaName: "dbo", ViewNames: []string{"v_active"}},
	}
	svc.Tables["reports"] = []catalog.SchemaTables{
		{SchemaName: "dbo", TableNames: []string{"daily", "monthly"}},
	}
	svc.Columns["[db].[dbo].[customers]"] = supported("id", "name")
	svc.Columns["[db].[dbo].[orders]"] = supported("id", "customer_id")
	svc.Columns["[db].[sales].[shapes]"] = []catalog.ColumnDefinition{
		{ColumnName: "id", DataType: "int", IsSupported: true},
		{ColumnName: "area", DataType: "geography", IsSupported: false},
	}
	svc.Columns["[db].[dbo].[v_active]"] = supported("id")
	svc.Columns["[reports].[dbo].[daily]"] = supported("day")
	svc.Columns["[reports].[dbo].[monthly]"] = supported("month")
	return svc
}

type harness struct {
	svc     *catalog.MockService
	manager *Manager
	cache   *mapping.Cache

	mu      sync.Mutex
	notices []Notice
}

func newHarness(svc *catalog.MockService) *harness {
	h := &harness{svc: svc, cache: mapping.NewCache()}
	browser := catalog.NewBrowser(svc)
	h.manager = NewManager(browser, mapping.NewResolver(browser, h.cache, nil),
		WithNoticeFunc(func(_ string, n Notice) {
			h.mu.Lock()
			h.notices = append(h.notices, n)
			h.mu.Unlock()
		}))
	return h
}

func (h *harness) noticeKinds() []NoticeKind {
	h.mu.Lock()
	defer h.mu.Unlock()
	var kinds []NoticeKind
	for _, n := range h.notices {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

func open(t *testing.T, h *harness, id catalog.Identity) *Session {
	t.Helper()
	s, err := h.manager.Open(id)
	require.NoError(t, err)
	return s
}

func mustFind(t *testing.T, s *Session, id string) *Node {
	t.Helper()
	n, ok := s.Find(id)
	require.True(t, ok, "node %s not found", id)
	return n
}

func expand(t *testing.T, s *Session, ids ...string) {
	t.Helper()
	ctx := context.Background()
	_, err := s.Children(ctx, s.Root())
	require.NoError(t, err)
	for _, id := range ids {
		_, err := s.Children(ctx, mustFind(t, s, id))
		require.NoError(t, err)
	}
}

func labels(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Label()
	}
	return out
}

func TestChildrenIdempotent(t *testing.T) {
	h := newHarness(fixture())
	s := open(t, h, idA)
	ctx := context.Background()

	first, err := s.Children(ctx, s.Root())
	require.NoError(t, err)
	second, err := s.Children(ctx, s.Root())
	require.NoError(t, err)

	require.Len(t, first, 2)
	for i := range first {
		assert.Same(t, first[i], second[i])
	}
	assert.Equal(t, 1, h.svc.Calls("GetDatabases"))
}

func TestChildrenConcurrentLoadsOnce(t *testing.T) {
	svc := fixture()
	svc.Gate = make(chan struct{})
	h := newHarness(svc)
	s := open(t, h, idA)

	var wg sync.WaitGroup
	results := make([][]*Node, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			kids, err := s.Children(context.Background(), s.Root())
			assert.NoError(t, err)
			results[i] = kids
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(svc.Gate)
	wg.Wait()

	assert.Equal(t, 1, svc.Calls("GetDatabases"))
	for _, kids := range results {
		require.Len(t, kids, 2)
		assert.Same(t, results[0][0], kids[0])
		assert.Same(t, results[0][1], kids[1])
	}
	assert.Equal(t, 3, h.manager.Registry().Len(s.ID()))
}

func TestNodeIdentifiersAndLabels(t *testing.T) {
	h := newHarness(fixture())
	s := open(t, h, idA)
	ctx := context.Background()

	dbs, err := s.Children(ctx, s.Root())
	require.NoError(t, err)
	assert.Equal(t, []string{"db", "reports"}, labels(dbs))
	assert.Equal(t, "[db]", dbs[0].ID())
	assert.Equal(t, KindDatabase, dbs[0].Kind())

	folders, err := s.Children(ctx, dbs[0])
	require.NoError(t, err)
	require.Len(t, folders, 2)
	assert.Equal(t, "[db].[Tables]", folders[0].ID())
	assert.Equal(t, KindTableFolder, folders[0].Kind())
	assert.Equal(t, "[db].[Views]", folders[1].ID())
	assert.Equal(t, KindViewFolder, folders[1].Kind())
	assert.Zero(t, h.svc.TotalCalls()-1, "database children need no remote call")

	tables, err := s.Children(ctx, folders[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"dbo.customers", "dbo.orders", "sales.shapes"}, labels(tables))
	assert.Equal(t, "[db].[dbo].[customers]", tables[0].ID())
	assert.True(t, tables[0].Location().Equal(location.New("db", "dbo", "customers")))
	assert.True(t, tables[0].IsLeaf())
	assert.Equal(t, "table.svg", tables[0].Icon())
	assert.Equal(t, folders[0].ID(), tables[0].ParentID())
	assert.Same(t, folders[0], s.Parent(tables[0]))
}

func TestTriStateAggregation(t *testing.T) {
	h := newHarness(fixture())
	s := open(t, h, idA)
	ctx := context.Background()
	expand(t, s, "[reports]", "[reports].[Tables]", "[reports].[Views]")

	db := mustFind(t, s, "[reports]")
	folder := mustFind(t, s, "[reports].[Tables]")
	daily := mustFind(t, s, "[reports].[dbo].[daily]")
	monthly := mustFind(t, s, "[reports].[dbo].[monthly]")

	require.NoError(t, s.SetChecked(ctx, daily, true))
	assert.Equal(t, Indeterminate, folder.Checked())
	assert.Equal(t, Indeterminate, db.Checked())
	assert.Equal(t, Indeterminate, s.Root().Checked())

	require.NoError(t, s.SetChecked(ctx, monthly, true))
	assert.Equal(t, Checked, folder.Checked())
	assert.Equal(t, Checked, db.Checked())

	require.NoError(t, s.SetChecked(ctx, daily, false))
	require.NoError(t, s.SetChecked(ctx, monthly, false))
	assert.Equal(t, Unchecked, folder.Checked())
	assert.Equal(t, Unchecked, db.Checked())
	assert.Equal(t, Unchecked, s.Root().Checked())
}

func TestExpansionOnCheck(t *testing.T) {
	h := newHarness(fixture())
	s := open(t, h, idA)
	ctx := context.Background()
	expand(t, s)

	db := mustFind(t, s, "[db]")
	require.False(t, db.Loaded())
	require.NoError(t, s.SetChecked(ctx, db, true))

	tables := mustFind(t, s, "[db].[Tables]")
	views := mustFind(t, s, "[db].[Views]")
	assert.True(t, tables.Loaded())
	assert.True(t, views.Loaded())
	assert.Equal(t, Checked, tables.Checked())
	assert.Equal(t, Checked, views.Checked())
	assert.Equal(t, Checked, db.Checked())

	for _, id := range []string{"[db].[dbo].[customers]", "[db].[dbo].[orders]", "[db].[dbo].[v_active]"} {
		n := mustFind(t, s, id)
		assert.Equal(t, Checked, n.Checked(), id)
		assert.True(t, n.Enabled(), id)
	}

	shapes := mustFind(t, s, "[db].[sales].[shapes]")
	assert.Equal(t, Unchecked, shapes.Checked())
	assert.False(t, shapes.Enabled())
	assert.Contains(t, h.noticeKinds(), NoticeUnsupportedColumnType)

	leaves := s.CheckedLeaves()
	assert.Len(t, leaves, 3)
}

func TestUnsupportedLeafStaysDisabled(t *testing.T) {
	h := newHarness(fixture())
	s := open(t, h, idA)
	ctx := context.Background()
	expand(t, s, "[db]", "[db].[Tables]")

	shapes := mustFind(t, s, "[db].[sales].[shapes]")
	require.NoError(t, s.SetChecked(ctx, shapes, true))
	assert.False(t, shapes.Enabled())
	assert.Equal(t, Unchecked, shapes.Checked())

	require.NoError(t, s.SetEnabled(ctx, shapes, true))
	assert.False(t, shapes.Enabled())

	require.NoError(t, s.SetChecked(ctx, shapes, true))
	assert.Equal(t, Unchecked, shapes.Checked())

	folder := mustFind(t, s, "[db].[Tables]")
	require.NoError(t, s.SetEnabled(ctx, folder, true))
	assert.False(t, shapes.Enabled())
	assert.True(t, folder.Enabled())
}

func TestEmptyContainer(t *testing.T) {
	h := newHarness(fixture())
	s := open(t, h, idA)
	ctx := context.Background()
	expand(t, s, "[reports]")

	views := mustFind(t, s, "[reports].[Views]")
	kids, err := s.Children(ctx, views)
	require.NoError(t, err)
	assert.Empty(t, kids)
	assert.False(t, views.Enabled())
	assert.True(t, views.IsLeaf())
	assert.Equal(t, Unchecked, views.Checked())
	assert.Contains(t, h.noticeKinds(), NoticeEmptyContainer)

	require.NoError(t, s.SetChecked(ctx, views, true))
	assert.Equal(t, Unchecked, views.Checked())
}

func TestCatalogUnavailableIsRetried(t *testing.T) {
	svc := fixture()
	svc.DatabasesErr = errors.New("server unreachable")
	h := newHarness(svc)
	s := open(t, h, idA)
	ctx := context.Background()

	kids, err := s.Children(ctx, s.Root())
	require.NoError(t, err)
	assert.Empty(t, kids)
	assert.False(t, s.Root().Loaded())
	assert.True(t, s.Root().Enabled())
	assert.Equal(t, []NoticeKind{NoticeCatalogUnavailable}, h.noticeKinds())

	svc.DatabasesErr = nil
	kids, err = s.Children(ctx, s.Root())
	require.NoError(t, err)
	assert.Len(t, kids, 2)
}

func TestSetEnabledPropagates(t *testing.T) {
	h := newHarness(fixture())
	s := open(t, h, idA)
	ctx := context.Background()
	expand(t, s, "[reports]", "[reports].[Tables]", "[reports].[Views]")

	db := mustFind(t, s, "[reports]")
	folder := mustFind(t, s, "[reports].[Tables]")
	daily := mustFind(t, s, "[reports].[dbo].[daily]")
	require.NoError(t, s.SetChecked(ctx, db, true))
	require.Equal(t, Checked, daily.Checked())

	require.NoError(t, s.SetEnabled(ctx, folder, false))
	assert.False(t, daily.Enabled())
	assert.Equal(t, Unchecked, daily.Checked())
	assert.False(t, db.Enabled(), "no enabled child left")
	assert.Equal(t, Unchecked, db.Checked())

	require.NoError(t, s.SetEnabled(ctx, folder, true))
	assert.True(t, daily.Enabled())
	assert.True(t, db.Enabled())
	assert.Equal(t, Unchecked, db.Checked())
}

func TestRegistryConflict(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("s1", "n1", &Node{id: "n1"}))
	require.NoError(t, r.Register("s2", "n1", &Node{id: "n1"}))

	err := r.Register("s1", "n1", &Node{id: "n1"})
	var conflict *RegistryConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "s1", conflict.SessionID)
	assert.Equal(t, "n1", conflict.NodeID)

	r.Clear("s1")
	assert.NoError(t, r.Register("s1", "n1", &Node{id: "n1"}))
}

func TestChildKindMismatchIsConflict(t *testing.T) {
	svc := catalog.NewMockService()
	svc.Databases = []string{"shop"}
	svc.Tables["shop"] = []catalog.SchemaTables{{TableNames: []string{"Views"}}}
	h := newHarness(svc)
	s := open(t, h, idA)
	expand(t, s, "[shop]")

	_, err := s.Children(context.Background(), mustFind(t, s, "[shop].[Tables]"))
	var conflict *RegistryConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestValidate(t *testing.T) {
	h := newHarness(fixture())
	s := open(t, h, idA)
	ctx := context.Background()
	expand(t, s, "[db]", "[db].[Tables]")

	assert.ErrorIs(t, s.Validate(ctx), ErrNoObjectsSelected)

	require.NoError(t, s.SetChecked(ctx, mustFind(t, s, "[db].[dbo].[orders]"), true))
	assert.NoError(t, s.Validate(ctx))
}

func TestSelection(t *testing.T) {
	h := newHarness(fixture())
	s := open(t, h, idA)
	ctx := context.Background()
	expand(t, s, "[db]", "[db].[Tables]")

	orders := mustFind(t, s, "[db].[dbo].[orders]")
	customers := mustFind(t, s, "[db].[dbo].[customers]")
	require.NoError(t, s.SetChecked(ctx, orders, true))
	require.NoError(t, s.SetChecked(ctx, customers, true))

	res, err := s.UpdateMapping(ctx, orders.Location(), "staging", "", nil)
	require.NoError(t, err)
	require.True(t, res.IsSuccess)

	require.NoError(t, s.Validate(ctx))
	sel := s.Selection([]string{"dbo"})
	require.Len(t, sel.TableInfoList, 2)
	assert.Equal(t, []string{"dbo", "customers"}, sel.TableInfoList[0].DestinationName)
	assert.Equal(t, []string{"staging", "orders"}, sel.TableInfoList[1].DestinationName)
	assert.Equal(t, []string{"staging"}, sel.NewSchemas)
}

func TestUpdateMappingUnsupported(t *testing.T) {
	h := newHarness(fixture())
	s := open(t, h, idA)
	ctx := context.Background()
	expand(t, s, "[db]", "[db].[Tables]")

	shapes := mustFind(t, s, "[db].[sales].[shapes]")
	res, err := s.UpdateMapping(ctx, shapes.Location(), "ext", "shapes", nil)
	require.NoError(t, err)
	assert.True(t, res.Unsupported())
	assert.False(t, shapes.Enabled())
	assert.Contains(t, h.noticeKinds(), NoticeMappingSkipped)
}

func TestSessionIsolation(t *testing.T) {
	h := newHarness(fixture())
	ctx := context.Background()

	a := open(t, h, idA)
	expand(t, a, "[db]", "[db].[Tables]")
	require.NoError(t, a.SetChecked(ctx, mustFind(t, a, "[db].[dbo].[orders]"), true))
	nodesA := h.manager.Registry().Len(a.ID())
	require.Equal(t, 1, h.svc.Calls("GetTables"))

	b := open(t, h, idB)
	expand(t, b, "[db]", "[db].[Tables]")
	require.Equal(t, 2, h.svc.Calls("GetTables"))
	h.manager.Drop(b)

	assert.Equal(t, nodesA, h.manager.Registry().Len(a.ID()))
	assert.Zero(t, h.manager.Registry().Len(b.ID()))
	assert.True(t, h.cache.Has(idA, location.New("db", "dbo", "orders")))

	res := h.manager.browser.TableNames(ctx, idA, "db", "dbo")
	require.True(t, res.IsSuccess)
	assert.Equal(t, 2, h.svc.Calls("GetTables"), "identity A should still be served from cache")
	assert.Len(t, a.Selection(nil).TableInfoList, 1)
}

func TestDropClosesSession(t *testing.T) {
	h := newHarness(fixture())
	s := open(t, h, idA)
	h.manager.Drop(s)

	_, err := s.Children(context.Background(), s.Root())
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.ErrorIs(t, s.SetChecked(context.Background(), s.Root(), true), ErrSessionClosed)
}

func TestRefreshRebuildsTree(t *testing.T) {
	h := newHarness(fixture())
	s := open(t, h, idA)
	expand(t, s, "[db]")

	fresh, err := h.manager.Refresh(s)
	require.NoError(t, err)
	assert.NotEqual(t, s.ID(), fresh.ID())
	assert.False(t, fresh.Root().Loaded())

	_, err = fresh.Children(context.Background(), fresh.Root())
	require.NoError(t, err)
	assert.Equal(t, 2, h.svc.Calls("GetDatabases"))
}

func TestChildrenOfCheckedParentStartChecked(t *testing.T) {
	svc := fixture()
	svc.ViewsErr = errors.New("timeout")
	h := newHarness(svc)
	s := open(t, h, idA)
	ctx := context.Background()
	expand(t, s, "[db]")

	views := mustFind(t, s, "[db].[Views]")
	require.NoError(t, s.SetChecked(ctx, views, true))
	assert.Equal(t, Checked, views.Checked())
	assert.False(t, views.Loaded())
	assert.Contains(t, h.noticeKinds(), NoticeCatalogUnavailable)

	svc.ViewsErr = nil
	kids, err := s.Children(ctx, views)
	require.NoError(t, err)
	require.Len(t, kids, 1)
	assert.Equal(t, Checked, kids[0].Checked())
}

func TestNoticeCallbackMayUseSession(t *testing.T) {
	svc := fixture()
	svc.DatabasesErr = errors.New("down")
	browser := catalog.NewBrowser(svc)

	var s *Session
	var seen NodeView
	m := NewManager(browser, mapping.NewResolver(browser, mapping.NewCache(), nil),
		WithNoticeFunc(func(_ string, _ Notice) {
			seen = s.View(s.Root())
		}))
	s, err := m.Open(idA)
	require.NoError(t, err)

	_, err = s.Children(context.Background(), s.Root())
	require.NoError(t, err)
	assert.Equal(t, "root", seen.ID)
	assert.Equal(t, "unchecked", seen.State)
	assert.Len(t, s.Notices(), 1)
}

func TestTakeChanges(t *testing.T) {
	h := newHarness(fixture())
	s := open(t, h, idA)
	ctx := context.Background()
	expand(t, s, "[reports]", "[reports].[Tables]")
	s.TakeChanges()

	require.NoError(t, s.SetChecked(ctx, mustFind(t, s, "[reports].[dbo].[daily]"), true))
	changed := s.TakeChanges()
	assert.Contains(t, changed, "[reports].[dbo].[daily]")
	assert.Contains(t, changed, "[reports].[Tables]")
	assert.Empty(t, s.TakeChanges())
}

func TestExpansionOnCheckReportsNewNodes(t *testing.T) {
	h := newHarness(fixture())
	s := open(t, h, idA)
	ctx := context.Background()
	expand(t, s)
	s.TakeChanges()

	require.NoError(t, s.SetChecked(ctx, mustFind(t, s, "[db]"), true))
	changed := s.TakeChanges()
	for _, id := range []string{
		"[db]", "[db].[Tables]", "[db].[Views]",
		"[db].[dbo].[customers]", "[db].[dbo].[orders]", "[db].[dbo].[v_active]",
		"[db].[sales].[shapes]",
	} {
		assert.Contains(t, changed, id)
	}
}

func TestLeafWithoutColumnsIsDisabled(t *testing.T) {
	svc := fixture()
	delete(svc.Columns, "[db].[dbo].[orders]")
	h := newHarness(svc)
	s := open(t, h, idA)
	ctx := context.Background()
	expand(t, s, "[db]", "[db].[Tables]")

	orders := mustFind(t, s, "[db].[dbo].[orders]")
	require.NoError(t, s.SetChecked(ctx, orders, true))
	assert.False(t, orders.Enabled())
	assert.Equal(t, Unchecked, orders.Checked())
	assert.Contains(t, h.noticeKinds(), NoticeMappingSkipped)
	assert.ErrorIs(t, s.Validate(ctx), ErrNoObjectsSelected)
}

func TestValidateDisablesLeafThatLostItsColumns(t *testing.T) {
	svc := fixture()
	h := newHarness(svc)
	s := open(t, h, idA)
	ctx := context.Background()
	expand(t, s, "[db]", "[db].[Tables]")

	svc.ColumnsErr = errors.New("timeout")
	orders := mustFind(t, s, "[db].[dbo].[orders]")
	require.NoError(t, s.SetChecked(ctx, orders, true))
	require.Equal(t, Checked, orders.Checked())
	require.True(t, orders.Enabled())

	svc.ColumnsErr = nil
	delete(svc.Columns, "[db].[dbo].[orders]")
	assert.ErrorIs(t, s.Validate(ctx), ErrNoObjectsSelected)
	assert.False(t, orders.Enabled())
	assert.Empty(t, s.Selection(nil).TableInfoList)
}

func TestValidateFailsWhenMappingUnreadable(t *testing.T) {
	svc := fixture()
	h := newHarness(svc)
	s := open(t, h, idA)
	ctx := context.Background()
	expand(t, s, "[db]", "[db].[Tables]")

	svc.ColumnsErr = errors.New("timeout")
	require.NoError(t, s.SetChecked(ctx, mustFind(t, s, "[db].[dbo].[orders]"), true))
	require.NoError(t, s.SetChecked(ctx, mustFind(t, s, "[db].[dbo].[customers]"), true))

	err := s.Validate(ctx)
	var remote *catalog.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Len(t, remote.Messages, 2)
	assert.Len(t, s.CheckedLeaves(), 2, "a failed read does not disable the leaf")

	svc.ColumnsErr = nil
	require.NoError(t, s.Validate(ctx))
	assert.Len(t, s.Selection(nil).TableInfoList, len(s.CheckedLeaves()))
}

func TestUserEditSurvivesOtherSessionOnIdentity(t *testing.T) {
	h := newHarness(fixture())
	ctx := context.Background()

	first := open(t, h, idA)
	expand(t, first, "[db]", "[db].[Tables]")
	orders := mustFind(t, first, "[db].[dbo].[orders]")
	require.NoError(t, first.SetChecked(ctx, orders, true))
	res, err := first.UpdateMapping(ctx, orders.Location(), "stage", "orders_copy", nil)
	require.NoError(t, err)
	require.True(t, res.IsSuccess)

	second := open(t, h, idA)
	assert.Equal(t, 2, h.manager.Live(idA))
	fresh, err := h.manager.Refresh(second)
	require.NoError(t, err)
	h.manager.Drop(fresh)
	assert.Equal(t, 1, h.manager.Live(idA))

	require.NoError(t, first.Validate(ctx))
	sel := first.Selection(nil)
	require.Len(t, sel.TableInfoList, 1)
	assert.Equal(t, []string{"stage", "orders_copy"}, sel.TableInfoList[0].DestinationName)

	h.manager.Drop(first)
	assert.Zero(t, h.manager.Live(idA))
	assert.Zero(t, h.cache.Len(idA), "last session clears the identity's mappings")
}

func TestDropWaitsForRunningCheck(t *testing.T) {
	svc := fixture()
	h := newHarness(svc)
	s := open(t, h, idA)
	expand(t, s)
	db := mustFind(t, s, "[db]")
	svc.Gate = make(chan struct{})

	checkErr := make(chan error, 1)
	go func() {
		checkErr <- s.SetChecked(context.Background(), db, true)
	}()
	time.Sleep(50 * time.Millisecond)

	dropped := make(chan struct{})
	go func() {
		h.manager.Drop(s)
		close(dropped)
	}()
	time.Sleep(50 * time.Millisecond)
	select {
	case <-dropped:
		t.Fatal("drop returned while the check was still walking")
	default:
	}

	close(svc.Gate)
	require.NoError(t, <-checkErr)
	<-dropped

	assert.Zero(t, h.manager.Registry().Len(s.ID()))
	assert.Zero(t, h.manager.Live(idA))
}

func TestChildrenFinishingAfterDrop(t *testing.T) {
	svc := fixture()
	svc.Gate = make(chan struct{})
	h := newHarness(svc)
	s := open(t, h, idA)

	loadErr := make(chan error, 1)
	go func() {
		_, err := s.Children(context.Background(), s.Root())
		loadErr <- err
	}()
	time.Sleep(50 * time.Millisecond)

	h.manager.Drop(s)
	close(svc.Gate)
	assert.ErrorIs(t, <-loadErr, ErrSessionClosed)
	assert.Zero(t, h.manager.Registry().Len(s.ID()))
}
