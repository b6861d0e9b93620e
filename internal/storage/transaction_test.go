package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"birchdb/internal/catalog"
	"birchdb/internal/dberr"
	"birchdb/internal/types"
)

func newTestCaches(t *testing.T) *Caches {
	t.Helper()
	caches, err := NewCaches(16)
	require.NoError(t, err)
	return caches
}

func buildUsersTable(t *testing.T) *catalog.Table {
	t.Helper()
	id := catalog.NewColumn("id", false, types.Integer())
	id.PrimaryKey = true
	name := catalog.NewColumn("name", true, types.Varchar(nil, types.UnitCharacters))
	table, err := catalog.NewTable("users", []*catalog.Column{id, name})
	require.NoError(t, err)
	return table
}

func TestCreateTablePersistsAndReloads(t *testing.T) {
	store := NewMemoryStorage()
	caches := newTestCaches(t)

	tx, err := store.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.CreateTable(caches, buildUsersTable(t), false))
	require.NoError(t, tx.Commit())

	// Force a reload from bytes.
	caches.RemoveTable("users")

	tx, err = store.Begin()
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	table, err := tx.Table(caches, "users")
	require.NoError(t, err)
	require.Len(t, table.Columns, 2)
	assert.Equal(t, "id", table.Columns[0].Name)
	assert.True(t, table.Columns[0].PrimaryKey)
	require.Len(t, table.Indexes, 1)
	assert.Equal(t, catalog.IndexPrimaryKey, table.Indexes[0].Kind)

	names, err := tx.ShowTables()
	require.NoError(t, err)
	assert.Equal(t, []string{"users"}, names)
}

func TestCreateTableDuplicate(t *testing.T) {
	store := NewMemoryStorage()
	caches := newTestCaches(t)

	tx, err := store.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.CreateTable(caches, buildUsersTable(t), false))
	assert.ErrorIs(t, tx.CreateTable(caches, buildUsersTable(t), false), dberr.ErrDuplicateTable)
	assert.NoError(t, tx.CreateTable(caches, buildUsersTable(t), true))
	require.NoError(t, tx.Commit())
}

func TestTupleWriteReadDelete(t *testing.T) {
	store := NewMemoryStorage()
	caches := newTestCaches(t)

	tx, err := store.Begin()
	require.NoError(t, err)
	table := buildUsersTable(t)
	require.NoError(t, tx.CreateTable(caches, table, false))

	typs := table.Columns.Types()
	row := &types.Tuple{
		Pk:     types.Int32Value(1),
		Values: []types.DataValue{types.Int32Value(1), types.NewVarchar("ada")},
	}
	require.NoError(t, tx.AddTuple("users", row, typs))
	assert.ErrorIs(t, tx.AddTuple("users", row, typs), dberr.ErrDuplicateEntry)

	min, max := tx.Codec().TupleBound("users")
	iter, err := tx.NewIter(min, max)
	require.NoError(t, err)
	count := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		count++
	}
	require.NoError(t, iter.Error())
	require.NoError(t, iter.Close())
	assert.Equal(t, 1, count)

	require.NoError(t, tx.RemoveTuple("users", types.Int32Value(1)))
	iter, err = tx.NewIter(min, max)
	require.NoError(t, err)
	assert.False(t, iter.First())
	require.NoError(t, iter.Close())
	require.NoError(t, tx.Commit())
}

func TestRollbackDiscardsWrites(t *testing.T) {
	store := NewMemoryStorage()
	caches := newTestCaches(t)

	tx, err := store.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.CreateTable(caches, buildUsersTable(t), false))
	require.NoError(t, tx.Rollback())
	caches.RemoveTable("users")

	tx, err = store.Begin()
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()
	_, err = tx.Table(caches, "users")
	assert.ErrorIs(t, err, dberr.ErrTableNotFound)
}

func TestUniqueIndexRejectsSecondRow(t *testing.T) {
	store := NewMemoryStorage()

	tx, err := store.Begin()
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	index := catalog.NewIndex(1, types.NewVarchar("ada"), catalog.IndexUnique)
	require.NoError(t, tx.AddIndex("users", index, types.Int32Value(1)))
	// Same value, same row is an idempotent write.
	require.NoError(t, tx.AddIndex("users", index, types.Int32Value(1)))
	// Same value, different row is a conflict.
	assert.ErrorIs(t, tx.AddIndex("users", index, types.Int32Value(2)), dberr.ErrDuplicateEntry)
}

func TestNormalIndexAllowsDuplicates(t *testing.T) {
	store := NewMemoryStorage()

	tx, err := store.Begin()
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	index := catalog.NewIndex(1, types.NewVarchar("ada"), catalog.IndexNormal)
	require.NoError(t, tx.AddIndex("users", index, types.Int32Value(1)))
	require.NoError(t, tx.AddIndex("users", index, types.Int32Value(2)))

	min, max := tx.Codec().IndexBound("users", 1)
	iter, err := tx.NewIter(min, max)
	require.NoError(t, err)
	count := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		count++
	}
	require.NoError(t, iter.Close())
	assert.Equal(t, 2, count)
}

func TestDropTableRemovesEverything(t *testing.T) {
	store := NewMemoryStorage()
	caches := newTestCaches(t)

	tx, err := store.Begin()
	require.NoError(t, err)
	table := buildUsersTable(t)
	require.NoError(t, tx.CreateTable(caches, table, false))
	row := &types.Tuple{
		Pk:     types.Int32Value(1),
		Values: []types.DataValue{types.Int32Value(1), types.NewVarchar("ada")},
	}
	require.NoError(t, tx.AddTuple("users", row, table.Columns.Types()))
	require.NoError(t, tx.Commit())

	tx, err = store.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.DropTable(caches, "users", false))
	require.NoError(t, tx.Commit())
	caches.RemoveTable("users")

	tx, err = store.Begin()
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()
	_, err = tx.Table(caches, "users")
	assert.ErrorIs(t, err, dberr.ErrTableNotFound)
	assert.ErrorIs(t, tx.DropTable(caches, "users", false), dberr.ErrTableNotFound)
	assert.NoError(t, tx.DropTable(caches, "users", true))
}

func TestViewRoundTrip(t *testing.T) {
	store := NewMemoryStorage()
	caches := newTestCaches(t)

	tx, err := store.Begin()
	require.NoError(t, err)
	view := &catalog.View{Name: "v_users", Stmt: "SELECT id FROM users"}
	require.NoError(t, tx.CreateView(caches, view, false))
	assert.ErrorIs(t, tx.CreateView(caches, view, false), dberr.ErrDuplicateTable)
	require.NoError(t, tx.CreateView(caches, view, true))
	require.NoError(t, tx.Commit())

	caches.Views.Remove("v_users")
	tx, err = store.Begin()
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()
	loaded, err := tx.View(caches, "v_users")
	require.NoError(t, err)
	assert.Equal(t, view, loaded)
}

func TestStatisticsPathPersistence(t *testing.T) {
	store := NewMemoryStorage()
	caches := newTestCaches(t)

	tx, err := store.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.SaveStatisticsPath(caches, "users", 0, "stats/users_0"))
	require.NoError(t, tx.Commit())

	caches.Statistics.Purge()
	tx, err = store.Begin()
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()
	path, err := tx.StatisticsPath(caches, "users", 0)
	require.NoError(t, err)
	assert.Equal(t, "stats/users_0", path)
}
