package birchdb

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"birchdb/internal/dberr"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func mustRun(t *testing.T, db *Database, sql string) *Rows {
	t.Helper()
	rows, err := db.Run(sql)
	require.NoError(t, err, "sql: %s", sql)
	return rows
}

func rowStrings(rows *Rows) [][]string {
	out := make([][]string, 0, rows.Len())
	for _, tuple := range rows.All() {
		cells := make([]string, len(tuple.Values))
		for i, v := range tuple.Values {
			cells[i] = v.String()
		}
		out = append(out, cells)
	}
	return out
}

func seedUsers(t *testing.T, db *Database) {
	t.Helper()
	mustRun(t, db, `CREATE TABLE users (id INT PRIMARY KEY, name VARCHAR(32), age INT)`)
	mustRun(t, db, `INSERT INTO users VALUES (1, 'ada', 36), (2, 'grace', 45), (3, 'alan', 41)`)
}

func TestCreateInsertSelect(t *testing.T) {
	db := openTestDB(t)
	seedUsers(t, db)

	rows := mustRun(t, db, `SELECT id, name, age FROM users`)
	assert.Equal(t, [][]string{
		{"1", "ada", "36"},
		{"2", "grace", "45"},
		{"3", "alan", "41"},
	}, rowStrings(rows))
}

func TestSelectWildcardAndAlias(t *testing.T) {
	db := openTestDB(t)
	seedUsers(t, db)

	rows := mustRun(t, db, `SELECT * FROM users WHERE id = 2`)
	assert.Equal(t, [][]string{{"2", "grace", "45"}}, rowStrings(rows))

	rows = mustRun(t, db, `SELECT name AS who FROM users WHERE id = 1`)
	assert.Equal(t, "who", rows.Schema()[0].Name)
	assert.Equal(t, [][]string{{"ada"}}, rowStrings(rows))
}

func TestWherePointAndRange(t *testing.T) {
	db := openTestDB(t)
	seedUsers(t, db)

	rows := mustRun(t, db, `SELECT id FROM users WHERE id > 1 AND id < 3`)
	assert.Equal(t, [][]string{{"2"}}, rowStrings(rows))

	rows = mustRun(t, db, `SELECT id FROM users WHERE id = 1 OR id = 3`)
	assert.Equal(t, [][]string{{"1"}, {"3"}}, rowStrings(rows))

	rows = mustRun(t, db, `SELECT id FROM users WHERE age > 40`)
	assert.Equal(t, [][]string{{"2"}, {"3"}}, rowStrings(rows))
}

func TestLimitOffset(t *testing.T) {
	db := openTestDB(t)
	seedUsers(t, db)

	rows := mustRun(t, db, `SELECT id FROM users LIMIT 2`)
	assert.Equal(t, [][]string{{"1"}, {"2"}}, rowStrings(rows))

	rows = mustRun(t, db, `SELECT id FROM users LIMIT 2 OFFSET 1`)
	assert.Equal(t, [][]string{{"2"}, {"3"}}, rowStrings(rows))
}

func TestJoins(t *testing.T) {
	db := openTestDB(t)
	seedUsers(t, db)
	mustRun(t, db, `CREATE TABLE orders (oid INT PRIMARY KEY, user_id INT, total INT)`)
	mustRun(t, db, `INSERT INTO orders VALUES (10, 1, 100), (11, 1, 50), (12, 2, 70), (13, 9, 1)`)

	rows := mustRun(t, db, `
		SELECT users.name, orders.total
		FROM users JOIN orders ON users.id = orders.user_id`)
	assert.Equal(t, [][]string{
		{"ada", "100"},
		{"ada", "50"},
		{"grace", "70"},
	}, rowStrings(rows))

	rows = mustRun(t, db, `
		SELECT users.name, orders.total
		FROM users LEFT JOIN orders ON users.id = orders.user_id`)
	assert.Equal(t, [][]string{
		{"ada", "100"},
		{"ada", "50"},
		{"grace", "70"},
		{"alan", "null"},
	}, rowStrings(rows))

	rows = mustRun(t, db, `
		SELECT users.name, orders.oid
		FROM users RIGHT JOIN orders ON users.id = orders.user_id`)
	assert.Equal(t, [][]string{
		{"ada", "10"},
		{"ada", "11"},
		{"grace", "12"},
		{"null", "13"},
	}, rowStrings(rows))
}

func TestCreateIndexAndScan(t *testing.T) {
	db := openTestDB(t)
	seedUsers(t, db)

	mustRun(t, db, `CREATE INDEX idx_age ON users (age)`)
	rows := mustRun(t, db, `SELECT name FROM users WHERE age = 45`)
	assert.Equal(t, [][]string{{"grace"}}, rowStrings(rows))

	// The index scan returns rows in age order, not primary-key order.
	rows = mustRun(t, db, `SELECT name FROM users WHERE age > 36`)
	assert.Equal(t, [][]string{{"alan"}, {"grace"}}, rowStrings(rows))

	// Same name again: plain create fails, IF NOT EXISTS succeeds quietly.
	_, err := db.Run(`CREATE INDEX idx_age ON users (age)`)
	var dup *dberr.DuplicateIndexError
	assert.ErrorAs(t, err, &dup)
	mustRun(t, db, `CREATE INDEX IF NOT EXISTS idx_age ON users (age)`)
}

func TestUniqueIndexEnforced(t *testing.T) {
	db := openTestDB(t)
	mustRun(t, db, `CREATE TABLE emails (id INT PRIMARY KEY, addr VARCHAR(64) UNIQUE)`)
	mustRun(t, db, `INSERT INTO emails VALUES (1, 'a@x')`)
	_, err := db.Run(`INSERT INTO emails VALUES (2, 'a@x')`)
	assert.ErrorIs(t, err, dberr.ErrDuplicateEntry)
}

func TestCompositePrimaryKey(t *testing.T) {
	db := openTestDB(t)
	mustRun(t, db, `CREATE TABLE events (day INT, seq INT, note VARCHAR(32), PRIMARY KEY (day, seq))`)
	mustRun(t, db, `INSERT INTO events VALUES (1, 1, 'a'), (1, 2, 'b'), (2, 1, 'c')`)

	rows := mustRun(t, db, `SELECT note FROM events WHERE day = 1`)
	assert.Equal(t, [][]string{{"a"}, {"b"}}, rowStrings(rows))

	rows = mustRun(t, db, `SELECT note FROM events WHERE day = 1 AND seq > 1`)
	assert.Equal(t, [][]string{{"b"}}, rowStrings(rows))

	rows = mustRun(t, db, `SELECT note FROM events WHERE day = 2 AND seq = 1`)
	assert.Equal(t, [][]string{{"c"}}, rowStrings(rows))
}

func TestUpdateAndDelete(t *testing.T) {
	db := openTestDB(t)
	seedUsers(t, db)

	mustRun(t, db, `UPDATE users SET age = 37 WHERE id = 1`)
	rows := mustRun(t, db, `SELECT age FROM users WHERE id = 1`)
	assert.Equal(t, [][]string{{"37"}}, rowStrings(rows))

	mustRun(t, db, `DELETE FROM users WHERE id = 2`)
	rows = mustRun(t, db, `SELECT id FROM users`)
	assert.Equal(t, [][]string{{"1"}, {"3"}}, rowStrings(rows))
}

func TestNotNullViolation(t *testing.T) {
	db := openTestDB(t)
	mustRun(t, db, `CREATE TABLE notes (id INT PRIMARY KEY, body VARCHAR(16) NOT NULL)`)
	_, err := db.Run(`INSERT INTO notes (id) VALUES (1)`)
	assert.ErrorIs(t, err, dberr.ErrNotNull)
}

func TestVarcharTooLong(t *testing.T) {
	db := openTestDB(t)
	mustRun(t, db, `CREATE TABLE notes (id INT PRIMARY KEY, body VARCHAR(4))`)
	_, err := db.Run(`INSERT INTO notes VALUES (1, 'too long for four')`)
	assert.ErrorIs(t, err, dberr.ErrTooLong)
}

func TestShowTablesAndDrop(t *testing.T) {
	db := openTestDB(t)
	seedUsers(t, db)
	mustRun(t, db, `CREATE TABLE extra (id INT PRIMARY KEY)`)

	rows := mustRun(t, db, `SHOW TABLES`)
	assert.Len(t, rows.All(), 2)

	mustRun(t, db, `DROP TABLE extra`)
	_, err := db.Run(`SELECT * FROM extra`)
	assert.ErrorIs(t, err, dberr.ErrTableNotFound)
}

func TestViews(t *testing.T) {
	db := openTestDB(t)
	seedUsers(t, db)

	mustRun(t, db, `CREATE VIEW seniors AS SELECT name FROM users WHERE age > 40`)
	rows := mustRun(t, db, `SELECT * FROM seniors`)
	assert.Equal(t, [][]string{{"grace"}, {"alan"}}, rowStrings(rows))
}

func TestExplain(t *testing.T) {
	db := openTestDB(t)
	seedUsers(t, db)

	rows := mustRun(t, db, `EXPLAIN SELECT id FROM users WHERE id = 1`)
	require.Len(t, rows.All(), 1)
	text := rows.All()[0].Values[0].String()
	assert.Contains(t, text, "Project")
	assert.Contains(t, text, "TableScan users")
}

func TestAnalyzeTable(t *testing.T) {
	db := openTestDB(t)
	seedUsers(t, db)

	rows := mustRun(t, db, `ANALYZE TABLE users`)
	assert.Equal(t, [][]string{{"3"}}, rowStrings(rows))
}

func TestBatchRollsBackOnError(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Run(`
		CREATE TABLE pets (id INT PRIMARY KEY, name VARCHAR(8));
		INSERT INTO pets VALUES (1, 'way too long name');
	`)
	require.Error(t, err)
	_, err = db.Run(`SELECT * FROM pets`)
	assert.ErrorIs(t, err, dberr.ErrTableNotFound)
}

func TestExpressionProjection(t *testing.T) {
	db := openTestDB(t)
	seedUsers(t, db)

	rows := mustRun(t, db, `SELECT id + 1 FROM users WHERE id = 1`)
	assert.Equal(t, [][]string{{"2"}}, rowStrings(rows))
}

func TestMultipleStatementsReturnLastResult(t *testing.T) {
	db := openTestDB(t)
	rows := mustRun(t, db, strings.Join([]string{
		`CREATE TABLE kv (k INT PRIMARY KEY, v VARCHAR(8))`,
		`INSERT INTO kv VALUES (1, 'one')`,
		`SELECT v FROM kv`,
	}, ";\n"))
	assert.Equal(t, [][]string{{"one"}}, rowStrings(rows))
}

func TestNullComparisonsDropRows(t *testing.T) {
	db := openTestDB(t)
	mustRun(t, db, `CREATE TABLE t (id INT PRIMARY KEY, v INT)`)
	mustRun(t, db, `INSERT INTO t (id, v) VALUES (1, 5)`)
	mustRun(t, db, `INSERT INTO t (id) VALUES (2)`)

	rows := mustRun(t, db, `SELECT id FROM t WHERE v > 0`)
	assert.Equal(t, [][]string{{"1"}}, rowStrings(rows))

	rows = mustRun(t, db, `SELECT id FROM t WHERE v IS NULL`)
	assert.Equal(t, [][]string{{"2"}}, rowStrings(rows))
}
