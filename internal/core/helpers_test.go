package core

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// stubCall is one recorded driver call.
type stubCall struct {
	op   string
	sql  string
	args []any
}

// stubDriver records calls and answers fetches from a queue of result
// sets. An empty queue answers with no rows.
type stubDriver struct {
	calls    []stubCall
	answers  [][]Row
	affected int64
	lastID   int64
	err      error
	// resultErr is returned by RowsAffected.
	resultErr error
}

func (d *stubDriver) answer(rows ...Row) *stubDriver {
	d.answers = append(d.answers, rows)
	return d
}

func (d *stubDriver) next() []Row {
	if len(d.answers) == 0 {
		return nil
	}
	rows := d.answers[0]
	d.answers = d.answers[1:]
	return rows
}

func (d *stubDriver) record(op, query string, args []any) {
	d.calls = append(d.calls, stubCall{op: op, sql: query, args: args})
}

func (d *stubDriver) Exec(_ context.Context, query string, args []any) (sql.Result, error) {
	d.record("exec", query, args)
	if d.err != nil {
		return nil, d.err
	}
	return stubResult{lastID: d.lastID, affected: d.affected, err: d.resultErr}, nil
}

func (d *stubDriver) FetchOne(_ context.Context, query string, args []any) (Row, error) {
	d.record("fetch_one", query, args)
	if d.err != nil {
		return nil, d.err
	}
	rows := d.next()
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (d *stubDriver) FetchAll(_ context.Context, query string, args []any) ([]Row, error) {
	d.record("fetch_all", query, args)
	if d.err != nil {
		return nil, d.err
	}
	return d.next(), nil
}

func (d *stubDriver) Begin(_ context.Context) (TxDriver, error) {
	d.record("begin", "", nil)
	if d.err != nil {
		return nil, d.err
	}
	return &stubTx{stubDriver: d}, nil
}

// sqls returns the SQL of every recorded call of op, or of all calls
// when op is empty.
func (d *stubDriver) sqls(op string) []string {
	var out []string
	for _, c := range d.calls {
		if op == "" || c.op == op {
			out = append(out, c.sql)
		}
	}
	return out
}

func (d *stubDriver) ops() []string {
	out := make([]string, len(d.calls))
	for i, c := range d.calls {
		out[i] = c.op
	}
	return out
}

type stubTx struct {
	*stubDriver
}

func (t *stubTx) Commit() error {
	t.record("commit", "", nil)
	return nil
}

func (t *stubTx) Rollback() error {
	t.record("rollback", "", nil)
	return nil
}

type stubResult struct {
	lastID   int64
	affected int64
	err      error
}

func (r stubResult) LastInsertId() (int64, error) { return r.lastID, nil }
func (r stubResult) RowsAffected() (int64, error) { return r.affected, r.err }

var errDriver = errors.New("driver exploded")

// mockDB returns a DB for compile-only tests.
func mockDB(dialectName string) *DB {
	db, err := NewDriverDB(&stubDriver{}, dialectName)
	if err != nil {
		panic(err)
	}
	return db
}

// stubDB returns a DB over a recording driver.
func stubDB(t *testing.T, dialectName string, opts ...Option) (*DB, *stubDriver) {
	t.Helper()
	d := &stubDriver{}
	db, err := NewDriverDB(d, dialectName, opts...)
	require.NoError(t, err)
	return db, d
}

// sqliteDB opens an in-memory SQLite database and runs schema on it.
func sqliteDB(t *testing.T, schema ...string) *DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	for _, stmt := range schema {
		_, err := sqlDB.Exec(stmt)
		require.NoError(t, err, stmt)
	}

	db, err := WrapDB(sqlDB, "sqlite")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// Records used across the relation tests.

type User struct{ Model }

func (u *User) Posts() *HasMany       { return u.HasMany(postFactory, "", "") }
func (u *User) Profile() *HasOne      { return u.HasOne(profileFactory, "", "") }
func (u *User) Roles() *BelongsToMany { return u.BelongsToMany(roleFactory, "", "", "") }

// NotARelation has the wrong signature for a relation method.
func (u *User) NotARelation() string { return "nope" }

type Post struct{ Model }

func (p *Post) Author() *BelongsTo { return p.BelongsTo(userFactory, "user_id", "") }
func (p *Post) Comments() *HasMany { return p.HasMany(commentFactory, "", "") }

type Comment struct{ Model }

type Profile struct{ Model }

type Role struct{ Model }

type Country struct{ Model }

func (c *Country) Posts() *HasManyThrough {
	return c.HasManyThrough(postFactory, "users", "", "", "", "")
}

func (c *Country) Capital() *HasOneThrough {
	return c.HasOneThrough(commentFactory, "posts", "country_id", "post_id", "", "")
}

var (
	userFactory    = FactoryOf[User]()
	postFactory    = FactoryOf[Post](WithSoftDeletes())
	commentFactory = FactoryOf[Comment]()
	profileFactory = FactoryOf[Profile]()
	roleFactory    = FactoryOf[Role]()
	countryFactory = FactoryOf[Country]()
)

// newUser returns an existing user with the given id.
func newUser(db *DB, id any) *User {
	u := userFactory(db).(*User)
	u.ForceFill(map[string]any{"id": id})
	u.MarkExisting()
	return u
}

func newPost(db *DB, attrs map[string]any) *Post {
	p := postFactory(db).(*Post)
	p.ForceFill(attrs)
	p.MarkExisting()
	return p
}
