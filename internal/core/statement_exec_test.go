package core

import (
	"errors"
	"testing"

	"github.com/spf13/cast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/strata/internal/analyzer"
)

var postsSchema = []string{
	`CREATE TABLE posts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER,
		title TEXT NOT NULL,
		views INTEGER NOT NULL DEFAULT 0,
		deleted_at TIMESTAMP
	)`,
}

// seedPosts inserts five posts: a..e with views 10..50, the first three by user 1.
func seedPosts(t *testing.T, db *DB) {
	t.Helper()
	for i, title := range []string{"a", "b", "c", "d", "e"} {
		user := 1
		if i >= 3 {
			user = 2
		}
		_, err := db.Table("posts").Insert(map[string]any{"user_id": user, "title": title, "views": (i + 1) * 10})
		require.NoError(t, err)
	}
}

func TestExec_InsertGetIDAndFind(t *testing.T) {
	db := sqliteDB(t, postsSchema...)

	id, err := db.Table("posts").InsertGetID(map[string]any{"title": "first"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	id, err = db.Table("posts").InsertGetID(map[string]any{"title": "second"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)

	proto := postFactory(db).(*Post)
	rec, err := proto.Query().Find(2)
	require.NoError(t, err)
	require.IsType(t, &Post{}, rec)
	assert.Equal(t, "second", rec.(*Post).GetString("title"))

	rec, err = proto.Query().Find(99)
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = proto.Query().FindOrFail(99)
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "posts", nf.Table)
	assert.Equal(t, 99, nf.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsNotFound(err))

	_, err = proto.Query().Where("title", "=", "nope").FirstOrFail()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExec_Aggregates(t *testing.T) {
	db := sqliteDB(t, postsSchema...)
	seedPosts(t, db)
	posts := db.Table("posts")

	n, err := posts.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	n, err = posts.Clone().Where("user_id", "=", 1).Count()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	groups, err := posts.Clone().Select("user_id").GroupBy("user_id").Count()
	require.NoError(t, err)
	assert.Equal(t, int64(2), groups)

	sum, err := posts.Sum("views")
	require.NoError(t, err)
	assert.Equal(t, 150.0, sum)

	avg, err := posts.Clone().Where("user_id", "=", 2).Avg("views")
	require.NoError(t, err)
	assert.Equal(t, 45.0, avg)

	minViews, err := posts.Min("views")
	require.NoError(t, err)
	assert.Equal(t, int64(10), cast.ToInt64(minViews))

	maxTitle, err := posts.Max("title")
	require.NoError(t, err)
	assert.Equal(t, "e", maxTitle)

	none, err := posts.Clone().Where("user_id", "=", 9).Sum("views")
	require.NoError(t, err)
	assert.Zero(t, none)

	ok, err := posts.Clone().Where("title", "=", "c").Exists()
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = posts.Clone().Where("title", "=", "z").DoesntExist()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExec_PluckAndValue(t *testing.T) {
	db := sqliteDB(t, postsSchema...)
	seedPosts(t, db)

	titles, err := db.Table("posts").OrderBy("id", "DESC").Pluck("title")
	require.NoError(t, err)
	assert.Equal(t, []any{"e", "d", "c", "b", "a"}, titles)

	v, err := db.Table("posts").Where("title", "=", "b").Value("posts.views")
	require.NoError(t, err)
	assert.Equal(t, int64(20), v)

	v, err = db.Table("posts").Where("title", "=", "z").Value("views")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestExec_Mutations(t *testing.T) {
	db := sqliteDB(t, postsSchema...)
	seedPosts(t, db)

	n, err := db.Table("posts").Where("user_id", "=", 2).Update(map[string]any{"title": "moved"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = db.Table("posts").Where("title", "=", "a").Increment("views", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = db.Table("posts").Where("title", "=", "b").Decrement("views", 5, map[string]any{"title": "bee"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	views, err := db.Table("posts").OrderBy("id", "ASC").Limit(2).Pluck("views")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(15), int64(15)}, views)
	title, err := db.Table("posts").Where("id", "=", 2).Value("title")
	require.NoError(t, err)
	assert.Equal(t, "bee", title)

	n, err = db.Table("posts").Where("title", "=", "moved").Delete()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = db.Table("posts").Delete()
	assert.ErrorIs(t, err, ErrDeleteWithoutWhere)

	n, err = db.Table("posts").InsertOrIgnore(map[string]any{"id": 1, "title": "dup"})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = db.Table("posts").Upsert(map[string]any{"id": 1, "title": "upserted", "views": 0}, []string{"id"}, []string{"title"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	title, err = db.Table("posts").Where("id", "=", 1).Value("title")
	require.NoError(t, err)
	assert.Equal(t, "upserted", title)
}

func TestExec_Chunk(t *testing.T) {
	db := sqliteDB(t, postsSchema...)
	seedPosts(t, db)

	var sizes []int
	err := db.Table("posts").OrderBy("id", "ASC").Chunk(2, func(page []Record) bool {
		sizes = append(sizes, len(page))
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, sizes)

	sizes = nil
	err = db.Table("posts").OrderBy("id", "ASC").Chunk(2, func(page []Record) bool {
		sizes = append(sizes, len(page))
		return false
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, sizes)

	assert.ErrorIs(t, db.Table("posts").Chunk(0, func([]Record) bool { return true }), ErrInvalidArgument)
}

func TestExec_Unions(t *testing.T) {
	db := sqliteDB(t, postsSchema...)
	seedPosts(t, db)
	union := func() *Statement {
		return db.Table("posts").Where("views", ">=", 40).
			Union(db.Table("posts").Where("title", "=", "a"))
	}

	ok, err := union().Exists()
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = db.Table("posts").Where("id", "=", 98).
		Union(db.Table("posts").Where("id", "=", 99)).
		Exists()
	require.NoError(t, err)
	assert.False(t, ok)

	first, err := union().First()
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "posts", first.TableName())

	n, err := union().Count()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	titles, err := union().Pluck("title")
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{"a", "d", "e"}, titles)

	v, err := union().Value("title")
	require.NoError(t, err)
	assert.Contains(t, []any{"a", "d", "e"}, v)

	p, err := union().Paginate(2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.Total)
	assert.Len(t, p.Items, 1)

	sp, err := union().SimplePaginate(1, 2)
	require.NoError(t, err)
	assert.True(t, sp.HasMore)
	assert.Len(t, sp.Items, 2)

	found, err := union().Search("e", []string{"title"}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), found.Total)
}

func TestStatement_RowQueryWrapsUnions(t *testing.T) {
	db := mockDB("postgres")

	q := db.Table("a").Where("x", "=", 1).
		Union(db.Table("b").Where("y", "=", 2)).
		LockForUpdate().
		rowQuery().Where("z", "=", 3).Limit(1).Offset(2).Build()
	require.NoError(t, q.Err())
	assert.Equal(t, `SELECT * FROM (SELECT * FROM "a" WHERE "x" = $1 UNION SELECT * FROM "b" WHERE "y" = $2) AS "union_table" WHERE "z" = $3 LIMIT 1 OFFSET 2 FOR UPDATE`, q.SQL())
	assert.Equal(t, []any{1, 2, 3}, q.Params())

	plain := db.Table("a").Where("x", "=", 1)
	sql, _, err := plain.rowQuery().Limit(1).ToSQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "a" WHERE "x" = ? LIMIT 1`, sql)
}

func TestExec_Paginate(t *testing.T) {
	db := sqliteDB(t, postsSchema...)
	seedPosts(t, db)
	posts := db.Table("posts").OrderBy("id", "ASC")

	p, err := posts.Paginate(2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), p.Total)
	assert.Equal(t, int64(3), p.LastPage)
	assert.Equal(t, int64(2), p.CurrentPage)
	assert.True(t, p.HasMorePages())
	require.Len(t, p.Items, 2)
	assert.Equal(t, "c", p.Items[0].GetAttribute("title"))

	p, err = posts.Paginate(0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.CurrentPage)
	assert.False(t, p.HasMorePages())
	assert.Len(t, p.Items, 5)

	p, err = posts.Clone().Where("user_id", "=", 9).Paginate(1, 10)
	require.NoError(t, err)
	assert.Equal(t, []Record{}, p.Items)
	assert.Equal(t, int64(1), p.LastPage)

	_, err = posts.Paginate(1, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	sp, err := posts.SimplePaginate(1, 2)
	require.NoError(t, err)
	assert.True(t, sp.HasMore)
	assert.Len(t, sp.Items, 2)
	sp, err = posts.SimplePaginate(3, 2)
	require.NoError(t, err)
	assert.False(t, sp.HasMore)
	assert.Len(t, sp.Items, 1)
}

func TestExec_Search(t *testing.T) {
	db := sqliteDB(t, postsSchema...)
	seedPosts(t, db)

	p, err := db.Table("posts").Where("user_id", "=", 1).Search("b", []string{"title"}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.Total)

	p, err = db.Table("posts").Search("  ", nil, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(5), p.Total)

	_, err = db.Table("posts").Search("b", nil, 1, 10)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestExec_SearchSQL(t *testing.T) {
	db, d := stubDB(t, "sqlite")
	d.answer(Row{"aggregate": int64(0)})

	_, err := db.Table("users").Where("active", "=", 1).Search("ann", []string{"name", "email"}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) AS "aggregate" FROM "users" WHERE "active" = ? AND ("name" LIKE ? OR "email" LIKE ?)`, d.calls[0].sql)
	assert.Equal(t, []any{1, "%ann%", "%ann%"}, d.calls[0].args)
}

func TestExec_StatementSQL(t *testing.T) {
	db, d := stubDB(t, "postgres")

	d.answer(Row{"id": int64(42)})
	id, err := db.Table("users").InsertGetID(map[string]any{"name": "Ann"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = db.Table("users").Where("a", "=", 1).OrderBy("id", "ASC").Exists()
	require.NoError(t, err)

	_, err = db.Table("users").Select("g").GroupBy("g").Count()
	require.NoError(t, err)

	_, err = db.Table("users").Distinct().Count("email")
	require.NoError(t, err)

	assert.Equal(t, []string{
		`INSERT INTO "users" ("name") VALUES ($1) RETURNING "id"`,
		`SELECT 1 FROM "users" WHERE "a" = $1 LIMIT 1`,
		`SELECT COUNT(*) AS "aggregate" FROM (SELECT "g" FROM "users" GROUP BY "g") AS "aggregate_table"`,
		`SELECT COUNT("email") AS "aggregate" FROM (SELECT DISTINCT * FROM "users") AS "aggregate_table"`,
	}, d.sqls("fetch_one"))
}

func TestExec_Errors(t *testing.T) {
	db, d := stubDB(t, "sqlite")

	_, err := db.Table("users").Where("id", "=", 1).AsDelete().GetRows()
	assert.ErrorIs(t, err, ErrLogic)

	_, err = db.Table("users").Where("", "=", 1).Get()
	assert.ErrorIs(t, err, ErrInvalidArgument)

	d.resultErr = errDriver
	n, err := db.Table("users").Where("id", "=", 1).Delete()
	assert.ErrorIs(t, err, errDriver, "a failing RowsAffected is reported")
	assert.Zero(t, n)
	d.resultErr = nil

	d.err = errDriver
	_, err = db.Table("users").Get()
	assert.ErrorIs(t, err, errDriver)
	_, err = db.Table("users").Count()
	assert.ErrorIs(t, err, errDriver)
	_, err = db.Table("users").Where("id", "=", 1).Update(map[string]any{"a": 1})
	assert.ErrorIs(t, err, errDriver)
	assert.Len(t, d.calls, 4)
}

func TestStatement_Explain(t *testing.T) {
	db := sqliteDB(t, postsSchema[0], `CREATE INDEX idx_posts_user ON posts (user_id)`)

	plan, err := db.Table("posts").Where("user_id", "=", 1).Explain()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", plan.Dialect)
	assert.True(t, plan.UsesIndex)
	assert.Equal(t, "idx_posts_user", plan.IndexName)
	assert.False(t, plan.FullScan)

	plan, err = db.Table("posts").Where("title", "=", "a").Explain()
	require.NoError(t, err)
	assert.True(t, plan.FullScan)
	assert.False(t, plan.UsesIndex)

	_, err = db.Table("posts").ExplainAnalyze()
	assert.ErrorIs(t, err, analyzer.ErrUnsupported)
	_, err = db.Table("posts").Where("id", "~", 1).Explain()
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = NewStatement("sqlite").Table("posts").Explain()
	assert.ErrorIs(t, err, ErrNoConnection)
}
