package core

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func users(db *DB, ids ...any) []Record {
	out := make([]Record, len(ids))
	for i, id := range ids {
		out[i] = newUser(db, id)
	}
	return out
}

func TestLoad_BatchesHasMany(t *testing.T) {
	db, d := stubDB(t, "sqlite")
	d.answer(
		Row{"id": int64(10), "user_id": int64(1)},
		Row{"id": int64(11), "user_id": int64(1)},
		Row{"id": int64(12), "user_id": int64(3)},
	)

	us := users(db, 1, 2, 3, 1)
	require.NoError(t, Load(us, "posts"))

	require.Len(t, d.calls, 1)
	assert.Equal(t, `SELECT * FROM "posts" WHERE "posts"."user_id" IN (?, ?, ?) AND "deleted_at" IS NULL`, d.calls[0].sql)
	assert.Equal(t, []any{1, 2, 3}, d.calls[0].args)

	assert.Len(t, us[0].(*User).RelatedMany("posts"), 2)
	assert.Equal(t, []Record{}, us[1].(*User).RelatedMany("posts"))
	assert.Len(t, us[2].(*User).RelatedMany("posts"), 1)
	assert.Len(t, us[3].(*User).RelatedMany("posts"), 2)
}

func TestLoad_SingleRecordUsesBoundRelation(t *testing.T) {
	db, d := stubDB(t, "sqlite")
	d.answer(Row{"id": int64(10), "user_id": int64(1)})

	u := newUser(db, 1)
	require.NoError(t, u.Load("posts"))

	assert.Equal(t, []string{`SELECT * FROM "posts" WHERE "posts"."user_id" = ? AND "deleted_at" IS NULL`}, d.sqls(""))
	assert.True(t, u.RelationLoaded("posts"))
	assert.Len(t, u.RelatedMany("posts"), 1)
}

func TestLoad_Nested(t *testing.T) {
	db, d := stubDB(t, "sqlite")
	d.answer(
		Row{"id": int64(10), "user_id": int64(1)},
		Row{"id": int64(11), "user_id": int64(2)},
	).answer(
		Row{"id": int64(100), "post_id": int64(11), "body": "hi"},
	)

	us := users(db, 1, 2)
	require.NoError(t, Load(us, "posts.comments"))

	assert.Equal(t, []string{
		`SELECT * FROM "posts" WHERE "posts"."user_id" IN (?, ?) AND "deleted_at" IS NULL`,
		`SELECT * FROM "comments" WHERE "comments"."post_id" IN (?, ?)`,
	}, d.sqls("fetch_all"))
	assert.Equal(t, []any{int64(10), int64(11)}, d.calls[1].args)

	first := us[0].(*User).RelatedMany("posts")[0].(*Post)
	second := us[1].(*User).RelatedMany("posts")[0].(*Post)
	assert.Equal(t, []Record{}, first.RelatedMany("comments"))
	require.Len(t, second.RelatedMany("comments"), 1)
	assert.Equal(t, "hi", second.RelatedMany("comments")[0].GetAttribute("body"))
}

func TestLoad_BelongsToBatch(t *testing.T) {
	db, d := stubDB(t, "sqlite")
	d.answer(Row{"id": int64(7), "name": "Ann"})

	posts := []Record{
		newPost(db, map[string]any{"id": 1, "user_id": 7}),
		newPost(db, map[string]any{"id": 2, "user_id": 8}),
		newPost(db, map[string]any{"id": 3, "user_id": 7}),
		newPost(db, map[string]any{"id": 4}),
	}
	require.NoError(t, Load(posts, "author"))

	assert.Equal(t, `SELECT * FROM "users" WHERE "users"."id" IN (?, ?)`, d.calls[0].sql)
	assert.Equal(t, []any{7, 8}, d.calls[0].args)

	ann := posts[0].(*Post).Related("author")
	require.NotNil(t, ann)
	assert.Same(t, ann, posts[2].(*Post).Related("author"))
	assert.Nil(t, posts[1].(*Post).Related("author"))
	assert.True(t, posts[1].RelationLoaded("author"))
	assert.Nil(t, posts[3].(*Post).Related("author"))
}

func TestLoad_BelongsToManyBatch(t *testing.T) {
	db, d := stubDB(t, "sqlite")
	d.answer(
		Row{"id": int64(1), "name": "reader", "pivot_user_id": int64(7), "pivot_role_id": int64(1)},
		Row{"id": int64(1), "name": "reader", "pivot_user_id": int64(8), "pivot_role_id": int64(1)},
		Row{"id": int64(2), "name": "writer", "pivot_user_id": int64(8), "pivot_role_id": int64(2)},
	)

	us := users(db, 7, 8)
	require.NoError(t, Load(us, "roles"))

	assert.Equal(t, `SELECT "related".*, "pivot"."user_id" AS "pivot_user_id", "pivot"."role_id" AS "pivot_role_id" FROM "roles" AS "related" INNER JOIN "role_user" AS "pivot" ON "related"."id" = "pivot"."role_id" WHERE "pivot"."user_id" IN (?, ?)`, d.calls[0].sql)
	assert.Len(t, us[0].(*User).RelatedMany("roles"), 1)
	assert.Len(t, us[1].(*User).RelatedMany("roles"), 2)
}

func TestLoad_ThroughBatch(t *testing.T) {
	db, d := stubDB(t, "sqlite")
	d.answer(
		Row{"id": int64(10), "user_id": int64(3), "through_key": int64(44)},
		Row{"id": int64(11), "user_id": int64(4), "through_key": int64(44)},
	)

	countries := make([]Record, 2)
	for i, id := range []int{44, 45} {
		c := countryFactory(db)
		c.ForceFill(map[string]any{"id": id})
		c.MarkExisting()
		countries[i] = c
	}
	require.NoError(t, Load(countries, "posts"))

	assert.Equal(t, `SELECT "r".*, "t"."country_id" AS "through_key" FROM "posts" AS "r" INNER JOIN "users" AS "t" ON "t"."id" = "r"."user_id" WHERE "t"."country_id" IN (?, ?) AND "r"."deleted_at" IS NULL`, d.calls[0].sql)

	posts := countries[0].(*Country).RelatedMany("posts")
	require.Len(t, posts, 2)
	assert.Nil(t, posts[0].GetAttribute("through_key"))
	assert.False(t, posts[0].(*Post).HasAttribute("through_key"))
	assert.Equal(t, []Record{}, countries[1].(*Country).RelatedMany("posts"))
}

func TestStatement_WithEagerLoads(t *testing.T) {
	db, d := stubDB(t, "sqlite")
	d.answer(Row{"id": int64(1)}, Row{"id": int64(2)}).
		answer(Row{"id": int64(10), "user_id": int64(2)})

	proto := userFactory(db).(*User)
	records, err := proto.Query().
		WithConstraint("posts", func(q *Statement) { q.Where("published", "=", true) }).
		Get()
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, []string{
		`SELECT "users".* FROM "users"`,
		`SELECT * FROM "posts" WHERE "published" = ? AND "posts"."user_id" IN (?, ?) AND "deleted_at" IS NULL`,
	}, d.sqls("fetch_all"))
	assert.Equal(t, []any{true, int64(1), int64(2)}, d.calls[1].args)
	assert.Len(t, records[1].(*User).RelatedMany("posts"), 1)
}

func TestStatement_WithConstraintTypes(t *testing.T) {
	db, d := stubDB(t, "sqlite")
	u := newUser(db, 1)

	called := false
	require.NoError(t, u.LoadWith(map[string]any{
		"posts":   func(r *HasMany) { r.Query().Limit(3) },
		"profile": func() { called = true },
	}))
	assert.True(t, called)
	assert.Equal(t, []string{
		`SELECT * FROM "posts" WHERE "posts"."user_id" = ? AND "deleted_at" IS NULL LIMIT 3`,
		`SELECT * FROM "profiles" WHERE "profiles"."user_id" = ? LIMIT 1`,
	}, d.sqls(""))

	err := u.LoadWith(map[string]any{"posts": func(*BelongsTo) {}})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorIs(t, u.LoadWith(map[string]any{"posts": 42}), ErrInvalidArgument)
	assert.ErrorIs(t, db.Table("users").WithConstraint("posts", "nope").Err(), ErrInvalidArgument)
	assert.ErrorIs(t, db.Table("users").With(" ").Err(), ErrInvalidArgument)
}

func TestLoad_UnknownRelation(t *testing.T) {
	db, d := stubDB(t, "sqlite")

	err := Load(users(db, 1, 2), "nothing")
	assert.ErrorIs(t, err, ErrRelationNotFound)
	assert.Empty(t, d.calls)
	assert.NoError(t, Load(nil, "posts"))
}

func TestLoadMissing_SkipsLoadedRelations(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	db, err := WrapDB(sqlDB, "sqlite", WithoutStmtCache())
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT * FROM "comments" WHERE "comments"."post_id" = ?`).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "post_id"}).AddRow(1, 5).AddRow(2, 5))

	p := newPost(db, map[string]any{"id": 5})
	require.NoError(t, p.Load("comments"))
	require.NoError(t, p.LoadMissing("comments"))
	assert.Len(t, p.RelatedMany("comments"), 2)

	// A collection only queries the records still missing the relation.
	mock.ExpectQuery(`SELECT * FROM "comments" WHERE "comments"."post_id" = ?`).
		WithArgs(6).
		WillReturnRows(sqlmock.NewRows([]string{"id", "post_id"}))
	other := newPost(db, map[string]any{"id": 6})
	require.NoError(t, LoadMissing([]Record{p, other}, "comments"))
	assert.Equal(t, []Record{}, other.RelatedMany("comments"))
	assert.Len(t, p.RelatedMany("comments"), 2)

	assert.NoError(t, mock.ExpectationsWereMet())
}
