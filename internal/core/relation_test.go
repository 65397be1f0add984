package core

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasMany_Get(t *testing.T) {
	db, d := stubDB(t, "sqlite")
	d.answer(Row{"id": int64(1), "user_id": int64(7)}, Row{"id": int64(2), "user_id": int64(7)})

	posts, err := newUser(db, 7).Posts().Get()
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.IsType(t, &Post{}, posts[0])
	assert.True(t, posts[0].Exists())
	assert.Equal(t, int64(2), posts[1].GetAttribute("id"))

	require.Len(t, d.calls, 1)
	assert.Equal(t, `SELECT * FROM "posts" WHERE "posts"."user_id" = ? AND "deleted_at" IS NULL`, d.calls[0].sql)
	assert.Equal(t, []any{7}, d.calls[0].args)
}

func TestHasMany_QueryIsConstrainable(t *testing.T) {
	db, d := stubDB(t, "postgres")

	rel := newUser(db, 7).Posts()
	rel.Query().Where("published", "=", true).OrderByDesc("id")
	_, err := rel.Get()
	require.NoError(t, err)

	assert.Equal(t, []string{`SELECT * FROM "posts" WHERE "posts"."user_id" = $1 AND "published" = $2 AND "deleted_at" IS NULL ORDER BY "id" DESC`}, d.sqls("fetch_all"))
}

func TestHasOne_GetAndDefault(t *testing.T) {
	db, d := stubDB(t, "sqlite")
	u := newUser(db, 7)

	profile, err := u.Profile().Get()
	require.NoError(t, err)
	assert.Nil(t, profile)
	assert.Equal(t, []string{`SELECT * FROM "profiles" WHERE "profiles"."user_id" = ? LIMIT 1`}, d.sqls(""))

	profile, err = u.Profile().WithDefault(map[string]any{"bio": "none"}).Get()
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.IsType(t, &Profile{}, profile)
	assert.False(t, profile.Exists())
	assert.Equal(t, "none", profile.GetAttribute("bio"))
	assert.Equal(t, 7, profile.GetAttribute("user_id"))

	profile, err = u.Profile().WithDefaultFunc(func(r Record) { r.SetAttribute("bio", "generated") }).Get()
	require.NoError(t, err)
	assert.Equal(t, "generated", profile.GetAttribute("bio"))
}

func TestBelongsTo_Get(t *testing.T) {
	db, d := stubDB(t, "sqlite")
	d.answer(Row{"id": int64(7), "name": "Ann"})

	author, err := newPost(db, map[string]any{"id": 3, "user_id": 7}).Author().Get()
	require.NoError(t, err)
	require.IsType(t, &User{}, author)
	assert.Equal(t, "Ann", author.GetAttribute("name"))

	require.Len(t, d.calls, 1)
	assert.Equal(t, `SELECT * FROM "users" WHERE "users"."id" = ? LIMIT 1`, d.calls[0].sql)
	assert.Equal(t, []any{7}, d.calls[0].args)
}

func TestBelongsTo_NilKeySkipsDriver(t *testing.T) {
	db, d := stubDB(t, "sqlite")
	orphan := newPost(db, map[string]any{"id": 4})

	author, err := orphan.Author().Get()
	require.NoError(t, err)
	assert.Nil(t, author)

	author, err = orphan.Author().WithDefault(map[string]any{"name": "Guest"}).Get()
	require.NoError(t, err)
	require.NotNil(t, author)
	assert.Equal(t, "Guest", author.GetAttribute("name"))
	assert.False(t, author.Exists())

	assert.Empty(t, d.calls)
}

func TestBelongsToMany_Get(t *testing.T) {
	db, d := stubDB(t, "sqlite")
	d.answer(Row{"id": int64(2), "name": "admin", "pivot_user_id": int64(7), "pivot_role_id": int64(2)})

	roles, err := newUser(db, 7).Roles().Get()
	require.NoError(t, err)
	require.Len(t, roles, 1)

	assert.Equal(t, `SELECT "related".*, "pivot"."user_id" AS "pivot_user_id", "pivot"."role_id" AS "pivot_role_id" FROM "roles" AS "related" INNER JOIN "role_user" AS "pivot" ON "related"."id" = "pivot"."role_id" WHERE "pivot"."user_id" = ?`, d.calls[0].sql)
	assert.Equal(t, []any{7}, d.calls[0].args)

	role := roles[0]
	assert.Equal(t, map[string]any{"id": int64(2), "name": "admin"}, role.Attributes())
	v, ok := role.GetRelation("pivot")
	require.True(t, ok)
	pivot := v.(Record)
	assert.Equal(t, "role_user", pivot.TableName())
	assert.Equal(t, int64(7), pivot.GetAttribute("user_id"))
	assert.Equal(t, int64(2), pivot.GetAttribute("role_id"))
	assert.False(t, role.model().IsDirty())
}

func TestBelongsToMany_WithPivotAndWherePivot(t *testing.T) {
	db, d := stubDB(t, "sqlite")

	_, err := newUser(db, 7).Roles().WithPivot("level").WherePivot("level", ">", 1).Get()
	require.NoError(t, err)

	assert.Equal(t, `SELECT "related".*, "pivot"."user_id" AS "pivot_user_id", "pivot"."role_id" AS "pivot_role_id", "pivot"."level" AS "pivot_level" FROM "roles" AS "related" INNER JOIN "role_user" AS "pivot" ON "related"."id" = "pivot"."role_id" WHERE "pivot"."user_id" = ? AND "pivot"."level" > ?`, d.calls[0].sql)
	assert.Equal(t, []any{7, 1}, d.calls[0].args)
}

func TestHasManyThrough_Get(t *testing.T) {
	db, d := stubDB(t, "sqlite")
	country := countryFactory(db).(*Country)
	country.ForceFill(map[string]any{"id": 44})
	country.MarkExisting()

	_, err := country.Posts().Get()
	require.NoError(t, err)

	assert.Equal(t, `SELECT "r".* FROM "posts" AS "r" INNER JOIN "users" AS "t" ON "t"."id" = "r"."user_id" WHERE "t"."country_id" = ? AND "r"."deleted_at" IS NULL`, d.calls[0].sql)
	assert.Equal(t, []any{44}, d.calls[0].args)
}

func TestHasOneThrough_Get(t *testing.T) {
	db, d := stubDB(t, "sqlite")

	parent := NewRecord(db, "parents")
	parent.ForceFill(map[string]any{"localKey": 3})
	rel := parent.HasOneThrough(GenericFactory("related"), "through", "firstKey", "secondKey", "localKey", "secondLocal")

	rec, err := rel.Get()
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.Len(t, d.calls, 1)
	assert.Equal(t, `SELECT "r".* FROM "related" AS "r" INNER JOIN "through" AS "t" ON "t"."secondLocal" = "r"."secondKey" WHERE "t"."firstKey" = ? LIMIT 1`, d.calls[0].sql)
	assert.Equal(t, []any{3}, d.calls[0].args)

	d.answer(Row{"id": int64(9), "secondKey": int64(5)})
	rec, err = rel.Get()
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "related", rec.TableName())
	assert.Equal(t, int64(9), rec.GetAttribute("id"))
}

func TestRelation_Descriptors(t *testing.T) {
	db := mockDB("sqlite")
	u := newUser(db, 1)
	country := countryFactory(db).(*Country)

	assert.Equal(t, HasManyDescriptor{Parent: "users", Related: "posts", ForeignKey: "user_id", LocalKey: "id"}, u.Posts().Descriptor())
	assert.Equal(t, HasOneDescriptor{Parent: "users", Related: "profiles", ForeignKey: "user_id", LocalKey: "id"}, u.Profile().Descriptor())
	assert.Equal(t, BelongsToManyDescriptor{
		Parent:          "users",
		Related:         "roles",
		Pivot:           "role_user",
		ForeignPivotKey: "user_id",
		RelatedPivotKey: "role_id",
		ParentKey:       "id",
		RelatedKey:      "id",
	}, u.Roles().Descriptor())
	assert.Equal(t, BelongsToDescriptor{Child: "posts", Related: "users", ForeignKey: "user_id", OwnerKey: "id"},
		newPost(db, nil).Author().Descriptor())
	assert.Equal(t, HasManyThroughDescriptor{ThroughKeys{
		Parent:         "countries",
		Related:        "posts",
		Through:        "users",
		FirstKey:       "country_id",
		SecondKey:      "user_id",
		LocalKey:       "id",
		SecondLocalKey: "id",
	}}, country.Posts().Descriptor())
	assert.Equal(t, HasOneThroughDescriptor{ThroughKeys{
		Parent:         "countries",
		Related:        "comments",
		Through:        "posts",
		FirstKey:       "country_id",
		SecondKey:      "post_id",
		LocalKey:       "id",
		SecondLocalKey: "id",
	}}, country.Capital().Descriptor())
}

func TestRelation_ParentBinding(t *testing.T) {
	db, d := stubDB(t, "sqlite")

	rel := newUser(db, 7).Posts()
	assert.ErrorIs(t, rel.SetParent(newUser(db, 8)), ErrParentAlreadyBound)

	rel.unbind()
	_, err := rel.Get()
	assert.ErrorIs(t, err, ErrParentNotBound)
	assert.ErrorIs(t, rel.SetParent(nil), ErrInvalidArgument)

	_, err = rel.ForKey(9).Get()
	require.NoError(t, err)
	assert.Equal(t, []any{9}, d.calls[0].args)
}

func TestRelation_Errors(t *testing.T) {
	db := mockDB("sqlite")

	rel := newUser(db, 1).HasMany(nil, "", "")
	assert.ErrorIs(t, rel.Err(), ErrRelationNotFound)
	_, err := rel.Get()
	assert.ErrorIs(t, err, ErrRelationNotFound)

	detached := userFactory(nil).(*User)
	detached.SetAttribute("id", 1)
	_, err = detached.Posts().Get()
	assert.ErrorIs(t, err, ErrNoConnection)

	var unbooted Model
	posts := unbooted.HasMany(postFactory, "user_id", "id")
	assert.ErrorIs(t, posts.Err(), ErrLogic)
	assert.Nil(t, posts.Parent())
	_, err = posts.Get()
	assert.ErrorIs(t, err, ErrLogic)
}

func TestResolveRelation(t *testing.T) {
	db, _ := stubDB(t, "sqlite")
	u := newUser(db, 7)

	rel, err := ResolveRelation(u, "posts")
	require.NoError(t, err)
	assert.IsType(t, &HasMany{}, rel)
	assert.Same(t, Record(u), rel.Parent())

	_, err = ResolveRelation(u, "not_a_relation")
	assert.ErrorIs(t, err, ErrRelationNotFound)
	_, err = ResolveRelation(u, "missing")
	assert.ErrorIs(t, err, ErrRelationNotFound)
	_, err = ResolveRelation(nil, "posts")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	db.DefineRelation("users", "latest_post", func(parent Record) Relation {
		r := parent.(*User).HasOne(postFactory, "", "")
		r.Query().Latest("id")
		return r
	})
	rel, err = ResolveRelation(u, "latest_post")
	require.NoError(t, err)
	sql, _, err := rel.Query().ToSQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "posts" WHERE "posts"."user_id" = ? AND "deleted_at" IS NULL ORDER BY "id" DESC`, sql)
}

func TestDefineRelation_Concurrent(t *testing.T) {
	db, _ := stubDB(t, "sqlite")
	u := newUser(db, 7)
	copyDB := db.WithContext(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			copyDB.DefineRelation("users", fmt.Sprintf("posts_%d", i), func(parent Record) Relation {
				return parent.(*User).HasMany(postFactory, "", "")
			})
		}(i)
		go func() {
			defer wg.Done()
			_, _ = ResolveRelation(u, "posts")
		}()
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		rel, err := ResolveRelation(u, fmt.Sprintf("posts_%d", i))
		require.NoError(t, err)
		assert.IsType(t, &HasMany{}, rel)
	}
}
