//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/cast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/strata"
)

type Author struct{ strata.Model }

func (a *Author) Books() *strata.HasMany { return a.HasMany(bookFactory, "", "") }

type Book struct{ strata.Model }

func (b *Book) Author() *strata.BelongsTo   { return b.BelongsTo(authorFactory, "", "") }
func (b *Book) Tags() *strata.BelongsToMany { return b.BelongsToMany(tagFactory, "", "", "") }

type Tag struct{ strata.Model }

var (
	authorFactory = strata.FactoryOf[Author]()
	bookFactory   = strata.FactoryOf[Book](strata.WithSoftDeletes())
	tagFactory    = strata.FactoryOf[Tag]()
)

func ints(values []any) []int64 {
	out := make([]int64, len(values))
	for i, v := range values {
		out[i] = cast.ToInt64(cast.ToString(v))
	}
	return out
}

func seedLibrary(t *testing.T, db *strata.DB) {
	t.Helper()
	id, err := db.Table("authors").InsertGetID(map[string]any{"name": "Ann"})
	require.NoError(t, err)
	require.Equal(t, int64(1), id)
	_, err = db.Table("authors").Insert(map[string]any{"name": "Bob"})
	require.NoError(t, err)

	_, err = db.Table("books").Insert(
		map[string]any{"author_id": 1, "title": "Go", "pages": 300, "meta": `{"lang": "en"}`},
		map[string]any{"author_id": 1, "title": "SQL", "pages": 200, "meta": `{"lang": "de"}`},
		map[string]any{"author_id": 1, "title": "ORM", "pages": 100, "meta": `{"lang": "en"}`},
	)
	require.NoError(t, err)

	_, err = db.Table("tags").Insert(
		map[string]any{"name": "go"},
		map[string]any{"name": "sql"},
		map[string]any{"name": "orm"},
	)
	require.NoError(t, err)
}

func TestStatements_Integration(t *testing.T) {
	forEachDatabase(t, func(t *testing.T, ds *DatabaseSetup) {
		db := ds.DB
		seedLibrary(t, db)

		n, err := db.Table("books").Where("pages", ">=", 200).Count()
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		n, err = db.Table("books").WhereJSON("meta->lang", "=", "en").Count()
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		titles, err := db.Table("books").OrderBy("pages", "ASC").Pluck("title")
		require.NoError(t, err)
		assert.Equal(t, []any{"ORM", "SQL", "Go"}, titles)

		sum, err := db.Table("books").Sum("pages")
		require.NoError(t, err)
		assert.Equal(t, 600.0, sum)

		grouped, err := db.Table("books").Select("author_id").GroupBy("author_id").Count()
		require.NoError(t, err)
		assert.Equal(t, int64(1), grouped)

		exists, err := db.Table("authors").Where("name", "=", "Bob").Exists()
		require.NoError(t, err)
		assert.True(t, exists)

		_, err = db.Table("tags").Where("name", "=", "go").Increment("uses", 2)
		require.NoError(t, err)
		_, err = db.Table("tags").Upsert(
			[]map[string]any{{"name": "go", "uses": 10}, {"name": "db", "uses": 1}},
			[]string{"name"}, []string{"uses"},
		)
		require.NoError(t, err)
		uses, err := db.Table("tags").Where("name", "=", "go").Value("uses")
		require.NoError(t, err)
		assert.Equal(t, int64(10), cast.ToInt64(cast.ToString(uses)))
		n, err = db.Table("tags").Count()
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)

		affected, err := db.Table("books").Where("title", "=", "ORM").Update(map[string]any{"pages": 120})
		require.NoError(t, err)
		assert.Equal(t, int64(1), affected)

		page, err := db.Table("books").OrderBy("id", "ASC").Paginate(2, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(3), page.Total)
		require.Len(t, page.Items, 1)

		plan, err := db.Table("books").Where("author_id", "=", 1).Explain()
		require.NoError(t, err)
		assert.Equal(t, ds.Dialect, plan.Dialect)
		assert.NotEmpty(t, plan.Steps)

		_, err = db.Table("books").Delete()
		assert.ErrorIs(t, err, strata.ErrDeleteWithoutWhere)
	})
}

func TestRelations_Integration(t *testing.T) {
	forEachDatabase(t, func(t *testing.T, ds *DatabaseSetup) {
		db := ds.DB
		seedLibrary(t, db)
		ctx := context.Background()

		books, err := bookFactory(db).Query().OrderBy("id", "ASC").Get()
		require.NoError(t, err)
		require.Len(t, books, 3)
		for i, rec := range books {
			require.NoError(t, rec.(*Book).Tags().Attach([]any{1, i%2 + 2}, nil))
		}

		authors, err := authorFactory(db).Query().
			With("books.tags").
			WithCount("books").
			OrderBy("id", "ASC").
			Get()
		require.NoError(t, err)
		require.Len(t, authors, 2)
		ann := authors[0].(*Author)
		assert.Equal(t, int64(3), ann.GetInt64("books_count"))
		loaded := ann.RelatedMany("books")
		require.Len(t, loaded, 3)
		assert.Len(t, loaded[0].(*Book).RelatedMany("tags"), 2)
		assert.Empty(t, authors[1].(*Author).RelatedMany("books"))

		owner, err := books[0].(*Book).Author().First()
		require.NoError(t, err)
		assert.Equal(t, "Ann", owner.(*Author).GetString("name"))

		res, err := books[0].(*Book).Tags().Sync([]any{3})
		require.NoError(t, err)
		assert.Equal(t, []int64{3}, ints(res.Attached))
		assert.ElementsMatch(t, []int64{1, 2}, ints(res.Detached))

		require.NoError(t, books[2].(*Book).Delete(ctx))
		n, err := ann.Books().Query().Count()
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		n, err = ann.Books().Query().WithTrashed().Count()
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})
}

func TestTransactional_Integration(t *testing.T) {
	forEachDatabase(t, func(t *testing.T, ds *DatabaseSetup) {
		db := ds.DB
		ctx := context.Background()
		boom := errors.New("boom")

		err := db.Transactional(ctx, func(tx *strata.Tx) error {
			if _, err := tx.Table("authors").Insert(map[string]any{"name": "Ghost"}); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		require.NoError(t, db.Transactional(ctx, func(tx *strata.Tx) error {
			_, err := tx.Table("authors").Insert(map[string]any{"name": "Kept"})
			return err
		}))

		names, err := db.Table("authors").Pluck("name")
		require.NoError(t, err)
		assert.Equal(t, []any{"Kept"}, names)
	})
}
