package core

import (
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindings_Buckets(t *testing.T) {
	var b Bindings
	b.Add(OrderBindings, "o")
	b.Add(WhereBindings, "w1", "w2")
	b.Add(SelectBindings, "s")
	b.Add(MutationBindings, "m")
	b.addWhereExtra("x")
	b.Add(UnionBindings, "u")
	b.Add(HavingBindings, "h")
	b.Add(JoinBindings, "j")

	assert.Equal(t, 9, b.Len())
	assert.Equal(t, []any{"s", "j", "w1", "w2", "x", "h", "o", "u"}, b.ForSelect())
	assert.Equal(t, []any{"m", "w1", "w2", "x"}, b.ForMutation())
	assert.Equal(t, []any{"w1", "w2", "x"}, b.ForWhere())

	b.Set(WhereBindings, []any{"z"})
	assert.Equal(t, []any{"z"}, b.Get(WhereBindings))

	c := b.Clone()
	c.Add(WhereBindings, "only-in-clone")
	got := b.Get(WhereBindings)
	got[0] = "mutated"
	assert.Equal(t, []any{"z"}, b.Get(WhereBindings))
	assert.Equal(t, []any{"z", "only-in-clone"}, c.Get(WhereBindings))
}

func TestStatement_BindingsAccessorIsACopy(t *testing.T) {
	s := mockDB("sqlite").Table("t").Where("a", "=", 1)

	b := s.Bindings()
	b.Add(WhereBindings, 2)

	_, args, err := s.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, []any{1}, args)
}

// bindingStep is one builder call of the property test. next hands out a
// fresh marker; each call names its columns cN after the marker N it binds
// so placeholders can be traced back to their values.
type bindingStep func(s *Statement, next func() int)

func col(n int) string { return fmt.Sprintf("c%d", n) }

var bindingSteps = []bindingStep{
	func(s *Statement, next func() int) { m := next(); s.Where(col(m), "=", m) },
	func(s *Statement, next func() int) { m := next(); s.OrWhere(col(m), "!=", m) },
	func(s *Statement, next func() int) { m := next(); s.WhereIn(col(m), m, m, m) },
	func(s *Statement, next func() int) { m := next(); s.WhereNotIn(col(m), []int{m, m}) },
	func(s *Statement, next func() int) { m := next(); s.WhereBetween(col(m), m, m) },
	func(s *Statement, next func() int) { m := next(); s.WhereRaw(col(m)+" > ?", m) },
	func(s *Statement, next func() int) { m := next(); s.WhereExp(Eq(col(m), m)) },
	func(s *Statement, next func() int) { m := next(); s.WhereJSON(col(m)+"->k", "=", m) },
	func(s *Statement, next func() int) {
		s.WhereGroup(func(q *Statement) {
			a := next()
			q.Where(col(a), "<", a)
			b := next()
			q.OrWhere(col(b), ">", b)
		})
	},
	func(s *Statement, next func() int) {
		m := next()
		s.WhereInSub("id", s.Sub("u").Select("id").Where(col(m), "=", m))
	},
	func(s *Statement, next func() int) {
		m := next()
		s.WhereExists(s.Sub("u").Where(col(m), "=", m))
	},
	func(s *Statement, next func() int) { m := next(); s.SelectRaw(col(m)+" + ? AS total", m) },
	func(s *Statement, next func() int) { m := next(); s.SelectExp(Coalesce(col(m), m).As("v")) },
	func(s *Statement, next func() int) {
		m := next()
		s.SelectSub(s.Sub("u").Select("COUNT(*)").Where(col(m), "=", m), "n")
	},
	func(s *Statement, next func() int) {
		m := next()
		s.JoinRaw("LEFT JOIN u ON u.id = t.id AND "+col(m)+" = ?", m)
	},
	func(s *Statement, next func() int) {
		m := next()
		s.JoinSub(s.Sub("u").Where(col(m), "=", m), "j", "j.id", "=", "t.id")
	},
	func(s *Statement, next func() int) { m := next(); s.Having(col(m), ">", m) },
	func(s *Statement, next func() int) { m := next(); s.HavingRaw("SUM("+col(m)+") > ?", m) },
	func(s *Statement, next func() int) {
		m := next()
		s.OrderByRaw("CASE WHEN "+col(m)+" = ? THEN 0 ELSE 1 END", m)
	},
	func(s *Statement, next func() int) {
		m := next()
		s.Union(s.Sub("u").Where(col(m), "=", m))
	},
	func(s *Statement, next func() int) {
		m := next()
		s.WithExpression(fmt.Sprintf("w%d", m), s.Sub("u").Where(col(m), "=", m))
	},
	// Calls that bind nothing.
	func(s *Statement, _ func() int) { s.Limit(5).Offset(2) },
	func(s *Statement, _ func() int) { s.OrderBy("id", "DESC") },
	func(s *Statement, _ func() int) { s.SoftDeletes() },
	func(s *Statement, _ func() int) { s.RowNumber("rn", Window{OrderBy: []string{"id"}}) },
	func(s *Statement, _ func() int) { s.GroupBy("id") },
	func(s *Statement, _ func() int) { s.WhereNotNull("z") },
	func(s *Statement, _ func() int) { s.LockForUpdate() },
}

var markerToken = regexp.MustCompile(`c(\d+)|\?`)

// placeholderMarkers returns, for every ? in sql, the marker of the
// closest cN before it.
func placeholderMarkers(sql string) []any {
	var out []any
	last := -1
	for _, m := range markerToken.FindAllStringSubmatch(sql, -1) {
		if m[0] == "?" {
			out = append(out, last)
			continue
		}
		last, _ = strconv.Atoi(m[1])
	}
	return out
}

func TestBindings_OrderMatchesPlaceholders(t *testing.T) {
	rng := rand.New(rand.NewSource(20240601))

	for _, dialect := range []string{"sqlite", "postgres", "mysql"} {
		db := mockDB(dialect)
		for i := 0; i < 300; i++ {
			marker := 0
			next := func() int {
				marker++
				return marker
			}

			s := db.Table("t")
			bindingSteps[0](s, next)
			calls := rng.Intn(12)
			for j := 0; j < calls; j++ {
				bindingSteps[rng.Intn(len(bindingSteps))](s, next)
			}

			sql, args, err := s.ToSQL()
			require.NoError(t, err, "iteration %d", i)
			require.Equal(t, strings.Count(sql, "?"), len(args), sql)
			assert.Equal(t, placeholderMarkers(sql), args, sql)
		}
	}
}

func TestBindings_OrderOnMutations(t *testing.T) {
	db := mockDB("sqlite")

	s := db.Table("t").
		WithExpression("w1", db.Table("u").Where("c1", "=", 1)).
		Where("c2", "=", 2).
		WhereJSON("c4->k", "=", 4).
		WhereIn("c3", 3, 3).
		UpdateValues(map[string]any{"c0": 0})

	sql, args, err := s.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, placeholderMarkers(sql), args, sql)
	assert.Equal(t, []any{1, 0, 2, 3, 3, 4}, args)
}

func TestStatement_ToSQLIsIdempotent(t *testing.T) {
	db := mockDB("postgres")

	s := db.Table("users").
		WithExpression("x", db.Table("y").Where("a", "=", 1)).
		Where("b", "=", 2).
		WhereJSON("meta->k", "=", 3).
		Having("c", ">", 4).
		SoftDeletes().
		Union(db.Table("z").Where("d", "=", 5))

	sql1, args1, err1 := s.ToSQL()
	sql2, args2, err2 := s.ToSQL()
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, sql1, sql2)
	assert.Equal(t, args1, args2)

	q1, q2 := s.Build(), s.Build()
	assert.Equal(t, q1.SQL(), q2.SQL())
	assert.Equal(t, q1.Params(), q2.Params())
}

func TestStatement_CloneIsolation(t *testing.T) {
	db := mockDB("sqlite")

	orig := db.Table("users").
		Where("a", "=", 1).
		WhereGroup(func(q *Statement) { q.Where("b", "=", 2) }).
		OrderBy("id", "ASC").
		Limit(10).
		With("posts")
	wantSQL, wantArgs, err := orig.ToSQL()
	require.NoError(t, err)

	c := orig.Clone()
	c.Where("c", "=", 3).
		Limit(1).
		AddSelect("extra").
		OrderBy("name", "DESC").
		WhereJSON("meta->x", "=", 4).
		GroupBy("a").
		With("comments")

	sql, args, err := orig.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, wantSQL, sql)
	assert.Equal(t, wantArgs, args)
	assert.Equal(t, []string{"posts"}, orig.EagerLoads())

	sql, args, err = c.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT "users".*, "extra" FROM "users" WHERE "a" = ? AND ("b" = ?) AND "c" = ? AND json_extract("meta", '$."x"') = ? GROUP BY "a" ORDER BY "id" ASC, "name" DESC LIMIT 1`, sql)
	assert.Equal(t, []any{1, 2, 3, 4}, args)
	assert.Equal(t, []string{"posts", "comments"}, c.EagerLoads())

	// Rewriting a nested group in the clone leaves the original alone.
	nested := c.wheres[1].(Nested)
	nested.Conditions[0] = RawSQL{SQL: "1 = 0", Boolean: BoolAnd}
	sql, _, err = orig.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, wantSQL, sql)
}

func TestStatement_ConcurrentBuildersDoNotShareBindings(t *testing.T) {
	db := mockDB("postgres")

	var wg sync.WaitGroup
	results := make([][]any, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, args, err := db.Table("t").Where("a", "=", i).WhereIn("b", i, i+1).ToSQL()
			if err == nil {
				results[i] = args
			}
		}(i)
	}
	wg.Wait()

	for i, args := range results {
		assert.Equal(t, []any{i, i, i + 1}, args)
	}
}
