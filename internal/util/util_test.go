package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type article struct {
	ID        int       `db:"id,pk"`
	Title     string    `db:"title"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
	Secret    string    `db:"-"`
	Views     int64
	note      string
}

func TestStructToMap(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	m, err := StructToMap(&article{ID: 1, Title: "Go", CreatedAt: now, Secret: "x", note: "n"})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"id":         1,
		"title":      "Go",
		"active":     false,
		"created_at": now,
		"Views":      int64(0),
	}, m)
}

func TestStructToMap_Errors(t *testing.T) {
	var nilPtr *article
	_, err := StructToMap(nilPtr)
	assert.Error(t, err)

	_, err = StructToMap(42)
	assert.Error(t, err)
}

func TestStructToMap_CopiesMaps(t *testing.T) {
	src := map[string]any{"a": 1}
	m, err := StructToMap(src)
	require.NoError(t, err)
	m["a"] = 2
	assert.Equal(t, 1, src["a"])
}

func TestDecode(t *testing.T) {
	var a article
	err := Decode(map[string]any{
		"id":         int64(3),
		"title":      "Hello",
		"active":     int64(1),
		"created_at": "2024-01-02 03:04:05",
		"views":      "12",
	}, &a)
	require.NoError(t, err)

	assert.Equal(t, 3, a.ID)
	assert.Equal(t, "Hello", a.Title)
	assert.True(t, a.Active)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), a.CreatedAt)
	assert.Equal(t, int64(12), a.Views)
}

func TestNaming(t *testing.T) {
	assert.Equal(t, "posts", TableName("Post"))
	assert.Equal(t, "blog_posts", TableName("BlogPost"))
	assert.Equal(t, "categories", TableName("Category"))

	assert.Equal(t, "post_id", ForeignKey("posts"))
	assert.Equal(t, "category_id", ForeignKey("categories"))

	assert.Equal(t, "role_user", PivotTable("users", "roles"))
	assert.Equal(t, "role_user", PivotTable("roles", "users"))

	assert.Equal(t, "Comments", MethodName("comments"))
	assert.Equal(t, "BlogPosts", MethodName("blog_posts"))
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "7", KeyString(7))
	assert.Equal(t, "7", KeyString(int64(7)))
	assert.Equal(t, "7", KeyString("7"))
	assert.Equal(t, "7", KeyString([]byte("7")))
}

func TestFlattenAndUniqueKeys(t *testing.T) {
	assert.Equal(t, []any{1, 2}, Flatten([]int{1, 2}))
	assert.Equal(t, []any{"a"}, Flatten("a"))
	assert.Equal(t, []any{[]byte("x")}, Flatten([]byte("x")))
	assert.Nil(t, Flatten(nil))
	assert.Equal(t, []any{[2]int{1, 2}}, Flatten([2]int{1, 2}))

	assert.Equal(t, []any{1, 2}, UniqueKeys([]any{1, "1", nil, 2, int64(2)}))

	var p *int
	assert.True(t, IsNilKey(p))
	assert.False(t, IsNilKey(0))
}
