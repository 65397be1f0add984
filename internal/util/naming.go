package util

import (
	"sort"
	"strings"

	"github.com/go-openapi/inflect"
)

// TableName infers a table from a Go type name: BlogPost -> blog_posts.
func TableName(typeName string) string {
	return inflect.Tableize(typeName)
}

// ForeignKey returns the conventional key column referencing table:
// posts -> post_id.
func ForeignKey(table string) string {
	return strings.ToLower(inflect.Singularize(table)) + "_id"
}

// PivotTable joins the singular names of two tables in alphabetical order:
// (users, roles) -> role_user.
func PivotTable(a, b string) string {
	names := []string{
		strings.ToLower(inflect.Singularize(a)),
		strings.ToLower(inflect.Singularize(b)),
	}
	sort.Strings(names)
	return names[0] + "_" + names[1]
}

// MethodName maps a relation name to the method declaring it:
// comments -> Comments, blog_posts -> BlogPosts.
func MethodName(relation string) string {
	return inflect.Camelize(relation)
}
