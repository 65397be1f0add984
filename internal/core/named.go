package core

import (
	"regexp"
	"strings"
)

// Params holds the values of {:name} placeholders.
type Params map[string]any

var (
	namedPlaceholder = regexp.MustCompile(`\{:(\w+)\}`)
	// {{table}} and [[column]] are quoted for the dialect.
	bracketedName = regexp.MustCompile(`\{\{([\w\-. ]+)\}\}|\[\[([\w\-. ]+)\]\]`)
)

// NamedQuery wraps hand-written SQL that uses {:name} placeholders and
// {{table}} / [[column]] identifiers:
//
//	db.NamedQuery("SELECT [[name]] FROM {{users}} WHERE [[id]] = {:id}", strata.Params{"id": 7})
//
// A name used twice is bound twice. A missing value is reported by the
// returned query.
func (qb *QueryBuilder) NamedQuery(query string, params Params) *Query {
	sqlText, names := qb.db.expandNamed(query)
	args := make([]any, len(names))
	var err error
	for i, name := range names {
		v, ok := params[name]
		if !ok {
			err = invalidArgf("missing value for parameter %q", name)
			break
		}
		args[i] = v
	}
	return &Query{sql: sqlText, params: args, builder: qb, err: err}
}

// NamedQuery is QueryBuilder.NamedQuery on a fresh builder.
func (db *DB) NamedQuery(query string, params Params) *Query {
	return db.Builder().NamedQuery(query, params)
}

// expandNamed replaces placeholders with the dialect's positional form and
// quotes bracketed identifiers, returning the parameter names in order.
func (db *DB) expandNamed(query string) (string, []string) {
	var names []string
	out := namedPlaceholder.ReplaceAllStringFunc(query, func(match string) string {
		names = append(names, match[2:len(match)-1])
		return db.dialect.Placeholder(len(names))
	})
	out = bracketedName.ReplaceAllStringFunc(out, func(match string) string {
		parts := strings.Split(match[2:len(match)-2], ".")
		for i, p := range parts {
			parts[i] = db.dialect.QuoteIdentifier(strings.TrimSpace(p))
		}
		return strings.Join(parts, ".")
	})
	return out, names
}
