package core

import (
	"encoding/json"
	"strings"
)

// splitJSONPath splits "meta->tags->0" into the quoted column and the path.
func (s *Statement) splitJSONPath(path string) (string, []string, error) {
	parts := strings.Split(path, "->")
	column := strings.TrimSpace(parts[0])
	if column == "" {
		return "", nil, invalidArgf("json path %q has no column", path)
	}
	keys := make([]string, 0, len(parts)-1)
	for _, p := range parts[1:] {
		p = strings.Trim(strings.TrimSpace(p), `'"`)
		if p == "" {
			return "", nil, invalidArgf("json path %q has an empty segment", path)
		}
		keys = append(keys, p)
	}
	return quoteName(s.dialect, column), keys, nil
}

func (s *Statement) addJSONFragment(fragment string, args ...any) *Statement {
	s.whereExtra = append(s.whereExtra, fragment)
	s.bindings.addWhereExtra(args...)
	return s
}

// WhereJSON compares the scalar at a JSON path: WhereJSON("meta->lang", "=", "en").
func (s *Statement) WhereJSON(path, op string, value any) *Statement {
	column, keys, err := s.splitJSONPath(path)
	if err != nil {
		return s.fail(err)
	}
	op, err = normalizeOperator(op)
	if err != nil {
		return s.fail(err)
	}
	switch op {
	case "IN", "NOT IN", "BETWEEN", "IS", "IS NOT":
		return s.fail(invalidArgf("operator %s is not supported on json paths", op))
	}
	return s.addJSONFragment(s.dialect.JSONExtract(column, keys)+" "+op+" ?", value)
}

// WhereJSONContains matches rows whose JSON array (or object) at path
// contains value.
func (s *Statement) WhereJSONContains(path string, value any) *Statement {
	return s.whereJSONContains(path, value, false)
}

// WhereJSONDoesntContain is the negation of WhereJSONContains.
func (s *Statement) WhereJSONDoesntContain(path string, value any) *Statement {
	return s.whereJSONContains(path, value, true)
}

func (s *Statement) whereJSONContains(path string, value any, negated bool) *Statement {
	column, keys, err := s.splitJSONPath(path)
	if err != nil {
		return s.fail(err)
	}
	needle, err := json.Marshal(value)
	if err != nil {
		return s.fail(invalidArgf("json value: %v", err))
	}
	fragment := s.dialect.JSONContains(column, keys)
	if negated {
		fragment = "NOT " + fragment
	}
	return s.addJSONFragment(fragment, string(needle))
}

// WhereJSONLength compares the length of the JSON array at path.
func (s *Statement) WhereJSONLength(path, op string, n int) *Statement {
	column, keys, err := s.splitJSONPath(path)
	if err != nil {
		return s.fail(err)
	}
	op, err = normalizeOperator(op)
	if err != nil {
		return s.fail(err)
	}
	switch op {
	case "=", "!=", "<", "<=", ">", ">=":
	default:
		return s.fail(invalidArgf("operator %s is not supported for json length", op))
	}
	return s.addJSONFragment(s.dialect.JSONLength(column, keys)+" "+op+" ?", n)
}
