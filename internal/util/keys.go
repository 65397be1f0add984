package util

import (
	"fmt"
	"reflect"

	"github.com/spf13/cast"
)

// KeyString renders a key so that 7, int64(7), "7" and []byte("7") compare
// equal when matching rows to parents.
func KeyString(v any) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}

// IsNilKey reports whether v is nil or a nil pointer.
func IsNilKey(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

// Flatten returns the elements of a slice, or v alone for any other value.
// []byte and fixed-size arrays such as uuid.UUID are treated as scalars.
func Flatten(v any) []any {
	if v == nil {
		return nil
	}
	if items, ok := v.([]any); ok {
		return items
	}
	if _, ok := v.([]byte); ok {
		return []any{v}
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return []any{v}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// UniqueKeys drops duplicate keys (by KeyString), keeping first occurrences.
func UniqueKeys(keys []any) []any {
	seen := make(map[string]struct{}, len(keys))
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		if IsNilKey(k) {
			continue
		}
		s := KeyString(k)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, k)
	}
	return out
}
