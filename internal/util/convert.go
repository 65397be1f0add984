// Package util provides struct conversion, naming and key helpers shared by
// the record layer.
package util

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// TagName is the struct tag that names a column.
const TagName = "db"

// columnName parses a db tag. "name,pk" yields "name"; "-" means skip.
func columnName(field reflect.StructField) string {
	tag, ok := field.Tag.Lookup(TagName)
	if !ok {
		return field.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	name = strings.TrimSpace(name)
	if name == "" {
		return field.Name
	}
	return name
}

// StructToMap converts a struct to a column map using db tags.
//
// Unexported fields and db:"-" fields are skipped. Fields without a db tag
// use the field name. Zero values are included; time.Time and other struct
// values are kept as-is rather than flattened.
func StructToMap(data any) (map[string]any, error) {
	if m, ok := data.(map[string]any); ok {
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, nil
	}

	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, errors.New("StructToMap: nil pointer")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, errors.New("StructToMap: expected struct, got " + v.Kind().String())
	}

	t := v.Type()
	result := make(map[string]any, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := columnName(field)
		if name == "-" {
			continue
		}
		result[name] = v.Field(i).Interface()
	}
	return result, nil
}

// Decode copies a column map (or a slice of them) into dest, a pointer to a
// struct (or a slice of structs). Values are converted weakly, so an int64
// column fills an int field and a "1" fills a bool.
func Decode(input, dest any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          TagName,
		WeaklyTypedInput: true,
		Result:           dest,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			stringToTimeHook,
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// stringToTimeHook parses the timestamp text drivers such as sqlite return.
func stringToTimeHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(time.Time{}) {
		return data, nil
	}
	s := data.(string)
	if s == "" {
		return time.Time{}, nil
	}
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
