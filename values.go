package tablemap

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Record is an untyped bag of fields read from or written to a table.
type Record = map[string]any

// opaque wraps values that cannot be used as map keys.
type opaque struct{ repr string }

// normalize maps v onto a comparable canonical form. Numbers of any Go type
// collapse to float64 so that keys decoded by a driver as float64 still match
// the int keys supplied by callers.
func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string, bool:
		return x
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return cast.ToFloat64(x)
	case time.Time:
		return x.UTC()
	case fmt.Stringer:
		return x.String()
	}
	if t := reflect.TypeOf(v); t.Comparable() {
		return v
	}
	return opaque{fmt.Sprint(v)}
}

// Equal reports whether a and b hold the same value after normalization.
func Equal(a, b any) bool {
	return normalize(a) == normalize(b)
}

func kindRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case time.Time:
		return 3
	case string:
		return 4
	default:
		return 5
	}
}

// Compare orders two values. Values of different kinds order as
// nil < bool < number < time < string < anything else.
func Compare(a, b any) int {
	na, nb := normalize(a), normalize(b)
	ra, rb := kindRank(na), kindRank(nb)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch x := na.(type) {
	case nil:
		return 0
	case bool:
		y := nb.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case float64:
		y := nb.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	case time.Time:
		return x.Compare(nb.(time.Time))
	case string:
		return strings.Compare(x, nb.(string))
	default:
		return strings.Compare(fmt.Sprint(na), fmt.Sprint(nb))
	}
}

// toList coerces v into a list. Slices and arrays are copied element-wise,
// maps yield their keys in sorted order and nil yields an empty list.
func toList(v any) []any {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		return x
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = k
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	case reflect.Map:
		keys := make([]any, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.Interface())
		}
		sort.SliceStable(keys, func(i, j int) bool { return Compare(keys[i], keys[j]) < 0 })
		return keys
	}
	return []any{v}
}

func containsValue(list []any, v any) bool {
	key := normalize(v)
	for _, item := range list {
		if normalize(item) == key {
			return true
		}
	}
	return false
}

func intersects(a, b []any) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	seen := make(map[any]struct{}, len(a))
	for _, v := range a {
		seen[normalize(v)] = struct{}{}
	}
	for _, v := range b {
		if _, ok := seen[normalize(v)]; ok {
			return true
		}
	}
	return false
}

// dedupe removes nil and repeated values, keeping the first occurrence of each.
func dedupe(values []any) []any {
	seen := make(map[any]struct{}, len(values))
	out := make([]any, 0, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		key := normalize(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

// CloneRecord returns a shallow copy of r.
func CloneRecord(r Record) Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
