package qdrant

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// translatedFilter is a qdrant filter clause built from the mongo-style
// subset accepted by vectorstore.Store.
type translatedFilter struct {
	Must    []any
	Should  []any
	MustNot []any
}

func (f translatedFilter) asMap() map[string]any {
	out := map[string]any{}
	for key, conds := range map[string][]any{"must": f.Must, "should": f.Should, "must_not": f.MustNot} {
		if len(conds) > 0 {
			out[key] = conds
		}
	}
	return out
}

func translateFilterMap(filter map[string]any) (translatedFilter, error) {
	var out translatedFilter
	for _, key := range sortedKeys(filter) {
		value := filter[key]
		k := strings.ToLower(strings.TrimSpace(key))
		switch {
		case k == "":
			continue
		case k == "$and" || k == "$or":
			subs, err := subFilters(k, value)
			if err != nil {
				return translatedFilter{}, err
			}
			if k == "$and" {
				out.Must = append(out.Must, subs...)
			} else {
				out.Should = append(out.Should, subs...)
			}
		case k == "$not":
			obj, ok := value.(map[string]any)
			if !ok {
				return translatedFilter{}, filterErr(OperationErrorValidation, "$not expects an object")
			}
			sub, err := translateFilterMap(obj)
			if err != nil {
				return translatedFilter{}, err
			}
			out.MustNot = append(out.MustNot, sub.asMap())
		case strings.HasPrefix(k, "$"):
			return translatedFilter{}, filterErr(OperationErrorUnsupportedFilter, "unsupported top-level operator %q", key)
		default:
			if err := out.addField(strings.TrimSpace(key), value); err != nil {
				return translatedFilter{}, err
			}
		}
	}
	return out, nil
}

func subFilters(op string, value any) ([]any, error) {
	items, ok := value.([]any)
	if !ok {
		return nil, filterErr(OperationErrorValidation, "%s expects an array of objects", op)
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, filterErr(OperationErrorValidation, "%s expects an array of objects, got %T", op, item)
		}
		sub, err := translateFilterMap(obj)
		if err != nil {
			return nil, err
		}
		out = append(out, sub.asMap())
	}
	return out, nil
}

func (f *translatedFilter) addField(field string, value any) error {
	ops, isOps := value.(map[string]any)
	if !isOps {
		scalar, ok := scalarValue(value)
		if !ok {
			return filterErr(OperationErrorValidation, "field %q expects a scalar or operator object", field)
		}
		f.Must = append(f.Must, matchCondition(field, scalar))
		return nil
	}
	if len(ops) == 0 {
		return filterErr(OperationErrorValidation, "field %q has an empty operator object", field)
	}
	for _, op := range sortedKeys(ops) {
		v := ops[op]
		switch name := strings.ToLower(strings.TrimSpace(op)); name {
		case "$eq", "$ne":
			scalar, ok := scalarValue(v)
			if !ok {
				return filterErr(OperationErrorValidation, "%s on %q expects a scalar", name, field)
			}
			if name == "$eq" {
				f.Must = append(f.Must, matchCondition(field, scalar))
			} else {
				f.MustNot = append(f.MustNot, matchCondition(field, scalar))
			}
		case "$in":
			values, ok := scalarSlice(v)
			if !ok || len(values) == 0 {
				return filterErr(OperationErrorValidation, "$in on %q expects a non-empty scalar array", field)
			}
			f.Must = append(f.Must, map[string]any{"key": field, "match": map[string]any{"any": values}})
		case "$gte", "$lte":
			bound, ok := number(v)
			if !ok {
				return filterErr(OperationErrorValidation, "%s on %q expects a number", name, field)
			}
			f.Must = append(f.Must, map[string]any{"key": field, "range": map[string]any{name[1:]: bound}})
		default:
			return filterErr(OperationErrorUnsupportedFilter, "unsupported operator %q on %q", op, field)
		}
	}
	return nil
}

func matchCondition(key string, value any) map[string]any {
	return map[string]any{"key": key, "match": map[string]any{"value": value}}
}

func filterErr(code OperationErrorCode, format string, args ...any) error {
	return opErr("filter_translate", code, fmt.Sprintf(format, args...), nil)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// scalarValue normalizes strings, bools and numbers. Integers stay integral so
// qdrant can match them against integer payload fields.
func scalarValue(v any) (any, bool) {
	switch t := v.(type) {
	case string, bool:
		return t, true
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, true
		}
		f, err := t.Float64()
		return f, err == nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return nil, false
}

func scalarSlice(v any) ([]any, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		s, ok := scalarValue(rv.Index(i).Interface())
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func number(v any) (float64, bool) {
	s, ok := scalarValue(v)
	if !ok {
		return 0, false
	}
	switch n := s.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
