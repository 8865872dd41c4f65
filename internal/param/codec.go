package param

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// Encode selects a tag from the Go shape of v.
//
//   - string, bool, integer and float kinds map to the matching scalar tag.
//     Booleans are never treated as integers.
//   - A string-keyed map becomes a Proto. If it carries "@type" it is kept
//     verbatim, otherwise it is wrapped in a plain-value proto.
//   - A slice of one scalar kind becomes the matching array tag. A slice of
//     maps sharing one non-empty "@type" becomes a ProtoArray. Any other
//     mix is wrapped whole in a plain-value proto.
//   - An empty slice fails with ErrInvalidValue. Values with no tagged
//     representation fail with ErrUnsupportedType.
//
// A Value is returned unchanged.
func Encode(v any) (Value, error) {
	switch x := v.(type) {
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case float32:
		return Double(float64(x)), nil
	case float64:
		return Double(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("param: number %q: %w", x, ErrInvalidValue)
		}
		return Double(f), nil
	case map[string]any:
		return encodeDocument(x)
	case []string:
		if len(x) == 0 {
			return Value{}, errEmptyList
		}
		return Strings(x...), nil
	case []int64:
		if len(x) == 0 {
			return Value{}, errEmptyList
		}
		return Ints(x...), nil
	case []float64:
		if len(x) == 0 {
			return Value{}, errEmptyList
		}
		return Doubles(x...), nil
	case []bool:
		if len(x) == 0 {
			return Value{}, errEmptyList
		}
		return Bools(x...), nil
	case []any:
		return encodeList(x)
	case nil:
		return Value{}, fmt.Errorf("param: nil value: %w", ErrUnsupportedType)
	}

	if i, ok, err := asInt(v); ok {
		if err != nil {
			return Value{}, err
		}
		return Int(i), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Float32, reflect.Float64:
		return Double(rv.Float()), nil
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return encodeList(items)
	case reflect.Map:
		if doc, ok := asDocument(v); ok {
			return encodeDocument(doc)
		}
	}
	return Value{}, fmt.Errorf("param: value of type %T: %w", v, ErrUnsupportedType)
}

var errEmptyList = fmt.Errorf("param: empty list: %w", ErrInvalidValue)

// asInt converts any Go integer kind to int64. ok is false for non-integers.
func asInt(v any) (i int64, ok bool, err error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, true, fmt.Errorf("param: %d overflows int64: %w", u, ErrInvalidValue)
		}
		return int64(u), true, nil
	}
	return 0, false, nil
}

// asDocument converts a string-keyed map of any element type.
func asDocument(v any) (map[string]any, bool) {
	if doc, ok := v.(map[string]any); ok {
		return doc, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	doc := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		doc[iter.Key().String()] = iter.Value().Interface()
	}
	return doc, true
}

func encodeDocument(doc map[string]any) (Value, error) {
	normalized, err := normalize(doc)
	if err != nil {
		return Value{}, err
	}
	m, _ := normalized.(map[string]any)
	if _, tagged := m[TypeKey]; tagged {
		return Proto(m), nil
	}
	return Plain(m), nil
}

// normalize round-trips v through JSON so stored payloads hold only the
// types a decoded wire payload would, json.Number included.
func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("param: value is not JSON-serializable: %w: %w", ErrUnsupportedType, err)
	}
	var out any
	if err := DecodeJSON(b, &out); err != nil {
		return nil, fmt.Errorf("param: value is not JSON-serializable: %w: %w", ErrUnsupportedType, err)
	}
	return out, nil
}

type elemClass int

const (
	classString elemClass = iota
	classInt
	classDouble
	classBool
	classDocument
	classOther
)

func classify(v any) elemClass {
	switch x := v.(type) {
	case string:
		return classString
	case bool:
		return classBool
	case float32, float64:
		return classDouble
	case json.Number:
		if _, err := x.Int64(); err == nil {
			return classInt
		}
		return classDouble
	case Value:
		return classOther
	}
	if _, ok, _ := asInt(v); ok {
		return classInt
	}
	if _, ok := asDocument(v); ok {
		return classDocument
	}
	return classOther
}

func encodeList(items []any) (Value, error) {
	if len(items) == 0 {
		return Value{}, errEmptyList
	}
	class := classify(items[0])
	for _, it := range items[1:] {
		if classify(it) != class {
			return wrapList(items)
		}
	}

	switch class {
	case classString:
		out := make([]string, len(items))
		for i, it := range items {
			out[i] = it.(string)
		}
		return Strings(out...), nil
	case classInt:
		out := make([]int64, len(items))
		for i, it := range items {
			n, err := listInt(it)
			if err != nil {
				return Value{}, err
			}
			out[i] = n
		}
		return Ints(out...), nil
	case classDouble:
		out := make([]float64, len(items))
		for i, it := range items {
			out[i] = listDouble(it)
		}
		return Doubles(out...), nil
	case classBool:
		out := make([]bool, len(items))
		for i, it := range items {
			out[i] = it.(bool)
		}
		return Bools(out...), nil
	case classDocument:
		return encodeDocuments(items)
	}
	return Value{}, fmt.Errorf("param: list of %T: %w", items[0], ErrUnsupportedType)
}

func listInt(v any) (int64, error) {
	if n, ok := v.(json.Number); ok {
		return n.Int64()
	}
	i, _, err := asInt(v)
	return i, err
}

func listDouble(v any) float64 {
	switch x := v.(type) {
	case float32:
		return float64(x)
	case json.Number:
		f, _ := x.Float64()
		return f
	}
	return v.(float64)
}

// encodeDocuments emits a ProtoArray when every document shares the same
// non-empty type identifier, and a plain wrapper otherwise.
func encodeDocuments(items []any) (Value, error) {
	normalized, err := normalize(items)
	if err != nil {
		return Value{}, err
	}
	list, _ := normalized.([]any)
	docs := make([]map[string]any, len(list))
	for i, it := range list {
		docs[i], _ = it.(map[string]any)
	}

	typeURL, _ := docs[0][TypeKey].(string)
	if typeURL == "" {
		return Plain(list), nil
	}
	for _, d := range docs[1:] {
		if t, _ := d[TypeKey].(string); t != typeURL {
			return Plain(list), nil
		}
	}
	return Protos(docs...), nil
}

func wrapList(items []any) (Value, error) {
	normalized, err := normalize(items)
	if err != nil {
		return Value{}, err
	}
	return Plain(normalized), nil
}

// Decode returns the native value carried by v.
//
// Scalars come back as string, int64, float64 or bool. A plain-value proto
// yields its inner "value"; any other proto yields the document itself.
// Arrays yield []string, []int64, []float64, []bool or []map[string]any.
// Numbers inside proto payloads are json.Number.
func Decode(v Value) (any, error) {
	switch v.kind {
	case KindInvalid:
		if v.problem != "" {
			return nil, fmt.Errorf("param: %s: %w", v.problem, ErrMalformedParam)
		}
		return nil, fmt.Errorf("param: no tag set: %w", ErrMalformedParam)
	case KindProto:
		doc, _ := v.payload.(map[string]any)
		if t, _ := doc[TypeKey].(string); t == PlainValueType {
			return doc[ValueKey], nil
		}
		return doc, nil
	}
	return v.payload, nil
}
