// Package param implements the typed parameter store exchanged with function
// callers: tagged wire values, ordered parameter lists, and the two-scope
// resolver with $name$ indirection.
package param

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

// Wire constants for proto payloads.
const (
	// TypeKey is the field carrying a proto payload's type identifier.
	TypeKey = "@type"

	// ValueKey holds the wrapped content of a plain-value proto.
	ValueKey = "value"

	// PlainValueType marks a proto payload as a generic wrapped value rather
	// than a domain message.
	PlainValueType = "type.googleapis.com/google.protobuf.Value"
)

// Kind identifies which tag of a Value is populated.
type Kind int

const (
	KindInvalid Kind = iota
	KindString
	KindInt
	KindDouble
	KindBool
	KindProto
	KindStringArray
	KindIntArray
	KindDoubleArray
	KindBoolArray
	KindProtoArray
)

var kindFields = [...]string{
	KindInvalid:     "",
	KindString:      "stringValue",
	KindInt:         "intValue",
	KindDouble:      "doubleValue",
	KindBool:        "booleanValue",
	KindProto:       "protoValue",
	KindStringArray: "stringArray",
	KindIntArray:    "intArray",
	KindDoubleArray: "doubleArray",
	KindBoolArray:   "booleanArray",
	KindProtoArray:  "protoArray",
}

// listFields names the inner list field of each array tag.
var listFields = map[Kind]string{
	KindStringArray: "stringValues",
	KindIntArray:    "intValues",
	KindDoubleArray: "doubleValues",
	KindBoolArray:   "booleanValues",
	KindProtoArray:  "protoValues",
}

var kindByField = func() map[string]Kind {
	m := make(map[string]Kind, len(kindFields))
	for k, f := range kindFields {
		if f != "" {
			m[f] = Kind(k)
		}
	}
	return m
}()

// String returns the wire field name of the tag.
func (k Kind) String() string {
	if k <= KindInvalid || int(k) >= len(kindFields) {
		return "invalid"
	}
	return kindFields[k]
}

// IsArray reports whether k is one of the array tags.
func (k Kind) IsArray() bool {
	_, ok := listFields[k]
	return ok
}

// Value is one tagged wire value. Exactly one tag is populated on a valid
// Value. A Value decoded from malformed JSON keeps its raw bytes so it can be
// echoed back unchanged; it only fails when decoded.
//
// The zero Value is malformed.
type Value struct {
	kind    Kind
	payload any
	raw     json.RawMessage
	problem string
}

// String returns a String-tagged value.
func String(s string) Value { return Value{kind: KindString, payload: s} }

// Int returns an Integer-tagged value.
func Int(i int64) Value { return Value{kind: KindInt, payload: i} }

// Double returns a Double-tagged value.
func Double(f float64) Value { return Value{kind: KindDouble, payload: f} }

// Bool returns a Boolean-tagged value.
func Bool(b bool) Value { return Value{kind: KindBool, payload: b} }

// Proto returns a Proto-tagged value carrying doc verbatim.
func Proto(doc map[string]any) Value { return Value{kind: KindProto, payload: doc} }

// Plain wraps v in a plain-value proto: {"@type": PlainValueType, "value": v}.
// v must be JSON-serializable.
func Plain(v any) Value {
	return Proto(map[string]any{TypeKey: PlainValueType, ValueKey: v})
}

// Strings returns a StringArray-tagged value.
func Strings(vs ...string) Value { return Value{kind: KindStringArray, payload: nonNil(vs)} }

// Ints returns an IntegerArray-tagged value.
func Ints(vs ...int64) Value { return Value{kind: KindIntArray, payload: nonNil(vs)} }

// Doubles returns a DoubleArray-tagged value.
func Doubles(vs ...float64) Value { return Value{kind: KindDoubleArray, payload: nonNil(vs)} }

// Bools returns a BooleanArray-tagged value.
func Bools(vs ...bool) Value { return Value{kind: KindBoolArray, payload: nonNil(vs)} }

// Protos returns a ProtoArray-tagged value. Callers are expected to pass
// documents sharing one type identifier.
func Protos(docs ...map[string]any) Value {
	return Value{kind: KindProtoArray, payload: nonNil(docs)}
}

func nonNil[T any](vs []T) []T {
	if vs == nil {
		return []T{}
	}
	return vs
}

// Kind returns the populated tag, or KindInvalid for a malformed value.
func (v Value) Kind() Kind { return v.kind }

// Valid reports whether exactly one recognized tag is populated.
func (v Value) Valid() bool { return v.kind != KindInvalid }

// TypeURL returns the type identifier of a Proto value, or "".
func (v Value) TypeURL() string {
	doc, ok := v.payload.(map[string]any)
	if v.kind != KindProto || !ok {
		return ""
	}
	s, _ := doc[TypeKey].(string)
	return s
}

// IsPlain reports whether v is a plain-value proto wrapper.
func (v Value) IsPlain() bool { return v.TypeURL() == PlainValueType }

// MarshalJSON emits the single populated tag. Malformed values are emitted
// exactly as they were received.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindInvalid {
		if len(v.raw) == 0 {
			return []byte("{}"), nil
		}
		return v.raw, nil
	}

	body := v.payload
	switch p := v.payload.(type) {
	case float64:
		body = jsonFloat(p)
	case []float64:
		out := make([]any, len(p))
		for i, f := range p {
			out[i] = jsonFloat(f)
		}
		body = out
	}
	if list, ok := listFields[v.kind]; ok {
		body = map[string]any{list: body}
	}
	return json.Marshal(map[string]any{v.kind.String(): body})
}

// jsonFloat renders non-finite doubles as the strings proto3 JSON uses.
func jsonFloat(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return f
}

// UnmarshalJSON accepts any JSON value. Anything other than an object
// carrying exactly one recognized, well-shaped tag becomes a malformed value
// instead of failing, so a single bad parameter does not reject the whole
// payload.
func (v *Value) UnmarshalJSON(data []byte) error {
	*v = Value{raw: append(json.RawMessage(nil), data...)}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		v.problem = "tagged value must be an object"
		return nil
	}

	var tag string
	var body json.RawMessage
	populated := 0
	for name, b := range fields {
		if isNull(b) {
			continue
		}
		tag, body = name, b
		populated++
	}
	if populated != 1 {
		v.problem = fmt.Sprintf("expected exactly one tag, found %d", populated)
		return nil
	}
	kind, ok := kindByField[tag]
	if !ok {
		v.problem = fmt.Sprintf("unrecognized tag %q", tag)
		return nil
	}
	payload, err := decodePayload(kind, body)
	if err != nil {
		v.problem = fmt.Sprintf("%s: %v", tag, err)
		return nil
	}
	v.kind, v.payload, v.raw = kind, payload, nil
	return nil
}

func isNull(b json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(b), []byte("null"))
}

func decodePayload(kind Kind, body json.RawMessage) (any, error) {
	if kind.IsArray() {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(body, &wrapper); err != nil {
			return nil, err
		}
		inner := wrapper[listFields[kind]]
		var items []json.RawMessage
		if len(inner) > 0 && !isNull(inner) {
			if err := json.Unmarshal(inner, &items); err != nil {
				return nil, err
			}
		}
		return decodeItems(kind, items)
	}

	switch kind {
	case KindString:
		var s string
		err := json.Unmarshal(body, &s)
		return s, err
	case KindInt:
		return parseInt(body)
	case KindDouble:
		return parseDouble(body)
	case KindBool:
		var b bool
		err := json.Unmarshal(body, &b)
		return b, err
	case KindProto:
		return parseDocument(body)
	}
	return nil, fmt.Errorf("no payload for %s", kind)
}

func decodeItems(kind Kind, items []json.RawMessage) (any, error) {
	var err error
	switch kind {
	case KindStringArray:
		out := make([]string, len(items))
		for i, it := range items {
			if err = json.Unmarshal(it, &out[i]); err != nil {
				return nil, err
			}
		}
		return out, nil
	case KindIntArray:
		out := make([]int64, len(items))
		for i, it := range items {
			if out[i], err = parseInt(it); err != nil {
				return nil, err
			}
		}
		return out, nil
	case KindDoubleArray:
		out := make([]float64, len(items))
		for i, it := range items {
			if out[i], err = parseDouble(it); err != nil {
				return nil, err
			}
		}
		return out, nil
	case KindBoolArray:
		out := make([]bool, len(items))
		for i, it := range items {
			if err = json.Unmarshal(it, &out[i]); err != nil {
				return nil, err
			}
		}
		return out, nil
	default:
		out := make([]map[string]any, len(items))
		for i, it := range items {
			if out[i], err = parseDocument(it); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
}

// parseInt accepts a JSON number or a decimal string, the two forms proto3
// JSON uses for int64.
func parseInt(b json.RawMessage) (int64, error) {
	s := string(bytes.TrimSpace(b))
	if len(s) > 0 && s[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return 0, err
		}
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %s", s)
	}
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("invalid integer %s", s)
	}
	return int64(f), nil
}

// parseDouble accepts a JSON number or a string such as "NaN" or "Infinity".
func parseDouble(b json.RawMessage) (float64, error) {
	s := string(bytes.TrimSpace(b))
	if len(s) > 0 && s[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return 0, err
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid double %s", s)
	}
	return f, nil
}

func parseDocument(b json.RawMessage) (map[string]any, error) {
	var doc map[string]any
	if err := DecodeJSON(b, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("proto payload must be an object")
	}
	return doc, nil
}

// DecodeJSON is json.Unmarshal with numbers kept as json.Number, so integers
// beyond 2^53 come back out exactly as they went in.
func DecodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("invalid character after top-level value")
	}
	return nil
}
