package tsunagi

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Reserved event parameter keys.
const (
	ExceptionKey = "CloudFunctionException"
	LoggingKey   = "CloudFunctionLogging"
)

// PlainValueType is the @type of a proto payload that wraps a plain JSON
// value under "value".
const PlainValueType = "type.googleapis.com/google.protobuf.Value"

// Value is one tagged parameter value. Build values with the constructors
// and read them with the As methods.
type Value struct {
	tag  string
	body json.RawMessage
}

func tagged(tag string, body any) Value {
	b, err := json.Marshal(body)
	if err != nil {
		// Constructors only pass JSON-safe bodies.
		panic(fmt.Sprintf("tsunagi: marshal %s: %v", tag, err))
	}
	return Value{tag: tag, body: b}
}

// String returns a stringValue.
func String(s string) Value { return tagged("stringValue", s) }

// Int returns an intValue. It is sent as a decimal string, as proto3 JSON
// does for 64-bit integers.
func Int(i int64) Value { return tagged("intValue", strconv.FormatInt(i, 10)) }

// Double returns a doubleValue.
func Double(f float64) Value { return tagged("doubleValue", jsonFloat(f)) }

// Bool returns a booleanValue.
func Bool(b bool) Value { return tagged("booleanValue", b) }

// Strings returns a stringArray.
func Strings(vs ...string) Value {
	if vs == nil {
		vs = []string{}
	}
	return tagged("stringArray", map[string]any{"stringValues": vs})
}

// Ints returns an intArray.
func Ints(vs ...int64) Value {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = strconv.FormatInt(v, 10)
	}
	return tagged("intArray", map[string]any{"intValues": out})
}

// Doc returns a protoValue wrapping doc as a plain JSON value.
func Doc(doc map[string]any) (Value, error) {
	b, err := json.Marshal(map[string]any{"@type": PlainValueType, "value": doc})
	if err != nil {
		return Value{}, fmt.Errorf("tsunagi: document is not JSON-serializable: %w", err)
	}
	return Value{tag: "protoValue", body: b}, nil
}

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

// Tag returns the name of the populated tag, e.g. "stringValue".
func (v Value) Tag() string { return v.tag }

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.tag == "" {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]json.RawMessage{v.tag: v.body})
}

// UnmarshalJSON implements json.Unmarshaler. The first non-null field is
// taken as the tag.
func (v *Value) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("tsunagi: tagged value must be an object: %w", err)
	}
	*v = Value{}
	for tag, body := range fields {
		if string(body) == "null" {
			continue
		}
		v.tag, v.body = tag, body
		break
	}
	return nil
}

func (v Value) expect(tag string) error {
	if v.tag != tag {
		return fmt.Errorf("tsunagi: value is %q, not %q", v.tag, tag)
	}
	return nil
}

// AsString returns a stringValue.
func (v Value) AsString() (string, error) {
	if err := v.expect("stringValue"); err != nil {
		return "", err
	}
	var s string
	err := json.Unmarshal(v.body, &s)
	return s, err
}

// AsInt returns an intValue, accepting the string or number form.
func (v Value) AsInt() (int64, error) {
	if err := v.expect("intValue"); err != nil {
		return 0, err
	}
	return parseInt(v.body)
}

// AsDouble returns a doubleValue, accepting the non-finite string forms.
func (v Value) AsDouble() (float64, error) {
	if err := v.expect("doubleValue"); err != nil {
		return 0, err
	}
	var f float64
	if err := json.Unmarshal(v.body, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(v.body, &s); err != nil {
		return 0, fmt.Errorf("tsunagi: bad doubleValue: %w", err)
	}
	switch s {
	case "NaN":
		return math.NaN(), nil
	case "Infinity":
		return math.Inf(1), nil
	case "-Infinity":
		return math.Inf(-1), nil
	}
	return strconv.ParseFloat(s, 64)
}

// AsBool returns a booleanValue.
func (v Value) AsBool() (bool, error) {
	if err := v.expect("booleanValue"); err != nil {
		return false, err
	}
	var b bool
	err := json.Unmarshal(v.body, &b)
	return b, err
}

// AsStrings returns a stringArray.
func (v Value) AsStrings() ([]string, error) {
	if err := v.expect("stringArray"); err != nil {
		return nil, err
	}
	var w struct {
		Values []string `json:"stringValues"`
	}
	if err := json.Unmarshal(v.body, &w); err != nil {
		return nil, err
	}
	if w.Values == nil {
		w.Values = []string{}
	}
	return w.Values, nil
}

// AsInts returns an intArray.
func (v Value) AsInts() ([]int64, error) {
	if err := v.expect("intArray"); err != nil {
		return nil, err
	}
	var w struct {
		Values []json.RawMessage `json:"intValues"`
	}
	if err := json.Unmarshal(v.body, &w); err != nil {
		return nil, err
	}
	out := make([]int64, len(w.Values))
	for i, raw := range w.Values {
		n, err := parseInt(raw)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

// AsDocuments returns the documents of a protoArray, unwrapping plain
// values. The query function writes its results this way.
func (v Value) AsDocuments() ([]map[string]any, error) {
	if err := v.expect("protoArray"); err != nil {
		return nil, err
	}
	var w struct {
		Values []map[string]any `json:"protoValues"`
	}
	if err := json.Unmarshal(v.body, &w); err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(w.Values))
	for _, p := range w.Values {
		out = append(out, unwrapDoc(p))
	}
	return out, nil
}

// AsDocument returns a protoValue, unwrapping a plain value that holds an
// object.
func (v Value) AsDocument() (map[string]any, error) {
	if err := v.expect("protoValue"); err != nil {
		return nil, err
	}
	var p map[string]any
	if err := json.Unmarshal(v.body, &p); err != nil {
		return nil, err
	}
	return unwrapDoc(p), nil
}

func unwrapDoc(p map[string]any) map[string]any {
	if p["@type"] == PlainValueType {
		if inner, ok := p["value"].(map[string]any); ok {
			return inner
		}
	}
	return p
}

func parseInt(raw json.RawMessage) (int64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strconv.ParseInt(s, 10, 64)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("tsunagi: bad integer: %w", err)
	}
	return n.Int64()
}

// Param is one key/value pair of a parameter scope.
type Param struct {
	Key   string `json:"key"`
	Value Value  `json:"value"`
}

// P is shorthand for Param{Key: key, Value: v}.
func P(key string, v Value) Param { return Param{Key: key, Value: v} }

type paramList struct {
	Parameters []Param `json:"parameters,omitempty"`
}

type payload struct {
	TaskParameters  *paramList `json:"taskParameters,omitempty"`
	EventParameters *paramList `json:"eventParameters,omitempty"`
}

// Response is the event scope returned by an invocation.
type Response struct {
	function        string
	EventParameters []Param
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Response) UnmarshalJSON(data []byte) error {
	var w struct {
		EventParameters paramList `json:"eventParameters"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.EventParameters = w.EventParameters.Parameters
	return nil
}

// Get returns the first event parameter named key.
func (r *Response) Get(key string) (Value, bool) {
	for _, p := range r.EventParameters {
		if p.Key == key {
			return p.Value, true
		}
	}
	return Value{}, false
}

// Exception returns the failure text the function reported, if any.
func (r *Response) Exception() (string, bool) {
	v, ok := r.Get(ExceptionKey)
	if !ok {
		return "", false
	}
	s, err := v.AsString()
	if err != nil {
		return "", false
	}
	return s, true
}

// Err returns a *FunctionError when the function failed, else nil.
func (r *Response) Err() error {
	msg, ok := r.Exception()
	if !ok {
		return nil
	}
	return &FunctionError{Function: r.function, Message: msg}
}

// Logs returns the lines the function logged.
func (r *Response) Logs() []string {
	v, ok := r.Get(LoggingKey)
	if !ok {
		return nil
	}
	logs, _ := v.AsStrings()
	return logs
}

// FunctionInfo describes one function the caller may invoke.
type FunctionInfo struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string   `json:"status"`
	Version   string   `json:"version"`
	Store     string   `json:"store"`
	Functions []string `json:"functions"`
	Uptime    int64    `json:"uptime_seconds"`
}

type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
