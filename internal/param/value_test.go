package param

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueUnmarshalTags(t *testing.T) {
	tests := []struct {
		name string
		json string
		kind Kind
		want any
	}{
		{"string", `{"stringValue":"a"}`, KindString, "a"},
		{"int number", `{"intValue":7}`, KindInt, int64(7)},
		{"int string", `{"intValue":"9007199254740993"}`, KindInt, int64(9007199254740993)},
		{"double", `{"doubleValue":1.5}`, KindDouble, 1.5},
		{"boolean", `{"booleanValue":true}`, KindBool, true},
		{"proto plain", `{"protoValue":{"@type":"type.googleapis.com/google.protobuf.Value","value":[1,"x"]}}`, KindProto, []any{json.Number("1"), "x"}},
		{"proto typed", `{"protoValue":{"@type":"t/x","a":1}}`, KindProto, map[string]any{"@type": "t/x", "a": json.Number("1")}},
		{"proto large int", `{"protoValue":{"@type":"t/x","id":9007199254740993}}`, KindProto, map[string]any{"@type": "t/x", "id": json.Number("9007199254740993")}},
		{"string array", `{"stringArray":{"stringValues":["a","b"]}}`, KindStringArray, []string{"a", "b"}},
		{"int array", `{"intArray":{"intValues":[1,"2"]}}`, KindIntArray, []int64{1, 2}},
		{"double array", `{"doubleArray":{"doubleValues":[0.5]}}`, KindDoubleArray, []float64{0.5}},
		{"boolean array", `{"booleanArray":{"booleanValues":[false]}}`, KindBoolArray, []bool{false}},
		{"proto array", `{"protoArray":{"protoValues":[{"@type":"t/x"}]}}`, KindProtoArray, []map[string]any{{"@type": "t/x"}}},
		{"empty array", `{"stringArray":{}}`, KindStringArray, []string{}},
		{"null sibling ignored", `{"stringValue":"a","intValue":null}`, KindString, "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Value
			require.NoError(t, json.Unmarshal([]byte(tt.json), &v))
			assert.Equal(t, tt.kind, v.Kind())

			got, err := Decode(v)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValueUnmarshalMalformed(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"no tag", `{}`},
		{"two tags", `{"stringValue":"a","intValue":1}`},
		{"unknown tag", `{"bytesValue":"AA=="}`},
		{"wrong payload shape", `{"intValue":"abc"}`},
		{"fractional int", `{"intValue":1.5}`},
		{"proto not object", `{"protoValue":[1]}`},
		{"array not wrapped", `{"stringArray":["a"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Value
			require.NoError(t, json.Unmarshal([]byte(tt.json), &v))
			assert.False(t, v.Valid())

			_, err := Decode(v)
			assert.ErrorIs(t, err, ErrMalformedParam)

			// Malformed values are echoed verbatim.
			out, err := json.Marshal(v)
			require.NoError(t, err)
			assert.JSONEq(t, tt.json, string(out))
		})
	}
}

func TestValueUnmarshalKeepsNonObject(t *testing.T) {
	for _, in := range []string{`"just a string"`, `42`, `[1,2]`} {
		t.Run(in, func(t *testing.T) {
			var v Value
			require.NoError(t, json.Unmarshal([]byte(in), &v))
			assert.False(t, v.Valid())

			_, err := Decode(v)
			assert.ErrorIs(t, err, ErrMalformedParam)
			assert.ErrorContains(t, err, "must be an object")

			out, err := json.Marshal(v)
			require.NoError(t, err)
			assert.JSONEq(t, in, string(out))
		})
	}
}

func TestValueProtoEchoKeepsLargeIntegers(t *testing.T) {
	in := `{"protoValue":{"@type":"x","id":9007199254740993,"n":[-9223372036854775808,1.25]}}`

	var v Value
	require.NoError(t, json.Unmarshal([]byte(in), &v))
	require.True(t, v.Valid())

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
	assert.Contains(t, string(out), "9007199254740993")
}

func TestDecodeJSON(t *testing.T) {
	var got any
	require.NoError(t, DecodeJSON([]byte(` {"id": 9007199254740993} `), &got))
	assert.Equal(t, map[string]any{"id": json.Number("9007199254740993")}, got)

	assert.Error(t, DecodeJSON([]byte(`{"a":1} {"b":2}`), &got))
	assert.Error(t, DecodeJSON([]byte(`{"a":`), &got))
}

func TestValueMarshal(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"string", String("a"), `{"stringValue":"a"}`},
		{"int", Int(-3), `{"intValue":-3}`},
		{"double", Double(0.25), `{"doubleValue":0.25}`},
		{"nan", Double(math.NaN()), `{"doubleValue":"NaN"}`},
		{"bool", Bool(true), `{"booleanValue":true}`},
		{"plain", Plain("x"), `{"protoValue":{"@type":"type.googleapis.com/google.protobuf.Value","value":"x"}}`},
		{"strings", Strings("a"), `{"stringArray":{"stringValues":["a"]}}`},
		{"ints", Ints(1, 2), `{"intArray":{"intValues":[1,2]}}`},
		{"doubles", Doubles(1.5, math.Inf(1)), `{"doubleArray":{"doubleValues":[1.5,"Infinity"]}}`},
		{"bools", Bools(), `{"booleanArray":{"booleanValues":[]}}`},
		{"protos", Protos(map[string]any{"@type": "t/x"}), `{"protoArray":{"protoValues":[{"@type":"t/x"}]}}`},
		{"zero", Value{}, `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := json.Marshal(tt.v)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(out))
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "intValue", KindInt.String())
	assert.Equal(t, "protoArray", KindProtoArray.String())
	assert.Equal(t, "invalid", KindInvalid.String())
	assert.Equal(t, "invalid", Kind(99).String())
	assert.True(t, KindBoolArray.IsArray())
	assert.False(t, KindProto.IsArray())
}
