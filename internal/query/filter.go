// Package query implements the document query task: it parses a compact
// filter expression from the invocation parameters, fetches matching
// documents from a Store, and writes them back to the event scope.
package query

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidFilter is returned for filter expressions that cannot be parsed.
var ErrInvalidFilter = errors.New("query: invalid filter")

// KeyField is the pseudo-field that addresses a document's id.
const KeyField = "__key__"

// Operator is a comparison operator in a filter.
type Operator string

const (
	OpEqual        Operator = "="
	OpNotEqual     Operator = "!="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
)

var operators = map[Operator]bool{
	OpEqual: true, OpNotEqual: true,
	OpLess: true, OpLessEqual: true,
	OpGreater: true, OpGreaterEqual: true,
}

// Ordered reports whether o is one of the range operators.
func (o Operator) Ordered() bool {
	return o != OpEqual && o != OpNotEqual
}

// ValueType names how a filter's literal is interpreted.
type ValueType string

const (
	TypeString  ValueType = "string"
	TypeInteger ValueType = "integer"
	TypeDouble  ValueType = "double"
	TypeBoolean ValueType = "boolean"
	TypeKey     ValueType = "key"
	TypeNull    ValueType = "null"
)

// Filter is one field comparison. Value holds a string, int64, float64,
// bool, or nil for TypeNull.
type Filter struct {
	Field string
	Op    Operator
	Value any
	Type  ValueType
}

// Path splits a dotted field into its segments.
func (f Filter) Path() []string {
	return strings.Split(f.Field, ".")
}

// IsKey reports whether the filter addresses the document id.
func (f Filter) IsKey() bool {
	return f.Field == KeyField || f.Type == TypeKey
}

func (f Filter) String() string {
	return fmt.Sprintf("%s %s %v (%s)", f.Field, f.Op, f.Value, f.Type)
}

// ParseFilter parses a ';'-separated list of "field,operator,value,valueType"
// segments. Empty segments are skipped. The value is everything between the
// operator and the type, so it may itself contain commas.
func ParseFilter(expr string) ([]Filter, error) {
	var filters []Filter
	for _, seg := range strings.Split(expr, ";") {
		if strings.TrimSpace(seg) == "" {
			continue
		}
		parts := strings.Split(seg, ",")
		if len(parts) < 4 {
			return nil, fmt.Errorf("%w: segment %q needs field,operator,value,valueType", ErrInvalidFilter, seg)
		}
		field := strings.TrimSpace(parts[0])
		op := Operator(strings.TrimSpace(parts[1]))
		vt := ValueType(strings.TrimSpace(parts[len(parts)-1]))
		raw := strings.Join(parts[2:len(parts)-1], ",")

		if field == "" {
			return nil, fmt.Errorf("%w: segment %q has no field", ErrInvalidFilter, seg)
		}
		if !operators[op] {
			return nil, fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, op)
		}
		v, err := Cast(raw, vt)
		if err != nil {
			return nil, err
		}
		if vt == TypeNull && op.Ordered() {
			return nil, fmt.Errorf("%w: null only supports = and !=", ErrInvalidFilter)
		}
		filters = append(filters, Filter{Field: field, Op: op, Value: v, Type: vt})
	}
	return filters, nil
}

// Cast converts a filter literal to the Go value of its type.
func Cast(raw string, vt ValueType) (any, error) {
	switch vt {
	case TypeString, TypeKey:
		return raw, nil
	case TypeInteger:
		i, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an integer", ErrInvalidFilter, raw)
		}
		return i, nil
	case TypeDouble:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a double", ErrInvalidFilter, raw)
		}
		return f, nil
	case TypeBoolean:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a boolean", ErrInvalidFilter, raw)
		}
		return b, nil
	case TypeNull:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: unknown value type %q", ErrInvalidFilter, vt)
}
