package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ashita-ai/tsunagi/internal/param"
)

// ErrUnsupportedFilter is returned by stores that cannot express a filter.
var ErrUnsupportedFilter = errors.New("query: unsupported filter")

// Document is one stored document of a kind.
type Document struct {
	ID   string
	Kind string
	Body map[string]any
}

// Query selects up to Limit documents of Kind matching every filter.
type Query struct {
	Kind    string
	Filters []Filter
	Limit   int
}

// Store fetches documents. Implementations return documents in insertion
// order.
type Store interface {
	Fetch(ctx context.Context, q Query) ([]Document, error)
	Ping(ctx context.Context) error
}

// Writer stores documents. Documents with an empty ID are assigned one.
type Writer interface {
	Put(ctx context.Context, docs []Document) error
}

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	docs []Document
	ids  map[string]int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: make(map[string]int)}
}

// Put inserts or replaces documents by (kind, id).
func (m *MemoryStore) Put(_ context.Context, docs []Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		if d.Kind == "" {
			return fmt.Errorf("query: document without kind")
		}
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		k := d.Kind + "\x00" + d.ID
		if i, ok := m.ids[k]; ok {
			m.docs[i] = d
			continue
		}
		m.ids[k] = len(m.docs)
		m.docs = append(m.docs, d)
	}
	return nil
}

// Fetch scans documents of q.Kind in insertion order.
func (m *MemoryStore) Fetch(ctx context.Context, q Query) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Document
	for _, d := range m.docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if d.Kind != q.Kind || !MatchAll(d, q.Filters) {
			continue
		}
		out = append(out, d)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

// DecodeBody decodes a stored JSON document body. Numbers stay json.Number so
// large integer ids are not rounded.
func DecodeBody(raw []byte) (map[string]any, error) {
	var body map[string]any
	if err := param.DecodeJSON(raw, &body); err != nil {
		return nil, err
	}
	return body, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// MatchAll reports whether d satisfies every filter.
func MatchAll(d Document, filters []Filter) bool {
	for _, f := range filters {
		if !Match(d, f) {
			return false
		}
	}
	return true
}

// Match evaluates one filter against d.
//
// A field that is absent never matches, except for "= null". JSON null
// matches "= null" only. Values of different types are never equal and
// never ordered.
func Match(d Document, f Filter) bool {
	if f.IsKey() {
		want := fmt.Sprint(f.Value)
		return compareOrdered(d.ID, want, f.Op)
	}

	got, present := lookup(d.Body, f.Path())
	if f.Type == TypeNull {
		isNull := !present || got == nil
		if f.Op == OpEqual {
			return isNull
		}
		return !isNull
	}
	if !present {
		return false
	}

	switch want := f.Value.(type) {
	case string:
		s, ok := got.(string)
		if !ok {
			return f.Op == OpNotEqual
		}
		return compareOrdered(s, want, f.Op)
	case bool:
		b, ok := got.(bool)
		if !ok {
			return f.Op == OpNotEqual
		}
		return compareOrdered(boolRank(b), boolRank(want), f.Op)
	case int64:
		if i, ok := integer(got); ok {
			return compareOrdered(i, want, f.Op)
		}
		n, ok := number(got)
		if !ok {
			return f.Op == OpNotEqual
		}
		return compareOrdered(n, float64(want), f.Op)
	case float64:
		n, ok := number(got)
		if !ok {
			return f.Op == OpNotEqual
		}
		return compareOrdered(n, want, f.Op)
	}
	return false
}

func lookup(body map[string]any, path []string) (any, bool) {
	var cur any = body
	for _, seg := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// integer returns v as an int64 when it holds an exact integer.
func integer(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

func compareOrdered[T int | int64 | float64 | string](a, b T, op Operator) bool {
	switch op {
	case OpEqual:
		return a == b
	case OpNotEqual:
		return a != b
	case OpLess:
		return a < b
	case OpLessEqual:
		return a <= b
	case OpGreater:
		return a > b
	case OpGreaterEqual:
		return a >= b
	}
	return false
}
