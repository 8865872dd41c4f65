package param

import (
	"encoding/json"
	"fmt"
)

// Param is one key/value entry of a List.
type Param struct {
	Key   string `json:"key"`
	Value Value  `json:"value"`
}

// List is an ordered parameter list. Keys need not be unique; lookups return
// the first entry with a matching key. Insertion order is preserved.
//
// A List is not safe for concurrent use. Each request owns its lists.
type List struct {
	params []Param
	index  map[string]int // key -> position of its first entry
}

// NewList returns a List holding params in order.
func NewList(params ...Param) *List {
	l := &List{}
	l.reset(params)
	return l
}

func (l *List) reset(params []Param) {
	l.params = make([]Param, 0, len(params))
	l.index = make(map[string]int, len(params))
	for _, p := range params {
		l.append(p)
	}
}

func (l *List) append(p Param) {
	if l.index == nil {
		l.index = make(map[string]int)
	}
	if _, dup := l.index[p.Key]; !dup {
		l.index[p.Key] = len(l.params)
	}
	l.params = append(l.params, p)
}

// Len returns the number of entries, duplicates included.
func (l *List) Len() int { return len(l.params) }

// IndexOf returns the position of the first entry with key, or -1.
func (l *List) IndexOf(key string) int {
	if i, ok := l.index[key]; ok {
		return i
	}
	return -1
}

// Find returns the first entry with key.
func (l *List) Find(key string) (Param, bool) {
	i := l.IndexOf(key)
	if i < 0 {
		return Param{}, false
	}
	return l.params[i], true
}

// Get decodes the first entry with key.
func (l *List) Get(key string) (any, error) {
	p, ok := l.Find(key)
	if !ok {
		return nil, fmt.Errorf("param: %q: %w", key, ErrNotFound)
	}
	v, err := Decode(p.Value)
	if err != nil {
		return nil, fmt.Errorf("param: %q: %w", key, err)
	}
	return v, nil
}

// Upsert replaces the value of the first entry with key in place, or appends
// a new entry when the key is absent.
func (l *List) Upsert(key string, v Value) {
	if i := l.IndexOf(key); i >= 0 {
		l.params[i].Value = v
		return
	}
	l.append(Param{Key: key, Value: v})
}

// Params returns a copy of the entries in order.
func (l *List) Params() []Param {
	out := make([]Param, len(l.params))
	copy(out, l.params)
	return out
}

type wireList struct {
	Parameters []Param `json:"parameters,omitempty"`
}

// MarshalJSON emits {"parameters": [...]}, or {} for an empty list.
func (l *List) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(wireList{Parameters: l.params})
}

// UnmarshalJSON reads {"parameters": [...]}. A missing or null parameters
// field yields an empty list.
func (l *List) UnmarshalJSON(data []byte) error {
	var w wireList
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("param: parameter list: %w", err)
	}
	l.reset(w.Parameters)
	return nil
}
