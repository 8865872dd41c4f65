package param

import (
	"fmt"
	"strings"
)

// IndirectionMarker delimits a task-scope value that names an event-scope key.
const IndirectionMarker = "$"

// Scopes composes the caller-supplied task scope with the mutable event scope.
// Reads prefer the task scope; writes only ever reach the event scope.
type Scopes struct {
	Task  *List
	Event *List
}

// NewScopes returns Scopes over task and event. Nil lists are replaced with
// empty ones.
func NewScopes(task, event *List) *Scopes {
	if task == nil {
		task = NewList()
	}
	if event == nil {
		event = NewList()
	}
	return &Scopes{Task: task, Event: event}
}

// Indirection reports whether v is a $name$ reference and returns name.
func Indirection(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || len(s) <= 2 {
		return "", false
	}
	if !strings.HasPrefix(s, IndirectionMarker) || !strings.HasSuffix(s, IndirectionMarker) {
		return "", false
	}
	return s[1 : len(s)-1], true
}

// Resolve returns the tagged value key resolves to.
//
// A key absent from the task scope is looked up in the event scope directly.
// A task value that decodes to "$name$" redirects to name in the event scope,
// with no further fallback. Any other task value wins as-is.
func (s *Scopes) Resolve(key string) (Value, error) {
	p, ok := s.Task.Find(key)
	if !ok {
		return s.event(key, key)
	}
	decoded, err := Decode(p.Value)
	if err != nil {
		return Value{}, fmt.Errorf("param: %q: %w", key, err)
	}
	if target, ok := Indirection(decoded); ok {
		return s.event(key, target)
	}
	return p.Value, nil
}

func (s *Scopes) event(key, target string) (Value, error) {
	p, ok := s.Event.Find(target)
	if !ok {
		if key != target {
			return Value{}, fmt.Errorf("param: %q via %q: %w", key, target, ErrNotFound)
		}
		return Value{}, fmt.Errorf("param: %q: %w", key, ErrNotFound)
	}
	return p.Value, nil
}

// Get resolves key and decodes it to a native value.
func (s *Scopes) Get(key string) (any, error) {
	v, err := s.Resolve(key)
	if err != nil {
		return nil, err
	}
	decoded, err := Decode(v)
	if err != nil {
		return nil, fmt.Errorf("param: %q: %w", key, err)
	}
	return decoded, nil
}

// Set encodes v and upserts it into the event scope.
func (s *Scopes) Set(key string, v any) error {
	tv, err := Encode(v)
	if err != nil {
		return fmt.Errorf("param: set %q: %w", key, err)
	}
	s.Event.Upsert(key, tv)
	return nil
}
