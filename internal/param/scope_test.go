package param

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopesIndirection(t *testing.T) {
	s := NewScopes(
		NewList(Param{Key: "x", Value: String("$a$")}),
		NewList(Param{Key: "a", Value: Int(7)}),
	)
	got, err := s.Get("x")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got)
}

func TestScopesIndirectionThroughPlainWrapper(t *testing.T) {
	s := NewScopes(
		NewList(Param{Key: "x", Value: Plain("$a$")}),
		NewList(Param{Key: "a", Value: String("found")}),
	)
	got, err := s.Get("x")
	require.NoError(t, err)
	assert.Equal(t, "found", got)
}

func TestScopesIndirectionMissingTarget(t *testing.T) {
	s := NewScopes(
		NewList(Param{Key: "x", Value: String("$a$")}, Param{Key: "a", Value: Int(1)}),
		nil,
	)
	// The target is only ever looked up in the event scope.
	_, err := s.Get("x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScopesTaskPrecedence(t *testing.T) {
	s := NewScopes(
		NewList(Param{Key: "k", Value: Int(1)}),
		NewList(Param{Key: "k", Value: Int(2)}),
	)
	got, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestScopesEventFallback(t *testing.T) {
	s := NewScopes(nil, NewList(Param{Key: "a", Value: Int(5)}))
	got, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, int64(5), got)
}

func TestScopesEventValueIsNotIndirected(t *testing.T) {
	s := NewScopes(nil, NewList(
		Param{Key: "a", Value: String("$b$")},
		Param{Key: "b", Value: Int(1)},
	))
	got, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "$b$", got)
}

func TestScopesMissing(t *testing.T) {
	_, err := NewScopes(nil, nil).Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScopesMalformedTaskValue(t *testing.T) {
	s := NewScopes(NewList(Param{Key: "k"}), nil)
	_, err := s.Get("k")
	assert.ErrorIs(t, err, ErrMalformedParam)
}

func TestScopesSetWritesEventOnly(t *testing.T) {
	s := NewScopes(NewList(Param{Key: "k", Value: Int(1)}), nil)
	require.NoError(t, s.Set("k", "written"))

	assert.Equal(t, 1, s.Task.Len())
	p, ok := s.Task.Find("k")
	require.True(t, ok)
	assert.Equal(t, Int(1), p.Value)

	p, ok = s.Event.Find("k")
	require.True(t, ok)
	assert.Equal(t, String("written"), p.Value)

	// Task still wins on read.
	got, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestScopesDocumentKeepsLargeIntegers(t *testing.T) {
	s := NewScopes(nil, nil)
	require.NoError(t, s.Set("d", map[string]any{"id": int64(9007199254740993)}))

	got, err := s.Get("d")
	require.NoError(t, err)
	doc, ok := got.(map[string]any)
	require.True(t, ok)
	id, ok := doc["id"].(json.Number)
	require.True(t, ok, "id is %T", doc["id"])
	i, err := id.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(9007199254740993), i)

	// Writing the decoded document back is lossless too.
	require.NoError(t, s.Set("e", got))
	out, err := json.Marshal(s.Event)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"id":9007199254740993`)
}

func TestScopesSetErrors(t *testing.T) {
	s := NewScopes(nil, nil)
	assert.ErrorIs(t, s.Set("k", []any{}), ErrInvalidValue)
	assert.ErrorIs(t, s.Set("k", struct{}{}), ErrUnsupportedType)
	assert.Equal(t, 0, s.Event.Len())
}

func TestIndirection(t *testing.T) {
	tests := []struct {
		in     any
		target string
		ok     bool
	}{
		{"$a$", "a", true},
		{"$long_name$", "long_name", true},
		{"$$", "", false},
		{"$", "", false},
		{"$a", "", false},
		{"a$", "", false},
		{7, "", false},
	}
	for _, tt := range tests {
		target, ok := Indirection(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		assert.Equal(t, tt.target, target, "%v", tt.in)
	}
}
