package litestore

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/tsunagi/internal/query"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "docs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Put(context.Background(), []query.Document{
		{ID: "a", Kind: "people", Body: map[string]any{"name": "ana", "age": 30, "vip": true, "address": map[string]any{"city": "Lima"}}},
		{ID: "b", Kind: "people", Body: map[string]any{"name": "bo", "age": 17.5, "vip": false, "note": nil}},
		{ID: "c", Kind: "people", Body: map[string]any{"name": "cy", "age": "unknown"}},
		{ID: "z", Kind: "other", Body: map[string]any{"name": "ana"}},
	}))
	return s
}

func fetchIDs(t *testing.T, s *Store, expr string, limit int) []string {
	t.Helper()
	filters, err := query.ParseFilter(expr)
	require.NoError(t, err)
	docs, err := s.Fetch(context.Background(), query.Query{Kind: "people", Filters: filters, Limit: limit})
	require.NoError(t, err)
	out := []string{}
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}

func TestFetchFilters(t *testing.T) {
	s := openTestStore(t)

	tests := []struct {
		name string
		expr string
		want []string
	}{
		{"no filter", "", []string{"a", "b", "c"}},
		{"string equal", "name,=,ana,string", []string{"a"}},
		{"string order", "name,>=,bo,string", []string{"b", "c"}},
		{"integer range skips strings", "age,>,10,integer", []string{"a", "b"}},
		{"double", "age,<,20.0,double", []string{"b"}},
		{"not equal includes type mismatch", "age,!=,30,integer", []string{"b", "c"}},
		{"boolean true", "vip,=,true,boolean", []string{"a"}},
		{"boolean false", "vip,=,false,boolean", []string{"b"}},
		{"nested", "address.city,=,Lima,string", []string{"a"}},
		{"null", "note,=,,null", []string{"a", "b", "c"}},
		{"not null", "vip,!=,,null", []string{"a", "b"}},
		{"key", "__key__,<=,b,key", []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fetchIDs(t, s, tt.expr, 0))
		})
	}
}

func TestFetchLimit(t *testing.T) {
	s := openTestStore(t)
	assert.Equal(t, []string{"a"}, fetchIDs(t, s, "", 1))
}

func TestFetchReturnsBody(t *testing.T) {
	s := openTestStore(t)
	docs, err := s.Fetch(context.Background(), query.Query{Kind: "other"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, query.Document{ID: "z", Kind: "other", Body: map[string]any{"name": "ana"}}, docs[0])
}

func TestFetchKeepsLargeIntegers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, []query.Document{{ID: "big", Kind: "rows", Body: map[string]any{"id": int64(9007199254740993)}}}))
	docs, err := s.Fetch(ctx, query.Query{Kind: "rows"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, json.Number("9007199254740993"), docs[0].Body["id"])
}

func TestPutUpsertKeepsOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, []query.Document{{ID: "a", Kind: "people", Body: map[string]any{"name": "ann"}}}))
	assert.Equal(t, []string{"a"}, fetchIDs(t, s, "name,=,ann,string", 0))
	assert.Equal(t, []string{"a", "b", "c"}, fetchIDs(t, s, "", 0))
}

func TestPutRejectsMissingKind(t *testing.T) {
	s := openTestStore(t)
	assert.Error(t, s.Put(context.Background(), []query.Document{{ID: "x"}}))
}

func TestJSONPathRejectsQuotes(t *testing.T) {
	_, err := jsonPath([]string{`we"ird`})
	assert.ErrorIs(t, err, query.ErrUnsupportedFilter)

	p, err := jsonPath([]string{"address", "city"})
	require.NoError(t, err)
	assert.Equal(t, `$."address"."city"`, p)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}
