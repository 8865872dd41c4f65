package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/tsunagi/internal/query"
)

func TestBuildFetchSQLNoFilters(t *testing.T) {
	sql, args, err := buildFetchSQL(query.Query{Kind: "user", Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, body FROM documents WHERE kind = $1 ORDER BY seq LIMIT $2", sql)
	assert.Equal(t, []any{"user", 5}, args)
}

func TestBuildFetchSQLPredicates(t *testing.T) {
	tests := []struct {
		name   string
		filter query.Filter
		pred   string
		args   []any
	}{
		{
			name:   "equal string",
			filter: query.Filter{Field: "name", Op: query.OpEqual, Value: "ana", Type: query.TypeString},
			pred:   "(body #> $2::text[]) = $3::jsonb",
			args:   []any{[]string{"name"}, `"ana"`},
		},
		{
			name:   "not equal integer",
			filter: query.Filter{Field: "age", Op: query.OpNotEqual, Value: int64(3), Type: query.TypeInteger},
			pred:   "((body #> $2::text[]) IS NOT NULL AND (body #> $2::text[]) <> $3::jsonb)",
			args:   []any{[]string{"age"}, "3"},
		},
		{
			name:   "ordered nested double",
			filter: query.Filter{Field: "stats.score", Op: query.OpGreaterEqual, Value: 0.5, Type: query.TypeDouble},
			pred:   "(jsonb_typeof((body #> $2::text[])) = 'number' AND (body #> $2::text[]) >= $3::jsonb)",
			args:   []any{[]string{"stats", "score"}, "0.5"},
		},
		{
			name:   "ordered string",
			filter: query.Filter{Field: "name", Op: query.OpLess, Value: "m", Type: query.TypeString},
			pred:   "(jsonb_typeof((body #> $2::text[])) = 'string' AND (body #> $2::text[]) < $3::jsonb)",
			args:   []any{[]string{"name"}, `"m"`},
		},
		{
			name:   "is null",
			filter: query.Filter{Field: "deleted", Op: query.OpEqual, Type: query.TypeNull},
			pred:   "((body #> $2::text[]) IS NULL OR (body #> $2::text[]) = 'null'::jsonb)",
			args:   []any{[]string{"deleted"}},
		},
		{
			name:   "key",
			filter: query.Filter{Field: query.KeyField, Op: query.OpNotEqual, Value: "u1", Type: query.TypeKey},
			pred:   `id COLLATE "C" <> $2`,
			args:   []any{"u1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := buildFetchSQL(query.Query{Kind: "k", Filters: []query.Filter{tt.filter}})
			require.NoError(t, err)
			assert.Equal(t, "SELECT id, body FROM documents WHERE kind = $1 AND "+tt.pred+" ORDER BY seq", sql)
			assert.Equal(t, append([]any{"k"}, tt.args...), args)
		})
	}
}
