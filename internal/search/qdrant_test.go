package search

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/tsunagi/internal/query"
)

func TestParseQdrantURL(t *testing.T) {
	tests := []struct {
		name    string
		rawURL  string
		host    string
		port    int
		tls     bool
		wantErr bool
	}{
		{
			name:   "https cloud URL with REST port",
			rawURL: "https://xyz.cloud.qdrant.io:6333",
			host:   "xyz.cloud.qdrant.io",
			port:   6334, // REST 6333 → gRPC 6334
			tls:    true,
		},
		{
			name:   "https cloud URL with gRPC port",
			rawURL: "https://xyz.cloud.qdrant.io:6334",
			host:   "xyz.cloud.qdrant.io",
			port:   6334,
			tls:    true,
		},
		{
			name:   "http local URL",
			rawURL: "http://localhost:6333",
			host:   "localhost",
			port:   6334,
			tls:    false,
		},
		{
			name:   "http no port defaults to 6334",
			rawURL: "http://qdrant.internal",
			host:   "qdrant.internal",
			port:   6334,
			tls:    false,
		},
		{
			name:   "custom port preserved",
			rawURL: "https://qdrant.example.com:9334",
			host:   "qdrant.example.com",
			port:   9334,
			tls:    true,
		},
		{
			name:    "empty URL",
			rawURL:  "",
			wantErr: true,
		},
		{
			name:    "no scheme no host",
			rawURL:  "not-a-url",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port, tls, err := parseQdrantURL(tt.rawURL)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.host, host)
			assert.Equal(t, tt.port, port)
			assert.Equal(t, tt.tls, tls)
		})
	}
}

func mustParse(t *testing.T, expr string) []query.Filter {
	t.Helper()
	filters, err := query.ParseFilter(expr)
	require.NoError(t, err)
	return filters
}

func TestBuildFilterKindAlwaysFirst(t *testing.T) {
	f, err := buildFilter(query.Query{Kind: "user"})
	require.NoError(t, err)
	require.Len(t, f.GetMust(), 1)
	assert.Equal(t, FieldKind, f.GetMust()[0].GetField().GetKey())
	assert.Equal(t, "user", f.GetMust()[0].GetField().GetMatch().GetKeyword())
	assert.Empty(t, f.GetMustNot())
}

func TestBuildFilterConditions(t *testing.T) {
	f, err := buildFilter(query.Query{Kind: "user", Filters: mustParse(t,
		"name,=,ana,string;age,>=,18,integer;vip,=,true,boolean;score,<,0.5,double;__key__,!=,u9,key")})
	require.NoError(t, err)

	must := f.GetMust()
	require.Len(t, must, 5)

	assert.Equal(t, "body.name", must[1].GetField().GetKey())
	assert.Equal(t, "ana", must[1].GetField().GetMatch().GetKeyword())

	assert.Equal(t, "body.age", must[2].GetField().GetKey())
	assert.Equal(t, 18.0, must[2].GetField().GetRange().GetGte())
	assert.Nil(t, must[2].GetField().GetRange().Lte)

	assert.True(t, must[3].GetField().GetMatch().GetBoolean())

	assert.Equal(t, 0.5, must[4].GetField().GetRange().GetLt())

	require.Len(t, f.GetMustNot(), 1)
	assert.Equal(t, FieldKey, f.GetMustNot()[0].GetField().GetKey())
	assert.Equal(t, "u9", f.GetMustNot()[0].GetField().GetMatch().GetKeyword())
}

func TestBuildFilterNumericEquality(t *testing.T) {
	f, err := buildFilter(query.Query{Kind: "k", Filters: mustParse(t, "n,=,3,integer")})
	require.NoError(t, err)
	r := f.GetMust()[1].GetField().GetRange()
	assert.Equal(t, 3.0, r.GetGte())
	assert.Equal(t, 3.0, r.GetLte())
}

func TestBuildFilterNotEqualRequiresPresence(t *testing.T) {
	f, err := buildFilter(query.Query{Kind: "k", Filters: mustParse(t, "name,!=,ana,string")})
	require.NoError(t, err)

	nested := f.GetMust()[1].GetFilter()
	require.NotNil(t, nested)
	require.Len(t, nested.GetMustNot(), 2)
	assert.Equal(t, "body.name", nested.GetMustNot()[0].GetIsEmpty().GetKey())
	assert.Equal(t, "ana", nested.GetMustNot()[1].GetField().GetMatch().GetKeyword())
}

func TestBuildFilterNull(t *testing.T) {
	f, err := buildFilter(query.Query{Kind: "k", Filters: mustParse(t, "a,=,,null;b,!=,,null")})
	require.NoError(t, err)

	should := f.GetMust()[1].GetFilter().GetShould()
	require.Len(t, should, 2)
	assert.Equal(t, "body.a", should[0].GetIsEmpty().GetKey())
	assert.Equal(t, "body.a", should[1].GetIsNull().GetKey())

	require.Len(t, f.GetMustNot(), 2)
	assert.Equal(t, "body.b", f.GetMustNot()[0].GetIsEmpty().GetKey())
	assert.Equal(t, "body.b", f.GetMustNot()[1].GetIsNull().GetKey())
}

func TestBuildFilterUnsupported(t *testing.T) {
	for _, expr := range []string{"name,<,m,string", "vip,>,false,boolean", "__key__,>,a,key"} {
		_, err := buildFilter(query.Query{Kind: "k", Filters: mustParse(t, expr)})
		assert.ErrorIs(t, err, query.ErrUnsupportedFilter, expr)
	}
}

func TestToNative(t *testing.T) {
	payload := qdrant.NewValueMap(map[string]any{
		"s": "text",
		"i": 3,
		"d": 1.5,
		"b": true,
		"n": nil,
		"l": []any{"x", 2},
		"m": map[string]any{"k": "v"},
	})

	got := make(map[string]any, len(payload))
	for k, v := range payload {
		got[k] = toNative(v)
	}
	assert.Equal(t, map[string]any{
		"s": "text",
		"i": int64(3),
		"d": 1.5,
		"b": true,
		"n": nil,
		"l": []any{"x", int64(2)},
		"m": map[string]any{"k": "v"},
	}, got)
}

func TestPointID(t *testing.T) {
	assert.Equal(t, "42", pointID(qdrant.NewIDNum(42)))
	assert.Equal(t, "8f14e45f-ceea-467f-a0e6-8b1f4e6d1a2b", pointID(qdrant.NewID("8f14e45f-ceea-467f-a0e6-8b1f4e6d1a2b")))
}
