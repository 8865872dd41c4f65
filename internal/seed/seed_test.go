package seed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/tsunagi/internal/query"
)

const sample = `
documents:
  - kind: user
    id: u1
    body:
      name: ana
      age: 31
      address:
        city: Lima
  - kind: user
    body:
      name: bo
  - kind: order
    id: o1
`

func TestParse(t *testing.T) {
	docs, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.Len(t, docs, 3)

	assert.Equal(t, "u1", docs[0].ID)
	assert.Equal(t, "user", docs[0].Kind)
	assert.Equal(t, "ana", docs[0].Body["name"])
	assert.Equal(t, 31, docs[0].Body["age"])
	assert.Equal(t, map[string]any{"city": "Lima"}, docs[0].Body["address"])

	assert.Empty(t, docs[1].ID)
	assert.Equal(t, "order", docs[2].Kind)
	assert.NotNil(t, docs[2].Body)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("documents:\n  - id: x\n"))
	assert.True(t, errors.Is(err, ErrEmptyKind))

	_, err = Parse([]byte("documents: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed: parse")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := query.NewMemoryStore()
	n, err := Load(context.Background(), path, store, logger)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	filters, err := query.ParseFilter("address.city,=,Lima,string")
	require.NoError(t, err)
	docs, err := store.Fetch(context.Background(), query.Query{Kind: "user", Filters: filters})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "u1", docs[0].ID)
}

func TestLoadMissingFile(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"), query.NewMemoryStore(), logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed: read")
}
