// Package seed loads documents from a YAML file into a document store.
//
// A seed file lists documents in order:
//
//	documents:
//	  - kind: user
//	    id: u1
//	    body:
//	      name: ana
//	      age: 31
//
// A document without an id is assigned one by the store.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ashita-ai/tsunagi/internal/query"
)

// ErrEmptyKind is returned for a seed document without a kind.
var ErrEmptyKind = errors.New("seed: document without kind")

type file struct {
	Documents []document `yaml:"documents"`
}

type document struct {
	Kind string         `yaml:"kind"`
	ID   string         `yaml:"id"`
	Body map[string]any `yaml:"body"`
}

// Parse decodes seed YAML into documents, preserving file order.
func Parse(data []byte) ([]query.Document, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("seed: parse: %w", err)
	}
	docs := make([]query.Document, 0, len(f.Documents))
	for i, d := range f.Documents {
		if d.Kind == "" {
			return nil, fmt.Errorf("%w (entry %d)", ErrEmptyKind, i)
		}
		if d.Body == nil {
			d.Body = map[string]any{}
		}
		docs = append(docs, query.Document{ID: d.ID, Kind: d.Kind, Body: d.Body})
	}
	return docs, nil
}

// LoadFile reads and parses the seed file at path.
func LoadFile(path string) ([]query.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed: read %s: %w", path, err)
	}
	return Parse(data)
}

// Load writes the documents in the seed file at path to w and returns how
// many were written.
func Load(ctx context.Context, path string, w query.Writer, logger *slog.Logger) (int, error) {
	docs, err := LoadFile(path)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		logger.Warn("seed: file has no documents", "path", path)
		return 0, nil
	}
	if err := w.Put(ctx, docs); err != nil {
		return 0, fmt.Errorf("seed: write: %w", err)
	}
	logger.Info("seed: documents loaded", "path", path, "count", len(docs))
	return len(docs), nil
}
