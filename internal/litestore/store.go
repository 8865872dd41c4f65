// Package litestore provides an embedded SQLite document store for
// single-node deployments and local development.
package litestore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ashita-ai/tsunagi/internal/query"
)

//go:embed schema.sql
var schema string

// Store persists documents in SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and applies
// the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("litestore: path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("litestore: open: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("litestore: ping: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("litestore: apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// Put upserts docs by (kind, id) in one transaction.
func (s *Store) Put(ctx context.Context, docs []query.Document) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("litestore: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().UnixMilli()
	for _, d := range docs {
		if d.Kind == "" {
			return fmt.Errorf("litestore: document without kind")
		}
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		body := []byte("{}")
		if d.Body != nil {
			if body, err = json.Marshal(d.Body); err != nil {
				return fmt.Errorf("litestore: encode document %s: %w", d.ID, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents (kind, id, body, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (kind, id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
			d.Kind, d.ID, string(body), now, now,
		); err != nil {
			return fmt.Errorf("litestore: put document %s: %w", d.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("litestore: commit: %w", err)
	}
	return nil
}

// Fetch returns documents of q.Kind matching every filter, oldest first.
func (s *Store) Fetch(ctx context.Context, q query.Query) ([]query.Document, error) {
	stmt, args, err := buildFetchSQL(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("litestore: fetch: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []query.Document
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("litestore: scan: %w", err)
		}
		body, err := query.DecodeBody([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("litestore: decode document %s: %w", id, err)
		}
		docs = append(docs, query.Document{ID: id, Kind: q.Kind, Body: body})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("litestore: fetch: %w", err)
	}
	return docs, nil
}

func buildFetchSQL(q query.Query) (string, []any, error) {
	var b strings.Builder
	args := []any{q.Kind}
	b.WriteString("SELECT id, body FROM documents WHERE kind = ?")
	for _, f := range q.Filters {
		pred, predArgs, err := predicate(f)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(" AND ")
		b.WriteString(pred)
		args = append(args, predArgs...)
	}
	b.WriteString(" ORDER BY seq")
	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}
	return b.String(), args, nil
}

func predicate(f query.Filter) (string, []any, error) {
	op := string(f.Op)
	if f.Op == query.OpNotEqual {
		op = "<>"
	}
	if f.IsKey() {
		return "id " + op + " ?", []any{fmt.Sprint(f.Value)}, nil
	}

	path, err := jsonPath(f.Path())
	if err != nil {
		return "", nil, fmt.Errorf("litestore: filter %s: %w", f, err)
	}
	if f.Type == query.TypeNull {
		if f.Op == query.OpEqual {
			return "(json_type(body, ?) IS NULL OR json_type(body, ?) = 'null')", []any{path, path}, nil
		}
		return "json_type(body, ?) <> 'null'", []any{path}, nil
	}

	types, value := sqlValue(f.Value)
	switch f.Op {
	case query.OpEqual:
		return "(json_type(body, ?) IN " + types + " AND json_extract(body, ?) = ?)",
			[]any{path, path, value}, nil
	case query.OpNotEqual:
		return "(json_type(body, ?) IS NOT NULL AND NOT (json_type(body, ?) IN " + types + " AND json_extract(body, ?) = ?))",
			[]any{path, path, path, value}, nil
	}
	return "(json_type(body, ?) IN " + types + " AND json_extract(body, ?) " + op + " ?)",
		[]any{path, path, value}, nil
}

// sqlValue returns the json_type set a filter value may match and the value
// as SQLite sees it through json_extract.
func sqlValue(v any) (string, any) {
	switch x := v.(type) {
	case string:
		return "('text')", x
	case bool:
		if x {
			return "('true', 'false')", 1
		}
		return "('true', 'false')", 0
	}
	return "('integer', 'real')", v
}

func jsonPath(segments []string) (string, error) {
	var b strings.Builder
	b.WriteString("$")
	for _, seg := range segments {
		if seg == "" || strings.ContainsAny(seg, `"`) {
			return "", fmt.Errorf("%w: field segment %q", query.ErrUnsupportedFilter, seg)
		}
		b.WriteString(`."`)
		b.WriteString(seg)
		b.WriteString(`"`)
	}
	return b.String(), nil
}
