package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/tsunagi/internal/query"
)

const (
	putMaxRetries = 3
	putBaseDelay  = 20 * time.Millisecond
)

// Fetch returns documents of q.Kind matching every filter, oldest first.
func (db *DB) Fetch(ctx context.Context, q query.Query) ([]query.Document, error) {
	sql, args, err := buildFetchSQL(q)
	if err != nil {
		return nil, err
	}

	rows, err := db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: fetch documents: %w", err)
	}
	defer rows.Close()

	var docs []query.Document
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("storage: scan document: %w", err)
		}
		body, err := query.DecodeBody(raw)
		if err != nil {
			return nil, fmt.Errorf("storage: decode document %s: %w", id, err)
		}
		docs = append(docs, query.Document{ID: id, Kind: q.Kind, Body: body})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: fetch documents: %w", err)
	}
	return docs, nil
}

// Put upserts docs by (kind, id) in one transaction. Documents without an id
// are assigned a UUID.
func (db *DB) Put(ctx context.Context, docs []query.Document) error {
	if len(docs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, d := range docs {
		if d.Kind == "" {
			return fmt.Errorf("storage: document without kind")
		}
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		body, err := json.Marshal(d.Body)
		if err != nil {
			return fmt.Errorf("storage: encode document %s: %w", d.ID, err)
		}
		if d.Body == nil {
			body = []byte("{}")
		}
		batch.Queue(`
			INSERT INTO documents (kind, id, body) VALUES ($1, $2, $3::jsonb)
			ON CONFLICT (kind, id) DO UPDATE SET body = EXCLUDED.body, updated_at = now()`,
			d.Kind, d.ID, string(body))
	}

	err := WithRetry(ctx, putMaxRetries, putBaseDelay, func() error {
		return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
			return tx.SendBatch(ctx, batch).Close()
		})
	})
	if err != nil {
		return fmt.Errorf("storage: put documents: %w", err)
	}
	db.logger.Debug("documents stored", "count", len(docs))
	return nil
}

// buildFetchSQL translates q into a parameterized SELECT.
func buildFetchSQL(q query.Query) (string, []any, error) {
	var b strings.Builder
	args := []any{q.Kind}
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	b.WriteString("SELECT id, body FROM documents WHERE kind = $1")
	for _, f := range q.Filters {
		pred, err := predicate(f, arg)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(" AND ")
		b.WriteString(pred)
	}
	b.WriteString(" ORDER BY seq")
	if q.Limit > 0 {
		b.WriteString(" LIMIT " + arg(q.Limit))
	}
	return b.String(), args, nil
}

func predicate(f query.Filter, arg func(any) string) (string, error) {
	op := string(f.Op)
	if f.Op == query.OpNotEqual {
		op = "<>"
	}

	if f.IsKey() {
		return fmt.Sprintf(`id COLLATE "C" %s %s`, op, arg(fmt.Sprint(f.Value))), nil
	}

	field := fmt.Sprintf("(body #> %s::text[])", arg(f.Path()))
	if f.Type == query.TypeNull {
		if f.Op == query.OpEqual {
			return fmt.Sprintf("(%[1]s IS NULL OR %[1]s = 'null'::jsonb)", field), nil
		}
		return fmt.Sprintf("(%[1]s IS NOT NULL AND %[1]s <> 'null'::jsonb)", field), nil
	}

	lit, err := json.Marshal(f.Value)
	if err != nil {
		return "", fmt.Errorf("storage: filter %s: %w", f, err)
	}
	value := arg(string(lit)) + "::jsonb"

	switch {
	case f.Op == query.OpEqual:
		return fmt.Sprintf("%s = %s", field, value), nil
	case f.Op == query.OpNotEqual:
		return fmt.Sprintf("(%[1]s IS NOT NULL AND %[1]s <> %[2]s)", field, value), nil
	}
	return fmt.Sprintf("(jsonb_typeof(%s) = '%s' AND %s %s %s)", field, jsonType(f.Value), field, op, value), nil
}

func jsonType(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	}
	return "number"
}
