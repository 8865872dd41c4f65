package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/tsunagi/internal/event"
	"github.com/ashita-ai/tsunagi/internal/param"
)

// Parameter keys read by the task.
const (
	KeyKind   = "query_kind"
	KeyResult = "result_key"
	KeyFilter = "query_filter"
	KeyLimit  = "query_limit"
)

var tracer = otel.Tracer("tsunagi/query")

// TaskConfig bounds the task's fetches.
type TaskConfig struct {
	DefaultLimit int
	MaxLimit     int
	Timeout      time.Duration
}

// Task reads a kind, an optional filter and an optional limit from the
// invocation parameters and writes the matching documents to result_key.
type Task struct {
	store  Store
	cfg    TaskConfig
	logger *slog.Logger
}

// NewTask returns a Task fetching from store.
func NewTask(store Store, cfg TaskConfig, logger *slog.Logger) *Task {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 100
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = cfg.DefaultLimit
	}
	return &Task{store: store, cfg: cfg, logger: logger}
}

// Run implements event.Task.
func (t *Task) Run(ctx context.Context, p event.Params) error {
	kind, err := requiredString(p, KeyKind)
	if err != nil {
		return err
	}
	resultKey, err := requiredString(p, KeyResult)
	if err != nil {
		return err
	}
	filters, err := t.filters(p)
	if err != nil {
		return err
	}
	limit, err := t.limit(p)
	if err != nil {
		return err
	}

	q := Query{Kind: kind, Filters: filters, Limit: limit}
	docs, err := t.fetch(ctx, q)
	if err != nil {
		return err
	}
	p.Log(fmt.Sprintf("fetched %d %s documents (limit %d, %d filters)", len(docs), kind, limit, len(filters)))

	if len(docs) == 0 {
		p.Log("no documents matched")
		return p.Set(resultKey, param.Plain([]any{}))
	}
	return p.Set(resultKey, Results(docs))
}

func (t *Task) fetch(ctx context.Context, q Query) ([]Document, error) {
	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}
	ctx, span := tracer.Start(ctx, "query.fetch", trace.WithAttributes(
		attribute.String("tsunagi.query.kind", q.Kind),
		attribute.Int("tsunagi.query.filters", len(q.Filters)),
		attribute.Int("tsunagi.query.limit", q.Limit),
	))
	defer span.End()

	start := time.Now()
	docs, err := t.store.Fetch(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query: fetch %s: %w", q.Kind, err)
	}
	span.SetAttributes(attribute.Int("tsunagi.query.results", len(docs)))
	t.logger.Debug("query fetched",
		"kind", q.Kind, "results", len(docs), "duration_ms", time.Since(start).Milliseconds())
	return docs, nil
}

func (t *Task) filters(p event.Params) ([]Filter, error) {
	v, err := p.Get(KeyFilter)
	if errors.Is(err, param.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	expr, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("query: %s must be a string, got %T", KeyFilter, v)
	}
	return ParseFilter(expr)
}

func (t *Task) limit(p event.Params) (int, error) {
	v, err := p.Get(KeyLimit)
	if errors.Is(err, param.ErrNotFound) {
		return t.cfg.DefaultLimit, nil
	}
	if err != nil {
		return 0, err
	}
	var n int64
	switch x := v.(type) {
	case int64:
		n = x
	case json.Number:
		n, err = x.Int64()
		if err != nil {
			return 0, fmt.Errorf("query: %s must be an integer, got %s", KeyLimit, x)
		}
	case float64:
		n = int64(x)
		if float64(n) != x {
			return 0, fmt.Errorf("query: %s must be an integer, got %v", KeyLimit, x)
		}
	case string:
		n, err = strconv.ParseInt(x, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("query: %s must be an integer, got %q", KeyLimit, x)
		}
	default:
		return 0, fmt.Errorf("query: %s must be an integer, got %T", KeyLimit, v)
	}
	if n <= 0 {
		return 0, fmt.Errorf("query: %s must be positive, got %d", KeyLimit, n)
	}
	if n > int64(t.cfg.MaxLimit) {
		return 0, fmt.Errorf("query: %s %d exceeds maximum %d", KeyLimit, n, t.cfg.MaxLimit)
	}
	return int(n), nil
}

func requiredString(p event.Params, key string) (string, error) {
	v, err := p.Get(key)
	if err != nil {
		return "", fmt.Errorf("query: %s is required: %w", key, err)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("query: %s must be a non-empty string", key)
	}
	return s, nil
}

// Results flattens documents into the list written to the event scope: each
// entry is the document body plus KeyField holding its id.
func Results(docs []Document) []any {
	out := make([]any, len(docs))
	for i, d := range docs {
		m := make(map[string]any, len(d.Body)+1)
		for k, v := range d.Body {
			m[k] = v
		}
		m[KeyField] = d.ID
		out[i] = m
	}
	return out
}
