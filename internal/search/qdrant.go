// Package search serves documents stored as Qdrant point payloads.
//
// Each point carries a payload of the form
//
//	{"kind": "<kind>", "key": "<document id>", "body": {...}}
//
// and filters are translated to Qdrant payload conditions on body fields.
// The collection and its vectors are managed by whatever writes the points.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"golang.org/x/sync/singleflight"

	"github.com/ashita-ai/tsunagi/internal/query"
)

// Payload field names.
const (
	FieldKind = "kind"
	FieldKey  = "key"
	FieldBody = "body"
)

// QdrantConfig holds configuration for connecting to Qdrant.
type QdrantConfig struct {
	URL        string // e.g. "https://xyz.cloud.qdrant.io:6333" or "http://localhost:6333"
	APIKey     string
	Collection string
}

// QdrantStore implements query.Store over a Qdrant collection.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	logger     *slog.Logger

	healthGroup singleflight.Group
	healthErr   atomic.Value // stores *error (pointer-to-error, never nil pointer; inner error may be nil)
	healthAt    atomic.Int64 // unix nanos of last check
}

// parseQdrantURL extracts host, port, and TLS flag from a Qdrant URL.
// Accepts forms like "https://host:6333", "http://host:6333", or "host:6334".
func parseQdrantURL(rawURL string) (host string, port int, useTLS bool, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("search: invalid qdrant URL: %q", rawURL)
	}

	useTLS = u.Scheme == "https"
	host = u.Hostname()

	port = 6334
	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, false, fmt.Errorf("search: invalid port in qdrant URL: %q", portStr)
		}
		// The REST port maps to the gRPC port.
		if p != 6333 {
			port = p
		}
	}

	return host, port, useTLS, nil
}

// NewQdrantStore connects to the Qdrant server via gRPC.
func NewQdrantStore(cfg QdrantConfig, logger *slog.Logger) (*QdrantStore, error) {
	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("search: connect to qdrant at %s:%d: %w", host, port, err)
	}

	return &QdrantStore{
		client:     client,
		collection: cfg.Collection,
		logger:     logger,
	}, nil
}

// EnsureIndexes checks that the collection exists and creates keyword
// indexes on the kind and key payload fields. CreateFieldIndex is idempotent.
func (q *QdrantStore) EnsureIndexes(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("search: check collection exists: %w", err)
	}
	if !exists {
		return fmt.Errorf("search: collection %q does not exist", q.collection)
	}

	keywordType := qdrant.FieldType_FieldTypeKeyword
	for _, field := range []string{FieldKind, FieldKey} {
		if _, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.collection,
			FieldName:      field,
			FieldType:      &keywordType,
		}); err != nil {
			return fmt.Errorf("search: ensure index on %q: %w", field, err)
		}
	}
	q.logger.Info("qdrant: payload indexes ensured", "collection", q.collection)
	return nil
}

// Fetch scrolls the collection for points of q.Kind matching every filter.
// Points come back in point id order.
func (q *QdrantStore) Fetch(ctx context.Context, qry query.Query) ([]query.Document, error) {
	filter, err := buildFilter(qry)
	if err != nil {
		return nil, err
	}

	req := &qdrant.ScrollPoints{
		CollectionName: q.collection,
		Filter:         filter,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if qry.Limit > 0 {
		req.Limit = qdrant.PtrOf(uint32(qry.Limit)) //nolint:gosec // limit is bounded by the task config
	}

	points, err := q.client.Scroll(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search: qdrant scroll: %w", err)
	}

	docs := make([]query.Document, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		id := payload[FieldKey].GetStringValue()
		if id == "" {
			id = pointID(p.GetId())
		}
		body, _ := toNative(payload[FieldBody]).(map[string]any)
		if body == nil {
			body = map[string]any{}
		}
		docs = append(docs, query.Document{ID: id, Kind: qry.Kind, Body: body})
	}
	return docs, nil
}

func pointID(id *qdrant.PointId) string {
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

// buildFilter translates a query into a Qdrant payload filter. Ordering on
// strings, booleans or keys has no Qdrant equivalent and is rejected.
func buildFilter(qry query.Query) (*qdrant.Filter, error) {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(FieldKind, qry.Kind)},
	}

	for _, f := range qry.Filters {
		if f.IsKey() {
			switch f.Op {
			case query.OpEqual:
				filter.Must = append(filter.Must, qdrant.NewMatch(FieldKey, fmt.Sprint(f.Value)))
			case query.OpNotEqual:
				filter.MustNot = append(filter.MustNot, qdrant.NewMatch(FieldKey, fmt.Sprint(f.Value)))
			default:
				return nil, fmt.Errorf("search: %w: ordering on %s", query.ErrUnsupportedFilter, query.KeyField)
			}
			continue
		}

		field := FieldBody + "." + f.Field
		if f.Type == query.TypeNull {
			if f.Op == query.OpEqual {
				filter.Must = append(filter.Must, qdrant.NewFilterAsCondition(&qdrant.Filter{
					Should: []*qdrant.Condition{qdrant.NewIsEmpty(field), qdrant.NewIsNull(field)},
				}))
			} else {
				filter.MustNot = append(filter.MustNot, qdrant.NewIsEmpty(field), qdrant.NewIsNull(field))
			}
			continue
		}

		eq, err := equality(field, f)
		if err != nil {
			return nil, err
		}
		switch f.Op {
		case query.OpEqual:
			filter.Must = append(filter.Must, eq)
		case query.OpNotEqual:
			// Present and different.
			filter.Must = append(filter.Must, qdrant.NewFilterAsCondition(&qdrant.Filter{
				MustNot: []*qdrant.Condition{qdrant.NewIsEmpty(field), eq},
			}))
		default:
			n, ok := numeric(f.Value)
			if !ok {
				return nil, fmt.Errorf("search: %w: ordering on %s values", query.ErrUnsupportedFilter, f.Type)
			}
			filter.Must = append(filter.Must, qdrant.NewRange(field, rangeFor(f.Op, n)))
		}
	}
	return filter, nil
}

func equality(field string, f query.Filter) (*qdrant.Condition, error) {
	switch v := f.Value.(type) {
	case string:
		return qdrant.NewMatch(field, v), nil
	case bool:
		return qdrant.NewMatchBool(field, v), nil
	}
	n, ok := numeric(f.Value)
	if !ok {
		return nil, fmt.Errorf("search: %w: value %v", query.ErrUnsupportedFilter, f.Value)
	}
	return qdrant.NewRange(field, &qdrant.Range{Gte: qdrant.PtrOf(n), Lte: qdrant.PtrOf(n)}), nil
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func rangeFor(op query.Operator, n float64) *qdrant.Range {
	switch op {
	case query.OpLess:
		return &qdrant.Range{Lt: qdrant.PtrOf(n)}
	case query.OpLessEqual:
		return &qdrant.Range{Lte: qdrant.PtrOf(n)}
	case query.OpGreater:
		return &qdrant.Range{Gt: qdrant.PtrOf(n)}
	default:
		return &qdrant.Range{Gte: qdrant.PtrOf(n)}
	}
}

// toNative converts a Qdrant payload value to plain Go values. Integers stay
// int64.
func toNative(v *qdrant.Value) any {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	case *qdrant.Value_StructValue:
		out := make(map[string]any, len(k.StructValue.GetFields()))
		for name, fv := range k.StructValue.GetFields() {
			out[name] = toNative(fv)
		}
		return out
	case *qdrant.Value_ListValue:
		out := make([]any, 0, len(k.ListValue.GetValues()))
		for _, lv := range k.ListValue.GetValues() {
			out = append(out, toNative(lv))
		}
		return out
	}
	return nil
}

// Ping reports whether Qdrant is reachable.
func (q *QdrantStore) Ping(ctx context.Context) error {
	return q.Healthy(ctx)
}

// Healthy returns nil if Qdrant is reachable. Results are cached for 5 seconds.
// Concurrent calls after cache expiry are deduplicated via singleflight so only
// one gRPC call is made; all waiters share its result.
func (q *QdrantStore) Healthy(ctx context.Context) error {
	if time.Since(time.Unix(0, q.healthAt.Load())) < 5*time.Second {
		return q.loadHealthErr()
	}

	// singleflight reuses the first caller's context, so the check runs on
	// its own.
	result, _, _ := q.healthGroup.Do("health", func() (any, error) {
		checkCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		_, err := q.client.HealthCheck(checkCtx)
		if err != nil {
			q.storeHealthErr(fmt.Errorf("search: qdrant unhealthy: %w", err))
		} else {
			q.storeHealthErr(nil)
		}
		q.healthAt.Store(time.Now().UnixNano())
		return q.loadHealthErr(), nil
	})
	if result == nil {
		return nil
	}
	return result.(error)
}

// storeHealthErr stores an error (or nil) in the atomic.Value.
// atomic.Value cannot store nil directly, so we wrap it in a pointer.
func (q *QdrantStore) storeHealthErr(err error) {
	q.healthErr.Store(&err)
}

func (q *QdrantStore) loadHealthErr() error {
	v := q.healthErr.Load()
	if v == nil {
		return nil
	}
	return *v.(*error)
}

// Close shuts down the Qdrant gRPC connection.
func (q *QdrantStore) Close() error {
	return q.client.Close()
}
