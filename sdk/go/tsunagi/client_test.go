package tsunagi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"
)

// mockServer creates an httptest server that mimics the tsunagi API.
func mockServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for pattern, handler := range handlers {
		mux.HandleFunc(pattern, handler)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, serverURL string, opts ...Option) *Client {
	t.Helper()
	c, err := NewClient(serverURL, append([]Option{WithTimeout(5 * time.Second)}, opts...)...)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestInvokeSendsTaggedParameters(t *testing.T) {
	var got map[string]any
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/functions/query": func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Request-ID") == "" {
				t.Error("missing X-Request-ID")
			}
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Errorf("decode body: %v", err)
			}
			_, _ = io.WriteString(w, `{"eventParameters":{"parameters":[
				{"key":"adults","value":{"protoArray":{"protoValues":[
					{"@type":"type.googleapis.com/google.protobuf.Value","value":{"name":"ana","__key__":"u1"}}
				]}}},
				{"key":"CloudFunctionLogging","value":{"stringArray":{"stringValues":["fetched 1 user"]}}}
			]}}`)
		},
	})
	c := newTestClient(t, srv.URL)

	resp, err := c.Invoke(context.Background(), "query",
		[]Param{
			P("query_kind", String("user")),
			P("result_key", String("adults")),
			P("query_limit", Int(10)),
		},
		[]Param{P("flag", Bool(true))},
	)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	want := map[string]any{
		"taskParameters": map[string]any{"parameters": []any{
			map[string]any{"key": "query_kind", "value": map[string]any{"stringValue": "user"}},
			map[string]any{"key": "result_key", "value": map[string]any{"stringValue": "adults"}},
			map[string]any{"key": "query_limit", "value": map[string]any{"intValue": "10"}},
		}},
		"eventParameters": map[string]any{"parameters": []any{
			map[string]any{"key": "flag", "value": map[string]any{"booleanValue": true}},
		}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("request body = %#v\nwant %#v", got, want)
	}

	if err := resp.Err(); err != nil {
		t.Fatalf("unexpected function error: %v", err)
	}
	v, ok := resp.Get("adults")
	if !ok {
		t.Fatal("adults missing from response")
	}
	docs, err := v.AsDocuments()
	if err != nil {
		t.Fatalf("AsDocuments: %v", err)
	}
	if len(docs) != 1 || docs[0]["__key__"] != "u1" || docs[0]["name"] != "ana" {
		t.Fatalf("unexpected documents: %v", docs)
	}
	if logs := resp.Logs(); !reflect.DeepEqual(logs, []string{"fetched 1 user"}) {
		t.Fatalf("logs = %v", logs)
	}
}

func TestInvokeReportsFunctionFailureInBand(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/functions/query": func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"eventParameters":{"parameters":[
				{"key":"CloudFunctionException","value":{"stringValue":"query: query_kind must be a non-empty string"}}
			]}}`)
		},
	})
	c := newTestClient(t, srv.URL)

	resp, err := c.Invoke(context.Background(), "query", nil, nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	ferr := resp.Err()
	var fe *FunctionError
	if !errors.As(ferr, &fe) {
		t.Fatalf("expected *FunctionError, got %v", ferr)
	}
	if fe.Function != "query" || !strings.Contains(fe.Message, "query_kind") {
		t.Fatalf("unexpected function error: %+v", fe)
	}
}

func TestCredentialsAreSent(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /v1/functions": func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-API-Key") != "tsu_key" || r.Header.Get("Authorization") != "Bearer tok" {
				writeJSON(w, http.StatusUnauthorized, map[string]any{
					"error": map[string]any{"code": "UNAUTHORIZED", "message": "missing credentials"},
				})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"data": []FunctionInfo{{Name: "echo", Path: "/v1/functions/echo"}},
			})
		},
	})

	fns, err := newTestClient(t, srv.URL, WithAPIKey("tsu_key"), WithToken("tok")).Functions(context.Background())
	if err != nil {
		t.Fatalf("Functions: %v", err)
	}
	if len(fns) != 1 || fns[0].Name != "echo" {
		t.Fatalf("unexpected functions: %v", fns)
	}

	_, err = newTestClient(t, srv.URL).Functions(context.Background())
	if !IsUnauthorized(err) {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestErrorHelpers(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /v1/functions/nope": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"error": map[string]any{"code": "NOT_FOUND", "message": `function "nope" not found`},
			})
		},
		"POST /v1/functions/busy": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "slow down", http.StatusTooManyRequests)
		},
	})
	c := newTestClient(t, srv.URL)

	_, err := c.Invoke(context.Background(), "nope", nil, nil)
	if !IsNotFound(err) {
		t.Fatalf("expected 404, got %v", err)
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND code, got %v", err)
	}

	_, err = c.Invoke(context.Background(), "busy", nil, nil)
	if !IsRateLimited(err) || IsForbidden(err) {
		t.Fatalf("expected 429 only, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /health": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"data": HealthResponse{Status: "healthy", Version: "1.0", Store: "memory", Functions: []string{"echo", "query"}},
			})
		},
	})

	h, err := newTestClient(t, srv.URL).Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if h.Status != "healthy" || h.Store != "memory" || len(h.Functions) != 2 {
		t.Fatalf("unexpected health: %+v", h)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(""); err == nil {
		t.Fatal("expected error for empty baseURL")
	}
}

func TestValueRoundTrip(t *testing.T) {
	encode := func(v Value) Value {
		t.Helper()
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var out Value
		if err := json.Unmarshal(b, &out); err != nil {
			t.Fatalf("unmarshal %s: %v", b, err)
		}
		return out
	}

	if s, err := encode(String("hi")).AsString(); err != nil || s != "hi" {
		t.Fatalf("string: %q %v", s, err)
	}
	if n, err := encode(Int(math.MaxInt64)).AsInt(); err != nil || n != math.MaxInt64 {
		t.Fatalf("int: %d %v", n, err)
	}
	if f, err := encode(Double(math.Inf(-1))).AsDouble(); err != nil || !math.IsInf(f, -1) {
		t.Fatalf("double: %v %v", f, err)
	}
	if b, err := encode(Bool(true)).AsBool(); err != nil || !b {
		t.Fatalf("bool: %v %v", b, err)
	}
	if vs, err := encode(Strings()).AsStrings(); err != nil || len(vs) != 0 || vs == nil {
		t.Fatalf("empty strings: %v %v", vs, err)
	}
	if vs, err := encode(Ints(1, -2)).AsInts(); err != nil || !reflect.DeepEqual(vs, []int64{1, -2}) {
		t.Fatalf("ints: %v %v", vs, err)
	}
	doc, err := Doc(map[string]any{"city": "Lima"})
	if err != nil {
		t.Fatalf("Doc: %v", err)
	}
	if d, err := encode(doc).AsDocument(); err != nil || d["city"] != "Lima" {
		t.Fatalf("doc: %v %v", d, err)
	}
	if _, err := String("x").AsInt(); err == nil {
		t.Fatal("expected tag mismatch error")
	}
}

func TestIntAcceptsNumberForm(t *testing.T) {
	var v Value
	if err := json.Unmarshal([]byte(`{"intValue": 42}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if n, err := v.AsInt(); err != nil || n != 42 {
		t.Fatalf("int: %d %v", n, err)
	}
}
