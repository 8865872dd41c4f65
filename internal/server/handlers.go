package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashita-ai/tsunagi/internal/ctxutil"
	"github.com/ashita-ai/tsunagi/internal/event"
	"github.com/ashita-ai/tsunagi/internal/model"
	"github.com/ashita-ai/tsunagi/internal/query"
	"github.com/ashita-ai/tsunagi/internal/telemetry"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	functions   map[string]event.Task
	names       []string
	store       query.Store
	storeName   string
	metrics     *telemetry.FunctionMetrics
	logger      *slog.Logger
	startedAt   time.Time
	version     string
	openapiSpec []byte
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): Store, Metrics, OpenAPISpec.
type HandlersDeps struct {
	Functions   map[string]event.Task
	Store       query.Store
	StoreName   string
	Metrics     *telemetry.FunctionMetrics
	Logger      *slog.Logger
	Version     string
	OpenAPISpec []byte
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		functions:   d.Functions,
		names:       FunctionNames(d.Functions),
		store:       d.Store,
		storeName:   d.StoreName,
		metrics:     d.Metrics,
		logger:      d.Logger,
		startedAt:   time.Now(),
		version:     d.Version,
		openapiSpec: d.OpenAPISpec,
	}
}

// HandleInvoke handles POST /v1/functions/{name}.
//
// Once the function is found, the response is always 200 with the event
// scope as body: failures travel in-band under event.ExceptionKey, including
// a body that cannot be decoded.
func (h *Handlers) HandleInvoke(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	task, ok := h.functions[name]
	if !ok {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, fmt.Sprintf("function %q not found", name))
		return
	}
	if !ctxutil.FunctionAllowed(r.Context(), name) {
		writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, fmt.Sprintf("token does not allow function %q", name))
		return
	}

	res := h.invoke(r.Context(), name, task, r)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(res.Response); err != nil {
		h.logger.Error("function: write response", "function", name, "error", err,
			"request_id", ctxutil.RequestIDFromContext(r.Context()))
	}
}

func (h *Handlers) invoke(ctx context.Context, name string, task event.Task, r *http.Request) event.Result {
	start := time.Now()

	var res event.Result
	var payload event.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		res = event.Reject(fmt.Errorf("invalid request body: %w", err))
	} else {
		res = event.Execute(ctx, payload, task)
	}

	elapsed := time.Since(start)
	h.metrics.Record(ctx, name, res.Failed(), elapsed)

	reqID := ctxutil.RequestIDFromContext(ctx)
	if res.Failed() {
		h.logger.Warn("function failed",
			"function", name,
			"error", res.Err,
			"request_id", reqID,
			"duration_ms", elapsed.Milliseconds(),
		)
	} else {
		h.logger.Debug("function completed",
			"function", name,
			"logs", len(res.Logs),
			"request_id", reqID,
			"duration_ms", elapsed.Milliseconds(),
		)
	}
	return res
}

// HandleListFunctions handles GET /v1/functions.
func (h *Handlers) HandleListFunctions(w http.ResponseWriter, r *http.Request) {
	infos := make([]model.FunctionInfo, 0, len(h.names))
	for _, name := range h.names {
		if !ctxutil.FunctionAllowed(r.Context(), name) {
			continue
		}
		infos = append(infos, model.FunctionInfo{Name: name, Path: "/v1/functions/" + name})
	}
	writeJSON(w, r, http.StatusOK, infos)
}

// HandleHealth handles GET /health. It answers 503 when the store is
// unreachable.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	httpStatus := http.StatusOK
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			h.logger.Warn("health: store unreachable", "store", h.storeName, "error", err)
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, r, httpStatus, model.HealthResponse{
		Status:    status,
		Version:   h.version,
		Store:     h.storeName,
		Functions: h.names,
		Uptime:    int64(time.Since(h.startedAt).Seconds()),
	})
}

// HandleOpenAPISpec handles GET /openapi.yaml.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}
