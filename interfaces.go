package tsunagi

import (
	"net/http"

	"github.com/ashita-ai/tsunagi/internal/event"
	"github.com/ashita-ai/tsunagi/internal/query"
	"github.com/ashita-ai/tsunagi/internal/ratelimit"
)

// Params is what a Task reads from and writes to. Get consults the task
// scope first, then the event scope, following "$name$" indirection. Set
// upserts into the event scope, which is returned to the caller.
type Params = event.Params

// Task is one unit of work mounted at POST /v1/functions/{name}.
// A returned error or a panic is reported in the response under
// CloudFunctionException; it never turns into an HTTP error.
type Task = event.Task

// TaskFunc adapts a plain function to Task.
type TaskFunc = event.TaskFunc

// DocumentStore is where the bundled query task reads documents from.
// A store that also implements DocumentWriter can be seeded at startup.
type DocumentStore = query.Store

// DocumentWriter stores documents.
type DocumentWriter = query.Writer

// Document is one stored document of a kind.
type Document = query.Document

// Query selects documents of one kind.
type Query = query.Query

// Filter is one parsed "field,op,value,type" clause.
type Filter = query.Filter

// Limiter decides whether a request should be allowed. It replaces the
// in-memory per-client limiter configured from the environment.
type Limiter = ratelimit.Limiter

// Middleware wraps the root HTTP handler.
// Applied outermost (before routing), so it sees all requests including /health.
// Multiple middlewares are applied in registration order (first-registered = outermost).
type Middleware func(http.Handler) http.Handler
