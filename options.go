package tsunagi

import "log/slog"

// Option configures an App.
type Option func(*resolvedOptions)

type namedTask struct {
	name string
	task Task
}

// resolvedOptions holds all extension points after applying defaults.
type resolvedOptions struct {
	port        int
	logger      *slog.Logger
	version     string
	tasks       []namedTask
	store       DocumentStore
	limiter     Limiter
	middlewares []Middleware
}

// WithPort overrides the TCP port from config (TSUNAGI_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithTask mounts task at POST /v1/functions/{name}. Names must be lowercase
// and must not collide with the built-in "query" and "echo" functions.
func WithTask(name string, task Task) Option {
	return func(o *resolvedOptions) { o.tasks = append(o.tasks, namedTask{name: name, task: task}) }
}

// WithDocumentStore replaces the store selected by TSUNAGI_STORE. The App
// does not close a store passed this way.
func WithDocumentStore(store DocumentStore) Option {
	return func(o *resolvedOptions) { o.store = store }
}

// WithLimiter replaces the in-memory rate limiter. The App closes it on
// shutdown.
func WithLimiter(l Limiter) Option {
	return func(o *resolvedOptions) { o.limiter = l }
}

// WithMiddleware registers an outermost HTTP middleware.
func WithMiddleware(mw Middleware) Option {
	return func(o *resolvedOptions) { o.middlewares = append(o.middlewares, mw) }
}
