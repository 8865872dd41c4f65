// Package tsunagi is the public API for embedding the tsunagi function host.
//
// Programs import this package to mount their own tasks next to the bundled
// query and echo functions without forking the server:
//
//	app, err := tsunagi.New(
//	    tsunagi.WithVersion(version),
//	    tsunagi.WithLogger(logger),
//	    tsunagi.WithTask("greet", tsunagi.TaskFunc(greet)),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// tsunagi (root) imports internal/*, but internal/* never imports the root
// package. Public types are aliases of the internal ones.
package tsunagi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/tsunagi/api"
	"github.com/ashita-ai/tsunagi/internal/auth"
	"github.com/ashita-ai/tsunagi/internal/config"
	"github.com/ashita-ai/tsunagi/internal/event"
	"github.com/ashita-ai/tsunagi/internal/litestore"
	"github.com/ashita-ai/tsunagi/internal/mcp"
	"github.com/ashita-ai/tsunagi/internal/model"
	"github.com/ashita-ai/tsunagi/internal/query"
	"github.com/ashita-ai/tsunagi/internal/ratelimit"
	"github.com/ashita-ai/tsunagi/internal/search"
	"github.com/ashita-ai/tsunagi/internal/seed"
	"github.com/ashita-ai/tsunagi/internal/server"
	"github.com/ashita-ai/tsunagi/internal/storage"
	"github.com/ashita-ai/tsunagi/internal/telemetry"
	"github.com/ashita-ai/tsunagi/migrations"
)

// Names of the built-in functions.
const (
	FunctionQuery = "query"
	FunctionEcho  = "echo"
)

// App is the tsunagi server lifecycle. Construct with New(), run with Run().
type App struct {
	cfg          config.Config
	srv          *server.Server
	limiter      ratelimit.Limiter
	closeStore   func()
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New loads configuration, opens the document store, loads the seed file,
// and wires the HTTP server. It does NOT accept HTTP connections; call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	// Reject bad task names before anything is opened.
	functions, err := mountFunctions(o.tasks)
	if err != nil {
		return nil, err
	}

	logger.Info("tsunagi starting", "version", version, "port", cfg.Port, "store", cfg.Store)

	ctx := context.Background()
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	store, storeName, closeStore := o.store, "custom", func() {}
	if store == nil {
		store, closeStore, err = openStore(ctx, cfg, logger)
		if err != nil {
			_ = otelShutdown(ctx)
			return nil, err
		}
		storeName = cfg.Store
	}
	fail := func(err error) (*App, error) {
		closeStore()
		_ = otelShutdown(ctx)
		return nil, err
	}

	if cfg.SeedFile != "" {
		w, ok := store.(query.Writer)
		if !ok {
			return fail(fmt.Errorf("seed: %s store does not accept writes", storeName))
		}
		if _, err := seed.Load(ctx, cfg.SeedFile, w, logger); err != nil {
			return fail(err)
		}
	}

	functions[FunctionQuery] = query.NewTask(store, query.TaskConfig{
		DefaultLimit: cfg.QueryDefaultLimit,
		MaxLimit:     cfg.QueryMaxLimit,
		Timeout:      cfg.QueryTimeout,
	}, logger)
	functions[FunctionEcho] = event.Echo

	var verifier *auth.JWTVerifier
	if cfg.JWTPublicKeyPath != "" {
		verifier, err = auth.NewJWTVerifier(cfg.JWTPublicKeyPath)
		if err != nil {
			return fail(fmt.Errorf("auth: %w", err))
		}
	}
	if !cfg.AuthEnabled() {
		logger.Warn("authentication disabled: every function is open")
	}

	limiter := o.limiter
	if limiter == nil {
		if cfg.RateLimitRPS > 0 {
			limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		} else {
			limiter = ratelimit.NoopLimiter{}
		}
	}

	srvCfg := server.ServerConfig{
		Functions:           functions,
		Logger:              logger,
		Store:               store,
		StoreName:           storeName,
		Verifier:            verifier,
		APIKeyHash:          cfg.APIKeyHash,
		Limiter:             limiter,
		Metrics:             telemetry.NewFunctionMetrics(telemetry.Meter("tsunagi/function")),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         api.OpenAPISpec,
	}
	if cfg.MCPEnabled {
		srvCfg.MCPServer = mcp.New(mcp.Config{
			Functions: functions,
			Store:     store,
			MaxLimit:  cfg.QueryMaxLimit,
			Logger:    logger,
			Version:   version,
		}).MCPServer()
	}
	for _, mw := range o.middlewares {
		srvCfg.Middlewares = append(srvCfg.Middlewares, mw)
	}

	return &App{
		cfg:          cfg,
		srv:          server.New(srvCfg),
		limiter:      limiter,
		closeStore:   closeStore,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// mountFunctions validates the extra tasks and returns them keyed by name.
func mountFunctions(tasks []namedTask) (map[string]event.Task, error) {
	functions := make(map[string]event.Task, len(tasks)+2)
	for _, nt := range tasks {
		if err := model.ValidateFunctionName(nt.name); err != nil {
			return nil, fmt.Errorf("task: %w", err)
		}
		if nt.task == nil {
			return nil, fmt.Errorf("task: %q is nil", nt.name)
		}
		if nt.name == FunctionQuery || nt.name == FunctionEcho {
			return nil, fmt.Errorf("task: %q is a built-in function", nt.name)
		}
		if _, dup := functions[nt.name]; dup {
			return nil, fmt.Errorf("task: %q is mounted twice", nt.name)
		}
		functions[nt.name] = nt.task
	}
	return functions, nil
}

// openStore opens the backend selected by cfg.Store.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (query.Store, func(), error) {
	switch cfg.Store {
	case config.StorePostgres:
		db, err := storage.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("storage: %w", err)
		}
		if err := db.RunMigrations(ctx, migrations.FS); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		return db, db.Close, nil

	case config.StoreSQLite:
		st, err := litestore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil

	case config.StoreQdrant:
		qs, err := search.NewQdrantStore(search.QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := qs.EnsureIndexes(ctx); err != nil {
			_ = qs.Close()
			return nil, nil, err
		}
		return qs, func() { _ = qs.Close() }, nil

	default:
		return query.NewMemoryStore(), func() {}, nil
	}
}

// Seed writes the documents in the YAML file at path to the store selected
// by the environment and returns how many were written. It is the offline
// counterpart of TSUNAGI_SEED_FILE for stores that outlive the process.
func Seed(ctx context.Context, path string, logger *slog.Logger) (int, error) {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return 0, fmt.Errorf("load config: %w", err)
	}
	if cfg.Store == config.StoreMemory {
		return 0, fmt.Errorf("seed: the memory store does not outlive this command; set TSUNAGI_STORE")
	}
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return 0, err
	}
	defer closeStore()

	w, ok := store.(query.Writer)
	if !ok {
		return 0, fmt.Errorf("seed: %s store does not accept writes", cfg.Store)
	}
	return seed.Load(ctx, path, w, logger)
}

// Handler returns the root HTTP handler, for tests and for serving the App
// from a caller-owned http.Server.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// Run starts the HTTP server, then blocks until ctx is cancelled or a fatal
// server error occurs. On return, Shutdown has been called.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		_ = a.Shutdown(context.Background())
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown stops accepting requests, drains in-flight ones for up to the
// configured shutdown timeout, then closes the limiter, the store and the
// OTEL providers.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("tsunagi shutting down")

	httpCtx, cancel := contextWithOptionalTimeout(ctx, a.cfg.ShutdownTimeout)
	err := a.srv.Shutdown(httpCtx)
	cancel()
	if err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}

	_ = a.limiter.Close()
	a.closeStore()
	_ = a.otelShutdown(context.Background())

	a.logger.Info("tsunagi stopped")
	return err
}

func contextWithOptionalTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}
