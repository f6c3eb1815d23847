// Package server hosts the recap HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"recap/internal/api"
	"recap/internal/config"
	"recap/internal/home"
	"recap/internal/pipeline"
	"recap/internal/providers"
	"recap/internal/search"
	"recap/internal/server/endpoints"
	"recap/internal/store"
	"recap/internal/svcctx"
)

// Server is the main Recap HTTP server. It owns the store, the generator
// registry, the pipeline manager, and the optional search sink.
type Server struct {
	httpServer *http.Server
	store      *store.Store
	registry   *providers.Registry
	manager    *pipeline.Manager
	resolver   *pipeline.Resolver
	searchC    *search.Client
	searchSink *search.Sink
	configMgr  *config.Manager
	home       *home.Dir
	logger     *slog.Logger

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
	ready   bool
}

// Config holds server configuration.
type Config struct {
	// ConfigManager provides configuration with hot-reload support.
	ConfigManager *config.Manager
	// Home is the recap home directory.
	Home *home.Dir
	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.ConfigManager == nil {
		return nil, errors.New("config manager is required")
	}
	if cfg.Home == nil {
		return nil, errors.New("home directory is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	appCfg := cfg.ConfigManager.Get()

	// Create generator registry with hot reload
	registry := providers.NewRegistry()
	registry.SetLogger(cfg.Logger)
	registry.Reload(appCfg.ToRegistryConfig())
	cfg.ConfigManager.OnChange(func(c *config.Config) {
		registry.Reload(c.ToRegistryConfig())
		cfg.Logger.Info("generator registry reloaded from config")
	})

	s := &Server{
		registry:  registry,
		configMgr: cfg.ConfigManager,
		home:      cfg.Home,
		logger:    cfg.Logger,
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All() {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	host := appCfg.Server.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := appCfg.Server.Port
	if port == 0 {
		port = 8580
	}

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:      s.withServices(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start starts the server. It blocks until the context is cancelled or an
// error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.home.Lock(); err != nil {
		s.setNotRunning()
		return err
	}

	appCfg := s.configMgr.Get()

	// Open the store
	dbPath := appCfg.Storage.DatabasePath
	if dbPath == "" {
		dbPath = s.home.DatabasePath()
	}
	st, err := store.Open(dbPath)
	if err != nil {
		s.setNotRunning()
		_ = s.home.Unlock()
		return fmt.Errorf("open store: %w", err)
	}
	s.store = st
	s.logger.Info("store ready", "path", dbPath)

	// Optional search indexing
	var emitter pipeline.Emitter
	if appCfg.Search.Enabled {
		s.searchC = search.NewClient(search.ClientConfig{
			URL:      appCfg.Search.URL,
			Username: appCfg.Search.Username,
			Password: config.ResolveEnvVars(appCfg.Search.Password),
		})
		if err := s.searchC.EnsureIndexes(ctx); err != nil {
			s.logger.Warn("search index bootstrap failed, continuing without indexing", "error", err)
			s.searchC = nil
		} else {
			s.searchSink = search.NewSink(search.SinkConfig{
				Client:    s.searchC,
				QueueSize: appCfg.Search.QueueSize,
				Logger:    s.logger,
			})
			s.searchSink.Start(ctx)
			emitter = s.searchSink
			s.logger.Info("search indexing enabled", "url", appCfg.Search.URL)
		}
	}

	// Pipeline orchestration
	orch := pipeline.NewOrchestrator(s.store, s.registry, emitter, PipelineConfig(appCfg), s.logger)
	s.manager = pipeline.NewManager(orch, s.logger)
	s.resolver = pipeline.NewResolver(s.store)

	// Create services struct for context enrichment
	s.services = &svcctx.Services{
		Store:         s.store,
		Registry:      s.registry,
		Manager:       s.manager,
		Resolver:      s.resolver,
		SearchClient:  s.searchC,
		SearchSink:    s.searchSink,
		ConfigManager: s.configMgr,
		Logger:        s.logger,
		Home:          s.home,
	}

	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown performs graceful shutdown: stop accepting requests, wait for
// in-flight generation runs, drain the search sink, close the store.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.manager != nil {
		s.logger.Info("waiting for in-flight generation runs")
		s.manager.Wait()
	}
	if s.searchSink != nil {
		s.searchSink.Stop()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("store close error", "error", err)
		}
	}
	if err := s.home.Unlock(); err != nil {
		s.logger.Error("home unlock error", "error", err)
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.ready = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Registry returns the generator registry.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable while the store and manager aren't ready.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		ready := s.ready
		s.mu.RUnlock()
		if !ready {
			http.Error(w, `{"error":"server is still initializing"}`, http.StatusServiceUnavailable)
			return
		}
		next(w, r)
	}
}

// PipelineConfig maps application config to orchestration settings.
func PipelineConfig(cfg *config.Config) pipeline.Config {
	return pipeline.Config{
		Generator:      cfg.Pipeline.Generator,
		GridStep:       cfg.Pipeline.GridStep,
		MaxAttempts:    cfg.Pipeline.MaxAttempts,
		RetryDelay:     time.Duration(cfg.Pipeline.RetryDelaySeconds) * time.Second,
		RequestTimeout: time.Duration(cfg.Pipeline.RequestTimeoutSeconds) * time.Second,
		LeaseTTL:       time.Duration(cfg.Pipeline.LeaseTTLMinutes) * time.Minute,
	}
}
