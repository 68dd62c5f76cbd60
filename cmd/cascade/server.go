package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/geepers/cascade/api/handlers"
	"github.com/geepers/cascade/config"
	"github.com/geepers/cascade/executor"
	"github.com/geepers/cascade/internal/metrics"
	"github.com/geepers/cascade/internal/server"
	"github.com/geepers/cascade/internal/telemetry"
	"github.com/geepers/cascade/orchestrator"
	"github.com/geepers/cascade/store"
)

// Server wires configuration, persistence, orchestration and the HTTP API
// into a runnable service.
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	sessions  store.SessionStore
	orch      *orchestrator.Orchestrator
	collector *metrics.Collector
	telemetry *telemetry.Providers
	manager   *server.Manager

	// lifecycleCtx bounds background goroutines (cleanup loop, rate limiter
	// eviction) to the server's lifetime.
	lifecycleCtx    context.Context
	lifecycleCancel context.CancelFunc
}

// NewServer assembles a server from configuration. Nothing starts listening
// until Start is called.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	sessions, err := buildSessionStore(cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("init session store: %w", err)
	}

	collector := metrics.NewCollector("cascade", prometheus.DefaultRegisterer, logger)

	orch := orchestrator.New(buildExecutor(cfg.Executor), sessions, orchestrator.Config{
		MaxConcurrentUnits:      cfg.Orchestrator.MaxConcurrentUnits,
		MaxPipelines:            cfg.Orchestrator.MaxPipelines,
		PipelineQueueSize:       cfg.Orchestrator.PipelineQueueSize,
		DefaultMidTierGroupSize: cfg.Orchestrator.DefaultMidTierGroupSize,
		CostPerKiloToken:        cfg.Orchestrator.CostPerKiloToken,
	}, logger, collector)

	lifecycleCtx, lifecycleCancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:             cfg,
		logger:          logger,
		sessions:        sessions,
		orch:            orch,
		collector:       collector,
		telemetry:       providers,
		lifecycleCtx:    lifecycleCtx,
		lifecycleCancel: lifecycleCancel,
	}

	s.manager = server.NewManager(s.buildHandler(), server.Config{
		Addr:            fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger)

	return s, nil
}

func buildSessionStore(cfg config.StoreConfig, logger *zap.Logger) (store.SessionStore, error) {
	switch cfg.Type {
	case "redis":
		logger.Info("using redis session store", zap.String("addr", cfg.Redis.Addr))
		return store.NewRedisSessionStore(store.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			PoolSize:  cfg.Redis.PoolSize,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
	default:
		logger.Info("using in-memory session store")
		return store.NewMemorySessionStore(), nil
	}
}

// buildExecutor constructs the worker executor chain: simulated provider,
// wrapped with per-unit timeout and rate limiting when configured.
func buildExecutor(cfg config.ExecutorConfig) executor.WorkerExecutor {
	var exec executor.WorkerExecutor = executor.NewSimExecutor(executor.SimConfig{
		BaseDelay: cfg.Sim.BaseDelay,
		Jitter:    cfg.Sim.Jitter,
		FailEvery: cfg.Sim.FailEvery,
		Seed:      cfg.Sim.Seed,
	}, executor.NewTiktokenCounter("cl100k_base"))

	if cfg.UnitTimeout > 0 {
		exec = executor.WithTimeout(exec, cfg.UnitTimeout)
	}
	if cfg.RateLimit > 0 {
		exec = executor.WithRateLimit(exec, cfg.RateLimit, cfg.RateBurst)
	}
	return exec
}

// buildHandler assembles the route mux and middleware chain.
func (s *Server) buildHandler() http.Handler {
	mux := http.NewServeMux()

	health := handlers.NewHealthHandler(s.logger)
	health.RegisterCheck(handlers.NewPingCheck("session_store", s.sessions.Ping))
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion(Version, BuildTime, GitCommit))
	mux.Handle("GET /metrics", promhttp.Handler())

	handlers.NewSessionHandler(s.orch, s.logger).Register(mux)

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		OTelTracing(),
		RateLimiter(s.lifecycleCtx, s.cfg.Server.RateLimit, s.cfg.Server.RateBurst, s.logger),
	)
}

// Start begins serving and launches background maintenance.
func (s *Server) Start() error {
	if err := s.manager.Start(); err != nil {
		return err
	}
	if s.cfg.Store.Cleanup.Enabled {
		go s.cleanupLoop()
	}
	return nil
}

// cleanupLoop periodically removes terminal sessions older than the
// configured maximum age.
func (s *Server) cleanupLoop() {
	interval := s.cfg.Store.Cleanup.Interval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.lifecycleCtx.Done():
			return
		case <-ticker.C:
			removed, err := s.sessions.Cleanup(s.lifecycleCtx, s.cfg.Store.Cleanup.MaxAge)
			if err != nil {
				s.logger.Warn("session cleanup failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				s.logger.Info("cleaned up expired sessions", zap.Int("removed", removed))
			}
		}
	}
}

// WaitForShutdown blocks until a termination signal or server error.
func (s *Server) WaitForShutdown() {
	s.manager.WaitForShutdown()
}

// Shutdown stops the HTTP server, drains running pipelines and releases
// all resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.lifecycleCancel()

	if err := s.manager.Shutdown(ctx); err != nil {
		s.logger.Error("http shutdown failed", zap.Error(err))
	}

	s.orch.Close()

	if err := s.sessions.Close(); err != nil {
		s.logger.Error("session store close failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.telemetry.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("telemetry shutdown failed", zap.Error(err))
	}

	s.logger.Info("server stopped")
	return nil
}
