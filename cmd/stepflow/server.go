package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/BaSui01/stepflow/api/handlers"
	"github.com/BaSui01/stepflow/config"
	"github.com/BaSui01/stepflow/internal/metrics"
	"github.com/BaSui01/stepflow/internal/server"
	"github.com/BaSui01/stepflow/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// 🖥️ Server
// =============================================================================

// Server 是 StepFlow 的主服务器
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	namespace string

	telemetry *telemetry.Providers
	collector *metrics.Collector
	engine    *engine

	httpManager    *server.Manager
	metricsManager *server.Manager

	healthHandler   *handlers.HealthHandler
	workflowHandler *handlers.WorkflowHandler
	configHandler   *handlers.ConfigHandler

	// rate limiter 清理 goroutine 的生命周期
	limiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:       cfg,
		logger:    logger,
		namespace: "stepflow",
	}
}

// Init 初始化遥测、指标与引擎
func (s *Server) Init(ctx context.Context) error {
	providers, err := telemetry.Init(s.cfg.Telemetry, s.logger, telemetry.WithServiceVersion(Version))
	if err != nil {
		// 遥测不可用不阻止启动
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	s.telemetry = providers
	s.collector = metrics.NewCollector(s.namespace, s.logger)

	deps := engineDeps{
		collector: s.collector,
		tracer:    s.telemetry.Tracer("stepflow/workflow"),
	}
	if s.cfg.Telemetry.Enabled {
		meters, err := telemetry.NewRecorder(s.telemetry.Meter("stepflow/workflow"))
		if err != nil {
			return fmt.Errorf("create otel instruments: %w", err)
		}
		deps.meters = meters
	}

	s.engine, err = buildEngine(ctx, s.cfg, deps, s.logger)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	s.healthHandler = handlers.NewHealthHandler(handlers.BuildInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}, s.logger)
	if s.engine.pool != nil {
		s.healthHandler.RegisterCheck(handlers.NewCheck("database", s.engine.pool.Ping))
	}
	if s.engine.redis != nil {
		s.healthHandler.RegisterCheck(handlers.NewCheck("redis", s.engine.redis.Ping))
	}

	s.workflowHandler = handlers.NewWorkflowHandler(s.engine.executor, s.engine.registry, s.engine.guard, s.logger)
	s.configHandler = handlers.NewConfigHandler(s.cfg)
	return nil
}

// Handler 构建带中间件链的 API 路由
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion)

	mux.HandleFunc("POST /api/v1/workflows/execute", s.workflowHandler.HandleExecute)
	mux.HandleFunc("GET /api/v1/tools", s.workflowHandler.HandleListTools)
	mux.HandleFunc("GET /api/v1/budgets/{context_id}", s.workflowHandler.HandleBudget)
	mux.HandleFunc("GET /api/v1/config", s.configHandler.HandleConfig)

	limiterCtx, cancel := context.WithCancel(context.Background())
	if s.limiterCancel != nil {
		s.limiterCancel()
	}
	s.limiterCancel = cancel

	chain := []Middleware{
		Recovery(s.logger),
		RequestID(),
		OTelTracing(s.telemetry.Tracer("stepflow/http")),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		CORS(s.cfg.Server.CORSAllowedOrigins),
	}
	// 认证先于限流，使限流能按租户计
	if s.cfg.JWT.Enabled {
		chain = append(chain, JWTAuth(s.cfg.JWT, publicPaths, s.logger))
	}
	if s.cfg.Server.RateLimitRPS > 0 {
		chain = append(chain, RateLimiter(limiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger))
	}
	return Chain(mux, chain...)
}

// MetricsHandler 暴露 Prometheus 指标
func (s *Server) MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// =============================================================================
// 🚀 运行与关闭
// =============================================================================

// Start 启动 API 与 Metrics 两个服务器（非阻塞）
func (s *Server) Start() error {
	s.httpManager = server.NewManager(s.Handler(), server.Config{
		Name:            "api",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
		TLSCertFile:     s.cfg.Server.TLSCertFile,
		TLSKeyFile:      s.cfg.Server.TLSKeyFile,
	}, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}

	if s.cfg.Server.MetricsPort > 0 {
		s.metricsManager = server.NewManager(s.MetricsHandler(), server.Config{
			Name:            "metrics",
			Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
			ReadTimeout:     s.cfg.Server.ReadTimeout,
			WriteTimeout:    s.cfg.Server.WriteTimeout,
			ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
		}, s.logger)
		if err := s.metricsManager.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("tls", s.cfg.Server.TLSCertFile != "" && s.cfg.Server.TLSKeyFile != ""),
		zap.Bool("jwt", s.cfg.JWT.Enabled),
	)
	return nil
}

// Run 启动服务器并阻塞，直到 ctx 结束或任一服务器出错，随后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		s.Shutdown()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case err := <-s.httpManager.Errors():
			return fmt.Errorf("http server: %w", err)
		case <-gctx.Done():
			return nil
		}
	})
	if s.metricsManager != nil {
		g.Go(func() error {
			select {
			case err := <-s.metricsManager.Errors():
				return fmt.Errorf("metrics server: %w", err)
			case <-gctx.Done():
				return nil
			}
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		s.Shutdown()
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown 优雅关闭：先停止接收请求，再关闭引擎与遥测
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if s.limiterCancel != nil {
		s.limiterCancel()
	}
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("http server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}
	if s.engine != nil {
		if err := s.engine.close(); err != nil {
			s.logger.Error("engine shutdown error", zap.Error(err))
		}
	}
	if err := s.telemetry.Shutdown(ctx); err != nil {
		s.logger.Error("telemetry shutdown error", zap.Error(err))
	}

	s.logger.Info("graceful shutdown completed")
}
