package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/BaSui01/stepflow/audit"
	"github.com/BaSui01/stepflow/budget"
	"github.com/BaSui01/stepflow/cache"
	"github.com/BaSui01/stepflow/config"
	"github.com/BaSui01/stepflow/internal/database"
	"github.com/BaSui01/stepflow/internal/metrics"
	"github.com/BaSui01/stepflow/internal/redisconn"
	"github.com/BaSui01/stepflow/privacy"
	"github.com/BaSui01/stepflow/tokenizer"
	"github.com/BaSui01/stepflow/tools"
	"github.com/BaSui01/stepflow/tools/builtin"
	"github.com/BaSui01/stepflow/workflow"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// =============================================================================
// ⚙️ 引擎装配
// =============================================================================

// engine 持有执行器及其依赖的外部连接
type engine struct {
	registry *tools.Registry
	guard    budget.Guard
	executor *workflow.Executor

	redis *redisconn.Manager
	pool  *database.PoolManager
	audit *audit.Logger
	vault *privacy.Vault

	logger *zap.Logger
}

// engineDeps 由调用方提供的可选观测组件
type engineDeps struct {
	collector *metrics.Collector
	meters    workflow.Recorder
	tracer    trace.Tracer
}

// buildEngine 按配置装配工具注册表、预算、缓存、隐私与执行器。
// 任一步失败时已打开的连接会被关闭。
func buildEngine(ctx context.Context, cfg *config.Config, deps engineDeps, logger *zap.Logger) (_ *engine, err error) {
	e := &engine{logger: logger}
	defer func() {
		if err != nil {
			e.close()
		}
	}()

	// 1. 工具注册表
	e.registry = tools.NewRegistry(logger)
	if cfg.Engine.BuiltinTools {
		if err := builtin.Register(e.registry); err != nil {
			return nil, err
		}
	}

	// 2. 外部连接
	if cfg.UsesRedis() {
		if e.redis, err = redisconn.NewManager(ctx, cfg.Redis, logger); err != nil {
			return nil, err
		}
	}
	if err := e.openDatabase(cfg, deps.collector); err != nil {
		return nil, err
	}

	// 3. 审计与预算
	if cfg.Budget.AuditEnabled {
		if err := e.openAudit(cfg); err != nil {
			return nil, err
		}
	}
	e.guard = e.buildGuard(cfg)

	// 4. 执行器选项
	fallback, err := e.buildCache(cfg)
	if err != nil {
		return nil, err
	}
	estimator, err := tokenizer.New(cfg.Engine.Estimator, cfg.Engine.TiktokenEncoding)
	if err != nil {
		return nil, err
	}

	opts := []workflow.ExecutorOption{
		workflow.WithConfig(workflow.Config{
			WorkflowTimeout: cfg.Engine.WorkflowTimeout,
			DefaultRetries:  cfg.Engine.DefaultRetries,
			Insights: workflow.InsightConfig{
				HighTokenThreshold:     cfg.Engine.HighTokenThreshold,
				LatencyTargetMs:        cfg.Engine.LatencyTargetMs,
				PricePerThousandTokens: cfg.Engine.PricePerThousandTokens,
			},
		}),
		workflow.WithCacheFallback(fallback),
		workflow.WithEstimator(estimator),
		workflow.WithLogger(logger),
	}
	if cfg.Privacy.Enabled {
		if cfg.Privacy.KeepOriginals {
			e.vault = privacy.NewVault()
		}
		detector, err := privacy.NewDetector(privacy.DetectorConfig{
			EnabledTypes: piiTypes(cfg.Privacy.Types),
			Salt:         cfg.Privacy.TokenSalt,
			Vault:        e.vault,
		}, logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, workflow.WithSanitizer(detector))
	}
	var recorders []workflow.Recorder
	if deps.collector != nil {
		recorders = append(recorders, deps.collector)
	}
	if deps.meters != nil {
		recorders = append(recorders, deps.meters)
	}
	if len(recorders) > 0 {
		opts = append(opts, workflow.WithRecorder(workflow.MultiRecorder(recorders...)))
	}
	if deps.tracer != nil {
		opts = append(opts, workflow.WithTracer(deps.tracer))
	}

	e.executor = workflow.NewExecutor(e.registry, e.guard, opts...)

	logger.Info("engine ready",
		zap.Int("tools", len(e.registry.List())),
		zap.String("budget_backend", cfg.Budget.Backend),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.Bool("privacy", cfg.Privacy.Enabled),
		zap.Bool("audit", e.audit != nil),
		zap.String("estimator", cfg.Engine.Estimator),
	)
	return e, nil
}

func (e *engine) openDatabase(cfg *config.Config, collector *metrics.Collector) error {
	db, err := database.Open(cfg.Database, e.logger)
	if errors.Is(err, database.ErrDisabled) {
		return nil
	}
	if err != nil {
		return err
	}

	poolOpts := []database.PoolOption{database.WithName(cfg.Database.Driver)}
	if collector != nil {
		poolOpts = append(poolOpts, database.WithStatsRecorder(collector))
		if err := database.Instrument(db, cfg.Database.Driver, collector); err != nil {
			return err
		}
	}
	e.pool, err = database.NewPoolManager(db, database.PoolConfigFrom(cfg.Database), e.logger, poolOpts...)
	return err
}

// openAudit 有数据库时写入 GormStore，否则退回内存后端
func (e *engine) openAudit(cfg *config.Config) error {
	var backend audit.Backend
	if e.pool != nil {
		store, err := audit.NewGormStore(e.pool.DB(), e.logger)
		if err != nil {
			return fmt.Errorf("audit store: %w", err)
		}
		backend = store
	} else {
		backend = audit.NewMemoryBackend(10000)
	}

	e.audit = audit.NewLogger(audit.Config{
		Backends:       []audit.Backend{backend},
		AsyncQueueSize: cfg.Budget.AuditQueueSize,
		AsyncWorkers:   cfg.Budget.AuditWorkers,
	}, e.logger)
	return nil
}

func (e *engine) buildGuard(cfg *config.Config) budget.Guard {
	var guard budget.Guard
	switch cfg.Budget.Backend {
	case "redis":
		guard = budget.NewRedisGuard(e.redis.Client(), cfg.Budget.DefaultAllowance, e.logger)
	default:
		mg := budget.NewMemoryGuard(budget.MemoryConfig{
			DefaultBudget:  cfg.Budget.DefaultAllowance,
			AlertThreshold: cfg.Budget.AlertThreshold,
		}, e.logger)
		if e.audit != nil {
			mg.OnAlert(budget.AlertAuditor(e.audit))
		}
		guard = mg
	}

	if e.audit != nil {
		guard = budget.NewAuditedGuard(guard, e.audit)
	}
	return guard
}

func (e *engine) buildCache(cfg *config.Config) (cache.Fallback, error) {
	switch cfg.Cache.Backend {
	case "", "none":
		return cache.Noop{}, nil
	case "memory":
		return cache.NewMemory(cache.MemoryConfig{
			MaxEntries:    cfg.Cache.MaxEntries,
			DefaultTTL:    cfg.Cache.TTL,
			ExcludedTools: cfg.Cache.ExcludedTools,
		}, e.logger), nil
	case "redis":
		return cache.NewRedis(e.redis.Client(), cache.RedisConfig{
			TTL:           cfg.Cache.TTL,
			ExcludedTools: cfg.Cache.ExcludedTools,
		}, e.logger), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

func piiTypes(names []string) []privacy.PIIType {
	if len(names) == 0 {
		return nil
	}
	out := make([]privacy.PIIType, len(names))
	for i, n := range names {
		out[i] = privacy.PIIType(n)
	}
	return out
}

// close 按依赖逆序关闭：先排空审计队列，再关数据库与 Redis
func (e *engine) close() error {
	var errs []error
	if e.audit != nil {
		if err := e.audit.Close(); err != nil {
			errs = append(errs, fmt.Errorf("audit: %w", err))
		}
	}
	if e.pool != nil {
		if err := e.pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if e.redis != nil {
		if err := e.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
