package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultServerConfig(), cfg.Server)
	assert.Equal(t, DefaultEngineConfig(), cfg.Engine)
	assert.Equal(t, DefaultBudgetConfig(), cfg.Budget)
	assert.Equal(t, DefaultCacheConfig(), cfg.Cache)
	assert.Equal(t, DefaultPrivacyConfig(), cfg.Privacy)
	assert.Equal(t, DefaultRedisConfig(), cfg.Redis)
	assert.Equal(t, DefaultDatabaseConfig(), cfg.Database)
	assert.Equal(t, DefaultJWTConfig(), cfg.JWT)
	assert.Equal(t, DefaultLogConfig(), cfg.Log)
	assert.Equal(t, DefaultTelemetryConfig(), cfg.Telemetry)
}

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 9091, cfg.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 100.0, cfg.RateLimitRPS)
	assert.Equal(t, 200, cfg.RateLimitBurst)
}

func TestDefaultEngineConfig(t *testing.T) {
	cfg := DefaultEngineConfig()
	assert.Equal(t, 1500*time.Millisecond, cfg.WorkflowTimeout)
	assert.Equal(t, 3, cfg.DefaultRetries)
	assert.Equal(t, 0.002, cfg.PricePerThousandTokens)
	assert.Equal(t, 500.0, cfg.HighTokenThreshold)
	assert.Equal(t, int64(1500), cfg.LatencyTargetMs)
	assert.Equal(t, "bytes", cfg.Estimator)
	assert.Equal(t, "cl100k_base", cfg.TiktokenEncoding)
}

func TestDefaultBudgetConfig(t *testing.T) {
	cfg := DefaultBudgetConfig()
	assert.Equal(t, "memory", cfg.Backend)
	assert.Equal(t, 10000, cfg.DefaultAllowance)
	assert.Equal(t, 0.8, cfg.AlertThreshold)
	assert.True(t, cfg.AuditEnabled)
}

func TestDefaultCacheConfig(t *testing.T) {
	cfg := DefaultCacheConfig()
	assert.Equal(t, "memory", cfg.Backend)
	assert.Equal(t, 15*time.Minute, cfg.TTL)
	assert.Equal(t, 10000, cfg.MaxEntries)
}

func TestDefaultDatabaseConfig(t *testing.T) {
	cfg := DefaultDatabaseConfig()
	assert.Empty(t, cfg.Driver)
	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.Equal(t, 5*time.Minute, cfg.ConnMaxLifetime)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "stepflow", cfg.ServiceName)
	assert.Equal(t, 0.1, cfg.SampleRate)
}
