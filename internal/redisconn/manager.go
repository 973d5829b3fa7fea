package redisconn

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/stepflow/config"
	"github.com/BaSui01/stepflow/internal/tlsutil"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// =============================================================================
// 🔌 Redis 连接管理器
// =============================================================================

// Manager owns one go-redis client and its health loop.
type Manager struct {
	client *redis.Client
	config config.RedisConfig
	logger *zap.Logger

	mu      sync.RWMutex
	closed  bool
	healthy bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// Options 由配置构造 go-redis 选项
func Options(cfg config.RedisConfig) *redis.Options {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	}
	if cfg.TLS {
		opts.TLSConfig = tlsutil.ClientTLSConfig(cfg.Addr)
	}
	return opts
}

// NewManager 创建客户端并探活，连接失败时返回错误
func NewManager(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(Options(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	m := &Manager{
		client:  client,
		config:  cfg,
		logger:  logger.With(zap.String("component", "redis")),
		healthy: true,
		done:    make(chan struct{}),
	}

	if cfg.HealthCheckInterval > 0 {
		m.wg.Add(1)
		go m.healthCheckLoop()
	}

	m.logger.Info("redis connected",
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB),
		zap.Bool("tls", cfg.TLS),
	)
	return m, nil
}

// Client returns the shared client.
func (m *Manager) Client() *redis.Client {
	return m.client
}

// Ping 检查连接
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("redis manager is closed")
	}
	return m.client.Ping(ctx).Err()
}

// Healthy reports the result of the last health check.
func (m *Manager) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthy && !m.closed
}

// Close 停止健康检查并关闭客户端
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.done)
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("closing redis client")
	return m.client.Close()
}

func (m *Manager) healthCheckLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := m.client.Ping(ctx).Err()
			cancel()

			m.mu.Lock()
			wasHealthy := m.healthy
			m.healthy = err == nil
			m.mu.Unlock()

			switch {
			case err != nil && wasHealthy:
				m.logger.Error("redis health check failed", zap.Error(err))
			case err == nil && !wasHealthy:
				m.logger.Info("redis connection recovered")
			}
			if err == nil {
				m.logStats()
			}
		}
	}
}

// =============================================================================
// 📊 统计信息
// =============================================================================

// Stats combines server INFO fields with client pool counters.
type Stats struct {
	ConnectedClients int64  `json:"connected_clients"`
	UsedMemory       int64  `json:"used_memory"`
	KeyspaceHits     int64  `json:"keyspace_hits"`
	KeyspaceMisses   int64  `json:"keyspace_misses"`
	PoolHits         uint32 `json:"pool_hits"`
	PoolMisses       uint32 `json:"pool_misses"`
	PoolTimeouts     uint32 `json:"pool_timeouts"`
	TotalConns       uint32 `json:"total_conns"`
	IdleConns        uint32 `json:"idle_conns"`
}

// Stats 读取 INFO 并合并连接池计数
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	if err := m.Ping(ctx); err != nil {
		return nil, err
	}
	info, err := m.client.Info(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("redis info: %w", err)
	}

	stats := parseInfo(info)
	ps := m.client.PoolStats()
	stats.PoolHits = ps.Hits
	stats.PoolMisses = ps.Misses
	stats.PoolTimeouts = ps.Timeouts
	stats.TotalConns = ps.TotalConns
	stats.IdleConns = ps.IdleConns
	return stats, nil
}

func (m *Manager) logStats() {
	if !m.logger.Core().Enabled(zap.DebugLevel) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	stats, err := m.Stats(ctx)
	if err != nil {
		return
	}
	m.logger.Debug("redis stats",
		zap.Int64("connected_clients", stats.ConnectedClients),
		zap.Int64("used_memory", stats.UsedMemory),
		zap.Uint32("total_conns", stats.TotalConns),
		zap.Uint32("idle_conns", stats.IdleConns),
		zap.Uint32("pool_timeouts", stats.PoolTimeouts),
	)
}

// parseInfo 解析 INFO 的 key:value 行，忽略未知字段与段标题
func parseInfo(info string) *Stats {
	stats := &Stats{}
	fields := map[string]*int64{
		"connected_clients": &stats.ConnectedClients,
		"used_memory":       &stats.UsedMemory,
		"keyspace_hits":     &stats.KeyspaceHits,
		"keyspace_misses":   &stats.KeyspaceMisses,
	}

	sc := bufio.NewScanner(strings.NewReader(info))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		dst, known := fields[key]
		if !known {
			continue
		}
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			*dst = n
		}
	}
	return stats
}
