package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/BaSui01/stepflow/internal/tlsutil"
	"go.uber.org/zap"
)

// =============================================================================
// 🌐 HTTP 服务器管理器
// =============================================================================

// Manager 管理单个 http.Server 的监听、服务与排空
type Manager struct {
	srv      *http.Server
	listener net.Listener
	errCh    chan error
	config   Config
	logger   *zap.Logger

	// 请求上下文的根，排空超时后取消，正在执行的工作流随之收尾
	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// Config 服务器配置
type Config struct {
	// 名称，仅用于日志
	Name string `yaml:"name" json:"name"`

	Addr           string        `yaml:"addr" json:"addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes" json:"max_header_bytes"`

	// 排空窗口：超过后强制关闭连接
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// TLS 证书与私钥，均非空时以 HTTPS 启动
	TLSCertFile string `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file" json:"tls_key_file"`
}

// DefaultConfig 返回默认服务器配置
func DefaultConfig() Config {
	return Config{
		Name:            "api",
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 30 * time.Second,
	}
}

// TLSEnabled 判断是否启用 HTTPS
func (c Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// NewManager 创建服务器管理器
func NewManager(handler http.Handler, config Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Name == "" {
		config.Name = "api"
	}
	baseCtx, cancel := context.WithCancel(context.Background())

	srv := &http.Server{
		Addr:           config.Addr,
		Handler:        handler,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
		BaseContext:    func(net.Listener) context.Context { return baseCtx },
	}
	if config.TLSEnabled() {
		srv.TLSConfig = tlsutil.DefaultTLSConfig()
	}

	return &Manager{
		srv:        srv,
		errCh:      make(chan error, 1),
		config:     config,
		baseCtx:    baseCtx,
		cancelBase: cancel,
		logger: logger.With(
			zap.String("component", "http_server"),
			zap.String("server", config.Name),
		),
	}
}

// Start 监听并在后台服务，不阻塞
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.closed:
		return fmt.Errorf("%s server is closed", m.config.Name)
	case m.listener != nil:
		return fmt.Errorf("%s server already started", m.config.Name)
	}

	ln, err := net.Listen("tcp", m.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.config.Addr, err)
	}
	m.listener = ln

	m.logger.Info("server listening",
		zap.String("addr", ln.Addr().String()),
		zap.Bool("tls", m.config.TLSEnabled()),
	)
	go m.serve(ln)
	return nil
}

func (m *Manager) serve(ln net.Listener) {
	var err error
	if m.config.TLSEnabled() {
		err = m.srv.ServeTLS(ln, m.config.TLSCertFile, m.config.TLSKeyFile)
	} else {
		err = m.srv.Serve(ln)
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return
	}
	m.logger.Error("server failed", zap.Error(err))
	select {
	case m.errCh <- err:
	default:
	}
}

// Shutdown 停止接收新请求并等待在途请求完成。
// 排空超时后取消请求上下文并强制关闭连接。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.listener = nil
	m.logger.Info("draining server", zap.Duration("timeout", m.config.ShutdownTimeout))

	drainCtx := ctx
	if m.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		drainCtx, cancel = context.WithTimeout(ctx, m.config.ShutdownTimeout)
		defer cancel()
	}

	err := m.srv.Shutdown(drainCtx)
	m.cancelBase()
	if err != nil {
		m.logger.Warn("drain incomplete, closing connections", zap.Error(err))
		if cerr := m.srv.Close(); cerr != nil {
			return errors.Join(err, cerr)
		}
		return err
	}
	m.logger.Info("server stopped")
	return nil
}

// Errors 返回后台服务错误
func (m *Manager) Errors() <-chan error {
	return m.errCh
}

// Addr 返回配置的监听地址
func (m *Manager) Addr() string {
	return m.config.Addr
}

// ListenAddr 返回实际监听地址，未启动时为空
func (m *Manager) ListenAddr() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// IsRunning 未关闭即视为运行中
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed
}
