// =============================================================================
// 📦 StepFlow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("STEPFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 StepFlow 的完整配置结构
type Config struct {
	// Server HTTP 服务配置
	Server ServerConfig `yaml:"server" json:"server" env:"SERVER"`

	// Engine 工作流引擎配置
	Engine EngineConfig `yaml:"engine" json:"engine" env:"ENGINE"`

	// Budget 预算配置
	Budget BudgetConfig `yaml:"budget" json:"budget" env:"BUDGET"`

	// Cache 缓存兜底配置
	Cache CacheConfig `yaml:"cache" json:"cache" env:"CACHE"`

	// Privacy PII 令牌化配置
	Privacy PrivacyConfig `yaml:"privacy" json:"privacy" env:"PRIVACY"`

	// Redis 连接配置
	Redis RedisConfig `yaml:"redis" json:"redis" env:"REDIS"`

	// Database 审计数据库配置
	Database DatabaseConfig `yaml:"database" json:"database" env:"DATABASE"`

	// JWT 认证配置
	JWT JWTConfig `yaml:"jwt" json:"jwt" env:"JWT"`

	// Log 日志配置
	Log LogConfig `yaml:"log" json:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" json:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" json:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每秒请求数限制，<= 0 表示不限流
	RateLimitRPS float64 `yaml:"rate_limit_rps" json:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" json:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// CORS 允许的来源
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" json:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// TLS 证书与私钥，均非空时启用 HTTPS
	TLSCertFile string `yaml:"tls_cert_file" json:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile  string `yaml:"tls_key_file" json:"tls_key_file" env:"TLS_KEY_FILE"`
}

// EngineConfig 工作流引擎配置
type EngineConfig struct {
	// 工作流默认超时
	WorkflowTimeout time.Duration `yaml:"workflow_timeout" json:"workflow_timeout" env:"WORKFLOW_TIMEOUT"`
	// 步骤默认重试次数
	DefaultRetries int `yaml:"default_retries" json:"default_retries" env:"DEFAULT_RETRIES"`
	// 每千 token 价格
	PricePerThousandTokens float64 `yaml:"price_per_thousand_tokens" json:"price_per_thousand_tokens" env:"PRICE_PER_THOUSAND_TOKENS"`
	// 高 token 用量阈值（每步平均）
	HighTokenThreshold float64 `yaml:"high_token_threshold" json:"high_token_threshold" env:"HIGH_TOKEN_THRESHOLD"`
	// 延迟目标（毫秒）
	LatencyTargetMs int64 `yaml:"latency_target_ms" json:"latency_target_ms" env:"LATENCY_TARGET_MS"`
	// token 估算器: bytes, tiktoken
	Estimator string `yaml:"estimator" json:"estimator" env:"ESTIMATOR"`
	// tiktoken 编码
	TiktokenEncoding string `yaml:"tiktoken_encoding" json:"tiktoken_encoding" env:"TIKTOKEN_ENCODING"`
	// 启动时注册内置演示工具
	BuiltinTools bool `yaml:"builtin_tools" json:"builtin_tools" env:"BUILTIN_TOOLS"`
}

// BudgetConfig 预算配置
type BudgetConfig struct {
	// 后端: memory, redis
	Backend string `yaml:"backend" json:"backend" env:"BACKEND"`
	// 未知上下文的默认额度
	DefaultAllowance int `yaml:"default_allowance" json:"default_allowance" env:"DEFAULT_ALLOWANCE"`
	// 告警阈值 0.0-1.0
	AlertThreshold float64 `yaml:"alert_threshold" json:"alert_threshold" env:"ALERT_THRESHOLD"`
	// 是否写审计
	AuditEnabled bool `yaml:"audit_enabled" json:"audit_enabled" env:"AUDIT_ENABLED"`
	// 审计异步队列大小
	AuditQueueSize int `yaml:"audit_queue_size" json:"audit_queue_size" env:"AUDIT_QUEUE_SIZE"`
	// 审计异步 worker 数
	AuditWorkers int `yaml:"audit_workers" json:"audit_workers" env:"AUDIT_WORKERS"`
}

// CacheConfig 缓存兜底配置
type CacheConfig struct {
	// 后端: none, memory, redis
	Backend string `yaml:"backend" json:"backend" env:"BACKEND"`
	// 条目有效期
	TTL time.Duration `yaml:"ttl" json:"ttl" env:"TTL"`
	// 最大条目数（memory）
	MaxEntries int `yaml:"max_entries" json:"max_entries" env:"MAX_ENTRIES"`
	// 不参与缓存的工具
	ExcludedTools []string `yaml:"excluded_tools" json:"excluded_tools" env:"EXCLUDED_TOOLS"`
}

// PrivacyConfig PII 配置
type PrivacyConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" json:"enabled" env:"ENABLED"`
	// 启用的 PII 类型，为空表示全部
	Types []string `yaml:"types" json:"types" env:"TYPES"`
	// 令牌哈希盐
	TokenSalt string `yaml:"token_salt" json:"token_salt" env:"TOKEN_SALT"`
	// 在内存中保留令牌到原文的映射，进程退出即丢弃
	KeepOriginals bool `yaml:"keep_originals" json:"keep_originals" env:"KEEP_ORIGINALS"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" json:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" json:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" json:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" json:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" json:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 健康检查间隔
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
	// 启用 TLS 连接
	TLS bool `yaml:"tls" json:"tls" env:"TLS"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: sqlite, postgres, mysql；为空表示不启用
	Driver string `yaml:"driver" json:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" json:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" json:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" json:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" json:"password" env:"PASSWORD"`
	// 数据库名（sqlite 为文件路径）
	Name string `yaml:"name" json:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" json:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" json:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" json:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// JWTConfig JWT 认证配置
type JWTConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" json:"enabled" env:"ENABLED"`
	// HMAC 密钥
	Secret string `yaml:"secret" json:"secret" env:"SECRET"`
	// 签发者，非空时校验
	Issuer string `yaml:"issuer" json:"issuer" env:"ISSUER"`
	// 受众，非空时校验
	Audience string `yaml:"audience" json:"audience" env:"AUDIENCE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" json:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" json:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" json:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" json:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" json:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" json:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" json:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" json:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" json:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "STEPFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}

	if c.Engine.WorkflowTimeout <= 0 {
		errs = append(errs, "engine.workflow_timeout must be positive")
	}
	if c.Engine.DefaultRetries < 1 {
		errs = append(errs, "engine.default_retries must be at least 1")
	}
	if c.Engine.PricePerThousandTokens < 0 {
		errs = append(errs, "engine.price_per_thousand_tokens must be non-negative")
	}
	switch c.Engine.Estimator {
	case "", "bytes", "tiktoken":
	default:
		errs = append(errs, fmt.Sprintf("unknown engine.estimator %q", c.Engine.Estimator))
	}

	switch c.Budget.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("unknown budget.backend %q", c.Budget.Backend))
	}
	if c.Budget.DefaultAllowance < 0 {
		errs = append(errs, "budget.default_allowance must be non-negative")
	}
	if c.Budget.AlertThreshold < 0 || c.Budget.AlertThreshold > 1 {
		errs = append(errs, "budget.alert_threshold must be between 0 and 1")
	}

	switch c.Cache.Backend {
	case "", "none", "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("unknown cache.backend %q", c.Cache.Backend))
	}

	switch c.Database.Driver {
	case "", "sqlite", "postgres", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("unknown database.driver %q", c.Database.Driver))
	}
	if c.JWT.Enabled && c.JWT.Secret == "" {
		errs = append(errs, "jwt.secret is required when jwt is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// UsesRedis 判断是否有组件需要 Redis
func (c *Config) UsesRedis() bool {
	return c.Budget.Backend == "redis" || c.Cache.Backend == "redis"
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
