package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/openworm/wormgraph/internal/enrichment"
	"github.com/openworm/wormgraph/internal/identity"
	"github.com/openworm/wormgraph/internal/observability"
	"github.com/openworm/wormgraph/internal/resilience"
	"github.com/openworm/wormgraph/internal/security"
)

// EnvPrefix prefixes every environment override, e.g. WORMGRAPH_STORE_TYPE.
const EnvPrefix = "WORMGRAPH"

type Config struct {
	Server      ServerConfig                `mapstructure:"server"`
	Store       StoreConfig                 `mapstructure:"store"`
	Search      SearchConfig                `mapstructure:"search"`
	Cache       CacheConfig                 `mapstructure:"cache"`
	Lock        LockConfig                  `mapstructure:"lock"`
	Redis       RedisConfig                 `mapstructure:"redis"`
	Enrichment  EnrichmentConfig            `mapstructure:"enrichment"`
	Identity    IdentityConfig              `mapstructure:"identity"`
	Engine      EngineConfig                `mapstructure:"engine"`
	Logging     observability.LoggingConfig `mapstructure:"logging"`
	Metrics     observability.MetricsConfig `mapstructure:"metrics"`
	Tracing     observability.TracingConfig `mapstructure:"tracing"`
	Security    SecurityConfig              `mapstructure:"security"`
	Environment string                      `mapstructure:"environment"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// StoreConfig selects the statement store.
type StoreConfig struct {
	Type     string         `mapstructure:"type"` // postgres, sqlite or memory
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
}

type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// SearchConfig selects the document index. Type "none" disables search.
type SearchConfig struct {
	Type                string        `mapstructure:"type"` // typesense, memory or none
	URL                 string        `mapstructure:"url"`
	APIKey              string        `mapstructure:"api_key"`
	Collection          string        `mapstructure:"collection"`
	Timeout             time.Duration `mapstructure:"timeout"`
	NumRetries          int           `mapstructure:"num_retries"`
	RetryInterval       time.Duration `mapstructure:"retry_interval"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
}

// CacheConfig configures the cache of fetched enrichment records.
type CacheConfig struct {
	Type            string        `mapstructure:"type"` // memory or redis
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	KeyPrefix       string        `mapstructure:"key_prefix"`
}

type LockConfig struct {
	Type        string        `mapstructure:"type"` // memory or redis
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	MaxWaitTime time.Duration `mapstructure:"max_wait_time"`
}

// RedisConfig is shared by the redis cache and the redis lock.
type RedisConfig struct {
	URL            string        `mapstructure:"url"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

type EnrichmentConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`

	WormBase SourceConfig       `mapstructure:"wormbase"`
	PubMed   PubMedSourceConfig `mapstructure:"pubmed"`
	CrossRef SourceConfig       `mapstructure:"crossref"`

	// RateLimits holds requests per second by source name; DefaultRate
	// applies to the rest.
	RateLimits  map[string]float64 `mapstructure:"rate_limits"`
	DefaultRate float64            `mapstructure:"default_rate"`
	Burst       int                `mapstructure:"burst"`

	Retry          resilience.RetryConfig          `mapstructure:"retry"`
	CircuitBreaker resilience.CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

type SourceConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type PubMedSourceConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

type IdentityConfig struct {
	Hash string `mapstructure:"hash"` // sha224, sha256 or sha512
}

type EngineConfig struct {
	TxTimeout time.Duration `mapstructure:"tx_timeout"`
	BatchSize int           `mapstructure:"batch_size"`
}

type SecurityConfig struct {
	RateLimit   security.RateLimitConfig `mapstructure:"rate_limit"`
	Sanitizer   security.SanitizerConfig `mapstructure:"sanitizer"`
	MaxBodySize int64                    `mapstructure:"max_body_size"`
}

// LoadConfig reads configPath, or wormgraph.yaml from the usual places when
// configPath is empty, and applies WORMGRAPH_ environment overrides.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("wormgraph")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/wormgraph/")
		v.AddConfigPath("$HOME/.wormgraph/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("server.cors.allowed_origins", []string{"https://*", "http://*"})

	v.SetDefault("store.type", "sqlite")
	v.SetDefault("store.postgres.host", "localhost")
	v.SetDefault("store.postgres.port", 5432)
	v.SetDefault("store.postgres.database", "wormgraph")
	v.SetDefault("store.postgres.username", "postgres")
	v.SetDefault("store.postgres.password", "postgres")
	v.SetDefault("store.postgres.ssl_mode", "disable")
	v.SetDefault("store.postgres.max_conns", 25)
	v.SetDefault("store.postgres.min_conns", 2)
	v.SetDefault("store.postgres.conn_max_lifetime", "1h")
	v.SetDefault("store.postgres.conn_max_idle_time", "30m")
	v.SetDefault("store.postgres.migrate_on_start", true)
	v.SetDefault("store.sqlite.path", "wormgraph.db")

	v.SetDefault("search.type", "memory")
	v.SetDefault("search.url", "http://localhost:8108")
	v.SetDefault("search.api_key", "")
	v.SetDefault("search.collection", "documents")
	v.SetDefault("search.timeout", "5s")
	v.SetDefault("search.num_retries", 3)
	v.SetDefault("search.retry_interval", "1s")
	v.SetDefault("search.health_check_interval", "30s")

	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.cleanup_interval", "10m")
	v.SetDefault("cache.key_prefix", "wormgraph:")

	v.SetDefault("lock.type", "memory")
	v.SetDefault("lock.default_ttl", "30s")
	v.SetDefault("lock.key_prefix", "wormgraph:lock:")
	v.SetDefault("lock.retry_delay", "50ms")
	v.SetDefault("lock.max_wait_time", "30s")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.connect_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")

	v.SetDefault("enrichment.enabled", true)
	v.SetDefault("enrichment.timeout", "20s")
	v.SetDefault("enrichment.user_agent", "wormgraph")
	v.SetDefault("enrichment.wormbase.base_url", enrichment.DefaultWormBaseURL)
	v.SetDefault("enrichment.pubmed.base_url", enrichment.DefaultPubMedURL)
	v.SetDefault("enrichment.pubmed.api_key", "")
	v.SetDefault("enrichment.crossref.base_url", enrichment.DefaultCrossRefURL)
	// NCBI allows three requests per second without an API key.
	v.SetDefault("enrichment.rate_limits", map[string]float64{enrichment.SourcePubMed: 3})
	v.SetDefault("enrichment.default_rate", 5.0)
	v.SetDefault("enrichment.burst", 1)
	v.SetDefault("enrichment.retry.enabled", true)
	v.SetDefault("enrichment.retry.max_attempts", 3)
	v.SetDefault("enrichment.retry.initial_delay", "200ms")
	v.SetDefault("enrichment.retry.max_delay", "5s")
	v.SetDefault("enrichment.retry.backoff_multiplier", 2.0)
	v.SetDefault("enrichment.retry.jitter_enabled", true)
	v.SetDefault("enrichment.retry.jitter_factor", 0.1)
	v.SetDefault("enrichment.circuit_breaker.enabled", true)
	v.SetDefault("enrichment.circuit_breaker.max_requests", 1)
	v.SetDefault("enrichment.circuit_breaker.interval", "60s")
	v.SetDefault("enrichment.circuit_breaker.timeout", "30s")
	v.SetDefault("enrichment.circuit_breaker.failure_threshold", 5)

	v.SetDefault("identity.hash", "sha224")

	v.SetDefault("engine.tx_timeout", "30s")
	v.SetDefault("engine.batch_size", 100)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "wormgraph")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.jaeger_url", "http://localhost:14268/api/traces")
	v.SetDefault("tracing.service_name", "wormgraph")
	v.SetDefault("tracing.sample_rate", 1.0)

	v.SetDefault("security.rate_limit.enabled", true)
	v.SetDefault("security.rate_limit.requests_per_second", 100.0)
	v.SetDefault("security.rate_limit.burst_size", 200)
	v.SetDefault("security.rate_limit.cleanup_interval", "5m")
	v.SetDefault("security.rate_limit.ip_limit_enabled", true)
	v.SetDefault("security.rate_limit.ip_requests_per_second", 10.0)
	v.SetDefault("security.rate_limit.ip_burst_size", 20)
	v.SetDefault("security.sanitizer.enabled", true)
	v.SetDefault("security.sanitizer.max_string_length", 10000)
	v.SetDefault("security.sanitizer.strict_mode", false)
	v.SetDefault("security.max_body_size", 10<<20)

	v.SetDefault("environment", "development")
}

func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Store.Type {
	case "postgres":
		pg := config.Store.Postgres
		if pg.Host == "" {
			return fmt.Errorf("postgres host is required")
		}
		if pg.Database == "" {
			return fmt.Errorf("postgres database name is required")
		}
		if pg.Port <= 0 || pg.Port > 65535 {
			return fmt.Errorf("invalid postgres port: %d", pg.Port)
		}
	case "sqlite":
		if config.Store.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid store type: %s", config.Store.Type)
	}

	switch config.Search.Type {
	case "typesense":
		if config.Search.URL == "" {
			return fmt.Errorf("search URL is required")
		}
		if config.Search.APIKey == "" {
			return fmt.Errorf("search API key is required")
		}
	case "memory", "none":
	default:
		return fmt.Errorf("invalid search type: %s", config.Search.Type)
	}

	if !slices.Contains([]string{"memory", "redis"}, config.Cache.Type) {
		return fmt.Errorf("invalid cache type: %s", config.Cache.Type)
	}
	if !slices.Contains([]string{"memory", "redis"}, config.Lock.Type) {
		return fmt.Errorf("invalid lock type: %s", config.Lock.Type)
	}
	if config.Cache.Type == "redis" || config.Lock.Type == "redis" {
		if _, err := url.Parse(config.Redis.URL); err != nil || config.Redis.URL == "" {
			return fmt.Errorf("invalid redis url: %q", config.Redis.URL)
		}
	}

	if config.Enrichment.Enabled {
		for name, base := range map[string]string{
			enrichment.SourceWormBase: config.Enrichment.WormBase.BaseURL,
			enrichment.SourcePubMed:   config.Enrichment.PubMed.BaseURL,
			enrichment.SourceCrossRef: config.Enrichment.CrossRef.BaseURL,
		} {
			u, err := url.Parse(base)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return fmt.Errorf("invalid %s base url: %q", name, base)
			}
		}
	}

	if _, err := identity.HashFuncByName(config.Identity.Hash); err != nil {
		return err
	}

	validLevels := []observability.LogLevel{
		observability.LogLevelDebug, observability.LogLevelInfo,
		observability.LogLevelWarn, observability.LogLevelError,
	}
	if !slices.Contains(validLevels, config.Logging.Level) {
		return fmt.Errorf("invalid logging level: %s", config.Logging.Level)
	}
	if config.Logging.Format != observability.LogFormatJSON && config.Logging.Format != observability.LogFormatConsole {
		return fmt.Errorf("invalid logging format: %s", config.Logging.Format)
	}

	return nil
}

func (c *Config) GetDatabaseURL() string {
	pg := c.Store.Postgres
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(pg.Username, pg.Password),
		Host:     fmt.Sprintf("%s:%d", pg.Host, pg.Port),
		Path:     "/" + pg.Database,
		RawQuery: "sslmode=" + url.QueryEscape(pg.SSLMode),
	}
	return u.String()
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// HashFunc returns the digest configured for hashed identifiers.
func (c *Config) HashFunc() identity.HashFunc {
	hf, err := identity.HashFuncByName(c.Identity.Hash)
	if err != nil {
		return identity.DefaultHashFunc
	}
	return hf
}
