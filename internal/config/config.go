package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/turtacn/realmkeys/pkg/constants"
)

// Config holds the application's configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Vault     VaultConfig     `mapstructure:"vault"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Keys      KeysConfig      `mapstructure:"keys"`
	Tokens    TokensConfig    `mapstructure:"tokens"`
	Users     []UserConfig    `mapstructure:"users"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PprofEnabled bool          `mapstructure:"pprof_enabled"`
	// AdminToken guards the /admin routes. Empty disables the check.
	AdminToken   string   `mapstructure:"admin_token"`
	CookieSecure bool     `mapstructure:"cookie_secure"`
	CORSOrigins  []string `mapstructure:"cors_origins"`
}

// StoreConfig selects the key record store backend: memory, postgres or vault.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	// Sessions selects the session store backend: memory or redis.
	Sessions string `mapstructure:"sessions"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

type RedisConfig struct {
	Addresses    []string `mapstructure:"addresses"`
	Password     string   `mapstructure:"password"`
	DB           int      `mapstructure:"db"`
	PoolSize     int      `mapstructure:"pool_size"`
	MinIdleConns int      `mapstructure:"min_idle_conns"`
	KeyPrefix    string   `mapstructure:"key_prefix"`
}

type VaultConfig struct {
	Address   string `mapstructure:"address"`
	Token     string `mapstructure:"token"`
	MountPath string `mapstructure:"mount_path"`
	// BasePath is the path below the KV v2 mount where key records are kept.
	BasePath string `mapstructure:"base_path"`
}

type KafkaConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Brokers        []string      `mapstructure:"brokers"`
	LifecycleTopic string        `mapstructure:"lifecycle_topic"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	BatchTimeout   time.Duration `mapstructure:"batch_timeout"`
	RequiredAcks   int           `mapstructure:"required_acks"`
	SigningSecret  string        `mapstructure:"signing_secret"`
}

// KeysConfig configures the key registry and startup bootstrap.
type KeysConfig struct {
	DefaultAlgorithm string `mapstructure:"default_algorithm"`
	// MaterialCacheSize bounds the parsed key material cache.
	MaterialCacheSize int `mapstructure:"material_cache_size"`
	// TenantCacheSize bounds how many realms keep a cached key view.
	TenantCacheSize int                  `mapstructure:"tenant_cache_size"`
	Bootstrap       []BootstrapKeyConfig `mapstructure:"bootstrap"`
}

// BootstrapKeyConfig requests a generated key for a tenant that has no active key at startup.
type BootstrapKeyConfig struct {
	Tenant   string `mapstructure:"tenant"`
	Provider string `mapstructure:"provider"`
	Priority int64  `mapstructure:"priority"`
	KeySize  int    `mapstructure:"key_size"`
}

type TokensConfig struct {
	// IssuerBaseURL is combined with the realm into the iss claim: {base}/realms/{realm}.
	IssuerBaseURL   string        `mapstructure:"issuer_base_url"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
	SessionTTL      time.Duration `mapstructure:"session_ttl"`
}

// UserConfig is a statically configured realm user. PasswordHash is a bcrypt hash.
type UserConfig struct {
	Tenant       string `mapstructure:"tenant"`
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
	Email        string `mapstructure:"email"`
}

// RateLimitConfig throttles password grants and logins per realm and client address.
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Attempts int64         `mapstructure:"attempts"`
	Window   time.Duration `mapstructure:"window"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	Environment    string  `mapstructure:"environment"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

// Validate checks for essential configuration values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Store.Driver {
	case "memory", "postgres", "vault":
	default:
		return fmt.Errorf("store.driver %q must be one of memory, postgres, vault", c.Store.Driver)
	}
	switch c.Store.Sessions {
	case "memory", "redis":
	default:
		return fmt.Errorf("store.sessions %q must be memory or redis", c.Store.Sessions)
	}
	if c.Store.Driver == "vault" && c.Vault.Address == "" {
		return fmt.Errorf("vault.address is required for the vault store")
	}
	if c.Store.Sessions == "redis" && len(c.Redis.Addresses) == 0 {
		return fmt.Errorf("redis.addresses is required for the redis session store")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.LifecycleTopic == "") {
		return fmt.Errorf("kafka.brokers and kafka.lifecycle_topic are required when kafka is enabled")
	}
	switch constants.JWTAlgorithm(c.Keys.DefaultAlgorithm) {
	case constants.AlgorithmRS256, constants.AlgorithmES256:
	default:
		return fmt.Errorf("keys.default_algorithm %q is not supported", c.Keys.DefaultAlgorithm)
	}
	for i, b := range c.Keys.Bootstrap {
		if strings.TrimSpace(b.Tenant) == "" {
			return fmt.Errorf("keys.bootstrap[%d].tenant is required", i)
		}
	}
	if c.RateLimit.Enabled && (c.RateLimit.Attempts <= 0 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("rate_limit.attempts and rate_limit.window must be positive")
	}
	if c.Tokens.AccessTokenTTL <= 0 || c.Tokens.RefreshTokenTTL <= 0 || c.Tokens.SessionTTL <= 0 {
		return fmt.Errorf("tokens ttl values must be positive")
	}
	return nil
}
