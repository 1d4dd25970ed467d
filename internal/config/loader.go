package config

import (
	"errors"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/turtacn/realmkeys/pkg/constants"
)

// Loader reads configuration from file, environment variables and defaults.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader. An empty configFile searches /etc/realmkeys and the working directory.
func NewLoader(configFile string) *Loader {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/realmkeys/")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("REALMKEYS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.admin_token", "")
	v.SetDefault("server.cookie_secure", true)
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.sessions", "memory")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", "30m")
	v.SetDefault("database.max_conn_idle_time", "5m")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.key_prefix", "realmkeys")
	v.SetDefault("vault.mount_path", "secret")
	v.SetDefault("vault.base_path", "realmkeys/keys")
	v.SetDefault("kafka.lifecycle_topic", "realmkeys.key-lifecycle")
	v.SetDefault("kafka.write_timeout", "10s")
	v.SetDefault("kafka.batch_timeout", "10ms")
	v.SetDefault("kafka.required_acks", -1)
	v.SetDefault("keys.default_algorithm", string(constants.DefaultJWTAlgorithm))
	v.SetDefault("keys.material_cache_size", 1024)
	v.SetDefault("keys.tenant_cache_size", constants.RegistryTenantCapacity)
	v.SetDefault("tokens.issuer_base_url", "http://localhost:8080")
	v.SetDefault("tokens.access_token_ttl", constants.AccessTokenDefaultTTL.String())
	v.SetDefault("tokens.refresh_token_ttl", constants.RefreshTokenDefaultTTL.String())
	v.SetDefault("tokens.session_ttl", constants.SessionDefaultTTL.String())
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.attempts", 20)
	v.SetDefault("rate_limit.window", "1m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("tracing.service_name", "realmkeys")
	v.SetDefault("tracing.sampling_rate", 1.0)
}

// Load reads and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// OnLogLevelChange watches the config file and calls fn with the new log.level on every change.
func (l *Loader) OnLogLevelChange(fn func(level string)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if e.Has(fsnotify.Write) || e.Has(fsnotify.Create) {
			fn(l.v.GetString("log.level"))
		}
	})
	l.v.WatchConfig()
}
