package config

import (
	"log"
	"strings"

	"github.com/GoPolymarket/extgate/internal/pkg/logger"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Events    EventsConfig    `mapstructure:"events"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	// Config keys of the external services to load, e.g. ["rates", "billing"].
	Services []string `mapstructure:"services"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type LogConfig struct {
	Level    string                          `mapstructure:"level"`
	Channels map[string]logger.ChannelConfig `mapstructure:"channels"`
}

type DatabaseConfig struct {
	DSN                    string `mapstructure:"dsn"`
	CleanupIntervalMinutes int    `mapstructure:"cleanup_interval_minutes"`
}

type RedisConfig struct {
	Addr                   string `mapstructure:"addr"`
	Password               string `mapstructure:"password"`
	DB                     int    `mapstructure:"db"`
	KeyPrefix              string `mapstructure:"key_prefix"`
	CacheDefaultTTLSeconds int    `mapstructure:"cache_default_ttl_seconds"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type EventsConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

type RateLimitConfig struct {
	QPS   float64 `mapstructure:"qps"`
	Burst int     `mapstructure:"burst"`
}

// PolicyConfig holds the global level of the policy chain. A nil flag
// inherits; a false flag disables the concern for every service.
type PolicyConfig struct {
	Caching PolicyCaching `mapstructure:"caching"`
	Logging PolicyLogging `mapstructure:"logging"`
}

type PolicyCaching struct {
	ShouldCache *bool `mapstructure:"should_cache"`
}

type PolicyLogging struct {
	ShouldLog          *bool `mapstructure:"should_log"`
	ShouldLogRequests  *bool `mapstructure:"should_log_requests"`
	ShouldLogResponses *bool `mapstructure:"should_log_responses"`
}

// Source is the hierarchical key-value lookup the service descriptors are
// read from. IsSet must distinguish an absent key from an explicit false.
// *viper.Viper satisfies it.
type Source interface {
	IsSet(key string) bool
	Get(key string) any
}

func Load() (*Config, *viper.Viper, error) {
	return LoadFrom("")
}

// LoadFrom reads the config file at path, or searches ./config.yaml and
// ./configs/config.yaml when path is empty.
func LoadFrom(path string) (*Config, *viper.Viper, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	// Environment variables support
	// e.g. EXTGATE_REDIS_ADDR
	v.SetEnvPrefix("extgate")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, nil, err
		}
	}

	cfg, err := Decode(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("database.cleanup_interval_minutes", 60)
	v.SetDefault("redis.key_prefix", "extcache:")
	v.SetDefault("redis.cache_default_ttl_seconds", 3600)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("events.workers", 4)
	v.SetDefault("events.queue_size", 1000)
	v.SetDefault("rate_limit.qps", 50)
	v.SetDefault("rate_limit.burst", 100)
}

// Decode unmarshals the application level settings from v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
