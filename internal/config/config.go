// Package config loads cp-server settings from an optional YAML file, an optional .env
// file and CODEPILOT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CODEPILOT_DATABASE_DSN.
const EnvPrefix = "CODEPILOT"

// Config holds all configuration for cp-server.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Limiter  LimiterConfig  `mapstructure:"limiter"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds gRPC listener settings. TLS is enabled when both files are set.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	TLSCert         string        `mapstructure:"tlsCert"`
	TLSKey          string        `mapstructure:"tlsKey"`
	Dev             bool          `mapstructure:"dev"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

// DatabaseConfig holds the PostgreSQL DSN and pool sizing.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"maxConns"`
	MinConns        int32         `mapstructure:"minConns"`
	MaxConnLifetime time.Duration `mapstructure:"maxConnLifetime"`
}

// RedisConfig enables the Redis change feed and limiter when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig holds token settings.
type AuthConfig struct {
	JWTKey    string        `mapstructure:"jwtKey"`
	AccessTTL time.Duration `mapstructure:"accessTTL"`
}

// LimiterConfig holds login throttling settings.
type LimiterConfig struct {
	Window   time.Duration `mapstructure:"window"`
	MaxFails int           `mapstructure:"maxFails"`
	BlockFor time.Duration `mapstructure:"blockFor"`
}

// KafkaConfig enables usage export when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// MetricsConfig holds the Prometheus listener address; empty disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LedgerConfig holds periodic ledger maintenance settings.
type LedgerConfig struct {
	ResetInterval time.Duration `mapstructure:"resetInterval"`
}

// LogConfig selects the logger.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration. path may be empty, in which case only defaults, .env and
// the environment apply.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	var problems []error
	if c.Auth.JWTKey == "" {
		problems = append(problems, errors.New("auth.jwtKey is required"))
	}
	if c.Database.DSN == "" {
		problems = append(problems, errors.New("database.dsn is required"))
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		problems = append(problems, errors.New("server.tlsCert and server.tlsKey must be set together"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		problems = append(problems, errors.New("kafka.topic is required with kafka.brokers"))
	}
	return errors.Join(problems...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8443")
	v.SetDefault("server.tlsCert", "")
	v.SetDefault("server.tlsKey", "")
	v.SetDefault("server.dev", false)
	v.SetDefault("server.shutdownTimeout", "5s")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.maxConns", 10)
	v.SetDefault("database.minConns", 0)
	v.SetDefault("database.maxConnLifetime", "30m")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.jwtKey", "")
	v.SetDefault("auth.accessTTL", "15m")

	v.SetDefault("limiter.window", "15m")
	v.SetDefault("limiter.maxFails", 5)
	v.SetDefault("limiter.blockFor", "15m")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "codepilot.usage")

	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("ledger.resetInterval", "1h")

	v.SetDefault("log.level", "info")
}
