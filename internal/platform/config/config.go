// Package config loads process configuration with viper: built-in defaults,
// then an optional YAML file, then INFOSYNC_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"infosync/pkg/domain"
	dErrors "infosync/pkg/domain-errors"
)

// Config is the whole process configuration.
type Config struct {
	Service  Service     `mapstructure:"service"`
	Server   Server      `mapstructure:"server"`
	Database Database    `mapstructure:"database"`
	Dispatch Dispatch    `mapstructure:"dispatch"`
	Feedback Feedback    `mapstructure:"feedback"`
	Redis    RedisConfig `mapstructure:"redis"`
	Kafka    KafkaConfig `mapstructure:"kafka"`
	SMTP     SMTPConfig  `mapstructure:"smtp"`
	Auth     AuthConfig  `mapstructure:"auth"`
	Log      LogConfig   `mapstructure:"log"`
}

// Service says which peer this process plays.
type Service struct {
	System string `mapstructure:"system"`
	// CompanyName labels the insurer that owns an insurance-side deployment.
	// Upserts on the insurance side are refused while it is empty.
	CompanyName string `mapstructure:"company_name"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// Database selects the record and audit store backend.
type Database struct {
	Driver       string        `mapstructure:"driver"`
	DSN          string        `mapstructure:"dsn"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	TxTimeout    time.Duration `mapstructure:"tx_timeout"`
}

// Dispatch controls how propagation episodes reach downstream services.
type Dispatch struct {
	Mode           string                 `mapstructure:"mode"`
	Timeout        time.Duration          `mapstructure:"timeout"`
	MaxAttempts    int                    `mapstructure:"max_attempts"`
	BackoffInitial time.Duration          `mapstructure:"backoff_initial"`
	BackoffMax     time.Duration          `mapstructure:"backoff_max"`
	Parallel       bool                   `mapstructure:"parallel"`
	Workers        int                    `mapstructure:"workers"`
	QueueSize      int                    `mapstructure:"queue_size"`
	QueueKey       string                 `mapstructure:"queue_key"`
	Relay          bool                   `mapstructure:"relay"`
	Destinations   map[string]Destination `mapstructure:"destinations"`
}

// Destination is one downstream peer, keyed by its system name.
type Destination struct {
	URL             string `mapstructure:"url"`
	RequiresInsurer bool   `mapstructure:"requires_insurer"`
}

// Feedback configures acknowledgements sent from a downstream to the origin.
type Feedback struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RedisConfig configures the optional Redis dispatch queue.
type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// KafkaConfig configures the audit outbox relay. No brokers disables it.
type KafkaConfig struct {
	Brokers           []string      `mapstructure:"brokers"`
	ClientID          string        `mapstructure:"client_id"`
	AuditTopic        string        `mapstructure:"audit_topic"`
	Partitions        int32         `mapstructure:"partitions"`
	ReplicationFactor int16         `mapstructure:"replication_factor"`
	RelayInterval     time.Duration `mapstructure:"relay_interval"`
	BatchSize         int           `mapstructure:"batch_size"`
}

// SMTPConfig configures the notification email side channel. No host disables it.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// AuthConfig configures inter-service bearer tokens. No secret disables them.
type AuthConfig struct {
	ServiceTokenSecret string        `mapstructure:"service_token_secret"`
	TokenTTL           time.Duration `mapstructure:"token_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	ModeSync  = "sync"
	ModeAsync = "async"
	ModeRedis = "redis"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.system", string(domain.SystemHR))
	v.SetDefault("service.company_name", "")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_header_timeout", 5*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", DriverMemory)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.tx_timeout", 5*time.Second)

	v.SetDefault("dispatch.mode", ModeSync)
	v.SetDefault("dispatch.timeout", 10*time.Second)
	v.SetDefault("dispatch.max_attempts", 1)
	v.SetDefault("dispatch.backoff_initial", 500*time.Millisecond)
	v.SetDefault("dispatch.backoff_max", 5*time.Second)
	v.SetDefault("dispatch.parallel", true)
	v.SetDefault("dispatch.workers", 4)
	v.SetDefault("dispatch.queue_size", 64)
	v.SetDefault("dispatch.queue_key", "infosync:dispatch")
	v.SetDefault("dispatch.relay", false)
	v.SetDefault("dispatch.destinations.employee.url", "http://localhost:8081")
	v.SetDefault("dispatch.destinations.employee.requires_insurer", false)
	v.SetDefault("dispatch.destinations.insurance.url", "http://localhost:8082")
	v.SetDefault("dispatch.destinations.insurance.requires_insurer", true)

	v.SetDefault("feedback.enabled", true)
	v.SetDefault("feedback.url", "http://localhost:8080")
	v.SetDefault("feedback.timeout", 5*time.Second)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.client_id", "infosync")
	v.SetDefault("kafka.audit_topic", "infosync.audit")
	v.SetDefault("kafka.partitions", 3)
	v.SetDefault("kafka.replication_factor", 1)
	v.SetDefault("kafka.relay_interval", time.Second)
	v.SetDefault("kafka.batch_size", 100)

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 25)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "no-reply@infosync.local")

	v.SetDefault("auth.service_token_secret", "")
	v.SetDefault("auth.token_ttl", time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads configuration. path may be empty; overrides (typically CLI
// flags) win over every other source.
func Load(path string, overrides map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("INFOSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(*os.PathError); !ok {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}
	for key, value := range overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the process cannot run with.
func (c *Config) Validate() error {
	sys, err := domain.ParseSystem(c.Service.System)
	if err != nil {
		return err
	}
	switch c.Database.Driver {
	case DriverMemory:
	case DriverPostgres, DriverSQLite:
		if c.Database.DSN == "" {
			return dErrors.New(dErrors.CodeValidation, "database.dsn is required for driver "+c.Database.Driver)
		}
	default:
		return dErrors.New(dErrors.CodeValidation, "unknown database.driver "+c.Database.Driver)
	}
	switch c.Dispatch.Mode {
	case ModeSync, ModeAsync:
	case ModeRedis:
		if c.Redis.URL == "" {
			return dErrors.New(dErrors.CodeValidation, "redis.url is required for dispatch.mode redis")
		}
	default:
		return dErrors.New(dErrors.CodeValidation, "unknown dispatch.mode "+c.Dispatch.Mode)
	}
	if c.Dispatch.Timeout <= 0 {
		return dErrors.New(dErrors.CodeValidation, "dispatch.timeout must be positive")
	}
	if c.Dispatch.MaxAttempts < 1 {
		return dErrors.New(dErrors.CodeValidation, "dispatch.max_attempts must be at least 1")
	}
	for name := range c.ActiveDestinations() {
		if _, err := domain.ParseSystem(name); err != nil {
			return err
		}
	}
	if sys == domain.SystemInsurance && strings.TrimSpace(c.Service.CompanyName) == "" {
		return dErrors.New(dErrors.CodeValidation, "service.company_name is required for the insurance service")
	}
	return nil
}

// System returns the validated peer role.
func (c *Config) System() domain.System {
	return domain.System(strings.ToLower(strings.TrimSpace(c.Service.System)))
}

// ActiveDestinations returns the destinations this process dispatches to: all
// configured ones on the origin, and only when relaying on a downstream. A
// service never dispatches to itself, and entries without a URL are ignored.
func (c *Config) ActiveDestinations() map[string]Destination {
	self := c.System()
	if self != domain.SystemHR && !c.Dispatch.Relay {
		return nil
	}
	active := make(map[string]Destination, len(c.Dispatch.Destinations))
	for name, d := range c.Dispatch.Destinations {
		if strings.TrimSpace(d.URL) == "" || domain.System(strings.ToLower(name)) == self {
			continue
		}
		active[strings.ToLower(name)] = d
	}
	return active
}
