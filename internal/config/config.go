package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the detection service
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Context    ContextConfig    `mapstructure:"context"`
	Escalation EscalationConfig `mapstructure:"escalation"`
	Engine     EngineConfig     `mapstructure:"engine"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// LoggingConfig holds log level and format settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString builds a pgx connection string.
func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode,
	)
}

// RedisConfig holds Redis configuration for the suppression store
type RedisConfig struct {
	URL        string `mapstructure:"url"`
	Enabled    bool   `mapstructure:"enabled"`
	MaxRetries int    `mapstructure:"max_retries"`
	PoolSize   int    `mapstructure:"pool_size"`
}

// NATSConfig holds message bus configuration for finding lifecycle events
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

// ContextConfig holds context provider settings
type ContextConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// EscalationConfig holds case-management collaborator settings
type EscalationConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// EngineConfig holds detection engine tunables
type EngineConfig struct {
	MaxEventAgeSeconds          int      `mapstructure:"max_event_age_seconds"`
	MaxSupportingEvents         int      `mapstructure:"max_supporting_events"`
	MaxFindingsPerRequest       int      `mapstructure:"max_findings_per_request"`
	MaxBatchSize                int      `mapstructure:"max_batch_size"`
	MaxWorkersPerTenant         int      `mapstructure:"max_workers_per_tenant"`
	CorrelationTimeWindowSecs   int      `mapstructure:"correlation_time_window_seconds"`
	RetentionEvents             int      `mapstructure:"retention_events"`
	RetentionFindings           int      `mapstructure:"retention_findings"`
	AllowFindingsWithoutContext bool     `mapstructure:"allow_findings_without_context"`
	AllowedExplanationVariables []string `mapstructure:"allowed_explanation_variables"`
	RuleFile                    string   `mapstructure:"rule_file"`
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8087)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "detect")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "detect_engine")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)

	v.SetDefault("context.url", "http://localhost:8090")
	v.SetDefault("context.timeout", "2s")

	v.SetDefault("escalation.url", "http://localhost:8091")
	v.SetDefault("escalation.timeout", "5s")

	v.SetDefault("engine.max_event_age_seconds", 3600)
	v.SetDefault("engine.max_supporting_events", 50)
	v.SetDefault("engine.max_findings_per_request", 200)
	v.SetDefault("engine.max_batch_size", 200)
	v.SetDefault("engine.max_workers_per_tenant", 16)
	v.SetDefault("engine.correlation_time_window_seconds", 900)
	v.SetDefault("engine.retention_events", 10000)
	v.SetDefault("engine.retention_findings", 5000)
	v.SetDefault("engine.allow_findings_without_context", false)
	v.SetDefault("engine.allowed_explanation_variables", []string{
		"event_type", "asset_id", "identity_id", "metric_name", "metric_value",
		"baseline_value", "time_window", "multiplier", "missing_patches",
		"network_destination", "process_name",
	})
	v.SetDefault("engine.rule_file", "")

	// Read from config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables override file config
	v.SetEnvPrefix("DETECT")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
