// Package config loads the gateway configuration from file, environment,
// and defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the gateway.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Redis     RedisConfig     `mapstructure:"redis"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	SendGrid  SendGridConfig  `mapstructure:"sendgrid"`
	Transport TransportConfig `mapstructure:"transport"`
	Queues    QueuesConfig    `mapstructure:"queues"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the HTTP listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RedisConfig holds broker backend configuration.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SMTPConfig holds the primary relay configuration.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// StartTLS upgrades the connection after the initial handshake.
	StartTLS bool `mapstructure:"starttls"`
	// SSL dials with implicit TLS (typically port 465). Mutually exclusive
	// with StartTLS.
	SSL bool `mapstructure:"ssl"`
}

// SendGridConfig holds the fallback transport configuration.
type SendGridConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// TransportConfig holds settings shared by all transports.
type TransportConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// QueuesConfig names the broker queues.
type QueuesConfig struct {
	Default string `mapstructure:"default"`
	Send    string `mapstructure:"send"`
	Error   string `mapstructure:"error"`
}

// Names returns all queue names, for broker setup.
func (c QueuesConfig) Names() []string {
	return []string{c.Default, c.Send, c.Error}
}

// WorkerConfig holds worker pool and retry policy configuration.
type WorkerConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
}

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/mailgate")

	setDefaults(v)

	// Config file is optional; defaults and env vars cover everything.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("MAILGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the gateway cannot run without.
func (c *Config) Validate() error {
	if c.SMTP.Host == "" {
		return fmt.Errorf("config: smtp.host is required")
	}
	if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
		return fmt.Errorf("config: smtp.port %d is out of range", c.SMTP.Port)
	}
	if c.SMTP.StartTLS && c.SMTP.SSL {
		return fmt.Errorf("config: smtp.starttls and smtp.ssl are mutually exclusive")
	}
	if c.SendGrid.APIKey == "" {
		return fmt.Errorf("config: sendgrid.api_key is required")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("config: worker.concurrency must be positive")
	}
	if c.Worker.MaxAttempts < 0 {
		return fmt.Errorf("config: worker.max_attempts must not be negative")
	}
	if c.Worker.RetryDelay <= 0 {
		return fmt.Errorf("config: worker.retry_delay must be positive")
	}
	for _, q := range c.Queues.Names() {
		if q == "" {
			return fmt.Errorf("config: queue names must not be empty")
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// SMTP defaults
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.starttls", true)
	v.SetDefault("smtp.ssl", false)

	// SendGrid defaults
	v.SetDefault("sendgrid.api_key", "")

	// Transport defaults
	v.SetDefault("transport.timeout", "15s")

	// Queue defaults
	v.SetDefault("queues.default", "default")
	v.SetDefault("queues.send", "send")
	v.SetDefault("queues.error", "error")

	// Worker defaults
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.max_attempts", 3)
	v.SetDefault("worker.retry_delay", "60s")
	v.SetDefault("worker.poll_timeout", "2s")
}
