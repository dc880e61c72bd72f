// Package config loads PropDesk configuration from file and environment.
// Every key has a sane default, so a bare binary starts against SQLite
// with log-only notifications.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Escalation    EscalationConfig    `mapstructure:"escalation"`
	Redis         RedisConfig         `mapstructure:"redis"`
	SMTP          SMTPConfig          `mapstructure:"smtp"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// DatabaseConfig selects the SQL driver and its DSN. MySQL DSNs must include
// parseTime=true so timestamps scan into time.Time.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// EscalationConfig tunes the sweep engine.
type EscalationConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	Workers      int           `mapstructure:"workers"`
	SweepTimeout time.Duration `mapstructure:"sweep_timeout"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// RedisConfig points at the cache holding sweep status. An empty addr
// disables the cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	StartTLS bool   `mapstructure:"starttls"`
}

// NotificationsConfig holds the static role-to-user overrides. Roles not
// listed here resolve through the user directory.
type NotificationsConfig struct {
	Roles map[string]string `mapstructure:"roles"`
}

// Load reads configuration from the optional file at path, overlaid with
// PROPDESK_* environment variables (PROPDESK_DATABASE_DSN and friends).
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "propdesk.db")
	v.SetDefault("escalation.interval", "15m")
	v.SetDefault("escalation.workers", 4)
	v.SetDefault("escalation.sweep_timeout", "5m")
	v.SetDefault("escalation.fetch_timeout", "30s")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.starttls", true)

	v.SetEnvPrefix("PROPDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Database.Driver == "" {
		return fmt.Errorf("database.driver is required")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Escalation.Interval <= 0 {
		return fmt.Errorf("escalation.interval must be positive")
	}
	if c.Escalation.Workers <= 0 {
		return fmt.Errorf("escalation.workers must be positive")
	}
	return nil
}
