package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Supported database drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	DiscordToken     string `env:"DISCORD_TOKEN,notEmpty"`
	ApplicationID    string `env:"DISCORD_APPLICATION_ID"`
	GuildID          string `env:"GUILD_ID"`
	ChatBannedRoleID string `env:"CHAT_BANNED_ROLE_ID"`

	AllowListPath string `env:"ALLOW_LIST_PATH" envDefault:"clear_users.txt"`

	DBDriver string      `env:"DB_DRIVER" envDefault:"sqlite"`
	DBPath   string      `env:"DB_PATH" envDefault:"database.db"`
	MySQL    MySQLConfig `envPrefix:"MYSQL_"`

	SweepInterval  time.Duration `env:"SWEEP_INTERVAL" envDefault:"60s"`
	ConfirmTimeout time.Duration `env:"CONFIRM_TIMEOUT" envDefault:"30s"`

	MetricsAddr string `env:"METRICS_ADDR"`
}

// MySQLConfig holds the connection parameters used when DBDriver is mysql.
type MySQLConfig struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"3306"`
	User     string `env:"USER"`
	Password string `env:"PASSWORD"`
	Database string `env:"DATABASE"`
}

// DSN returns a go-sql-driver/mysql data source name. Times are read and written in UTC.
func (m MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		m.User, m.Password, m.Host, m.Port, m.Database)
}

// Load loads environment variables and returns a Config.
// If path is non-empty, it loads from that file and returns an error if the file cannot be loaded.
// If path is empty, it optionally loads .env from the current working directory; if no .env file
// exists, it does not error. DISCORD_TOKEN must be set either way.
func Load(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	} else {
		_ = godotenv.Load() // optional: ignore error if .env not present
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values env parsing cannot express.
func (c *Config) Validate() error {
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH is empty")
		}
	case DriverMySQL:
		if c.MySQL.Database == "" {
			return fmt.Errorf("MYSQL_DATABASE is not set (required when DB_DRIVER=mysql)")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q (want sqlite or mysql)", c.DBDriver)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", c.SweepInterval)
	}
	if c.ConfirmTimeout <= 0 {
		return fmt.Errorf("CONFIRM_TIMEOUT must be positive, got %s", c.ConfirmTimeout)
	}
	return nil
}
