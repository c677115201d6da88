package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Database drivers understood by db.Open.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Config holds application level configuration loaded from environment variables.
type Config struct {
	ServerPort    string        `env:"SERVER_PORT" envDefault:"5000"`
	DBDriver      string        `env:"DB_DRIVER" envDefault:"sqlite"`
	MySQLDSN      string        `env:"MYSQL_DSN" envDefault:"user:password@tcp(localhost:3306)/ledger?charset=utf8mb4&parseTime=True&loc=Local"`
	SQLiteDSN     string        `env:"SQLITE_DSN" envDefault:"ledger.db?_foreign_keys=on"`
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	RedisPass     string        `env:"REDIS_PASSWORD"`
	JWTSecret     string        `env:"JWT_SECRET" envDefault:"change-me"`
	TokenTTL      time.Duration `env:"TOKEN_TTL" envDefault:"30m"`
	AdminPassword string        `env:"ADMIN_PASSWORD" envDefault:"admin"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
	SwaggerHost   string        `env:"SWAGGER_HOST"`
	ResetDB       bool          `env:"RESET_DB" envDefault:"false"`
}

// Load builds Config from the environment, after applying an optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DBDriver != DriverSQLite && cfg.DBDriver != DriverMySQL {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("TOKEN_TTL must be positive, got %s", cfg.TokenTTL)
	}
	return cfg, nil
}
