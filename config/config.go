// Package config resolves the storefront settings from the environment.
// A .env file in the working directory is loaded first when present;
// variables already set in the process win over it.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skryldev/storefront/db"
)

// MinHashCost is the lowest bcrypt cost accepted outside tests.
const MinHashCost = 10

type Config struct {
	Host string `env:"HOST,default=0.0.0.0"`
	Port int    `env:"PORT,default=3000"`

	// TrustedProxies is a comma-separated list of IPs or CIDRs whose
	// X-Forwarded-For header is believed. Empty trusts no proxy.
	TrustedProxies string `env:"TRUSTED_PROXIES"`

	LogLevel        string        `env:"LOG_LEVEL,default=info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`

	DB Database

	SecretKey string        `env:"SECRET_KEY,required"`
	TokenTTL  time.Duration `env:"TOKEN_TTL,default=24h"`
	HashCost  int           `env:"BCRYPT_COST,default=12"`

	Redis Redis

	RabbitMQURL   string `env:"RABBITMQ_URL"`
	RabbitMQQueue string `env:"RABBITMQ_QUEUE,default=orders"`
}

type Database struct {
	Driver string `env:"DB_DRIVER,default=postgres"`
	URL    string `env:"DATABASE_URL"`

	Host     string `env:"DB_HOST"`
	Port     int    `env:"DB_PORT,default=5432"`
	User     string `env:"DB_USER"`
	Password string `env:"DB_PASSWORD"`
	Name     string `env:"DB_NAME"`
	SSLMode  string `env:"DB_SSLMODE,default=disable"`

	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=5m"`
	QueryTimeout    time.Duration `env:"DB_QUERY_TIMEOUT,default=5s"`
	SlowQuery       time.Duration `env:"DB_SLOW_QUERY,default=200ms"`
	LogArgs         bool          `env:"DB_LOG_ARGS,default=false"`
	AutoMigrate     bool          `env:"DB_AUTO_MIGRATE,default=true"`
}

type Redis struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,default=0"`

	CacheTTL        time.Duration `env:"CACHE_TTL,default=5m"`
	RateLimitCount  int64         `env:"RATE_LIMIT_COUNT,default=5"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW,default=1m"`
}

// Load reads .env (if any), decodes the environment and validates the
// result.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDatabase resolves only the DB_* settings. The migrate command uses
// it so that schema changes need no secrets beyond the database's own.
func LoadDatabase() (*Database, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	var d Database
	if err := envdecode.Decode(&d); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if problems := d.validate(); len(problems) > 0 {
		return nil, fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return &d, nil
}

func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("config: load .env: %w", err)
	}
	return nil
}

// Validate checks the cross-field rules envdecode cannot express.
func (c *Config) Validate() error {
	var problems []string

	if c.Port <= 0 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("PORT %d out of range", c.Port))
	}
	problems = append(problems, c.DB.validate()...)
	if c.HashCost < MinHashCost || c.HashCost > bcrypt.MaxCost {
		problems = append(problems, fmt.Sprintf("BCRYPT_COST must be between %d and %d", MinHashCost, bcrypt.MaxCost))
	}
	if c.TokenTTL <= 0 {
		problems = append(problems, "TOKEN_TTL must be positive")
	}
	if c.Redis.RateLimitCount <= 0 || c.Redis.RateLimitWindow <= 0 {
		problems = append(problems, "RATE_LIMIT_COUNT and RATE_LIMIT_WINDOW must be positive")
	}
	if _, err := c.Level(); err != nil {
		problems = append(problems, err.Error())
	}
	for _, p := range c.Proxies() {
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				problems = append(problems, fmt.Sprintf("TRUSTED_PROXIES entry %q is not an IP or CIDR", p))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Proxies splits TRUSTED_PROXIES. nil means no proxy is trusted.
func (c *Config) Proxies() []string {
	var out []string
	for _, p := range strings.Split(c.TrustedProxies, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Level parses LOG_LEVEL.
func (c *Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL %q is not a valid level", c.LogLevel)
	}
	return lvl, nil
}

func (d Database) validate() []string {
	var problems []string
	if _, err := db.LookupDriver(d.Driver); err != nil {
		problems = append(problems, fmt.Sprintf("DB_DRIVER %q is not supported", d.Driver))
	}
	if d.URL == "" && d.Name == "" {
		problems = append(problems, "either DATABASE_URL or DB_NAME must be set")
	}
	if d.URL == "" && d.Driver != "sqlite3" && d.Host == "" {
		problems = append(problems, "DB_HOST is required without DATABASE_URL")
	}
	return problems
}

// DriverOptions returns the connection parts used when DATABASE_URL is
// not set.
func (d Database) DriverOptions() db.DriverOptions {
	return db.DriverOptions{
		Host:     d.Host,
		Port:     d.Port,
		User:     d.User,
		Password: d.Password,
		Database: d.Name,
		SSLMode:  d.SSLMode,
	}
}

// PoolConfig returns the db.Config without hooks. DSN is DATABASE_URL and
// stays empty when the driver should build it from DriverOptions.
func (d Database) PoolConfig() db.Config {
	return db.Config{
		DSN:             d.URL,
		DriverName:      d.Driver,
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
		DefaultTimeout:  d.QueryTimeout,
	}
}
