package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"newsletter/internal/models"
)

const (
	EnvironmentLocal      = "local"
	EnvironmentProduction = "production"
)

const (
	EmailDriverNone     = "none"
	EmailDriverPostmark = "postmark"
	EmailDriverDapr     = "dapr"

	CacheDriverNone   = "none"
	CacheDriverMemory = "memory"
	CacheDriverRedis  = "redis"
)

type Config struct {
	App      App
	Database Database
	Email    Email
	Cache    Cache
}

type App struct {
	Environment    string
	ServiceName    string
	ServiceVersion string
	Host           string
	Port           string
	LogLevel       string
	GinMode        string
	RequestTimeout time.Duration
}

func (a App) Addr() string {
	return a.Host + ":" + a.Port
}

type Database struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN renders a postgres:// URL understood by the pgx stdlib driver.
func (d Database) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

type Email struct {
	Driver      string
	BaseURL     string
	Sender      string
	Token       string
	Timeout     time.Duration
	DaprAddress string
	DaprBinding string
}

type Cache struct {
	Driver        string
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Load reads the env file at path, if one is given, then the process
// environment. An empty path means the environment alone. Every failure,
// including a missing or unparsable file, is a KindEnv error and must stop
// startup.
func Load(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, models.NewError(models.KindEnv, "config.load",
				fmt.Errorf("load env file %s: %w", path, err))
		}
	}

	p := &parser{}
	cfg := &Config{
		App: App{
			Environment:    getEnv("APP_ENVIRONMENT", EnvironmentLocal),
			ServiceName:    getEnv("APP_SERVICE_NAME", "newsletter"),
			ServiceVersion: getEnv("APP_SERVICE_VERSION", "1.0.0"),
			Host:           getEnv("APP_HOST", "0.0.0.0"),
			Port:           getEnv("APP_PORT", "8000"),
			LogLevel:       getEnv("APP_LOG_LEVEL", "info"),
			GinMode:        getEnv("APP_GIN_MODE", ""),
			RequestTimeout: p.duration("APP_REQUEST_TIMEOUT", "10s"),
		},
		Database: Database{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            p.int("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "password"),
			Name:            getEnv("DB_NAME", "newsletter"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    p.int("DB_MAX_OPEN_CONNS", "16"),
			MaxIdleConns:    p.int("DB_MAX_IDLE_CONNS", "8"),
			ConnMaxLifetime: p.duration("DB_CONN_MAX_LIFETIME", "30m"),
		},
		Email: Email{
			Driver:      getEnv("EMAIL_DRIVER", EmailDriverNone),
			BaseURL:     getEnv("EMAIL_BASE_URL", "http://localhost:8081"),
			Sender:      getEnv("EMAIL_SENDER", "newsletter@example.com"),
			Token:       getEnv("EMAIL_TOKEN", ""),
			Timeout:     p.duration("EMAIL_TIMEOUT", "10s"),
			DaprAddress: getEnv("EMAIL_DAPR_ADDRESS", "localhost:50001"),
			DaprBinding: getEnv("EMAIL_DAPR_BINDING", "postmark"),
		},
		Cache: Cache{
			Driver:        getEnv("CACHE_DRIVER", CacheDriverMemory),
			TTL:           p.duration("CACHE_TTL", "5m"),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       p.int("REDIS_DB", "0"),
		},
	}
	if p.err != nil {
		return nil, p.err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.App.Environment {
	case EnvironmentLocal, EnvironmentProduction:
	default:
		return models.NewError(models.KindEnv, "config.load",
			fmt.Errorf("APP_ENVIRONMENT %q: use %q or %q", c.App.Environment, EnvironmentLocal, EnvironmentProduction))
	}
	switch c.Email.Driver {
	case EmailDriverNone, EmailDriverPostmark, EmailDriverDapr:
	default:
		return models.NewError(models.KindEnv, "config.load", fmt.Errorf("unknown EMAIL_DRIVER %q", c.Email.Driver))
	}
	switch c.Cache.Driver {
	case CacheDriverNone, CacheDriverMemory, CacheDriverRedis:
	default:
		return models.NewError(models.KindEnv, "config.load", fmt.Errorf("unknown CACHE_DRIVER %q", c.Cache.Driver))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultValue
}

// parser keeps the first conversion error so Load can read every key in one
// pass and report once.
type parser struct {
	err error
}

func (p *parser) int(key, defaultValue string) int {
	raw := getEnv(key, defaultValue)
	v, err := strconv.Atoi(raw)
	if err != nil && p.err == nil {
		p.err = models.NewError(models.KindEnv, "config.load", fmt.Errorf("%s=%q: %w", key, raw, err))
	}
	return v
}

func (p *parser) duration(key, defaultValue string) time.Duration {
	raw := getEnv(key, defaultValue)
	v, err := time.ParseDuration(raw)
	if err != nil && p.err == nil {
		p.err = models.NewError(models.KindEnv, "config.load", fmt.Errorf("%s=%q: %w", key, raw, err))
	}
	return v
}
