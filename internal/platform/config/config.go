package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	platformstrings "transitpass/pkg/platform/strings"
)

const devSigningKey = "dev-secret-key-change-in-production"

// Config is the full server and mailer configuration.
type Config struct {
	Env       string
	Server    Server
	Database  Database
	Redis     RedisConfig
	Auth      Auth
	Payment   Payment
	Notify    Notify
	Audit     Audit
	SMTP      SMTP
	RateLimit RateLimit

	DocumentDir string
	// Location is the civil-date zone used for "today".
	Location *time.Location
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Database is empty in development, which selects the in-memory stores.
type Database struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Auth struct {
	JWTSigningKey  string
	JWTIssuer      string
	AccessTokenTTL time.Duration
	BcryptCost     int
	AdminName      string
	AdminEmail     string
	AdminPassword  string
}

type Payment struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Currency  string
	Timeout   time.Duration
}

type Notify struct {
	AMQPURL string
	Queue   string
}

type Audit struct {
	KafkaBrokers []string
	Topic        string
}

type SMTP struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// RateLimit sets per-IP request allowances per minute. Zero disables a class.
type RateLimit struct {
	Disabled               bool
	PublicPerMinute        int
	AuthenticatedPerMinute int
}

// IsProduction reports whether APP_ENV selects production defaults.
func (c Config) IsProduction() bool {
	return c.Env == "prod"
}

// FromEnv reads configuration from the environment, after loading .env when present.
func FromEnv() (Config, error) {
	_ = godotenv.Load()
	return Load(os.Getenv)
}

// Load builds a Config from getenv. Production requires real secrets.
func Load(getenv func(string) string) (Config, error) {
	e := env{get: getenv}
	cfg := Config{
		Env: strings.ToLower(e.str("APP_ENV", "dev")),
		Server: Server{
			Addr:            e.str("TRANSITPASS_ADDR", ":8080"),
			ShutdownTimeout: e.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: Database{
			URL:          e.str("DATABASE_URL", ""),
			MaxOpenConns: e.integer("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns: e.integer("DB_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			URL:          e.str("REDIS_URL", ""),
			PoolSize:     e.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: e.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  e.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  e.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: e.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Auth: Auth{
			JWTSigningKey:  e.str("JWT_SIGNING_KEY", ""),
			JWTIssuer:      e.str("JWT_ISSUER", "transitpass"),
			AccessTokenTTL: e.duration("ACCESS_TOKEN_TTL", 24*time.Hour),
			BcryptCost:     e.integer("BCRYPT_COST", 12),
			AdminName:      e.str("ADMIN_NAME", "Administrator"),
			AdminEmail:     e.str("ADMIN_EMAIL", ""),
			AdminPassword:  e.str("ADMIN_PASSWORD", ""),
		},
		Payment: Payment{
			BaseURL:   e.str("PAYMENT_BASE_URL", "https://api.razorpay.com"),
			KeyID:     e.str("PAYMENT_KEY_ID", ""),
			KeySecret: e.str("PAYMENT_KEY_SECRET", ""),
			Currency:  strings.ToUpper(e.str("PAYMENT_CURRENCY", "INR")),
			Timeout:   e.duration("PAYMENT_TIMEOUT", 10*time.Second),
		},
		Notify: Notify{
			AMQPURL: e.str("AMQP_URL", ""),
			Queue:   e.str("NOTIFY_QUEUE", "transitpass.notifications"),
		},
		Audit: Audit{
			KafkaBrokers: e.list("KAFKA_BROKERS"),
			Topic:        e.str("AUDIT_TOPIC", "transitpass.audit"),
		},
		SMTP: SMTP{
			Host:     e.str("SMTP_HOST", "localhost"),
			Port:     e.str("SMTP_PORT", "25"),
			Username: e.str("SMTP_USERNAME", ""),
			Password: e.str("SMTP_PASSWORD", ""),
			From:     e.str("SMTP_FROM", "no-reply@transitpass.local"),
		},
		RateLimit: RateLimit{
			Disabled:               e.str("RATE_LIMIT_DISABLED", "false") == "true",
			PublicPerMinute:        e.integer("RATE_LIMIT_PUBLIC_PER_MINUTE", 30),
			AuthenticatedPerMinute: e.integer("RATE_LIMIT_AUTHENTICATED_PER_MINUTE", 120),
		},
		DocumentDir: e.str("DOCUMENT_DIR", "./uploads"),
	}

	loc, err := time.LoadLocation(e.str("TIMEZONE", "UTC"))
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("TIMEZONE: %w", err))
	}
	cfg.Location = loc

	if cfg.Env != "dev" && cfg.Env != "prod" {
		e.errs = append(e.errs, fmt.Errorf("APP_ENV must be dev or prod, got %q", cfg.Env))
	}
	if cfg.Auth.JWTSigningKey == "" {
		if cfg.IsProduction() {
			e.errs = append(e.errs, errors.New("JWT_SIGNING_KEY is required in prod"))
		}
		cfg.Auth.JWTSigningKey = devSigningKey
	}
	if cfg.IsProduction() && cfg.Payment.KeySecret == "" {
		e.errs = append(e.errs, errors.New("PAYMENT_KEY_SECRET is required in prod"))
	}
	if (cfg.Auth.AdminEmail == "") != (cfg.Auth.AdminPassword == "") {
		e.errs = append(e.errs, errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together"))
	}
	if err := errors.Join(e.errs...); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// env collects parse errors so every bad key is reported at once.
type env struct {
	get  func(string) string
	errs []error
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(e.get(key)); v != "" {
		return v
	}
	return def
}

func (e *env) integer(key string, def int) int {
	raw := strings.TrimSpace(e.get(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(e.get(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		e.errs = append(e.errs, fmt.Errorf("%s: must be a positive duration, got %q", key, raw))
		return def
	}
	return d
}

func (e *env) list(key string) []string {
	return platformstrings.SplitList(e.get(key))
}
