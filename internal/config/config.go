// Package config loads the service configuration from the environment.
//
// Every variable has a default except the token secret. Malformed values are
// reported rather than silently replaced by their default, and all problems
// are returned together so a bad deployment fails once with the full list.
package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig tunes the HTTP listener.
type ServerConfig struct {
	Port              string        // PORT, just the number
	ReadTimeout       time.Duration // READ_TIMEOUT
	ReadHeaderTimeout time.Duration // READ_HEADER_TIMEOUT
	WriteTimeout      time.Duration // WRITE_TIMEOUT
	IdleTimeout       time.Duration // IDLE_TIMEOUT
	ShutdownTimeout   time.Duration // SHUTDOWN_TIMEOUT, drain window on SIGTERM
	MaxHeaderBytes    int           // MAX_HEADER_BYTES
	MaxBodyBytes      int64         // MAX_BODY_BYTES, request body cap
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string // LOG_LEVEL: debug|info|warn|error|fatal|panic
	Pretty bool   // LOG_PRETTY: console writer instead of JSON
}

// DBConfig selects and locates the database.
type DBConfig struct {
	Driver string // DB_DRIVER: sqlite|mysql
	Path   string // DB_PATH (sqlite)
	DSN    string // DB_DSN (mysql), e.g. user:pass@tcp(host:3306)/creerlio?parseTime=true
}

// AuthConfig controls how callers are authenticated.
type AuthConfig struct {
	JWTSecret      string // AUTH_JWT_SECRET (HS256)
	AllowDevHeader bool   // AUTH_ALLOW_DEV_HEADER: trust X-User-ID / X-User-Role without a token
}

// PolicyConfig holds the product rules that are tunable per deployment.
type PolicyConfig struct {
	MessageMaxRunes   int           // MESSAGE_MAX_RUNES
	ConsentDefaultTTL time.Duration // CONSENT_DEFAULT_TTL; 0 = approvals never expire
	IdempotencyTTL    time.Duration // IDEMPOTENCY_TTL, replay window for Idempotency-Key
}

// RateConfig sizes the per-caller token bucket.
type RateConfig struct {
	RPS   float64 // RATE_RPS, refill per second
	Burst int     // RATE_BURST, bucket size
}

// RedisConfig configures the optional shared rate-limit store.
type RedisConfig struct {
	Addr     string // REDIS_ADDR; empty disables Redis
	Password string // REDIS_PASSWORD
	DB       int    // REDIS_DB
}

// AMQPConfig configures the optional notification broker.
type AMQPConfig struct {
	URL   string // AMQP_URL; empty disables publishing
	Queue string // AMQP_QUEUE
}

// CORSConfig lists browser origins allowed to call the API. Empty allows any.
type CORSConfig struct {
	AllowedOrigins []string // CORS_ALLOWED_ORIGINS, comma separated
}

// SecurityConfig controls transport security headers.
type SecurityConfig struct {
	EnableHSTS bool          // ENABLE_HSTS
	HSTSMaxAge time.Duration // HSTS_MAX_AGE
}

// OTELConfig configures trace export.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT, host:port of the collector
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE, plaintext gRPC
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config is the full process configuration.
type Config struct {
	Server         ServerConfig
	Log            LogConfig
	GinMode        string // GIN_MODE: debug|release|test
	SwaggerEnabled bool   // SWAGGER_ENABLED
	APIBasePath    string // API_BASE_PATH

	DB       DBConfig
	Auth     AuthConfig
	Policy   PolicyConfig
	Rate     RateConfig
	Redis    RedisConfig
	AMQP     AMQPConfig
	CORS     CORSConfig
	Security SecurityConfig
	OTEL     OTELConfig
}

// MustLoad is Load for process start-up: it panics on any problem.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadDotEnv reads variables from the given .env files (".env" when none are
// named) without overriding ones already set. A missing file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the environment, normalizes the result and validates it.
func Load() (Config, error) {
	var env envReader
	cfg := Config{
		Server: ServerConfig{
			Port:              env.str("PORT", "8080"),
			ReadTimeout:       env.dur("READ_TIMEOUT", 15*time.Second),
			ReadHeaderTimeout: env.dur("READ_HEADER_TIMEOUT", 10*time.Second),
			WriteTimeout:      env.dur("WRITE_TIMEOUT", 20*time.Second),
			IdleTimeout:       env.dur("IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout:   env.dur("SHUTDOWN_TIMEOUT", 15*time.Second),
			MaxHeaderBytes:    env.num("MAX_HEADER_BYTES", 1<<20),
			MaxBodyBytes:      int64(env.num("MAX_BODY_BYTES", 1<<20)),
		},
		Log: LogConfig{
			Level:  strings.ToLower(env.str("LOG_LEVEL", "info")),
			Pretty: env.flag("LOG_PRETTY", false),
		},
		GinMode:        strings.ToLower(env.str("GIN_MODE", "release")),
		SwaggerEnabled: env.flag("SWAGGER_ENABLED", false),
		APIBasePath:    cleanBasePath(env.str("API_BASE_PATH", "/api/v1")),

		DB: DBConfig{
			Driver: strings.ToLower(env.str("DB_DRIVER", "sqlite")),
			Path:   env.str("DB_PATH", "app.db"),
			DSN:    env.str("DB_DSN", ""),
		},
		Auth: AuthConfig{
			JWTSecret:      env.str("AUTH_JWT_SECRET", ""),
			AllowDevHeader: env.flag("AUTH_ALLOW_DEV_HEADER", false),
		},
		Policy: PolicyConfig{
			MessageMaxRunes:   env.num("MESSAGE_MAX_RUNES", 4000),
			ConsentDefaultTTL: env.dur("CONSENT_DEFAULT_TTL", 30*24*time.Hour),
			IdempotencyTTL:    env.dur("IDEMPOTENCY_TTL", 24*time.Hour),
		},
		Rate: RateConfig{
			RPS:   env.float("RATE_RPS", 5),
			Burst: env.num("RATE_BURST", 10),
		},
		Redis: RedisConfig{
			Addr:     env.str("REDIS_ADDR", ""),
			Password: env.str("REDIS_PASSWORD", ""),
			DB:       env.num("REDIS_DB", 0),
		},
		AMQP: AMQPConfig{
			URL:   env.str("AMQP_URL", ""),
			Queue: env.str("AMQP_QUEUE", "creerlio.events"),
		},
		CORS: CORSConfig{AllowedOrigins: env.list("CORS_ALLOWED_ORIGINS")},
		Security: SecurityConfig{
			EnableHSTS: env.flag("ENABLE_HSTS", false),
			HSTSMaxAge: env.dur("HSTS_MAX_AGE", 180*24*time.Hour),
		},
		OTEL: OTELConfig{
			Enabled:     env.flag("OTEL_ENABLED", false),
			Endpoint:    env.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    env.flag("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: env.str("OTEL_SERVICE_NAME", "connect-gate"),
			SampleRatio: env.float("OTEL_TRACES_SAMPLER_ARG", 1),
		},
	}
	if err := errors.Join(env.errs...); err != nil {
		return cfg, err
	}
	cfg.normalize()
	return cfg, cfg.Validate()
}

// normalize folds accepted aliases into their canonical spelling.
func (c *Config) normalize() {
	if c.Log.Level == "warning" {
		c.Log.Level = "warn"
	}
	if c.DB.Driver == "sqlite3" {
		c.DB.Driver = "sqlite"
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		c.GinMode = "release"
	}
}

// Validate reports every inconsistent setting, joined into one error.
func (c Config) Validate() error {
	var errs []error
	require := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error, fatal, panic", c.Log.Level))
	}

	s := c.Server
	require(strings.TrimSpace(s.Port) != "", "PORT must not be empty")
	require(s.ReadTimeout > 0 && s.ReadHeaderTimeout > 0 && s.WriteTimeout > 0 && s.IdleTimeout > 0,
		"READ/READ_HEADER/WRITE/IDLE timeouts must be positive")
	require(s.ShutdownTimeout > 0, "SHUTDOWN_TIMEOUT must be > 0")
	require(s.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")
	require(s.MaxBodyBytes > 0, "MAX_BODY_BYTES must be > 0")

	switch c.DB.Driver {
	case "sqlite":
		require(strings.TrimSpace(c.DB.Path) != "", "DB_PATH must not be empty for sqlite")
	case "mysql":
		require(strings.TrimSpace(c.DB.DSN) != "", "DB_DSN is required when DB_DRIVER=mysql")
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER %q is not one of sqlite, mysql", c.DB.Driver))
	}

	require(c.Auth.JWTSecret != "" || c.Auth.AllowDevHeader,
		"AUTH_JWT_SECRET is required unless AUTH_ALLOW_DEV_HEADER is enabled")

	require(c.Policy.MessageMaxRunes >= 1, "MESSAGE_MAX_RUNES must be >= 1")
	require(c.Policy.ConsentDefaultTTL >= 0, "CONSENT_DEFAULT_TTL must be >= 0")
	require(c.Policy.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0")

	require(c.Rate.RPS >= 0, "RATE_RPS must be >= 0")
	require(c.Rate.Burst >= 1, "RATE_BURST must be >= 1")
	require(c.Redis.DB >= 0, "REDIS_DB must be >= 0")
	require(c.AMQP.URL == "" || strings.TrimSpace(c.AMQP.Queue) != "",
		"AMQP_QUEUE must not be empty when AMQP_URL is set")

	require(c.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	require(c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")

	return errors.Join(errs...)
}

// envReader reads typed variables, remembering every malformed value. Unset
// and empty variables take the default.
type envReader struct {
	errs []error
}

func (r *envReader) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (r *envReader) fail(key, raw string, err error) {
	r.errs = append(r.errs, fmt.Errorf("%s=%q: %w", key, raw, err))
}

func (r *envReader) str(key, def string) string {
	if v, ok := r.lookup(key); ok {
		return v
	}
	return def
}

func (r *envReader) num(key string, def int) int {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return n
}

func (r *envReader) float(key string, def float64) float64 {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return f
}

func (r *envReader) dur(key string, def time.Duration) time.Duration {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return d
}

// flag accepts strconv.ParseBool spellings plus yes/no/y/n/on/off.
func (r *envReader) flag(key string, def bool) bool {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	switch s := strings.ToLower(strings.TrimSpace(v)); s {
	case "yes", "y", "on":
		return true
	case "no", "n", "off":
		return false
	default:
		b, err := strconv.ParseBool(s)
		if err != nil {
			r.fail(key, v, errors.New("not a boolean"))
			return def
		}
		return b
	}
}

// list splits a comma separated variable, dropping blank items.
func (r *envReader) list(key string) []string {
	v, ok := r.lookup(key)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// cleanBasePath returns p rooted at "/" without a trailing slash.
func cleanBasePath(p string) string {
	return path.Clean("/" + strings.TrimSpace(p))
}
