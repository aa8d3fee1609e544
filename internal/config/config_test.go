package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

// clearEnv unsets variables that a developer shell commonly exports and then
// provides the one value without a default.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "LOG_LEVEL", "GIN_MODE", "DB_DRIVER", "DB_PATH", "DB_DSN",
		"AUTH_ALLOW_DEV_HEADER", "AMQP_URL", "REDIS_ADDR", "RATE_RPS", "RATE_BURST",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("AUTH_JWT_SECRET", "test-secret")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := ServerConfig{
		Port:              "8080",
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		MaxHeaderBytes:    1 << 20,
		MaxBodyBytes:      1 << 20,
	}
	if cfg.Server != want {
		t.Fatalf("server defaults: %+v", cfg.Server)
	}
	if cfg.APIBasePath != "/api/v1" || cfg.GinMode != "release" || cfg.Log.Level != "info" {
		t.Fatalf("base=%q mode=%q level=%q", cfg.APIBasePath, cfg.GinMode, cfg.Log.Level)
	}
	if cfg.DB != (DBConfig{Driver: "sqlite", Path: "app.db"}) {
		t.Fatalf("db defaults: %+v", cfg.DB)
	}
	if cfg.Policy != (PolicyConfig{MessageMaxRunes: 4000, ConsentDefaultTTL: 30 * 24 * time.Hour, IdempotencyTTL: 24 * time.Hour}) {
		t.Fatalf("policy defaults: %+v", cfg.Policy)
	}
	if cfg.Rate != (RateConfig{RPS: 5, Burst: 10}) {
		t.Fatalf("rate defaults: %+v", cfg.Rate)
	}
	if cfg.Redis.Addr != "" || cfg.AMQP.URL != "" || cfg.AMQP.Queue != "creerlio.events" {
		t.Fatalf("optional backends should be off: %+v %+v", cfg.Redis, cfg.AMQP)
	}
	if cfg.CORS.AllowedOrigins != nil || cfg.OTEL.ServiceName != "connect-gate" || !cfg.OTEL.Insecure {
		t.Fatalf("cors=%v otel=%+v", cfg.CORS.AllowedOrigins, cfg.OTEL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	env := map[string]string{
		"PORT":                        "9090",
		"SHUTDOWN_TIMEOUT":            "5s",
		"MAX_BODY_BYTES":              "4096",
		"GIN_MODE":                    "Staging",
		"LOG_LEVEL":                   "WARNING",
		"LOG_PRETTY":                  "on",
		"SWAGGER_ENABLED":             "y",
		"API_BASE_PATH":               " creerlio//v2/ ",
		"DB_DRIVER":                   "SQLite3",
		"DB_PATH":                     "gate.db",
		"AUTH_ALLOW_DEV_HEADER":       "TRUE",
		"MESSAGE_MAX_RUNES":           "500",
		"CONSENT_DEFAULT_TTL":         "0s",
		"IDEMPOTENCY_TTL":             "48h",
		"RATE_RPS":                    " 0.5 ",
		"RATE_BURST":                  "3",
		"REDIS_ADDR":                  "redis:6379",
		"REDIS_DB":                    "2",
		"AMQP_URL":                    "amqp://guest:guest@mq:5672/",
		"AMQP_QUEUE":                  "gate.events",
		"CORS_ALLOWED_ORIGINS":        " https://app.creerlio.com , ,http://localhost:5173,",
		"ENABLE_HSTS":                 "1",
		"HSTS_MAX_AGE":                "24h",
		"OTEL_ENABLED":                "yes",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "otel:4317",
		"OTEL_EXPORTER_OTLP_INSECURE": "off",
		"OTEL_TRACES_SAMPLER_ARG":     "0.25",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Server.ShutdownTimeout != 5*time.Second || cfg.Server.MaxBodyBytes != 4096 {
		t.Fatalf("server: %+v", cfg.Server)
	}
	if cfg.GinMode != "release" || cfg.Log != (LogConfig{Level: "warn", Pretty: true}) || !cfg.SwaggerEnabled {
		t.Fatalf("mode=%q log=%+v swagger=%v", cfg.GinMode, cfg.Log, cfg.SwaggerEnabled)
	}
	if cfg.APIBasePath != "/creerlio/v2" {
		t.Fatalf("base path = %q", cfg.APIBasePath)
	}
	if cfg.DB.Driver != "sqlite" || cfg.DB.Path != "gate.db" || !cfg.Auth.AllowDevHeader {
		t.Fatalf("db=%+v auth=%+v", cfg.DB, cfg.Auth)
	}
	if cfg.Policy != (PolicyConfig{MessageMaxRunes: 500, IdempotencyTTL: 48 * time.Hour}) {
		t.Fatalf("policy: %+v", cfg.Policy)
	}
	if cfg.Rate != (RateConfig{RPS: 0.5, Burst: 3}) || cfg.Redis.Addr != "redis:6379" || cfg.Redis.DB != 2 {
		t.Fatalf("rate=%+v redis=%+v", cfg.Rate, cfg.Redis)
	}
	if cfg.AMQP.Queue != "gate.events" {
		t.Fatalf("amqp: %+v", cfg.AMQP)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://app.creerlio.com", "http://localhost:5173"}) {
		t.Fatalf("cors: %#v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Security != (SecurityConfig{EnableHSTS: true, HSTSMaxAge: 24 * time.Hour}) {
		t.Fatalf("security: %+v", cfg.Security)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.Insecure || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.SampleRatio != 0.25 {
		t.Fatalf("otel: %+v", cfg.OTEL)
	}
}

func TestLoad_MySQL(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("DB_DSN", "gate:pw@tcp(db:3306)/creerlio?parseTime=true")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DB.Driver != "mysql" || !strings.Contains(cfg.DB.DSN, "tcp(db:3306)") {
		t.Fatalf("db: %+v", cfg.DB)
	}
}

func TestLoad_DevHeaderWithoutSecret(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUTH_JWT_SECRET", "")
	t.Setenv("AUTH_ALLOW_DEV_HEADER", "1")
	if _, err := Load(); err != nil {
		t.Fatalf("dev header mode should not need a secret: %v", err)
	}
}

func TestLoad_MalformedValuesAreReported(t *testing.T) {
	clearEnv(t)
	t.Setenv("RATE_RPS", "fast")
	t.Setenv("RATE_BURST", "ten")
	t.Setenv("CONSENT_DEFAULT_TTL", "a month")
	t.Setenv("ENABLE_HSTS", "maybe")

	_, err := Load()
	if err == nil {
		t.Fatalf("malformed values must fail the load")
	}
	for _, key := range []string{"RATE_RPS", "RATE_BURST", "CONSENT_DEFAULT_TTL", "ENABLE_HSTS"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("error should name %s: %v", key, err)
		}
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"log level", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"blank port", map[string]string{"PORT": "   "}, "PORT must not be empty"},
		{"zero timeout", map[string]string{"WRITE_TIMEOUT": "0s"}, "timeouts must be positive"},
		{"zero shutdown", map[string]string{"SHUTDOWN_TIMEOUT": "0s"}, "SHUTDOWN_TIMEOUT"},
		{"header bytes", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"body bytes", map[string]string{"MAX_BODY_BYTES": "-1"}, "MAX_BODY_BYTES"},
		{"blank sqlite path", map[string]string{"DB_PATH": "  "}, "DB_PATH"},
		{"unknown driver", map[string]string{"DB_DRIVER": "postgres"}, "DB_DRIVER"},
		{"mysql without dsn", map[string]string{"DB_DRIVER": "mysql"}, "DB_DSN"},
		{"no auth", map[string]string{"AUTH_JWT_SECRET": ""}, "AUTH_JWT_SECRET"},
		{"message runes", map[string]string{"MESSAGE_MAX_RUNES": "0"}, "MESSAGE_MAX_RUNES"},
		{"consent ttl", map[string]string{"CONSENT_DEFAULT_TTL": "-1h"}, "CONSENT_DEFAULT_TTL"},
		{"idempotency ttl", map[string]string{"IDEMPOTENCY_TTL": "0s"}, "IDEMPOTENCY_TTL"},
		{"negative rps", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{"empty bucket", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"redis db", map[string]string{"REDIS_DB": "-1"}, "REDIS_DB"},
		{"amqp queue", map[string]string{"AMQP_URL": "amqp://mq", "AMQP_QUEUE": " "}, "AMQP_QUEUE"},
		{"hsts age", map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{"sample ratio", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error mentioning %s, got %v", tc.want, err)
			}
		})
	}
}

func TestValidate_JoinsEveryProblem(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Rate.Burst = 0
	cfg.Policy.MessageMaxRunes = 0
	cfg.DB.Driver = "oracle"

	err = cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation failure")
	}
	msg := err.Error()
	for _, want := range []string{"RATE_BURST", "MESSAGE_MAX_RUNES", "DB_DRIVER"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("joined error should mention %s: %v", want, msg)
		}
	}
	if n := len(strings.Split(msg, "\n")); n != 3 {
		t.Fatalf("want 3 joined errors, got %d: %v", n, msg)
	}
}

func TestMustLoad(t *testing.T) {
	clearEnv(t)
	if cfg := MustLoad(); cfg.Server.Port != "8080" {
		t.Fatalf("port = %q", cfg.Server.Port)
	}

	t.Setenv("DB_DRIVER", "postgres")
	defer func() {
		if recover() == nil {
			t.Fatalf("MustLoad should panic on an invalid config")
		}
	}()
	MustLoad()
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "gate.env")
	if err := os.WriteFile(f, []byte("CG_DOTENV_QUEUE=from-file\nCG_DOTENV_PORT=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CG_DOTENV_PORT", "from-env")
	os.Unsetenv("CG_DOTENV_QUEUE")
	t.Cleanup(func() { os.Unsetenv("CG_DOTENV_QUEUE") })

	if err := LoadDotEnv(f, filepath.Join(dir, "absent.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("CG_DOTENV_QUEUE"); got != "from-file" {
		t.Fatalf("CG_DOTENV_QUEUE = %q", got)
	}
	if got := os.Getenv("CG_DOTENV_PORT"); got != "from-env" {
		t.Fatalf("process env should win, got %q", got)
	}
}

func TestEnvReader_flag(t *testing.T) {
	cases := map[string]bool{
		"1": true, "t": true, "TRUE": true, " yes ": true, "Y": true, "On": true,
		"0": false, "f": false, "False": false, " no ": false, "N": false, "OFF": false,
	}
	for raw, want := range cases {
		t.Setenv("CG_FLAG", raw)
		var r envReader
		if got := r.flag("CG_FLAG", !want); got != want || len(r.errs) != 0 {
			t.Fatalf("flag(%q) = %v errs=%v", raw, got, r.errs)
		}
	}

	t.Setenv("CG_FLAG", "")
	var r envReader
	if !r.flag("CG_FLAG", true) || len(r.errs) != 0 {
		t.Fatalf("empty value should take the default silently")
	}
}

func TestCleanBasePath(t *testing.T) {
	cases := map[string]string{
		"":          "/",
		" / ":       "/",
		"v1":        "/v1",
		"/api/v1/":  "/api/v1",
		"//api//v1": "/api/v1",
	}
	for in, want := range cases {
		if got := cleanBasePath(in); got != want {
			t.Fatalf("cleanBasePath(%q) = %q want %q", in, got, want)
		}
	}
}
