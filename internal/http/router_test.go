package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/creerlio/connect-gate/internal/config"
	"github.com/creerlio/connect-gate/internal/domain"
	"github.com/creerlio/connect-gate/internal/http/middleware"
	"github.com/creerlio/connect-gate/internal/repo"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath: "/api/v1",
		GinMode:     gin.TestMode,
		Server:      config.ServerConfig{MaxBodyBytes: 64 << 10},
		Rate:        config.RateConfig{RPS: 100, Burst: 50},
		Policy:      config.PolicyConfig{MessageMaxRunes: 100, IdempotencyTTL: time.Hour},
		Auth:        config.AuthConfig{AllowDevHeader: true},
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
	}
}

func newRouter(t *testing.T, cfg config.Config) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	db := newTestDB(t)
	RegisterRoutes(r, db, cfg, Deps{})
	return r, db
}

func serve(r http.Handler, method, path, user, body string, hdr map[string]string) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != "" {
		rdr = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(middleware.HeaderDevUserID, user)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r, _ := newRouter(t, testConfig())

	w := serve(r, http.MethodGet, "/health", "", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("expected no-store, got %q", got)
	}

	w = serve(r, http.MethodGet, "/metrics", "", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `connect_gate_http_requests_total{method="GET",route="/health",status="200"}`) {
		t.Fatalf("GET /metrics: code=%d, /health not counted", w.Code)
	}

	if w := serve(r, http.MethodGet, "/nope", "", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}
	if w := serve(r, http.MethodPost, "/health", "", "", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	r, _ := newRouter(t, cfg)

	w := serve(r, http.MethodGet, "/health", "", "", map[string]string{"Origin": "http://example.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}

	w = serve(r, http.MethodGet, "/health", "", "", map[string]string{"Origin": "http://evil.test"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unlisted origin must not be echoed, got %q", got)
	}
}

func TestRegisterRoutes_Swagger(t *testing.T) {
	cfg := testConfig()
	r, _ := newRouter(t, cfg)
	if w := serve(r, http.MethodGet, "/swagger/index.html", "", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("swagger disabled: expected 404, got %d", w.Code)
	}

	cfg.SwaggerEnabled = true
	r, _ = newRouter(t, cfg)
	if w := serve(r, http.MethodGet, "/swagger/index.html", "", "", nil); w.Code != http.StatusOK {
		t.Fatalf("swagger enabled: expected 200, got %d", w.Code)
	}
}

func TestRegisterRoutes_APIRequiresIdentity(t *testing.T) {
	r, _ := newRouter(t, testConfig())

	w := serve(r, http.MethodGet, "/api/v1/connections", "", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous -> %d", w.Code)
	}
	// An account with no profile is not a marketplace party.
	if w := serve(r, http.MethodGet, "/api/v1/connections", "ghost", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("unknown account -> %d", w.Code)
	}
}

func TestRegisterRoutes_BadIdempotencyKey(t *testing.T) {
	r, _ := newRouter(t, testConfig())
	w := serve(r, http.MethodPost, "/api/v1/connections", "u1", `{}`,
		map[string]string{middleware.HeaderIdempotencyKey: "spaces are not allowed"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

// End to end through the full middleware stack and the real services.
func TestRegisterRoutes_ConnectionGatedFlow(t *testing.T) {
	r, db := newRouter(t, testConfig())
	ctx := context.Background()

	tp, err := repo.CreateTalentProfile(ctx, db, "talent-user", "t@example.com", "ada lovelace", "")
	if err != nil {
		t.Fatalf("seed talent: %v", err)
	}
	bp, err := repo.CreateBusinessProfile(ctx, db, "biz-user", "b@example.com", "acme")
	if err != nil {
		t.Fatalf("seed business: %v", err)
	}
	pairPath := "/api/v1/pairs/" + tp.ID + "/" + bp.ID

	// No connection yet: the gate denies messaging.
	w := serve(r, http.MethodPost, pairPath+"/messages", "talent-user", `{"body":"hi"}`, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("send before connection -> %d %s", w.Code, w.Body.String())
	}

	// Business requests, talent accepts.
	w = serve(r, http.MethodPost, "/api/v1/connections", "biz-user", `{"counterpart_id":"`+tp.ID+`"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("request connection -> %d %s", w.Code, w.Body.String())
	}
	var created struct {
		Connection domain.ConnectionRequest `json:"connection"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &created)

	w = serve(r, http.MethodPost, "/api/v1/connections/"+created.Connection.ID+"/respond", "talent-user", `{"accept":true}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("accept -> %d %s", w.Code, w.Body.String())
	}

	w = serve(r, http.MethodGet, "/api/v1/access?talent_id="+tp.ID+"&business_id="+bp.ID, "biz-user", "", nil)
	var access struct {
		Allowed bool `json:"allowed"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &access)
	if w.Code != http.StatusOK || !access.Allowed {
		t.Fatalf("access after accept -> %d %s", w.Code, w.Body.String())
	}

	// Send twice with the same key: one stored message, second is a replay.
	key := map[string]string{middleware.HeaderIdempotencyKey: "send-1"}
	w = serve(r, http.MethodPost, pairPath+"/messages", "talent-user", `{"body":"  hello  "}`, key)
	if w.Code != http.StatusCreated {
		t.Fatalf("send -> %d %s", w.Code, w.Body.String())
	}
	w = serve(r, http.MethodPost, pairPath+"/messages", "talent-user", `{"body":"  hello  "}`, key)
	if w.Code != http.StatusCreated || w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay -> %d replayed=%q", w.Code, w.Header().Get("Idempotency-Replayed"))
	}
	var n int64
	db.Model(&domain.Message{}).Count(&n)
	if n != 1 {
		t.Fatalf("expected 1 stored message, got %d", n)
	}

	w = serve(r, http.MethodGet, pairPath+"/messages", "biz-user", "", nil)
	if w.Code != http.StatusOK || w.Header().Get("ETag") == "" {
		t.Fatalf("list -> %d etag=%q", w.Code, w.Header().Get("ETag"))
	}

	// Outsiders cannot read the pair.
	if _, err := repo.CreateBusinessProfile(ctx, db, "other-biz", "o@example.com", "other"); err != nil {
		t.Fatalf("seed other: %v", err)
	}
	if w := serve(r, http.MethodGet, pairPath+"/messages", "other-biz", "", nil); w.Code != http.StatusForbidden {
		t.Fatalf("outsider list -> %d", w.Code)
	}

	// Discontinue closes the channel.
	w = serve(r, http.MethodPost, "/api/v1/connections/"+created.Connection.ID+"/discontinue", "biz-user", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("discontinue -> %d %s", w.Code, w.Body.String())
	}
	if w := serve(r, http.MethodPost, pairPath+"/messages", "talent-user", `{"body":"still there?"}`, nil); w.Code != http.StatusForbidden {
		t.Fatalf("send after discontinue -> %d", w.Code)
	}
}

func Test_newLimiter(t *testing.T) {
	cfg := testConfig()
	if _, ok := newLimiter(cfg, nil).(*middleware.RateLimiter); !ok {
		t.Fatalf("nil redis should select the in-process limiter")
	}
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = rdb.Close() })
	if _, ok := newLimiter(cfg, rdb).(*middleware.RedisRateLimiter); !ok {
		t.Fatalf("redis client should select the shared limiter")
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := serve(r, http.MethodPost, "/echo", "", "0123456789AB", nil) // 12 bytes
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		w := serve(r, http.MethodGet, path, "", "", nil)
		if w.Code != http.StatusOK || w.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, w.Code, w.Body.String())
		}
	}
}
