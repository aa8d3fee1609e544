// Package httpapi mounts the Gin engine: the global middleware chain, the
// public probes and the authenticated pair, consent, meeting and calendar
// routes.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/creerlio/connect-gate/internal/config"
	"github.com/creerlio/connect-gate/internal/http/handlers"
	"github.com/creerlio/connect-gate/internal/http/middleware"
	"github.com/creerlio/connect-gate/internal/services"
)

// Deps carries the optional collaborators built by the process. Nil fields
// fall back to process-local behaviour.
type Deps struct {
	// Notifier receives best-effort events after writes. Nil disables them.
	Notifier services.Notifier
	// Redis shares rate-limit buckets across replicas. Nil keeps them local.
	Redis *redis.Client
}

var (
	corsAllowHeaders = []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		middleware.HeaderDevUserID, middleware.HeaderDevUserRole, middleware.HeaderIdempotencyKey,
	}
	corsExposeHeaders = []string{
		"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed",
		"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining",
	}
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the authenticated API under cfg.APIBasePath.
//
// Global chain, outermost first:
//  1. otelgin span
//  2. request id
//  3. access log, redacted outside debug mode
//  4. panic recovery, logged with the request id
//  5. body cap
//  6. Prometheus instrumentation
//  7. gzip, CORS, security headers
//
// API group:
//  1. caller resolution (bearer token or dev header)
//  2. Idempotency-Key check; a replay is exempt from step 3
//  3. per-caller limiter, shared through Redis when configured
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config, deps Deps) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	if cfg.GinMode == gin.DebugMode {
		r.Use(middleware.Logger())
	} else {
		r.Use(middleware.RedactingLogger(middleware.RedactOptions{
			MaskHeaders: []string{middleware.HeaderDevUserID},
		}))
	}
	r.Use(middleware.Recovery())
	r.Use(limitBody(cfg.Server.MaxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	useCORS(r, cfg.CORS.AllowedOrigins)

	// Conversation and consent payloads are private to the pair.
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:    cfg.Security.EnableHSTS,
		HSTSMaxAge:    cfg.Security.HSTSMaxAge,
		NoStore:       true,
		EnablePolicy:  true,
		ExposeHeaders: corsExposeHeaders,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← db/notifier
	gate := &services.AccessGate{DB: db}
	msgSvc := services.NewMessageService(db, deps.Notifier, cfg.Policy.MessageMaxRunes)
	h := handlers.New(handlers.Services{
		Identity:    &services.ProfileService{DB: db},
		Gate:        gate,
		Connections: &services.ConnectionService{DB: db, Notifier: deps.Notifier},
		Messages:    msgSvc,
		Consent: &services.ConsentService{
			DB:            db,
			Gate:          gate,
			Conversations: msgSvc.Conversations,
			Notifier:      deps.Notifier,
			DefaultTTL:    cfg.Policy.ConsentDefaultTTL,
		},
		Meetings: &services.MeetingService{DB: db, Notifier: deps.Notifier},
		Calendar: &services.CalendarService{DB: db},
	}, cfg.Policy.IdempotencyTTL)

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(middleware.Auth(middleware.AuthOptions{
		Secret:         cfg.Auth.JWTSecret,
		AllowDevHeader: cfg.Auth.AllowDevHeader,
	}))
	api.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200, Scope: middleware.PairScope},
		func(ctx context.Context, userID, scopeID, key string, _ time.Time) (bool, error) {
			_, ok := msgSvc.Replay(ctx, userID, scopeID, key)
			return ok, nil
		},
	))
	api.Use(newLimiter(cfg, deps.Redis).Handler())
	{
		// Access gate
		api.GET("/access", h.CheckAccess)

		// Connections
		api.POST("/connections", h.CreateConnection)
		api.GET("/connections", h.ListConnections)
		api.POST("/connections/:id/respond", h.RespondConnection)
		api.POST("/connections/:id/discontinue", h.DiscontinueConnection)
		api.POST("/connections/:id/reconnect", h.ReconnectConnection)

		// Pair-scoped conversation and consent
		pair := api.Group("/pairs/:talent_id/:business_id")
		pair.GET("/messages", h.ListMessages)
		pair.POST("/messages", h.PostMessage)
		pair.POST("/consent", h.CreateConsent)
		pair.GET("/consent", h.GetConsentStatus)

		// Consent requests
		api.POST("/consent/:id/respond", h.RespondConsent)
		api.POST("/consent/:id/revoke", h.RevokeConsent)
		api.GET("/consent/:id/events", h.ListConsentEvents)

		// Meetings
		api.POST("/meetings", h.ScheduleMeeting)
		api.POST("/meetings/:id/accept", h.AcceptMeeting)
		api.POST("/meetings/:id/decline", h.DeclineMeeting)
		api.POST("/meetings/:id/cancel", h.CancelMeeting)
		api.GET("/calendar", h.GetCalendar)
	}
}

// newLimiter picks the shared Redis bucket store when a client is given.
func newLimiter(cfg config.Config, rdb *redis.Client) middleware.Limiter {
	if rdb != nil {
		return middleware.NewRedisRateLimiter(rdb, cfg.Rate.RPS, cfg.Rate.Burst, middleware.KeyByUserOrIP())
	}
	return middleware.NewRateLimiter(cfg.Rate.RPS, cfg.Rate.Burst, middleware.KeyByUserOrIP())
}

// useCORS allows every origin when no allowlist is configured, otherwise it
// echoes allowed origins only.
func useCORS(r *gin.Engine, origins []string) {
	if len(origins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     corsAllowHeaders,
			ExposeHeaders:    corsExposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
		return
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	r.Use(func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			if _, ok := allowed[origin]; ok {
				h := c.Writer.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
		}
		c.Next()
	})
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     corsAllowHeaders,
		ExposeHeaders:    corsExposeHeaders,
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}

// limitBody caps every request body at maxBytes (1 MiB when unset). Reads past
// the cap fail, which the handlers report as a validation error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix returns the engine root group when prefix is "/" or empty.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
