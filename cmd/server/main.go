// Command server runs the connection-gated communication API.
//
//	@title          Creerlio Connect Gate API
//	@version        1.0
//	@description    Connection-gated messaging, consent and meeting workflow between talents and businesses.
//	@BasePath       /api/v1
//
//	@securityDefinitions.apikey BearerAuth
//	@in                         header
//	@name                       Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/creerlio/connect-gate/docs"
	"github.com/creerlio/connect-gate/internal/config"
	httpapi "github.com/creerlio/connect-gate/internal/http"
	"github.com/creerlio/connect-gate/internal/notify"
	"github.com/creerlio/connect-gate/internal/observability"
	"github.com/creerlio/connect-gate/internal/repo"
	"github.com/creerlio/connect-gate/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
// APP_VERSION overrides it.
var version = "dev"

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatal().Err(err).Msg(".env")
	}
	cfg := config.MustLoad()
	version = sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	sysutil.SetupLogger(sysutil.LogOptions{
		Level:   cfg.Log.Level,
		Pretty:  cfg.Log.Pretty,
		Service: cfg.OTEL.ServiceName,
		Version: version,
	})
	gin.SetMode(cfg.GinMode)
	docs.SwaggerInfo.BasePath = cfg.APIBasePath
	docs.SwaggerInfo.Version = version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTEL, observability.Build{
		Version:     version,
		Environment: cfg.GinMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("tracing setup")
	}

	db, err := repo.Open(cfg.DB.Driver, cfg.DB.Path, cfg.DB.DSN)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("db open")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	deps := httpapi.Deps{Notifier: notify.Noop{}}
	var publisher *notify.Publisher
	if cfg.AMQP.URL != "" {
		publisher, err = notify.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Queue)
		if err != nil {
			log.Fatal().Err(err).Msg("amqp connect")
		}
		deps.Notifier = publisher
	}
	if cfg.Redis.Addr != "" {
		deps.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := deps.Redis.Ping(pingCtx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, rate limits fail open until it recovers")
		}
		cancel()
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, db, cfg, deps)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		MaxHeaderBytes:    cfg.Server.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("base_path", cfg.APIBasePath).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("amqp close")
		}
	}
	if deps.Redis != nil {
		_ = deps.Redis.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("tracing shutdown")
	}
}
