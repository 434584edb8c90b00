// Command server runs the messaging backend: webhook ingestion from the
// messaging gateways, the tenant-facing thread/message API, signed media
// delivery, and the live fan-out bus.
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
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/legalflow/messaging-backend/internal/config"
	"github.com/legalflow/messaging-backend/internal/dispatchq"
	"github.com/legalflow/messaging-backend/internal/fanout"
	httpapi "github.com/legalflow/messaging-backend/internal/http"
	"github.com/legalflow/messaging-backend/internal/observability"
	"github.com/legalflow/messaging-backend/internal/repo"
	"github.com/legalflow/messaging-backend/internal/storage"
	"github.com/legalflow/messaging-backend/internal/sysutil"
)

// version is stamped by the build (-ldflags "-X main.version=...").
var version = "dev"

func main() {
	// .env is optional; production images set SKIP_DOTENV and configure
	// through the environment.
	if !sysutil.IsTruthy(os.Getenv("SKIP_DOTENV")) {
		_ = godotenv.Load()
	}
	version = sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("database open failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}

	secret := []byte(cfg.Media.Secret)
	if len(secret) == 0 {
		log.Fatal().Msg("MEDIA_SECRET must be set")
	}
	store, err := storage.NewDiskStore(cfg.Media.Dir, cfg.Media.BaseURL, secret)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Media.Dir).Msg("media store init failed")
	}

	// Live fan-out: Redis when configured, in-process bus otherwise.
	var bus fanout.Publisher
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis ping failed")
		}
		bus = fanout.NewRedisBus(client)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("fanout: redis")
	} else {
		bus = fanout.NewMemoryBus()
		log.Info().Msg("fanout: in-process bus")
	}
	defer func() { _ = bus.Close() }()

	// Outbound dispatch queue: AMQP when configured, no-op otherwise.
	var queue dispatchq.Publisher = dispatchq.Noop{}
	if cfg.AMQP.URL != "" {
		pub, err := dispatchq.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("amqp connect failed")
		}
		queue = pub
		log.Info().Str("exchange", cfg.AMQP.Exchange).Msg("dispatch queue: amqp")
	} else {
		log.Warn().Msg("dispatch queue: disabled, outbound sends stay QUEUED")
	}
	defer func() { _ = queue.Close() }()

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, store, bus, queue, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
