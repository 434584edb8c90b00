// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Webhook routes outside the rate limiter: a throttled provider retry
//     is a lost message
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/legalflow/messaging-backend/internal/config"
	"github.com/legalflow/messaging-backend/internal/dispatchq"
	"github.com/legalflow/messaging-backend/internal/fanout"
	"github.com/legalflow/messaging-backend/internal/gateway"
	"github.com/legalflow/messaging-backend/internal/http/handlers"
	"github.com/legalflow/messaging-backend/internal/http/middleware"
	"github.com/legalflow/messaging-backend/internal/repo"
	"github.com/legalflow/messaging-backend/internal/services"
	"github.com/legalflow/messaging-backend/internal/storage"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), CORS and security
// headers, health and metrics endpoints, the public webhook and media
// routes, and the versioned tenant API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS and Security headers
//
// Tenant resolution, idempotency validation, and rate limiting apply only to
// the /api group: webhooks authenticate by instance name and must never be
// throttled, and /media authenticates by URL signature.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, store *storage.DiskStore, bus fanout.Publisher, queue dispatchq.Publisher, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-API-Key",
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit
	r.Use(limitBody(cfg.MaxBodyBytes))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps
		// tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderTenantID, middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in
		// addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
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
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderTenantID, middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← repo/db/store/brokers
	guard := &services.Guard{DB: db, Log: log.Logger}
	resolver := &services.ContactResolver{DB: db, NameLocale: language.BrazilianPortuguese}
	status := &services.StatusEngine{DB: db, Log: log.Logger}
	media := &services.MediaRelay{
		DB:       db,
		Store:    store,
		Client:   &http.Client{Timeout: cfg.Media.FetchTimeout},
		Log:      log.Logger,
		URLTTL:   cfg.Media.URLTTL,
		MaxBytes: cfg.Media.MaxBytes,
		Observe:  middleware.ObserveMediaRelay,
	}
	disp := &services.Dispatcher{
		DB:         db,
		Registry:   gateway.NewRegistry(),
		Resolver:   resolver,
		Status:     status,
		Media:      media,
		Guard:      guard,
		Fanout:     bus,
		Queue:      queue,
		Log:        log.Logger,
		AsyncMedia: true,
	}
	h := handlers.New(db, disp, guard, media, store, cfg.IdempotencyTTL)

	// Provider webhooks: no tenant header, no rate limiting.
	r.POST("/webhooks/:provider/:instance", h.Webhook)

	// Signed media delivery: the signature is the credential.
	r.GET("/media/*path", h.ServeMedia)

	// Tenant API
	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(middleware.TenantResolver())
	api.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, tenantID, threadID, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, tenantID, threadID, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByTenantOrIP())
	api.Use(rl.Handler())
	{
		// Threads
		api.GET("/threads", h.ListThreads)
		api.PATCH("/threads/:id", h.UpdateThread)

		// Messages
		api.GET("/threads/:id/messages", h.ListMessages)
		api.POST("/threads/:id/messages", h.PostMessage)

		// Media
		api.POST("/messages/:id/media/refresh", h.RefreshMedia)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
