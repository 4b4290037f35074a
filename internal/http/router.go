// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, compression, and rate limiting.
//
// Provider webhooks and the operator API share one engine but not one
// posture: webhooks authenticate by path token and are never rate limited,
// operator routes are limited per client IP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-live-presence/internal/config"
	"github.com/tbourn/go-live-presence/internal/http/handlers"
	"github.com/tbourn/go-live-presence/internal/http/middleware"
)

const (
	maxBodyBytes  = 1 << 20
	healthTimeout = 2 * time.Second
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators RegisterRoutes mounts.
type Deps struct {
	Webhooks   handlers.WebhookService
	Broadcasts handlers.BroadcastService
	Rooms      handlers.RoomService
	Exports    handlers.ExportJobService

	// Health is pinged by GET /health; nil always reports ok.
	Health HealthChecker
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with token and PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS and Security headers
//
// The rate limiter is applied per group, not globally.
func RegisterRoutes(r *gin.Engine, cfg config.Config, deps Deps) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(corsMiddleware(cfg.CORS)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", healthHandler(deps.Health))
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(handlers.Options{
		Webhooks:      deps.Webhooks,
		Broadcasts:    deps.Broadcasts,
		Rooms:         deps.Rooms,
		Exports:       deps.Exports,
		WebhookSecret: cfg.WebhookSecret,
	})

	api := groupWithPrefix(r, cfg.APIBasePath)

	if deps.Webhooks != nil {
		api.POST("/webhooks/:token/session", h.SessionWebhook)
		api.POST("/webhooks/:token/archive", h.ArchiveWebhook)
	}

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientIP())
	ops := api.Group("", rl.Handler())
	if deps.Broadcasts != nil {
		ops.POST("/events/:id/broadcast/reconcile", h.ReconcileEventBroadcast)
		ops.POST("/events/:id/broadcast/stop", h.StopEventBroadcast)
	}
	if deps.Rooms != nil {
		ops.POST("/rooms/:id/token", h.IssueRoomToken)
		ops.GET("/rooms/:id/participants/count", h.RoomParticipantCount)
	}
	if deps.Exports != nil {
		ops.GET("/export-jobs", gzip.Gzip(gzip.DefaultCompression), h.ListExportJobs)
		ops.POST("/export-jobs", h.EnqueueExportJob)
	}
}

// healthHandler reports 200 when the checker answers within healthTimeout,
// 503 otherwise.
func healthHandler(hc HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if hc == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()
		if err := hc.Ping(ctx); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": "unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "redis": "ok"})
	}
}

// corsMiddleware returns the CORS posture: allow-all when no origins are
// configured, otherwise an allowlist with the Origin echoed back.
func corsMiddleware(cc config.CORSConfig) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if len(cc.AllowedOrigins) == 0 {
		base.AllowAllOrigins = true
		return []gin.HandlerFunc{
			// ACAO even without an Origin header (simple health checks).
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(cc.AllowedOrigins))
	for _, o := range cc.AllowedOrigins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = cc.AllowedOrigins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// limitBody caps request bodies at maxBytes; reads past the cap fail.
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
