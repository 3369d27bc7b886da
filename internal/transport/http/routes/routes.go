package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/coinvendo/gateway/internal/infra/config"
	"github.com/coinvendo/gateway/internal/transport/http/handlers"
	"github.com/coinvendo/gateway/internal/transport/http/middleware"
	"github.com/coinvendo/gateway/internal/usecase"
)

// ServiceSet groups the usecases the HTTP layer depends on.
type ServiceSet struct {
	Sources *usecase.SourceRegistry
	Coins   *usecase.CoinAggregator
	Sales   *usecase.SalesReportService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Services    ServiceSet
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware. This is
// the reference external-adapter boundary: health/readiness/metrics plus
// the authenticated sub-device heartbeat/pulse adapter. It is explicitly
// not the portal HTML/JSON server named as a Non-goal.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(deps.Config.App.CORSOrigins))

	if httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Namespace: "gateway"}); err != nil {
		deps.Logger.Warn("http metrics disabled", zap.Error(err))
	} else {
		r.Use(httpMetrics.Handler())
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("postgres", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		if deps.Services.Sources != nil && deps.Services.Coins != nil {
			secretMiddleware := middleware.RequireSourceSecret(deps.Services.Sources)
			sourceLimiter := buildSourceRateLimit(deps)

			sourceHandler := handlers.NewSourceHandler(deps.Services.Sources, deps.Services.Coins, deps.Logger)
			sourceGroup := api.Group("/sources")
			if sourceLimiter != nil {
				sourceGroup.Use(sourceLimiter)
			}
			sourceHandler.RegisterRoutes(sourceGroup, secretMiddleware)
		}

		if deps.Services.Sales != nil {
			salesHandler := handlers.NewSalesHandler(deps.Services.Sales)
			salesGroup := api.Group("/sales")
			salesHandler.RegisterRoutes(salesGroup)
		}
	}

	return r
}

// buildSourceRateLimit throttles sub-device callbacks per source id,
// independent of FailAttemptGate's per-MAC ban bookkeeping at the usecase
// layer: this bounds HTTP-edge volume from a single misbehaving device.
func buildSourceRateLimit(deps Dependencies) gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil {
		return nil
	}

	limit := deps.Config.PacketPolicy.SourceRequestsPerMinute
	if limit <= 0 {
		return nil
	}

	rule := middleware.RateLimitRule{
		Name:  "source_callback",
		Limit: limit,
		Window: deps.Config.PacketPolicy.SourceRequestWindow,
		Identifier: func(c *gin.Context) (string, bool) {
			id := c.Param("source_id")
			if id == "" {
				return "", false
			}
			return id, true
		},
	}

	return deps.RateLimiter.RateLimit(rule)
}
