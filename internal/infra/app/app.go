package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/coinvendo/gateway/internal/core/port"
	"github.com/coinvendo/gateway/internal/infra/config"
	"github.com/coinvendo/gateway/internal/infra/database"
	kafkainfra "github.com/coinvendo/gateway/internal/infra/kafka"
	"github.com/coinvendo/gateway/internal/infra/logger"
	"github.com/coinvendo/gateway/internal/infra/packetpolicy"
	redisinfra "github.com/coinvendo/gateway/internal/infra/redis"
	"github.com/coinvendo/gateway/internal/infra/security"
	"github.com/coinvendo/gateway/internal/infra/telemetry"
	postgresrepo "github.com/coinvendo/gateway/internal/repository/postgres"
	redisrepo "github.com/coinvendo/gateway/internal/repository/redis"
	"github.com/coinvendo/gateway/internal/transport/http/middleware"
	"github.com/coinvendo/gateway/internal/transport/http/routes"
	"github.com/coinvendo/gateway/internal/usecase"
)

// Application wires every component named in the appliance gateway's
// design into one long-running process: Postgres-backed session/sales
// state, a Redis-backed abuse gate and status fanout, the packet-policy
// adapter shelling to ipset/tc, and the background loops that keep
// sessions, coin sessions and idle detection moving without an HTTP
// request driving them.
type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redisinfra.Client

	store      *usecase.SessionStore
	aggregator *usecase.CoinAggregator
	ticker     *usecase.Ticker
	idle       *usecase.IdleMonitor
	portal     *usecase.PortalService
	producer   *kafkainfra.Producer
	tracer     *telemetry.TracerProvider
}

// New builds the Application: logger, telemetry, storage, the usecase
// graph, and finally the HTTP adapter layer. It does not start any
// background loop; that happens in Run.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	telemetryProvider, err := telemetry.Attach(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	tracerProvider, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		log.Warn("failed to init tracer provider, continuing without distributed tracing", zap.Error(err))
		tracerProvider = nil
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)

	failureRepo := redisrepo.NewFailureRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: "gateway:fail",
		TTL:       2 * cfg.FailAttempt.BanFor,
	})
	statusCache := redisrepo.NewCoinStatusCache(redisClient.Client(), "gateway:coin_status")
	heartbeatStore := redisrepo.NewHeartbeatRateLimitStore(redisClient.Client(), "gateway:httprl")

	eventPublisher, producer := buildEventPublisher(cfg, log)

	sourceAuth := security.NewArgon2CoinSourceAuthenticator(repos.Sources)
	identityMgr := security.NewJWTClientIdentityManager([]byte(cfg.ClientCookie.SigningSecret))

	policyAdapter := packetpolicy.NewAdapter(packetpolicy.Config{
		ProbeTimeout:   cfg.PacketPolicy.ProbeTimeout,
		RewriteTimeout: cfg.PacketPolicy.RewriteTimeout,
		IpsetName:      cfg.PacketPolicy.IpsetName,
		TcClassParent:  cfg.PacketPolicy.TcClassParent,
	}, log)

	sourceRegistry := usecase.NewSourceRegistry(repos.Sources, sourceAuth, log)
	if err := sourceRegistry.EnsureLocal(ctx, cfg.Coin.LocalPulseValue); err != nil {
		return nil, fmt.Errorf("ensure local source: %w", err)
	}

	rateTable := usecase.NewRateTable(repos.Rates)
	sources, err := sourceRegistry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	sourceIDs := make([]string, 0, len(sources))
	for _, src := range sources {
		sourceIDs = append(sourceIDs, src.ID)
	}
	if err := rateTable.Reload(ctx, sourceIDs); err != nil {
		return nil, fmt.Errorf("load rate table: %w", err)
	}
	ratePlanner := usecase.NewRatePlanner(rateTable)

	store := usecase.NewSessionStore(repos.Users, policyAdapter, log, sessionWorkers)
	identityResolver := usecase.NewIdentityResolver(store, log)
	creditApplier := usecase.NewCreditApplier(store, repos.Sales, ratePlanner, sourceRegistry, eventPublisher, log)

	aggregator := usecase.NewCoinAggregator(ratePlanner, creditApplier, eventPublisher, log, cfg.Coin.BanLimitPulsesPerWindow, cfg.Coin.PulseAbuseWindow)
	aggregator.SetStatusPublisher(localApplianceID, statusCache)

	failGate := usecase.NewFailAttemptGate(failureRepo, cfg.FailAttempt.BanLimit, cfg.FailAttempt.BanFor)

	tick := usecase.NewTicker(store, policyAdapter, eventPublisher, log, cfg.PacketPolicy.Iface, cfg.Ticker.TrafficSampleInterval, cfg.Ticker.AuthReconcileInterval)
	tick.SetMetrics(telemetryProvider)

	idleMonitor := usecase.NewIdleMonitor(store, policyAdapter, log, cfg.IdleMonitor.StallThreshold)

	location, err := time.LoadLocation(cfg.App.TimeZone)
	if err != nil {
		location = time.UTC
	}
	salesReports := usecase.NewSalesReportService(repos.Sales, location)

	portal := usecase.NewPortalService(identityResolver, aggregator, creditApplier, ratePlanner, sourceRegistry, failGate, store, identityMgr)

	rateLimiter := middleware.NewRateLimiter(heartbeatStore, log)

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Database:    pool,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Sources: sourceRegistry,
			Coins:   aggregator,
			Sales:   salesReports,
		},
	})

	return &Application{
		cfg:        cfg,
		engine:     engine,
		logger:     log,
		pool:       pool,
		redis:      redisClient,
		store:      store,
		aggregator: aggregator,
		ticker:     tick,
		idle:       idleMonitor,
		portal:     portal,
		producer:   producer,
		tracer:     tracerProvider,
	}, nil
}

const (
	// sessionWorkers sizes SessionStore's PacketPolicy worker pool; the
	// mutation writer itself is always a single goroutine.
	sessionWorkers = 2
	// localApplianceID names this process's own coin-acceptor source in
	// the status cache. A single appliance runs one gateway instance, so
	// the id is fixed rather than derived from request state.
	localApplianceID = "local"
)

// buildEventPublisher wires the Kafka-backed publisher when brokers are
// configured, falling back to the logging stub otherwise. It returns the
// underlying Producer too (nil when the stub is used) so Run can close
// it on shutdown.
func buildEventPublisher(cfg *config.AppConfig, log *zap.Logger) (port.EventPublisher, *kafkainfra.Producer) {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Info("kafka brokers not configured, using stub publisher")
		return kafkainfra.NewStubPublisher(log), nil
	}

	producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
	if err != nil {
		log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(log), nil
	}

	return kafkainfra.NewEventPublisher(producer, cfg.App, log), producer
}

// Portal exposes the plain-Go facade consumed by the external portal
// server process (out of scope here): status/coin-insert/credit/pause
// all flow through it rather than any HTTP route this package registers.
func (a *Application) Portal() *usecase.PortalService {
	return a.portal
}

// Run starts every background loop (SessionStore's writer, CoinAggregator's
// deadline sweep, the 1Hz Ticker, IdleMonitor's sweep) alongside the HTTP
// server, and shuts all of it down together when ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	defer func() { _ = a.logger.Sync() }()
	defer a.pool.Close()
	defer func() { _ = a.redis.Close() }()
	defer func() {
		if a.producer != nil {
			_ = a.producer.Close()
		}
	}()
	defer func() {
		if a.tracer != nil {
			if err := a.tracer.Shutdown(context.Background()); err != nil {
				a.logger.Warn("tracer provider shutdown failed", zap.Error(err))
			}
		}
	}()

	go a.store.Run(ctx)
	go a.aggregator.Run(ctx)
	go a.ticker.Run(ctx)
	go a.idle.Run(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting coin gateway",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
