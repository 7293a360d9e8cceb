package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ehr/claims/internal/config"
	"github.com/ehr/claims/internal/domain/adjudication"
	"github.com/ehr/claims/internal/domain/billing"
	"github.com/ehr/claims/internal/domain/catalog"
	"github.com/ehr/claims/internal/domain/claim"
	"github.com/ehr/claims/internal/domain/coverage"
	"github.com/ehr/claims/internal/platform/auth"
	"github.com/ehr/claims/internal/platform/db"
	"github.com/ehr/claims/internal/platform/events"
	"github.com/ehr/claims/internal/platform/locker"
	"github.com/ehr/claims/internal/platform/metrics"
	"github.com/ehr/claims/internal/platform/middleware"
	"github.com/ehr/claims/internal/platform/reporting"
	"github.com/ehr/claims/internal/platform/validate"
)

const version = "0.1.0"

func runServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	// Database
	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	checks := map[string]db.Check{"database": db.PoolCheck(pool)}

	// Redis backs the aggregate locks and the catalog cache when configured.
	var (
		locks        locker.Locker = locker.NewMemoryLocker()
		catalogCache catalog.Cache = catalog.NoCache{}
	)
	if cfg.RedisURL != "" {
		client, err := locker.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		locks = locker.NewRedisLocker(client, "claims:lock:")
		catalogCache = catalog.NewRedisCache(client, "claims:", cfg.CatalogCacheTTL)
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		logger.Info().Msg("connected to redis")
	} else {
		logger.Warn().Msg("REDIS_URL not set; using in-process locks")
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.AMQPURL != "" {
		p, err := events.Dial(cfg.AMQPURL, cfg.EventsExchange, logger)
		if err != nil {
			return err
		}
		defer p.Close()
		publisher = p
		logger.Info().Str("exchange", cfg.EventsExchange).Msg("publishing lifecycle events")
	}

	// Domain services
	tx := db.NewTransactor(pool)
	policySvc := coverage.NewService(coverage.NewPolicyRepoPG(pool), logger)

	catalogSvc := catalog.NewService(catalog.NewRepoPG(pool), logger)
	catalogSvc.SetCache(catalogCache)

	claimSvc := claim.NewService(claim.NewRepoPG(pool), logger,
		claim.WithLocker(locks),
		claim.WithLockTTL(cfg.LockTTL),
		claim.WithPublisher(publisher),
		claim.WithTxRunner(tx),
	)

	billSvc := billing.NewService(billing.NewRepoPG(pool), policySvc, claimSvc, logger,
		billing.WithLocker(locks),
		billing.WithLockTTL(cfg.LockTTL),
		billing.WithPublisher(publisher),
		billing.WithTxRunner(tx),
		billing.WithCatalog(catalogSvc),
		billing.WithUsage(claimSvc),
		billing.WithAdjudicator(adjudication.New(claim.NewIDGenerator(nil, nil), time.Now)),
	)
	// Insurer decisions on a claim move the bill it was raised for.
	claimSvc.SetListener(billSvc)

	reportSvc := reporting.NewService(reporting.NewPGSource(pool), logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	validate.Register(e)

	e.Use(middleware.RequestID())
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.TLSEnabled))
	e.Use(metrics.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Request-ID", db.TenantHeader, auth.DevRolesHeader},
		ExposeHeaders: []string{"Link", echo.HeaderContentDisposition},
	}))

	if cfg.ResolvedAuthMode() == "development" {
		logger.Warn().Msg("authentication disabled (AUTH_MODE=development)")
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	scoped := []echo.MiddlewareFunc{
		db.TenantMiddleware(pool, cfg.DefaultTenant),
		middleware.RateLimit(rateLimitCfg),
		middleware.Audit(logger),
	}
	apiV1 := e.Group("/api/v1", scoped...)
	fhirGroup := e.Group("/fhir", scoped...)

	coverage.NewHandler(policySvc).RegisterRoutes(apiV1)
	catalog.NewHandler(catalogSvc).RegisterRoutes(apiV1)
	claim.NewHandler(claimSvc).RegisterRoutes(apiV1, fhirGroup)
	billing.NewHandler(billSvc).RegisterRoutes(apiV1, fhirGroup)
	reporting.NewHandler(reportSvc).RegisterRoutes(apiV1)

	e.GET("/health", db.HealthHandler(checks, func() interface{} {
		return map[string]string{"version": version}
	}))
	e.GET("/health/db", db.HealthHandler(map[string]db.Check{"database": db.PoolCheck(pool)}, func() interface{} {
		return db.GetPoolStats(pool)
	}))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	if cfg.OverdueSweepPeriod > 0 {
		sw := &overdueSweeper{
			period:  cfg.OverdueSweepPeriod,
			tenants: func(ctx context.Context) ([]string, error) { return db.ListTenants(ctx, pool) },
			sweep: func(ctx context.Context, tenant string) (int, error) {
				var n int
				err := db.WithTenantConn(ctx, pool, tenant, func(ctx context.Context) error {
					var err error
					n, err = billSvc.SweepOverdue(ctx)
					return err
				})
				return n, err
			},
			log: logger,
		}
		go sw.run(ctx)
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
