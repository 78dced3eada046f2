package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/tenancy/internal/api"
	mw "github.com/edvin/tenancy/internal/api/middleware"
	"github.com/edvin/tenancy/internal/boundary"
	"github.com/edvin/tenancy/internal/cache"
	"github.com/edvin/tenancy/internal/config"
	"github.com/edvin/tenancy/internal/core"
	"github.com/edvin/tenancy/internal/db"
	"github.com/edvin/tenancy/internal/health"
	"github.com/edvin/tenancy/internal/logging"
	"github.com/edvin/tenancy/internal/metrics"
	"github.com/edvin/tenancy/internal/resolver"
)

// sweepInterval is how often expired cache entries are purged.
const sweepInterval = time.Minute

func main() {
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate("tenancy-api"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	if *migrateFlag {
		logger.Info().Msg("running database migrations")
		if err := db.RunMigrations(cfg.CoreDatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	corePool, err := db.NewCorePool(ctx, cfg.CoreDatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to core database")
	}
	defer corePool.Close()
	if err := metrics.RegisterPgxPoolMetrics(prometheus.DefaultRegisterer, "core", corePool); err != nil {
		logger.Fatal().Err(err).Msg("failed to register pool metrics")
	}

	tlsConfig, err := cfg.TemporalTLS()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure temporal TLS")
	}
	dialOpts := temporalclient.Options{HostPort: cfg.TemporalAddress}
	if tlsConfig != nil {
		dialOpts.ConnectionOptions = temporalclient.ConnectionOptions{TLS: tlsConfig}
		logger.Info().Msg("temporal mTLS enabled")
	}
	tc, err := temporalclient.Dial(dialOpts)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to temporal")
	}
	defer tc.Close()

	services := core.NewServices(corePool)

	stack, err := resolver.NewStack(ctx, cfg, services.Connection, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up connection resolver")
	}

	connections := cache.NewCachingResolver(stack.Resolver, cache.Options{
		BaseTTL:    cfg.CacheDuration,
		MaxEntries: cfg.CacheMaxEntries,
	}, logger)
	go connections.Store().Run(ctx, sweepInterval)
	go cache.NewReporter(connections, cfg.CacheSummaryInterval, logger).Run(ctx)

	lifecycle := core.NewTenantLifecycleService(services.Tenant, services.Connection, tc, stack.Key, connections, logger).
		WithEnforcer(boundary.NewEnforcer(logger))
	if stack.Vault != nil {
		lifecycle.WithSecretSaver(stack.Vault)
	}

	if cfg.AutoCreateGlobalTenant {
		if err := lifecycle.EnsureGlobalTenant(ctx, cfg.GlobalTenantID, cfg.GlobalTenantName); err != nil {
			logger.Fatal().Err(err).Msg("failed to ensure global tenant")
		}
	}

	auditLogger := mw.NewAuditLogger(corePool, logger)
	defer auditLogger.Close()

	srv := api.NewServer(logger, cfg, api.Deps{
		CoreDB:       corePool,
		Temporal:     tc,
		Tenants:      services.Tenant,
		Lifecycle:    lifecycle,
		Connections:  connections,
		Health:       health.NewChecker(services.Tenant, connections, health.OptionsFromConfig(cfg), logger),
		CacheMetrics: connections.Metrics(),
		Audit:        auditLogger,
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTPListenAddr,
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("starting tenancy API server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
}
