// Command gatewaycore is the local AI-provider gateway's server binary: it
// loads configuration and persisted state, assembles the dispatch pipeline,
// and serves the OpenAI- and Anthropic-compatible HTTP surface until
// interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/localgw/gatewaycore/internal/admission"
	"github.com/localgw/gatewaycore/internal/balancer"
	"github.com/localgw/gatewaycore/internal/config"
	"github.com/localgw/gatewaycore/internal/credpool"
	"github.com/localgw/gatewaycore/internal/dispatch"
	"github.com/localgw/gatewaycore/internal/health"
	"github.com/localgw/gatewaycore/internal/httpapi"
	"github.com/localgw/gatewaycore/internal/observer"
	"github.com/localgw/gatewaycore/internal/obslog"
	"github.com/localgw/gatewaycore/internal/resilience"
	"github.com/localgw/gatewaycore/internal/routeregistry"
	"github.com/localgw/gatewaycore/internal/scheduler"
	"github.com/localgw/gatewaycore/internal/store"
	"github.com/localgw/gatewaycore/internal/telemetry"
	"github.com/localgw/gatewaycore/internal/tokencache"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "gateway.yaml", "Path to the gateway config file")
	production := flag.Bool("prod", false, "Emit JSON logs instead of the human-readable console encoder")
	flag.Parse()

	bus := observer.New(64)

	bootLogger, err := obslog.New("info", *production)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer bootLogger.Sync()

	watcher, err := config.NewWatcher(*configPath, bus, bootLogger)
	if err != nil {
		bootLogger.Fatal("load config", zap.Error(err))
	}
	cfg := watcher.Current()

	logger, err := obslog.New(cfg.LogLevel, *production)
	if err != nil {
		bootLogger.Warn("invalid log_level in config, keeping boot logger", zap.Error(err))
		logger = bootLogger
	}

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer db.Close()

	pools, err := loadPools(db)
	if err != nil {
		logger.Fatal("load credentials", zap.Error(err))
	}

	routes := routeregistry.New()
	persistedRoutes, err := db.LoadRoutes()
	if err != nil {
		logger.Fatal("load routes", zap.Error(err))
	}
	for _, r := range persistedRoutes {
		routes.Register(r)
	}
	ensureDefaultRoutes(routes, pools, cfg.DefaultProvider)

	lookup := func(provider string) (*credpool.Pool, bool) {
		p, ok := pools[provider]
		return p, ok
	}
	mapper := balancer.NewModelMapper()
	bal := balancer.New(lookup, mapper, cfg.FallbackMap)

	dispatchReg := dispatch.NewRegistry(2 * time.Minute)
	dispatch.RegisterDefaults(dispatchReg)

	cache := tokencache.New()
	healthByFamily := make(map[string]resilience.HealthReporter, len(pools))
	for family, pool := range pools {
		healthByFamily[family] = health.New(pool, cfg.Cooldown, cache)
	}

	pipeline := resilience.New(bal, dispatchReg, healthByFamily, cfg.Retry, time.Now().UnixNano())

	promReg := prometheus.NewRegistry()
	sink := telemetry.New(db, promReg)
	estimator := telemetry.NewEstimator()

	deps := httpapi.Deps{
		Registry:  routes,
		Pools:     pools,
		Mapper:    mapper,
		Pipeline:  pipeline,
		Telemetry: sink,
		Estimator: estimator,
		Logger:    logger,
		DefaultProvider: func() string {
			return watcher.Current().DefaultProvider
		},
		RequestTimeout: cfg.Retry.Timeout,
	}

	admissionCfg := admission.Config{
		APIKey:      cfg.GatewayAPIKey,
		PublicPaths: []string{"/health"},
	}

	router := httpapi.NewRouter(deps, admissionCfg)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	sched := scheduler.New(logger)
	registerSweeps(sched, pools, sink, &cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := watcher.Run(ctx); err != nil {
			logger.Warn("config watcher stopped", zap.Error(err))
		}
	}()
	sched.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Fatal("server failed", zap.Error(err))
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	sched.Stop()
}

// loadPools groups every persisted credential into one pool per provider
// family, matching credpool.Pool's single-family invariant.
func loadPools(db *store.Store) (map[string]*credpool.Pool, error) {
	creds, err := db.LoadAllCredentials()
	if err != nil {
		return nil, err
	}
	pools := make(map[string]*credpool.Pool)
	for _, c := range creds {
		pool, ok := pools[c.ProviderType]
		if !ok {
			pool = credpool.New(c.ProviderType)
			pools[c.ProviderType] = pool
		}
		if err := pool.Add(c); err != nil {
			return nil, err
		}
	}
	return pools, nil
}

// ensureDefaultRoutes registers a DefaultRoute for any provider family that
// has credentials but no persisted route, so a freshly provisioned
// credential is reachable without a separate route-creation step.
func ensureDefaultRoutes(routes *routeregistry.Registry, pools map[string]*credpool.Pool, defaultProvider string) {
	for family := range pools {
		if len(routes.RoutesByProvider(family)) == 0 {
			routes.Register(routeregistry.DefaultRoute(family))
		}
	}
}

// registerSweeps installs the gateway's two periodic background jobs: the
// cooldown-expiry sweep (spec §4.4, belt-and-suspenders alongside the
// on-access check in credpool.Pool.NextAvailable) and telemetry retention
// pruning (spec §8).
func registerSweeps(sched *scheduler.Scheduler, pools map[string]*credpool.Pool, sink *telemetry.Sink, cfg *config.Config, logger *zap.Logger) {
	if err := sched.Register(scheduler.Task{
		Name: "refresh_cooldowns",
		Cron: "@every 10s",
		Run: func(ctx context.Context) error {
			for _, pool := range pools {
				pool.RefreshCooldowns()
			}
			return nil
		},
	}); err != nil {
		logger.Warn("register refresh_cooldowns task", zap.Error(err))
	}

	if err := sched.Register(scheduler.Task{
		Name: "telemetry_cleanup",
		Cron: "@every 1h",
		Run: func(ctx context.Context) error {
			n, err := sink.Cleanup(cfg.TelemetryRetention)
			if err != nil {
				return err
			}
			logger.Debug("telemetry cleanup", zap.Int64("rows_deleted", n))
			return nil
		},
	}); err != nil {
		logger.Warn("register telemetry_cleanup task", zap.Error(err))
	}
}
