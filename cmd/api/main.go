package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/userhub/internal/config"
	"github.com/geocoder89/userhub/internal/db"
	httpx "github.com/geocoder89/userhub/internal/http"
	"github.com/geocoder89/userhub/internal/http/handlers"
	"github.com/geocoder89/userhub/internal/http/middlewares"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/geocoder89/userhub/internal/redisclient"
	"github.com/geocoder89/userhub/internal/registry"
	"github.com/geocoder89/userhub/internal/repo/memory"
	"github.com/geocoder89/userhub/internal/repo/postgres"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Load the config set up
	cfg := config.Load()

	// start up the observability logger
	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	ctx := context.Background()

	if cfg.OTELEnabled {
		shutdownTracer, err := observability.InitTracer(ctx, observability.TracingConfig{
			ServiceName: "userhub-api",
			Environment: cfg.Env,
			Endpoint:    cfg.OTELEndpoint,
			SampleRatio: cfg.OTELSampleRatio,
		})
		if err != nil {
			log.Error("tracer init failed", "err", err)
		} else {
			defer func() {
				tctx, cancel := config.WithTimeout(5 * time.Second)
				defer cancel()
				_ = shutdownTracer(tctx)
			}()
		}
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	prom := observability.NewProm(promReg)

	store, checks, closeStore, err := openStore(ctx, cfg, log, prom)
	if err != nil {
		log.Error("store init failed", "driver", cfg.StoreDriver, "err", err)
		os.Exit(1)
	}
	defer closeStore()

	var limiter middlewares.Limiter

	if cfg.RedisAddr != "" {
		rc := redisclient.New(redisclient.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rc.Close()

		if err := rc.Ping(ctx); err != nil {
			// limiter fails open, readiness reports it
			log.Warn("redis ping failed", "addr", cfg.RedisAddr, "err", err)
		}

		limiter = middlewares.NewRedisRateLimiter(rc, "userhub:ratelimit:signup:", cfg.SignupRateLimit, cfg.SignupRateWindow)
		checks = append(checks, handlers.Check{Name: "redis", Ping: rc.Ping})
	}

	reg := registry.New(store, registry.WithLogger(log), registry.WithProm(prom))

	router := httpx.NewRouter(log, cfg, httpx.Deps{
		Users:    reg,
		Checks:   checks,
		Prom:     prom,
		Gatherer: promReg,
		Limiter:  limiter,
	})

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.StoreDriver)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		sctx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		if err := srv.Shutdown(sctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}

// openStore picks the user store for cfg.StoreDriver. For postgres the schema is
// migrated here, before the registry sees its first call.
func openStore(ctx context.Context, cfg config.Config, log *slog.Logger, prom *observability.Prom) (registry.Store, []handlers.Check, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		log.Warn("using in-memory user store; data is lost on restart")
		return memory.NewUsersRepo(), nil, func() {}, nil

	case config.StoreDriverPostgres:
		if cfg.DBMigrateOnStart {
			migrator, err := db.NewMigrator(cfg.DBURL, log)
			if err != nil {
				return nil, nil, nil, err
			}
			if err := migrator.Up(ctx); err != nil {
				return nil, nil, nil, err
			}
		}

		pool, err := db.NewPool(ctx, cfg.DBURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
		}

		checks := []handlers.Check{{Name: "db", Ping: pool.Ping}}
		return postgres.NewUsersRepo(pool, prom), checks, pool.Close, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
