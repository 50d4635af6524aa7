package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/cab-pooling/internal/config"
	"github.com/example/cab-pooling/internal/dispatch"
	httpapi "github.com/example/cab-pooling/internal/http"
	"github.com/example/cab-pooling/internal/ingest"
	"github.com/example/cab-pooling/internal/lock"
	"github.com/example/cab-pooling/internal/logging"
	"github.com/example/cab-pooling/internal/pool"
	"github.com/example/cab-pooling/internal/routing"
	"github.com/example/cab-pooling/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	if cfg.PGDSN != "" && cfg.RunMigrations {
		if err := runMigrations(cfg.PGDSN); err != nil {
			logger.Error("migration failed", "error", err)
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

	var store storage.Store
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		defer ps.Close()
		store = ps
	} else {
		logger.Warn("PG_DSN not set, using in-memory store")
		store = storage.NewMemoryStore()
	}

	var locker lock.Locker
	if cfg.RedisAddr != "" {
		rl := lock.NewRedisLocker(cfg.RedisAddr, cfg.RedisPassword)
		defer rl.Close()
		locker = rl
	} else {
		logger.Warn("REDIS_ADDR not set, using in-process locks")
		locker = lock.NewMemoryLocker()
	}

	var events pool.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kp := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		events = kp
	}

	var router routing.Client
	var routeCache *routing.Cache
	if cfg.OSRMEndpoint != "" {
		router = routing.NewOSRMClient(cfg.OSRMEndpoint)
		routeCache = routing.NewCache(cfg.RouteCacheTTL)
	}

	wsreg := dispatch.NewWSRegistry(logging.ForComponent(logger, "dispatch"))
	notify := dispatch.NewPushDispatcher(cfg.PushEndpoint, wsreg)
	if cfg.FCMEndpoint != "" {
		notify.Fallback = dispatch.NewFCMDispatcher(cfg.FCMEndpoint, cfg.FCMKey)
	}

	matcher := &pool.Matcher{
		Store:          store,
		Locker:         locker,
		LockTTL:        cfg.LockTTL,
		BaseDistanceKm: cfg.DefaultBaseDistanceKm,
		Routing:        router,
		RouteCache:     routeCache,
		Events:         events,
		Notify:         notify,
		Logger:         logging.ForComponent(logger, "matcher"),
	}
	canceller := &pool.Canceller{
		Store:          store,
		Locker:         locker,
		LockTTL:        cfg.LockTTL,
		BaseDistanceKm: cfg.DefaultBaseDistanceKm,
		Events:         events,
		Notify:         notify,
		Logger:         logging.ForComponent(logger, "canceller"),
	}

	srv := httpapi.New(logging.ForComponent(logger, "http"), store, matcher, canceller, wsreg, cfg.DefaultBaseDistanceKm)

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("cab-pooling listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("shut down cleanly")
}

func runMigrations(dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_pooling.sql"))
	if err != nil {
		return err
	}
	_, err = db.Exec(string(b))
	return err
}
