package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/example/bike-help/internal/catalog"
	"github.com/example/bike-help/internal/config"
	"github.com/example/bike-help/internal/dispatch"
	"github.com/example/bike-help/internal/eta"
	"github.com/example/bike-help/internal/geo"
	httpapi "github.com/example/bike-help/internal/http"
	"github.com/example/bike-help/internal/ingest"
	"github.com/example/bike-help/internal/logging"
	"github.com/example/bike-help/internal/monitor"
	"github.com/example/bike-help/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadServerConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Stores: Mongo when configured, in-memory otherwise.
	var (
		points  storage.PointStore
		users   storage.UserStore
		watcher catalog.Watcher
	)
	if cfg.MongoURI != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		ms, err := storage.NewMongoStore(connectCtx, cfg.MongoURI, cfg.MongoDB)
		cancel()
		if err != nil {
			log.Fatalf("mongo: %v", err)
		}
		defer ms.Disconnect(context.Background())
		points, users, watcher = ms, ms, ms
	} else {
		logger.Warn("MONGO_URI not set, using in-memory store")
		mem := storage.NewMemoryStore()
		points, users = mem, mem
	}

	var (
		rgeo     *geo.RedisGeo
		settings storage.SettingsStore = storage.NewMemorySettings()
	)
	if cfg.RedisAddr != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rc.Close()
		rgeo = geo.NewRedisGeo(rc, cfg.PointsGeoKey, cfg.RidersGeoKey)
		settings = storage.NewRedisSettings(rc)
	} else {
		logger.Warn("REDIS_ADDR not set, toggle state is in-memory and geo lookups are disabled")
	}

	var alerts storage.AlertLog = storage.NewMemoryAlertLog()
	if cfg.PGDSN != "" {
		pg, err := storage.NewPostgresAlertLog(cfg.PGDSN)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		alerts = pg
	}

	cat := catalog.New(points, watcher, rgeo, cfg.CatalogRefresh, logger)
	go cat.Run(ctx)

	wsreg := dispatch.NewWSRegistry()
	var fcm *dispatch.FCMDispatcher
	var push dispatch.Notifier
	if cfg.FCMEndpoint != "" {
		fcm = dispatch.NewFCMDispatcher(cfg.FCMEndpoint, cfg.FCMKey)
		push = fcm
	}
	notifier := dispatch.NewPushDispatcher(wsreg, push, alerts, logger)

	mon := monitor.NewManager(cat, notifier, settings, cfg.NotifyRadiusMeters, logger)
	defer mon.StopAll()

	var kp *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		kp = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
	}

	var etaClient eta.Client
	if cfg.OSRMEndpoint != "" {
		etaClient = eta.NewOSRMClient(cfg.OSRMEndpoint)
	}

	srv := httpapi.NewServer(cfg, logger, httpapi.Deps{
		Points:   points,
		Users:    users,
		Settings: settings,
		Alerts:   alerts,
		Catalog:  cat,
		Monitor:  mon,
		Geo:      rgeo,
		Kafka:    kp,
		WSReg:    wsreg,
		FCM:      fcm,
		ETA:      etaClient,
		ETACache: eta.NewCache(5 * time.Minute),
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("bike-help api listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}
