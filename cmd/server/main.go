/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the instructor settlement engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env and the environment, then parse command-line flags
  2. Initialize SQLite store (directory, trainings, distances, holidays)
  3. Open the KV backend for policies and overrides
  4. Build distance providers, settlement service and archiver
  5. Start the event hub and recompute scheduler
  6. Configure HTTP router and serve with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides APP_PORT)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database

ENVIRONMENT:
  See config/config.go. KV_BACKEND selects sqlite, redis, postgres or memory.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler and hub
  4. Close stores

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/warp/settlement-engine/api"
	"github.com/warp/settlement-engine/archive"
	"github.com/warp/settlement-engine/config"
	"github.com/warp/settlement-engine/generic"
	memstore "github.com/warp/settlement-engine/generic/store"
	"github.com/warp/settlement-engine/logging"
	"github.com/warp/settlement-engine/policy"
	"github.com/warp/settlement-engine/region"
	"github.com/warp/settlement-engine/settlement"
	"github.com/warp/settlement-engine/store/postgres"
	"github.com/warp/settlement-engine/store/redis"
	"github.com/warp/settlement-engine/store/sqlite"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()
	cfg.Port, cfg.DBPath = *port, *dbPath

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "settlement-engine")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	kv, feed, closeKV, err := openKV(ctx, cfg, store, logger)
	if err != nil {
		logger.Fatal("failed to open kv backend", zap.String("backend", cfg.KVBackend), zap.Error(err))
	}
	defer closeKV()

	policies := policy.NewStore(kv, feed, logger)
	if feed != nil {
		go func() {
			if err := policies.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("policy watch stopped", zap.Error(err))
			}
		}()
	}

	matrix := region.NewMatrixProvider(region.DefaultMatrix())
	var distances region.DistanceProvider = matrix
	if cfg.DistanceAPI.URL != "" {
		distances = &region.FallbackProvider{
			Primary:   region.NewAPIProvider(cfg.DistanceAPI.URL, cfg.DistanceAPI.Key, cfg.DistanceAPI.Timeout, logger),
			Secondary: matrix,
			Logger:    logger,
		}
	}

	svc := settlement.NewService(settlement.Deps{
		Policies:     policies,
		Distances:    distances,
		Instructors:  store,
		Institutions: store,
		Source:       store,
		Overrides:    settlement.NewOverrideStore(kv, logger),
		Calendar:     store,
		Logger:       logger,
	})

	archiver, files, err := openArchive(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize archive", zap.Error(err))
	}

	hub := api.NewHub(logger)
	go hub.Run(ctx)
	unsubscribe := api.WireEvents(hub, svc, policies)
	defer unsubscribe()

	scheduler := api.NewRecomputeScheduler(svc, logger)
	scheduler.Interval = cfg.RecomputeInterval

	handler := api.NewHandler(api.Deps{
		Service:   svc,
		Policies:  policies,
		Store:     store,
		Archiver:  archiver,
		Files:     files,
		Distances: distances,
		Matrix:    matrix,
		Hub:       hub,
		Scheduler: scheduler,
		Logger:    logger,
	})
	if err := handler.ReloadDistances(ctx); err != nil {
		logger.Fatal("failed to load stored distances", zap.Error(err))
	}
	if err := svc.Start(ctx); err != nil {
		logger.Fatal("initial recompute failed", zap.Error(err))
	}
	scheduler.Start()

	// Configure router
	router := api.NewRouter(handler, cfg.AllowedOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info("server is shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		server.SetKeepAlivesEnabled(false)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("could not gracefully shutdown the server", zap.Error(err))
		}
		scheduler.Stop()
		cancel()
		close(done)
	}()

	logger.Info("server starting",
		zap.Int("port", cfg.Port),
		zap.String("db", cfg.DBPath),
		zap.String("kv_backend", cfg.KVBackend),
		zap.Bool("s3_archive", cfg.S3.Enabled()),
		zap.Bool("distance_api", cfg.DistanceAPI.URL != ""))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("could not listen", zap.Int("port", cfg.Port), zap.Error(err))
	}

	<-done
	logger.Info("server stopped")
}

// openKV returns the policy and override backend. feed is nil when the
// backend cannot announce changes to other processes.
func openKV(ctx context.Context, cfg config.AppConfig, store *sqlite.Store, logger *zap.Logger) (generic.KVStore, generic.ChangeFeed, func(), error) {
	noop := func() {}
	switch cfg.KVBackend {
	case config.BackendRedis:
		raw, err := redis.Connect(redis.Config{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			MaxRetries:  cfg.Redis.MaxRetries,
			DialTimeout: cfg.Redis.DialTimeout,
			Timeout:     cfg.Redis.Timeout,
			Prefix:      cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, nil, noop, err
		}
		s := redis.NewStore(raw, cfg.Redis.Prefix, logger)
		return s, s, func() { s.Close() }, nil

	case config.BackendPostgres:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, noop, err
		}
		s := postgres.NewStore(db, logger)
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, nil, noop, err
		}
		return s, nil, func() { s.Close() }, nil

	case config.BackendMemory:
		m := memstore.NewMemory()
		return m, m, noop, nil

	default:
		return store, nil, noop, nil
	}
}

// openArchive picks S3 when configured, otherwise the local export dir.
// files is non-nil only for the local sink.
func openArchive(cfg config.AppConfig, logger *zap.Logger) (*archive.Archiver, *archive.LocalSink, error) {
	if cfg.S3.Enabled() {
		sink, err := archive.NewS3Sink(archive.S3Config{
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Bucket:          cfg.S3.Bucket,
			UseSSL:          cfg.S3.UseSSL,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			URLTTL:          cfg.S3.URLTTL,
		})
		if err != nil {
			return nil, nil, err
		}
		return archive.NewArchiver(sink, logger), nil, nil
	}
	sink, err := archive.NewLocalSink(cfg.ExportDir, cfg.ExportPublicPrefix)
	if err != nil {
		return nil, nil, err
	}
	return archive.NewArchiver(sink, logger), sink, nil
}
