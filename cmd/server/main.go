package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/content-import-service/internal/cache"
	"github.com/SAP-F-2025/content-import-service/internal/config"
	"github.com/SAP-F-2025/content-import-service/internal/handlers"
	"github.com/SAP-F-2025/content-import-service/internal/repositories/memory"
	"github.com/SAP-F-2025/content-import-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/content-import-service/internal/repositories/redisstore"
	"github.com/SAP-F-2025/content-import-service/internal/services"
	"github.com/SAP-F-2025/content-import-service/internal/utils"
	"github.com/SAP-F-2025/content-import-service/internal/validator"
	"github.com/SAP-F-2025/content-import-service/pkg"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("content import service: %v", err)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := utils.NewLogger(cfg.Environment)
	slogger := logger.Slog()

	zapLogger, err := newZapLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = zapLogger.Sync() }()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	slogger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"job_store", cfg.JobStore,
		"cache_backend", cfg.CacheBackend)

	deps, closeDeps, err := buildDependencies(cfg, zapLogger)
	if err != nil {
		return err
	}
	defer closeDeps()

	if cfg.Category.MedicalDictionaryPath != "" {
		dictionary, err := services.LoadMedicalDictionary(cfg.Category.MedicalDictionaryPath)
		if err != nil {
			return fmt.Errorf("failed to load medical dictionary: %w", err)
		}
		deps.Dictionary = dictionary
	}

	publisher, err := cfg.Events.CreateEventPublisher(slogger)
	if err != nil {
		return fmt.Errorf("failed to create event publisher: %w", err)
	}
	defer publisher.Close()
	deps.Publisher = publisher

	manager := services.NewServiceManager(deps, services.ManagerConfig{
		Processor: services.ProcessorConfig{
			ChunkSize:         cfg.Batch.ChunkSize,
			ChunkTimeout:      cfg.Batch.ChunkTimeout,
			CommitConcurrency: cfg.Batch.CommitConcurrency,
			ChunkDelay:        cfg.Batch.ChunkDelay,
		},
		Parser: services.ParserConfig{
			MaxBytes: cfg.Upload.MaxBytes,
			MaxItems: cfg.Upload.MaxItems,
		},
		Matcher: services.MatcherConfig{CacheTTL: cfg.Category.CacheTTL},
	}, slogger)
	processor := manager.Processor()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if resumed, err := processor.ResumeInterrupted(ctx); err != nil {
		slogger.Error("failed to resume interrupted imports", "error", err)
	} else if resumed > 0 {
		slogger.Info("interrupted imports resumed", "count", resumed)
	}

	go runCleanup(ctx, processor, cfg.Batch.CleanupInterval, cfg.Batch.JobRetention, logger)

	hm := handlers.NewHandlerManager(manager, validator.New(), logger, handlers.RouterConfig{
		CORSOrigins: cfg.CORSOrigins,
		MaxBytes:    cfg.Upload.MaxBytes,
		ChunkSize:   cfg.Batch.ChunkSize,
		Auth:        handlers.NewTokenParser(cfg.Auth),
	})
	if !cfg.Auth.Enabled() {
		slogger.Warn("Casdoor is not configured, callers are identified by the X-User-ID header")
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           hm.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slogger.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("failed to serve HTTP: %w", err)
		}
	case <-ctx.Done():
		slogger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slogger.Error("HTTP server shutdown failed", "error", err)
	}
	// running imports pause at their next chunk boundary and resume on restart
	if err := processor.Shutdown(shutdownCtx); err != nil {
		slogger.Error("batch processor shutdown failed", "error", err)
	}

	slogger.Info("server stopped")
	return nil
}

func newZapLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// buildDependencies opens the stores selected by JOB_STORE and CACHE_BACKEND.
// JOB_STORE=memory runs without a database.
func buildDependencies(cfg *config.Config, zapLogger *zap.Logger) (services.Dependencies, func(), error) {
	var (
		deps    services.Dependencies
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var redisClient *redis.Client
	if cfg.JobStore == "redis" || cfg.CacheBackend == "redis" {
		client, err := pkg.NewRedisClient(context.Background(), cfg)
		if err != nil {
			return deps, closeAll, err
		}
		redisClient = client
		closers = append(closers, func() { _ = client.Close() })
	}

	if cfg.CacheBackend == "redis" {
		deps.Cache = cache.NewRedisCache(redisClient, zapLogger)
	} else {
		deps.Cache = cache.NewMemoryCache()
	}

	if cfg.JobStore == "memory" {
		deps.Documents = memory.NewDocumentStore()
		deps.Jobs = memory.NewJobStore()
		deps.Backups = memory.NewBackupRepository()
		deps.Audits = memory.NewAuditRepository()
		deps.History = memory.NewMappingHistoryRepository()
		return deps, closeAll, nil
	}

	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		closeAll()
		return deps, func() {}, err
	}
	closers = append(closers, closeDB(db))

	deps.Documents = postgres.NewDocumentStorePostgreSQL(db)
	deps.Backups = postgres.NewBackupPostgreSQL(db)
	deps.Audits = postgres.NewAuditPostgreSQL(db)
	deps.History = postgres.NewMappingHistoryPostgreSQL(db)

	switch cfg.JobStore {
	case "redis":
		deps.Jobs = redisstore.NewJobStore(redisClient, cfg.Batch.JobRetention, zapLogger)
	case "postgres":
		deps.Jobs = postgres.NewJobStorePostgreSQL(db)
	default:
		closeAll()
		return deps, func() {}, fmt.Errorf("unknown JOB_STORE %q", cfg.JobStore)
	}

	return deps, closeAll, nil
}

func closeDB(db *gorm.DB) func() {
	return func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// runCleanup purges finished jobs past retention until ctx is done
func runCleanup(ctx context.Context, processor services.BatchProcessor, interval, retention time.Duration, logger utils.Logger) {
	if interval <= 0 || retention <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := processor.CleanupJobs(ctx, retention)
			if err != nil {
				logger.LogError(err, "job cleanup failed")
				continue
			}
			if removed > 0 {
				logger.Info("finished jobs purged", "removed", removed)
			}
		}
	}
}
