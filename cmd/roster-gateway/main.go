package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/roster-gateway/internal/handler"
	"github.com/noah-isme/roster-gateway/internal/middleware"
	"github.com/noah-isme/roster-gateway/internal/repository"
	"github.com/noah-isme/roster-gateway/internal/service"
	"github.com/noah-isme/roster-gateway/pkg/cache"
	"github.com/noah-isme/roster-gateway/pkg/chat"
	"github.com/noah-isme/roster-gateway/pkg/config"
	"github.com/noah-isme/roster-gateway/pkg/database"
	"github.com/noah-isme/roster-gateway/pkg/events"
	"github.com/noah-isme/roster-gateway/pkg/export"
	"github.com/noah-isme/roster-gateway/pkg/jobs"
	"github.com/noah-isme/roster-gateway/pkg/logger"
	"github.com/noah-isme/roster-gateway/pkg/storage"
	"github.com/noah-isme/roster-gateway/pkg/webhook"
)

// @title Roster Gateway API
// @version 1.0.0
// @description Attendance roster sessions and lesson media exports driven by a chat adapter
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	} else {
		logr.Warn("redis disabled, forms and locks are kept in process memory")
	}

	publisher, err := events.New(cfg.Events, logr.Named("events"))
	if err != nil {
		return fmt.Errorf("init events: %w", err)
	}
	defer publisher.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()
	validate := validator.New()

	rosterRepo := repository.NewRosterRepository(db)
	mediaRepo := repository.NewMediaRepository(db)
	exportJobRepo := repository.NewExportJobRepository(db)
	formRepo := repository.NewFormRepository(redisClient, cfg.Roster.FormTTL)
	lockRepo := repository.NewLockRepository(redisClient)
	cacheRepo := repository.NewCacheRepository(redisClient, logr.Named("cache"))
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Export.LinkCacheTTL, logr.Named("cache"), true)

	chatClient := chat.New(cfg.Chat, logr.Named("chat"))
	sinks := webhook.NewClient(logr.Named("webhook"), metricsSvc.ObserveSinkCall)

	notifier := service.NewNotifierService(chatClient, cfg.Chat.AdminChatIDs, logr)
	addresses := service.NewAddressService(rosterRepo, cfg.Roster.CodeAttempts, logr)
	presenter := service.NewPresenterService(rosterRepo, cfg.Roster.PageSize, logr)
	verification := service.NewVerificationService(rosterRepo, sinks, lockRepo, publisher, cfg.Sinks, logr)
	submissions := service.NewSubmissionService(rosterRepo, sinks, notifier, verification, lockRepo, publisher, cfg.Sinks, cfg.Roster, logr)
	forms := service.NewFormService(formRepo, rosterRepo, presenter, notifier, validate, logr)
	rosterSvc := service.NewRosterService(rosterRepo, addresses, presenter, export.NewRegistry(cfg.Roster.SheetFontPath), validate, logr)

	delivery, files, signer, err := exportDelivery(cfg, chatClient)
	if err != nil {
		return err
	}
	worker := service.NewExportWorker(service.ExportWorkerDeps{
		Jobs:      exportJobRepo,
		Media:     mediaRepo,
		Packer:    service.NewArchivePacker(chatClient, cfg.Export, logr.Named("packer")),
		Delivery:  delivery,
		Notifier:  notifier,
		Sinks:     sinks,
		Cache:     cacheSvc,
		Locks:     lockRepo,
		Publisher: publisher,
		Metrics:   metricsSvc,
	}, cfg.Export, logr.Named("export"))

	exportQueue := jobs.NewQueue("media-export", worker.Handle, jobs.QueueConfig{
		Workers:      cfg.Export.Workers,
		BufferSize:   16,
		DisableRetry: true,
		Logger:       logr.Named("queue"),
	})
	exportQueue.Start(ctx)
	defer exportQueue.Stop()

	var exportSvc *service.MediaExportService
	if files != nil {
		exportSvc = service.NewMediaExportService(exportJobRepo, mediaRepo, notifier, lockRepo, exportQueue, signer, files, validate, cfg.Export.LockTTL, logr)
	} else {
		exportSvc = service.NewMediaExportService(exportJobRepo, mediaRepo, notifier, lockRepo, exportQueue, nil, nil, validate, cfg.Export.LockTTL, logr)
	}
	dispatcher := service.NewDispatcherService(rosterRepo, addresses, presenter, submissions, verification, forms, exportSvc, logr)
	authSvc := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiry,
		Issuer:            cfg.JWT.Issuer,
	})

	if files != nil {
		go sweepExports(ctx, files, cfg.Export.SignedURLTTL, logr)
	}

	router := newRouter(cfg, logr, routes{
		auth:     authSvc,
		metrics:  handler.NewMetricsHandler(metricsSvc, readinessProbes(db, redisClient)),
		metricsS: metricsSvc,
		sessions: handler.NewSessionHandler(dispatcher, forms),
		lessons:  handler.NewLessonHandler(rosterSvc),
		media:    handler.NewMediaHandler(exportSvc),
		limiter:  middleware.NewTokenBucket(cfg.RateLimit.Capacity, cfg.RateLimit.PerMinute),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// exportDelivery picks how archive parts reach the requester.
func exportDelivery(cfg *config.Config, chatClient *chat.Client) (service.PartDelivery, *storage.LocalStorage, *storage.SignedURLSigner, error) {
	if cfg.Export.Delivery != config.DeliveryStorage {
		return service.NewChatDelivery(chatClient), nil, nil, nil
	}
	files, err := storage.NewLocalStorage(cfg.Export.StorageDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init export storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Export.SignedURLSecret, cfg.Export.SignedURLTTL)
	downloadURL := cfg.Export.PublicURL + cfg.APIPrefix + "/exports/download"
	return service.NewStorageDelivery(chatClient, files, signer, downloadURL), files, signer, nil
}

// sweepExports drops stored parts once their links can no longer be verified.
func sweepExports(ctx context.Context, files *storage.LocalStorage, ttl time.Duration, logr *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := files.CleanupOlderThan(ttl)
			if err != nil {
				logr.Warn("export sweep failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				logr.Info("export sweep", zap.Int("removed", len(removed)))
			}
		}
	}
}

func readinessProbes(db *sqlx.DB, redisClient *redis.Client) map[string]handler.ReadinessProbe {
	probes := map[string]handler.ReadinessProbe{
		"database": db.PingContext,
	}
	if redisClient != nil {
		probes["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	return probes
}
