// Command server runs the live session presence engine: the provider webhook
// receiver, the operator API, and the background sweep and export schedules.
//
//go:generate swag init -g cmd/server/main.go -o docs --parseInternal
//
// @title                Live Presence API
// @version              1.0
// @description          Presence tracking, broadcast reconciliation and recording export for live sessions.
// @BasePath             /api/v1
// @schemes              http https
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-live-presence/docs"
	"github.com/tbourn/go-live-presence/internal/config"
	"github.com/tbourn/go-live-presence/internal/domain"
	httpapi "github.com/tbourn/go-live-presence/internal/http"
	"github.com/tbourn/go-live-presence/internal/jobqueue"
	"github.com/tbourn/go-live-presence/internal/media"
	"github.com/tbourn/go-live-presence/internal/observability"
	"github.com/tbourn/go-live-presence/internal/repo"
	"github.com/tbourn/go-live-presence/internal/retry"
	"github.com/tbourn/go-live-presence/internal/scheduler"
	"github.com/tbourn/go-live-presence/internal/services"
	"github.com/tbourn/go-live-presence/internal/store"
	"github.com/tbourn/go-live-presence/internal/sysutil"
	"github.com/tbourn/go-live-presence/internal/upload"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	shutdownTimeout = 20 * time.Second
	sweepTimeout    = 5 * time.Minute
	exportTimeout   = 10 * time.Minute
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	logger := sysutil.InitLogger(sysutil.LogOptions{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Service: cfg.OTEL.ServiceName,
		Version: sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version),
	}, nil)
	gin.SetMode(cfg.GinMode)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
	logger.Info().Msg("server stopped")
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return err
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	presence := store.NewPresenceStore(rdb, cfg.PresenceRetention)
	if err := presence.Ping(ctx); err != nil {
		// Start anyway; /health reports degraded until Redis answers.
		logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis not reachable at startup")
	}

	policy := retry.DefaultPolicy()
	policy.Attempts = uint(cfg.RetryAttempts)
	mediaClient := media.NewClient(media.Config{
		APIKey:    cfg.Media.APIKey,
		APISecret: cfg.Media.APISecret,
		BaseURL:   cfg.Media.APIURL,
		Timeout:   cfg.ProviderTimeout,
		Retry:     policy,
	}, nil)
	uploader := upload.NewClient(upload.Config{
		BaseURL:     cfg.VideoHost.APIURL,
		Token:       cfg.VideoHost.Token,
		BlobBaseURL: cfg.VideoHost.BlobBaseURL,
		Timeout:     cfg.ProviderTimeout,
		Retry:       policy,
	}, nil)

	coordinator := &services.PresenceCoordinator{Store: presence, Media: mediaClient, Log: &logger}
	reconciler := &services.BroadcastReconciler{Schedule: repo.Schedule{DB: db}, Media: mediaClient, Log: &logger}
	dispatcher := &services.WebhookDispatcher{Presence: coordinator, Broadcasts: reconciler, Log: &logger}
	rooms := &services.RoomService{DB: db, Media: mediaClient, Presence: presence}
	exports := &services.ExportJobService{DB: db}
	sweeper := &services.StaleParticipantSweeper{
		Store:     presence,
		Retention: cfg.PresenceRetention,
		PageSize:  int64(cfg.SweepPageSize),
		Log:       &logger,
	}
	exportWorker := jobqueue.New[domain.RecordingExportJob](db,
		&services.RecordingExportHandler{Uploader: uploader, CaptionsLanguage: cfg.VideoHost.CaptionsLanguage},
		jobqueue.Config{
			BatchSize:  cfg.Jobs.ExportBatchSize,
			MaxRetries: cfg.Jobs.ExportMaxRetries,
			MaxJitter:  cfg.Jobs.ExportMaxJitter,
		}, &logger)

	sched, err := scheduler.New(cfg.Jobs.SchedulerTimezone, &logger)
	if err != nil {
		return err
	}
	if err := sched.Add("presence_sweep", cfg.Jobs.SweepSchedule, sweepTimeout, func(ctx context.Context) error {
		_, err := sweeper.Sweep(ctx)
		return err
	}); err != nil {
		return err
	}
	if err := sched.Add(services.RecordingExportJobName, cfg.Jobs.ExportSchedule, exportTimeout, func(ctx context.Context) error {
		_, err := exportWorker.RunOnce(ctx)
		return err
	}); err != nil {
		return err
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, cfg, httpapi.Deps{
		Webhooks:   dispatcher,
		Broadcasts: reconciler,
		Rooms:      rooms,
		Exports:    exports,
		Health:     presence,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sched.Start()
		logger.Info().Str("addr", srv.Addr).Str("base_path", cfg.APIBasePath).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(
			srv.Shutdown(shutCtx),
			sched.Stop(shutCtx),
			shutdownOTel(shutCtx),
			rdb.Close(),
			closeDB(db),
		)
	})
	return g.Wait()
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
