package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rabbitdeck/backend/cmd/console-api/internal/handler"
	"github.com/rabbitdeck/backend/cmd/console-api/internal/router"
	"github.com/rabbitdeck/backend/internal/audit"
	"github.com/rabbitdeck/backend/internal/auth"
	"github.com/rabbitdeck/backend/internal/config"
	"github.com/rabbitdeck/backend/internal/database"
	"github.com/rabbitdeck/backend/internal/logger"
	"github.com/rabbitdeck/backend/internal/metrics"
	"github.com/rabbitdeck/backend/internal/middleware"
	"github.com/rabbitdeck/backend/internal/rabbit"
	"github.com/rabbitdeck/backend/internal/repository"
	"github.com/rabbitdeck/backend/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		fx.Provide(
			config.LoadConfig,
			logger.NewLogger,
		),

		fx.Provide(
			database.NewPostgresDB,
			newRedisClient,
			metrics.New,
		),

		fx.Provide(
			repository.NewUserRepository,
			repository.NewClusterRepository,
			repository.NewAuditRecordRepository,
		),

		fx.Provide(
			newJWTManager,
			middleware.NewAuthenticator,
		),

		fx.Provide(
			newRecorder,
			audit.NewInterceptor,
			newSweeper,
		),

		fx.Provide(
			rabbit.NewClient,
			service.NewUserService,
			service.NewClusterService,
			service.NewAuditQueryService,
			service.NewClusterOpsService,
		),

		fx.Provide(
			handler.NewAuthHandler,
			handler.NewClusterHandler,
			handler.NewAuditHandler,
		),

		fx.Provide(
			router.SetupRouter,
		),

		fx.Invoke(runHTTPServer),
		fx.Invoke(runRetentionScheduler),
		fx.Invoke(closeRecorderOnShutdown),
	)

	app.Run()
}

func newRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func newJWTManager(cfg *config.Config) *auth.JWTManager {
	return auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration)
}

func newRecorder(
	cfg *config.Config,
	repo repository.AuditRecordRepository,
	log *zap.Logger,
	m *metrics.Metrics,
) audit.Recorder {
	return audit.NewRecorder(&cfg.Audit, repo, log, m)
}

func newSweeper(
	cfg *config.Config,
	repo repository.AuditRecordRepository,
	redisClient *redis.Client,
	log *zap.Logger,
	m *metrics.Metrics,
) *audit.Sweeper {
	return audit.NewSweeper(cfg.Retention, repo, redisClient, log, m)
}

// runHTTPServer starts the console API server
func runHTTPServer(
	lifecycle fx.Lifecycle,
	log *zap.Logger,
	cfg *config.Config,
	engine *gin.Engine,
) {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting console API",
				zap.Int("port", cfg.Server.Port),
				zap.Bool("audit_enabled", cfg.Audit.Enabled),
			)

			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("Failed to start HTTP server", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down console API")

			shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error("Failed to gracefully shutdown server", zap.Error(err))
				return err
			}

			log.Info("Console API stopped")
			return nil
		},
	})
}

// runRetentionScheduler schedules periodic audit retention sweeps
func runRetentionScheduler(
	lifecycle fx.Lifecycle,
	log *zap.Logger,
	cfg *config.Config,
	sweeper *audit.Sweeper,
) {
	if !cfg.Retention.Enabled {
		log.Info("Audit retention sweeps disabled")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New()

	lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			_, err := c.AddFunc(cfg.Retention.CleanSchedule, func() {
				if _, err := sweeper.Run(ctx); err != nil {
					log.Error("Retention sweep failed", zap.Error(err))
				}
			})
			if err != nil {
				cancel()
				return fmt.Errorf("invalid retention schedule %q: %w", cfg.Retention.CleanSchedule, err)
			}

			c.Start()
			log.Info("Retention sweeps scheduled",
				zap.String("schedule", cfg.Retention.CleanSchedule),
				zap.Int("days", cfg.Retention.Days),
			)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			<-c.Stop().Done()
			return nil
		},
	})
}

// closeRecorderOnShutdown flushes buffered audit records before exit
func closeRecorderOnShutdown(
	lifecycle fx.Lifecycle,
	log *zap.Logger,
	recorder audit.Recorder,
) {
	lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := recorder.Close(ctx); err != nil {
				log.Error("Failed to flush audit recorder", zap.Error(err))
				return err
			}
			return nil
		},
	})
}
