package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"houmetna-service/config"
	"houmetna-service/internal/handler"
	"houmetna-service/internal/logging"
	"houmetna-service/internal/messaging"
	"houmetna-service/internal/push"
	"houmetna-service/internal/repository"
	"houmetna-service/internal/service"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config/config.json", "path to a JSON or YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	logging.New(cfg.Log.Level, cfg.Log.Format)

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Connect to database
	db, err := repository.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := repository.InitSchema(context.Background(), db); err != nil {
		slog.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to database", "driver", cfg.Database.Driver)

	// Connect to RabbitMQ
	rmq, err := messaging.NewRabbitMQ(messaging.URL(
		cfg.RabbitMQ.Host,
		cfg.RabbitMQ.Port,
		cfg.RabbitMQ.User,
		cfg.RabbitMQ.Password,
		cfg.RabbitMQ.VHost,
	))
	if err != nil {
		slog.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer rmq.Close()

	sseHub := messaging.NewSSEHub()
	go sseHub.Run()
	defer sseHub.Stop()

	// Repositories
	outboxRepo := repository.NewOutboxRepository(db)
	reportRepo := repository.NewReportRepository(db, outboxRepo)
	notificationRepo := repository.NewNotificationRepository(db)
	deviceRepo := repository.NewDeviceTokenRepository(db)
	processedRepo := repository.NewProcessedMessageRepository(db)

	provider, err := newPushProvider(cfg.Push)
	if err != nil {
		slog.Error("failed to initialize push provider", "provider", cfg.Push.Provider, "error", err)
		os.Exit(1)
	}

	// Services
	registry := service.NewDeviceRegistry(deviceRepo)
	detector := service.NewTransitionDetector(
		service.NewNotificationRecorder(notificationRepo),
		registry,
		push.NewDispatcher(provider, cfg.Push.SendTimeout.Duration),
		service.WithTokenPruning(cfg.Push.PruneInvalidTokens),
		service.WithLiveNotifier(sseHub),
	)
	reportService := service.NewReportService(reportRepo)
	notificationService := service.NewNotificationService(notificationRepo, sseHub)

	// Workers
	outboxWorker := messaging.NewOutboxWorker(outboxRepo, rmq)
	outboxWorker.Start()
	defer outboxWorker.Stop()

	consumer := messaging.NewReportMutationConsumer(rmq, detector, processedRepo, messaging.RetryPolicy{
		MaxAttempts:  cfg.Consumer.MaxAttempts,
		InitialDelay: cfg.Consumer.InitialDelay.Duration,
		MaxDelay:     cfg.Consumer.MaxDelay.Duration,
	})
	consumer.Start()
	defer consumer.Stop()

	// HTTP
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), sentrygin.New(sentrygin.Options{Repanic: true}))
	handler.RegisterRoutes(r, handler.Handlers{
		Reports:       handler.NewReportHandler(reportService),
		Devices:       handler.NewDeviceHandler(registry),
		Notifications: handler.NewNotificationHandler(notificationService),
		Admin:         handler.NewAdminHandler(outboxWorker),
	}, cfg.JWT.Secret)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown", "error", err)
	}
}

func newPushProvider(cfg config.PushConfig) (push.Provider, error) {
	if cfg.Provider == config.ProviderFCM {
		return push.NewFCMProvider(context.Background(), cfg.CredentialsFile)
	}
	return push.LogProvider{}, nil
}
