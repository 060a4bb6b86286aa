package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dosada05/league-standings/config"
	"github.com/Dosada05/league-standings/db"
	"github.com/Dosada05/league-standings/handlers"
	"github.com/Dosada05/league-standings/realtime"
	"github.com/Dosada05/league-standings/repositories"
	api "github.com/Dosada05/league-standings/routes"
	"github.com/Dosada05/league-standings/services"
	"github.com/Dosada05/league-standings/storage"
	"github.com/go-chi/chi/v5"
)

// @title League Standings API
// @version 1.0
// @description Standings tables for divisions, tournaments and cups: match results, leaderboards and live updates.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const (
	requestTimeout  = 15 * time.Second
	shutdownTimeout = 15 * time.Second
)

func main() {
	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort), slog.String("db_driver", cfg.DBDriver))

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DBDriver, cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	logger.Info("database connection established")

	if err := db.RunMigrations(dbConn, cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("database migrations applied", slog.String("source", cfg.MigrationsPath))

	appCtx, stopApp := context.WithCancel(context.Background())
	defer stopApp()

	// Загрузчик снимков таблиц (Cloudflare R2), если настроен
	var snapshotUploader storage.FileUploader
	if r2 := cfg.R2(); r2.Enabled() {
		snapshotUploader, err = storage.NewCloudflareR2Uploader(appCtx, r2)
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Cloudflare R2 uploader initialized", slog.String("bucket", r2.BucketName))
	} else {
		logger.Info("R2 is not configured, snapshot publishing disabled")
	}

	// WebSocket Hub
	wsHub := realtime.NewHub()
	go wsHub.Run(appCtx)
	logger.Info("WebSocket Hub started")

	tableRepo := repositories.NewStandingsTableRepository(dbConn)
	resultRepo := repositories.NewMatchResultRepository(dbConn)

	standingsService := services.NewStandingsService(dbConn, tableRepo, resultRepo, snapshotUploader, wsHub, logger)
	logger.Info("Services initialized")

	if snapshotUploader != nil && cfg.SnapshotInterval > 0 {
		go runSnapshotScheduler(appCtx, standingsService, cfg.SnapshotInterval, logger)
	}

	standingsHandler := handlers.NewStandingsHandler(standingsService)
	webSocketHandler := handlers.NewWebSocketHandler(wsHub, standingsService, cfg.CORSAllowedOrigins)
	healthHandler := handlers.NewHealthHandler(dbConn)

	router := chi.NewRouter()
	api.SetupRoutes(router, api.Options{
		JWTSecret:      []byte(cfg.JWTSecretKey),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RequestTimeout: requestTimeout,
	}, standingsHandler, webSocketHandler, healthHandler)
	logger.Info("Routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			stopApp()
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()

		// Stop the hub first so websocket clients receive a close frame.
		stopApp()

		logger.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
		} else {
			logger.Info("server shutdown complete")
		}
	}
	logger.Info("application exited")
}

// runSnapshotScheduler republishes snapshots of tables changed since the previous run.
func runSnapshotScheduler(ctx context.Context, svc services.StandingsService, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Info("Snapshot scheduler started", slog.Duration("interval", interval))

	// First run publishes everything.
	var since time.Time
	for {
		runStarted := time.Now().UTC()
		published, err := svc.PublishStaleSnapshots(ctx, since)
		if err != nil {
			logger.Error("Scheduler: snapshot run failed", slog.Int("published", published), slog.Any("error", err))
		} else {
			if published > 0 {
				logger.Info("Scheduler: snapshots published", slog.Int("published", published))
			}
			since = runStarted
		}

		select {
		case <-ctx.Done():
			logger.Info("Snapshot scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}
