package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/noisewatch/internal/api"
	"github.com/timmy/noisewatch/internal/api/handler"
	"github.com/timmy/noisewatch/internal/api/middleware"
	"github.com/timmy/noisewatch/internal/cache"
	"github.com/timmy/noisewatch/internal/config"
	"github.com/timmy/noisewatch/internal/logger"
	"github.com/timmy/noisewatch/internal/observability"
	"github.com/timmy/noisewatch/internal/repository"
	"github.com/timmy/noisewatch/internal/service"
	"github.com/timmy/noisewatch/internal/weather"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.New(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		File:        cfg.Log.File,
		ServiceName: "noisewatch",
	})
	logger.SetDefault(appLogger)

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	measurementRepo := repository.NewMeasurementRepository(db)
	weatherRepo := repository.NewWeatherRepository(db)

	metrics := observability.NewMetrics()

	dataCache := cache.New(&cache.Options{SweepInterval: cfg.Cache.SweepInterval})
	defer dataCache.Stop()

	weatherSource := weather.NewClient(&weather.ClientConfig{
		BaseURL: cfg.Weather.BaseURL,
		APIKey:  cfg.Weather.APIKey,
		Timeout: cfg.Weather.Timeout,
	})
	correlator := weather.NewCorrelator(weatherRepo, weatherSource, appLogger, &weather.CorrelatorConfig{
		Staleness:     cfg.Weather.Staleness,
		MaxConcurrent: cfg.Weather.MaxConcurrent,
	})

	processor := service.NewProcessor(measurementRepo, cfg.Stations, cfg.Import, appLogger)
	coordinator := service.NewCoordinator(processor, correlator, dataCache, metrics, cfg.Stations, appLogger, &service.CoordinatorConfig{
		Workers:    cfg.Import.Workers,
		RecentJobs: cfg.Import.RecentJobs,
	})
	coordinator.Start()

	fileWatcher := service.NewFileWatcher(coordinator, cfg.Stations, cfg.Import, cfg.Watcher, appLogger)
	if err := fileWatcher.Start(); err != nil {
		appLogger.WithError(err).Fatal("Failed to start file watcher")
	}

	weatherWatcher := service.NewWeatherWatcher(weatherSource, weatherRepo, dataCache, metrics, cfg.Stations, cfg.Weather.UpdateInterval, appLogger)
	if err := weatherWatcher.Start(); err != nil {
		appLogger.WithError(err).Fatal("Failed to start weather watcher")
	}

	router := api.SetupRouter(&api.RouterConfig{
		Mode: cfg.Server.Mode,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
		Logger:  appLogger,
		DB:      db,
		Import:  handler.NewImportHandler(coordinator),
		Data:    handler.NewDataHandler(measurementRepo, weatherRepo, dataCache, metrics, cfg.Cache.DefaultTTL),
		Ops:     handler.NewOpsHandler(dataCache, fileWatcher, weatherWatcher),
		Metrics: true,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithField("port", cfg.Server.Port).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down...")

	fileWatcher.Stop()
	weatherWatcher.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := coordinator.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Warn("Coordinator shutdown timed out")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
