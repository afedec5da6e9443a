package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/timmy/noisewatch/internal/config"
	"github.com/timmy/noisewatch/internal/logger"
	"github.com/timmy/noisewatch/internal/repository"
	"github.com/timmy/noisewatch/internal/service"
	"github.com/timmy/noisewatch/internal/weather"
)

func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		ServiceName: "noisewatch-importer",
	})
	logger.SetDefault(appLogger)

	station := flag.String("station", "", "Station to import for (empty with -all imports every station)")
	file := flag.String("file", "", "Single file to import")
	all := flag.Bool("all", false, "Process every eligible file across all station directories")
	correlate := flag.Bool("weather", true, "Correlate imported blocks with weather data")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	measurementRepo := repository.NewMeasurementRepository(db)
	weatherRepo := repository.NewWeatherRepository(db)
	processor := service.NewProcessor(measurementRepo, cfg.Stations, cfg.Import, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	switch {
	case *all:
		total, err := processor.ProcessAllFiles(ctx)
		if err != nil {
			appLogger.WithError(err).Fatal("Bulk import failed")
		}
		appLogger.WithField("inserted", total).Info("Bulk import completed")

	case *station != "" && *file != "":
		result, err := processor.ProcessFile(ctx, *station, *file)
		if err != nil {
			appLogger.WithError(err).Fatal("Import failed")
		}
		appLogger.WithFields(logger.Fields{
			"inserted":   result.Inserted,
			"row_errors": result.RowErrors,
		}).Info("Import completed")

		if *correlate && len(result.Blocks) > 0 {
			source := weather.NewClient(&weather.ClientConfig{
				BaseURL: cfg.Weather.BaseURL,
				APIKey:  cfg.Weather.APIKey,
				Timeout: cfg.Weather.Timeout,
			})
			correlator := weather.NewCorrelator(weatherRepo, source, appLogger, &weather.CorrelatorConfig{
				Staleness:     cfg.Weather.Staleness,
				MaxConcurrent: cfg.Weather.MaxConcurrent,
			})
			written := correlator.EnsureBlocks(ctx, *station, result.Blocks)
			appLogger.WithField("weather_written", written).Info("Weather correlation completed")
		}

	default:
		flag.Usage()
		os.Exit(2)
	}
}
