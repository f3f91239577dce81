// Package main is the entry point for the stockroom service: a
// key-addressed store for stock price datasets with scheduled fetching,
// analysis and export over HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkoukos/stockroom/internal/analysis"
	"github.com/pkoukos/stockroom/internal/config"
	"github.com/pkoukos/stockroom/internal/datastore"
	"github.com/pkoukos/stockroom/internal/export"
	"github.com/pkoukos/stockroom/internal/fetch"
	"github.com/pkoukos/stockroom/internal/maintenance"
	"github.com/pkoukos/stockroom/internal/scheduler"
	"github.com/pkoukos/stockroom/internal/server"
	"github.com/pkoukos/stockroom/internal/signals"
	"github.com/pkoukos/stockroom/internal/storage"
	"github.com/pkoukos/stockroom/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Str("storage", cfg.Storage).Msg("Starting stockroom")

	// Storage backend
	var adapter storage.Adapter
	switch cfg.Storage {
	case config.StorageMemory:
		adapter = storage.NewMemory()
	case config.StorageSQLite:
		sqlite, err := storage.NewSQLite(cfg.SQLitePath())
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.SQLitePath()).Msg("Failed to open sqlite store")
		}
		defer sqlite.Close()
		adapter = sqlite
	case config.StorageS3:
		s3Adapter, err := storage.NewS3(context.Background(), storage.S3Config{
			Bucket:         cfg.S3.Bucket,
			Region:         cfg.S3.Region,
			Endpoint:       cfg.S3.Endpoint,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize S3 store")
		}
		adapter = s3Adapter
	}

	// Core services, wired explicitly
	butler := datastore.NewButler(adapter, log)
	fetcher := fetch.NewYahoo(log)
	registry := scheduler.NewRegistry(adapter, log)
	history := scheduler.NewHistoryRegistry(adapter, log)
	executor := scheduler.NewExecutor(fetcher, butler, history, log)
	sched := scheduler.NewScheduler(registry, executor, time.Duration(cfg.CheckInterval)*time.Second, log)
	analyzer := analysis.NewAnalyzer(butler, fetcher, log)
	exporter := export.NewService(butler, export.NewCSVExporter(), export.NewHTTPDataSender(), log)
	signalSvc := signals.NewService(butler, log)

	srv := server.New(server.Config{
		Log:      log,
		Port:     cfg.Port,
		DevMode:  cfg.DevMode,
		Butler:   butler,
		Fetcher:  fetcher,
		Registry: registry,
		History:  history,
		Sched:    sched,
		Analyzer: analyzer,
		Exporter: exporter,
		Signals:  signalSvc,
	})

	sched.Start()

	sweeper := maintenance.NewSweeper(adapter, history, log)
	if err := sweeper.Start(maintenance.DefaultSchedule); err != nil {
		log.Fatal().Err(err).Msg("Failed to start maintenance sweeper")
	}

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	sched.Stop()
	sweeper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
