// Package main provides the entry point for the risk inference service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/thebtf/contraceptiq/internal/assess"
	"github.com/thebtf/contraceptiq/internal/config"
	"github.com/thebtf/contraceptiq/internal/consultation"
	"github.com/thebtf/contraceptiq/internal/remote"
	"github.com/thebtf/contraceptiq/internal/riskmodel"
	"github.com/thebtf/contraceptiq/internal/server"
	"github.com/thebtf/contraceptiq/internal/telemetry"
)

var Version = "dev"

const (
	// purgeInterval is how often expired consultation codes are removed.
	purgeInterval = 15 * time.Minute
	// metricsInterval is how often assessment totals are logged.
	metricsInterval = 5 * time.Minute
)

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	settingsPath := config.SettingsPath()
	cfg, err := config.Load(settingsPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", settingsPath).Msg("Failed to load settings")
	}
	setLogLevel(cfg.LogLevel)

	log.Info().
		Str("version", Version).
		Str("model_dir", cfg.ModelDir).
		Msg("Starting contraceptiq risk service")

	watcher, err := config.NewWatcher(settingsPath, func(next *config.Config) {
		setLogLevel(next.LogLevel)
		log.Info().Str("level", next.LogLevel).Msg("Settings reloaded")
	})
	if err != nil {
		log.Warn().Err(err).Msg("Settings watcher unavailable")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if watcher != nil {
		if err := watcher.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to watch settings file")
		}
	}

	meterProvider := telemetry.NewMeterProvider(metricsInterval)
	telemetry.InstallGlobal(meterProvider)

	runner := riskmodel.NewRunner(
		riskmodel.NewONNXLoader(cfg.ONNXLibraryPath),
		riskmodel.BundleFromDir(cfg.ModelDir),
	)

	store, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open consultation store")
	}

	opts := []assess.Option{
		assess.WithResultWriter(store),
		assess.WithOnDevice(cfg.OnDeviceEnabled),
		assess.WithDedupTTL(cfg.DedupTTL()),
		assess.WithSweepInterval(cfg.DedupSweepInterval()),
		assess.WithMeter(meterProvider.Meter("github.com/thebtf/contraceptiq/assess")),
	}
	if cfg.RemoteURL != "" {
		opts = append(opts, assess.WithRemote(remote.NewClient(remote.Config{
			BaseURL:    cfg.RemoteURL,
			Timeout:    cfg.RemoteTimeout(),
			MaxRetries: cfg.RemoteMaxRetries,
		})))
	}
	svc := assess.NewService(runner, opts...)
	svc.Start()

	if err := svc.Preload(ctx); err != nil {
		// The service still starts; health reports degraded until models load.
		log.Error().Err(err).Msg("Failed to load risk models")
	}

	go purgeLoop(ctx, store)

	httpSrv := server.New(server.Config{
		Addr:      cfg.Addr(),
		ModelDir:  cfg.ModelDir,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
	}, runner, store, server.WithAssessor(svc))

	if err := httpSrv.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start HTTP server")
	}

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Received shutdown signal")
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
	if watcher != nil {
		watcher.Stop()
	}
	if err := svc.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to stop assessment service")
	}
	if err := runner.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to release model sessions")
	}
	if err := store.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close consultation store")
	}
	if err := riskmodel.ShutdownRuntime(); err != nil {
		log.Error().Err(err).Msg("Failed to shut down ONNX runtime")
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to flush metrics")
	}

	log.Info().Msg("Risk service shutdown complete")
}

// openStore picks PostgreSQL when a DSN is configured and the embedded
// SQLite file otherwise.
func openStore(cfg *config.Config) (consultation.Store, error) {
	if cfg.DatabaseDSN != "" {
		log.Info().Msg("Using PostgreSQL consultation store")
		return consultation.OpenPostgres(consultation.GormConfig{
			DSN:      cfg.DatabaseDSN,
			MaxConns: cfg.DBMaxConns,
			LogLevel: logger.Silent,
		}, consultation.WithTTL(cfg.CodeTTL()))
	}
	log.Info().Str("path", cfg.DBPath).Msg("Using SQLite consultation store")
	return consultation.OpenSQLite(cfg.DBPath, consultation.WithTTL(cfg.CodeTTL()))
}

func purgeLoop(ctx context.Context, store consultation.Store) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PurgeExpired(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to purge expired consultations")
				continue
			}
			if n > 0 {
				log.Info().Int64("purged", n).Msg("Purged expired consultations")
			}
		}
	}
}

func setLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
