package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"VisualizerPlatform/pkg/config"
	pkgErrors "VisualizerPlatform/pkg/errors"
	pkglogger "VisualizerPlatform/pkg/logger"
	"VisualizerPlatform/pkg/metrics"
	"VisualizerPlatform/services/visualizer/internal/app"
)

// Version задается при сборке через -ldflags "-X main.Version=..."
var Version = "dev"

func main() {
	// Путь к файлу конфигурации необязателен, все значения можно задать окружением
	cfg, err := config.LoadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		err = pkgErrors.Wrap(err, pkgErrors.ErrConfig, "failed to load config")
		log.Printf("Failed to load config: %v", err)
		os.Exit(pkgErrors.ExitCode(err))
	}

	logger, err := pkglogger.NewLogger(cfg.Environment, cfg.Logger.Level, app.ServiceName,
		pkglogger.WithFormat(cfg.Logger.Format),
		pkglogger.WithFile(pkglogger.FileOptions{
			Path:       cfg.Logger.File.Path,
			MaxSizeMB:  cfg.Logger.File.MaxSizeMB,
			MaxBackups: cfg.Logger.File.MaxBackups,
			MaxAgeDays: cfg.Logger.File.MaxAgeDays,
			Compress:   cfg.Logger.File.Compress,
		}),
	)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	os.Exit(run(cfg, logger))
}

func run(cfg *config.Config, logger pkglogger.Logger) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := func(context.Context) error { return nil }
	if cfg.Tracing.Enabled {
		var err error
		shutdownTracing, err = metrics.InitializeOpenTelemetry(app.ServiceName, Version)
		if err != nil {
			logger.Error("Failed to initialize tracing", pkglogger.Error(err))
			return pkgErrors.ExitError
		}
		logger.Debug("OpenTelemetry tracing initialized")
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := multierr.Append(shutdownTracing(shutdownCtx), logger.Sync())
		if err != nil {
			log.Printf("Error during cleanup: %v", err)
		}
	}()

	logger.Debug("Starting Visualizer Service",
		pkglogger.String("version", Version),
		pkglogger.String("address", cfg.Server.Addr()),
		pkglogger.Bool("admin_enabled", cfg.Admin.Enabled))

	a := app.New(cfg, logger, Version)

	if err := a.Start(); err != nil {
		logger.Error("Failed to start server",
			pkglogger.String("code", string(pkgErrors.CodeOf(err))),
			pkglogger.Error(err))
		return pkgErrors.ExitCode(err)
	}

	if err := a.Run(ctx); err != nil {
		logger.Error("Server stopped with error", pkglogger.Error(err))
		return pkgErrors.ExitCode(err)
	}

	logger.Info("Server exited")
	return pkgErrors.ExitOK
}
