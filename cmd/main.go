package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/MimeLyc/pipeline-console/internal/app"
	"github.com/MimeLyc/pipeline-console/internal/config"
	"github.com/MimeLyc/pipeline-console/pkg/log"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Failed to load .env file: %v", err)
	}

	settingsPath := config.RuntimeSettingsFilePath()
	cfg, err := loadConfig(settingsPath)
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}

	closeLog, err := setupLogger(cfg.System)
	if err != nil {
		log.Fatal("Failed to set up logging: %v", err)
	}
	defer closeLog()

	if loc, err := time.LoadLocation(cfg.System.TZ); err == nil {
		time.Local = loc
	} else {
		log.Warn("Unknown TZ %q, keeping system zone", cfg.System.TZ)
	}

	console, err := app.New(cfg, settingsPath)
	if err != nil {
		log.Fatal("Failed to start console: %v", err)
	}
	defer console.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := console.Run(ctx); err != nil {
		log.Error("Console exited with error: %v", err)
	}
}

// loadConfig reads the environment and overlays the saved runtime settings,
// if any.
func loadConfig(settingsPath string) (*config.Config, error) {
	var opts []config.Option
	settings, err := config.LoadRuntimeSettingsFile(settingsPath)
	switch {
	case err == nil:
		opts = append(opts, config.WithRuntimeSettings(settings))
	case errors.Is(err, os.ErrNotExist):
	default:
		log.Warn("Ignoring runtime settings file %s: %v", settingsPath, err)
	}
	return config.NewFromEnv(opts...)
}

func setupLogger(cfg config.SystemConfig) (func(), error) {
	level := log.ParseLevel(cfg.LogLevel)
	if cfg.LogFile == "" {
		log.InitLogger(level)
		return func() {}, nil
	}
	fileLogger, err := log.NewFileLogger(cfg.LogFile, level)
	if err != nil {
		return nil, err
	}
	log.SetLogger(fileLogger.Logger)
	return func() { _ = fileLogger.Close() }, nil
}
