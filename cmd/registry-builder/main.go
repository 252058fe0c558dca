package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/harmonium-app/plugin-registry/pkg/config"
	"github.com/harmonium-app/plugin-registry/pkg/github"
	"github.com/harmonium-app/plugin-registry/pkg/registry"
	"github.com/harmonium-app/plugin-registry/pkg/storage"
)

var (
	configPath = flag.String("config", "", "Path to YAML config file (optional)")
	topic      = flag.String("topic", "", "Discovery topic label (overrides config)")
	output     = flag.String("output", "", "Output path for the registry artifact (overrides config)")
	workers    = flag.Int("workers", 0, "Concurrent fetch workers (overrides config)")
	logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	logger := setupLogger(cfg.LogLevel)
	logger.Infof("Starting registry build for topic %q", cfg.Topic)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	writer, err := storage.NewWriter(cfg.Storage, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}

	client := github.NewClient(cfg.GitHub, logger)
	builder := registry.NewBuilder(client, logger, cfg.Workers)

	doc, summary, err := builder.Build(ctx, cfg.Topic)
	if err != nil {
		logger.Fatalf("Build failed: %v", err)
	}

	if err := writer.Write(ctx, doc); err != nil {
		logger.Fatalf("Failed to write registry artifact: %v", err)
	}

	logger.WithFields(logrus.Fields{
		"build_id":   summary.BuildID,
		"discovered": summary.Discovered,
		"accepted":   summary.Accepted,
		"skipped":    summary.Skipped,
		"duration":   summary.Duration.Round(time.Millisecond),
		"location":   writer.Location(),
	}).Info("Registry build completed")
}

// applyFlags overlays command-line flags onto the loaded configuration.
// Flags beat both the config file and the environment.
func applyFlags(cfg *config.Config) {
	if *topic != "" {
		cfg.Topic = *topic
	}
	if *output != "" {
		cfg.Storage.OutputPath = *output
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}
