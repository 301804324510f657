package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/garyjia/pm-approval/internal/config"
	"github.com/garyjia/pm-approval/internal/container"
	httpserver "github.com/garyjia/pm-approval/internal/interfaces/http"
	"github.com/garyjia/pm-approval/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting PM approval service",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.NewContainer(cfg.ToContainerConfig(), log)
	if err != nil {
		log.Fatal("Failed to create container", zap.Error(err))
	}
	if err := c.Start(ctx); err != nil {
		log.Fatal("Failed to start container", zap.Error(err))
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Error("Container close failed", zap.Error(err))
		}
	}()

	opts := []httpserver.ServerOption{httpserver.WithHealth(c.HealthChecks)}
	if handler := c.MetricsHandler(); handler != nil {
		opts = append(opts, httpserver.WithMetrics(handler))
	}

	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		MetricsPath:  cfg.Metrics.Path,
	}, c.Services().Approval, c.Services().Milestone, c.ServiceLogger(), opts...)

	// Start blocks until the signal context is cancelled
	if err := server.Start(ctx); err != nil {
		log.Error("HTTP server exited with error", zap.Error(err))
	}

	log.Info("Server exited")
}
