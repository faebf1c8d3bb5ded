package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/browncloud/davfs/internal/authz"
	"github.com/browncloud/davfs/internal/logger"
	"github.com/browncloud/davfs/internal/ratelimiter"
	"github.com/browncloud/davfs/internal/server"
	"github.com/browncloud/davfs/internal/users"
	"github.com/browncloud/davfs/internal/webdav"
	"github.com/browncloud/davfs/pkg/config"
	"github.com/browncloud/davfs/pkg/metrics"
	metricsProm "github.com/browncloud/davfs/pkg/metrics/prometheus"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	logLevel := flag.String("log-level", "", "Override log level (DEBUG, INFO, WARN, ERROR)")
	listen := flag.String("listen", "", "Override listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags outrank everything else.
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}

	logger.SetLevel(cfg.Logging.Level)
	if err := logger.SetOutput(cfg.Logging.Output); err != nil {
		log.Fatalf("Failed to configure log output: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Println("davfs - WebDAV filesystem gateway")
	logger.Info("Log level set to: %s", cfg.Logging.Level)

	mountStore, err := config.CreateMountStore(ctx, &cfg.Mounts)
	if err != nil {
		log.Fatalf("Failed to create mount store: %v", err)
	}
	defer mountStore.Close()

	reg, err := config.BuildRegistry(ctx, mountStore)
	if err != nil {
		log.Fatalf("Failed to build mount registry: %v", err)
	}

	userStore := users.NewStore()
	if err := userStore.Load(cfg.Auth.UsersFile); err != nil {
		log.Fatalf("Failed to load users file: %v", err)
	}

	var davMetrics metrics.DAVMetrics
	if cfg.Server.MetricsListen != "" {
		metrics.InitRegistry()
		davMetrics = metricsProm.NewDAVMetrics()
		logger.Info("Metrics enabled on %s", cfg.Server.MetricsListen)
	} else {
		davMetrics = metrics.NewNoopDAVMetrics()
	}

	dispatcher := webdav.NewDispatcher(webdav.Config{
		Registry: reg,
		Gate:     authz.NewGate(config.PolicyFromConfig(&cfg.Auth)),
		Metrics:  davMetrics,
		Realm:    cfg.Server.Realm,
	})

	var limiter *ratelimiter.RateLimiter
	if cfg.Server.RateLimit.RequestsPerSecond > 0 {
		limiter = ratelimiter.New(cfg.Server.RateLimit.RequestsPerSecond, cfg.Server.RateLimit.Burst)
		logger.Info("Rate limit: %d req/s (burst %d)",
			cfg.Server.RateLimit.RequestsPerSecond, cfg.Server.RateLimit.Burst)
	}

	srv := server.New(server.Options{
		Listen:          cfg.Server.Listen,
		MetricsListen:   cfg.Server.MetricsListen,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Dispatcher:      dispatcher,
		Users:           userStore,
		Limiter:         limiter,
	})

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running on %s. Press Ctrl+C to stop.", cfg.Server.Listen)

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
		cancel()
		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error: %v", err)
			os.Exit(1)
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		if err != nil {
			logger.Error("Server error: %v", err)
			os.Exit(1)
		}
	}
}
