package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/wpmcp/wpmcp/internal/config"
	"github.com/wpmcp/wpmcp/internal/logging"
	"github.com/wpmcp/wpmcp/internal/mcp"
	"github.com/wpmcp/wpmcp/internal/metrics"
	"github.com/wpmcp/wpmcp/internal/router"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (omit to configure from environment)")
	showVersion := flag.Bool("version", false, "Show version information")
	validateOnly := flag.Bool("validate", false, "Validate configuration and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("wpmcp %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	// Load configuration from file, or from WORDPRESS_* environment
	// variables when no file is given.
	loader := config.NewLoader()
	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = loader.Load(*configPath)
	} else {
		cfg, err = loader.FromEnv()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *validateOnly {
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Configuration is valid")
		os.Exit(0)
	}

	// stdout carries the MCP wire; all logging goes to stderr and the
	// optional log file.
	logger := logging.New(logging.Options{
		Level: cfg.LogLevel,
		File:  cfg.LogFile,
	})
	defer logger.Sync()

	logger.Info("starting wpmcp",
		zap.String("version", version),
		zap.Int("sites", len(cfg.Sites)),
		zap.Int64("maxConcurrent", cfg.MaxConcurrent))

	collector := metrics.NewCollector()
	rt, err := router.New(cfg, collector, nil, logger)
	if err != nil {
		logger.Error("failed to build router", zap.Error(err))
		os.Exit(1)
	}

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", collector.Handler())
			logger.Info("metrics listener started", zap.String("addr", cfg.MetricsAddr))
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Error("metrics listener failed", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := mcp.NewServer(rt, logger)
	if err := server.Serve(ctx, os.Stdin, os.Stdout); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("stdin closed, shutting down")
}
