// Package main is the entry point for the HackHub server.
//
// MAIN PACKAGE IN GO:
// The main package should be kept minimal. Its job is to:
// 1. Read configuration (config.yaml, .env, environment variables)
// 2. Create the logger
// 3. Build and start the server
//
// All actual logic lives in imported packages (internal/server,
// internal/service, ...), which keeps them testable and reusable.
package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/sakif/hackhub/internal/config"
	"github.com/sakif/hackhub/internal/server"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the optional YAML config file")
	envPath := flag.String("env", ".env", "path to the optional .env file")
	debug := flag.Bool("debug", false, "log at debug level")
	flag.Parse()

	// === 1. SET UP LOGGING ===
	// Log levels (from least to most severe): Debug → Info → Warn → Error.
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	// === 2. READ CONFIGURATION ===
	cfg, err := config.Load(*configPath, *envPath)
	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 3. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
