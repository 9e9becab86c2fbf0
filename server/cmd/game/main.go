package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/phuhao00/worldsync/server/configs"
	"github.com/phuhao00/worldsync/server/internal/app"
	"github.com/phuhao00/worldsync/server/internal/utils" // Import for logger
)

func main() {
	configPath := flag.String("config", "config.json", "Path to the JSON config file")
	flag.Parse()

	// --- Configuration Loading ---
	// Create an example config if it doesn't exist.
	// In production, ensure the config file is present and properly configured.
	configs.CreateExampleConfigFile(*configPath)
	cfg, err := configs.LoadConfig(*configPath)
	if err != nil {
		utils.LogFatalf("Failed to load configuration: %v", err)
	}

	// --- Initialize Logger ---
	utils.InitLogger(cfg.Server.LogFile)
	defer utils.SyncLogger()
	utils.SetLogLevel(cfg.Server.LogLevel)
	utils.LogInfo("Starting world sync server...")
	utils.LogInfof("Configuration loaded. Commands :%d, broadcasts :%d, sync :%d, store %s",
		cfg.Server.RecvPort, cfg.Server.SendPort, cfg.Server.SyncPort, cfg.Store.Backend)

	// --- Graceful Shutdown ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := app.New(ctx, cfg)
	if err != nil {
		utils.LogErrorf("Failed to start server: %v", err)
		utils.SyncLogger()
		os.Exit(1)
	}
	utils.LogInfo("Server successfully initialized and running. Press Ctrl+C to shut down.")

	if err := server.Run(); err != nil {
		utils.LogErrorf("Server stopped with error: %v", err)
		utils.SyncLogger()
		os.Exit(1)
	}
	utils.LogInfo("Server shut down.")
}
