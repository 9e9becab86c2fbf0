package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/phuhao00/worldsync/server/configs"
	"github.com/phuhao00/worldsync/server/internal/app"
	"github.com/phuhao00/worldsync/server/internal/store"
	"github.com/phuhao00/worldsync/server/internal/utils"
)

// A config-free launcher that keeps players in process memory.
func main() {
	cfg := configs.Default()
	cfg.Store.Backend = store.BackendMemory

	flag.StringVar(&cfg.Server.Host, "host", "127.0.0.1", "Address to bind")
	flag.IntVar(&cfg.Server.RecvPort, "port", cfg.Server.RecvPort, "Command port")
	flag.IntVar(&cfg.Server.SendPort, "send-port", cfg.Server.SendPort, "Broadcast source port")
	flag.IntVar(&cfg.Server.SyncPort, "sync-port", cfg.Server.SyncPort, "Position sync port")
	flag.IntVar(&cfg.Server.ClientPort, "client-port", 0, "Broadcast destination port (0: sender port + 1)")
	flag.StringVar(&cfg.Admin.Addr, "admin", "", "Admin HTTP address, empty to disable")
	flag.StringVar(&cfg.Server.LogLevel, "log-level", cfg.Server.LogLevel, "DEBUG, INFO, WARN or ERROR")
	flag.Parse()

	utils.SetLogLevel(cfg.Server.LogLevel)
	defer utils.SyncLogger()
	if err := cfg.Validate(); err != nil {
		utils.LogFatalf("Invalid flags: %v", err)
	}
	utils.LogInfo("Starting simple world sync server (in-memory store)...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := app.New(ctx, cfg)
	if err != nil {
		utils.LogFatalf("Failed to start server: %v", err)
	}
	utils.LogInfof("Simple server listening on %s", server.CommandAddr())
	if err := server.Run(); err != nil {
		utils.LogErrorf("Server stopped with error: %v", err)
		utils.SyncLogger()
		os.Exit(1)
	}
	utils.LogInfo("Server stopped")
}
