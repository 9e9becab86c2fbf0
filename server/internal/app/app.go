// Package app wires the store, session registry, pipeline tasks and sockets
// into one running server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/phuhao00/worldsync/server/configs"
	sessionactor "github.com/phuhao00/worldsync/server/internal/actor"
	"github.com/phuhao00/worldsync/server/internal/admin"
	"github.com/phuhao00/worldsync/server/internal/game"
	"github.com/phuhao00/worldsync/server/internal/metrics"
	"github.com/phuhao00/worldsync/server/internal/network"
	"github.com/phuhao00/worldsync/server/internal/protocol"
	"github.com/phuhao00/worldsync/server/internal/store"
	"github.com/phuhao00/worldsync/server/internal/utils"
)

const adminShutdownTimeout = 3 * time.Second

// App is a fully wired server. Build it with New, then call Run once.
type App struct {
	cfg      *configs.Config
	store    store.Store
	system   *actor.ActorSystem
	registry *sessionactor.SessionRegistry
	metrics  *metrics.Counters

	commands    chan protocol.Command
	processor   *game.Processor
	broadcaster *game.Broadcaster
	udp         *network.UDPServer
	admin       *admin.Server

	ctx    context.Context
	cancel context.CancelCauseFunc
}

// New opens the store, spawns the registry and binds every socket.
func New(parent context.Context, cfg *configs.Config) (*App, error) {
	ctx, cancel := context.WithCancelCause(parent)
	a := &App{cfg: cfg, metrics: &metrics.Counters{}, ctx: ctx, cancel: cancel}

	st, err := store.Open(ctx, store.Config{
		Backend:       cfg.Store.Backend,
		RedisAddr:     cfg.Redis.Address,
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		PostgresURL:   cfg.Database.PostgresURL,
	})
	if err != nil {
		cancel(err)
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}
	a.store = st
	utils.LogInfof("Player store ready (backend %s)", cfg.Store.Backend)

	a.system = actor.NewActorSystem(actor.WithLoggerFactory(func(*actor.ActorSystem) *slog.Logger {
		return utils.ActorLogger()
	}))
	a.registry, err = sessionactor.NewSessionRegistry(a.system, "session-registry")
	if err != nil {
		a.close()
		return nil, err
	}

	a.commands = make(chan protocol.Command, cfg.Server.QueueSize)
	a.processor = game.NewProcessor(st, a.commands,
		game.WithMoveStep(cfg.Server.MoveStep),
		game.WithProcessorMetrics(a.metrics),
	)

	a.udp = network.NewUDPServer(network.Config{
		Host:            cfg.Server.Host,
		RecvPort:        cfg.Server.RecvPort,
		SendPort:        cfg.Server.SendPort,
		SyncPort:        cfg.Server.SyncPort,
		ClientPort:      cfg.Server.ClientPort,
		FreshnessWindow: cfg.FreshnessWindow(),
		Ack:             cfg.Server.Ack,
	}, a.registry, game.NewSyncer(st), a.commands, a.metrics)
	if err := a.udp.Start(ctx, cancel); err != nil {
		a.close()
		return nil, err
	}

	a.broadcaster = game.NewBroadcaster(st, a.registry, a.udp.SendConn(), a.metrics)

	if cfg.Admin.Addr != "" {
		hub := admin.NewHub()
		a.broadcaster.SetPublisher(hub)
		a.admin = admin.NewServer(cfg.Admin.Addr, st, a.registry, a.metrics, hub)
		if err := a.admin.Start(); err != nil {
			a.close()
			return nil, fmt.Errorf("start admin http: %w", err)
		}
	}
	return a, nil
}

// Store exposes the player store.
func (a *App) Store() store.Store { return a.store }

// Metrics exposes the shared counters.
func (a *App) Metrics() *metrics.Counters { return a.metrics }

// CommandAddr is the bound command socket.
func (a *App) CommandAddr() net.Addr { return a.udp.RecvAddr() }

// SyncAddr is the bound position sync socket.
func (a *App) SyncAddr() net.Addr { return a.udp.SyncAddr() }

// AdminAddr is the bound admin address, empty when disabled.
func (a *App) AdminAddr() string {
	if a.admin == nil {
		return ""
	}
	return a.admin.Addr()
}

// Run drives the processing and broadcast tasks until the parent context is
// cancelled, a client sends E0, or a task fails. Only a task failure is
// returned as an error.
func (a *App) Run() error {
	defer a.close()

	interval := a.cfg.TickInterval()
	var wg sync.WaitGroup
	start := func(name string, task func(context.Context, time.Duration) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := task(a.ctx, interval); err != nil {
				utils.LogErrorf("%s task failed: %v", name, err)
				a.cancel(err)
			}
		}()
	}
	start("processor", a.processor.Run)
	start("broadcaster", a.broadcaster.Run)
	utils.LogInfof("Server running: %d ticks/s, queue %d", a.cfg.Server.TickRate, a.cfg.Server.QueueSize)

	<-a.ctx.Done()
	wg.Wait()
	a.broadcaster.Wait()

	cause := context.Cause(a.ctx)
	switch {
	case errors.Is(cause, network.ErrExitRequested):
		utils.LogInfo("Shutting down on client exit request.")
		return nil
	case errors.Is(cause, context.Canceled):
		utils.LogInfo("Shutting down.")
		return nil
	default:
		return cause
	}
}

func (a *App) close() {
	a.cancel(nil)
	if a.admin != nil {
		ctx, cancel := context.WithTimeout(context.Background(), adminShutdownTimeout)
		if err := a.admin.Shutdown(ctx); err != nil {
			utils.LogWarnf("Admin HTTP shutdown: %v", err)
		}
		cancel()
	}
	if a.udp != nil {
		a.udp.Stop()
	}
	if a.registry != nil {
		a.registry.Stop()
	}
	if a.system != nil {
		a.system.Shutdown()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			utils.LogWarnf("Closing store: %v", err)
		}
	}
}
