package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phuhao00/worldsync/server/internal/metrics"
	"github.com/phuhao00/worldsync/server/internal/model"
	"github.com/phuhao00/worldsync/server/internal/protocol"
	"github.com/phuhao00/worldsync/server/internal/store"
	"github.com/phuhao00/worldsync/server/internal/utils"
)

// DefaultMoveStep is how far one tick of a standing move carries a player.
const DefaultMoveStep int32 = 5

// Processor applies decoded commands to the store and keeps the standing move
// table. It is owned by a single goroutine; none of its methods are safe for
// concurrent use.
type Processor struct {
	store   store.Store
	inbound <-chan protocol.Command
	step    int32
	now     utils.Clock
	metrics *metrics.Counters

	// player id -> last Move command, reapplied every tick until a Stop.
	intents map[string]protocol.Command
}

// ProcessorOption customises a Processor.
type ProcessorOption func(*Processor)

// WithMoveStep overrides DefaultMoveStep. Non-positive values are ignored.
func WithMoveStep(step int32) ProcessorOption {
	return func(p *Processor) {
		if step > 0 {
			p.step = step
		}
	}
}

// WithProcessorClock sets the clock used for lastUpdate stamps.
func WithProcessorClock(now utils.Clock) ProcessorOption {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

// WithProcessorMetrics attaches counters.
func WithProcessorMetrics(m *metrics.Counters) ProcessorOption {
	return func(p *Processor) { p.metrics = m }
}

// NewProcessor creates a processor reading commands from inbound.
func NewProcessor(s store.Store, inbound <-chan protocol.Command, opts ...ProcessorOption) *Processor {
	p := &Processor{
		store:   s,
		inbound: inbound,
		step:    DefaultMoveStep,
		now:     utils.SystemClock,
		intents: make(map[string]protocol.Command),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Apply handles one command immediately. Moves are recorded as standing
// intents and take effect on the next reapply pass, not here.
func (p *Processor) Apply(ctx context.Context, cmd protocol.Command) error {
	switch cmd.Type {
	case protocol.CommandLogin:
		return p.login(ctx, cmd)
	case protocol.CommandMove:
		p.intents[cmd.Context.PlayerID] = cmd
	case protocol.CommandStop:
		delete(p.intents, cmd.Context.PlayerID)
	default:
		utils.LogDebugf("Processor ignoring %s command", cmd.Type)
	}
	return nil
}

func (p *Processor) login(ctx context.Context, cmd protocol.Command) error {
	switch cmd.Context.PlayerType {
	case protocol.PlayerTypePlayer:
		player := model.NewPlayer(cmd.Context.PlayerID, cmd.Context.Skin, p.now().Unix())
		if err := p.store.Set(ctx, player); err != nil {
			return fmt.Errorf("login %s: %w", player.ID, err)
		}
		utils.LogInfof("Player %s logged in (skin %d)", player.ID, player.Skin)
	case protocol.PlayerTypeObserver:
		utils.LogDebugf("Observer %s acknowledged", cmd.Context.PlayerID)
	default:
		utils.LogDebugf("Login for %s with unknown player type %q ignored", cmd.Context.PlayerID, cmd.Context.PlayerType)
	}
	return nil
}

// Tick drains every command already queued, then reapplies the standing
// move table. A login in the same tick as a move for that player is applied
// first.
func (p *Processor) Tick(ctx context.Context) error {
	start := time.Now()
	if err := p.drain(ctx); err != nil {
		return err
	}
	for id, cmd := range p.intents {
		if err := p.move(ctx, cmd); err != nil {
			return fmt.Errorf("move %s: %w", id, err)
		}
	}
	if p.metrics != nil {
		p.metrics.AddIntents(len(p.intents))
		p.metrics.AddTick(time.Since(start).Nanoseconds())
	}
	return nil
}

func (p *Processor) drain(ctx context.Context) error {
	for {
		select {
		case cmd, ok := <-p.inbound:
			if !ok {
				return nil
			}
			if err := p.Apply(ctx, cmd); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// move applies one step of a standing intent. A missing or unreadable
// player is not an error and the intent stays in place.
func (p *Processor) move(ctx context.Context, cmd protocol.Command) error {
	player, err := p.store.Get(ctx, cmd.Context.PlayerID)
	if errors.Is(err, store.ErrPlayerNotFound) {
		return nil
	}
	if errors.Is(err, store.ErrCorruptRecord) {
		utils.LogWarnf("Skipping move: %v", err)
		return nil
	}
	if err != nil {
		return err
	}

	dir := cmd.Context.Direction
	switch dir {
	case protocol.DirUp:
		player.Position.Y -= p.step
	case protocol.DirRight:
		player.Position.X += p.step
	case protocol.DirDown:
		player.Position.Y += p.step
	case protocol.DirLeft:
		player.Position.X -= p.step
	}
	player.Velocity = dir
	player.LastUpdate = p.now().Unix()
	return p.store.Set(ctx, player)
}

// Intents returns a copy of the standing move table.
func (p *Processor) Intents() map[string]protocol.Command {
	out := make(map[string]protocol.Command, len(p.intents))
	for id, cmd := range p.intents {
		out[id] = cmd
	}
	return out
}

// Run ticks every interval until ctx is done. A store failure stops the loop
// and is returned to the caller.
func (p *Processor) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	utils.LogInfof("Processor running every %v (step %d)", interval, p.step)
	for {
		select {
		case <-ctx.Done():
			utils.LogInfo("Processor stopped")
			return nil
		case <-ticker.C:
			if err := p.Tick(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("processor tick: %w", err)
			}
		}
	}
}
