package game

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/phuhao00/worldsync/server/internal/metrics"
	"github.com/phuhao00/worldsync/server/internal/model"
	"github.com/phuhao00/worldsync/server/internal/protocol"
	"github.com/phuhao00/worldsync/server/internal/store"
	"github.com/phuhao00/worldsync/server/internal/utils"
)

// SessionSource lists the addresses a tick should reach.
type SessionSource interface {
	Snapshot() ([]model.Session, error)
}

// PacketSender is the outbound socket. *net.UDPConn satisfies it.
type PacketSender interface {
	WriteTo(b []byte, addr net.Addr) (int, error)
}

// Publisher receives the unfiltered frame of every tick.
type Publisher interface {
	Publish(frame []byte)
}

// Broadcaster sends each registered session the full player map minus the
// recipient's own record.
type Broadcaster struct {
	store    store.Store
	sessions SessionSource
	conn     PacketSender
	metrics  *metrics.Counters

	mu        sync.RWMutex
	publisher Publisher

	inflight sync.WaitGroup
}

func NewBroadcaster(s store.Store, sessions SessionSource, conn PacketSender, m *metrics.Counters) *Broadcaster {
	if m == nil {
		m = &metrics.Counters{}
	}
	return &Broadcaster{store: s, sessions: sessions, conn: conn, metrics: m}
}

// SetPublisher attaches the spectator feed. Nil detaches it.
func (b *Broadcaster) SetPublisher(p Publisher) {
	b.mu.Lock()
	b.publisher = p
	b.mu.Unlock()
}

// Tick schedules one round of sends and returns without waiting for them.
// Only a store failure is returned; a registry timeout skips the round.
func (b *Broadcaster) Tick(ctx context.Context) error {
	players, err := b.store.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("broadcast snapshot: %w", err)
	}
	sessions, err := b.sessions.Snapshot()
	if err != nil {
		utils.LogWarnf("Broadcast skipped: %v", err)
		return nil
	}

	b.publish(players)

	for _, session := range sessions {
		if session.Addr == nil {
			continue
		}
		frame, err := protocol.EncodeBroadcast(without(players, session.PlayerID))
		if err != nil {
			utils.LogErrorf("Encode broadcast for %s: %v", session.PlayerID, err)
			continue
		}
		b.inflight.Add(1)
		go b.send(session, frame)
	}
	return nil
}

func (b *Broadcaster) send(session model.Session, frame []byte) {
	defer b.inflight.Done()
	if _, err := b.conn.WriteTo(frame, session.Addr); err != nil {
		b.metrics.IncSendFailure()
		utils.LogDebugf("Send to %s (%s) failed: %v", session.PlayerID, session.Addr, err)
		return
	}
	b.metrics.IncBroadcastSent()
}

func (b *Broadcaster) publish(players map[string]model.Player) {
	b.mu.RLock()
	p := b.publisher
	b.mu.RUnlock()
	if p == nil {
		return
	}
	frame, err := protocol.EncodeBroadcast(players)
	if err != nil {
		utils.LogErrorf("Encode spectator frame: %v", err)
		return
	}
	p.Publish(frame)
}

// Wait blocks until every send scheduled so far has finished.
func (b *Broadcaster) Wait() {
	b.inflight.Wait()
}

// Run ticks every interval until ctx is done.
func (b *Broadcaster) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	utils.LogInfof("Broadcaster running every %v", interval)
	for {
		select {
		case <-ctx.Done():
			utils.LogInfo("Broadcaster stopped")
			return nil
		case <-ticker.C:
			if err := b.Tick(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

func without(players map[string]model.Player, id string) map[string]model.Player {
	out := make(map[string]model.Player, len(players))
	for k, v := range players {
		if k != id {
			out[k] = v
		}
	}
	return out
}
