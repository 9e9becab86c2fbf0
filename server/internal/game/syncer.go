package game

import (
	"context"
	"fmt"

	"github.com/phuhao00/worldsync/server/internal/protocol"
	"github.com/phuhao00/worldsync/server/internal/store"
)

// Syncer applies externally computed positions. It only rewrites the
// position; velocity and lastUpdate stay as the processor left them.
type Syncer struct {
	store store.Store
}

func NewSyncer(s store.Store) *Syncer {
	return &Syncer{store: s}
}

// Apply returns store.ErrPlayerNotFound for unknown players and
// store.ErrCorruptRecord when the stored record cannot be read.
func (s *Syncer) Apply(ctx context.Context, report protocol.PositionReport) error {
	player, err := s.store.Get(ctx, report.PlayerID)
	if err != nil {
		return err
	}
	player.Position = report.Position
	if err := s.store.Set(ctx, player); err != nil {
		return fmt.Errorf("sync %s: %w", report.PlayerID, err)
	}
	return nil
}
