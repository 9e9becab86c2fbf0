package game

import (
	"context"
	"errors"
	"testing"

	"github.com/phuhao00/worldsync/server/internal/model"
	"github.com/phuhao00/worldsync/server/internal/protocol"
	"github.com/phuhao00/worldsync/server/internal/store"
)

func TestSyncerOverwritesPositionOnly(t *testing.T) {
	s := store.NewMemoryStore(gameClock)
	ctx := context.Background()
	seed := model.Player{ID: "p1", Velocity: 1, LastUpdate: 42, Position: model.Point{X: 5}}
	if err := s.Set(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	syncer := NewSyncer(s)
	if err := syncer.Apply(ctx, protocol.PositionReport{PlayerID: "p1", Position: model.Point{X: -30, Y: 12}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	got := mustGet(t, s, "p1")
	if got.Position != (model.Point{X: -30, Y: 12}) {
		t.Fatalf("unexpected position %v", got.Position)
	}
	if got.Velocity != 1 || got.LastUpdate != 42 {
		t.Fatalf("sync must not touch velocity or lastUpdate, got %+v", got)
	}

	err := syncer.Apply(ctx, protocol.PositionReport{PlayerID: "nobody"})
	if !errors.Is(err, store.ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound, got %v", err)
	}
}

func TestSyncerReportsCorruptRecord(t *testing.T) {
	_, _, mr, s := newRedisBackedProcessor(t)
	mr.HSet(store.PlayersKey, "A", "not-json")

	err := NewSyncer(s).Apply(context.Background(), protocol.PositionReport{PlayerID: "A", Position: model.Point{X: 1}})
	if !errors.Is(err, store.ErrCorruptRecord) {
		t.Fatalf("expected ErrCorruptRecord, got %v", err)
	}
	if raw := mr.HGet(store.PlayersKey, "A"); raw != "not-json" {
		t.Fatalf("record must not be rewritten, got %q", raw)
	}
}
