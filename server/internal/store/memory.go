package store

import (
	"context"
	"sync"

	"github.com/phuhao00/worldsync/server/internal/model"
	"github.com/phuhao00/worldsync/server/internal/utils"
)

// MemoryStore keeps JSON-encoded records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	players map[string][]byte
	updated int64
	now     utils.Clock
}

// NewMemoryStore returns an empty store. A nil clock uses the wall clock.
func NewMemoryStore(now utils.Clock) *MemoryStore {
	if now == nil {
		now = utils.SystemClock
	}
	return &MemoryStore{players: make(map[string][]byte), now: now}
}

func (s *MemoryStore) Get(_ context.Context, playerID string) (model.Player, error) {
	s.mu.RLock()
	raw, ok := s.players[playerID]
	s.mu.RUnlock()
	if !ok {
		return model.Player{}, ErrPlayerNotFound
	}
	return decodePlayer(playerID, raw)
}

func (s *MemoryStore) Set(_ context.Context, player model.Player) error {
	data, err := encodePlayer(player)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.players[player.ID] = data
	s.updated = s.now().Unix()
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Snapshot(_ context.Context) (map[string]model.Player, error) {
	s.mu.RLock()
	raw := make(map[string][]byte, len(s.players))
	for id, data := range s.players {
		raw[id] = data
	}
	s.mu.RUnlock()
	return decodeSnapshot(raw), nil
}

func (s *MemoryStore) LastUpdated(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updated, nil
}

func (s *MemoryStore) Close() error { return nil }
