package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/phuhao00/worldsync/server/internal/model"
	"github.com/phuhao00/worldsync/server/internal/utils"
)

// Keys of the logical schema shared by every backend.
const (
	PlayersKey = "players"
	UpdatedKey = "updated"
)

// Backend names accepted in configuration.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// ErrPlayerNotFound is returned by Get when no record exists for the id.
var ErrPlayerNotFound = errors.New("store: player not found")

// ErrCorruptRecord is returned by Get when the stored value is not a player.
var ErrCorruptRecord = errors.New("store: corrupt player record")

// Store is the authoritative player table. Every operation touches a single
// player field; there are no multi-field transactions, so concurrent writers
// on one id resolve last-writer-wins.
type Store interface {
	Get(ctx context.Context, playerID string) (model.Player, error)
	// Set writes the player record and bumps the updated side key.
	Set(ctx context.Context, player model.Player) error
	Snapshot(ctx context.Context) (map[string]model.Player, error)
	// LastUpdated is the Unix time of the most recent Set, 0 if none.
	LastUpdated(ctx context.Context) (int64, error)
	Close() error
}

// Config selects and parameterises a backend.
type Config struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PostgresURL   string
}

// Open builds the configured backend and verifies it is reachable.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendRedis, "":
		s := NewRedisStore(RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	case BackendPostgres:
		s, err := OpenPostgres(cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	case BackendMemory:
		return NewMemoryStore(nil), nil
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}

func encodePlayer(player model.Player) ([]byte, error) {
	data, err := json.Marshal(player)
	if err != nil {
		return nil, fmt.Errorf("marshal player %s: %w", player.ID, err)
	}
	return data, nil
}

func decodePlayer(playerID string, raw []byte) (model.Player, error) {
	var player model.Player
	if err := json.Unmarshal(raw, &player); err != nil {
		return model.Player{}, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, playerID, err)
	}
	return player, nil
}

// decodeSnapshot skips records that fail to decode so one corrupt field does
// not blank every broadcast.
func decodeSnapshot(raw map[string][]byte) map[string]model.Player {
	players := make(map[string]model.Player, len(raw))
	for id, data := range raw {
		player, err := decodePlayer(id, data)
		if err != nil {
			utils.LogWarnf("Skipping unreadable player record: %v", err)
			continue
		}
		players[id] = player
	}
	return players
}
