package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/phuhao00/worldsync/server/internal/model"
	"github.com/phuhao00/worldsync/server/internal/utils"
)

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore keeps players in the "players" hash, one field per player id,
// and the last mutation time under "updated".
type RedisStore struct {
	client *redis.Client
	now    utils.Clock
}

// NewRedisStore creates the client; no connection is made until first use.
func NewRedisStore(cfg RedisConfig) *RedisStore {
	utils.LogInfof("Initializing Redis player store at %s (db %d)", cfg.Addr, cfg.DB)
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisStoreFromClient(rdb, nil)
}

// NewRedisStoreFromClient wraps an existing client. A nil clock uses the wall clock.
func NewRedisStoreFromClient(client *redis.Client, now utils.Clock) *RedisStore {
	if now == nil {
		now = utils.SystemClock
	}
	return &RedisStore{client: client, now: now}
}

// Ping verifies the server is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	if _, err := s.client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	utils.LogInfo("Redis connection successful.")
	return nil
}

func (s *RedisStore) Get(ctx context.Context, playerID string) (model.Player, error) {
	raw, err := s.client.HGet(ctx, PlayersKey, playerID).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Player{}, ErrPlayerNotFound
	}
	if err != nil {
		return model.Player{}, fmt.Errorf("redis hget %s: %w", playerID, err)
	}
	return decodePlayer(playerID, raw)
}

func (s *RedisStore) Set(ctx context.Context, player model.Player) error {
	data, err := encodePlayer(player)
	if err != nil {
		return err
	}
	// Pipelined, not MULTI: the two keys are independent writes.
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, PlayersKey, player.ID, data)
		pipe.Set(ctx, UpdatedKey, s.now().Unix(), 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis hset %s: %w", player.ID, err)
	}
	return nil
}

func (s *RedisStore) Snapshot(ctx context.Context) (map[string]model.Player, error) {
	fields, err := s.client.HGetAll(ctx, PlayersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	raw := make(map[string][]byte, len(fields))
	for id, value := range fields {
		raw[id] = []byte(value)
	}
	return decodeSnapshot(raw), nil
}

func (s *RedisStore) LastUpdated(ctx context.Context) (int64, error) {
	ts, err := s.client.Get(ctx, UpdatedKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get %s: %w", UpdatedKey, err)
	}
	return ts, nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	if err := s.client.Close(); err != nil {
		utils.LogErrorf("Error closing Redis connection: %v", err)
		return err
	}
	utils.LogInfo("Redis connection closed.")
	return nil
}
