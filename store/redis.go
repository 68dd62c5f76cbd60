package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/geepers/cascade/types"
)

// RedisConfig configures the Redis-backed session store.
type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	Password  string `yaml:"password" json:"password"`
	DB        int    `yaml:"db" json:"db"`
	PoolSize  int    `yaml:"pool_size" json:"pool_size"`
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

// RedisSessionStore is a Redis-backed SessionStore. Session records are
// stored as JSON values with a sorted-set index ordered by creation time.
//
// Mutations are read-modify-write guarded by a process-local mutex: each
// session has a single writer (the orchestrator that owns it), so no
// cross-process coordination is needed.
type RedisSessionStore struct {
	client    *redis.Client
	keyPrefix string
	mu        sync.Mutex
}

// NewRedisSessionStore creates a Redis-backed session store and verifies
// connectivity.
func NewRedisSessionStore(cfg RedisConfig) (*RedisSessionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "cascade:"
	}

	return &RedisSessionStore{
		client:    client,
		keyPrefix: keyPrefix + "session:",
	}, nil
}

// Close closes the store.
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}

// Ping checks if the store is healthy.
func (s *RedisSessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisSessionStore) sessionKey(id string) string {
	return s.keyPrefix + "data:" + id
}

func (s *RedisSessionStore) indexKey() string {
	return s.keyPrefix + "all"
}

// Put stores a session, overwriting any existing record with the same ID.
func (s *RedisSessionStore) Put(ctx context.Context, session *types.Session) error {
	if session == nil || session.ID == "" {
		return types.NewError(types.ErrInvalidConfig, "session must have an ID")
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.sessionKey(session.ID), data, 0)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{
		Score:  float64(session.CreatedAt.UnixNano()),
		Member: session.ID,
	})
	_, err = pipe.Exec(ctx)
	return err
}

// Get returns a snapshot of the session.
func (s *RedisSessionStore) Get(ctx context.Context, id string) (*types.Session, error) {
	data, err := s.client.Get(ctx, s.sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, types.NewErrorf(types.ErrNotFound, "session not found: %s", id)
	}
	if err != nil {
		return nil, err
	}

	var session types.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// Delete removes a session.
func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	removed, err := s.client.Del(ctx, s.sessionKey(id)).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return types.NewErrorf(types.ErrNotFound, "session not found: %s", id)
	}
	return s.client.ZRem(ctx, s.indexKey(), id).Err()
}

// ListIDs returns all session IDs ordered by creation time.
func (s *RedisSessionStore) ListIDs(ctx context.Context) ([]string, error) {
	return s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
}

// mutate applies fn to the stored session and writes it back.
func (s *RedisSessionStore) mutate(ctx context.Context, id string, fn func(*types.Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(session); err != nil {
		return err
	}
	return s.Put(ctx, session)
}

// UpdateState transitions a session to the given state.
func (s *RedisSessionStore) UpdateState(ctx context.Context, id string, state types.SessionState) error {
	return s.mutate(ctx, id, func(session *types.Session) error {
		return applyTransition(session, state)
	})
}

// SetProgress replaces the session's progress counters.
func (s *RedisSessionStore) SetProgress(ctx context.Context, id string, progress types.Progress) error {
	return s.mutate(ctx, id, func(session *types.Session) error {
		session.Progress = progress
		return nil
	})
}

// AppendPartial appends a landed unit result and bumps the progress counter.
func (s *RedisSessionStore) AppendPartial(ctx context.Context, id string, result types.AgentResult) error {
	return s.mutate(ctx, id, func(session *types.Session) error {
		session.PartialResults = append(session.PartialResults, result)
		session.Progress.CompletedAgents = len(session.PartialResults)
		return nil
	})
}

// Complete transitions the session to completed and attaches the report.
func (s *RedisSessionStore) Complete(ctx context.Context, id string, report *types.Report) error {
	if report == nil {
		return types.NewError(types.ErrInvalidConfig, "completed session requires a report")
	}
	return s.mutate(ctx, id, func(session *types.Session) error {
		if err := applyTransition(session, types.StateCompleted); err != nil {
			return err
		}
		session.Report = report
		session.PartialResults = nil
		return nil
	})
}

// Fail transitions the session to failed with an error message.
func (s *RedisSessionStore) Fail(ctx context.Context, id string, message string) error {
	return s.mutate(ctx, id, func(session *types.Session) error {
		if err := applyTransition(session, types.StateFailed); err != nil {
			return err
		}
		session.Error = message
		return nil
	})
}

// Cancel transitions the session to cancelled, preserving partial results.
func (s *RedisSessionStore) Cancel(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.Get(ctx, id)
	if err != nil {
		if types.IsCode(err, types.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if session.IsTerminal() {
		return false, nil
	}

	if err := applyTransition(session, types.StateCancelled); err != nil {
		return false, err
	}
	if err := s.Put(ctx, session); err != nil {
		return false, err
	}
	return true, nil
}

// Cleanup removes terminal sessions that finished before the cutoff.
func (s *RedisSessionStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	ids, err := s.ListIDs(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, id := range ids {
		session, err := s.Get(ctx, id)
		if err != nil {
			continue
		}
		if !expired(session, cutoff) {
			continue
		}
		if err := s.Delete(ctx, id); err == nil {
			removed++
		}
	}
	return removed, nil
}

// Stats returns session counts grouped by state.
func (s *RedisSessionStore) Stats(ctx context.Context) (map[types.SessionState]int, error) {
	ids, err := s.ListIDs(ctx)
	if err != nil {
		return nil, err
	}

	stats := make(map[types.SessionState]int)
	for _, id := range ids {
		session, err := s.Get(ctx, id)
		if err != nil {
			continue
		}
		stats[session.State]++
	}
	return stats, nil
}
