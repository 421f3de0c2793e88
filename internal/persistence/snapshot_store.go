package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/jefflunt/tiny-outcome/internal/config"
	"github.com/jefflunt/tiny-outcome/internal/model"
)

const (
	latestPrefix = "outcome:latest:"
	recentPrefix = "outcome:recent:"
)

// SnapshotStore exports tracker snapshots and recent outcomes to redis for
// dashboards. Trackers are never rebuilt from it.
type SnapshotStore struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	ttl     time.Duration
	recent  int
}

func NewSnapshotStore(cfg config.RedisConfig, logger zerolog.Logger) *SnapshotStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewSnapshotStoreWithClient(client, cfg.TTL, cfg.RecentLimit, logger)
}

func NewSnapshotStoreWithClient(client *redis.Client, ttl time.Duration, recent int, logger zerolog.Logger) *SnapshotStore {
	return &SnapshotStore{
		client:  client,
		breaker: newBreaker("redis-snapshots", logger),
		ttl:     ttl,
		recent:  recent,
	}
}

func (s *SnapshotStore) Check(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *SnapshotStore) Stop() error {
	return s.client.Close()
}

// Save writes the latest snapshot and appends o to the signal's recent list.
// snap is taken as given; per-push snapshots carry windowed stats as of the
// last explicit refresh.
func (s *SnapshotStore) Save(ctx context.Context, o model.Outcome, snap model.Snapshot) error {
	snapPayload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	outcomePayload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	_, err = s.breaker.Execute(func() (interface{}, error) {
		pipe := s.client.Pipeline()
		pipe.Set(ctx, latestPrefix+snap.Signal, snapPayload, s.ttl)
		pipe.LPush(ctx, recentPrefix+o.Signal, outcomePayload)
		pipe.LTrim(ctx, recentPrefix+o.Signal, 0, int64(s.recent-1))
		return pipe.Exec(ctx)
	})
	if err != nil {
		return fmt.Errorf("redis exec: %w", err)
	}
	return nil
}

// FetchLatest returns nil, nil when nothing is stored for signal.
func (s *SnapshotStore) FetchLatest(ctx context.Context, signal string) (*model.Snapshot, error) {
	data, err := s.client.Get(ctx, latestPrefix+signal).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Recent returns up to n stored outcomes for signal, newest first.
func (s *SnapshotStore) Recent(ctx context.Context, signal string, n int) ([]model.Outcome, error) {
	if n <= 0 || n > s.recent {
		n = s.recent
	}

	items, err := s.client.LRange(ctx, recentPrefix+signal, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}

	out := make([]model.Outcome, 0, len(items))
	for _, item := range items {
		var o model.Outcome
		if err := json.Unmarshal([]byte(item), &o); err != nil {
			return nil, fmt.Errorf("unmarshal outcome: %w", err)
		}
		out = append(out, o)
	}
	return out, nil
}
