package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redislib "github.com/redis/go-redis/v9"
)

// RedisSnapshotStore keeps snapshots as JSON values under "<prefix><aggregateID>"
type RedisSnapshotStore struct {
	client *redislib.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSnapshotStore creates a Redis-backed snapshot store. A ttl of zero
// keeps snapshots until they are overwritten.
func NewRedisSnapshotStore(client *redislib.Client, ttl time.Duration) *RedisSnapshotStore {
	return &RedisSnapshotStore{
		client: client,
		prefix: "snapshot:",
		ttl:    ttl,
	}
}

// ConnectRedis parses url, connects and pings the server
func ConnectRedis(url string) (*redislib.Client, error) {
	opts, err := redislib.ParseURL(url)
	if err != nil {
		return nil, err
	}

	client := redislib.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func (s *RedisSnapshotStore) SaveSnapshot(ctx context.Context, aggregateID string, snapshot *Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key(aggregateID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (s *RedisSnapshotStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	result, err := s.client.Get(ctx, s.key(aggregateID)).Bytes()
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(result, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snapshot, nil
}

func (s *RedisSnapshotStore) key(aggregateID string) string {
	return s.prefix + aggregateID
}
