package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const visitKeyPrefix = "bt_last_visit:"

// RedisVisitStore keeps the last visit timestamp per visitor in Redis.
type RedisVisitStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisVisitStore(client *redis.Client, ttl time.Duration) *RedisVisitStore {
	return &RedisVisitStore{client: client, ttl: ttl}
}

func (s *RedisVisitStore) LastVisit(ctx context.Context, visitorID string) (time.Time, bool, error) {
	raw, err := s.client.Get(ctx, visitKeyPrefix+visitorID).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read last visit: %w", err)
	}

	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("malformed last visit marker %q: %w", raw, err)
	}
	return time.UnixMilli(ms), true, nil
}

func (s *RedisVisitStore) MarkVisit(ctx context.Context, visitorID string, at time.Time) error {
	value := strconv.FormatInt(at.UnixMilli(), 10)
	if err := s.client.Set(ctx, visitKeyPrefix+visitorID, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write last visit: %w", err)
	}
	return nil
}

// MemoryVisitStore is an in-process marker store for single-node setups and tests.
type MemoryVisitStore struct {
	mu     sync.Mutex
	visits map[string]time.Time
}

func NewMemoryVisitStore() *MemoryVisitStore {
	return &MemoryVisitStore{visits: make(map[string]time.Time)}
}

func (s *MemoryVisitStore) LastVisit(_ context.Context, visitorID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.visits[visitorID]
	return at, ok, nil
}

func (s *MemoryVisitStore) MarkVisit(_ context.Context, visitorID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visits[visitorID] = at
	return nil
}
