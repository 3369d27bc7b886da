package redis

import (
	"context"
	"fmt"
	"time"

	red "github.com/redis/go-redis/v9"
)

// HeartbeatRateLimitStore implements middleware.RateLimitStore with the
// same ZSET sliding-window mechanics as FailureRepository: one member per
// attempt, scored by its own timestamp, trimmed to the rule's window.
// It backs the sub-device heartbeat/pulse endpoints' per-source-id rate
// limit, keeping abuse throttling at the HTTP edge separate from
// FailAttemptGate's per-MAC ban bookkeeping at the usecase layer.
type HeartbeatRateLimitStore struct {
	client *red.Client
	prefix string
}

// NewHeartbeatRateLimitStore builds a store scoping ZSET keys under prefix.
func NewHeartbeatRateLimitStore(client *red.Client, prefix string) *HeartbeatRateLimitStore {
	if prefix == "" {
		prefix = "gateway:httprl"
	}
	return &HeartbeatRateLimitStore{client: client, prefix: prefix}
}

func (s *HeartbeatRateLimitStore) key(identifier string) string {
	return fmt.Sprintf("%s:%s", s.prefix, identifier)
}

// TrimWindow evicts attempts older than window relative to reference.
func (s *HeartbeatRateLimitStore) TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error {
	floor := reference.Add(-window).UnixNano()
	return s.client.ZRemRangeByScore(ctx, s.key(identifier), "-inf", fmt.Sprintf("%d", floor)).Err()
}

// CountAttempts returns the number of attempts within window.
func (s *HeartbeatRateLimitStore) CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	floor := reference.Add(-window).UnixNano()
	count, err := s.client.ZCount(ctx, s.key(identifier), fmt.Sprintf("%d", floor), "+inf").Result()
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// RecordAttempt adds one attempt scored by its own timestamp and refreshes
// the key's TTL to a fixed one hour so idle identifiers expire cleanly.
func (s *HeartbeatRateLimitStore) RecordAttempt(ctx context.Context, identifier string, at time.Time) error {
	key := s.key(identifier)
	member := fmt.Sprintf("%d", at.UnixNano())
	if err := s.client.ZAdd(ctx, key, red.Z{Score: float64(at.UnixNano()), Member: member}).Err(); err != nil {
		return err
	}
	return s.client.Expire(ctx, key, time.Hour).Err()
}

// OldestAttempt returns the earliest attempt within window, if any.
func (s *HeartbeatRateLimitStore) OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	floor := reference.Add(-window).UnixNano()
	results, err := s.client.ZRangeByScoreWithScores(ctx, s.key(identifier), &red.ZRangeBy{
		Min:   fmt.Sprintf("%d", floor),
		Max:   "+inf",
		Count: 1,
	}).Result()
	if err != nil {
		return time.Time{}, false, err
	}
	if len(results) == 0 {
		return time.Time{}, false, nil
	}
	return time.Unix(0, int64(results[0].Score)), true, nil
}
