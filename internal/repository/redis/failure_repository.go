package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/coinvendo/gateway/internal/core/domain"
	"github.com/coinvendo/gateway/internal/repository"
)

// SlidingWindowConfig defines configuration for the sliding window limiter.
type SlidingWindowConfig struct {
	KeyPrefix string
	TTL       time.Duration
}

// FailureRepository implements port.FailureRepository against a Redis
// sorted set: each failed attempt is recorded with its timestamp as the
// score, Count is the cardinality of the window, and a separate ban key
// whose TTL equals the ban duration does the ban-expiry bookkeeping.
type FailureRepository struct {
	client *redis.Client
	cfg    SlidingWindowConfig
}

// NewFailureRepository constructs a repository using the provided Redis client and config.
func NewFailureRepository(client *redis.Client, cfg SlidingWindowConfig) *FailureRepository {
	return &FailureRepository{client: client, cfg: cfg}
}

func (r *FailureRepository) Get(ctx context.Context, mac string) (*domain.FailureRecord, error) {
	mac = domain.NormalizeMAC(mac)
	count, err := r.client.ZCard(ctx, r.key(mac)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zcard: %w", err)
	}

	var bannedUntil *time.Time
	bannedStr, err := r.client.Get(ctx, r.banKey(mac)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("redis get ban: %w", err)
		}
	} else if ts, perr := time.Parse(time.RFC3339, bannedStr); perr == nil {
		bannedUntil = &ts
	}

	if count == 0 && bannedUntil == nil {
		return nil, repository.ErrNotFound
	}
	return &domain.FailureRecord{MAC: mac, Count: int(count), BannedUntil: bannedUntil}, nil
}

// Increment records a new failed attempt at now and returns the refreshed count.
func (r *FailureRepository) Increment(ctx context.Context, mac string, kind domain.FailureKind) (*domain.FailureRecord, error) {
	mac = domain.NormalizeMAC(mac)
	key := r.key(mac)
	now := time.Now()
	member := redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()}

	if err := r.client.ZAdd(ctx, key, member).Err(); err != nil {
		return nil, fmt.Errorf("redis zadd: %w", err)
	}
	if r.cfg.TTL > 0 {
		if err := r.client.Expire(ctx, key, r.cfg.TTL).Err(); err != nil {
			return nil, fmt.Errorf("redis expire: %w", err)
		}
	}

	count, err := r.client.ZCard(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zcard: %w", err)
	}

	record := &domain.FailureRecord{MAC: mac, Count: int(count), Kind: kind}
	if bannedStr, err := r.client.Get(ctx, r.banKey(mac)).Result(); err == nil {
		if ts, perr := time.Parse(time.RFC3339, bannedStr); perr == nil {
			record.BannedUntil = &ts
		}
	}
	return record, nil
}

// Ban stamps mac as banned until the given time, self-expiring via TTL.
func (r *FailureRepository) Ban(ctx context.Context, mac string, until time.Time) error {
	mac = domain.NormalizeMAC(mac)
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, r.banKey(mac), until.Format(time.RFC3339), ttl).Err(); err != nil {
		return fmt.Errorf("redis set ban: %w", err)
	}
	return nil
}

// Reset clears both the attempt window and any ban for mac.
func (r *FailureRepository) Reset(ctx context.Context, mac string) error {
	mac = domain.NormalizeMAC(mac)
	if err := r.client.Del(ctx, r.key(mac), r.banKey(mac)).Err(); err != nil {
		return fmt.Errorf("redis reset failure record: %w", err)
	}
	return nil
}

func (r *FailureRepository) key(mac string) string {
	if r.cfg.KeyPrefix == "" {
		return mac
	}
	return fmt.Sprintf("%s:%s", r.cfg.KeyPrefix, mac)
}

func (r *FailureRepository) banKey(mac string) string {
	return fmt.Sprintf("%s:ban:%s", r.cfg.KeyPrefix, mac)
}
