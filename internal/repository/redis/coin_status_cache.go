package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/coinvendo/gateway/internal/core/domain"
)

const defaultCoinStatusPrefix = "gateway:coin_status"

// coinStatusSnapshot is the JSON payload cached for one appliance's open
// coin session, so a portal handler on another process can answer
// status() polls without round-tripping to CoinAggregator directly.
type coinStatusSnapshot struct {
	OwnerMAC      string `json:"owner_mac"`
	State         string `json:"state"`
	PendingAmount int64  `json:"pending_amount"`
	DeadlineUnix  int64  `json:"deadline_unix"`
}

// CoinStatusCache publishes CoinAggregator's open-session snapshot to
// Redis with a TTL tracking the session's pulse-idle deadline
// (TimerDeadline), so a
// stale entry self-expires instead of lingering past a committed or
// aborted session.
type CoinStatusCache struct {
	client *red.Client
	prefix string
}

func NewCoinStatusCache(client *red.Client, keyPrefix string) *CoinStatusCache {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultCoinStatusPrefix
	}
	return &CoinStatusCache{client: client, prefix: prefix}
}

// Publish stores session's snapshot, keyed by applianceID, with a TTL
// matching its remaining time to deadline.
func (c *CoinStatusCache) Publish(ctx context.Context, applianceID string, session *domain.CoinSession) error {
	if session == nil {
		return c.Clear(ctx, applianceID)
	}
	ttl := time.Until(session.TimerDeadline)
	if ttl <= 0 {
		return c.Clear(ctx, applianceID)
	}

	payload, err := json.Marshal(coinStatusSnapshot{
		OwnerMAC:      session.OwnerMAC,
		State:         string(session.State),
		PendingAmount: session.Total(),
		DeadlineUnix:  session.TimerDeadline.Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal coin status snapshot: %w", err)
	}

	if err := c.client.Set(ctx, c.key(applianceID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set coin status: %w", err)
	}
	return nil
}

// Clear removes a cached snapshot once its session closes.
func (c *CoinStatusCache) Clear(ctx context.Context, applianceID string) error {
	if err := c.client.Del(ctx, c.key(applianceID)).Err(); err != nil {
		return fmt.Errorf("redis delete coin status: %w", err)
	}
	return nil
}

// PendingAmount returns the cached pending pesos for applianceID, or 0
// if nothing is cached.
func (c *CoinStatusCache) PendingAmount(ctx context.Context, applianceID string) (int64, error) {
	raw, err := c.client.Get(ctx, c.key(applianceID)).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis get coin status: %w", err)
	}
	var snap coinStatusSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return 0, fmt.Errorf("unmarshal coin status snapshot: %w", err)
	}
	return snap.PendingAmount, nil
}

func (c *CoinStatusCache) key(applianceID string) string {
	return fmt.Sprintf("%s:%s", c.prefix, applianceID)
}
