package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/coinvendo/gateway/internal/core/domain"
	"github.com/coinvendo/gateway/internal/core/port"
)

// IdleMonitor pauses connected, unpaused users per §4.8. The Ticker never
// pauses; only IdleMonitor does, and only on the AND of all three stall
// signals per the resolved redesign (not OR, which would pause on a
// merely-quiet-but-still-reachable device).
type IdleMonitor struct {
	store  *SessionStore
	policy port.PacketPolicy
	log    *zap.Logger

	idleTimeout time.Duration
	interval    time.Duration
}

func NewIdleMonitor(store *SessionStore, policy port.PacketPolicy, log *zap.Logger, idleTimeout time.Duration) *IdleMonitor {
	if idleTimeout <= 0 {
		idleTimeout = 120 * time.Second
	}
	return &IdleMonitor{store: store, policy: policy, log: log, idleTimeout: idleTimeout, interval: 5 * time.Second}
}

// Run polls every 5 s until ctx is cancelled; the interval is fixed and
// not taken from configuration. IdleMonitor never reports errors upward; it logs and defers.
func (m *IdleMonitor) Run(ctx context.Context) {
	tick := time.NewTicker(m.interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick.C:
			m.Sweep(ctx, now)
		}
	}
}

// Sweep runs one pass. Exported for deterministic testing.
func (m *IdleMonitor) Sweep(ctx context.Context, now time.Time) {
	_ = m.store.IterateActive(ctx, func(u domain.User) error {
		if !u.Connected || u.Paused {
			return nil
		}
		if u.IP == nil || *u.IP == "" {
			return nil
		}

		byteCountersStalled := now.Sub(u.LastTrafficAt) >= m.idleTimeout

		neighborStale, err := m.policy.NeighborStale(ctx, *u.IP)
		if err != nil {
			m.log.Warn("idle monitor: neighbor probe failed", zap.String("ip", *u.IP), zap.Error(err))
			return nil
		}

		liveFlows, err := m.policy.HasLiveFlows(ctx, *u.IP)
		if err != nil {
			m.log.Warn("idle monitor: live flows probe failed", zap.String("ip", *u.IP), zap.Error(err))
			return nil
		}

		if byteCountersStalled && neighborStale && !liveFlows {
			if err := m.store.Pause(ctx, u.ID, u.MAC, *u.IP); err != nil {
				m.log.Warn("idle monitor: pause failed", zap.String("user_id", u.ID), zap.Error(err))
			}
		}
		return nil
	})
}
