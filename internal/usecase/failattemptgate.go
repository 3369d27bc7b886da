package usecase

import (
	"context"
	"time"

	"github.com/coinvendo/gateway/internal/core/domain"
	"github.com/coinvendo/gateway/internal/core/port"
)

// FailAttemptGate is the per-MAC consecutive-failure counter from §4.9.
type FailAttemptGate struct {
	repo     port.FailureRepository
	banLimit int
	banFor   time.Duration
}

func NewFailAttemptGate(repo port.FailureRepository, banLimit int, banFor time.Duration) *FailAttemptGate {
	if banLimit <= 0 {
		banLimit = 5
	}
	if banFor <= 0 {
		banFor = 15 * time.Minute
	}
	return &FailAttemptGate{repo: repo, banLimit: banLimit, banFor: banFor}
}

// Check returns a *BannedError if mac is currently banned, else nil.
func (g *FailAttemptGate) Check(ctx context.Context, mac string) error {
	record, err := g.repo.Get(ctx, domain.NormalizeMAC(mac))
	if err != nil {
		return nil
	}
	if record != nil && record.Banned(time.Now()) {
		return &BannedError{Until: *record.BannedUntil}
	}
	return nil
}

// RecordFailure increments the counter and bans mac once the limit is
// reached.
func (g *FailAttemptGate) RecordFailure(ctx context.Context, mac string, kind domain.FailureKind) error {
	record, err := g.repo.Increment(ctx, domain.NormalizeMAC(mac), kind)
	if err != nil {
		return err
	}
	if record.Count >= g.banLimit && record.BannedUntil == nil {
		return g.repo.Ban(ctx, domain.NormalizeMAC(mac), time.Now().Add(g.banFor))
	}
	return nil
}

// RecordSuccess clears both the counter and any ban.
func (g *FailAttemptGate) RecordSuccess(ctx context.Context, mac string) error {
	return g.repo.Reset(ctx, domain.NormalizeMAC(mac))
}
