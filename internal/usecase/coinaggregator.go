package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/coinvendo/gateway/internal/core/domain"
	"github.com/coinvendo/gateway/internal/core/port"
)

const (
	pulseIdleDeadline   = 30 * time.Second
	absoluteDeadline    = 60 * time.Second
	banDuration         = 10 * time.Minute
)

// CoinAggregator is the single, appliance-wide coin-slot state machine
// from §4.3. Exactly one instance exists per appliance; its mutex
// guards the mutually-exclusive physical coin slot, not the
// SessionStore writer.
type CoinAggregator struct {
	mu      sync.Mutex
	session *domain.CoinSession
	bannedUntil *time.Time
	pulseWindowStart time.Time
	pulseWindowCount int

	planner  *RatePlanner
	applier  *CreditApplier
	events   port.EventPublisher
	log      *zap.Logger

	banLimitPulsesPerWindow int
	pulseWindow             time.Duration

	statusPub   port.CoinStatusPublisher
	applianceID string
}

// SetStatusPublisher wires an optional fanout cache (e.g. Redis) that
// mirrors the open session's snapshot for out-of-process status polling.
// Safe to call once at startup; a nil publisher disables fanout.
func (a *CoinAggregator) SetStatusPublisher(applianceID string, pub port.CoinStatusPublisher) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applianceID = applianceID
	a.statusPub = pub
}

func (a *CoinAggregator) publishStatusLocked() {
	if a.statusPub == nil {
		return
	}
	if err := a.statusPub.Publish(context.Background(), a.applianceID, a.session); err != nil {
		a.log.Warn("coin aggregator: status fanout failed", zap.Error(err))
	}
}

func NewCoinAggregator(planner *RatePlanner, applier *CreditApplier, events port.EventPublisher, log *zap.Logger, banLimit int, pulseWindow time.Duration) *CoinAggregator {
	if banLimit <= 0 {
		banLimit = 50
	}
	if pulseWindow <= 0 {
		pulseWindow = time.Second
	}
	return &CoinAggregator{
		planner:                 planner,
		applier:                 applier,
		events:                  events,
		log:                     log,
		banLimitPulsesPerWindow: banLimit,
		pulseWindow:             pulseWindow,
	}
}

// StartInsert opens a new session or re-opens the same owner's session.
// Returns ErrBusy if a different owner already holds the slot, or a
// *BannedError if the aggregator is in its temporary abuse ban.
func (a *CoinAggregator) StartInsert(ownerMAC, ownerClientID string, mode domain.InsertMode, target string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	if a.bannedUntil != nil && now.Before(*a.bannedUntil) {
		return &BannedError{Until: *a.bannedUntil}
	}

	mac := domain.NormalizeMAC(ownerMAC)
	if a.session != nil {
		if a.session.OwnerMAC != mac {
			return ErrBusy
		}
		// Same owner re-opens: pending amount preserved.
		a.session.LastActivityAt = now
		a.session.TimerDeadline = now.Add(pulseIdleDeadline)
		a.publishStatusLocked()
		return nil
	}

	a.session = &domain.CoinSession{
		OwnerMAC:        mac,
		OwnerClientID:   ownerClientID,
		State:           domain.CoinSessionOpen,
		Mode:            mode,
		TargetSource:    target,
		PerSourceAmount: make(map[string]int64),
		OpenedAt:        now,
		LastActivityAt:  now,
		TimerDeadline:   now.Add(pulseIdleDeadline),
	}
	a.publishStatusLocked()
	return nil
}

// Pulse attributes a pulse from sourceID to the open session. pulseValue
// is the source's pesos-per-pulse multiplier, applied here per the
// resolved "pulse multiplier location" open question.
func (a *CoinAggregator) Pulse(sourceID string, count int, pulseValue int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session == nil {
		a.log.Info("coin pulse dropped: no open session", zap.String("source", sourceID))
		return
	}
	if !a.session.AcceptsPulseFrom(sourceID) {
		a.log.Info("coin pulse dropped: manual target mismatch",
			zap.String("source", sourceID), zap.String("target", a.session.TargetSource))
		return
	}

	now := time.Now()
	if a.trackAbuse(now, count) {
		a.trip(now)
		return
	}

	amount := int64(count) * pulseValue
	a.session.PendingAmount += amount
	a.session.PerSourceAmount[sourceID] += amount
	a.session.LastActivityAt = now
	a.session.TimerDeadline = now.Add(pulseIdleDeadline)
	a.publishStatusLocked()
}

// trackAbuse counts pulses within a rolling window and reports whether
// the configured ban threshold has been exceeded.
func (a *CoinAggregator) trackAbuse(now time.Time, count int) bool {
	if now.Sub(a.pulseWindowStart) > a.pulseWindow {
		a.pulseWindowStart = now
		a.pulseWindowCount = 0
	}
	a.pulseWindowCount += count
	return a.pulseWindowCount > a.banLimitPulsesPerWindow
}

// trip transitions the aggregator into a temporary ban, dropping the
// current session without committing.
func (a *CoinAggregator) trip(now time.Time) {
	until := now.Add(banDuration)
	a.bannedUntil = &until
	owner := ""
	count := a.pulseWindowCount
	if a.session != nil {
		owner = a.session.OwnerMAC
	}
	a.session = nil
	a.publishStatusLocked()
	a.log.Warn("coin aggregator: pulse abuse ban tripped", zap.Time("until", until))
	if a.events != nil {
		_ = a.events.PublishSourceBanned(context.Background(), domain.SourceBannedEvent{
			OwnerMAC:    owner,
			BannedUntil: until,
			PulseCount:  count,
		})
	}
}

// Done transitions Open -> Committing and runs CreditApplier inline;
// CoinAggregator returns to Idle only after the applier reports terminal
// success or an explicit Abort.
func (a *CoinAggregator) Done(ctx context.Context) (CreditResult, error) {
	a.mu.Lock()
	session := a.session
	if session == nil {
		a.mu.Unlock()
		return CreditResult{}, nil
	}
	session.State = domain.CoinSessionCommitting
	a.mu.Unlock()

	result, err := a.applier.Apply(ctx, session.OwnerMAC, session.OwnerClientID, session.PerSourceAmount, dominantSource(session.PerSourceAmount), domain.SaleOriginCoin)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		// Failure mid-commit: retain the pending amount as an open
		// committed-pending record for operator resolution; stay in
		// Committing rather than silently returning to Idle.
		a.log.Error("coin aggregator: credit apply failed, pending retained", zap.Error(err))
		return CreditResult{}, err
	}
	a.session = nil
	a.publishStatusLocked()
	return result, nil
}

// Abort explicitly tears the open session down without committing,
// per the administrative-teardown lifecycle clause in §3.
func (a *CoinAggregator) Abort() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session = nil
	a.publishStatusLocked()
}

// CheckDeadline transitions Open -> Committing when the timer has
// elapsed even without further pulses; the caller (a background ticker)
// invokes Done afterward.
func (a *CoinAggregator) CheckDeadline(now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil || a.session.State != domain.CoinSessionOpen {
		return false
	}
	if now.After(a.session.TimerDeadline) || now.Sub(a.session.OpenedAt) > absoluteDeadline {
		return true
	}
	return false
}

// Snapshot returns a read-only copy of the open session, or nil.
func (a *CoinAggregator) Snapshot() *domain.CoinSession {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return nil
	}
	cp := *a.session
	cp.PerSourceAmount = make(map[string]int64, len(a.session.PerSourceAmount))
	for k, v := range a.session.PerSourceAmount {
		cp.PerSourceAmount[k] = v
	}
	return &cp
}

// Run watches for deadline expiry even when no further pulses arrive,
// committing the open session as soon as its timer elapses. It exits
// when ctx is cancelled.
func (a *CoinAggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if a.CheckDeadline(now) {
				if _, err := a.Done(ctx); err != nil {
					a.log.Error("coin aggregator: deadline commit failed", zap.Error(err))
				}
			}
		}
	}
}

func dominantSource(perSource map[string]int64) string {
	var best string
	var bestAmount int64 = -1
	for source, amount := range perSource {
		if amount > bestAmount {
			bestAmount = amount
			best = source
		}
	}
	return best
}
