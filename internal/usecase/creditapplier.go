package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coinvendo/gateway/internal/core/domain"
	"github.com/coinvendo/gateway/internal/core/port"
)

// CreditResult is CreditApplier.Apply's return value per §4.5's contract.
type CreditResult struct {
	SecondsAdded int64
	UserCode     string
}

// CreditApplier runs the §4.5 apply contract as a single logical
// transaction: Sale rows are appended before the User record is mutated,
// and the planner failure path leaves the Sale rows in place so the
// shortfall stays operator-visible rather than silently dropped.
type CreditApplier struct {
	store    *SessionStore
	sales    port.SaleRepository
	planner  *RatePlanner
	sources  *SourceRegistry
	events   port.EventPublisher
	log      *zap.Logger
}

func NewCreditApplier(store *SessionStore, sales port.SaleRepository, planner *RatePlanner, sources *SourceRegistry, events port.EventPublisher, log *zap.Logger) *CreditApplier {
	return &CreditApplier{store: store, sales: sales, planner: planner, sources: sources, events: events, log: log}
}

// Apply sums perSourceAmount, appends one Sale row per source, plans the
// total against the dominant source's visible rates, and atomically
// upserts the User. Returns ErrNoRateForAmount if the planner fails to
// fit the amount; the Sale rows remain regardless.
func (c *CreditApplier) Apply(ctx context.Context, mac, clientID string, perSourceAmount map[string]int64, dominantSource string, origin domain.SaleOrigin) (CreditResult, error) {
	var amount int64
	for _, v := range perSourceAmount {
		amount += v
	}
	if amount == 0 {
		return CreditResult{}, nil
	}

	now := time.Now()
	for source, sourceAmount := range perSourceAmount {
		if sourceAmount == 0 {
			continue
		}
		sale := domain.Sale{
			ID:          uuid.NewString(),
			Timestamp:   now,
			Amount:      sourceAmount,
			MAC:         domain.NormalizeMAC(mac),
			SourceID:    source,
			CommittedBy: origin,
		}
		if err := c.sales.Insert(ctx, sale); err != nil {
			return CreditResult{}, err
		}
	}

	plan := c.planner.Plan(amount, dominantSource)
	seconds := plan.Minutes * 60
	if seconds == 0 {
		c.log.Warn("credit applier: no rate fits amount, sale rows persisted",
			zap.Int64("amount", amount), zap.String("mac", mac))
		return CreditResult{}, ErrNoRateForAmount
	}

	upKbps, downKbps := plan.RateUpKbps, plan.RateDownKbps
	if c.sources != nil {
		if src, srcErr := c.sources.Get(ctx, dominantSource); srcErr == nil && src != nil {
			if overrideUp, overrideDown, ok := src.BandwidthOverride(); ok {
				upKbps, downKbps = overrideUp, overrideDown
			}
		}
	}

	user, err := c.store.ApplyCredit(ctx, mac, clientID, seconds, upKbps, downKbps)
	if err != nil {
		return CreditResult{}, err
	}

	if c.events != nil {
		_ = c.events.PublishCreditApplied(ctx, domain.CreditAppliedEvent{
			EventID:      uuid.NewString(),
			UserID:       user.ID,
			MAC:          user.MAC,
			AmountPesos:  amount,
			SecondsAdded: seconds,
			Origin:       origin,
			AppliedAt:    now,
		})
	}

	return CreditResult{SecondsAdded: seconds, UserCode: user.UserCode}, nil
}
