package port

import (
	"context"

	"github.com/coinvendo/gateway/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishCoinPulse(ctx context.Context, event domain.CoinPulseEvent) error
	PublishCreditApplied(ctx context.Context, event domain.CreditAppliedEvent) error
	PublishSessionExpired(ctx context.Context, event domain.SessionExpiredEvent) error
	PublishSourceBanned(ctx context.Context, event domain.SourceBannedEvent) error
}
