package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/coinvendo/gateway/internal/core/domain"
	"github.com/coinvendo/gateway/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, mac string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("mac", mac),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishCoinPulse logs gateway.coin.pulse events.
func (p *StubPublisher) PublishCoinPulse(_ context.Context, event domain.CoinPulseEvent) error {
	payload := map[string]any{
		"source_id":      event.SourceID,
		"pulses":         event.Pulses,
		"pulse_value":    event.PulseValue,
		"pending_amount": event.PendingAmount,
		"received_at":    event.ReceivedAt,
	}
	p.logEvent("gateway.coin.pulse", event.OwnerMAC, event.ReceivedAt, payload)
	return nil
}

// PublishCreditApplied logs gateway.credit.applied events.
func (p *StubPublisher) PublishCreditApplied(_ context.Context, event domain.CreditAppliedEvent) error {
	payload := map[string]any{
		"user_id":       event.UserID,
		"amount_pesos":  event.AmountPesos,
		"seconds_added": event.SecondsAdded,
		"origin":        event.Origin,
		"applied_at":    event.AppliedAt,
	}
	p.logEvent("gateway.credit.applied", event.MAC, event.AppliedAt, payload)
	return nil
}

// PublishSessionExpired logs gateway.session.expired events.
func (p *StubPublisher) PublishSessionExpired(_ context.Context, event domain.SessionExpiredEvent) error {
	payload := map[string]any{
		"user_id":    event.UserID,
		"expired_at": event.ExpiredAt,
	}
	p.logEvent("gateway.session.expired", event.MAC, event.ExpiredAt, payload)
	return nil
}

// PublishSourceBanned logs gateway.source.banned events.
func (p *StubPublisher) PublishSourceBanned(_ context.Context, event domain.SourceBannedEvent) error {
	payload := map[string]any{
		"source_id":    event.SourceID,
		"banned_until": event.BannedUntil,
		"pulse_count":  event.PulseCount,
	}
	p.logEvent("gateway.source.banned", event.OwnerMAC, event.BannedUntil, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
