package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/coinvendo/gateway/internal/core/domain"
	"github.com/coinvendo/gateway/internal/core/port"
	"github.com/coinvendo/gateway/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	MAC       string           `json:"mac,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, mac string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		MAC:       mac,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishCoinPulse publishes gateway.coin.pulse events.
func (p *EventPublisher) PublishCoinPulse(ctx context.Context, event domain.CoinPulseEvent) error {
	payload := struct {
		SourceID      string    `json:"source_id"`
		Pulses        int       `json:"pulses"`
		PulseValue    int64     `json:"pulse_value"`
		PendingAmount int64     `json:"pending_amount"`
		ReceivedAt    time.Time `json:"received_at"`
	}{
		SourceID:      event.SourceID,
		Pulses:        event.Pulses,
		PulseValue:    event.PulseValue,
		PendingAmount: event.PendingAmount,
		ReceivedAt:    event.ReceivedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "gateway.coin.pulse", event.OwnerMAC, event.ReceivedAt, payload)
}

// PublishCreditApplied publishes gateway.credit.applied events.
func (p *EventPublisher) PublishCreditApplied(ctx context.Context, event domain.CreditAppliedEvent) error {
	payload := struct {
		UserID       string           `json:"user_id"`
		AmountPesos  int64            `json:"amount_pesos"`
		SecondsAdded int64            `json:"seconds_added"`
		Origin       domain.SaleOrigin `json:"origin"`
		AppliedAt    time.Time        `json:"applied_at"`
	}{
		UserID:       event.UserID,
		AmountPesos:  event.AmountPesos,
		SecondsAdded: event.SecondsAdded,
		Origin:       event.Origin,
		AppliedAt:    event.AppliedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "gateway.credit.applied", event.MAC, event.AppliedAt, payload)
}

// PublishSessionExpired publishes gateway.session.expired events.
func (p *EventPublisher) PublishSessionExpired(ctx context.Context, event domain.SessionExpiredEvent) error {
	payload := struct {
		UserID    string    `json:"user_id"`
		ExpiredAt time.Time `json:"expired_at"`
	}{
		UserID:    event.UserID,
		ExpiredAt: event.ExpiredAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "gateway.session.expired", event.MAC, event.ExpiredAt, payload)
}

// PublishSourceBanned publishes gateway.source.banned events.
func (p *EventPublisher) PublishSourceBanned(ctx context.Context, event domain.SourceBannedEvent) error {
	payload := struct {
		SourceID    string    `json:"source_id"`
		BannedUntil time.Time `json:"banned_until"`
		PulseCount  int       `json:"pulse_count"`
	}{
		SourceID:    event.SourceID,
		BannedUntil: event.BannedUntil.UTC(),
		PulseCount:  event.PulseCount,
	}

	return p.publish(ctx, event.EventID, "gateway.source.banned", event.OwnerMAC, event.BannedUntil, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
