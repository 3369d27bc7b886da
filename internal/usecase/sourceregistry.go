package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/coinvendo/gateway/internal/core/domain"
	"github.com/coinvendo/gateway/internal/core/port"
)

const sourceOnlineWindow = 70 * time.Second

// SourceRegistry tracks the local coin slot and remote sub-devices per
// §4.4. Remote registration requires a shared secret verified by the
// CoinSourceAuthenticator; inactive sources are never deleted.
type SourceRegistry struct {
	repo   port.SourceRepository
	auth   port.CoinSourceAuthenticator
	log    *zap.Logger
}

func NewSourceRegistry(repo port.SourceRepository, auth port.CoinSourceAuthenticator, log *zap.Logger) *SourceRegistry {
	return &SourceRegistry{repo: repo, auth: auth, log: log}
}

// EnsureLocal registers the always-present on-appliance slot, idempotently.
func (r *SourceRegistry) EnsureLocal(ctx context.Context, pulseValue int64) error {
	existing, err := r.repo.FindByID(ctx, "hardware")
	if err == nil && existing != nil {
		return nil
	}
	return r.repo.Upsert(ctx, domain.Source{
		ID:         "hardware",
		Kind:       domain.SourceKindLocal,
		Label:      "hardware",
		PulseValue: pulseValue,
		Enabled:    true,
		CreatedAt:  time.Now(),
	})
}

// RegisterRemote upserts a remote sub-device keyed by device identifier,
// requiring the presented secret to verify against the stored hash when
// the source already exists (rotation is a separate administrative path).
func (r *SourceRegistry) RegisterRemote(ctx context.Context, id, label, presentedSecret string, pulseValue int64) error {
	existing, _ := r.repo.FindByID(ctx, id)
	if existing != nil {
		ok, err := r.auth.Verify(ctx, id, presentedSecret)
		if err != nil {
			return ErrTransient
		}
		if !ok {
			return ErrInvalid
		}
		now := time.Now()
		existing.LastSeenAt = &now
		existing.Label = label
		return r.repo.Upsert(ctx, *existing)
	}

	hash, err := r.auth.HashSecret(presentedSecret)
	if err != nil {
		return err
	}
	now := time.Now()
	return r.repo.Upsert(ctx, domain.Source{
		ID:          id,
		Kind:        domain.SourceKindRemote,
		Label:       label,
		SecretHash:  hash,
		PulseValue:  pulseValue,
		Enabled:     true,
		LastSeenAt:  &now,
		CreatedAt:   now,
	})
}

// AuthenticatePulse verifies a remote source's shared secret before a
// pulse event reaches the aggregator, per §6's CoinSource event contract.
func (r *SourceRegistry) AuthenticatePulse(ctx context.Context, sourceID, presentedSecret string) error {
	src, err := r.repo.FindByID(ctx, sourceID)
	if err != nil {
		return ErrInvalid
	}
	if !src.RequiresSecret() {
		return nil
	}
	ok, err := r.auth.Verify(ctx, sourceID, presentedSecret)
	if err != nil {
		return ErrTransient
	}
	if !ok {
		return ErrInvalid
	}
	return r.repo.Touch(ctx, sourceID)
}

// Online reports whether a source's last heartbeat fell within the
// online window.
func (r *SourceRegistry) Online(src domain.Source, now time.Time) bool {
	if src.LastSeenAt == nil {
		return src.Kind == domain.SourceKindLocal
	}
	return now.Sub(*src.LastSeenAt) < sourceOnlineWindow
}

func (r *SourceRegistry) List(ctx context.Context) ([]domain.Source, error) {
	return r.repo.List(ctx)
}

func (r *SourceRegistry) Get(ctx context.Context, id string) (*domain.Source, error) {
	return r.repo.FindByID(ctx, id)
}
