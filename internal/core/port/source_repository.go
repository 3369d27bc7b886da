package port

import (
	"context"

	"github.com/coinvendo/gateway/internal/core/domain"
)

// SourceRepository persists the local slot and remote sub-device registry
// owned by SourceRegistry.
type SourceRepository interface {
	Upsert(ctx context.Context, source domain.Source) error
	FindByID(ctx context.Context, id string) (*domain.Source, error)
	List(ctx context.Context) ([]domain.Source, error)
	Touch(ctx context.Context, id string) error
}

// RateRepository persists the price table lines and per-source visibility
// masks consulted by RateTable.
type RateRepository interface {
	List(ctx context.Context) ([]domain.Rate, error)
	VisibleTo(ctx context.Context, sourceID string) ([]domain.Rate, error)
}
