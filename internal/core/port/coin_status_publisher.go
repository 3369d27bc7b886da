package port

import (
	"context"

	"github.com/coinvendo/gateway/internal/core/domain"
)

// CoinStatusPublisher fans out CoinAggregator's open-session snapshot so
// a portal handler can answer status() polls without locking the
// aggregator directly. Publish(nil) clears the cached entry.
type CoinStatusPublisher interface {
	Publish(ctx context.Context, applianceID string, session *domain.CoinSession) error
}
