package port

import (
	"context"
	"time"

	"github.com/coinvendo/gateway/internal/core/domain"
)

// FailureRepository backs FailAttemptGate's per-MAC counter and ban state.
type FailureRepository interface {
	Get(ctx context.Context, mac string) (*domain.FailureRecord, error)
	Increment(ctx context.Context, mac string, kind domain.FailureKind) (*domain.FailureRecord, error)
	Ban(ctx context.Context, mac string, until time.Time) error
	Reset(ctx context.Context, mac string) error
}
