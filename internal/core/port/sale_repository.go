package port

import (
	"context"
	"time"

	"github.com/coinvendo/gateway/internal/core/domain"
)

// SaleRepository is the append-only ledger. Insert must never be followed
// by a delete or update of a prior row.
type SaleRepository interface {
	Insert(ctx context.Context, sale domain.Sale) error
	RangeTotal(ctx context.Context, from, to time.Time) (pesos int64, err error)
	BySource(ctx context.Context, from, to time.Time) (map[string]int64, error)
}
