package usecase

import (
	"context"
	"time"

	"github.com/coinvendo/gateway/internal/core/port"
)

// SalesReportService implements §4.12: pure read-only aggregation over
// the Sale ledger. Range bounds are converted to the tenant's configured
// IANA zone before the repository query; no per-day bucketing is done.
type SalesReportService struct {
	sales    port.SaleRepository
	location *time.Location
}

func NewSalesReportService(sales port.SaleRepository, location *time.Location) *SalesReportService {
	if location == nil {
		location = time.UTC
	}
	return &SalesReportService{sales: sales, location: location}
}

// RangeTotal sums every Sale in [from, to), interpreted in the tenant zone.
func (s *SalesReportService) RangeTotal(ctx context.Context, from, to time.Time) (int64, error) {
	return s.sales.RangeTotal(ctx, from.In(s.location), to.In(s.location))
}

// BySource buckets the same range by source id.
func (s *SalesReportService) BySource(ctx context.Context, from, to time.Time) (map[string]int64, error) {
	return s.sales.BySource(ctx, from.In(s.location), to.In(s.location))
}
