package domain

import "time"

// SaleOrigin disambiguates how a Sale's seconds were earned, consulted by
// SalesReportService when bucketing totals.
type SaleOrigin string

const (
	SaleOriginCoin     SaleOrigin = "coin"
	SaleOriginVoucher  SaleOrigin = "voucher"
	SaleOriginFreeTime SaleOrigin = "free_time"
)

// Sale is an append-only ledger entry. It is written before the owning
// User record is updated, per the §3 ordering rule.
type Sale struct {
	ID          string
	Timestamp   time.Time
	Amount      int64
	MAC         string
	SourceID    string
	CommittedBy SaleOrigin
}
