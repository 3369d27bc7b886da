package domain

import "time"

// FailureKind distinguishes what kind of attempt incremented the counter,
// since both feed one counter per §4.9 but reporting wants to tell them
// apart.
type FailureKind string

const (
	FailureKindVoucher   FailureKind = "voucher"
	FailureKindCoinStart FailureKind = "coin_start"
)

// FailureRecord is the per-MAC consecutive-failure counter consulted by
// FailAttemptGate.
type FailureRecord struct {
	MAC         string
	Count       int
	Kind        FailureKind
	BannedUntil *time.Time
}

// Banned reports whether the record currently blocks new attempts.
func (f FailureRecord) Banned(now time.Time) bool {
	return f.BannedUntil != nil && now.Before(*f.BannedUntil)
}
