package domain

import (
	"strings"
	"time"
)

// User is the credit-holding entity bound to a MAC address.
type User struct {
	ID                string
	MAC               string
	ClientID          string
	IP                *string
	UserCode          string
	CreditSeconds     int64
	TotalSecondsEver  int64
	RateDownKbps      int64
	RateUpKbps        int64
	Paused            bool
	Connected         bool
	LastTrafficAt     time.Time
	LastSeenAt        time.Time
	SessionExpiryAt   *time.Time
}

// NormalizeMAC lowercases and trims a MAC address so every code path that
// compares or stores a MAC agrees on one canonical form.
func NormalizeMAC(mac string) string {
	return strings.ToLower(strings.TrimSpace(mac))
}

// IsActive reports whether the user currently holds usable credit and is
// not paused — the predicate behind SessionStore.iterateActive.
func (u User) IsActive() bool {
	return u.CreditSeconds > 0 && !u.Paused
}

// WithDecrement returns the balance after subtracting seconds, clamped at
// zero per the credit_seconds >= 0 invariant.
func (u User) WithDecrement(seconds int64) int64 {
	remaining := u.CreditSeconds - seconds
	if remaining < 0 {
		return 0
	}
	return remaining
}
