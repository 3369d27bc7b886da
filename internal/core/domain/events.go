package domain

import "time"

// CoinPulseEvent is the payload for gateway.coin.pulse messages, published
// once a pulse has been attributed to an open CoinSession.
type CoinPulseEvent struct {
	EventID       string
	SourceID      string
	Pulses        int
	PulseValue    int64
	OwnerMAC      string
	PendingAmount int64
	ReceivedAt    time.Time
}

// CreditAppliedEvent is the payload for gateway.credit.applied messages,
// published by CreditApplier on every successful apply.
type CreditAppliedEvent struct {
	EventID      string
	UserID       string
	MAC          string
	AmountPesos  int64
	SecondsAdded int64
	Origin       SaleOrigin
	AppliedAt    time.Time
}

// SessionExpiredEvent is the payload for gateway.session.expired messages,
// published by the Ticker when a User's credit reaches zero.
type SessionExpiredEvent struct {
	EventID   string
	UserID    string
	MAC       string
	ExpiredAt time.Time
}

// SourceBannedEvent is the payload for gateway.source.banned messages,
// published when CoinAggregator trips the pulse-abuse ban.
type SourceBannedEvent struct {
	EventID     string
	SourceID    string
	OwnerMAC    string
	BannedUntil time.Time
	PulseCount  int
}
