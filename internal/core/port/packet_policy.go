package port

import (
	"context"
	"time"
)

// CounterSample is one entry of a sampleCounters() reading: bytes observed
// since the adapter's own counter baseline, plus how long the counter has
// been idle.
type CounterSample struct {
	Bytes  int64
	IdleS  int64
}

// CounterSnapshot is the result of one sampleCounters() call: uploads keyed
// by IP, downloads keyed by the integer class-id derived from the IP's
// last octet.
type CounterSnapshot struct {
	Uploads   map[string]CounterSample
	Downloads map[int]CounterSample
}

// PacketPolicy is the capability the core consumes to authorize traffic,
// shape bandwidth, and probe liveness. Every method is idempotent so the
// writer can retry freely; implementations shell out to iptables/tc/
// conntrack and must be called from worker goroutines, never the
// SessionStore writer.
type PacketPolicy interface {
	// Authorize grants a MAC forwarding access. Returns whether the
	// authorization was newly created.
	Authorize(ctx context.Context, mac string) (isNew bool, err error)
	// Deauthorize revokes a MAC's forwarding access and evicts any live
	// flows bound to its current IP.
	Deauthorize(ctx context.Context, mac string) error
	// SetLimit installs a per-IP shaping class.
	SetLimit(ctx context.Context, ip string, downKbps, upKbps int64) error
	// RemoveLimit tears down a per-IP shaping class.
	RemoveLimit(ctx context.Context, ip string) error
	// SampleCounters reads current byte counters for the given interface.
	SampleCounters(ctx context.Context, iface string) (CounterSnapshot, error)
	// ListAuthorizedMacs returns every MAC currently granted access.
	ListAuthorizedMacs(ctx context.Context) (map[string]struct{}, error)
	// HasLiveFlows reports whether any established connection references ip.
	HasLiveFlows(ctx context.Context, ip string) (bool, error)
	// NeighborStale reports whether the neighbor table entry for ip is
	// missing, stale, or otherwise unreachable.
	NeighborStale(ctx context.Context, ip string) (bool, error)
}

// PolicyWork is one deferred PacketPolicy call enqueued by the SessionStore
// writer for execution on a worker goroutine after a mutation commits.
type PolicyWork struct {
	Kind      PolicyWorkKind
	MAC       string
	IP        string
	DownKbps  int64
	UpKbps    int64
	EnqueuedAt time.Time
}

// PolicyWorkKind enumerates the deferred PacketPolicy operations the
// writer can enqueue.
type PolicyWorkKind int

const (
	PolicyWorkAuthorize PolicyWorkKind = iota
	PolicyWorkDeauthorize
	PolicyWorkSetLimit
	PolicyWorkRemoveLimit
)
