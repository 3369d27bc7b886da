package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/coinvendo/gateway/internal/core/domain"
	"github.com/coinvendo/gateway/internal/core/port"
)

// Ticker runs the §4.7 reconciliation loop at nominal 1 Hz: credit
// decrement, periodic traffic sampling, and periodic MAC-authorization
// reconciliation. It never interleaves with CreditApplier transactions
// on the same User because every mutation routes through SessionStore's
// single writer.
type Ticker struct {
	store  *SessionStore
	policy port.PacketPolicy
	events port.EventPublisher
	log    *zap.Logger

	iface                  string
	trafficSampleInterval  time.Duration
	authReconcileInterval  time.Duration

	lastTick          time.Time
	lastTrafficSample time.Time
	lastAuthReconcile time.Time
	counterCache      map[string]int64

	metrics TickMetrics
}

// TickMetrics receives per-pass telemetry. A nil field on Ticker disables
// reporting; set via SetMetrics.
type TickMetrics interface {
	ObserveTickDuration(seconds float64)
}

// SetMetrics wires an optional telemetry sink observed once per Tick.
func (t *Ticker) SetMetrics(m TickMetrics) {
	t.metrics = m
}

func NewTicker(store *SessionStore, policy port.PacketPolicy, events port.EventPublisher, log *zap.Logger, iface string, trafficSampleInterval, authReconcileInterval time.Duration) *Ticker {
	if trafficSampleInterval <= 0 {
		trafficSampleInterval = 5 * time.Second
	}
	if authReconcileInterval <= 0 {
		authReconcileInterval = 60 * time.Second
	}
	return &Ticker{
		store:                 store,
		policy:                policy,
		events:                events,
		log:                   log,
		iface:                 iface,
		trafficSampleInterval: trafficSampleInterval,
		authReconcileInterval: authReconcileInterval,
		counterCache:          make(map[string]int64),
	}
}

// Run drives the loop at nominal 1 Hz until ctx is cancelled.
func (t *Ticker) Run(ctx context.Context) {
	t.lastTick = time.Now()
	t.lastTrafficSample = t.lastTick
	t.lastAuthReconcile = t.lastTick

	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick.C:
			t.Tick(ctx, now)
		}
	}
}

// Tick runs one reconciliation pass. Exported for deterministic testing
// without a live time.Ticker.
func (t *Ticker) Tick(ctx context.Context, now time.Time) {
	start := time.Now()
	if t.metrics != nil {
		defer func() { t.metrics.ObserveTickDuration(time.Since(start).Seconds()) }()
	}

	delta := now.Sub(t.lastTick)
	seconds := int64(delta / time.Second)
	if seconds < 0 {
		seconds = 0
	}
	t.lastTick = now

	if seconds > 0 {
		t.decrementActive(ctx, now, seconds)
	}

	if now.Sub(t.lastTrafficSample) >= t.trafficSampleInterval {
		t.lastTrafficSample = now
		t.sampleTraffic(ctx, now)
	}

	if now.Sub(t.lastAuthReconcile) >= t.authReconcileInterval {
		t.lastAuthReconcile = now
		t.reconcileAuthorization(ctx)
	}
}

func (t *Ticker) decrementActive(ctx context.Context, now time.Time, seconds int64) {
	_ = t.store.IterateActive(ctx, func(u domain.User) error {
		newBalance := u.CreditSeconds - seconds
		if newBalance <= 0 {
			ip := ""
			if u.IP != nil {
				ip = *u.IP
			}
			if err := t.store.Expire(ctx, u.ID, u.MAC, ip); err != nil {
				t.log.Warn("ticker: expire failed", zap.String("user_id", u.ID), zap.Error(err))
				return nil
			}
			if t.events != nil {
				_ = t.events.PublishSessionExpired(ctx, domain.SessionExpiredEvent{
					UserID: u.ID, MAC: u.MAC, ExpiredAt: now,
				})
			}
			return nil
		}
		if err := t.store.Decrement(ctx, u.ID, seconds); err != nil {
			t.log.Warn("ticker: decrement failed", zap.String("user_id", u.ID), zap.Error(err))
		}
		return nil
	})
}

// sampleTraffic reads byte counters and handles resets: current < cached
// means the counter wrapped or was reset, so delta = current rather than
// a negative number. Upload deltas are keyed by IP directly; download
// deltas are keyed by the class-id the adapter derives from an IP's last
// octet (the same key SetLimit/RemoveLimit shape traffic against), so the
// owning User is found by deriving its own IP's class-id and looking up
// that delta.
func (t *Ticker) sampleTraffic(ctx context.Context, now time.Time) {
	snapshot, err := t.policy.SampleCounters(ctx, t.iface)
	if err != nil {
		t.log.Warn("ticker: sample counters failed", zap.Error(err))
		return
	}

	for ip, sample := range snapshot.Uploads {
		key := "up:" + ip
		delta := deltaFor(t.counterCache, key, sample.Bytes)
		if delta > 0 {
			t.touchTraffic(ctx, ip, now)
		}
	}

	downDeltas := make(map[int]int64, len(snapshot.Downloads))
	for classID, sample := range snapshot.Downloads {
		key := "down:" + strconv.Itoa(classID)
		downDeltas[classID] = deltaFor(t.counterCache, key, sample.Bytes)
	}
	if len(downDeltas) == 0 {
		return
	}
	_ = t.store.IterateActive(ctx, func(u domain.User) error {
		if u.IP == nil || *u.IP == "" {
			return nil
		}
		classID, err := classIDForIP(*u.IP)
		if err != nil {
			return nil
		}
		if downDeltas[classID] > 0 {
			t.touchTraffic(ctx, *u.IP, now)
		}
		return nil
	})
}

func deltaFor(cache map[string]int64, key string, current int64) int64 {
	cached, ok := cache[key]
	cache[key] = current
	if !ok || current < cached {
		return current
	}
	return current - cached
}

// classIDForIP derives the tc class-id from an IPv4 address's last octet,
// mirroring the packetpolicy adapter's own classIDFor so download counters
// (keyed by class-id) can be attributed back to the User whose IP produced
// that class-id.
func classIDForIP(ip string) (int, error) {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return 0, fmt.Errorf("not an ipv4 address: %q", ip)
	}
	octet, err := strconv.Atoi(parts[3])
	if err != nil || octet < 1 || octet > 254 {
		return 0, fmt.Errorf("invalid last octet in %q", ip)
	}
	return octet, nil
}

func (t *Ticker) touchTraffic(ctx context.Context, ip string, at time.Time) {
	if err := t.store.TouchTraffic(ctx, ip, at); err != nil {
		t.log.Warn("ticker: touch traffic failed", zap.String("ip", ip), zap.Error(err))
	}
}

// reconcileAuthorization re-authorizes active users missing from the
// policy's authorized set and deauthorizes stray entries with no active
// owner, per §4.7 step 3.
func (t *Ticker) reconcileAuthorization(ctx context.Context) {
	authorized, err := t.policy.ListAuthorizedMacs(ctx)
	if err != nil {
		t.log.Warn("ticker: list authorized macs failed", zap.Error(err))
		return
	}

	activeMACs := make(map[string]struct{})
	_ = t.store.IterateActive(ctx, func(u domain.User) error {
		activeMACs[u.MAC] = struct{}{}
		if _, ok := authorized[u.MAC]; !ok {
			if _, err := t.policy.Authorize(ctx, u.MAC); err != nil {
				t.log.Warn("ticker: reconcile authorize failed", zap.String("mac", u.MAC), zap.Error(err))
			}
		}
		return nil
	})

	for mac := range authorized {
		if _, ok := activeMACs[mac]; !ok {
			if err := t.policy.Deauthorize(ctx, mac); err != nil {
				t.log.Warn("ticker: reconcile deauthorize failed", zap.String("mac", mac), zap.Error(err))
			}
		}
	}
}
