package usecase

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/coinvendo/gateway/internal/core/domain"
	"github.com/coinvendo/gateway/internal/core/port"
)

func newTestStore(t *testing.T) (*SessionStore, *fakeUserRepository, *fakePacketPolicy) {
	t.Helper()
	repo := newFakeUserRepository()
	policy := newFakePacketPolicy()
	store := NewSessionStore(repo, policy, zap.NewNop(), 2)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go store.Run(ctx)
	return store, repo, policy
}

func TestTickerDecrementsAndClampsAtZero(t *testing.T) {
	store, repo, _ := newTestStore(t)
	ctx := context.Background()
	_ = repo.Create(ctx, userWithCredit("u1", "aa:bb:cc:dd:ee:ff", 5))

	tk := NewTicker(store, newFakePacketPolicy(), newFakeEventPublisher(), zap.NewNop(), "eth0", time.Hour, time.Hour)
	start := time.Now()
	tk.lastTick, tk.lastTrafficSample, tk.lastAuthReconcile = start, start, start
	tk.Tick(ctx, start.Add(3*time.Second))

	u, err := repo.FindByID(ctx, "u1")
	if err != nil {
		t.Fatalf("FindByID error = %v", err)
	}
	if u.CreditSeconds != 2 {
		t.Fatalf("CreditSeconds = %d, want 2", u.CreditSeconds)
	}
}

func TestTickerExpiresAndDeauthorizes(t *testing.T) {
	store, repo, policy := newTestStore(t)
	ctx := context.Background()
	_ = repo.Create(ctx, userWithCredit("u1", "aa:bb:cc:dd:ee:ff", 2))
	_, _ = policy.Authorize(ctx, "aa:bb:cc:dd:ee:ff")

	tk := NewTicker(store, policy, newFakeEventPublisher(), zap.NewNop(), "eth0", time.Hour, time.Hour)
	start := time.Now()
	tk.lastTick, tk.lastTrafficSample, tk.lastAuthReconcile = start, start, start
	tk.Tick(ctx, start.Add(5*time.Second))

	u, err := repo.FindByID(ctx, "u1")
	if err != nil {
		t.Fatalf("FindByID error = %v", err)
	}
	if u.CreditSeconds != 0 {
		t.Fatalf("CreditSeconds = %d, want 0 after expiry", u.CreditSeconds)
	}

	// Deauthorize runs on SessionStore's worker pool after the writer
	// commits, so allow up to one tick for it to land.
	var stillAuthorized bool
	for deadline := time.Now().Add(time.Second); ; {
		authorized, _ := policy.ListAuthorizedMacs(ctx)
		_, stillAuthorized = authorized["aa:bb:cc:dd:ee:ff"]
		if !stillAuthorized || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if stillAuthorized {
		t.Fatal("expected mac to be deauthorized within one tick of expiry")
	}
}

func TestTickerAttributesDownloadTrafficAndTouchesLastTraffic(t *testing.T) {
	store, repo, _ := newTestStore(t)
	ctx := context.Background()
	ip := "192.168.1.42"
	u := userWithCredit("u1", "aa:bb:cc:dd:ee:ff", 100)
	u.IP = &ip
	_ = repo.Create(ctx, u)

	policy := newFakePacketPolicy()
	policy.snapshot = port.CounterSnapshot{
		Downloads: map[int]port.CounterSample{42: {Bytes: 1000}},
	}

	tk := NewTicker(store, policy, newFakeEventPublisher(), zap.NewNop(), "eth0", time.Hour, time.Hour)
	start := time.Now()
	tk.lastTick = start
	tk.lastTrafficSample = start.Add(-2 * time.Hour)
	tk.lastAuthReconcile = start
	tk.Tick(ctx, start)

	got, err := repo.FindByID(ctx, "u1")
	if err != nil {
		t.Fatalf("FindByID error = %v", err)
	}
	if got.LastTrafficAt.IsZero() {
		t.Fatal("expected last_traffic_at to be touched by a nonzero download delta")
	}
}

func TestTickerCounterResetTreatsCurrentAsDelta(t *testing.T) {
	tk := NewTicker(nil, nil, nil, zap.NewNop(), "eth0", time.Second, time.Minute)
	tk.counterCache["up:10.0.0.5"] = 100
	got := deltaFor(tk.counterCache, "up:10.0.0.5", 5)
	if got != 5 {
		t.Fatalf("deltaFor after counter reset = %d, want 5 (current, not -95)", got)
	}
}

func userWithCredit(id, mac string, credit int64) domain.User {
	return domain.User{ID: id, MAC: mac, CreditSeconds: credit, Connected: true}
}
