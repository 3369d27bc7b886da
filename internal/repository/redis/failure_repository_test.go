package redis

import (
	"context"
	"testing"
	"time"

	"github.com/coinvendo/gateway/internal/core/domain"
	"github.com/coinvendo/gateway/internal/repository"
)

func TestFailureRepositoryIncrementAndGet(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewFailureRepository(client, SlidingWindowConfig{KeyPrefix: "test:fail", TTL: time.Minute})

	ctx := context.Background()
	mac := "AA:BB:CC:DD:EE:FF"

	rec, err := repo.Increment(ctx, mac, domain.FailureKindVoucher)
	if err != nil {
		t.Fatalf("Increment() error = %v", err)
	}
	if rec.Count != 1 {
		t.Fatalf("Count = %d, want 1", rec.Count)
	}

	rec, err = repo.Increment(ctx, mac, domain.FailureKindVoucher)
	if err != nil {
		t.Fatalf("second Increment() error = %v", err)
	}
	if rec.Count != 2 {
		t.Fatalf("Count = %d, want 2", rec.Count)
	}

	got, err := repo.Get(ctx, mac)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Count != 2 {
		t.Fatalf("Get().Count = %d, want 2", got.Count)
	}
}

func TestFailureRepositoryGetMissingReturnsNotFound(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewFailureRepository(client, SlidingWindowConfig{KeyPrefix: "test:fail"})

	_, err := repo.Get(context.Background(), "11:22:33:44:55:66")
	if err != repository.ErrNotFound {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestFailureRepositoryBanAndReset(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewFailureRepository(client, SlidingWindowConfig{KeyPrefix: "test:fail"})

	ctx := context.Background()
	mac := "AA:BB:CC:DD:EE:FF"
	until := time.Now().Add(time.Minute)

	if _, err := repo.Increment(ctx, mac, domain.FailureKindVoucher); err != nil {
		t.Fatalf("Increment() error = %v", err)
	}
	if err := repo.Ban(ctx, mac, until); err != nil {
		t.Fatalf("Ban() error = %v", err)
	}

	rec, err := repo.Get(ctx, mac)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.BannedUntil == nil {
		t.Fatal("expected BannedUntil to be set after Ban")
	}

	if err := repo.Reset(ctx, mac); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if _, err := repo.Get(ctx, mac); err != repository.ErrNotFound {
		t.Fatalf("Get() after Reset error = %v, want ErrNotFound", err)
	}
}
