package redis

import (
	"context"
	"testing"
	"time"
)

func TestHeartbeatRateLimitStoreCountAndTrim(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewHeartbeatRateLimitStore(client, "test:httprl")

	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		if err := store.RecordAttempt(ctx, "sub1", now.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("RecordAttempt() error = %v", err)
		}
	}

	count, err := store.CountAttempts(ctx, "sub1", time.Minute, now.Add(5*time.Second))
	if err != nil {
		t.Fatalf("CountAttempts() error = %v", err)
	}
	if count != 3 {
		t.Fatalf("CountAttempts() = %d, want 3", count)
	}

	if err := store.TrimWindow(ctx, "sub1", time.Second, now.Add(10*time.Second)); err != nil {
		t.Fatalf("TrimWindow() error = %v", err)
	}
	count, err = store.CountAttempts(ctx, "sub1", time.Minute, now.Add(10*time.Second))
	if err != nil {
		t.Fatalf("CountAttempts() after trim error = %v", err)
	}
	if count != 0 {
		t.Fatalf("CountAttempts() after trim = %d, want 0", count)
	}
}

func TestHeartbeatRateLimitStoreOldestAttempt(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewHeartbeatRateLimitStore(client, "test:httprl")

	ctx := context.Background()
	now := time.Now()

	_, ok, err := store.OldestAttempt(ctx, "sub2", time.Minute, now)
	if err != nil {
		t.Fatalf("OldestAttempt() error = %v", err)
	}
	if ok {
		t.Fatal("expected no oldest attempt for an empty key")
	}

	if err := store.RecordAttempt(ctx, "sub2", now); err != nil {
		t.Fatalf("RecordAttempt() error = %v", err)
	}

	oldest, ok, err := store.OldestAttempt(ctx, "sub2", time.Minute, now.Add(time.Second))
	if err != nil {
		t.Fatalf("OldestAttempt() error = %v", err)
	}
	if !ok {
		t.Fatal("expected an oldest attempt after recording one")
	}
	if oldest.Unix() != now.Unix() {
		t.Fatalf("OldestAttempt() = %v, want close to %v", oldest, now)
	}
}

func TestHeartbeatRateLimitStoreDefaultPrefix(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewHeartbeatRateLimitStore(client, "")
	if store.prefix != "gateway:httprl" {
		t.Fatalf("prefix = %q, want default", store.prefix)
	}
}
