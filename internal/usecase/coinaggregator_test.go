package usecase

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/coinvendo/gateway/internal/core/domain"
)

func testAggregator() *CoinAggregator {
	return NewCoinAggregator(nil, nil, nil, zap.NewNop(), 100, time.Second)
}

func TestStartInsertOpensSession(t *testing.T) {
	agg := testAggregator()
	if err := agg.StartInsert("AA:BB:CC:DD:EE:FF", "cid-1", domain.InsertModeAuto, ""); err != nil {
		t.Fatalf("StartInsert() error = %v", err)
	}
	snap := agg.Snapshot()
	if snap == nil {
		t.Fatal("expected an open session")
	}
	if snap.OwnerMAC != "aa:bb:cc:dd:ee:ff" {
		t.Fatalf("OwnerMAC = %q, want normalized lowercase", snap.OwnerMAC)
	}
}

func TestStartInsertBusyForDifferentOwner(t *testing.T) {
	agg := testAggregator()
	_ = agg.StartInsert("aa:bb:cc:dd:ee:ff", "cid-1", domain.InsertModeAuto, "")
	err := agg.StartInsert("11:22:33:44:55:66", "cid-2", domain.InsertModeAuto, "")
	if err != ErrBusy {
		t.Fatalf("StartInsert() error = %v, want ErrBusy", err)
	}
}

func TestPulseAccumulatesPendingAmount(t *testing.T) {
	agg := testAggregator()
	_ = agg.StartInsert("aa:bb:cc:dd:ee:ff", "cid-1", domain.InsertModeAuto, "")
	agg.Pulse("hardware", 3, 5)
	snap := agg.Snapshot()
	if snap.PendingAmount != 15 {
		t.Fatalf("PendingAmount = %d, want 15", snap.PendingAmount)
	}
	if snap.Total() != snap.PendingAmount {
		t.Fatalf("Total() = %d, want pending_amount = %d invariant", snap.Total(), snap.PendingAmount)
	}
}

func TestManualModeFiltersOtherSources(t *testing.T) {
	agg := testAggregator()
	_ = agg.StartInsert("aa:bb:cc:dd:ee:ff", "cid-1", domain.InsertModeManual, "remote:1")
	agg.Pulse("hardware", 5, 1)
	snap := agg.Snapshot()
	if snap.PendingAmount != 0 {
		t.Fatalf("PendingAmount = %d, want 0 (non-target source dropped)", snap.PendingAmount)
	}
	agg.Pulse("remote:1", 2, 1)
	snap = agg.Snapshot()
	if snap.PendingAmount != 2 {
		t.Fatalf("PendingAmount = %d, want 2", snap.PendingAmount)
	}
}

func TestPulseDroppedWhenIdle(t *testing.T) {
	agg := testAggregator()
	agg.Pulse("hardware", 1, 1)
	if agg.Snapshot() != nil {
		t.Fatal("expected no session to exist")
	}
}

func TestCheckDeadlineFiresWithoutFurtherPulses(t *testing.T) {
	agg := testAggregator()
	_ = agg.StartInsert("aa:bb:cc:dd:ee:ff", "cid-1", domain.InsertModeAuto, "")
	future := time.Now().Add(pulseIdleDeadline + time.Second)
	if !agg.CheckDeadline(future) {
		t.Fatal("CheckDeadline() = false, want true past the pulse-idle deadline")
	}
}

func TestPulseAbuseTripsBan(t *testing.T) {
	agg := NewCoinAggregator(nil, nil, nil, zap.NewNop(), 3, time.Minute)
	_ = agg.StartInsert("aa:bb:cc:dd:ee:ff", "cid-1", domain.InsertModeAuto, "")
	agg.Pulse("hardware", 10, 1)
	if agg.Snapshot() != nil {
		t.Fatal("expected session to be dropped after ban trip")
	}
	err := agg.StartInsert("aa:bb:cc:dd:ee:ff", "cid-1", domain.InsertModeAuto, "")
	if _, ok := AsBanned(err); !ok {
		t.Fatalf("StartInsert() error = %v, want *BannedError", err)
	}
}
