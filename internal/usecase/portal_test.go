package usecase

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/coinvendo/gateway/internal/core/domain"
)

// fakeFailureRepository is a hand-rolled in-memory double for
// port.FailureRepository.
type fakeFailureRepository struct {
	records map[string]*domain.FailureRecord
}

func newFakeFailureRepository() *fakeFailureRepository {
	return &fakeFailureRepository{records: make(map[string]*domain.FailureRecord)}
}

func (f *fakeFailureRepository) Get(ctx context.Context, mac string) (*domain.FailureRecord, error) {
	rec, ok := f.records[mac]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeFailureRepository) Increment(ctx context.Context, mac string, kind domain.FailureKind) (*domain.FailureRecord, error) {
	rec, ok := f.records[mac]
	if !ok {
		rec = &domain.FailureRecord{MAC: mac}
		f.records[mac] = rec
	}
	rec.Count++
	rec.Kind = kind
	return rec, nil
}

func (f *fakeFailureRepository) Ban(ctx context.Context, mac string, until time.Time) error {
	rec, ok := f.records[mac]
	if !ok {
		rec = &domain.FailureRecord{MAC: mac}
		f.records[mac] = rec
	}
	rec.BannedUntil = &until
	return nil
}

func (f *fakeFailureRepository) Reset(ctx context.Context, mac string) error {
	delete(f.records, mac)
	return nil
}

func newTestPortal(t *testing.T) (*PortalService, *fakeUserRepository, *fakeSourceRepository) {
	t.Helper()
	applier, userRepo, _ := newTestApplier(t)
	registry, sourceRepo, _ := newTestRegistry()
	ctx := context.Background()
	if err := registry.EnsureLocal(ctx, 1); err != nil {
		t.Fatalf("EnsureLocal() error = %v", err)
	}

	agg := NewCoinAggregator(applier.planner, applier, newFakeEventPublisher(), zap.NewNop(), 100, time.Second)
	gate := NewFailAttemptGate(newFakeFailureRepository(), 5, 15*time.Minute)
	resolver := NewIdentityResolver(applier.store, zap.NewNop())

	portal := NewPortalService(resolver, agg, applier, applier.planner, registry, gate, applier.store, nil)
	return portal, userRepo, sourceRepo
}

// newTestPortalWithPolicy builds the same graph as newTestPortal but also
// exposes the fakePacketPolicy backing the SessionStore, for asserting
// roaming authorize/deauthorize churn (S4/S5).
func newTestPortalWithPolicy(t *testing.T) (*PortalService, *fakeUserRepository, *fakePacketPolicy) {
	t.Helper()
	store, repo, policy := newTestStore(t)
	sales := newFakeSaleRepository()
	rates := NewRateTable(noopRateRepo{})
	rates.all = []domain.Rate{
		{Amount: 1, Minutes: 1},
		{Amount: 5, Minutes: 8},
		{Amount: 10, Minutes: 15},
	}
	planner := NewRatePlanner(rates)
	applier := NewCreditApplier(store, sales, planner, nil, newFakeEventPublisher(), zap.NewNop())

	registry, _, _ := newTestRegistry()
	ctx := context.Background()
	if err := registry.EnsureLocal(ctx, 1); err != nil {
		t.Fatalf("EnsureLocal() error = %v", err)
	}

	agg := NewCoinAggregator(planner, applier, newFakeEventPublisher(), zap.NewNop(), 100, time.Second)
	gate := NewFailAttemptGate(newFakeFailureRepository(), 5, 15*time.Minute)
	resolver := NewIdentityResolver(store, zap.NewNop())

	portal := NewPortalService(resolver, agg, applier, planner, registry, gate, store, nil)
	return portal, repo, policy
}

func TestPortalServiceStartCoinInsertReclaimsRoamingUser(t *testing.T) {
	portal, repo, policy := newTestPortalWithPolicy(t)
	ctx := context.Background()
	const oldMAC = "aa:aa:aa:aa:aa:01"
	const newMAC = "aa:aa:aa:aa:aa:02"

	u1 := domain.User{ID: "u1", ClientID: "C1", MAC: oldMAC, CreditSeconds: 300, Connected: true}
	if err := repo.Create(ctx, u1); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := policy.Authorize(ctx, oldMAC); err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}

	if err := portal.StartCoinInsert(ctx, newMAC, "C1", domain.InsertModeAuto, ""); err != nil {
		t.Fatalf("StartCoinInsert() error = %v", err)
	}
	portal.aggregator.Pulse("hardware", 3, 1)
	if _, err := portal.FinalizeCoinInsert(ctx); err != nil {
		t.Fatalf("FinalizeCoinInsert() error = %v", err)
	}

	got, err := repo.FindByID(ctx, "u1")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if got.MAC != newMAC {
		t.Fatalf("MAC = %q, want %q after roaming reclaim", got.MAC, newMAC)
	}
	if got.CreditSeconds <= 300 {
		t.Fatalf("CreditSeconds = %d, want > 300 (U1's existing balance plus the new credit)", got.CreditSeconds)
	}

	// Authorize/deauthorize run on SessionStore's worker pool after the
	// writer commits, so allow up to one tick for them to land.
	var authorized map[string]struct{}
	for deadline := time.Now().Add(time.Second); ; {
		authorized, _ = policy.ListAuthorizedMacs(ctx)
		_, oldStill := authorized[oldMAC]
		_, newPresent := authorized[newMAC]
		if (!oldStill && newPresent) || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, ok := authorized[oldMAC]; ok {
		t.Fatal("expected old mac to be deauthorized after a roaming reclaim")
	}
	if _, ok := authorized[newMAC]; !ok {
		t.Fatal("expected new mac to be authorized after a roaming reclaim")
	}
}

func TestPortalServiceStartCoinInsertDefersToMacOwnerOnConflict(t *testing.T) {
	portal, repo, _ := newTestPortalWithPolicy(t)
	ctx := context.Background()
	const macU1 = "aa:aa:aa:aa:aa:01"
	const macU2 = "aa:aa:aa:aa:aa:02"

	if err := repo.Create(ctx, domain.User{ID: "u1", ClientID: "C1", MAC: macU1, CreditSeconds: 300, Connected: true}); err != nil {
		t.Fatalf("Create(u1) error = %v", err)
	}
	if err := repo.Create(ctx, domain.User{ID: "u2", ClientID: "C2", MAC: macU2, CreditSeconds: 120, Connected: true}); err != nil {
		t.Fatalf("Create(u2) error = %v", err)
	}

	if err := portal.StartCoinInsert(ctx, macU2, "C1", domain.InsertModeAuto, ""); err != nil {
		t.Fatalf("StartCoinInsert() error = %v", err)
	}
	portal.aggregator.Pulse("hardware", 3, 1)
	if _, err := portal.FinalizeCoinInsert(ctx); err != nil {
		t.Fatalf("FinalizeCoinInsert() error = %v", err)
	}

	gotU1, err := repo.FindByID(ctx, "u1")
	if err != nil {
		t.Fatalf("FindByID(u1) error = %v", err)
	}
	if gotU1.MAC != macU1 || gotU1.CreditSeconds != 300 {
		t.Fatalf("U1 must be untouched by a roaming conflict, got %+v", gotU1)
	}

	gotU2, err := repo.FindByID(ctx, "u2")
	if err != nil {
		t.Fatalf("FindByID(u2) error = %v", err)
	}
	if gotU2.CreditSeconds <= 120 {
		t.Fatalf("CreditSeconds = %d, want > 120 (the coin insert is served as U2, the mac owner)", gotU2.CreditSeconds)
	}
}

func TestPortalServiceStatusWithoutMAC(t *testing.T) {
	portal, _, _ := newTestPortal(t)
	view, err := portal.Status(context.Background(), ResolveOpts{})
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if view.UserID != "" {
		t.Fatalf("UserID = %q, want empty for unresolved mac", view.UserID)
	}
	if len(view.Sources) != 1 {
		t.Fatalf("Sources = %+v, want the local source", view.Sources)
	}
}

func TestPortalServiceStatusReflectsOpenCoinSession(t *testing.T) {
	portal, _, _ := newTestPortal(t)
	ctx := context.Background()

	if err := portal.StartCoinInsert(ctx, "AA:BB:CC:DD:EE:FF", "cid-1", domain.InsertModeAuto, ""); err != nil {
		t.Fatalf("StartCoinInsert() error = %v", err)
	}
	portal.aggregator.Pulse("hardware", 5, 1)

	view, err := portal.Status(ctx, ResolveOpts{MAC: "aa:bb:cc:dd:ee:ff"})
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if view.PendingAmount != 5 {
		t.Fatalf("PendingAmount = %d, want 5", view.PendingAmount)
	}
	if view.CoinSession == nil {
		t.Fatal("expected an open CoinSession in the status view")
	}
}

func TestPortalServiceFinalizeCoinInsertAppliesCredit(t *testing.T) {
	portal, userRepo, _ := newTestPortal(t)
	ctx := context.Background()

	if err := portal.StartCoinInsert(ctx, "aa:bb:cc:dd:ee:ff", "cid-1", domain.InsertModeAuto, ""); err != nil {
		t.Fatalf("StartCoinInsert() error = %v", err)
	}
	portal.aggregator.Pulse("hardware", 5, 1)

	result, err := portal.FinalizeCoinInsert(ctx)
	if err != nil {
		t.Fatalf("FinalizeCoinInsert() error = %v", err)
	}
	if result.SecondsAdded <= 0 {
		t.Fatalf("SecondsAdded = %d, want > 0", result.SecondsAdded)
	}

	u, err := userRepo.FindByMAC(ctx, "aa:bb:cc:dd:ee:ff")
	if err != nil {
		t.Fatalf("FindByMAC() error = %v", err)
	}
	if u.CreditSeconds != result.SecondsAdded {
		t.Fatalf("CreditSeconds = %d, want %d", u.CreditSeconds, result.SecondsAdded)
	}
}

func TestPortalServiceStartCoinInsertRejectsWhenGateBansMAC(t *testing.T) {
	portal, _, _ := newTestPortal(t)
	ctx := context.Background()
	mac := "aa:bb:cc:dd:ee:ff"

	if err := portal.gate.RecordFailure(ctx, mac, domain.FailureKindCoinStart); err != nil {
		t.Fatalf("RecordFailure() error = %v", err)
	}
	for i := 0; i < 4; i++ {
		if err := portal.gate.RecordFailure(ctx, mac, domain.FailureKindCoinStart); err != nil {
			t.Fatalf("RecordFailure() error = %v", err)
		}
	}

	err := portal.StartCoinInsert(ctx, mac, "cid-1", domain.InsertModeAuto, "")
	if _, ok := AsBanned(err); !ok {
		t.Fatalf("StartCoinInsert() error = %v, want *BannedError once the gate has banned mac", err)
	}
}

func TestPortalServiceRedeemVoucherAppliesCreditAndClearsFailures(t *testing.T) {
	portal, _, _ := newTestPortal(t)
	ctx := context.Background()
	mac := "aa:bb:cc:dd:ee:ff"

	result, err := portal.RedeemVoucher(ctx, mac, "cid-1", "CODE1", 5)
	if err != nil {
		t.Fatalf("RedeemVoucher() error = %v", err)
	}
	if result.SecondsAdded <= 0 {
		t.Fatalf("SecondsAdded = %d, want > 0", result.SecondsAdded)
	}

	if err := portal.gate.Check(ctx, mac); err != nil {
		t.Fatalf("Check() error = %v, want nil after a successful redeem", err)
	}
}

func TestPortalServicePauseAndResumeSession(t *testing.T) {
	portal, userRepo, _ := newTestPortal(t)
	ctx := context.Background()

	u := userWithCredit("u1", "aa:bb:cc:dd:ee:ff", 120)
	if err := userRepo.Create(ctx, u); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := portal.PauseSession(ctx, "u1", "aa:bb:cc:dd:ee:ff", ""); err != nil {
		t.Fatalf("PauseSession() error = %v", err)
	}
	paused, err := userRepo.FindByID(ctx, "u1")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if !paused.Paused {
		t.Fatal("expected user to be paused")
	}

	if err := portal.ResumeSession(ctx, "u1", "aa:bb:cc:dd:ee:ff", "", 1000, 1000); err != nil {
		t.Fatalf("ResumeSession() error = %v", err)
	}
	resumed, err := userRepo.FindByID(ctx, "u1")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if resumed.Paused {
		t.Fatal("expected user to no longer be paused")
	}
}

func TestPortalServiceRestoreSessionByCode(t *testing.T) {
	portal, userRepo, _ := newTestPortal(t)
	ctx := context.Background()

	u := userWithCredit("u1", "aa:bb:cc:dd:ee:ff", 60)
	u.UserCode = "ABCD1234"
	if err := userRepo.Create(ctx, u); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	userID, err := portal.RestoreSession(ctx, "ABCD1234")
	if err != nil {
		t.Fatalf("RestoreSession() error = %v", err)
	}
	if userID != "u1" {
		t.Fatalf("RestoreSession() = %q, want u1", userID)
	}
}

func TestPortalServiceRestoreSessionUnknownCode(t *testing.T) {
	portal, _, _ := newTestPortal(t)
	_, err := portal.RestoreSession(context.Background(), "does-not-exist")
	if err != ErrNotFound {
		t.Fatalf("RestoreSession() error = %v, want ErrNotFound", err)
	}
}
