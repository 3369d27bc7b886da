package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/coinvendo/gateway/internal/core/domain"
	"github.com/coinvendo/gateway/internal/core/port"
	"github.com/coinvendo/gateway/internal/repository"
)

// fakeUserRepository is a hand-rolled in-memory double for port.UserRepository,
// matching the teacher's plain-testing-without-mocks idiom.
type fakeUserRepository struct {
	mu    sync.Mutex
	byID  map[string]domain.User
	seq   int
}

func newFakeUserRepository() *fakeUserRepository {
	return &fakeUserRepository{byID: make(map[string]domain.User)}
}

func (f *fakeUserRepository) Create(ctx context.Context, u domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.ID == "" {
		f.seq++
		u.ID = "user-" + itoa(f.seq)
	}
	f.byID[u.ID] = u
	return nil
}

func (f *fakeUserRepository) Update(ctx context.Context, u domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[u.ID] = u
	return nil
}

func (f *fakeUserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byID[id]; ok {
		return &u, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserRepository) FindByMAC(ctx context.Context, mac string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.MAC == mac {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserRepository) FindByClientID(ctx context.Context, clientID string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.ClientID == clientID {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserRepository) FindByUserCode(ctx context.Context, code string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.UserCode == code {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserRepository) FindByIP(ctx context.Context, ip string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.IP != nil && *u.IP == ip {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserRepository) ClaimMAC(ctx context.Context, userID, newMAC string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, u := range f.byID {
		if id != userID && u.MAC == newMAC {
			delete(f.byID, id)
		}
	}
	u := f.byID[userID]
	u.MAC = newMAC
	f.byID[userID] = u
	return nil
}

func (f *fakeUserRepository) AssignIP(ctx context.Context, userID, ip string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, u := range f.byID {
		if id != userID && u.IP != nil && *u.IP == ip {
			u.IP = nil
			f.byID[id] = u
		}
	}
	u := f.byID[userID]
	u.IP = &ip
	f.byID[userID] = u
	return nil
}

func (f *fakeUserRepository) Decrement(ctx context.Context, userID string, seconds int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.byID[userID]
	u.CreditSeconds = u.WithDecrement(seconds)
	f.byID[userID] = u
	return u.CreditSeconds, nil
}

func (f *fakeUserRepository) Pause(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.byID[userID]
	u.Paused = true
	u.Connected = false
	f.byID[userID] = u
	return nil
}

func (f *fakeUserRepository) Resume(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.byID[userID]
	u.Paused = false
	u.Connected = true
	f.byID[userID] = u
	return nil
}

func (f *fakeUserRepository) Expire(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.byID[userID]
	u.CreditSeconds = 0
	u.Connected = false
	f.byID[userID] = u
	return nil
}

func (f *fakeUserRepository) IterateActive(ctx context.Context, fn func(domain.User) error) error {
	f.mu.Lock()
	snapshot := make([]domain.User, 0, len(f.byID))
	for _, u := range f.byID {
		if u.IsActive() {
			snapshot = append(snapshot, u)
		}
	}
	f.mu.Unlock()
	for _, u := range snapshot {
		if err := fn(u); err != nil {
			return err
		}
	}
	return nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// fakePacketPolicy is a hand-rolled in-memory double for port.PacketPolicy.
type fakePacketPolicy struct {
	mu          sync.Mutex
	authorized  map[string]bool
	limits      map[string][2]int64
	snapshot    port.CounterSnapshot
	neighStale  map[string]bool
	liveFlows   map[string]bool
}

func newFakePacketPolicy() *fakePacketPolicy {
	return &fakePacketPolicy{
		authorized: make(map[string]bool),
		limits:     make(map[string][2]int64),
		neighStale: make(map[string]bool),
		liveFlows:  make(map[string]bool),
	}
}

func (f *fakePacketPolicy) Authorize(ctx context.Context, mac string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	isNew := !f.authorized[mac]
	f.authorized[mac] = true
	return isNew, nil
}

func (f *fakePacketPolicy) Deauthorize(ctx context.Context, mac string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.authorized, mac)
	return nil
}

func (f *fakePacketPolicy) SetLimit(ctx context.Context, ip string, downKbps, upKbps int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits[ip] = [2]int64{downKbps, upKbps}
	return nil
}

func (f *fakePacketPolicy) RemoveLimit(ctx context.Context, ip string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.limits, ip)
	return nil
}

func (f *fakePacketPolicy) SampleCounters(ctx context.Context, iface string) (port.CounterSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot, nil
}

func (f *fakePacketPolicy) ListAuthorizedMacs(ctx context.Context) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]struct{}, len(f.authorized))
	for mac := range f.authorized {
		out[mac] = struct{}{}
	}
	return out, nil
}

func (f *fakePacketPolicy) HasLiveFlows(ctx context.Context, ip string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.liveFlows[ip], nil
}

func (f *fakePacketPolicy) NeighborStale(ctx context.Context, ip string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.neighStale[ip], nil
}

// fakeEventPublisher discards events but records counts for assertions.
type fakeEventPublisher struct {
	mu     sync.Mutex
	counts map[string]int
}

func newFakeEventPublisher() *fakeEventPublisher {
	return &fakeEventPublisher{counts: make(map[string]int)}
}

func (f *fakeEventPublisher) PublishCoinPulse(ctx context.Context, e domain.CoinPulseEvent) error {
	f.record("coin_pulse")
	return nil
}

func (f *fakeEventPublisher) PublishCreditApplied(ctx context.Context, e domain.CreditAppliedEvent) error {
	f.record("credit_applied")
	return nil
}

func (f *fakeEventPublisher) PublishSessionExpired(ctx context.Context, e domain.SessionExpiredEvent) error {
	f.record("session_expired")
	return nil
}

func (f *fakeEventPublisher) PublishSourceBanned(ctx context.Context, e domain.SourceBannedEvent) error {
	f.record("source_banned")
	return nil
}

func (f *fakeEventPublisher) record(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
}

// fakeSaleRepository is a hand-rolled append-only ledger double.
type fakeSaleRepository struct {
	mu    sync.Mutex
	sales []domain.Sale
}

func newFakeSaleRepository() *fakeSaleRepository {
	return &fakeSaleRepository{}
}

func (f *fakeSaleRepository) Insert(ctx context.Context, s domain.Sale) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sales = append(f.sales, s)
	return nil
}

func (f *fakeSaleRepository) RangeTotal(ctx context.Context, from, to time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for _, s := range f.sales {
		if !s.Timestamp.Before(from) && s.Timestamp.Before(to) {
			total += s.Amount
		}
	}
	return total, nil
}

func (f *fakeSaleRepository) BySource(ctx context.Context, from, to time.Time) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int64)
	for _, s := range f.sales {
		if !s.Timestamp.Before(from) && s.Timestamp.Before(to) {
			out[s.SourceID] += s.Amount
		}
	}
	return out, nil
}
