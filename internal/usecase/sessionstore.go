package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/coinvendo/gateway/internal/core/domain"
	"github.com/coinvendo/gateway/internal/core/port"
	"github.com/coinvendo/gateway/internal/repository"
)

// mutation is one closure submitted to the writer goroutine. It runs with
// exclusive access to the backing repository and returns any deferred
// PacketPolicy work to run post-commit.
type mutation func(ctx context.Context, repo port.UserRepository) ([]port.PolicyWork, error)

type mutationRequest struct {
	fn     mutation
	result chan<- error
}

// SessionStore is the single-writer facade over the User repository
// described in §4.6. All mutating operations are routed through one
// goroutine consuming mutationCh; PacketPolicy work returned by a
// mutation is handed to a bounded worker pool, never invoked inline.
type SessionStore struct {
	repo   port.UserRepository
	log    *zap.Logger
	policy port.PacketPolicy

	mutationCh chan mutationRequest
	workCh     chan port.PolicyWork

	done chan struct{}
}

// NewSessionStore wires the writer against its repository and policy
// adapter. Run must be started before any mutation is submitted.
func NewSessionStore(repo port.UserRepository, policy port.PacketPolicy, log *zap.Logger, workers int) *SessionStore {
	if workers <= 0 {
		workers = 4
	}
	s := &SessionStore{
		repo:       repo,
		log:        log,
		policy:     policy,
		mutationCh: make(chan mutationRequest, 256),
		workCh:     make(chan port.PolicyWork, 1024),
		done:       make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go s.runWorker()
	}
	return s
}

// Run is the writer loop. It must be started exactly once, typically from
// app composition, and exits when ctx is cancelled.
func (s *SessionStore) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.mutationCh:
			work, err := req.fn(ctx, s.repo)
			if err != nil {
				req.result <- err
				continue
			}
			for _, w := range work {
				select {
				case s.workCh <- w:
				default:
					s.log.Warn("policy work queue full, dropping", zap.Int("kind", int(w.Kind)))
				}
			}
			req.result <- nil
		}
	}
}

func (s *SessionStore) runWorker() {
	for w := range s.workCh {
		s.applyPolicyWork(w)
	}
}

func (s *SessionStore) applyPolicyWork(w port.PolicyWork) {
	ctx := context.Background()
	var err error
	switch w.Kind {
	case port.PolicyWorkAuthorize:
		_, err = s.policy.Authorize(ctx, w.MAC)
	case port.PolicyWorkDeauthorize:
		err = s.policy.Deauthorize(ctx, w.MAC)
	case port.PolicyWorkSetLimit:
		err = s.policy.SetLimit(ctx, w.IP, w.DownKbps, w.UpKbps)
	case port.PolicyWorkRemoveLimit:
		err = s.policy.RemoveLimit(ctx, w.IP)
	}
	if err != nil {
		s.log.Warn("packet policy call failed, ticker will retry",
			zap.Int("kind", int(w.Kind)), zap.String("mac", w.MAC), zap.Error(err))
	}
}

// submit enqueues a mutation and blocks for its result, translating
// repository-level ErrNotFound into the usecase-level sentinel.
func (s *SessionStore) submit(ctx context.Context, fn mutation) error {
	result := make(chan error, 1)
	select {
	case s.mutationCh <- mutationRequest{fn: fn, result: result}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-result:
		return translateRepoErr(err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func translateRepoErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

// FindByMAC, FindByClientID, FindByCode are read-only; they bypass the
// writer since they take an immutable snapshot per §5.
func (s *SessionStore) FindByMAC(ctx context.Context, mac string) (*domain.User, error) {
	u, err := s.repo.FindByMAC(ctx, domain.NormalizeMAC(mac))
	return u, translateRepoErr(err)
}

func (s *SessionStore) FindByClientID(ctx context.Context, clientID string) (*domain.User, error) {
	u, err := s.repo.FindByClientID(ctx, clientID)
	return u, translateRepoErr(err)
}

func (s *SessionStore) FindByCode(ctx context.Context, code string) (*domain.User, error) {
	u, err := s.repo.FindByUserCode(ctx, code)
	return u, translateRepoErr(err)
}

// ClaimMAC enforces the single-owner invariant via the writer. Per S4's
// roaming-reclaim scenario, the user's prior MAC (if any) is deauthorized
// and the newly claimed one authorized, so PacketPolicy tracks the device's
// actual radio identity rather than the stale one.
func (s *SessionStore) ClaimMAC(ctx context.Context, userID, newMAC string) error {
	newMAC = domain.NormalizeMAC(newMAC)
	return s.submit(ctx, func(ctx context.Context, repo port.UserRepository) ([]port.PolicyWork, error) {
		existing, err := repo.FindByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		oldMAC := existing.MAC

		if err := repo.ClaimMAC(ctx, userID, newMAC); err != nil {
			return nil, err
		}

		work := []port.PolicyWork{{Kind: port.PolicyWorkAuthorize, MAC: newMAC}}
		if oldMAC != "" && oldMAC != newMAC {
			work = append(work, port.PolicyWork{Kind: port.PolicyWorkDeauthorize, MAC: oldMAC})
		}
		return work, nil
	})
}

// BindClientID attaches a client_id cookie subject to an existing User
// that has none yet, per §4.1 step 3.
func (s *SessionStore) BindClientID(ctx context.Context, userID, clientID string) error {
	return s.submit(ctx, func(ctx context.Context, repo port.UserRepository) ([]port.PolicyWork, error) {
		u, err := repo.FindByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		if u.ClientID != "" {
			return nil, nil
		}
		u.ClientID = clientID
		return nil, repo.Update(ctx, *u)
	})
}

// AssignIP clears ip on any other record before writing it, via the writer.
func (s *SessionStore) AssignIP(ctx context.Context, userID, ip string) error {
	return s.submit(ctx, func(ctx context.Context, repo port.UserRepository) ([]port.PolicyWork, error) {
		return nil, repo.AssignIP(ctx, userID, ip)
	})
}

// Decrement subtracts seconds from a user's balance, clamped at zero.
func (s *SessionStore) Decrement(ctx context.Context, userID string, seconds int64) error {
	return s.submit(ctx, func(ctx context.Context, repo port.UserRepository) ([]port.PolicyWork, error) {
		_, err := repo.Decrement(ctx, userID, seconds)
		return nil, err
	})
}

// Expire zeroes a user's session and enqueues deauthorize/removeLimit.
func (s *SessionStore) Expire(ctx context.Context, userID, mac, ip string) error {
	return s.submit(ctx, func(ctx context.Context, repo port.UserRepository) ([]port.PolicyWork, error) {
		if err := repo.Expire(ctx, userID); err != nil {
			return nil, err
		}
		work := []port.PolicyWork{{Kind: port.PolicyWorkDeauthorize, MAC: mac}}
		if ip != "" {
			work = append(work, port.PolicyWork{Kind: port.PolicyWorkRemoveLimit, IP: ip})
		}
		return work, nil
	})
}

// Pause marks a user paused/disconnected and enqueues enforcement teardown.
func (s *SessionStore) Pause(ctx context.Context, userID, mac, ip string) error {
	return s.submit(ctx, func(ctx context.Context, repo port.UserRepository) ([]port.PolicyWork, error) {
		if err := repo.Pause(ctx, userID); err != nil {
			return nil, err
		}
		work := []port.PolicyWork{{Kind: port.PolicyWorkDeauthorize, MAC: mac}}
		if ip != "" {
			work = append(work, port.PolicyWork{Kind: port.PolicyWorkRemoveLimit, IP: ip})
		}
		return work, nil
	})
}

// Resume clears paused/reconnects a user and enqueues re-authorization.
func (s *SessionStore) Resume(ctx context.Context, userID, mac, ip string, downKbps, upKbps int64) error {
	return s.submit(ctx, func(ctx context.Context, repo port.UserRepository) ([]port.PolicyWork, error) {
		if err := repo.Resume(ctx, userID); err != nil {
			return nil, err
		}
		work := []port.PolicyWork{{Kind: port.PolicyWorkAuthorize, MAC: mac}}
		if ip != "" {
			work = append(work, port.PolicyWork{Kind: port.PolicyWorkSetLimit, IP: ip, DownKbps: downKbps, UpKbps: upKbps})
		}
		return work, nil
	})
}

// TouchTraffic records that ip was observed carrying traffic at at, via the
// writer, per §5's rule that all User mutations serialize through one
// logical writer rather than a caller reading and updating the repository
// directly.
func (s *SessionStore) TouchTraffic(ctx context.Context, ip string, at time.Time) error {
	return s.submit(ctx, func(ctx context.Context, repo port.UserRepository) ([]port.PolicyWork, error) {
		u, err := repo.FindByIP(ctx, ip)
		if err != nil {
			return nil, err
		}
		u.LastTrafficAt = at
		return nil, repo.Update(ctx, *u)
	})
}

// IterateActive snapshots every active user, bypassing the writer per §5's
// "reads take immutable snapshots" rule.
func (s *SessionStore) IterateActive(ctx context.Context, fn func(domain.User) error) error {
	return s.repo.IterateActive(ctx, fn)
}

// ApplyCredit performs CreditApplier step 4 (the User upsert) through the
// writer and enqueues the resulting authorize/setLimit work, so the whole
// mutation is observed atomically by the Ticker per §4.5's atomicity rule.
func (s *SessionStore) ApplyCredit(ctx context.Context, mac, clientID string, seconds, upKbps, downKbps int64) (*domain.User, error) {
	var result *domain.User
	err := s.submit(ctx, func(ctx context.Context, repo port.UserRepository) ([]port.PolicyWork, error) {
		existing, err := repo.FindByMAC(ctx, domain.NormalizeMAC(mac))
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}

		var u domain.User
		if existing != nil {
			u = *existing
		} else {
			u = domain.User{MAC: domain.NormalizeMAC(mac), UserCode: generateUserCode()}
		}
		u.CreditSeconds += seconds
		u.TotalSecondsEver += seconds
		u.Paused = false
		u.Connected = true
		if clientID != "" {
			u.ClientID = clientID
		}
		if upKbps > u.RateUpKbps {
			u.RateUpKbps = upKbps
		}
		if downKbps > u.RateDownKbps {
			u.RateDownKbps = downKbps
		}

		if existing == nil {
			if err := repo.Create(ctx, u); err != nil {
				return nil, err
			}
		} else {
			if err := repo.Update(ctx, u); err != nil {
				return nil, err
			}
		}
		result = &u

		work := []port.PolicyWork{{Kind: port.PolicyWorkAuthorize, MAC: u.MAC}}
		if u.IP != nil && *u.IP != "" {
			work = append(work, port.PolicyWork{Kind: port.PolicyWorkSetLimit, IP: *u.IP, DownKbps: u.RateDownKbps, UpKbps: u.RateUpKbps})
		}
		return work, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
