package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/coinvendo/gateway/internal/core/domain"
	"github.com/coinvendo/gateway/internal/core/port"
	"github.com/coinvendo/gateway/internal/repository"
)

// StatusView is the portal's status(identity) contract response.
type StatusView struct {
	UserID          string
	CreditSeconds   int64
	Paused          bool
	Connected       bool
	UserCode        string
	PendingAmount   int64
	PendingMinutes  int64
	VendoMode       domain.InsertMode
	Sources         []domain.Source
	CoinSession     *domain.CoinSession
}

// PortalService is the plain-Go facade behind the external portal API
// contract in §6. It owns no HTTP/JSON concerns — those belong to an
// external transport layer (out of scope per the distillation's
// Non-goals) — only the operation semantics themselves.
type PortalService struct {
	identity   *IdentityResolver
	aggregator *CoinAggregator
	applier    *CreditApplier
	planner    *RatePlanner
	sources    *SourceRegistry
	gate       *FailAttemptGate
	store      *SessionStore
	identityMgr port.ClientIdentityManager
}

func NewPortalService(identity *IdentityResolver, aggregator *CoinAggregator, applier *CreditApplier, planner *RatePlanner, sources *SourceRegistry, gate *FailAttemptGate, store *SessionStore, identityMgr port.ClientIdentityManager) *PortalService {
	return &PortalService{
		identity:    identity,
		aggregator:  aggregator,
		applier:     applier,
		planner:     planner,
		sources:     sources,
		gate:        gate,
		store:       store,
		identityMgr: identityMgr,
	}
}

// Status implements the §6 status(identity) contract. A nil user_id is
// returned (no error) when the MAC cannot be resolved, per §4.1's
// "caller must still be able to query status" rule.
func (p *PortalService) Status(ctx context.Context, opts ResolveOpts) (StatusView, error) {
	user, err := p.identity.Resolve(ctx, opts)
	if err != nil && err != ErrMissingMAC {
		return StatusView{}, err
	}

	view := StatusView{}
	if user != nil {
		view.UserID = user.ID
		view.CreditSeconds = user.CreditSeconds
		view.Paused = user.Paused
		view.Connected = user.Connected
		view.UserCode = user.UserCode
	}

	if session := p.aggregator.Snapshot(); session != nil {
		view.CoinSession = session
		view.PendingAmount = session.PendingAmount
		view.VendoMode = session.Mode
		plan := p.planner.Plan(session.PendingAmount, dominantSource(session.PerSourceAmount))
		view.PendingMinutes = plan.Minutes
	}

	sources, err := p.sources.List(ctx)
	if err == nil {
		view.Sources = sources
	}

	return view, nil
}

// resolveCreditIdentity runs §4.1 resolution ahead of a crediting action
// (coin insert, voucher redeem) so a roaming device reclaims or defers to
// the correct owner (S4/S5) instead of CreditApplier's own FindByMAC upsert
// silently minting a second, zero-history user on the new MAC. A resolved
// existing user forwards its own MAC and an empty client_id downstream,
// since Resolve has already performed any ClaimMAC/BindClientID binding
// itself and re-forwarding the raw cookie risks overwriting a *different*
// user's client_id in the S5 abandon-binding case. The repository.ErrNotFound
// "create new" signal forwards the normalized mac and the original
// client_id unchanged, since there is no existing record to protect.
func (p *PortalService) resolveCreditIdentity(ctx context.Context, mac, clientID string) (resolvedMAC, resolvedClientID string, err error) {
	user, err := p.identity.Resolve(ctx, ResolveOpts{ClientID: clientID, MAC: mac, CreditingAction: true})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NormalizeMAC(mac), clientID, nil
		}
		return "", "", err
	}
	return user.MAC, "", nil
}

// StartCoinInsert implements the §6 contract, guarded by FailAttemptGate.
func (p *PortalService) StartCoinInsert(ctx context.Context, mac, clientID string, mode domain.InsertMode, target string) error {
	if err := p.gate.Check(ctx, mac); err != nil {
		return err
	}
	resolvedMAC, resolvedClientID, err := p.resolveCreditIdentity(ctx, mac, clientID)
	if err != nil {
		_ = p.gate.RecordFailure(ctx, mac, domain.FailureKindCoinStart)
		return err
	}
	err = p.aggregator.StartInsert(resolvedMAC, resolvedClientID, mode, target)
	if err != nil {
		if _, ok := AsBanned(err); !ok && err == ErrBusy {
			return err
		}
		_ = p.gate.RecordFailure(ctx, mac, domain.FailureKindCoinStart)
		return err
	}
	_ = p.gate.RecordSuccess(ctx, mac)
	return nil
}

// FinalizeCoinInsert implements the §6 finalizeCoinInsert contract.
func (p *PortalService) FinalizeCoinInsert(ctx context.Context) (CreditResult, error) {
	return p.aggregator.Done(ctx)
}

// PauseSession implements the §6 pauseSession contract.
func (p *PortalService) PauseSession(ctx context.Context, userID, mac, ip string) error {
	return p.store.Pause(ctx, userID, mac, ip)
}

// ResumeSession implements the §6 resumeSession contract.
func (p *PortalService) ResumeSession(ctx context.Context, userID, mac, ip string, downKbps, upKbps int64) error {
	return p.store.Resume(ctx, userID, mac, ip, downKbps, upKbps)
}

// RedeemVoucher implements the §6 redeemVoucher contract. Voucher
// validation itself (code → amount mapping) is delegated to callers
// through perSourceAmount, since voucher storage is an operator concern
// outside this core's data model.
func (p *PortalService) RedeemVoucher(ctx context.Context, mac, clientID, code string, amount int64) (CreditResult, error) {
	if err := p.gate.Check(ctx, mac); err != nil {
		return CreditResult{}, err
	}
	resolvedMAC, resolvedClientID, err := p.resolveCreditIdentity(ctx, mac, clientID)
	if err != nil {
		_ = p.gate.RecordFailure(ctx, mac, domain.FailureKindVoucher)
		return CreditResult{}, err
	}
	result, err := p.applier.Apply(ctx, resolvedMAC, resolvedClientID, map[string]int64{"voucher": amount}, "voucher", domain.SaleOriginVoucher)
	if err != nil {
		_ = p.gate.RecordFailure(ctx, mac, domain.FailureKindVoucher)
		return CreditResult{}, err
	}
	_ = p.gate.RecordSuccess(ctx, mac)
	return result, nil
}

// RestoreSession implements the §6 restoreSession(code | client_id)
// contract.
func (p *PortalService) RestoreSession(ctx context.Context, codeOrClientID string) (string, error) {
	user, err := p.store.FindByCode(ctx, codeOrClientID)
	if err != nil {
		user, err = p.store.FindByClientID(ctx, codeOrClientID)
		if err != nil {
			return "", ErrNotFound
		}
	}
	if user.CreditSeconds <= 0 && user.SessionExpiryAt != nil && time.Now().After(*user.SessionExpiryAt) {
		return "", ErrSessionExpired
	}
	return user.ID, nil
}
