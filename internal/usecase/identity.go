package usecase

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/coinvendo/gateway/internal/core/domain"
	"github.com/coinvendo/gateway/internal/repository"
)

// IdentityResolver maps a request's observed (client_id?, mac?, ip?) to a
// canonical user_id per §4.1's resolution order and conflict policy.
type IdentityResolver struct {
	store *SessionStore
	log   *zap.Logger
}

func NewIdentityResolver(store *SessionStore, log *zap.Logger) *IdentityResolver {
	return &IdentityResolver{store: store, log: log}
}

// ResolveOpts carries the observed identity facets of one request.
type ResolveOpts struct {
	ClientID string
	MAC      string
	IP       string
	// CreditingAction is true when the caller is performing a crediting
	// action (coin insert, voucher redeem); only then does Resolve return
	// the repository.ErrNotFound signal telling the caller to create a
	// new User.
	CreditingAction bool
}

// Resolve implements the §4.1 resolution order. It returns a nil *User
// with ErrMissingMAC whenever no client_id match is found and mac is
// empty, whether or not CreditingAction is set; callers that only need
// status continue with a null user_id. When no User owns mac it returns
// (nil, nil) for a non-crediting caller and repository.ErrNotFound for a
// crediting one; Resolve itself never creates a User.
func (r *IdentityResolver) Resolve(ctx context.Context, opts ResolveOpts) (*domain.User, error) {
	mac := domain.NormalizeMAC(opts.MAC)

	if opts.ClientID != "" {
		candidate, err := r.store.FindByClientID(ctx, opts.ClientID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if candidate != nil {
			if mac != "" && candidate.MAC != mac {
				owner, err := r.store.FindByMAC(ctx, mac)
				if err != nil && !errors.Is(err, ErrNotFound) {
					return nil, err
				}
				if owner != nil && owner.IsActive() {
					// Abandon the cookie binding: trust the device's
					// current radio identity over the cookie.
					r.log.Info("identity: mac owner active, abandoning cookie binding",
						zap.String("client_id", opts.ClientID), zap.String("mac", mac))
					return owner, nil
				}
				// Claim the MAC for the cookie's user.
				if err := r.store.ClaimMAC(ctx, candidate.ID, mac); err != nil {
					return nil, err
				}
				candidate.MAC = mac
			}
			return candidate, nil
		}
	}

	if mac == "" {
		return nil, ErrMissingMAC
	}

	byMAC, err := r.store.FindByMAC(ctx, mac)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if byMAC != nil {
		if byMAC.ClientID == "" && opts.ClientID != "" {
			if err := r.store.BindClientID(ctx, byMAC.ID, opts.ClientID); err != nil {
				return nil, err
			}
			byMAC.ClientID = opts.ClientID
		}
		return byMAC, nil
	}

	if !opts.CreditingAction {
		return nil, nil
	}

	return nil, repository.ErrNotFound
}
