package port

import (
	"context"

	"github.com/coinvendo/gateway/internal/core/domain"
)

// UserRepository is the durable backing store behind SessionStore. All
// methods are case-insensitive on MAC and auto-normalize on write.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	Update(ctx context.Context, user domain.User) error
	FindByID(ctx context.Context, userID string) (*domain.User, error)
	FindByMAC(ctx context.Context, mac string) (*domain.User, error)
	FindByClientID(ctx context.Context, clientID string) (*domain.User, error)
	FindByUserCode(ctx context.Context, code string) (*domain.User, error)
	FindByIP(ctx context.Context, ip string) (*domain.User, error)
	// ClaimMAC enforces the single-owner invariant: it deletes any stale
	// record on newMAC before rewriting userID's mac field.
	ClaimMAC(ctx context.Context, userID, newMAC string) error
	// AssignIP clears ip on any other record before writing it to userID.
	AssignIP(ctx context.Context, userID, ip string) error
	Decrement(ctx context.Context, userID string, seconds int64) (newBalance int64, err error)
	Pause(ctx context.Context, userID string) error
	Resume(ctx context.Context, userID string) error
	Expire(ctx context.Context, userID string) error
	// IterateActive streams every user with credit_seconds>0 AND !paused.
	IterateActive(ctx context.Context, fn func(domain.User) error) error
}
