package security

import (
	"context"

	"github.com/coinvendo/gateway/internal/core/port"
)

// Argon2CoinSourceAuthenticator verifies a remote sub-device's shared
// secret against the Argon2id hash stored on its Source record.
type Argon2CoinSourceAuthenticator struct {
	sources port.SourceRepository
}

func NewArgon2CoinSourceAuthenticator(sources port.SourceRepository) *Argon2CoinSourceAuthenticator {
	return &Argon2CoinSourceAuthenticator{sources: sources}
}

func (a *Argon2CoinSourceAuthenticator) Verify(ctx context.Context, sourceID, presentedSecret string) (bool, error) {
	src, err := a.sources.FindByID(ctx, sourceID)
	if err != nil {
		return false, err
	}
	if src == nil || src.SecretHash == "" {
		return false, nil
	}
	return VerifySecret(presentedSecret, src.SecretHash)
}

func (a *Argon2CoinSourceAuthenticator) HashSecret(secret string) (string, error) {
	return HashSecret(secret)
}
