package port

import "context"

// CoinSourceAuthenticator verifies the shared secret carried by a remote
// sub-device's heartbeat or pulse event before it reaches the aggregator.
type CoinSourceAuthenticator interface {
	Verify(ctx context.Context, sourceID, presentedSecret string) (bool, error)
	// HashSecret produces the Argon2id digest stored as Source.SecretHash
	// when a remote source registers or rotates its secret.
	HashSecret(secret string) (string, error)
}
