package usecase

import (
	"crypto/rand"
	"math/big"
)

// userCodeAlphabet excludes visually ambiguous characters (0/O, 1/I/L)
// per the spec's "unambiguous alphabet" requirement.
const userCodeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// generateUserCode produces a 6-character printable code. Uniqueness
// across active records is enforced by the repository's unique index; a
// collision surfaces as the repository's ErrConflict from Create and is
// not retried.
func generateUserCode() string {
	buf := make([]byte, 6)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(userCodeAlphabet))))
		if err != nil {
			// crypto/rand failure is unrecoverable; fall back to a fixed
			// index rather than panicking the writer goroutine.
			buf[i] = userCodeAlphabet[0]
			continue
		}
		buf[i] = userCodeAlphabet[n.Int64()]
	}
	return string(buf)
}
