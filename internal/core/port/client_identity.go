package port

import "time"

// ClientIdentityManager issues and verifies the signed client_id cookie
// token. Verify returns the embedded subject, or ok=false on bad
// signature/expiry — IdentityResolver treats the subject as the cookie's
// stable identity.
type ClientIdentityManager interface {
	Issue(now time.Time) (token string, subject string, err error)
	Verify(token string) (subject string, ok bool)
}
