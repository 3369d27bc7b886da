package usecase

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel result kinds from the core's error handling design. Every
// core operation fails with one of these, wrapped with errors.Is/As-
// compatible context where useful.
var (
	ErrBusy             = errors.New("usecase: coin slot busy")
	ErrNoRateForAmount  = errors.New("usecase: no rate fits amount")
	ErrConflict         = errors.New("usecase: identifier owned by another active user")
	ErrTransient        = errors.New("usecase: packet policy call failed or timed out")
	ErrInvalid          = errors.New("usecase: malformed input or bad secret")
	ErrNotFound         = errors.New("usecase: no such user, source, or code")
	ErrMissingMAC       = errors.New("usecase: mac could not be resolved from ip")
	ErrSessionExpired   = errors.New("usecase: restore code or client_id has expired")
)

// BannedError reports FailAttemptGate rejection with the retry horizon.
type BannedError struct {
	Until time.Time
}

func (e *BannedError) Error() string {
	return fmt.Sprintf("usecase: banned until %s", e.Until.Format(time.RFC3339))
}

// AsBanned unwraps err into a *BannedError, mirroring errors.As usage
// elsewhere in the core.
func AsBanned(err error) (*BannedError, bool) {
	var banned *BannedError
	if errors.As(err, &banned) {
		return banned, true
	}
	return nil, false
}
