package recovery

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrValidation reports malformed input: guardian counts, thresholds, keys, addresses.
	ErrValidation = errors.New("validation error")

	// ErrAuth reports a bad signature or password.
	ErrAuth = errors.New("authentication failed")

	// ErrConflict reports an operation that is not allowed in the current state.
	ErrConflict = errors.New("conflict")

	// ErrNotFound reports a wallet without recovery configuration.
	ErrNotFound = errors.New("not found")

	// ErrTimelockActive reports a completion attempted before the timelock ends. See TimelockActiveError.
	ErrTimelockActive = errors.New("timelock active")

	// ErrOwnerStillActive reports an inheritance claim inside the inactivity period. See OwnerStillActiveError.
	ErrOwnerStillActive = errors.New("owner still active")
)

func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func authErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrAuth, fmt.Sprintf(format, args...))
}

func conflictErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func notFoundErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// TimelockActiveError is returned when a recovery is completed before its timelock expired.
type TimelockActiveError struct {
	Remaining time.Duration
}

func (e *TimelockActiveError) Error() string {
	return fmt.Sprintf("timelock active: %d hours remaining", ceilUnits(e.Remaining, time.Hour))
}

func (e *TimelockActiveError) Unwrap() error {
	return ErrTimelockActive
}

// OwnerStillActiveError is returned when inheritance is claimed before the inactivity period elapsed.
type OwnerStillActiveError struct {
	Remaining time.Duration
}

func (e *OwnerStillActiveError) Error() string {
	return fmt.Sprintf("owner still active: %d days until inheritance available", ceilUnits(e.Remaining, 24*time.Hour))
}

func (e *OwnerStillActiveError) Unwrap() error {
	return ErrOwnerStillActive
}

// RetryAfter returns how long the caller should wait before retrying, if err carries one.
func RetryAfter(err error) (time.Duration, bool) {
	var tl *TimelockActiveError
	if errors.As(err, &tl) {
		return tl.Remaining, true
	}
	var oa *OwnerStillActiveError
	if errors.As(err, &oa) {
		return oa.Remaining, true
	}
	return 0, false
}

func ceilUnits(d, unit time.Duration) int64 {
	return int64(math.Ceil(float64(d) / float64(unit)))
}
