package wallet

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrLocked indicates a gated operation was attempted while the session is locked.
	ErrLocked = errors.New("wallet is locked")
	// ErrWalletNotFound indicates no wallet has been created or imported.
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrWalletExists indicates create or import would overwrite an existing wallet.
	ErrWalletExists = errors.New("wallet already exists")
	// ErrInvalidPassword indicates the password did not open the wallet.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrAccountNotFound indicates no account has the requested index.
	ErrAccountNotFound = errors.New("account not found")
	// ErrLastAccount indicates an attempt to remove the only remaining account.
	ErrLastAccount = errors.New("cannot remove the last account")
	// ErrNotImplemented tags operations that have no backing implementation.
	ErrNotImplemented = errors.New("not implemented")
	// ErrUnknownNetwork indicates a network id outside the catalog.
	ErrUnknownNetwork = errors.New("unknown network")
	// ErrUnauthorized indicates the origin is not connected.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRejected indicates the user declined an approval request.
	ErrRejected = errors.New("user rejected the request")
	// ErrRateLimited indicates too many failed unlock attempts.
	ErrRateLimited = errors.New("too many failed unlock attempts")
	// ErrSiteNotFound indicates the origin has no connection to remove.
	ErrSiteNotFound = errors.New("site not connected")
)

// ValidationError reports malformed input.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// RateLimitError is returned by UnlockWallet while unlock attempts are
// blocked. It matches ErrRateLimited with errors.Is.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s; retry after %s", ErrRateLimited, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }
