package wallet

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jmcleod/ironwallet/internal/ratelimit"
)

const (
	// maxFailures is the number of consecutive wrong passwords before lockout begins.
	maxFailures = 5
	// baseLockout is the initial lockout duration after maxFailures is reached.
	baseLockout = 1 * time.Minute
	// maxLockout caps the exponential backoff.
	maxLockout = 15 * time.Minute
	// attemptExpiry is how long after the last failure before the record is forgotten.
	attemptExpiry = 1 * time.Hour
)

// passwordPolicy applies to every operation that verifies the wallet
// password: unlock, reset and key export.
var passwordPolicy = ratelimit.Policy{
	MaxFailures: maxFailures,
	BaseLockout: baseLockout,
	MaxLockout:  maxLockout,
	Expiry:      attemptExpiry,
}

func newUnlockLimiter(now func() time.Time) *ratelimit.Backoff {
	return ratelimit.NewBackoff(passwordPolicy, now)
}

// verifyPassword opens w's mnemonic under the password limiter. Failures
// count toward the wallet's lockout; the caller wipes the returned phrase.
func (c *Core) verifyPassword(ctx context.Context, w *encryptedWallet, password, failure string) ([]byte, error) {
	attempt, retryAfter, ok := c.limiter.Reserve(w.ID)
	if !ok {
		c.audit.logFailure(ctx, AuditUnlockRateLimited, "too many failures", slog.String("wallet_id", w.ID))
		return nil, &RateLimitError{RetryAfter: retryAfter}
	}
	phrase, err := c.openMnemonic(w, password)
	if err != nil {
		if errors.Is(err, ErrInvalidPassword) {
			attempt.Fail()
			c.audit.logFailure(ctx, AuditUnlockFailure, failure, slog.String("wallet_id", w.ID))
		} else {
			attempt.Cancel()
		}
		return nil, err
	}
	attempt.Succeed()
	return phrase, nil
}
