// Package ratelimit locks a key out with exponential backoff after repeated
// failures. Wallet unlock and API bearer-token checks share it.
package ratelimit

import (
	"sync"
	"time"
)

// pendingRetry is the wait suggested when a key is refused only because
// attempts already in flight might use up its remaining budget.
const pendingRetry = time.Second

// Policy configures a Backoff.
type Policy struct {
	// MaxFailures is the number of consecutive failures before lockout begins.
	MaxFailures int
	// BaseLockout is the lockout applied once MaxFailures is reached. It
	// doubles with every further failure.
	BaseLockout time.Duration
	// MaxLockout caps the backoff.
	MaxLockout time.Duration
	// Expiry is how long after the last failure the record is forgotten.
	Expiry time.Duration
}

// Lockout returns the lockout for a key with failures consecutive failures.
func (p Policy) Lockout(failures int) time.Duration {
	if failures < p.MaxFailures {
		return 0
	}
	lockout := p.BaseLockout
	for range failures - p.MaxFailures {
		lockout *= 2
		if lockout >= p.MaxLockout {
			return p.MaxLockout
		}
	}
	return min(lockout, p.MaxLockout)
}

// Backoff tracks failures per key.
type Backoff struct {
	policy Policy
	now    func() time.Time

	mu       sync.Mutex
	attempts map[string]*record
}

type record struct {
	failures    int
	inFlight    int
	lastFailure time.Time
	lockedUntil time.Time
}

// NewBackoff returns a Backoff enforcing p. A nil now uses time.Now.
func NewBackoff(p Policy, now func() time.Time) *Backoff {
	if now == nil {
		now = time.Now
	}
	return &Backoff{policy: p, now: now, attempts: make(map[string]*record)}
}

// Reserve starts an attempt for key. It is refused while key is locked out,
// and while the failures recorded plus the attempts still in flight already
// reach MaxFailures, so concurrent callers cannot outrun the count. A
// reserved Attempt must be finished with Succeed, Fail or Cancel.
func (b *Backoff) Reserve(key string) (a *Attempt, retryAfter time.Duration, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	rec, found := b.attempts[key]
	if !found {
		rec = &record{}
		b.attempts[key] = rec
	} else if rec.inFlight == 0 && rec.failures > 0 && now.Sub(rec.lastFailure) > b.policy.Expiry {
		*rec = record{}
	}
	if now.Before(rec.lockedUntil) {
		return nil, rec.lockedUntil.Sub(now), false
	}
	if rec.inFlight > 0 && rec.failures+rec.inFlight >= b.policy.MaxFailures {
		return nil, pendingRetry, false
	}
	rec.inFlight++
	return &Attempt{b: b, key: key}, 0, true
}

// Reset forgets every failure recorded for key. Attempts in flight still
// finish normally.
func (b *Backoff) Reset(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.attempts[key]
	if !ok {
		return
	}
	rec.failures = 0
	rec.lockedUntil = time.Time{}
	b.dropIdleLocked(key, rec)
}

// Failures returns the consecutive failures currently counted for key.
func (b *Backoff) Failures(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rec, ok := b.attempts[key]; ok {
		return rec.failures
	}
	return 0
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	outcomeCancel
)

func (b *Backoff) finish(key string, o outcome) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.attempts[key]
	if !ok {
		return
	}
	rec.inFlight--
	switch o {
	case outcomeSuccess:
		rec.failures = 0
		rec.lockedUntil = time.Time{}
	case outcomeFailure:
		rec.failures++
		rec.lastFailure = b.now()
		if lockout := b.policy.Lockout(rec.failures); lockout > 0 {
			rec.lockedUntil = rec.lastFailure.Add(lockout)
		}
	}
	b.dropIdleLocked(key, rec)
}

func (b *Backoff) dropIdleLocked(key string, rec *record) {
	if rec.inFlight == 0 && rec.failures == 0 {
		delete(b.attempts, key)
	}
}

// Attempt is one reserved try against a key.
type Attempt struct {
	b    *Backoff
	key  string
	done bool
}

// Succeed clears the key's failures.
func (a *Attempt) Succeed() { a.finish(outcomeSuccess) }

// Fail counts a failure against the key and applies any lockout.
func (a *Attempt) Fail() { a.finish(outcomeFailure) }

// Cancel releases the reservation without an outcome, for attempts that
// ended before the credential was judged.
func (a *Attempt) Cancel() { a.finish(outcomeCancel) }

func (a *Attempt) finish(o outcome) {
	if a.done {
		return
	}
	a.done = true
	a.b.finish(a.key, o)
}
