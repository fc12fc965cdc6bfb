package api

import (
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jmcleod/ironwallet/internal/ratelimit"
)

// ---------------------------------------------------------------------------
// Per-origin request limiter
// ---------------------------------------------------------------------------

const (
	defaultOriginRPS   = 20
	defaultOriginBurst = 40
	visitorTTL         = 10 * time.Minute
)

// originRateLimiter keeps one token bucket per page origin so a single
// noisy page cannot starve the others or flood the approval queue.
type originRateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	rps       rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newOriginRateLimiter(rps float64, burst int) *originRateLimiter {
	return &originRateLimiter{
		visitors:  make(map[string]*visitor),
		rps:       rate.Limit(rps),
		burst:     burst,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// allow reports whether origin may make another request now.
func (rl *originRateLimiter) allow(origin string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > visitorTTL {
		rl.sweepLocked(now)
	}
	v, ok := rl.visitors[origin]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[origin] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (rl *originRateLimiter) sweepLocked(now time.Time) {
	for origin, v := range rl.visitors {
		if now.Sub(v.lastSeen) > visitorTTL {
			delete(rl.visitors, origin)
		}
	}
	rl.lastSweep = now
}

// ---------------------------------------------------------------------------
// Per-IP bearer token failure limiter
// ---------------------------------------------------------------------------

var tokenPolicy = ratelimit.Policy{
	MaxFailures: 10,
	BaseLockout: 1 * time.Minute,
	MaxLockout:  30 * time.Minute,
	Expiry:      1 * time.Hour,
}

// newTokenLimiter tracks failed token presentations per source IP.
func newTokenLimiter(now func() time.Time) *ratelimit.Backoff {
	return ratelimit.NewBackoff(tokenPolicy, now)
}

// writeRateLimited sends a 429 Too Many Requests response.
func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration, msg string) {
	w.Header().Set("Retry-After", retryAfterString(retryAfter))
	writeError(w, http.StatusTooManyRequests, msg)
}

func retryAfterString(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// clientIP returns the peer address of r. The server listens on loopback
// behind no proxy, so forwarding headers are never consulted.
func clientIP(r *http.Request) string {
	s := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.Trim(s, "[]")
	if i := strings.IndexByte(s, '%'); i >= 0 {
		s = s[:i]
	}
	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.String()
	}
	return s
}
