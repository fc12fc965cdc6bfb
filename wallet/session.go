package wallet

import (
	"fmt"
	"sync"
	"time"

	"github.com/awnumar/memguard"
)

// State is the lock state of a Session.
type State int

const (
	StateLocked State = iota
	StateUnlocked
)

func (s State) String() string {
	switch s {
	case StateLocked:
		return "locked"
	case StateUnlocked:
		return "unlocked"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session is the in-memory lock state of one wallet core. The decrypted
// seed exists only while the session is unlocked and is held in a memguard
// enclave; it is decrypted into a locked buffer for the duration of a single
// operation and destroyed afterwards.
//
// A new Session is always locked, so nothing decrypted survives a restart.
type Session struct {
	mu           sync.RWMutex
	seed         *memguard.Enclave
	walletID     string
	lastActivity time.Time
}

// NewSession returns a locked session.
func NewSession() *Session {
	return &Session{}
}

// State reports whether the session is locked.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.seed == nil {
		return StateLocked
	}
	return StateUnlocked
}

// LastActivity is the time of the last gated operation, or of unlock.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// unlock moves the seed into an enclave. The seed slice is wiped.
func (s *Session) unlock(walletID string, seed []byte, now time.Time) {
	enclave := memguard.NewEnclave(seed)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seed = enclave
	s.walletID = walletID
	s.lastActivity = now
}

// lock drops the seed. It waits for in-flight withSeed calls and reports
// whether the session was unlocked.
func (s *Session) lock() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.seed != nil
	s.seed = nil
	s.walletID = ""
	return was
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seed != nil && now.After(s.lastActivity) {
		s.lastActivity = now
	}
}

// idleSince reports the last activity if the session is unlocked.
func (s *Session) idleSince() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity, s.seed != nil
}

// withSeed runs fn with the decrypted seed. The seed buffer is destroyed
// when fn returns and must not be retained.
func (s *Session) withSeed(fn func(walletID string, seed []byte) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.seed == nil {
		return ErrLocked
	}
	buf, err := s.seed.Open()
	if err != nil {
		return fmt.Errorf("opening seed enclave: %w", err)
	}
	defer buf.Destroy()
	return fn(s.walletID, buf.Bytes())
}
