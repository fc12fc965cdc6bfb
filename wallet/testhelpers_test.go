package wallet

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/ironwallet/approval"
	"github.com/jmcleod/ironwallet/internal/util"
	"github.com/jmcleod/ironwallet/storage"
	"github.com/jmcleod/ironwallet/storage/memory"
)

const (
	testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	testPassword = "correct horse battery"
)

func testOptions(t *testing.T) []Option {
	t.Helper()
	params, err := util.Argon2idProfile(util.KDFProfileInteractive)
	require.NoError(t, err)
	return []Option{
		WithKDFParams(params),
		WithLogger(slog.New(slog.DiscardHandler)),
	}
}

func newTestCoreWithRepo(t *testing.T, repo storage.Repository, opts ...Option) *Core {
	t.Helper()
	return New(repo, append(testOptions(t), opts...)...)
}

func newTestCore(t *testing.T, opts ...Option) *Core {
	t.Helper()
	return newTestCoreWithRepo(t, memory.NewRepository(), opts...)
}

// newUnlockedCore returns a core with a wallet created from testMnemonic.
func newUnlockedCore(t *testing.T, opts ...Option) *Core {
	t.Helper()
	c := newTestCore(t, opts...)
	_, err := c.CreateWallet(t.Context(), testMnemonic, testPassword)
	require.NoError(t, err)
	return c
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// fakeApprover answers every request with a fixed decision.
type fakeApprover struct {
	mu       sync.Mutex
	approve  bool
	requests []approval.Request
	rejected int
}

func (a *fakeApprover) Request(ctx context.Context, req approval.Request) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = append(a.requests, req)
	if !a.approve {
		return approval.ErrRejected
	}
	return nil
}

func (a *fakeApprover) Pending() []approval.Request { return nil }

func (a *fakeApprover) Resolve(string, bool) error { return approval.ErrNotFound }

func (a *fakeApprover) RejectAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejected++
}

func (a *fakeApprover) kinds() []approval.Kind {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]approval.Kind, 0, len(a.requests))
	for _, r := range a.requests {
		out = append(out, r.Kind)
	}
	return out
}

type fakeBroadcaster struct {
	mu   sync.Mutex
	sent []SignedTransaction
	err  error
}

func (b *fakeBroadcaster) Broadcast(_ context.Context, tx SignedTransaction) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return "", b.err
	}
	b.sent = append(b.sent, tx)
	return "CkpHash" + string(tx.Kind), nil
}

type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	balance decimal.Decimal
	err     error
}

func (f *fakeFetcher) FetchBalance(context.Context, Network, string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.balance, f.err
}

// hookRepo runs a one-shot hook right after the wallet record is read, to
// interleave another operation at that point.
type hookRepo struct {
	storage.Repository
	mu   sync.Mutex
	hook func()
}

func (r *hookRepo) onNextWalletRead(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = fn
}

func (r *hookRepo) Get(namespace, recordType, recordID string) (*storage.Record, error) {
	rec, err := r.Repository.Get(namespace, recordType, recordID)
	if recordType != recordTypeWallet {
		return rec, err
	}
	r.mu.Lock()
	hook := r.hook
	r.hook = nil
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
	return rec, err
}
