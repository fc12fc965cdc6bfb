package approval

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitPending polls until n requests are pending.
func waitPending(t *testing.T, q *Queue, n int) []Request {
	t.Helper()
	var pending []Request
	require.Eventually(t, func() bool {
		pending = q.Pending()
		return len(pending) == n
	}, time.Second, time.Millisecond)
	return pending
}

func TestApprove(t *testing.T) {
	var notified []Request
	q := NewQueue(WithNotify(func(r Request) { notified = append(notified, r) }))

	errCh := make(chan error, 1)
	go func() {
		errCh <- q.Request(t.Context(), Request{Kind: KindConnect, Origin: "https://a.example"})
	}()

	pending := waitPending(t, q, 1)
	assert.Equal(t, KindConnect, pending[0].Kind)
	assert.NotEmpty(t, pending[0].ID)
	assert.True(t, pending[0].ExpiresAt.After(pending[0].CreatedAt))

	require.NoError(t, q.Resolve(pending[0].ID, true))
	assert.NoError(t, <-errCh)
	assert.Empty(t, q.Pending())
	assert.Len(t, notified, 1)

	assert.ErrorIs(t, q.Resolve(pending[0].ID, true), ErrNotFound)
}

func TestReject(t *testing.T) {
	q := NewQueue()
	errCh := make(chan error, 1)
	go func() {
		errCh <- q.Request(t.Context(), Request{Kind: KindSignMessage, Origin: "https://a.example"})
	}()
	pending := waitPending(t, q, 1)
	require.NoError(t, q.Resolve(pending[0].ID, false))
	assert.ErrorIs(t, <-errCh, ErrRejected)
}

func TestExpire(t *testing.T) {
	q := NewQueue(WithTimeout(20 * time.Millisecond))
	err := q.Request(t.Context(), Request{Kind: KindConnect, Origin: "https://a.example"})
	assert.ErrorIs(t, err, ErrExpired)
	assert.Empty(t, q.Pending())
}

func TestContextCancel(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	err := q.Request(ctx, Request{Kind: KindConnect, Origin: "https://a.example"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, q.Pending(), "an abandoned request is withdrawn")
}

func TestCancelKeepsSharedRequestForRemainingWaiter(t *testing.T) {
	q := NewQueue()

	first, cancelFirst := context.WithCancel(t.Context())
	firstErr := make(chan error, 1)
	go func() {
		firstErr <- q.Request(first, Request{Kind: KindConnect, Origin: "https://a.example"})
	}()
	pending := waitPending(t, q, 1)

	secondErr := make(chan error, 1)
	go func() {
		secondErr <- q.Request(t.Context(), Request{Kind: KindConnect, Origin: "https://a.example"})
	}()
	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		it, ok := q.pending[pending[0].ID]
		return ok && it.waiters == 2
	}, time.Second, time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)
	assert.Len(t, q.Pending(), 1, "the other caller still waits on the decision")

	require.NoError(t, q.Resolve(pending[0].ID, true))
	assert.NoError(t, <-secondErr)
	assert.Empty(t, q.Pending())
}

func TestCancelledConnectDoesNotCaptureLaterRequests(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() {
		errCh <- q.Request(ctx, Request{Kind: KindConnect, Origin: "https://a.example"})
	}()
	stale := waitPending(t, q, 1)
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	go func() {
		errCh <- q.Request(t.Context(), Request{Kind: KindConnect, Origin: "https://a.example"})
	}()
	fresh := waitPending(t, q, 1)
	assert.NotEqual(t, stale[0].ID, fresh[0].ID)
	require.NoError(t, q.Resolve(fresh[0].ID, true))
	assert.NoError(t, <-errCh)
}

func TestDuplicateConnectSharesDecision(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	request := func(i int) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = q.Request(ctx, Request{Kind: KindConnect, Origin: "https://a.example"})
		}()
	}

	request(0)
	pending := waitPending(t, q, 1)
	request(1)
	// Give the second caller time to attach to the same request.
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, q.Pending(), 1)

	require.NoError(t, q.Resolve(pending[0].ID, true))
	wg.Wait()
	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
}

func TestRejectAll(t *testing.T) {
	q := NewQueue()
	errCh := make(chan error, 2)
	for _, origin := range []string{"https://a.example", "https://b.example"} {
		go func() {
			errCh <- q.Request(t.Context(), Request{Kind: KindConnect, Origin: origin})
		}()
	}
	waitPending(t, q, 2)
	q.RejectAll()
	assert.ErrorIs(t, <-errCh, ErrRejected)
	assert.ErrorIs(t, <-errCh, ErrRejected)
}
