// Package approval holds requests that need an explicit decision from the
// wallet user, such as a site asking to connect or to sign, until the
// wallet UI approves or rejects them.
package approval

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jmcleod/ironwallet/internal/uuid"
)

// DefaultTimeout is how long a request waits for a decision. It is shorter
// than a page's own request timeout so the page hears the expiry.
const DefaultTimeout = 50 * time.Second

var (
	// ErrRejected is returned when the user rejects a request.
	ErrRejected = errors.New("rejected")
	// ErrExpired is returned when no decision is made in time.
	ErrExpired = errors.New("approval expired")
	// ErrNotFound is returned when resolving an unknown or already settled request.
	ErrNotFound = errors.New("approval not found")
)

// Kind names what is being approved.
type Kind string

const (
	KindConnect        Kind = "connect"
	KindSignMessage    Kind = "sign_message"
	KindSignFields     Kind = "sign_fields"
	KindSendPayment    Kind = "send_payment"
	KindSendDelegation Kind = "send_delegation"
)

// Request is one item awaiting a decision.
type Request struct {
	ID        string            `json:"id"`
	Kind      Kind              `json:"kind"`
	Origin    string            `json:"origin"`
	SiteName  string            `json:"siteName,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

type item struct {
	req     Request
	done    chan struct{}
	err     error
	waiters int // callers blocked in Request; guarded by Queue.mu
}

// Queue is an in-memory set of pending approvals.
type Queue struct {
	timeout  time.Duration
	logger   *slog.Logger
	onNotify func(Request)

	mu      sync.Mutex
	pending map[string]*item
}

// Option configures a Queue.
type Option func(*Queue)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(q *Queue) {
		q.timeout = d
	}
}

// WithLogger sets the queue's logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = l
	}
}

// WithNotify registers a callback run whenever a new request is queued,
// for example to open the wallet UI.
func WithNotify(fn func(Request)) Option {
	return func(q *Queue) {
		q.onNotify = fn
	}
}

// NewQueue creates an empty Queue.
func NewQueue(opts ...Option) *Queue {
	q := &Queue{
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		pending: make(map[string]*item),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = q.logger.With("component", "approval")
	return q
}

// Request queues req and blocks until it is approved (nil), rejected
// (ErrRejected), expires (ErrExpired) or ctx ends. A connect request from an
// origin that already has one pending waits on the existing request. When
// the last caller waiting on a request gives up, the request is withdrawn.
func (q *Queue) Request(ctx context.Context, req Request) error {
	it, created := q.enqueue(req)
	if created && q.onNotify != nil {
		q.onNotify(it.req)
	}

	timer := time.NewTimer(time.Until(it.req.ExpiresAt))
	defer timer.Stop()

	select {
	case <-it.done:
		return it.err
	case <-timer.C:
		q.settle(it.req.ID, ErrExpired)
		<-it.done
		return it.err
	case <-ctx.Done():
		q.leave(it, ctx.Err())
		return ctx.Err()
	}
}

// leave drops one waiter from it and withdraws the request once nobody is
// left to receive the decision.
func (q *Queue) leave(it *item, err error) {
	q.mu.Lock()
	it.waiters--
	withdrawn := it.waiters == 0 && q.pending[it.req.ID] == it
	if withdrawn {
		delete(q.pending, it.req.ID)
	}
	q.mu.Unlock()
	if withdrawn {
		it.err = err
		close(it.done)
		q.logger.Info("approval withdrawn", "id", it.req.ID, "kind", it.req.Kind, "origin", it.req.Origin)
	}
}

func (q *Queue) enqueue(req Request) (*item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if req.Kind == KindConnect {
		for _, it := range q.pending {
			if it.req.Kind == KindConnect && it.req.Origin == req.Origin {
				it.waiters++
				return it, false
			}
		}
	}

	now := time.Now()
	req.ID = uuid.New()
	req.CreatedAt = now
	req.ExpiresAt = now.Add(q.timeout)
	it := &item{req: req, done: make(chan struct{}), waiters: 1}
	q.pending[req.ID] = it
	q.logger.Info("approval requested", "id", req.ID, "kind", req.Kind, "origin", req.Origin)
	return it, true
}

// Pending lists requests awaiting a decision, oldest first.
func (q *Queue) Pending() []Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Request, 0, len(q.pending))
	for _, it := range q.pending {
		out = append(out, it.req)
	}
	slices.SortFunc(out, func(a, b Request) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

// Resolve approves or rejects a pending request.
func (q *Queue) Resolve(id string, approve bool) error {
	var err error
	if !approve {
		err = ErrRejected
	}
	if !q.settle(id, err) {
		return ErrNotFound
	}
	q.logger.Info("approval resolved", "id", id, "approved", approve)
	return nil
}

// RejectAll rejects every pending request, e.g. when the wallet locks.
func (q *Queue) RejectAll() {
	q.mu.Lock()
	ids := make([]string, 0, len(q.pending))
	for id := range q.pending {
		ids = append(ids, id)
	}
	q.mu.Unlock()
	for _, id := range ids {
		q.settle(id, ErrRejected)
	}
}

func (q *Queue) settle(id string, err error) bool {
	q.mu.Lock()
	it, ok := q.pending[id]
	if ok {
		delete(q.pending, id)
	}
	q.mu.Unlock()
	if !ok {
		return false
	}
	it.err = err
	close(it.done)
	return true
}
