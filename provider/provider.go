// Package provider is the page-side wallet API. It posts requests onto the
// page's message channel, pairs each response with its request by
// correlation id, and fails requests that get no answer within the timeout.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmcleod/ironwallet/internal/uuid"
	"github.com/jmcleod/ironwallet/protocol"
	"github.com/jmcleod/ironwallet/window"
)

// DefaultTimeout bounds how long a request may stay pending.
const DefaultTimeout = 60 * time.Second

// ErrTimeout is returned when no response arrives within the timeout.
var ErrTimeout = errors.New(protocol.ErrMsgTimeout)

type reply struct {
	result json.RawMessage
	err    error
}

type pendingRequest struct {
	id        string
	method    protocol.Method
	createdAt time.Time
	done      chan reply
	timer     *time.Timer
}

// Provider issues wallet requests from a page.
type Provider struct {
	win     *window.Window
	timeout time.Duration
	logger  *slog.Logger
	events  *Emitter

	mu      sync.Mutex
	pending map[string]*pendingRequest

	connected    atomic.Bool
	accountsMu   sync.Mutex
	lastAccounts []string

	removeListener func()
}

// Option configures a Provider.
type Option func(*Provider)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
	}
}

// WithLogger sets the provider's logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = l
	}
}

// New attaches a Provider to win. Only messages posted by win's own scripts
// are considered, so frames cannot forge responses or readiness.
func New(win *window.Window, opts ...Option) *Provider {
	p := &Provider{
		win:     win,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		pending: make(map[string]*pendingRequest),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "provider")
	p.events = NewEmitter(p.logger)
	p.removeListener = win.AddListener(p.onMessage)
	return p
}

// Close detaches from the window and fails every pending request.
func (p *Provider) Close() {
	p.removeListener()
	p.mu.Lock()
	ids := make([]string, 0, len(p.pending))
	for id := range p.pending {
		ids = append(ids, id)
	}
	p.mu.Unlock()
	for _, id := range ids {
		p.settle(id, reply{err: errors.New("provider closed")})
	}
}

// On subscribes to a provider event.
func (p *Provider) On(event string, fn Handler) (off func()) {
	return p.events.On(event, fn)
}

// Connected reports whether requestAccounts has succeeded on this page. It is
// a convenience for the page, not an authorization check.
func (p *Provider) Connected() bool {
	return p.connected.Load()
}

// Pending returns the number of outstanding requests.
func (p *Provider) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Request sends method with params and waits for the matching response.
// The call returns the raw result, a *protocol.RemoteError for an error
// response, ErrTimeout, or ctx's error.
func (p *Provider) Request(ctx context.Context, method protocol.Method, params any) (json.RawMessage, error) {
	id := uuid.New()
	env, err := protocol.NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}

	pr := &pendingRequest{
		id:        id,
		method:    method,
		createdAt: time.Now(),
		done:      make(chan reply, 1),
	}
	p.mu.Lock()
	if _, exists := p.pending[id]; exists {
		p.mu.Unlock()
		return nil, fmt.Errorf("correlation id %s already pending", id)
	}
	p.pending[id] = pr
	pr.timer = time.AfterFunc(p.timeout, func() {
		if p.settle(id, reply{err: ErrTimeout}) {
			p.logger.Warn("request timed out", "id", id, "method", method, "elapsed", time.Since(pr.createdAt))
		}
	})
	p.mu.Unlock()

	p.win.PostMessage(p.win.Self(), env)

	select {
	case r := <-pr.done:
		return r.result, r.err
	case <-ctx.Done():
		if p.settle(id, reply{err: ctx.Err()}) {
			return nil, ctx.Err()
		}
		r := <-pr.done
		return r.result, r.err
	}
}

// settle resolves a pending request. Only the first caller for an id wins;
// later calls, and calls for unknown ids, return false and do nothing.
func (p *Provider) settle(id string, r reply) bool {
	p.mu.Lock()
	pr, ok := p.pending[id]
	if ok {
		delete(p.pending, id)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	if pr.timer != nil {
		pr.timer.Stop()
	}
	pr.done <- r
	return true
}

func (p *Provider) onMessage(msg window.Message) {
	if msg.Source != p.win.Self() {
		return
	}
	env, ok := msg.Data.(protocol.Envelope)
	if !ok {
		return
	}
	switch env.Type {
	case protocol.TypeReady:
		p.events.Emit(EventReady, nil)
	case protocol.TypeResponse:
		r := reply{result: env.Result}
		if env.Error != "" {
			r = reply{err: &protocol.RemoteError{Message: env.Error}}
		}
		if !p.settle(env.ID, r) {
			p.logger.Debug("dropping response for unknown request", "id", env.ID)
		}
	}
}

func (p *Provider) setAccounts(accounts []string) {
	if !p.connected.Swap(true) {
		p.events.Emit(EventConnect, accounts)
	}
	p.accountsMu.Lock()
	changed := !slices.Equal(p.lastAccounts, accounts)
	p.lastAccounts = slices.Clone(accounts)
	p.accountsMu.Unlock()
	if changed {
		p.events.Emit(EventAccountsChanged, accounts)
	}
}
