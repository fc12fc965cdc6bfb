package wallet

import (
	"log/slog"
	"time"

	"github.com/jmcleod/ironwallet/approval"
	"github.com/jmcleod/ironwallet/keys"
)

// Option configures a Core.
type Option func(*Core)

// WithLogger sets the logger. Audit events go to the same handler.
func WithLogger(l *slog.Logger) Option {
	return func(c *Core) {
		c.logger = l
	}
}

// WithKDFParams sets the Argon2id parameters for newly created wallets.
// Existing wallets keep the parameters they were sealed with.
func WithKDFParams(params Argon2idParams) Option {
	return func(c *Core) {
		c.kdfParams = params
	}
}

// WithKeys sets the signing capability.
func WithKeys(l *keys.Lazy) Option {
	return func(c *Core) {
		c.keys = l
	}
}

// WithApprover sets the approval collaborator. The default is an
// approval.Queue with its default timeout.
func WithApprover(a Approver) Option {
	return func(c *Core) {
		c.approver = a
	}
}

// WithBalanceFetcher sets the source of live balances for mina_getBalance.
func WithBalanceFetcher(f BalanceFetcher) Option {
	return func(c *Core) {
		c.fetcher = f
	}
}

// WithBroadcaster sets where signed transactions are submitted. Without one,
// send methods answer "not implemented".
func WithBroadcaster(b Broadcaster) Option {
	return func(c *Core) {
		c.broadcaster = b
	}
}

// WithAlertFunc registers a callback for anomaly alerts.
func WithAlertFunc(fn AlertFunc) Option {
	return func(c *Core) {
		c.alertFn = fn
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Core) {
		c.now = now
	}
}

// WithNamespace sets the storage namespace, so several cores can share one repository.
func WithNamespace(ns string) Option {
	return func(c *Core) {
		c.namespace = ns
	}
}

// defaultApprover is used when no Approver option is given.
func defaultApprover(logger *slog.Logger) Approver {
	return approval.NewQueue(approval.WithLogger(logger))
}
