package wallet

import (
	"context"
	"time"
)

// DefaultAutoLockInterval is how often RunAutoLock checks for inactivity.
const DefaultAutoLockInterval = 15 * time.Second

// AutoLockMinutes returns the inactivity timeout. Zero disables auto-lock.
func (c *Core) AutoLockMinutes(ctx context.Context) (int, error) {
	s, err := c.loadSettings(ctx)
	if err != nil {
		return 0, err
	}
	return s.AutoLockMinutes, nil
}

// SetAutoLockMinutes sets the inactivity timeout, 0 to 1440 minutes.
func (c *Core) SetAutoLockMinutes(ctx context.Context, minutes int) error {
	if minutes < 0 || minutes > MaxAutoLockMinutes {
		return validationErrorf("auto-lock must be between 0 and %d minutes", MaxAutoLockMinutes)
	}
	return c.updateSettings(ctx, func(s *settings) error {
		s.AutoLockMinutes = minutes
		return nil
	})
}

// expireIdle locks the session if it has been idle past the timeout and
// reports whether it did.
func (c *Core) expireIdle(ctx context.Context) bool {
	last, unlocked := c.session.idleSince()
	if !unlocked {
		return false
	}
	s, err := c.loadSettings(ctx)
	if err != nil {
		c.logger.Warn("loading auto-lock setting", "error", err)
		return false
	}
	if s.AutoLockMinutes <= 0 {
		return false
	}
	if c.now().Sub(last) < time.Duration(s.AutoLockMinutes)*time.Minute {
		return false
	}
	return c.lock(ctx, AuditAutoLock)
}

// RunAutoLock enforces the inactivity timeout every interval and persists
// the last activity time until ctx is done.
func (c *Core) RunAutoLock(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultAutoLockInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var persisted time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if c.expireIdle(ctx) {
			c.logger.Info("wallet auto-locked")
		}
		last := c.session.LastActivity()
		if last.After(persisted) {
			err := c.updateSettings(ctx, func(s *settings) error {
				s.LastActivity = last
				return nil
			})
			if err != nil && ctx.Err() == nil {
				c.logger.Warn("persisting last activity", "error", err)
				continue
			}
			persisted = last
		}
	}
}
