package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/jmcleod/ironwallet/storage"
)

// ConnectSite records that origin may see the wallet's accounts. Connecting
// an origin again refreshes its name and timestamp.
func (c *Core) ConnectSite(ctx context.Context, origin, name string) (*ConnectedSite, error) {
	origin, err := normalizeOrigin(origin)
	if err != nil {
		return nil, err
	}
	name = sanitizeSiteName(name)
	if name == "" {
		name = sanitizeSiteName(strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://"))
	}
	if err := c.requireUnlocked(ctx); err != nil {
		return nil, err
	}

	site := &ConnectedSite{Origin: origin, Name: name, ConnectedAt: c.now()}
	rec, err := storage.NewRecord(site, 1)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	err = c.repo.Put(c.namespace, recordTypeSite, origin, rec)
	c.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("saving site: %w", err)
	}
	c.audit.logOrigin(ctx, AuditSiteConnected, origin)
	return site, nil
}

// DisconnectSite revokes origin's access.
func (c *Core) DisconnectSite(ctx context.Context, origin string) error {
	origin, err := normalizeOrigin(origin)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	err = c.repo.Delete(c.namespace, recordTypeSite, origin)
	c.mu.Unlock()
	if errors.Is(err, storage.ErrNotFound) {
		return ErrSiteNotFound
	}
	if err != nil {
		return fmt.Errorf("removing site: %w", err)
	}
	c.audit.logOrigin(ctx, AuditSiteDisconnected, origin)
	return nil
}

// IsConnected reports whether origin has a ConnectedSite entry. Malformed
// origins are never connected.
func (c *Core) IsConnected(ctx context.Context, origin string) (bool, error) {
	origin, err := normalizeOrigin(origin)
	if err != nil {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err = c.repo.Get(c.namespace, recordTypeSite, origin)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading site: %w", err)
	}
	return true, nil
}

// ConnectedSites lists every connected site ordered by origin.
func (c *Core) ConnectedSites(ctx context.Context) ([]ConnectedSite, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids, err := c.repo.List(c.namespace, recordTypeSite)
	if err != nil {
		return nil, fmt.Errorf("listing sites: %w", err)
	}
	sites := make([]ConnectedSite, 0, len(ids))
	for _, id := range ids {
		rec, err := c.repo.Get(c.namespace, recordTypeSite, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("loading site: %w", err)
		}
		var s ConnectedSite
		if err := rec.Decode(&s); err != nil {
			c.logger.Warn("skipping unreadable site record", "origin", id, "error", err)
			continue
		}
		sites = append(sites, s)
	}
	slices.SortFunc(sites, func(a, b ConnectedSite) int { return strings.Compare(a.Origin, b.Origin) })
	return sites, nil
}

func (c *Core) logConnectionRejected(ctx context.Context, origin string, err error) {
	c.audit.logOrigin(ctx, AuditConnectionRejected, origin, slog.String("reason", err.Error()))
}
