package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmcleod/ironwallet/storage"
)

func balanceKey(network, address string) string {
	return network + ":" + address
}

// Balance returns address's balance on the active network. A live fetch is
// tried first when a BalanceFetcher is configured; on failure, or without a
// fetcher, the cached value is used, and "0" when nothing is cached.
// Concurrent lookups of the same address share one fetch.
func (c *Core) Balance(ctx context.Context, address string) (string, error) {
	network, err := c.ActiveNetwork(ctx)
	if err != nil {
		return "", err
	}
	key := balanceKey(network.ID, address)

	if c.fetcher != nil {
		v, err, _ := c.balanceGroup.Do(key, func() (any, error) {
			amount, err := c.fetcher.FetchBalance(ctx, network, address)
			if err != nil {
				return nil, err
			}
			entry := balanceEntry{Balance: amount.String(), UpdatedAt: c.now()}
			if err := c.cacheBalance(key, entry); err != nil {
				c.logger.Warn("caching balance", "error", err)
			}
			return entry.Balance, nil
		})
		if err == nil {
			return v.(string), nil
		}
		c.logger.Warn("fetching balance failed, using cache", "network", network.ID, "error", err)
	}

	entry, err := c.cachedBalance(key)
	if errors.Is(err, storage.ErrNotFound) {
		return "0", nil
	}
	if err != nil {
		return "", err
	}
	return entry.Balance, nil
}

func (c *Core) cacheBalance(key string, entry balanceEntry) error {
	rec, err := storage.NewRecord(entry, 1)
	if err != nil {
		return err
	}
	return c.repo.Put(c.namespace, recordTypeBalance, key, rec)
}

func (c *Core) cachedBalance(key string) (balanceEntry, error) {
	var entry balanceEntry
	rec, err := c.repo.Get(c.namespace, recordTypeBalance, key)
	if err != nil {
		return entry, err
	}
	if err := rec.Decode(&entry); err != nil {
		return entry, fmt.Errorf("decoding cached balance: %w", err)
	}
	return entry, nil
}
