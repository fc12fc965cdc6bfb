package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmcleod/ironwallet/storage"
)

// loadWallet reads the wallet record.
func (c *Core) loadWallet(ctx context.Context) (*encryptedWallet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := c.repo.Get(c.namespace, recordTypeWallet, recordIDCurrent)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading wallet: %w", err)
	}
	var w encryptedWallet
	if err := rec.Decode(&w); err != nil {
		return nil, fmt.Errorf("loading wallet: %w", err)
	}
	return &w, nil
}

// updateWallet is the only way the wallet record changes after creation:
// read the whole record, apply fn, write the whole record back. Callers are
// serialized by c.mu and the write is version-checked so no update is lost.
func (c *Core) updateWallet(ctx context.Context, fn func(w *encryptedWallet) error) (*encryptedWallet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var out *encryptedWallet
	err := c.repo.Batch(c.namespace, func(tx storage.BatchTx) error {
		rec, err := tx.Get(recordTypeWallet, recordIDCurrent)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrWalletNotFound
		}
		if err != nil {
			return err
		}
		var w encryptedWallet
		if err := rec.Decode(&w); err != nil {
			return err
		}
		if err := fn(&w); err != nil {
			return err
		}
		next, err := storage.NewRecord(&w, rec.Version+1)
		if err != nil {
			return err
		}
		if err := tx.PutCAS(recordTypeWallet, recordIDCurrent, rec.Version, next); err != nil {
			return fmt.Errorf("writing wallet: %w", err)
		}
		out = &w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Core) loadSettings(ctx context.Context) (settings, error) {
	s := settings{NetworkID: DefaultNetworkID, AutoLockMinutes: DefaultAutoLockMinutes}
	if err := ctx.Err(); err != nil {
		return s, err
	}
	rec, err := c.repo.Get(c.namespace, recordTypeSettings, recordIDCurrent)
	if errors.Is(err, storage.ErrNotFound) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("loading settings: %w", err)
	}
	if err := rec.Decode(&s); err != nil {
		return s, fmt.Errorf("loading settings: %w", err)
	}
	return s, nil
}

func (c *Core) updateSettings(ctx context.Context, fn func(s *settings) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.repo.Batch(c.namespace, func(tx storage.BatchTx) error {
		s := settings{NetworkID: DefaultNetworkID, AutoLockMinutes: DefaultAutoLockMinutes}
		var version uint64
		rec, err := tx.Get(recordTypeSettings, recordIDCurrent)
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			return err
		default:
			if err := rec.Decode(&s); err != nil {
				return err
			}
			version = rec.Version
		}
		if err := fn(&s); err != nil {
			return err
		}
		next, err := storage.NewRecord(&s, version+1)
		if err != nil {
			return err
		}
		return tx.PutCAS(recordTypeSettings, recordIDCurrent, version, next)
	})
}
