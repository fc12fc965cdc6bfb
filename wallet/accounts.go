package wallet

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	icrypto "github.com/jmcleod/ironwallet/internal/crypto"
	"github.com/jmcleod/ironwallet/internal/util"
	"github.com/jmcleod/ironwallet/keys"
)

// requireUnlocked gates an operation on the session, applying the
// inactivity timeout first. A successful check counts as activity.
func (c *Core) requireUnlocked(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.expireIdle(ctx)
	if c.IsLocked() {
		return ErrLocked
	}
	c.session.touch(c.now())
	return nil
}

// ListAccounts returns every account in index order.
func (c *Core) ListAccounts(ctx context.Context) ([]Account, error) {
	w, err := c.loadWallet(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Account, 0, len(w.Accounts))
	for _, a := range w.Accounts {
		out = append(out, w.view(a))
	}
	slices.SortFunc(out, func(a, b Account) int { return cmp.Compare(a.Index, b.Index) })
	return out, nil
}

// GetActiveAccount returns the account selected by the active pointer.
func (c *Core) GetActiveAccount(ctx context.Context) (*Account, error) {
	w, err := c.loadWallet(ctx)
	if err != nil {
		return nil, err
	}
	_, a := w.account(w.ActiveIndex)
	if a == nil {
		return nil, ErrAccountNotFound
	}
	acct := w.view(*a)
	return &acct, nil
}

// CreateAccount derives the next HD account. Indices are allocated from a
// counter stored in the wallet record and are never reused.
func (c *Core) CreateAccount(ctx context.Context, name string) (*Account, error) {
	if name != "" {
		if err := validateName(name, "account name"); err != nil {
			return nil, err
		}
	}
	if err := c.requireUnlocked(ctx); err != nil {
		return nil, err
	}
	caps, err := c.keys.Ensure(ctx)
	if err != nil {
		return nil, err
	}

	var created accountRecord
	w, err := c.updateWallet(ctx, func(w *encryptedWallet) error {
		return c.session.withSeed(func(walletID string, seed []byte) error {
			if walletID != w.ID {
				return ErrLocked
			}
			index := w.NextIndex
			kp, err := caps.Derive(seed, index)
			if err != nil {
				return err
			}
			defer kp.Destroy()

			created = accountRecord{
				Index:     index,
				Name:      name,
				Address:   kp.Address(),
				PublicKey: kp.PublicKeyHex(),
				Kind:      AccountDerived,
				CreatedAt: c.now(),
			}
			if created.Name == "" {
				created.Name = fmt.Sprintf("Account %d", index+1)
			}
			w.Accounts = append(w.Accounts, created)
			w.NextIndex++
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	c.audit.log(ctx, AuditAccountCreated, slog.Uint64("index", uint64(created.Index)), slog.String("address", created.Address))
	acct := w.view(created)
	return &acct, nil
}

// ImportAccount adds an account from an EK-encoded secret key. The key is
// stored sealed under a key derived from the wallet seed.
func (c *Core) ImportAccount(ctx context.Context, name, secretKey string) (*Account, error) {
	if name != "" {
		if err := validateName(name, "account name"); err != nil {
			return nil, err
		}
	}
	if err := c.requireUnlocked(ctx); err != nil {
		return nil, err
	}
	caps, err := c.keys.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	kp, err := caps.FromSecretKey(secretKey)
	if err != nil {
		return nil, validationErrorf("invalid secret key")
	}
	defer kp.Destroy()
	address := kp.Address()

	var created accountRecord
	w, err := c.updateWallet(ctx, func(w *encryptedWallet) error {
		if slices.ContainsFunc(w.Accounts, func(a accountRecord) bool { return a.Address == address }) {
			return validationErrorf("account %s already exists", address)
		}
		return c.session.withSeed(func(walletID string, seed []byte) error {
			if walletID != w.ID {
				return ErrLocked
			}
			index := w.NextIndex
			importKey, err := icrypto.DeriveImportKey(seed, w.ID)
			if err != nil {
				return err
			}
			defer util.WipeBytes(importKey)

			secret := []byte(kp.SecretKey())
			defer util.WipeBytes(secret)
			sealed, err := icrypto.Seal(importKey, secret, icrypto.AADImportedKey(w.ID, index, walletRecordVer))
			if err != nil {
				return err
			}

			created = accountRecord{
				Index:     index,
				Name:      name,
				Address:   address,
				PublicKey: kp.PublicKeyHex(),
				Kind:      AccountImported,
				Sealed:    sealed,
				CreatedAt: c.now(),
			}
			if created.Name == "" {
				created.Name = fmt.Sprintf("Imported %d", index+1)
			}
			w.Accounts = append(w.Accounts, created)
			w.NextIndex++
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	c.audit.log(ctx, AuditAccountImported, slog.Uint64("index", uint64(created.Index)), slog.String("address", created.Address))
	acct := w.view(created)
	return &acct, nil
}

// RenameAccount changes an account's display name.
func (c *Core) RenameAccount(ctx context.Context, index uint32, name string) (*Account, error) {
	if err := validateName(name, "account name"); err != nil {
		return nil, err
	}
	var renamed accountRecord
	w, err := c.updateWallet(ctx, func(w *encryptedWallet) error {
		_, a := w.account(index)
		if a == nil {
			return ErrAccountNotFound
		}
		a.Name = name
		renamed = *a
		return nil
	})
	if err != nil {
		return nil, err
	}
	acct := w.view(renamed)
	return &acct, nil
}

// RemoveAccount deletes an account. The last account cannot be removed.
// Removing the active account activates the lowest remaining index.
func (c *Core) RemoveAccount(ctx context.Context, index uint32) error {
	if err := c.requireUnlocked(ctx); err != nil {
		return err
	}
	_, err := c.updateWallet(ctx, func(w *encryptedWallet) error {
		i, a := w.account(index)
		if a == nil {
			return ErrAccountNotFound
		}
		if len(w.Accounts) == 1 {
			return ErrLastAccount
		}
		w.Accounts = slices.Delete(w.Accounts, i, i+1)
		if w.ActiveIndex == index {
			w.ActiveIndex = slices.MinFunc(w.Accounts, func(a, b accountRecord) int { return cmp.Compare(a.Index, b.Index) }).Index
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.audit.log(ctx, AuditAccountRemoved, slog.Uint64("index", uint64(index)))
	return nil
}

// SetActiveAccount moves the active pointer.
func (c *Core) SetActiveAccount(ctx context.Context, index uint32) (*Account, error) {
	var active accountRecord
	w, err := c.updateWallet(ctx, func(w *encryptedWallet) error {
		_, a := w.account(index)
		if a == nil {
			return ErrAccountNotFound
		}
		w.ActiveIndex = index
		active = *a
		return nil
	})
	if err != nil {
		return nil, err
	}
	acct := w.view(active)
	return &acct, nil
}

// ExportPrivateKey returns an account's EK-encoded secret key after
// re-verifying password.
func (c *Core) ExportPrivateKey(ctx context.Context, index uint32, password string) (string, error) {
	if err := c.requireUnlocked(ctx); err != nil {
		return "", err
	}
	w, err := c.loadWallet(ctx)
	if err != nil {
		return "", err
	}
	phrase, err := c.verifyPassword(ctx, w, password, "invalid password on key export")
	if err != nil {
		return "", err
	}
	util.WipeBytes(phrase)

	_, a := w.account(index)
	if a == nil {
		return "", ErrAccountNotFound
	}

	var secret string
	err = c.withKeypair(ctx, w, *a, func(kp *keys.Keypair) error {
		secret = kp.SecretKey()
		return nil
	})
	if err != nil {
		return "", err
	}
	c.audit.log(ctx, AuditPrivateKeyExported, slog.Uint64("index", uint64(index)), slog.String("address", a.Address))
	return secret, nil
}

// withKeypair materializes an account's keypair for the duration of fn.
func (c *Core) withKeypair(ctx context.Context, w *encryptedWallet, a accountRecord, fn func(kp *keys.Keypair) error) error {
	caps, err := c.keys.Ensure(ctx)
	if err != nil {
		return err
	}
	return c.session.withSeed(func(walletID string, seed []byte) error {
		if walletID != w.ID {
			return ErrLocked
		}
		kp, err := c.keypairFor(caps, w.ID, seed, a)
		if err != nil {
			return err
		}
		defer kp.Destroy()
		if kp.Address() != a.Address {
			return fmt.Errorf("account %d key does not match its address", a.Index)
		}
		return fn(kp)
	})
}

func (c *Core) keypairFor(caps keys.Capability, walletID string, seed []byte, a accountRecord) (*keys.Keypair, error) {
	switch a.Kind {
	case AccountDerived:
		return caps.Derive(seed, a.Index)
	case AccountImported:
		importKey, err := icrypto.DeriveImportKey(seed, walletID)
		if err != nil {
			return nil, err
		}
		defer util.WipeBytes(importKey)
		secret, err := icrypto.Open(importKey, a.Sealed, icrypto.AADImportedKey(walletID, a.Index, walletRecordVer))
		if err != nil {
			return nil, fmt.Errorf("opening imported key %d: %w", a.Index, err)
		}
		defer util.WipeBytes(secret)
		return caps.FromSecretKey(string(secret))
	default:
		return nil, fmt.Errorf("account %d has unknown kind %q", a.Index, a.Kind)
	}
}

// withActiveKeypair runs fn with the active account and its keypair.
func (c *Core) withActiveKeypair(ctx context.Context, fn func(acct Account, kp *keys.Keypair) error) error {
	w, err := c.loadWallet(ctx)
	if err != nil {
		return err
	}
	_, a := w.account(w.ActiveIndex)
	if a == nil {
		return ErrAccountNotFound
	}
	acct := w.view(*a)
	return c.withKeypair(ctx, w, *a, func(kp *keys.Keypair) error {
		return fn(acct, kp)
	})
}
