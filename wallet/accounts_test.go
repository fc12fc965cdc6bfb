package wallet

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tyler-smith/go-bip39"

	"github.com/jmcleod/ironwallet/keys"
)

func TestCreateAccountDerivesNextIndex(t *testing.T) {
	ctx := t.Context()
	c := newUnlockedCore(t)

	second, err := c.CreateAccount(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), second.Index)
	assert.Equal(t, "Account 2", second.Name)
	assert.Equal(t, AccountDerived, second.Kind)

	kp, err := keys.Derive(bip39.NewSeed(testMnemonic, ""), 1)
	require.NoError(t, err)
	defer kp.Destroy()
	assert.Equal(t, kp.Address(), second.Address)

	named, err := c.CreateAccount(ctx, "Savings")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), named.Index)
	assert.Equal(t, "Savings", named.Name)

	accounts, err := c.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 3)
	for i, a := range accounts {
		assert.Equal(t, uint32(i), a.Index)
	}
}

func TestConcurrentCreateAccountUniqueIndices(t *testing.T) {
	ctx := t.Context()
	c := newUnlockedCore(t)

	const n = 12
	var wg sync.WaitGroup
	results := make([]*Account, n)
	errs := make([]error, n)
	for i := range n {
		wg.Go(func() {
			results[i], errs[i] = c.CreateAccount(ctx, "")
		})
	}
	wg.Wait()

	seen := map[uint32]bool{0: true}
	addrs := map[string]bool{}
	for i := range n {
		require.NoError(t, errs[i])
		assert.False(t, seen[results[i].Index], "index %d assigned twice", results[i].Index)
		seen[results[i].Index] = true
		addrs[results[i].Address] = true
	}
	assert.Len(t, addrs, n)

	accounts, err := c.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, n+1)
}

func TestGatedOperationsFailWhileLocked(t *testing.T) {
	ctx := t.Context()
	c := newUnlockedCore(t)
	secret := generatedSecret(t)
	c.LockWallet(ctx)

	_, err := c.CreateAccount(ctx, "")
	assert.ErrorIs(t, err, ErrLocked)
	_, err = c.ImportAccount(ctx, "", secret)
	assert.ErrorIs(t, err, ErrLocked)
	assert.ErrorIs(t, c.RemoveAccount(ctx, 0), ErrLocked)
	_, err = c.ExportPrivateKey(ctx, 0, testPassword)
	assert.ErrorIs(t, err, ErrLocked)
	_, err = c.ConnectSite(ctx, "https://app.example", "")
	assert.ErrorIs(t, err, ErrLocked)

	// Listing stays available for the UI while locked.
	accounts, err := c.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func generatedSecret(t *testing.T) string {
	t.Helper()
	kp, err := keys.Generate()
	require.NoError(t, err)
	defer kp.Destroy()
	return kp.SecretKey()
}

func TestImportAccount(t *testing.T) {
	ctx := t.Context()
	c := newUnlockedCore(t)

	kp, err := keys.Generate()
	require.NoError(t, err)
	defer kp.Destroy()

	imported, err := c.ImportAccount(ctx, "Cold", kp.SecretKey())
	require.NoError(t, err)
	assert.Equal(t, kp.Address(), imported.Address)
	assert.Equal(t, AccountImported, imported.Kind)
	assert.Equal(t, uint32(1), imported.Index)

	_, err = c.ImportAccount(ctx, "", kp.SecretKey())
	assert.True(t, IsValidation(err), "duplicate import is rejected")

	_, err = c.ImportAccount(ctx, "", "EKnotakey")
	assert.True(t, IsValidation(err))

	// Imported and derived accounts share one index space.
	next, err := c.CreateAccount(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), next.Index)

	// The sealed key survives a lock cycle.
	c.LockWallet(ctx)
	require.NoError(t, c.UnlockWallet(ctx, testPassword))
	exported, err := c.ExportPrivateKey(ctx, imported.Index, testPassword)
	require.NoError(t, err)
	assert.Equal(t, kp.SecretKey(), exported)
}

func TestRenameAccount(t *testing.T) {
	ctx := t.Context()
	c := newUnlockedCore(t)

	renamed, err := c.RenameAccount(ctx, 0, "Main")
	require.NoError(t, err)
	assert.Equal(t, "Main", renamed.Name)

	_, err = c.RenameAccount(ctx, 0, "   ")
	assert.True(t, IsValidation(err))
	_, err = c.RenameAccount(ctx, 9, "Nope")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestRemoveAccount(t *testing.T) {
	ctx := t.Context()
	c := newUnlockedCore(t)

	assert.ErrorIs(t, c.RemoveAccount(ctx, 0), ErrLastAccount)

	second, err := c.CreateAccount(ctx, "")
	require.NoError(t, err)
	third, err := c.CreateAccount(ctx, "")
	require.NoError(t, err)

	_, err = c.SetActiveAccount(ctx, third.Index)
	require.NoError(t, err)
	require.NoError(t, c.RemoveAccount(ctx, third.Index))

	active, err := c.GetActiveAccount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), active.Index, "lowest remaining index becomes active")

	assert.ErrorIs(t, c.RemoveAccount(ctx, third.Index), ErrAccountNotFound)

	// Removed indices are never reused.
	fourth, err := c.CreateAccount(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, third.Index+1, fourth.Index)
	assert.NotEqual(t, second.Index, fourth.Index)
}

func TestSetActiveAccount(t *testing.T) {
	ctx := t.Context()
	c := newUnlockedCore(t)
	second, err := c.CreateAccount(ctx, "")
	require.NoError(t, err)

	active, err := c.SetActiveAccount(ctx, second.Index)
	require.NoError(t, err)
	assert.True(t, active.Active)

	accounts, err := c.ListAccounts(ctx)
	require.NoError(t, err)
	assert.False(t, accounts[0].Active)
	assert.True(t, accounts[1].Active)

	_, err = c.SetActiveAccount(ctx, 42)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestExportPrivateKey(t *testing.T) {
	ctx := t.Context()
	var alerts []AlertEvent
	c := newUnlockedCore(t, WithAlertFunc(func(e AlertEvent) { alerts = append(alerts, e) }))

	_, err := c.ExportPrivateKey(ctx, 0, "wrong password")
	assert.ErrorIs(t, err, ErrInvalidPassword)

	secret, err := c.ExportPrivateKey(ctx, 0, testPassword)
	require.NoError(t, err)
	assert.True(t, keys.ValidateSecretKey(secret))

	addr, err := keys.SecretKeyToAddress(secret)
	require.NoError(t, err)
	active, err := c.GetActiveAccount(ctx)
	require.NoError(t, err)
	assert.Equal(t, active.Address, addr)

	_, err = c.ExportPrivateKey(ctx, 5, testPassword)
	assert.ErrorIs(t, err, ErrAccountNotFound)

	for range defaultExportThreshold - 1 {
		_, err := c.ExportPrivateKey(ctx, 0, testPassword)
		require.NoError(t, err)
	}
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertKeyExportSpike, alerts[0].Type)
}
