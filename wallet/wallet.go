package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/sync/singleflight"

	icrypto "github.com/jmcleod/ironwallet/internal/crypto"
	"github.com/jmcleod/ironwallet/internal/ratelimit"
	"github.com/jmcleod/ironwallet/internal/util"
	"github.com/jmcleod/ironwallet/internal/uuid"
	"github.com/jmcleod/ironwallet/keys"
	"github.com/jmcleod/ironwallet/storage"
)

// DefaultNamespace is the storage namespace used unless WithNamespace is given.
const DefaultNamespace = "wallet"

// Core is the privileged wallet service. All methods are safe for concurrent use.
type Core struct {
	repo        storage.Repository
	namespace   string
	keys        *keys.Lazy
	approver    Approver
	fetcher     BalanceFetcher
	broadcaster Broadcaster
	kdfParams   Argon2idParams
	alertFn     AlertFunc
	now         func() time.Time
	logger      *slog.Logger
	audit       *auditLogger
	limiter     *ratelimit.Backoff
	session     *Session

	balanceGroup singleflight.Group

	// mu serializes every read-modify-write of persisted records and every
	// session transition.
	mu sync.Mutex
}

// New creates a Core over repo. The session starts locked regardless of
// what is stored.
func New(repo storage.Repository, opts ...Option) *Core {
	c := &Core{
		repo:      repo,
		namespace: DefaultNamespace,
		kdfParams: util.DefaultArgon2idParams(),
		now:       time.Now,
		logger:    slog.Default(),
		session:   NewSession(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "wallet")
	if c.keys == nil {
		c.keys = keys.NewLazy(keys.LoadModule)
	}
	if c.approver == nil {
		c.approver = defaultApprover(c.logger)
	}
	c.audit = newAuditLogger(c.logger, newMetricsCollector(c.alertFn))
	c.limiter = newUnlockLimiter(c.now)
	return c
}

// Session exposes the core's session state.
func (c *Core) Session() *Session {
	return c.session
}

// IsLocked reports whether the session is locked.
func (c *Core) IsLocked() bool {
	return c.session.State() == StateLocked
}

// HasWallet reports whether a wallet has been created or imported.
func (c *Core) HasWallet(ctx context.Context) (bool, error) {
	_, err := c.loadWallet(ctx)
	if errors.Is(err, ErrWalletNotFound) {
		return false, nil
	}
	return err == nil, err
}

// GenerateMnemonic returns a new BIP-39 phrase of 12 or 24 words.
func GenerateMnemonic(words int) (string, error) {
	var bits int
	switch words {
	case 12:
		bits = 128
	case 24:
		bits = 256
	default:
		return "", validationErrorf("mnemonic must have 12 or 24 words, got %d", words)
	}
	entropy, err := bip39.NewEntropy(bits)
	if err != nil {
		return "", fmt.Errorf("generating entropy: %w", err)
	}
	defer util.WipeBytes(entropy)
	return bip39.NewMnemonic(entropy)
}

func normalizeMnemonic(m string) string {
	return strings.Join(strings.Fields(strings.ToLower(util.Normalize(m))), " ")
}

// CreateWallet creates a wallet from a freshly generated mnemonic and
// unlocks it. It fails with ErrWalletExists if a wallet is already stored.
func (c *Core) CreateWallet(ctx context.Context, mnemonic, password string) (*Account, error) {
	return c.initWallet(ctx, mnemonic, password, AuditWalletCreated)
}

// ImportWallet restores a wallet from an existing mnemonic and unlocks it.
// Like CreateWallet it never overwrites; use ResetWallet first.
func (c *Core) ImportWallet(ctx context.Context, mnemonic, password string) (*Account, error) {
	return c.initWallet(ctx, mnemonic, password, AuditWalletImported)
}

func (c *Core) initWallet(ctx context.Context, mnemonic, password string, event AuditEvent) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	mnemonic = normalizeMnemonic(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, validationErrorf("invalid mnemonic")
	}
	caps, err := c.keys.Ensure(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.loadWallet(ctx); err == nil {
		return nil, ErrWalletExists
	} else if !errors.Is(err, ErrWalletNotFound) {
		return nil, err
	}

	walletID := uuid.New()
	salt, err := util.RandomBytes(saltLength)
	if err != nil {
		return nil, err
	}
	kek, err := icrypto.DeriveKEK([]byte(password), salt, c.kdfParams)
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(kek)

	phrase := []byte(mnemonic)
	defer util.WipeBytes(phrase)
	sealed, err := icrypto.Seal(kek, phrase, icrypto.AADSeed(walletID, walletRecordVer))
	if err != nil {
		return nil, err
	}

	seed := bip39.NewSeed(mnemonic, "")
	kp, err := caps.Derive(seed, 0)
	if err != nil {
		util.WipeBytes(seed)
		return nil, err
	}
	defer kp.Destroy()

	now := c.now()
	w := encryptedWallet{
		ID:        walletID,
		Ver:       walletRecordVer,
		KDFParams: c.kdfParams,
		Salt:      salt,
		Mnemonic:  *sealed,
		Accounts: []accountRecord{{
			Index:     0,
			Name:      "Account 1",
			Address:   kp.Address(),
			PublicKey: kp.PublicKeyHex(),
			Kind:      AccountDerived,
			CreatedAt: now,
		}},
		ActiveIndex: 0,
		NextIndex:   1,
		CreatedAt:   now,
	}
	rec, err := storage.NewRecord(&w, 1)
	if err != nil {
		util.WipeBytes(seed)
		return nil, err
	}
	if err := c.repo.PutCAS(c.namespace, recordTypeWallet, recordIDCurrent, 0, rec); err != nil {
		util.WipeBytes(seed)
		if errors.Is(err, storage.ErrCASFailed) {
			return nil, ErrWalletExists
		}
		return nil, fmt.Errorf("creating wallet: %w", err)
	}

	c.session.unlock(walletID, seed, now)
	c.audit.log(ctx, event, slog.String("wallet_id", walletID))

	acct := w.view(w.Accounts[0])
	return &acct, nil
}

// openMnemonic verifies password against the stored wallet and returns the
// decrypted mnemonic. The caller wipes it.
func (c *Core) openMnemonic(w *encryptedWallet, password string) ([]byte, error) {
	kek, err := icrypto.DeriveKEK([]byte(password), w.Salt, w.KDFParams)
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(kek)
	phrase, err := icrypto.Open(kek, &w.Mnemonic, icrypto.AADSeed(w.ID, w.Ver))
	if err != nil {
		return nil, ErrInvalidPassword
	}
	return phrase, nil
}

// UnlockWallet verifies password and loads the seed into the session.
func (c *Core) UnlockWallet(ctx context.Context, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w, err := c.loadWallet(ctx)
	if err != nil {
		return err
	}
	phrase, err := c.verifyPassword(ctx, w, password, "invalid password")
	if err != nil {
		return err
	}
	seed := bip39.NewSeed(string(phrase), "")
	util.WipeBytes(phrase)

	c.mu.Lock()
	// The wallet may have been reset or replaced while the password was
	// being checked.
	if err := c.sameWallet(ctx, w.ID); err != nil {
		c.mu.Unlock()
		util.WipeBytes(seed)
		return err
	}
	c.session.unlock(w.ID, seed, c.now())
	c.mu.Unlock()

	c.audit.log(ctx, AuditUnlockSuccess, slog.String("wallet_id", w.ID))
	return nil
}

// sameWallet reports ErrWalletNotFound unless the stored wallet is still
// walletID. The caller holds c.mu.
func (c *Core) sameWallet(ctx context.Context, walletID string) error {
	cur, err := c.loadWallet(ctx)
	if err != nil {
		return err
	}
	if cur.ID != walletID {
		return ErrWalletNotFound
	}
	return nil
}

// LockWallet discards the decrypted seed and rejects pending approvals.
func (c *Core) LockWallet(ctx context.Context) {
	c.lock(ctx, AuditLock)
}

func (c *Core) lock(ctx context.Context, event AuditEvent) bool {
	c.mu.Lock()
	was := c.session.lock()
	c.mu.Unlock()
	if was {
		c.approver.RejectAll()
		c.audit.log(ctx, event)
	}
	return was
}

// ResetWallet deletes the wallet and every connected site after verifying
// password. The session is locked afterwards.
func (c *Core) ResetWallet(ctx context.Context, password string) error {
	w, err := c.loadWallet(ctx)
	if err != nil {
		return err
	}
	phrase, err := c.verifyPassword(ctx, w, password, "invalid password on reset")
	if err != nil {
		return err
	}
	util.WipeBytes(phrase)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.sameWallet(ctx, w.ID); err != nil {
		return err
	}
	// Locking and deleting under one critical section keeps a concurrent
	// unlock from landing between the two.
	if c.session.lock() {
		c.approver.RejectAll()
		c.audit.log(ctx, AuditLock)
	}
	stale := map[string][]string{}
	for _, typ := range []string{recordTypeSite, recordTypeBalance} {
		ids, err := c.repo.List(c.namespace, typ)
		if err != nil {
			return fmt.Errorf("resetting wallet: %w", err)
		}
		stale[typ] = ids
	}
	err = c.repo.Batch(c.namespace, func(tx storage.BatchTx) error {
		if err := tx.Delete(recordTypeWallet, recordIDCurrent); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		for typ, ids := range stale {
			for _, id := range ids {
				if err := tx.Delete(typ, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("resetting wallet: %w", err)
	}
	c.limiter.Reset(w.ID)
	c.audit.log(ctx, AuditWalletReset, slog.String("wallet_id", w.ID))
	return nil
}
