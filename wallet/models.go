// Package wallet is the privileged wallet core. It owns the lock/unlock
// session, the encrypted wallet record, the registry of connected sites, and
// the two request surfaces: the external one for web pages, authorized by
// origin, and the internal one for the wallet's own UI.
package wallet

import (
	"slices"
	"time"

	icrypto "github.com/jmcleod/ironwallet/internal/crypto"
	"github.com/jmcleod/ironwallet/internal/util"
)

// Argon2idParams configures Argon2id key derivation.
type Argon2idParams = util.Argon2idParams

// AccountKind distinguishes seed-derived accounts from imported keys.
type AccountKind string

const (
	AccountDerived  AccountKind = "derived"
	AccountImported AccountKind = "imported"
)

// Account is the public view of one wallet identity. It never carries secret key material.
type Account struct {
	Index     uint32      `json:"index"`
	Name      string      `json:"name"`
	Address   string      `json:"address"`
	PublicKey string      `json:"publicKey"`
	Kind      AccountKind `json:"kind"`
	Active    bool        `json:"active"`
	CreatedAt time.Time   `json:"createdAt"`
}

// accountRecord is an Account as persisted. Imported accounts keep their
// secret key sealed under a key that only the unlocked seed can derive.
type accountRecord struct {
	Index     uint32                `json:"index"`
	Name      string                `json:"name"`
	Address   string                `json:"address"`
	PublicKey string                `json:"public_key"`
	Kind      AccountKind           `json:"kind"`
	Sealed    *icrypto.SealedSecret `json:"sealed,omitzero"`
	CreatedAt time.Time             `json:"created_at"`
}

// encryptedWallet is the durable root record. It is always rewritten whole.
type encryptedWallet struct {
	ID          string               `json:"id"`
	Ver         int                  `json:"ver"`
	KDFParams   Argon2idParams       `json:"kdf_params"`
	Salt        []byte               `json:"salt"`
	Mnemonic    icrypto.SealedSecret `json:"mnemonic"`
	Accounts    []accountRecord      `json:"accounts"`
	ActiveIndex uint32               `json:"active_index"`
	NextIndex   uint32               `json:"next_index"`
	CreatedAt   time.Time            `json:"created_at"`
}

func (w *encryptedWallet) account(index uint32) (int, *accountRecord) {
	i := slices.IndexFunc(w.Accounts, func(a accountRecord) bool { return a.Index == index })
	if i < 0 {
		return -1, nil
	}
	return i, &w.Accounts[i]
}

func (w *encryptedWallet) view(a accountRecord) Account {
	return Account{
		Index:     a.Index,
		Name:      a.Name,
		Address:   a.Address,
		PublicKey: a.PublicKey,
		Kind:      a.Kind,
		Active:    a.Index == w.ActiveIndex,
		CreatedAt: a.CreatedAt,
	}
}

// ConnectedSite is a durable grant of account access to one origin.
type ConnectedSite struct {
	Origin      string    `json:"origin"`
	Name        string    `json:"name"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// settings holds the wallet's persisted preferences.
type settings struct {
	NetworkID       string    `json:"network_id"`
	AutoLockMinutes int       `json:"auto_lock_minutes"`
	LastActivity    time.Time `json:"last_activity,omitzero"`
}

// balanceEntry is one cached balance.
type balanceEntry struct {
	Balance   string    `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validation constants.
const (
	MaxNameLength          = 64
	MinPasswordLength      = 8
	MaxPasswordLength      = 1024
	MaxMemoLength          = 32
	MaxSignFields          = 256
	MaxMessageLength       = 64 << 10
	DefaultAutoLockMinutes = 15
	MaxAutoLockMinutes     = 1440
	walletRecordVer        = 1
	saltLength             = 16
)

// Record types for storage.
const (
	recordTypeWallet   = "WALLET"
	recordTypeSite     = "SITE"
	recordTypeSettings = "SETTINGS"
	recordTypeBalance  = "BALANCE"
)

// Special record IDs.
const (
	recordIDCurrent = "current"
)
