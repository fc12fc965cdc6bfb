package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"runtime/debug"
	"slices"

	"github.com/jmcleod/ironwallet/approval"
	"github.com/jmcleod/ironwallet/internal/uuid"
	"github.com/jmcleod/ironwallet/protocol"
)

// InternalRequest is a message from the wallet's own UI. The set of
// implementations is closed; DecodeInternal is the only way to build one
// from the wire.
type InternalRequest interface {
	Action() string
	handle(ctx context.Context, c *Core) (any, error)
}

// Internal actions.
type (
	HasWalletRequest        struct{}
	IsLockedRequest         struct{}
	GenerateMnemonicRequest struct {
		Words int `json:"words,omitempty"`
	}
	CreateWalletRequest struct {
		Mnemonic string `json:"mnemonic"`
		Password string `json:"password"`
	}
	ImportWalletRequest struct {
		Mnemonic string `json:"mnemonic"`
		Password string `json:"password"`
	}
	UnlockWalletRequest struct {
		Password string `json:"password"`
	}
	LockWalletRequest  struct{}
	ResetWalletRequest struct {
		Password string `json:"password"`
	}
	GetAccountsRequest      struct{}
	GetActiveAccountRequest struct{}
	CreateAccountRequest    struct {
		Name string `json:"name,omitempty"`
	}
	ImportAccountRequest struct {
		Name      string `json:"name,omitempty"`
		SecretKey string `json:"secretKey"`
	}
	RenameAccountRequest struct {
		Index uint32 `json:"index"`
		Name  string `json:"name"`
	}
	RemoveAccountRequest struct {
		Index uint32 `json:"index"`
	}
	SetActiveAccountRequest struct {
		Index uint32 `json:"index"`
	}
	ExportPrivateKeyRequest struct {
		Index    uint32 `json:"index"`
		Password string `json:"password"`
	}
	GetNetworkRequest struct{}
	SetNetworkRequest struct {
		NetworkID string `json:"networkId"`
	}
	ListNetworksRequest      struct{}
	GetConnectedSitesRequest struct{}
	DisconnectSiteRequest    struct {
		Origin string `json:"origin"`
	}
	ListApprovalsRequest   struct{}
	ResolveApprovalRequest struct {
		ID      string `json:"id"`
		Approve bool   `json:"approve"`
	}
	GetReceiveQRRequest struct {
		Index uint32 `json:"index"`
	}
	GetAutoLockRequest struct{}
	SetAutoLockRequest struct {
		Minutes int `json:"minutes"`
	}
	GetBalanceRequest struct {
		Address string `json:"address"`
	}
	GetTransactionsRequest struct {
		Address string `json:"address"`
	}
	BuildTransactionRequest struct {
		To     string `json:"to"`
		Amount string `json:"amount"`
		Fee    string `json:"fee"`
		Memo   string `json:"memo,omitempty"`
	}
)

var internalActions = map[string]func() InternalRequest{
	"hasWallet":         func() InternalRequest { return &HasWalletRequest{} },
	"isLocked":          func() InternalRequest { return &IsLockedRequest{} },
	"generateMnemonic":  func() InternalRequest { return &GenerateMnemonicRequest{} },
	"createWallet":      func() InternalRequest { return &CreateWalletRequest{} },
	"importWallet":      func() InternalRequest { return &ImportWalletRequest{} },
	"unlockWallet":      func() InternalRequest { return &UnlockWalletRequest{} },
	"lockWallet":        func() InternalRequest { return &LockWalletRequest{} },
	"resetWallet":       func() InternalRequest { return &ResetWalletRequest{} },
	"getAccounts":       func() InternalRequest { return &GetAccountsRequest{} },
	"getActiveAccount":  func() InternalRequest { return &GetActiveAccountRequest{} },
	"createAccount":     func() InternalRequest { return &CreateAccountRequest{} },
	"importAccount":     func() InternalRequest { return &ImportAccountRequest{} },
	"renameAccount":     func() InternalRequest { return &RenameAccountRequest{} },
	"removeAccount":     func() InternalRequest { return &RemoveAccountRequest{} },
	"setActiveAccount":  func() InternalRequest { return &SetActiveAccountRequest{} },
	"exportPrivateKey":  func() InternalRequest { return &ExportPrivateKeyRequest{} },
	"getNetwork":        func() InternalRequest { return &GetNetworkRequest{} },
	"setNetwork":        func() InternalRequest { return &SetNetworkRequest{} },
	"listNetworks":      func() InternalRequest { return &ListNetworksRequest{} },
	"getConnectedSites": func() InternalRequest { return &GetConnectedSitesRequest{} },
	"disconnectSite":    func() InternalRequest { return &DisconnectSiteRequest{} },
	"listApprovals":     func() InternalRequest { return &ListApprovalsRequest{} },
	"resolveApproval":   func() InternalRequest { return &ResolveApprovalRequest{} },
	"getReceiveQR":      func() InternalRequest { return &GetReceiveQRRequest{} },
	"getAutoLock":       func() InternalRequest { return &GetAutoLockRequest{} },
	"setAutoLock":       func() InternalRequest { return &SetAutoLockRequest{} },
	"getBalance":        func() InternalRequest { return &GetBalanceRequest{} },
	"getTransactions":   func() InternalRequest { return &GetTransactionsRequest{} },
	"buildTransaction":  func() InternalRequest { return &BuildTransactionRequest{} },
}

// InternalActions lists the registered action names in sorted order.
func InternalActions() []string {
	return slices.Sorted(maps.Keys(internalActions))
}

// ErrUnknownAction is returned by DecodeInternal for an unregistered action.
var ErrUnknownAction = errors.New("unknown action")

// DecodeInternal parses {action, ...params} into its request type.
func DecodeInternal(raw []byte) (InternalRequest, error) {
	var head struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, validationErrorf("malformed request: %v", err)
	}
	newReq, ok := internalActions[head.Action]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, head.Action)
	}
	req := newReq()
	if err := json.Unmarshal(raw, req); err != nil {
		return nil, validationErrorf("invalid params for %s: %v", head.Action, err)
	}
	return req, nil
}

// HandleInternalJSON decodes and handles a raw UI message.
func (c *Core) HandleInternalJSON(ctx context.Context, raw []byte) protocol.InternalResult {
	req, err := DecodeInternal(raw)
	if err != nil {
		return failure(err)
	}
	return c.HandleInternal(ctx, req)
}

// HandleInternal runs a UI request. Failures, including panics, are
// reported as {success: false, error}.
func (c *Core) HandleInternal(ctx context.Context, req InternalRequest) (res protocol.InternalResult) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic in internal handler",
				"action", req.Action(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
			res = protocol.InternalResult{Error: protocol.ErrMsgInternal}
		}
	}()

	data, err := req.handle(ctx, c)
	if err != nil {
		if !IsValidation(err) && !isExpected(err) {
			c.logger.Error("internal request failed", "action", req.Action(), "error", err)
		}
		return failure(err)
	}
	res = protocol.InternalResult{Success: true}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return failure(fmt.Errorf("encoding %s result: %w", req.Action(), err))
		}
		res.Data = raw
	}
	return res
}

func failure(err error) protocol.InternalResult {
	return protocol.InternalResult{Error: err.Error()}
}

// isExpected reports errors that are ordinary outcomes rather than faults.
func isExpected(err error) bool {
	for _, target := range []error{
		ErrLocked, ErrWalletNotFound, ErrWalletExists, ErrInvalidPassword,
		ErrAccountNotFound, ErrLastAccount, ErrNotImplemented, ErrUnknownNetwork,
		ErrRateLimited, ErrSiteNotFound, approval.ErrNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

type flag struct {
	Value bool `json:"value"`
}

func (*HasWalletRequest) Action() string { return "hasWallet" }
func (*HasWalletRequest) handle(ctx context.Context, c *Core) (any, error) {
	ok, err := c.HasWallet(ctx)
	return flag{ok}, err
}

func (*IsLockedRequest) Action() string { return "isLocked" }
func (*IsLockedRequest) handle(ctx context.Context, c *Core) (any, error) {
	c.expireIdle(ctx)
	return flag{c.IsLocked()}, nil
}

func (*GenerateMnemonicRequest) Action() string { return "generateMnemonic" }
func (r *GenerateMnemonicRequest) handle(_ context.Context, _ *Core) (any, error) {
	words := r.Words
	if words == 0 {
		words = 12
	}
	m, err := GenerateMnemonic(words)
	if err != nil {
		return nil, err
	}
	return map[string]string{"mnemonic": m}, nil
}

func (*CreateWalletRequest) Action() string { return "createWallet" }
func (r *CreateWalletRequest) handle(ctx context.Context, c *Core) (any, error) {
	return c.CreateWallet(ctx, r.Mnemonic, r.Password)
}

func (*ImportWalletRequest) Action() string { return "importWallet" }
func (r *ImportWalletRequest) handle(ctx context.Context, c *Core) (any, error) {
	return c.ImportWallet(ctx, r.Mnemonic, r.Password)
}

func (*UnlockWalletRequest) Action() string { return "unlockWallet" }
func (r *UnlockWalletRequest) handle(ctx context.Context, c *Core) (any, error) {
	return nil, c.UnlockWallet(ctx, r.Password)
}

func (*LockWalletRequest) Action() string { return "lockWallet" }
func (*LockWalletRequest) handle(ctx context.Context, c *Core) (any, error) {
	c.LockWallet(ctx)
	return nil, nil
}

func (*ResetWalletRequest) Action() string { return "resetWallet" }
func (r *ResetWalletRequest) handle(ctx context.Context, c *Core) (any, error) {
	return nil, c.ResetWallet(ctx, r.Password)
}

func (*GetAccountsRequest) Action() string { return "getAccounts" }
func (*GetAccountsRequest) handle(ctx context.Context, c *Core) (any, error) {
	return c.ListAccounts(ctx)
}

func (*GetActiveAccountRequest) Action() string { return "getActiveAccount" }
func (*GetActiveAccountRequest) handle(ctx context.Context, c *Core) (any, error) {
	return c.GetActiveAccount(ctx)
}

func (*CreateAccountRequest) Action() string { return "createAccount" }
func (r *CreateAccountRequest) handle(ctx context.Context, c *Core) (any, error) {
	return c.CreateAccount(ctx, r.Name)
}

func (*ImportAccountRequest) Action() string { return "importAccount" }
func (r *ImportAccountRequest) handle(ctx context.Context, c *Core) (any, error) {
	return c.ImportAccount(ctx, r.Name, r.SecretKey)
}

func (*RenameAccountRequest) Action() string { return "renameAccount" }
func (r *RenameAccountRequest) handle(ctx context.Context, c *Core) (any, error) {
	return c.RenameAccount(ctx, r.Index, r.Name)
}

func (*RemoveAccountRequest) Action() string { return "removeAccount" }
func (r *RemoveAccountRequest) handle(ctx context.Context, c *Core) (any, error) {
	return nil, c.RemoveAccount(ctx, r.Index)
}

func (*SetActiveAccountRequest) Action() string { return "setActiveAccount" }
func (r *SetActiveAccountRequest) handle(ctx context.Context, c *Core) (any, error) {
	return c.SetActiveAccount(ctx, r.Index)
}

func (*ExportPrivateKeyRequest) Action() string { return "exportPrivateKey" }
func (r *ExportPrivateKeyRequest) handle(ctx context.Context, c *Core) (any, error) {
	secret, err := c.ExportPrivateKey(ctx, r.Index, r.Password)
	if err != nil {
		return nil, err
	}
	return map[string]string{"secretKey": secret}, nil
}

func (*GetNetworkRequest) Action() string { return "getNetwork" }
func (*GetNetworkRequest) handle(ctx context.Context, c *Core) (any, error) {
	return c.ActiveNetwork(ctx)
}

func (*SetNetworkRequest) Action() string { return "setNetwork" }
func (r *SetNetworkRequest) handle(ctx context.Context, c *Core) (any, error) {
	return c.SetNetwork(ctx, r.NetworkID)
}

func (*ListNetworksRequest) Action() string { return "listNetworks" }
func (*ListNetworksRequest) handle(context.Context, *Core) (any, error) {
	return Networks(), nil
}

func (*GetConnectedSitesRequest) Action() string { return "getConnectedSites" }
func (*GetConnectedSitesRequest) handle(ctx context.Context, c *Core) (any, error) {
	return c.ConnectedSites(ctx)
}

func (*DisconnectSiteRequest) Action() string { return "disconnectSite" }
func (r *DisconnectSiteRequest) handle(ctx context.Context, c *Core) (any, error) {
	return nil, c.DisconnectSite(ctx, r.Origin)
}

func (*ListApprovalsRequest) Action() string { return "listApprovals" }
func (*ListApprovalsRequest) handle(_ context.Context, c *Core) (any, error) {
	return c.approver.Pending(), nil
}

func (*ResolveApprovalRequest) Action() string { return "resolveApproval" }
func (r *ResolveApprovalRequest) handle(_ context.Context, c *Core) (any, error) {
	if !uuid.Valid(r.ID) {
		return nil, validationErrorf("invalid approval id")
	}
	return nil, c.approver.Resolve(r.ID, r.Approve)
}

func (*GetReceiveQRRequest) Action() string { return "getReceiveQR" }
func (r *GetReceiveQRRequest) handle(ctx context.Context, c *Core) (any, error) {
	return c.ReceiveQR(ctx, r.Index)
}

func (*GetAutoLockRequest) Action() string { return "getAutoLock" }
func (*GetAutoLockRequest) handle(ctx context.Context, c *Core) (any, error) {
	m, err := c.AutoLockMinutes(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]int{"minutes": m}, nil
}

func (*SetAutoLockRequest) Action() string { return "setAutoLock" }
func (r *SetAutoLockRequest) handle(ctx context.Context, c *Core) (any, error) {
	return nil, c.SetAutoLockMinutes(ctx, r.Minutes)
}

// GetBalance is served only when a live balance source is configured.
func (*GetBalanceRequest) Action() string { return "getBalance" }
func (r *GetBalanceRequest) handle(ctx context.Context, c *Core) (any, error) {
	if c.fetcher == nil {
		return nil, ErrNotImplemented
	}
	b, err := c.Balance(ctx, r.Address)
	if err != nil {
		return nil, err
	}
	return map[string]string{"balance": b}, nil
}

func (*GetTransactionsRequest) Action() string { return "getTransactions" }
func (*GetTransactionsRequest) handle(context.Context, *Core) (any, error) {
	return nil, ErrNotImplemented
}

func (*BuildTransactionRequest) Action() string { return "buildTransaction" }
func (*BuildTransactionRequest) handle(context.Context, *Core) (any, error) {
	return nil, ErrNotImplemented
}
