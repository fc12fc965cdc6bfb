package protocol

import (
	"encoding/json"
	"errors"
)

// Error strings returned to pages. Pages only ever see these.
const (
	ErrMsgLocked        = "wallet is locked"
	ErrMsgUnauthorized  = "unauthorized"
	ErrMsgRejected      = "user rejected the request"
	ErrMsgUnknownMethod = "unknown method"
	ErrMsgNotImpl       = "not implemented"
	ErrMsgInternal      = "internal error"
	ErrMsgTimeout       = "request timed out"
	ErrMsgUnavailable   = "wallet unavailable"
)

// Result is the reply to an external request. Exactly one group of fields is
// populated: accounts, balance, chainId, hash, signature with publicKey, or
// error.
type Result struct {
	Accounts  []string `json:"accounts,omitzero"`
	Balance   string   `json:"balance,omitempty"`
	ChainID   string   `json:"chainId,omitempty"`
	Hash      string   `json:"hash,omitempty"`
	Signature string   `json:"signature,omitempty"`
	PublicKey string   `json:"publicKey,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// AccountsResult returns {accounts}. A nil slice is sent as [].
func AccountsResult(accounts []string) Result {
	if accounts == nil {
		accounts = []string{}
	}
	return Result{Accounts: accounts}
}

// ErrorResult returns {error}.
func ErrorResult(msg string) Result {
	return Result{Error: msg}
}

// Err converts the error field into a Go error, or nil.
func (r Result) Err() error {
	if r.Error == "" {
		return nil
	}
	return &RemoteError{Message: r.Error}
}

// RemoteError is an error reported by the other side of a channel.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

// IsRemote reports whether err carries a message from the wallet, and returns it.
func IsRemote(err error) (string, bool) {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Message, true
	}
	return "", false
}

// InternalResult is the reply shape of the trusted surface.
type InternalResult struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}
