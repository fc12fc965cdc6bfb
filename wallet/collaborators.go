package wallet

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/jmcleod/ironwallet/approval"
)

// Approver obtains the user's decision on requests from web origins.
// approval.Queue is the standard implementation.
type Approver interface {
	Request(ctx context.Context, req approval.Request) error
	Pending() []approval.Request
	Resolve(id string, approve bool) error
	RejectAll()
}

// BalanceFetcher looks up an address's live balance on a network.
type BalanceFetcher interface {
	FetchBalance(ctx context.Context, network Network, address string) (decimal.Decimal, error)
}

// Broadcaster submits a signed transaction and returns its hash.
type Broadcaster interface {
	Broadcast(ctx context.Context, tx SignedTransaction) (string, error)
}

// TransactionKind distinguishes payments from stake delegations.
type TransactionKind string

const (
	TxPayment    TransactionKind = "payment"
	TxDelegation TransactionKind = "delegation"
)

// Transaction is the signed body of a payment or delegation.
type Transaction struct {
	Kind    TransactionKind `json:"kind"`
	Network string          `json:"network"`
	From    string          `json:"from"`
	To      string          `json:"to"`
	Amount  decimal.Decimal `json:"amount"`
	Fee     decimal.Decimal `json:"fee"`
	Memo    string          `json:"memo,omitempty"`
}

// SignedTransaction is a Transaction with the sender's signature.
type SignedTransaction struct {
	Transaction
	Signature string `json:"signature"`
	PublicKey string `json:"publicKey"`
}
