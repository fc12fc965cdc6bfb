package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jmcleod/ironwallet/approval"
	"github.com/jmcleod/ironwallet/internal/util"
	"github.com/jmcleod/ironwallet/keys"
	"github.com/jmcleod/ironwallet/protocol"
)

// HandleExternal answers a request from a web origin. It never returns an
// error: failures are reported in the result's error field using the fixed
// page-facing messages.
//
// Read methods (accounts, balance) answer an unconnected origin, or any
// origin while locked, with the same empty result a connected origin with
// no data would get. Everything else reports the failure explicitly.
func (c *Core) HandleExternal(ctx context.Context, req protocol.ExternalRequest) (res protocol.Result) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic in external handler",
				"action", req.Action,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			res = protocol.ErrorResult(protocol.ErrMsgInternal)
		}
	}()

	switch req.Action {
	case protocol.MethodChainID:
		return c.externalChainID(ctx)
	case protocol.MethodAccounts:
		return c.externalAccounts(ctx, req)
	case protocol.MethodGetBalance:
		return c.externalBalance(ctx, req)
	case protocol.MethodRequestAccounts:
		return c.externalRequestAccounts(ctx, req)
	case protocol.MethodSignMessage:
		return c.externalSignMessage(ctx, req)
	case protocol.MethodSignFields:
		return c.externalSignFields(ctx, req)
	case protocol.MethodSendPayment:
		return c.externalSendPayment(ctx, req)
	case protocol.MethodSendStakeDelegation:
		return c.externalSendDelegation(ctx, req)
	default:
		return protocol.ErrorResult(protocol.ErrMsgUnknownMethod)
	}
}

// Send implements relay.Backend so a relay can talk to a Core in-process.
func (c *Core) Send(ctx context.Context, req protocol.ExternalRequest) (json.RawMessage, error) {
	return json.Marshal(c.HandleExternal(ctx, req))
}

// externalError converts err into a page-facing result.
func (c *Core) externalError(action protocol.Method, err error) protocol.Result {
	var msg string
	switch {
	case errors.Is(err, ErrLocked), errors.Is(err, ErrWalletNotFound):
		msg = protocol.ErrMsgLocked
	case errors.Is(err, ErrUnauthorized):
		msg = protocol.ErrMsgUnauthorized
	case errors.Is(err, ErrRejected), errors.Is(err, approval.ErrRejected), errors.Is(err, approval.ErrExpired):
		msg = protocol.ErrMsgRejected
	case errors.Is(err, ErrNotImplemented):
		msg = protocol.ErrMsgNotImpl
	case IsValidation(err):
		msg = "invalid params: " + err.Error()
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		msg = protocol.ErrMsgTimeout
	default:
		c.logger.Error("external request failed", "action", action, "error", err)
		msg = protocol.ErrMsgInternal
	}
	return protocol.ErrorResult(msg)
}

func decodeParams(req protocol.ExternalRequest, v any) error {
	if err := req.Decode(v); err != nil {
		return validationErrorf("%v", err)
	}
	return nil
}

// authorize checks, in order, that origin is connected and that the wallet
// is unlocked. It returns the normalized origin.
func (c *Core) authorize(ctx context.Context, origin string) (string, error) {
	normalized, err := normalizeOrigin(origin)
	if err != nil {
		return "", ErrUnauthorized
	}
	connected, err := c.IsConnected(ctx, normalized)
	if err != nil {
		return "", err
	}
	if !connected {
		return "", ErrUnauthorized
	}
	if err := c.requireUnlocked(ctx); err != nil {
		return "", err
	}
	return normalized, nil
}

// visible reports whether origin may currently see account data. Any
// failure counts as not visible.
func (c *Core) visible(ctx context.Context, origin string) bool {
	connected, err := c.IsConnected(ctx, origin)
	if err != nil {
		c.logger.Warn("checking site connection", "error", err)
		return false
	}
	if !connected {
		return false
	}
	return c.requireUnlocked(ctx) == nil
}

func (c *Core) activeAddresses(ctx context.Context) ([]string, error) {
	acct, err := c.GetActiveAccount(ctx)
	if err != nil {
		return nil, err
	}
	return []string{acct.Address}, nil
}

func (c *Core) externalChainID(ctx context.Context) protocol.Result {
	network, err := c.ActiveNetwork(ctx)
	if err != nil {
		return c.externalError(protocol.MethodChainID, err)
	}
	return protocol.Result{ChainID: network.ChainID}
}

// externalAccounts discloses only the active account.
func (c *Core) externalAccounts(ctx context.Context, req protocol.ExternalRequest) protocol.Result {
	if !c.visible(ctx, req.Origin) {
		return protocol.AccountsResult(nil)
	}
	addrs, err := c.activeAddresses(ctx)
	if err != nil {
		c.logger.Warn("listing accounts for origin", "error", err)
		return protocol.AccountsResult(nil)
	}
	return protocol.AccountsResult(addrs)
}

func (c *Core) externalBalance(ctx context.Context, req protocol.ExternalRequest) protocol.Result {
	const neutral = "0"
	if !c.visible(ctx, req.Origin) {
		return protocol.Result{Balance: neutral}
	}
	var p protocol.GetBalanceParams
	if err := decodeParams(req, &p); err != nil {
		return c.externalError(req.Action, err)
	}
	address := p.Address
	if address == "" {
		acct, err := c.GetActiveAccount(ctx)
		if err != nil {
			return protocol.Result{Balance: neutral}
		}
		address = acct.Address
	}
	// Only the wallet's own accounts are reported.
	accounts, err := c.ListAccounts(ctx)
	if err != nil {
		return protocol.Result{Balance: neutral}
	}
	owned := false
	for _, a := range accounts {
		if a.Address == address {
			owned = true
			break
		}
	}
	if !owned {
		return protocol.Result{Balance: neutral}
	}
	balance, err := c.Balance(ctx, address)
	if err != nil {
		c.logger.Warn("reading balance", "error", err)
		return protocol.Result{Balance: neutral}
	}
	return protocol.Result{Balance: balance}
}

// externalRequestAccounts connects origin, asking the user first when it is
// not connected yet.
func (c *Core) externalRequestAccounts(ctx context.Context, req protocol.ExternalRequest) protocol.Result {
	origin, err := normalizeOrigin(req.Origin)
	if err != nil {
		return protocol.ErrorResult(protocol.ErrMsgUnauthorized)
	}
	var p protocol.RequestAccountsParams
	if err := decodeParams(req, &p); err != nil {
		return c.externalError(req.Action, err)
	}
	if err := c.requireUnlocked(ctx); err != nil {
		return c.externalError(req.Action, err)
	}

	connected, err := c.IsConnected(ctx, origin)
	if err != nil {
		return c.externalError(req.Action, err)
	}
	if !connected {
		err := c.approver.Request(ctx, approval.Request{
			Kind:     approval.KindConnect,
			Origin:   origin,
			SiteName: p.Name,
		})
		if err != nil {
			c.logConnectionRejected(ctx, origin, err)
			return c.externalError(req.Action, fmt.Errorf("%w: %w", ErrRejected, err))
		}
		if _, err := c.ConnectSite(ctx, origin, p.Name); err != nil {
			return c.externalError(req.Action, err)
		}
	}

	addrs, err := c.activeAddresses(ctx)
	if err != nil {
		return c.externalError(req.Action, err)
	}
	return protocol.AccountsResult(addrs)
}

// approveSigning asks the user to approve a signing request from origin.
func (c *Core) approveSigning(ctx context.Context, kind approval.Kind, origin string, details map[string]string) error {
	err := c.approver.Request(ctx, approval.Request{Kind: kind, Origin: origin, Details: details})
	if err != nil {
		c.audit.logOrigin(ctx, AuditSigningRejected, origin, slog.String("kind", string(kind)))
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}
	c.audit.logOrigin(ctx, AuditSigningApproved, origin, slog.String("kind", string(kind)))
	return nil
}

// sign signs payload with the active account on the active network.
func (c *Core) sign(ctx context.Context, payload []byte) (protocol.Result, error) {
	network, err := c.ActiveNetwork(ctx)
	if err != nil {
		return protocol.Result{}, err
	}
	var res protocol.Result
	err = c.withActiveKeypair(ctx, func(acct Account, kp *keys.Keypair) error {
		res = protocol.Result{
			Signature: util.HexEncode(kp.Sign(network.ChainID, payload)),
			PublicKey: acct.Address,
		}
		return nil
	})
	return res, err
}

func (c *Core) externalSignMessage(ctx context.Context, req protocol.ExternalRequest) protocol.Result {
	origin, err := c.authorize(ctx, req.Origin)
	if err != nil {
		return c.externalError(req.Action, err)
	}
	var p protocol.SignMessageParams
	if err := decodeParams(req, &p); err != nil {
		return c.externalError(req.Action, err)
	}
	if p.Message == "" {
		return c.externalError(req.Action, validationErrorf("message is required"))
	}
	if len(p.Message) > MaxMessageLength {
		return c.externalError(req.Action, validationErrorf("message exceeds maximum length of %d bytes", MaxMessageLength))
	}
	if err := c.approveSigning(ctx, approval.KindSignMessage, origin, map[string]string{"message": p.Message}); err != nil {
		return c.externalError(req.Action, err)
	}
	res, err := c.sign(ctx, []byte(p.Message))
	if err != nil {
		return c.externalError(req.Action, err)
	}
	return res
}

// fieldsPayload is the byte string signed for a list of field elements.
func fieldsPayload(fields []string) []byte {
	return []byte(strings.Join(fields, ","))
}

func (c *Core) externalSignFields(ctx context.Context, req protocol.ExternalRequest) protocol.Result {
	origin, err := c.authorize(ctx, req.Origin)
	if err != nil {
		return c.externalError(req.Action, err)
	}
	var p protocol.SignFieldsParams
	if err := decodeParams(req, &p); err != nil {
		return c.externalError(req.Action, err)
	}
	if err := validateFields(p.Fields); err != nil {
		return c.externalError(req.Action, err)
	}
	details := map[string]string{"fields": strings.Join(p.Fields, ", ")}
	if err := c.approveSigning(ctx, approval.KindSignFields, origin, details); err != nil {
		return c.externalError(req.Action, err)
	}
	res, err := c.sign(ctx, fieldsPayload(p.Fields))
	if err != nil {
		return c.externalError(req.Action, err)
	}
	return res
}

func (c *Core) externalSendPayment(ctx context.Context, req protocol.ExternalRequest) protocol.Result {
	origin, err := c.authorize(ctx, req.Origin)
	if err != nil {
		return c.externalError(req.Action, err)
	}
	var p protocol.SendPaymentParams
	if err := decodeParams(req, &p); err != nil {
		return c.externalError(req.Action, err)
	}
	amount, err := parseAmount(p.Amount, "amount", false)
	if err != nil {
		return c.externalError(req.Action, err)
	}
	tx, err := c.buildTransaction(ctx, TxPayment, p.To, amount, p.Fee, p.Memo)
	if err != nil {
		return c.externalError(req.Action, err)
	}
	return c.signAndBroadcast(ctx, req.Action, approval.KindSendPayment, origin, tx)
}

func (c *Core) externalSendDelegation(ctx context.Context, req protocol.ExternalRequest) protocol.Result {
	origin, err := c.authorize(ctx, req.Origin)
	if err != nil {
		return c.externalError(req.Action, err)
	}
	var p protocol.SendStakeDelegationParams
	if err := decodeParams(req, &p); err != nil {
		return c.externalError(req.Action, err)
	}
	tx, err := c.buildTransaction(ctx, TxDelegation, p.To, decimal.Zero, p.Fee, p.Memo)
	if err != nil {
		return c.externalError(req.Action, err)
	}
	return c.signAndBroadcast(ctx, req.Action, approval.KindSendDelegation, origin, tx)
}

// buildTransaction validates a payment or delegation from the active account.
func (c *Core) buildTransaction(ctx context.Context, kind TransactionKind, to string, amount decimal.Decimal, fee, memo string) (Transaction, error) {
	caps, err := c.keys.Ensure(ctx)
	if err != nil {
		return Transaction{}, err
	}
	if !caps.ValidateAddress(to) {
		return Transaction{}, validationErrorf("invalid recipient address")
	}
	feeAmount, err := parseAmount(fee, "fee", false)
	if err != nil {
		return Transaction{}, err
	}
	if err := validateMemo(memo); err != nil {
		return Transaction{}, err
	}
	network, err := c.ActiveNetwork(ctx)
	if err != nil {
		return Transaction{}, err
	}
	acct, err := c.GetActiveAccount(ctx)
	if err != nil {
		return Transaction{}, err
	}
	return Transaction{
		Kind:    kind,
		Network: network.ID,
		From:    acct.Address,
		To:      to,
		Amount:  amount,
		Fee:     feeAmount,
		Memo:    memo,
	}, nil
}

func (c *Core) signAndBroadcast(ctx context.Context, action protocol.Method, kind approval.Kind, origin string, tx Transaction) protocol.Result {
	if c.broadcaster == nil {
		return c.externalError(action, ErrNotImplemented)
	}
	details := map[string]string{
		"from": tx.From,
		"to":   tx.To,
		"fee":  tx.Fee.String(),
	}
	if tx.Kind == TxPayment {
		details["amount"] = tx.Amount.String()
	}
	if tx.Memo != "" {
		details["memo"] = tx.Memo
	}
	if err := c.approveSigning(ctx, kind, origin, details); err != nil {
		return c.externalError(action, err)
	}

	payload, err := json.Marshal(tx)
	if err != nil {
		return c.externalError(action, err)
	}
	signed, err := c.sign(ctx, payload)
	if err != nil {
		return c.externalError(action, err)
	}
	hash, err := c.broadcaster.Broadcast(ctx, SignedTransaction{
		Transaction: tx,
		Signature:   signed.Signature,
		PublicKey:   signed.PublicKey,
	})
	if err != nil {
		return c.externalError(action, err)
	}
	c.audit.logOrigin(ctx, AuditTransactionBroadcast, origin,
		slog.String("kind", string(tx.Kind)),
		slog.String("network", tx.Network),
		slog.String("hash", hash),
	)
	return protocol.Result{Hash: hash}
}
