package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmcleod/ironwallet/protocol"
)

// Signed is a signature together with the signer's public key.
type Signed struct {
	Signature string
	PublicKey string
}

func (p *Provider) call(ctx context.Context, method protocol.Method, params any) (protocol.Result, error) {
	raw, err := p.Request(ctx, method, params)
	if err != nil {
		return protocol.Result{}, err
	}
	var res protocol.Result
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &res); err != nil {
			return protocol.Result{}, fmt.Errorf("decoding %s result: %w", method, err)
		}
	}
	if err := res.Err(); err != nil {
		return protocol.Result{}, err
	}
	return res, nil
}

// RequestAccounts asks the wallet to connect this page and returns its
// accounts. The user may need to approve the connection first.
func (p *Provider) RequestAccounts(ctx context.Context) ([]string, error) {
	res, err := p.call(ctx, protocol.MethodRequestAccounts, nil)
	if err != nil {
		return nil, err
	}
	accounts := nonNil(res.Accounts)
	p.setAccounts(accounts)
	return accounts, nil
}

// Accounts returns the connected accounts, or none if this page is not connected.
func (p *Provider) Accounts(ctx context.Context) ([]string, error) {
	res, err := p.call(ctx, protocol.MethodAccounts, nil)
	if err != nil {
		return nil, err
	}
	return nonNil(res.Accounts), nil
}

// GetBalance returns the balance of address, or of the active account when address is empty.
func (p *Provider) GetBalance(ctx context.Context, address string) (string, error) {
	var params any
	if address != "" {
		params = protocol.GetBalanceParams{Address: address}
	}
	res, err := p.call(ctx, protocol.MethodGetBalance, params)
	if err != nil {
		return "", err
	}
	return res.Balance, nil
}

// ChainID returns the wallet's active network id.
func (p *Provider) ChainID(ctx context.Context) (string, error) {
	res, err := p.call(ctx, protocol.MethodChainID, nil)
	if err != nil {
		return "", err
	}
	return res.ChainID, nil
}

// SendPayment asks the wallet to sign and broadcast a payment and returns its hash.
func (p *Provider) SendPayment(ctx context.Context, params protocol.SendPaymentParams) (string, error) {
	res, err := p.call(ctx, protocol.MethodSendPayment, params)
	if err != nil {
		return "", err
	}
	return res.Hash, nil
}

// SendStakeDelegation asks the wallet to delegate stake and returns the transaction hash.
func (p *Provider) SendStakeDelegation(ctx context.Context, params protocol.SendStakeDelegationParams) (string, error) {
	res, err := p.call(ctx, protocol.MethodSendStakeDelegation, params)
	if err != nil {
		return "", err
	}
	return res.Hash, nil
}

// SignMessage asks the wallet to sign message with the active account.
func (p *Provider) SignMessage(ctx context.Context, message string) (Signed, error) {
	res, err := p.call(ctx, protocol.MethodSignMessage, protocol.SignMessageParams{Message: message})
	if err != nil {
		return Signed{}, err
	}
	return Signed{Signature: res.Signature, PublicKey: res.PublicKey}, nil
}

// SignFields asks the wallet to sign a list of field elements.
func (p *Provider) SignFields(ctx context.Context, fields []string) (Signed, error) {
	res, err := p.call(ctx, protocol.MethodSignFields, protocol.SignFieldsParams{Fields: fields})
	if err != nil {
		return Signed{}, err
	}
	return Signed{Signature: res.Signature, PublicKey: res.PublicKey}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
