package wallet

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/skip2/go-qrcode"
)

// QRSize is the edge length in pixels of receive QR codes.
const QRSize = 256

// ReceiveCode is what the UI shows to receive funds into one account.
type ReceiveCode struct {
	Address string `json:"address"`
	// QR is a base64 PNG encoding Address.
	QR string `json:"qr"`
}

// ReceiveQR renders the address of account index as a QR code. Addresses
// are public, so this works while locked.
func (c *Core) ReceiveQR(ctx context.Context, index uint32) (*ReceiveCode, error) {
	w, err := c.loadWallet(ctx)
	if err != nil {
		return nil, err
	}
	_, a := w.account(index)
	if a == nil {
		return nil, ErrAccountNotFound
	}
	png, err := AddressQR(a.Address, QRSize)
	if err != nil {
		return nil, err
	}
	return &ReceiveCode{
		Address: a.Address,
		QR:      base64.StdEncoding.EncodeToString(png),
	}, nil
}

// AddressQR encodes address as a PNG QR code of the given size.
func AddressQR(address string, size int) ([]byte, error) {
	qr, err := qrcode.New(address, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("creating QR code: %w", err)
	}
	png, err := qr.PNG(size)
	if err != nil {
		return nil, fmt.Errorf("rendering QR code: %w", err)
	}
	return png, nil
}
