package wallet

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceiveQR(t *testing.T) {
	ctx := t.Context()
	c := newUnlockedCore(t)
	active, err := c.GetActiveAccount(ctx)
	require.NoError(t, err)
	c.LockWallet(ctx)

	code, err := c.ReceiveQR(ctx, 0)
	require.NoError(t, err, "addresses are available while locked")
	assert.Equal(t, active.Address, code.Address)

	raw, err := base64.StdEncoding.DecodeString(code.QR)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, QRSize, img.Bounds().Dx())

	_, err = c.ReceiveQR(ctx, 3)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestReceiveQRInternal(t *testing.T) {
	c := newUnlockedCore(t)
	code := decodeData[ReceiveCode](t, internalCall(t, c, `{"action":"getReceiveQR","index":0}`))
	assert.NotEmpty(t, code.QR)

	_, err := newTestCore(t).ReceiveQR(t.Context(), 0)
	assert.ErrorIs(t, err, ErrWalletNotFound)
}
