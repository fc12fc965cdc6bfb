package wallet

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/ironwallet/approval"
	"github.com/jmcleod/ironwallet/protocol"
)

func internalCall(t *testing.T, c *Core, msg string) protocol.InternalResult {
	t.Helper()
	return c.HandleInternalJSON(t.Context(), []byte(msg))
}

func decodeData[T any](t *testing.T, res protocol.InternalResult) T {
	t.Helper()
	require.True(t, res.Success, "request failed: %s", res.Error)
	var v T
	require.NoError(t, json.Unmarshal(res.Data, &v))
	return v
}

func TestInternalActionsRegistered(t *testing.T) {
	for name, newReq := range internalActions {
		assert.Equal(t, name, newReq().Action())
	}
}

func TestInternalUnknownAction(t *testing.T) {
	c := newTestCore(t)

	res := internalCall(t, c, `{"action":"mineBitcoin"}`)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "unknown action")

	res = internalCall(t, c, `not json`)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "malformed request")

	res = internalCall(t, c, `{"action":"renameAccount","index":"zero"}`)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "invalid params")
}

func TestInternalSetupFlow(t *testing.T) {
	c := newTestCore(t)

	has := decodeData[flag](t, internalCall(t, c, `{"action":"hasWallet"}`))
	assert.False(t, has.Value)
	locked := decodeData[flag](t, internalCall(t, c, `{"action":"isLocked"}`))
	assert.True(t, locked.Value)

	gen := decodeData[map[string]string](t, internalCall(t, c, `{"action":"generateMnemonic","words":24}`))
	assert.NotEmpty(t, gen["mnemonic"])

	create, err := json.Marshal(map[string]string{"action": "createWallet", "mnemonic": gen["mnemonic"], "password": testPassword})
	require.NoError(t, err)
	acct := decodeData[Account](t, c.HandleInternalJSON(t.Context(), create))
	assert.Equal(t, uint32(0), acct.Index)

	locked = decodeData[flag](t, internalCall(t, c, `{"action":"isLocked"}`))
	assert.False(t, locked.Value)

	res := internalCall(t, c, `{"action":"lockWallet"}`)
	assert.True(t, res.Success)
	assert.Empty(t, res.Data)

	res = internalCall(t, c, `{"action":"createAccount"}`)
	assert.False(t, res.Success)
	assert.Equal(t, ErrLocked.Error(), res.Error)

	res = internalCall(t, c, `{"action":"unlockWallet","password":"`+testPassword+`"}`)
	assert.True(t, res.Success)

	second := decodeData[Account](t, internalCall(t, c, `{"action":"createAccount","name":"Two"}`))
	assert.Equal(t, "Two", second.Name)

	accounts := decodeData[[]Account](t, internalCall(t, c, `{"action":"getAccounts"}`))
	assert.Len(t, accounts, 2)

	active := decodeData[Account](t, internalCall(t, c, `{"action":"setActiveAccount","index":1}`))
	assert.True(t, active.Active)
	active = decodeData[Account](t, internalCall(t, c, `{"action":"getActiveAccount"}`))
	assert.Equal(t, uint32(1), active.Index)

	exported := decodeData[map[string]string](t, internalCall(t, c, `{"action":"exportPrivateKey","index":1,"password":"`+testPassword+`"}`))
	assert.NotEmpty(t, exported["secretKey"])

	res = internalCall(t, c, `{"action":"removeAccount","index":1}`)
	assert.True(t, res.Success)
}

func TestInternalNetworks(t *testing.T) {
	c := newTestCore(t)

	list := decodeData[[]Network](t, internalCall(t, c, `{"action":"listNetworks"}`))
	assert.Len(t, list, 3)

	n := decodeData[Network](t, internalCall(t, c, `{"action":"setNetwork","networkId":"berkeley"}`))
	assert.Equal(t, "berkeley", n.ChainID)
	n = decodeData[Network](t, internalCall(t, c, `{"action":"getNetwork"}`))
	assert.Equal(t, "berkeley", n.ID)

	res := internalCall(t, c, `{"action":"setNetwork","networkId":"moon"}`)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "unknown network")
}

func TestInternalSitesAndApprovals(t *testing.T) {
	c := newUnlockedCore(t, WithApprover(approval.NewQueue()))
	_, err := c.ConnectSite(t.Context(), testOrigin, "App")
	require.NoError(t, err)

	sites := decodeData[[]ConnectedSite](t, internalCall(t, c, `{"action":"getConnectedSites"}`))
	require.Len(t, sites, 1)

	res := internalCall(t, c, `{"action":"disconnectSite","origin":"`+testOrigin+`"}`)
	assert.True(t, res.Success)
	res = internalCall(t, c, `{"action":"disconnectSite","origin":"`+testOrigin+`"}`)
	assert.False(t, res.Success)

	pending := decodeData[[]approval.Request](t, internalCall(t, c, `{"action":"listApprovals"}`))
	assert.Empty(t, pending)
	res = internalCall(t, c, `{"action":"resolveApproval","id":"missing","approve":true}`)
	assert.False(t, res.Success)
	assert.Equal(t, "invalid approval id", res.Error)
	res = internalCall(t, c, `{"action":"resolveApproval","id":"6f1c2b9e-3a4d-4e5f-8a7b-1c2d3e4f5a6b","approve":true}`)
	assert.False(t, res.Success)
	assert.Equal(t, approval.ErrNotFound.Error(), res.Error)
}

func TestInternalAutoLock(t *testing.T) {
	c := newTestCore(t)
	res := internalCall(t, c, `{"action":"setAutoLock","minutes":30}`)
	require.True(t, res.Success)
	got := decodeData[map[string]int](t, internalCall(t, c, `{"action":"getAutoLock"}`))
	assert.Equal(t, 30, got["minutes"])
}

func TestInternalPlaceholdersNotImplemented(t *testing.T) {
	c := newUnlockedCore(t)
	for _, msg := range []string{
		`{"action":"getBalance","address":"B62x"}`,
		`{"action":"getTransactions","address":"B62x"}`,
		`{"action":"buildTransaction","to":"B62x","amount":"1","fee":"0.1"}`,
	} {
		res := internalCall(t, c, msg)
		assert.False(t, res.Success, msg)
		assert.Equal(t, "not implemented", res.Error, msg)
		assert.Empty(t, res.Data)
	}
}

func TestInternalResetWallet(t *testing.T) {
	c := newUnlockedCore(t)
	res := internalCall(t, c, `{"action":"resetWallet","password":"nope nope"}`)
	assert.False(t, res.Success)
	assert.Equal(t, ErrInvalidPassword.Error(), res.Error)

	res = internalCall(t, c, `{"action":"resetWallet","password":"`+testPassword+`"}`)
	assert.True(t, res.Success)
	has := decodeData[flag](t, internalCall(t, c, `{"action":"hasWallet"}`))
	assert.False(t, has.Value)
}

type panicRequest struct{}

func (panicRequest) Action() string { return "panic" }
func (panicRequest) handle(_ context.Context, _ *Core) (any, error) {
	panic("boom")
}

func TestInternalRecoversPanic(t *testing.T) {
	c := newTestCore(t)
	res := c.HandleInternal(t.Context(), panicRequest{})
	assert.False(t, res.Success)
	assert.Equal(t, protocol.ErrMsgInternal, res.Error)
}
