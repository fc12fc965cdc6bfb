package api_test

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/ironwallet/api"
	"github.com/jmcleod/ironwallet/approval"
	"github.com/jmcleod/ironwallet/internal/util"
	"github.com/jmcleod/ironwallet/keys"
	"github.com/jmcleod/ironwallet/protocol"
	"github.com/jmcleod/ironwallet/storage/memory"
	"github.com/jmcleod/ironwallet/wallet"
)

const (
	testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	testPassword = "correct horse battery"
	testOrigin   = "https://app.example"
	relayToken   = "relay-secret"
	uiToken      = "ui-secret"
)

var discard = slog.New(slog.DiscardHandler)

func newCore(t *testing.T, opts ...wallet.Option) *wallet.Core {
	t.Helper()
	params, err := util.Argon2idProfile(util.KDFProfileInteractive)
	require.NoError(t, err)
	opts = append([]wallet.Option{wallet.WithKDFParams(params), wallet.WithLogger(discard)}, opts...)
	c := wallet.New(memory.NewRepository(), opts...)
	_, err = c.CreateWallet(t.Context(), testMnemonic, testPassword)
	require.NoError(t, err)
	return c
}

func setupServer(t *testing.T, core *wallet.Core, opts ...api.Option) *httptest.Server {
	t.Helper()
	opts = append([]api.Option{
		api.WithLogger(discard),
		api.WithRelayToken(relayToken),
		api.WithUIToken(uiToken),
	}, opts...)
	srv := httptest.NewServer(api.New(core, opts...).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, url, token string, header http.Header, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func originHeader(origin string) http.Header {
	h := http.Header{}
	h.Set(api.OriginHeader, origin)
	return h
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(bytes.TrimSpace(b))
}

func TestHealth(t *testing.T) {
	srv := setupServer(t, newCore(t))

	resp, err := http.Get(srv.URL + "/api/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, readBody(t, resp))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	assert.Contains(t, resp.Header.Get("Content-Security-Policy"), "default-src 'none'")
}

func TestOpenAPIServed(t *testing.T) {
	srv := setupServer(t, newCore(t))

	resp, err := http.Get(srv.URL + "/api/v1/openapi.yaml")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "/external:")
}

func TestExternalRequiresRelayToken(t *testing.T) {
	srv := setupServer(t, newCore(t))
	url := srv.URL + "/api/v1/external"
	body := `{"action":"mina_chainId"}`

	resp := doJSON(t, url, "", originHeader(testOrigin), body)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Bearer")

	resp = doJSON(t, url, uiToken, originHeader(testOrigin), body)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "the UI token does not open the page surface")

	resp = doJSON(t, url, relayToken, originHeader(testOrigin), body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"chainId":"mainnet"}`, readBody(t, resp))
}

func TestExternalRequiresOriginHeader(t *testing.T) {
	srv := setupServer(t, newCore(t))
	url := srv.URL + "/api/v1/external"

	resp := doJSON(t, url, relayToken, nil, `{"action":"mina_chainId"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, url, relayToken, originHeader("not an origin"), `{"action":"mina_chainId"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, url, relayToken, originHeader(testOrigin), `{"method":"mina_chainId"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "missing action")
}

func TestExternalIgnoresBodyOrigin(t *testing.T) {
	core := newCore(t)
	_, err := core.ConnectSite(t.Context(), testOrigin, "App")
	require.NoError(t, err)
	active, err := core.GetActiveAccount(t.Context())
	require.NoError(t, err)
	srv := setupServer(t, core)
	url := srv.URL + "/api/v1/external"

	resp := doJSON(t, url, relayToken, originHeader("https://evil.example"),
		`{"action":"mina_accounts","origin":"`+testOrigin+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"accounts":[]}`, readBody(t, resp))

	resp = doJSON(t, url, relayToken, originHeader("https://App.Example:443/page"), `{"action":"mina_accounts"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"accounts":["`+active.Address+`"]}`, readBody(t, resp))
}

func TestExternalWalletErrorsAreResults(t *testing.T) {
	core := newCore(t)
	srv := setupServer(t, core)

	resp := doJSON(t, srv.URL+"/api/v1/external", relayToken, originHeader(testOrigin),
		`{"action":"mina_signMessage","message":"hi"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"error":"unauthorized"}`, readBody(t, resp))

	resp = doJSON(t, srv.URL+"/api/v1/external", relayToken, originHeader(testOrigin), `{"action":"mina_mine"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"error":"unknown method"}`, readBody(t, resp))
}

func TestExternalOriginRateLimit(t *testing.T) {
	srv := setupServer(t, newCore(t), api.WithOriginRateLimit(0.001, 2))
	url := srv.URL + "/api/v1/external"
	body := `{"action":"mina_chainId"}`

	for range 2 {
		resp := doJSON(t, url, relayToken, originHeader(testOrigin), body)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp := doJSON(t, url, relayToken, originHeader(testOrigin), body)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))

	resp = doJSON(t, url, relayToken, originHeader("https://other.example"), body)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "buckets are per origin")
}

func TestInternal(t *testing.T) {
	core := newCore(t)
	srv := setupServer(t, core)
	url := srv.URL + "/api/v1/internal"

	resp := doJSON(t, url, relayToken, nil, `{"action":"hasWallet"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "the relay token does not open the UI surface")

	resp = doJSON(t, url, uiToken, nil, `{"action":"hasWallet"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"success":true,"data":{"value":true}}`, readBody(t, resp))

	resp = doJSON(t, url, uiToken, nil, `{"action":"lockWallet"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, core.IsLocked())

	resp = doJSON(t, url, uiToken, nil, `{"action":"createAccount"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"success":false,"error":"wallet is locked"}`, readBody(t, resp))
}

func TestInternalDecodeErrors(t *testing.T) {
	srv := setupServer(t, newCore(t))
	url := srv.URL + "/api/v1/internal"

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed", `{`, http.StatusBadRequest},
		{"unknown action", `{"action":"mineBitcoin"}`, http.StatusNotFound},
		{"bad params", `{"action":"renameAccount","index":"zero"}`, http.StatusBadRequest},
		{"too large", `{"action":"hasWallet","pad":"` + strings.Repeat("x", 1<<20) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, url, uiToken, nil, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			var e api.ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
			assert.NotEmpty(t, e.Error)
		})
	}
}

func TestTokenFailuresLockOut(t *testing.T) {
	srv := setupServer(t, newCore(t))
	url := srv.URL + "/api/v1/internal"

	var last *http.Response
	for range 10 {
		last = doJSON(t, url, "wrong", nil, `{"action":"hasWallet"}`)
	}
	assert.Equal(t, http.StatusUnauthorized, last.StatusCode)

	resp := doJSON(t, url, uiToken, nil, `{"action":"hasWallet"}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode, "even the right token waits out the lockout")
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestOpenSurfacesWithoutTokens(t *testing.T) {
	srv := httptest.NewServer(api.New(newCore(t), api.WithLogger(discard)).Handler())
	t.Cleanup(srv.Close)

	resp := doJSON(t, srv.URL+"/api/v1/internal", "", nil, `{"action":"isLocked"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	const ui = "chrome-extension://abcdef"
	srv := setupServer(t, newCore(t), api.WithAllowedOrigins(ui))

	req, err := http.NewRequestWithContext(t.Context(), http.MethodOptions, srv.URL+"/api/v1/internal", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", ui)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "authorization,content-type")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, ui, resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Empty(t, resp2.Header.Get("Access-Control-Allow-Origin"))
}

func TestSignThroughHTTP(t *testing.T) {
	var q *approval.Queue
	q = approval.NewQueue(approval.WithNotify(func(r approval.Request) {
		go func() { _ = q.Resolve(r.ID, true) }()
	}))
	core := newCore(t, wallet.WithApprover(q))
	srv := setupServer(t, core)
	client := api.NewClient(srv.URL, api.WithClientRelayToken(relayToken))

	params := func(v any) map[string]json.RawMessage {
		p, err := protocol.ParamsFromEnvelope(mustJSON(t, v))
		require.NoError(t, err)
		return p
	}

	raw, err := client.Send(t.Context(), protocol.ExternalRequest{
		Action: protocol.MethodRequestAccounts,
		Params: params(map[string]string{}),
		Origin: testOrigin,
	})
	require.NoError(t, err)
	var accounts protocol.Result
	require.NoError(t, json.Unmarshal(raw, &accounts))
	require.Len(t, accounts.Accounts, 1)

	raw, err = client.Send(t.Context(), protocol.ExternalRequest{
		Action: protocol.MethodSignMessage,
		Params: params(protocol.SignMessageParams{Message: "hello"}),
		Origin: testOrigin,
	})
	require.NoError(t, err)
	var signed protocol.Result
	require.NoError(t, json.Unmarshal(raw, &signed))
	require.Empty(t, signed.Error)
	assert.Equal(t, accounts.Accounts[0], signed.PublicKey)

	sig, err := hex.DecodeString(signed.Signature)
	require.NoError(t, err)
	assert.True(t, keys.Verify("mainnet", signed.PublicKey, []byte("hello"), sig))
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
