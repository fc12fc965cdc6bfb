package cmd

import (
	"bytes"
	"context"
	"image/png"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/ironwallet/api"
	"github.com/jmcleod/ironwallet/approval"
	"github.com/jmcleod/ironwallet/internal/util"
	"github.com/jmcleod/ironwallet/storage/memory"
	"github.com/jmcleod/ironwallet/wallet"
)

const (
	testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	testPassword = "correct horse battery"
	testUIToken  = "ui-token-0123456789"
)

func serveFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	addServeFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestServerConfigDefaults(t *testing.T) {
	cfg, err := loadServerConfig(serveFlags(t))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8420", cfg.Addr)
	assert.Equal(t, util.KDFProfileModerate, cfg.KDFProfile)
	assert.Equal(t, approval.DefaultTimeout, cfg.ApprovalTimeout)
	assert.Equal(t, 15*time.Second, cfg.AutoLockInterval)
}

func TestServerConfigEnvAndFlags(t *testing.T) {
	t.Setenv("IRONWALLET_ADDR", "localhost:9000")
	t.Setenv("IRONWALLET_DATA_DIR", "/tmp/env")
	t.Setenv("IRONWALLET_ALLOWED_ORIGINS", "chrome-extension://a,chrome-extension://b")
	t.Setenv("IRONWALLET_APPROVAL_TIMEOUT", "2m")

	cfg, err := loadServerConfig(serveFlags(t, "--data-dir", "/tmp/flag", "--log-format", "json"))
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", cfg.Addr, "environment fills what flags leave unset")
	assert.Equal(t, "/tmp/flag", cfg.DataDir, "flags win over the environment")
	assert.Equal(t, []string{"chrome-extension://a", "chrome-extension://b"}, cfg.AllowedOrigins)
	assert.Equal(t, 2*time.Minute, cfg.ApprovalTimeout)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestServerConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"addr without host", []string{"--addr", ":8420"}},
		{"unknown kdf profile", []string{"--kdf-profile", "paranoid"}},
		{"short token", []string{"--ui-token", "short"}},
		{"bad log level", []string{"--log-level", "loud"}},
		{"zero approval timeout", []string{"--approval-timeout", "0s"}},
		{"cert without key", []string{"--tls-cert", "cert.pem"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadServerConfig(serveFlags(t, tt.args...))
			assert.ErrorContains(t, err, "invalid configuration")
		})
	}
}

func TestClientConfig(t *testing.T) {
	t.Setenv("IRONWALLET_UI_TOKEN", "from-env")
	fs := pflag.NewFlagSet("client", pflag.ContinueOnError)
	addClientFlags(fs)
	require.NoError(t, fs.Parse([]string{"--server", "http://127.0.0.1:9999"}))

	cfg, err := loadClientConfig(fs)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9999", cfg.Server)
	assert.Equal(t, "from-env", cfg.UIToken)

	require.NoError(t, fs.Set("server", "not a url"))
	_, err = loadClientConfig(fs)
	assert.Error(t, err)
}

func newTestServer(t *testing.T) (*httptest.Server, *wallet.Core) {
	t.Helper()
	params, err := util.Argon2idProfile(util.KDFProfileInteractive)
	require.NoError(t, err)
	logger := slog.New(slog.DiscardHandler)
	core := wallet.New(memory.NewRepository(), wallet.WithKDFParams(params), wallet.WithLogger(logger))
	srv := httptest.NewServer(api.New(core, api.WithLogger(logger), api.WithUIToken(testUIToken)).Handler())
	t.Cleanup(srv.Close)
	return srv, core
}

// run executes the CLI with args against srv, feeding stdin.
func run(t *testing.T, srv *httptest.Server, stdin string, args ...string) (string, error) {
	t.Helper()
	return runContext(t.Context(), srv, stdin, args...)
}

func runContext(ctx context.Context, srv *httptest.Server, stdin string, args ...string) (string, error) {
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append(args, "--server", srv.URL, "--ui-token", testUIToken))
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestInitAndAccounts(t *testing.T) {
	srv, core := newTestServer(t)

	out, err := run(t, srv, testMnemonic+"\n"+testPassword+"\n"+testPassword+"\n", "init", "--import")
	require.NoError(t, err)
	first, err := core.GetActiveAccount(t.Context())
	require.NoError(t, err)
	assert.Contains(t, out, first.Address)

	out, err = run(t, srv, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "present")
	assert.Contains(t, out, "unlocked")

	_, err = run(t, srv, "", "accounts", "create", "Savings")
	require.NoError(t, err)
	_, err = run(t, srv, "", "accounts", "use", "1")
	require.NoError(t, err)

	out, err = run(t, srv, "", "accounts")
	require.NoError(t, err)
	assert.Contains(t, out, "Savings")
	assert.Contains(t, out, first.Address)

	_, err = run(t, srv, "", "lock")
	require.NoError(t, err)
	assert.True(t, core.IsLocked())

	_, err = run(t, srv, "", "accounts", "create")
	assert.ErrorContains(t, err, "wallet is locked")

	_, err = run(t, srv, "wrong password\n", "unlock")
	assert.ErrorContains(t, err, "invalid password")
	_, err = run(t, srv, testPassword+"\n", "unlock")
	require.NoError(t, err)
	assert.False(t, core.IsLocked())
}

func TestInitGeneratesMnemonic(t *testing.T) {
	srv, core := newTestServer(t)

	_, err := run(t, srv, testPassword+"\nsomething else\n", "init", "--import=false")
	assert.ErrorContains(t, err, "passwords do not match")
	has, err := core.HasWallet(t.Context())
	require.NoError(t, err)
	assert.False(t, has)

	out, err := run(t, srv, testPassword+"\n"+testPassword+"\n", "init", "--import=false", "--words", "24")
	require.NoError(t, err)
	assert.Contains(t, out, "recovery phrase")
	has, err = core.HasWallet(t.Context())
	require.NoError(t, err)
	assert.True(t, has)
}

func TestReceiveWritesPNG(t *testing.T) {
	srv, core := newTestServer(t)
	_, err := core.CreateWallet(t.Context(), testMnemonic, testPassword)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "receive.png")
	out, err := run(t, srv, "", "receive", "0", "--png", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	_, err = png.Decode(f)
	require.NoError(t, err)

	out, err = run(t, srv, "", "receive", "--png", "")
	require.NoError(t, err)
	active, err := core.GetActiveAccount(t.Context())
	require.NoError(t, err)
	assert.Contains(t, out, active.Address)
}

func TestNetworkAndAutoLock(t *testing.T) {
	srv, _ := newTestServer(t)

	out, err := run(t, srv, "", "network", "devnet")
	require.NoError(t, err)
	assert.Contains(t, out, "devnet")

	out, err = run(t, srv, "", "autolock", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "7 minutes")

	_, err = run(t, srv, "", "network", "moon")
	assert.ErrorContains(t, err, "unknown network")
}

func TestWrongUIToken(t *testing.T) {
	srv, _ := newTestServer(t)
	root := newRootCmd()
	root.SetArgs([]string{"status", "--server", srv.URL, "--ui-token", "nope"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	err := root.ExecuteContext(t.Context())
	assert.ErrorContains(t, err, "status 401")
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.ExecuteContext(t.Context()))
	assert.Contains(t, out.String(), "ironwallet "+Version)
}

func TestCancelledRunDoesNotLeakIntoNext(t *testing.T) {
	srv, _ := newTestServer(t)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := runContext(ctx, srv, "", "status")
	require.ErrorIs(t, err, context.Canceled)

	out, err := run(t, srv, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "wallet:  none")
}

func TestFlagsDoNotCarryOverBetweenRuns(t *testing.T) {
	srv, _ := newTestServer(t)

	_, err := run(t, srv, "", "init", "--words", "13")
	require.Error(t, err)

	root := newRootCmd()
	initCmd, _, err := root.Find([]string{"init"})
	require.NoError(t, err)
	words, err := initCmd.Flags().GetInt("words")
	require.NoError(t, err)
	assert.Equal(t, 12, words)
}
