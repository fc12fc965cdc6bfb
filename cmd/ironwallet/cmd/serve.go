package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.etcd.io/bbolt"
	"golang.org/x/sync/errgroup"

	"github.com/jmcleod/ironwallet/api"
	"github.com/jmcleod/ironwallet/approval"
	"github.com/jmcleod/ironwallet/internal/util"
	bboltstorage "github.com/jmcleod/ironwallet/storage/bbolt"
	"github.com/jmcleod/ironwallet/wallet"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the wallet core service",
		Long: `Run the wallet core behind a local HTTP API. Every flag can also be set
	through an IRONWALLET_* environment variable, for example IRONWALLET_ADDR.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServerConfig(cmd.Flags())
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			printBanner(cmd.OutOrStdout())
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *serverConfig) error {
	logger := cfg.logger()

	kdf, err := util.Argon2idProfile(cfg.KDFProfile)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	repo, err := bboltstorage.NewRepositoryFromFile(filepath.Join(cfg.DataDir, "wallet.db"), &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("failed to open wallet storage (is another server running?): %w", err)
	}
	defer repo.Close()

	approvals := approval.NewQueue(
		approval.WithTimeout(cfg.ApprovalTimeout),
		approval.WithLogger(logger),
		approval.WithNotify(func(r approval.Request) {
			logger.Info("approval pending", "id", r.ID, "kind", r.Kind, "origin", r.Origin, "expires_at", r.ExpiresAt)
		}),
	)
	core := wallet.New(repo,
		wallet.WithLogger(logger),
		wallet.WithKDFParams(kdf),
		wallet.WithApprover(approvals),
	)

	a := api.New(core,
		api.WithLogger(logger),
		api.WithRelayToken(cfg.RelayToken),
		api.WithUIToken(cfg.UIToken),
		api.WithAllowedOrigins(cfg.AllowedOrigins...),
		api.WithOriginRateLimit(cfg.OriginRPS, cfg.OriginBurst),
	)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Page requests may wait on the user for a full approval window.
		WriteTimeout: cfg.ApprovalTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("ironwallet launched", "version", Version, "commit", commit, "addr", cfg.Addr, "data_dir", cfg.DataDir)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if cfg.TLSCert != "" {
			err = server.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return core.RunAutoLock(ctx, cfg.AutoLockInterval)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		approvals.RejectAll()
		core.LockWallet(shutdownCtx)
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func addServeFlags(f *pflag.FlagSet) {
	f.String("addr", "127.0.0.1:8420", "Address to listen on")
	f.String("data-dir", "./data", "Directory for persistent data")
	f.String("kdf-profile", util.KDFProfileModerate, "Argon2id profile for new wallets: interactive, moderate or sensitive")
	f.Duration("approval-timeout", approval.DefaultTimeout, "How long a page request waits for the user")
	f.String("relay-token", "", "Bearer token the relay host must present on /external")
	f.String("ui-token", "", "Bearer token the wallet UI must present on /internal")
	f.StringSlice("allowed-origin", nil, "Browser origin allowed to call the API (repeatable)")
	f.String("tls-cert", "", "Path to TLS certificate file")
	f.String("tls-key", "", "Path to TLS key file")
	f.String("log-format", "text", "Log format: text or json")
	f.String("log-level", "info", "Log level: debug, info, warn or error")
}
