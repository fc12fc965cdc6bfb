package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// newRootCmd builds the full command tree. Each call returns a fresh tree,
// so no flag or context state carries over between executions.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ironwallet",
		Short: "IronWallet is a Mina wallet core for browser pages",
		Long: `IronWallet keeps Mina keys behind a local service. Web pages reach it
through a relay that stamps each request with the page origin; the wallet
UI and this CLI drive it through the internal surface.`,
		SilenceUsage: true,
	}

	serveCmd := newServeCmd()
	addServeFlags(serveCmd.Flags())
	root.AddCommand(serveCmd, newVersionCmd())
	addWalletCommands(root)
	return root
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
