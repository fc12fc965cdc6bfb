package cmd

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jmcleod/ironwallet/api"
	"github.com/jmcleod/ironwallet/approval"
	"github.com/jmcleod/ironwallet/wallet"
)

// Commands in this file talk to a running server through its internal
// surface, the same one the wallet UI uses.

func addClientFlags(f *pflag.FlagSet) {
	f.String("server", "http://127.0.0.1:8420", "Base URL of the wallet server")
	f.String("ui-token", "", "Bearer token for the internal surface")
}

// call performs one internal action and decodes its data into out, which
// may be nil.
func call(cmd *cobra.Command, action string, params, out any) error {
	cfg, err := loadClientConfig(cmd.Flags())
	if err != nil {
		return err
	}
	client := api.NewClient(cfg.Server, api.WithClientUIToken(cfg.UIToken))
	data, err := client.Internal(cmd.Context(), action, params)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

type flagValue struct {
	Value bool `json:"value"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a wallet exists and is unlocked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var has, locked flagValue
			if err := call(cmd, "hasWallet", nil, &has); err != nil {
				return err
			}
			if err := call(cmd, "isLocked", nil, &locked); err != nil {
				return err
			}
			var network wallet.Network
			if err := call(cmd, "getNetwork", nil, &network); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "wallet:  %s\n", map[bool]string{true: "present", false: "none"}[has.Value])
			fmt.Fprintf(out, "session: %s\n", map[bool]string{true: "locked", false: "unlocked"}[locked.Value])
			fmt.Fprintf(out, "network: %s (%s)\n", network.Name, network.ChainID)
			return nil
		},
	}
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a new wallet, or import one with --import",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrompter(cmd)
			importing, _ := cmd.Flags().GetBool("import")
			out := cmd.OutOrStdout()

			var mnemonic string
			if importing {
				m, err := p.secret("Recovery phrase: ")
				if err != nil {
					return err
				}
				mnemonic = m
			} else {
				words, _ := cmd.Flags().GetInt("words")
				var gen struct {
					Mnemonic string `json:"mnemonic"`
				}
				if err := call(cmd, "generateMnemonic", map[string]int{"words": words}, &gen); err != nil {
					return err
				}
				mnemonic = gen.Mnemonic
				fmt.Fprintln(out, "Write down this recovery phrase and keep it offline:")
				fmt.Fprintf(out, "\n  %s\n\n", mnemonic)
			}

			password, err := p.newPassword()
			if err != nil {
				return err
			}
			action := "createWallet"
			if importing {
				action = "importWallet"
			}
			var acct wallet.Account
			if err := call(cmd, action, map[string]string{"mnemonic": mnemonic, "password": password}, &acct); err != nil {
				return err
			}
			fmt.Fprintf(out, "Wallet ready. First account: %s\n", acct.Address)
			return nil
		},
	}
}

func newUnlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Unlock the wallet session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := newPrompter(cmd).secret("Wallet password: ")
			if err != nil {
				return err
			}
			if err := call(cmd, "unlockWallet", map[string]string{"password": password}, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Unlocked.")
			return nil
		},
	}
}

func newLockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lock",
		Short: "Lock the wallet session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := call(cmd, "lockWallet", nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Locked.")
			return nil
		},
	}
}

func newAccountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var accounts []wallet.Account
			if err := call(cmd, "getAccounts", nil, &accounts); err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "\tINDEX\tNAME\tKIND\tADDRESS")
			for _, a := range accounts {
				marker := ""
				if a.Active {
					marker = "*"
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", marker, a.Index, a.Name, a.Kind, a.Address)
			}
			return tw.Flush()
		},
	}
}

func newAccountsCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create [name]",
		Short: "Derive the next account",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			var acct wallet.Account
			if err := call(cmd, "createAccount", map[string]string{"name": name}, &acct); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", acct.Index, acct.Name, acct.Address)
			return nil
		},
	}
}

func newAccountsUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <index>",
		Short: "Select the active account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			var acct wallet.Account
			if err := call(cmd, "setActiveAccount", map[string]uint32{"index": index}, &acct); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Active account: %s (%s)\n", acct.Name, acct.Address)
			return nil
		},
	}
}

func newAccountsRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <index> <name>",
		Short: "Rename an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			return call(cmd, "renameAccount", map[string]any{"index": index, "name": args[1]}, nil)
		},
	}
}

func newAccountsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <index>",
		Short: "Remove an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			return call(cmd, "removeAccount", map[string]uint32{"index": index}, nil)
		},
	}
}

func newReceiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "receive [index]",
		Short: "Show an account address as a QR code",
		Long: `Show an account address as a QR code in the terminal. With --png the
	code is written to a file instead. Defaults to account 0.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var index uint32
			if len(args) == 1 {
				i, err := parseIndex(args[0])
				if err != nil {
					return err
				}
				index = i
			}
			var code wallet.ReceiveCode
			if err := call(cmd, "getReceiveQR", map[string]uint32{"index": index}, &code); err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if path, _ := cmd.Flags().GetString("png"); path != "" {
				png, err := base64.StdEncoding.DecodeString(code.QR)
				if err != nil {
					return fmt.Errorf("decoding QR code: %w", err)
				}
				if err := os.WriteFile(path, png, 0o644); err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\nQR code written to %s\n", code.Address, path)
				return nil
			}

			qr, err := qrcode.New(code.Address, qrcode.Medium)
			if err != nil {
				return err
			}
			fmt.Fprint(out, qr.ToString(false))
			fmt.Fprintln(out, code.Address)
			return nil
		},
	}
}

func newSitesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "List connected sites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var sites []wallet.ConnectedSite
			if err := call(cmd, "getConnectedSites", nil, &sites); err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ORIGIN\tNAME\tCONNECTED")
			for _, s := range sites {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Origin, s.Name, s.ConnectedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
}

func newSitesDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect <origin>",
		Short: "Revoke a site's connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, "disconnectSite", map[string]string{"origin": args[0]}, nil)
		},
	}
}

func newApprovalsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approvals",
		Short: "List requests waiting for a decision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var pending []approval.Request
			if err := call(cmd, "listApprovals", nil, &pending); err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tKIND\tORIGIN\tEXPIRES")
			for _, r := range pending {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Kind, r.Origin, time.Until(r.ExpiresAt).Round(time.Second))
			}
			return tw.Flush()
		},
	}
}

func resolveCmd(use, short string, approve bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, "resolveApproval", map[string]any{"id": args[0], "approve": approve}, nil)
		},
	}
}

func newNetworkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "network [id]",
		Short: "Show or switch the active network",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var n wallet.Network
			var err error
			if len(args) == 1 {
				err = call(cmd, "setNetwork", map[string]string{"networkId": args[0]}, &n)
			} else {
				err = call(cmd, "getNetwork", nil, &n)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", n.ID, n.ChainID, n.GraphQLURL)
			return nil
		},
	}
}

func newAutoLockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "autolock [minutes]",
		Short: "Show or set the idle auto-lock timeout (0 disables)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				m, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid minutes %q", args[0])
				}
				if err := call(cmd, "setAutoLock", map[string]int{"minutes": m}, nil); err != nil {
					return err
				}
			}
			var got struct {
				Minutes int `json:"minutes"`
			}
			if err := call(cmd, "getAutoLock", nil, &got); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "auto-lock: %d minutes\n", got.Minutes)
			return nil
		},
	}
}

func parseIndex(s string) (uint32, error) {
	i, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid account index %q", s)
	}
	return uint32(i), nil
}

// addWalletCommands attaches the client commands to root.
func addWalletCommands(root *cobra.Command) {
	initCmd := newInitCmd()
	initCmd.Flags().Bool("import", false, "Import an existing recovery phrase")
	initCmd.Flags().Int("words", 12, "Length of a generated recovery phrase: 12 or 24")

	receiveCmd := newReceiveCmd()
	receiveCmd.Flags().String("png", "", "Write the QR code to this PNG file")

	accountsCmd := newAccountsCmd()
	accountsCmd.AddCommand(newAccountsCreateCmd(), newAccountsUseCmd(), newAccountsRenameCmd(), newAccountsRemoveCmd())

	sitesCmd := newSitesCmd()
	sitesCmd.AddCommand(newSitesDisconnectCmd())

	approvalsCmd := newApprovalsCmd()
	approvalsCmd.AddCommand(
		resolveCmd("approve", "Approve a pending request", true),
		resolveCmd("reject", "Reject a pending request", false),
	)

	cmds := []*cobra.Command{
		newStatusCmd(), initCmd, newUnlockCmd(), newLockCmd(), accountsCmd, receiveCmd,
		sitesCmd, approvalsCmd, newNetworkCmd(), newAutoLockCmd(),
	}
	var withClientFlags func(c *cobra.Command)
	withClientFlags = func(c *cobra.Command) {
		addClientFlags(c.Flags())
		for _, sub := range c.Commands() {
			withClientFlags(sub)
		}
	}
	for _, c := range cmds {
		withClientFlags(c)
	}
	root.AddCommand(cmds...)
}
