package cmd

import (
	"fmt"

	"github.com/carlmjohnson/versioninfo"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time with -ldflags "-X ...cmd.Version=v1.2.3".
	Version = "0.0.1-src"
	commit  = versioninfo.Short()
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ironwallet %s\n", Version)
			fmt.Fprintf(out, "commit:   %s\n", commit)
			if !versioninfo.LastCommit.IsZero() {
				fmt.Fprintf(out, "built:    %s\n", versioninfo.LastCommit.UTC().Format("2006-01-02T15:04:05Z"))
			}
			return nil
		},
	}
}
