package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Build information. Populated at build time via -ldflags.
var (
	Version   = "0.1.0"
	Commit    = "none"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "guidance %s\n", Version)
		fmt.Fprintf(cmd.OutOrStdout(), "  Commit:     %s\n", Commit)
		fmt.Fprintf(cmd.OutOrStdout(), "  Built:      %s\n", BuildDate)
		fmt.Fprintf(cmd.OutOrStdout(), "  Go version: %s\n", runtime.Version())
		fmt.Fprintf(cmd.OutOrStdout(), "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
