// Package cmd provides the CLI commands for the guidance control plane.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/guidanceplane/guidance/internal/config"
)

var cfgFile string

var v = viper.New()

var rootCmd = &cobra.Command{
	Use:   "guidance",
	Short: "Guidance control plane - deterministic policy engine for agent tool calls",
	Long: `guidance compiles a rules document into a policy bundle, retrieves the
relevant policy text for a task, evaluates gate checks against commands,
tool calls, and edits, records run outcomes in an append-only ledger, and
runs optimizer cycles that promote recurring guidance into the
constitution.

Configuration is loaded from guidance.yaml in the current directory,
$HOME/.guidance/, or /etc/guidance/.

Environment variables override config values with the GUIDANCE_ prefix.
Example: GUIDANCE_STORAGE_DIR=/var/lib/guidance

Commands:
  compile    Compile a rules document into a policy bundle
  retrieve   Retrieve the policy text relevant to a task
  gate       Evaluate a command, tool call, or edit against the gate checks
  ledger     Inspect the persisted run-event ledger
  optimize   Run one optimizer cycle
  version    Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./guidance.yaml)")
}

// loadConfig initializes viper and loads and validates the GuidanceConfig.
func loadConfig() (*config.GuidanceConfig, error) {
	config.InitViper(v, cfgFile)
	return config.Load(v)
}
