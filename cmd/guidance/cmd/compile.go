package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile the rules document into a policy bundle",
	Long: `Compile parses the configured rules document (and local overlay, if
set) into a constitution plus a pool of retrievable rule shards, and
persists the resulting manifest under storage.dir/manifest.json.

Example:
  guidance compile --config guidance.yaml`,
	RunE: runCompile,
}

func init() {
	rootCmd.AddCommand(compileCmd)
}

func runCompile(cmd *cobra.Command, args []string) error {
	orch, _, err := buildOrchestrator()
	if err != nil {
		return err
	}
	defer orch.Close()

	constitution := orch.Constitution()
	lines := strings.Count(constitution.Text, "\n") + 1
	fmt.Fprintf(cmd.OutOrStdout(), "constitution: %d rules, %d lines, hash %s\n", len(constitution.Rules), lines, constitution.Hash)
	if constitution.Truncated {
		fmt.Fprintln(cmd.OutOrStdout(), "warning: constitution was truncated to the configured line cap")
	}
	fmt.Fprintln(cmd.OutOrStdout(), "manifest persisted to storage.dir/manifest.json")
	return nil
}
