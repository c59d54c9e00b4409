package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Run one optimizer cycle",
	Long: `Optimize ranks the persisted ledger's violations, derives a rule change
for each of the top candidates, runs an A/B comparison (a real executor if
one is configured, otherwise the conservative fallback estimates), and
applies a promotion or demotion once a candidate has accumulated enough
consecutive wins. Produced ADRs are appended to storage.dir/adrs.log.

Example:
  guidance optimize`,
	RunE: runOptimize,
}

func init() {
	rootCmd.AddCommand(optimizeCmd)
}

func runOptimize(cmd *cobra.Command, args []string) error {
	orch, _, err := buildOrchestrator()
	if err != nil {
		return err
	}
	defer orch.Close()

	adrs, err := orch.Optimize()
	if err != nil {
		return fmt.Errorf("optimize: %w", err)
	}

	if len(adrs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no optimizer cycle run: below minimum event threshold")
		return nil
	}

	for _, adr := range adrs {
		fmt.Fprintf(cmd.OutOrStdout(), "ADR-%d: %s rule=%s kind=%s\n", adr.Number, adr.Decision, adr.Change.TargetRuleID, adr.Change.Kind)
		fmt.Fprintf(cmd.OutOrStdout(), "  rationale: %s\n", adr.Change.Rationale)
	}
	return nil
}
