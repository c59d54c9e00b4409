package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/guidanceplane/guidance/internal/domain/gate"
)

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Evaluate a command, tool call, or edit against the gate checks",
	Long: `Gate runs the four pure enforcement checks (destructive operations, tool
allowlist, diff size, secrets) against a single input and prints the
aggregated decision.

Subcommands:
  command   Evaluate a shell command
  tool      Evaluate a tool call's serialized parameters
  edit      Evaluate a file edit's content and line count`,
}

var gateCommandCmd = &cobra.Command{
	Use:   "command <shell command>",
	Short: "Evaluate a shell command against the destructive-operations and secrets gates",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGate(cmd, func(orch gateEvaluator) gate.GateResult {
			return orch.EvaluateCommand(args[0])
		})
	},
}

var gateToolCmd = &cobra.Command{
	Use:   "tool <tool-name> <serialized-params>",
	Short: "Evaluate a tool call against the allowlist and secrets gates",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGate(cmd, func(orch gateEvaluator) gate.GateResult {
			return orch.EvaluateToolUse(args[0], args[1])
		})
	},
}

var gateEditCmd = &cobra.Command{
	Use:   "edit <path> <content-file> <diff-lines>",
	Short: "Evaluate a file edit against the diff-size and secrets gates",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("read content file %s: %w", args[1], err)
		}
		diffLines, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid diff-lines %q: %w", args[2], err)
		}
		return runGate(cmd, func(orch gateEvaluator) gate.GateResult {
			return orch.EvaluateEdit(args[0], string(content), diffLines)
		})
	},
}

func init() {
	gateCmd.AddCommand(gateCommandCmd, gateToolCmd, gateEditCmd)
	rootCmd.AddCommand(gateCmd)
}

// gateEvaluator is the subset of *service.Orchestrator the gate subcommands need.
type gateEvaluator interface {
	EvaluateCommand(command string) gate.GateResult
	EvaluateToolUse(toolName, paramsSerialized string) gate.GateResult
	EvaluateEdit(path, content string, diffLines int) gate.GateResult
}

func runGate(cmd *cobra.Command, evaluate func(gateEvaluator) gate.GateResult) error {
	orch, _, err := buildOrchestrator()
	if err != nil {
		return err
	}
	defer orch.Close()

	result := evaluate(orch)
	fmt.Fprintf(cmd.OutOrStdout(), "decision: %s\n", result.Decision)
	if result.Reason != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "reason: %s\n", result.Reason)
	}
	for _, tr := range result.TriggeredRules {
		fmt.Fprintf(cmd.OutOrStdout(), "triggered: %s (%s)\n", tr.PatternName, tr.Matched)
	}
	if result.Remediation != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "remediation: %s\n", result.Remediation)
	}
	if result.Decision == gate.Block {
		return fmt.Errorf("blocked")
	}
	return nil
}
