package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/guidanceplane/guidance/internal/domain/retrieval"
	"github.com/guidanceplane/guidance/internal/domain/rule"
)

var (
	retrieveTopK    int
	retrieveIntent  string
	retrieveRepo    string
	retrieveMinRisk string
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <task description>",
	Short: "Retrieve the policy text relevant to a task",
	Long: `Retrieve compiles the configured rules document, classifies or accepts
an override intent, scores every shard against the task description, and
prints the constitution plus the top-K relevant shards as a single policy
text ready to prepend to an agent prompt.

Example:
  guidance retrieve "fix the null pointer panic in the parser"
  guidance retrieve --intent security --top-k 3 "rotate the signing key"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRetrieve,
}

func init() {
	retrieveCmd.Flags().IntVar(&retrieveTopK, "top-k", 0, "number of shards to retrieve (default: configured retrieval.top_k)")
	retrieveCmd.Flags().StringVar(&retrieveIntent, "intent", "", "override automatic intent classification")
	retrieveCmd.Flags().StringVar(&retrieveRepo, "repo", "", "repo path to match against shard repo scopes")
	retrieveCmd.Flags().StringVar(&retrieveMinRisk, "min-risk", "", "exclude shards below this risk class (low|medium|high|critical)")
	rootCmd.AddCommand(retrieveCmd)
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	orch, cfg, err := buildOrchestrator()
	if err != nil {
		return err
	}
	defer orch.Close()

	topK := retrieveTopK
	if topK <= 0 {
		topK = cfg.Retrieval.TopK
	}

	minRisk := rule.RiskClass(strings.ToLower(retrieveMinRisk))
	if minRisk != "" && !minRisk.Valid() {
		return fmt.Errorf("invalid --min-risk %q: must be one of low, medium, high, critical", retrieveMinRisk)
	}

	result, err := orch.Retrieve(retrieval.Request{
		TaskDescription: strings.Join(args, " "),
		Intent:          retrieval.Intent(retrieveIntent),
		RepoPath:        retrieveRepo,
		MinRiskClass:    minRisk,
		TopK:            topK,
	})
	if err != nil {
		return fmt.Errorf("retrieve: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "detected intent: %s (confidence %.2f)\n", result.DetectedIntent, result.Confidence)
	fmt.Fprintf(cmd.OutOrStdout(), "selected %d shard(s)\n\n", len(result.SelectedShards))
	fmt.Fprintln(cmd.OutOrStdout(), result.PolicyText)
	return nil
}
