// Package retrieval selects the shards relevant to a task from a compiled
// rule.PolicyBundle via hybrid similarity/intent/risk scoring with
// contradiction resolution. See spec.md §4.2.
package retrieval

import "github.com/guidanceplane/guidance/internal/domain/rule"

// Intent is one of the 11 task categories used to boost shard relevance.
type Intent string

// The 11 recognized task intents.
const (
	IntentBugFix       Intent = "bug-fix"
	IntentFeature      Intent = "feature"
	IntentRefactor     Intent = "refactor"
	IntentSecurity     Intent = "security"
	IntentPerformance  Intent = "performance"
	IntentTesting      Intent = "testing"
	IntentDocs         Intent = "docs"
	IntentDeployment   Intent = "deployment"
	IntentArchitecture Intent = "architecture"
	IntentDebug        Intent = "debug"
	IntentGeneral      Intent = "general"
)

// DefaultTopK is the default number of shards a retrieval returns.
const DefaultTopK = 5

// Request is a retrieval request.
type Request struct {
	// TaskDescription is the natural-language task description to classify and embed.
	TaskDescription string
	// Intent overrides automatic classification when non-empty.
	Intent Intent
	// RepoPath is matched against shard RepoScopes.
	RepoPath string
	// MinRiskClass excludes shards below this severity, when set.
	MinRiskClass rule.RiskClass
	// TopK overrides DefaultTopK when > 0.
	TopK int
}

// ScoreBreakdown explains how a shard's score was computed.
type ScoreBreakdown struct {
	RuleID        string
	Cosine        float64
	IntentBoost   float64
	RiskBoost     float64
	Total         float64
}

// Result is the output of a retrieval: constitution plus the most relevant
// K shards as a single policy text plus metadata.
type Result struct {
	// PolicyText is constitution.Text + "\n\n" + selected shard CompactText lines.
	PolicyText string
	// SelectedShards are the admitted shards in final (descending-score) order.
	SelectedShards []rule.RuleShard
	// DetectedIntent is the classified or overridden intent.
	DetectedIntent Intent
	// Confidence is the intent classification confidence in [0,1].
	Confidence float64
	// ScoreBreakdown lists the score components for every candidate shard considered,
	// in the order they were evaluated (post repo-scope/risk filtering, pre top-K cut).
	ScoreBreakdown []ScoreBreakdown
}
