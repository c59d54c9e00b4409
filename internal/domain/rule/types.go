// Package rule contains the data model shared by the compiler, retriever,
// and optimizer: GuidanceRule, Constitution, RuleShard, and PolicyBundle.
package rule

import "time"

// RiskClass is the severity tier attached to a rule.
type RiskClass string

// Risk classes ordered from least to most severe.
const (
	RiskLow      RiskClass = "low"
	RiskMedium   RiskClass = "medium"
	RiskHigh     RiskClass = "high"
	RiskCritical RiskClass = "critical"
)

// riskRank gives RiskClass a total order for minRiskClass filtering.
var riskRank = map[RiskClass]int{
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// Rank returns the severity rank of the risk class, or -1 if unknown.
func (r RiskClass) Rank() int {
	v, ok := riskRank[r]
	if !ok {
		return -1
	}
	return v
}

// Valid reports whether r is one of the four recognized risk classes.
func (r RiskClass) Valid() bool {
	_, ok := riskRank[r]
	return ok
}

// ToolClass identifies a category of tool a rule applies to.
type ToolClass string

// Recognized tool classes. ToolClassAny ("*") matches every tool.
const (
	ToolClassBash  ToolClass = "bash"
	ToolClassEdit  ToolClass = "edit"
	ToolClassWrite ToolClass = "write"
	ToolClassMCP   ToolClass = "mcp"
	ToolClassAny   ToolClass = "*"
)

// Source identifies where a rule originated.
type Source string

const (
	// SourceRoot marks a rule loaded from the primary rules document, or
	// promoted into the constitution by the optimizer.
	SourceRoot Source = "root"
	// SourceLocal marks a rule loaded from the local overlay document.
	SourceLocal Source = "local"
)

// GuidanceRule is a single compiled rule.
type GuidanceRule struct {
	// ID is the unique identifier, e.g. "R042".
	ID string
	// Text is the normalized rule text.
	Text string
	// Priority determines precedence; higher wins.
	Priority int
	// BasePriority is Priority before any constitution boost was applied.
	// Constitution rules satisfy Priority >= BasePriority + 100.
	BasePriority int
	// RiskClass is the severity tier of the rule.
	RiskClass RiskClass
	// ToolClasses is the set of tool categories this rule applies to.
	ToolClasses map[ToolClass]struct{}
	// IntentTags is the set of task intents this rule is relevant to.
	IntentTags map[string]struct{}
	// RepoScopes is a glob set; "*" matches every repo path.
	RepoScopes []string
	// Domains are free-form tags used for contradiction resolution.
	Domains []string
	// Verifiers are optional check identifiers attached to the rule.
	Verifiers []string
	// Source identifies the originating document.
	Source Source
	// IsConstitution is true when the rule is always-loaded.
	IsConstitution bool
	// CreatedAt and UpdatedAt are monotonic logical timestamps (not wall-clock
	// sensitive; callers supply them so compilation and promotion stay replayable).
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasToolClass reports whether the rule applies to the given tool class,
// honoring the universal "*" tool class.
func (g GuidanceRule) HasToolClass(tc ToolClass) bool {
	if len(g.ToolClasses) == 0 {
		return true
	}
	if _, ok := g.ToolClasses[ToolClassAny]; ok {
		return true
	}
	_, ok := g.ToolClasses[tc]
	return ok
}

// HasIntent reports whether the rule is tagged with the given intent.
func (g GuidanceRule) HasIntent(intent string) bool {
	_, ok := g.IntentTags[intent]
	return ok
}

// HasDomain reports whether the rule carries the given domain tag.
func (g GuidanceRule) HasDomain(domain string) bool {
	for _, d := range g.Domains {
		if d == domain {
			return true
		}
	}
	return false
}

// Constitution is the always-loaded subset of rules.
type Constitution struct {
	// Rules are the constitution rules in rendering order.
	Rules []GuidanceRule
	// Text is the rendered constitution, capped at maxConstitutionLines.
	Text string
	// Truncated is true if rendering hit the line cap.
	Truncated bool
	// Hash is the first 16 hex chars of SHA-256 of the canonicalized Text.
	Hash string
}

// RuleShard wraps a non-constitution rule with its compact representation
// and an optional fixed-dimension embedding.
type RuleShard struct {
	// Rule is the underlying guidance rule.
	Rule GuidanceRule
	// CompactText is "[id] text @tag1 @tag2".
	CompactText string
	// Embedding is a fixed-dimension vector, nil until computed by the retriever.
	Embedding []float64
}

// RiskCounts maps risk class names to rule counts.
type RiskCounts map[RiskClass]int

// Manifest records compile-time provenance.
type Manifest struct {
	// RootHash is the SHA-256-16 hash of the canonicalized primary document text.
	RootHash string
	// LocalHash is the SHA-256-16 hash of the canonicalized overlay text, empty if none.
	LocalHash string
	// RuleCounts maps risk class to rule count across the whole bundle.
	RuleCounts RiskCounts
	// CompiledAt is the logical compile timestamp.
	CompiledAt time.Time
	// Warnings holds non-fatal issues encountered while compiling (malformed headers/lines).
	Warnings []string
}

// PolicyBundle is the Compiler's output and the Retriever's input.
// Ownership transfers to the Retriever on Index; the orchestrator does not
// mutate a bundle after hand-off.
type PolicyBundle struct {
	Constitution Constitution
	Shards       []RuleShard
	Manifest     Manifest
}
