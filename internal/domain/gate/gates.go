package gate

import (
	"fmt"
	"regexp"
	"strings"
)

// compiledPattern pairs a NamedPattern with its precompiled regexp. Patterns
// are precompiled once at Evaluator construction per spec.md §9 design notes.
type compiledPattern struct {
	name string
	re   *regexp.Regexp
}

// Evaluator holds precompiled patterns for a frozen Config. Constructing an
// Evaluator never fails: a pattern that does not compile is dropped and
// logged by the caller (ConfigError-worthy at load time, but evaluation
// itself never panics or blocks per spec.md §7).
type Evaluator struct {
	cfg                 Config
	destructivePatterns []compiledPattern
	secretPatterns      []compiledPattern
	diffSizeThreshold   int
	allowedTools        []string
	compileWarnings     []string
}

// NewEvaluator precompiles cfg's patterns (falling back to defaults for
// empty lists) and returns an Evaluator plus any pattern compile warnings.
func NewEvaluator(cfg Config) (*Evaluator, []string) {
	destructive := cfg.DestructivePatterns
	if len(destructive) == 0 {
		destructive = DefaultDestructivePatterns()
	}
	secrets := cfg.SecretPatterns
	if len(secrets) == 0 {
		secrets = DefaultSecretPatterns()
	}
	threshold := cfg.DiffSizeThreshold
	if threshold <= 0 {
		threshold = DefaultDiffSizeThreshold
	}

	e := &Evaluator{
		cfg:               cfg,
		diffSizeThreshold: threshold,
		allowedTools:      cfg.AllowedTools,
	}
	e.destructivePatterns, e.compileWarnings = compileAll(destructive, e.compileWarnings)
	e.secretPatterns, e.compileWarnings = compileAll(secrets, e.compileWarnings)
	return e, e.compileWarnings
}

func compileAll(patterns []NamedPattern, warnings []string) ([]compiledPattern, []string) {
	out := make([]compiledPattern, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("pattern %q failed to compile and was dropped: %v", p.Name, err))
			continue
		}
		out = append(out, compiledPattern{name: p.name(), re: re})
	}
	return out, warnings
}

func (p NamedPattern) name() string { return p.Name }

// DestructiveOps evaluates a command string against the destructive-op
// patterns. A pattern that throws at match time (should not happen with
// precompiled regexps, but guarded per spec.md §7) is treated as no-match.
func (e *Evaluator) DestructiveOps(command string) GateResult {
	if m, name := firstMatch(e.destructivePatterns, command); m != "" {
		return GateResult{
			GateName:       "destructive-ops",
			Decision:       RequireConfirmation,
			Reason:         fmt.Sprintf("command matches destructive pattern %q", name),
			TriggeredRules: []TriggeredRule{{PatternName: name, Matched: m}},
			Remediation: strings.Join([]string{
				"1. Review the command to confirm it is intentional.",
				"2. Re-run with explicit human confirmation if this action is expected.",
				"3. If unexpected, cancel the operation and inspect the agent's task plan.",
			}, " "),
		}
	}
	return GateResult{GateName: "destructive-ops", Decision: Allow}
}

// ToolAllowlist evaluates a tool name against the configured allowlist.
// Disabled by default (empty AllowedTools allows everything). Supports "*"
// suffix globs and the universal "*" entry.
func (e *Evaluator) ToolAllowlist(toolName string) GateResult {
	if len(e.allowedTools) == 0 {
		return GateResult{GateName: "tool-allowlist", Decision: Allow}
	}
	for _, pattern := range e.allowedTools {
		if toolMatches(pattern, toolName) {
			return GateResult{GateName: "tool-allowlist", Decision: Allow}
		}
	}
	return GateResult{
		GateName: "tool-allowlist",
		Decision: Block,
		Reason:   fmt.Sprintf("tool %q is not in the configured allowlist", toolName),
		Remediation: fmt.Sprintf(
			"Add %q (or a matching glob) to allowedTools if this tool should be permitted.", toolName),
	}
}

func toolMatches(pattern, toolName string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(toolName, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == toolName
}

// DiffSize evaluates a file's changed-line count against diffSizeThreshold.
// Exactly at the threshold does not warn; threshold+1 does.
func (e *Evaluator) DiffSize(path string, lines int) GateResult {
	if lines > e.diffSizeThreshold {
		return GateResult{
			GateName: "diff-size",
			Decision: Warn,
			Reason:   fmt.Sprintf("%s changes %d lines, exceeding threshold %d", path, lines, e.diffSizeThreshold),
			Remediation: "Consider splitting this change into smaller, reviewable diffs.",
		}
	}
	return GateResult{GateName: "diff-size", Decision: Allow}
}

// Secrets evaluates content against the secret patterns. On a match, the
// matched value is partially redacted in metadata: first 4 chars + "****" +
// last 4 chars. Zero-length content never matches.
func (e *Evaluator) Secrets(content string) GateResult {
	if content == "" {
		return GateResult{GateName: "secrets", Decision: Allow}
	}
	if m, name := firstMatch(e.secretPatterns, content); m != "" {
		return GateResult{
			GateName:       "secrets",
			Decision:       Block,
			Reason:         fmt.Sprintf("content matches secret pattern %q", name),
			TriggeredRules: []TriggeredRule{{PatternName: name, Matched: redact(m)}},
			Remediation:    "Remove the credential from the request and use a secrets manager or environment variable instead.",
			Metadata:       map[string]string{"redacted": redact(m)},
		}
	}
	return GateResult{GateName: "secrets", Decision: Allow}
}

func firstMatch(patterns []compiledPattern, s string) (string, string) {
	for _, p := range patterns {
		if loc := p.re.FindStringIndex(s); loc != nil {
			return s[loc[0]:loc[1]], p.name
		}
	}
	return "", ""
}

// redact returns first4 + "****" + last4 of s, or the whole (masked) value
// when s is too short to split meaningfully.
func redact(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// EvaluateCommand runs the destructive-ops and secrets gates on a command string.
func (e *Evaluator) EvaluateCommand(command string) []GateResult {
	return []GateResult{e.DestructiveOps(command), e.Secrets(command)}
}

// EvaluateToolUse runs the tool-allowlist and secrets gates on a tool
// invocation; paramsSerialized should be stable canonical JSON.
func (e *Evaluator) EvaluateToolUse(toolName, paramsSerialized string) []GateResult {
	return []GateResult{e.ToolAllowlist(toolName), e.Secrets(paramsSerialized)}
}

// EvaluateEdit runs the diff-size and secrets gates on a file edit.
func (e *Evaluator) EvaluateEdit(path, content string, diffLines int) []GateResult {
	return []GateResult{e.DiffSize(path, diffLines), e.Secrets(content)}
}

// Aggregate returns the result with the maximum severity decision, ties
// broken by position (first wins).
func Aggregate(results []GateResult) GateResult {
	if len(results) == 0 {
		return GateResult{GateName: "aggregate", Decision: Allow}
	}
	best := results[0]
	for _, r := range results[1:] {
		if r.Decision > best.Decision {
			best = r
		}
	}
	return best
}
