// Package compiler parses a natural-language rules document into a
// rule.PolicyBundle: a constitution of always-loaded invariants plus a pool
// of retrievable shards. See spec.md §4.1.
package compiler

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/guidanceplane/guidance/internal/apperr"
	"github.com/guidanceplane/guidance/internal/domain/rule"
)

// Options controls compilation.
type Options struct {
	// MaxConstitutionLines caps constitution rendering (default 60).
	MaxConstitutionLines int
	// Now supplies the logical compile timestamp (injected for determinism;
	// callers must not use time.Now() directly on the hot path per spec.md §5).
	Now time.Time
}

// Result is the compiler's full output: the bundle plus any non-fatal
// warnings accumulated while parsing (malformed headers/lines).
type Result struct {
	Bundle   rule.PolicyBundle
	Warnings []string
}

// Compile parses primaryDoc (required) and an optional localOverlay into a
// PolicyBundle. A missing/empty primaryDoc is a hard ConfigError. Duplicate
// explicit rule IDs are resolved by priority (higher wins); ties broken by
// source (local overlay wins over root); a tie in both priority and source
// is a fatal ConfigError.
func Compile(primaryDoc, localOverlay string, opts Options) (Result, error) {
	if strings.TrimSpace(primaryDoc) == "" {
		return Result{}, apperr.NewConfigError("primaryDoc", fmt.Errorf("primary rules document is empty"))
	}
	if opts.MaxConstitutionLines <= 0 {
		opts.MaxConstitutionLines = rule.DefaultMaxConstitutionLines
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Unix(0, 0).UTC()
	}

	rootRules, rootWarnings := compileDocument(primaryDoc, rule.SourceRoot, now)
	var localRules []rule.GuidanceRule
	var localWarnings []string
	if strings.TrimSpace(localOverlay) != "" {
		localRules, localWarnings = compileDocument(localOverlay, rule.SourceLocal, now)
	}

	merged, mergeWarnings, err := mergeRules(rootRules, localRules)
	if err != nil {
		return Result{}, err
	}

	warnings := append([]string{}, rootWarnings...)
	warnings = append(warnings, localWarnings...)
	warnings = append(warnings, mergeWarnings...)

	var constRules []rule.GuidanceRule
	var shards []rule.RuleShard
	counts := rule.RiskCounts{}
	for _, r := range merged {
		if r.RiskClass.Valid() {
			counts[r.RiskClass]++
		}
		if r.IsConstitution {
			constRules = append(constRules, r)
		} else {
			shards = append(shards, rule.RuleShard{Rule: r, CompactText: compactText(r)})
		}
	}
	rule.SortByPriorityDesc(constRules)

	constitution := rule.RenderConstitution(constRules, opts.MaxConstitutionLines)

	manifest := rule.Manifest{
		RootHash:   rule.CanonicalHash(rule.Canonicalize(primaryDoc)),
		RuleCounts: counts,
		CompiledAt: now,
		Warnings:   warnings,
	}
	if strings.TrimSpace(localOverlay) != "" {
		manifest.LocalHash = rule.CanonicalHash(rule.Canonicalize(localOverlay))
	}

	return Result{
		Bundle: rule.PolicyBundle{
			Constitution: constitution,
			Shards:       shards,
			Manifest:     manifest,
		},
		Warnings: warnings,
	}, nil
}

// compactText assembles "[id] text @tag1 @tag2" for a shard.
func compactText(r rule.GuidanceRule) string {
	var b strings.Builder
	flatText := strings.Join(strings.Fields(strings.ReplaceAll(r.Text, "\n", " ")), " ")
	fmt.Fprintf(&b, "[%s] %s", r.ID, flatText)
	tags := make([]string, 0, len(r.ToolClasses))
	for tc := range r.ToolClasses {
		tags = append(tags, string(tc))
	}
	sort.Strings(tags)
	for _, t := range tags {
		fmt.Fprintf(&b, " @%s", t)
	}
	return b.String()
}

// compileDocument parses doc into sections and converts each rawRule
// (explicit or implicit) into a GuidanceRule, assigning a deterministic
// synthetic ID to implicit rules.
func compileDocument(doc string, source rule.Source, now time.Time) ([]rule.GuidanceRule, []string) {
	sections, warnings := parseDocument(doc)

	var out []rule.GuidanceRule
	for si, sec := range sections {
		all := append([]*rawRule{}, sec.rules...)
		if sec.implicit != nil {
			all = append(all, sec.implicit)
		}
		for ri, rr := range all {
			id := rr.id
			if id == "" {
				id = fmt.Sprintf("IMPLICIT-%d-%d", si, ri)
			}
			out = append(out, toGuidanceRule(id, rr, source, now))
		}
	}
	return out, warnings
}

// toGuidanceRule converts a rawRule into a GuidanceRule, applying the
// constitution priority boost per spec.md §4.1 step 2.
func toGuidanceRule(id string, rr *rawRule, source rule.Source, now time.Time) rule.GuidanceRule {
	base := rr.priority
	priority := base
	if rr.isConstitution {
		priority = base + 100
	}

	risk := rule.RiskClass("medium")
	if rr.hasRisk {
		risk = rr.risk
	}

	toolClasses := map[rule.ToolClass]struct{}{}
	intentTags := map[string]struct{}{}
	for _, t := range rr.tags {
		if isIntentTag(t) {
			intentTags[t] = struct{}{}
			continue
		}
		toolClasses[rule.ToolClass(t)] = struct{}{}
	}

	return rule.GuidanceRule{
		ID:             id,
		Text:           strings.Join(rr.textLines, "\n"),
		Priority:       priority,
		BasePriority:   base,
		RiskClass:      risk,
		ToolClasses:    toolClasses,
		IntentTags:     intentTags,
		RepoScopes:     rr.scopes,
		Domains:        rr.domains,
		Source:         source,
		IsConstitution: rr.isConstitution,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

var knownIntents = map[string]struct{}{
	"bug-fix": {}, "feature": {}, "refactor": {}, "security": {}, "performance": {},
	"testing": {}, "docs": {}, "deployment": {}, "architecture": {}, "debug": {}, "general": {},
}

func isIntentTag(tag string) bool {
	_, ok := knownIntents[tag]
	return ok
}

// mergeRules resolves duplicate IDs across root and local rule sets per
// spec.md §4.1 step 5: higher priority wins; equal priority: local wins
// over root; equal priority and equal source is a fatal ConfigError.
func mergeRules(root, local []rule.GuidanceRule) ([]rule.GuidanceRule, []string, error) {
	byID := map[string][]rule.GuidanceRule{}
	var order []string
	for _, r := range root {
		if _, ok := byID[r.ID]; !ok {
			order = append(order, r.ID)
		}
		byID[r.ID] = append(byID[r.ID], r)
	}
	for _, r := range local {
		if _, ok := byID[r.ID]; !ok {
			order = append(order, r.ID)
		}
		byID[r.ID] = append(byID[r.ID], r)
	}

	var warnings []string
	out := make([]rule.GuidanceRule, 0, len(order))
	for _, id := range order {
		candidates := byID[id]
		if len(candidates) == 1 {
			out = append(out, candidates[0])
			continue
		}
		winner, err := resolveConflict(id, candidates)
		if err != nil {
			return nil, nil, err
		}
		warnings = append(warnings, fmt.Sprintf("duplicate id %q resolved to source=%s priority=%d", id, winner.Source, winner.Priority))
		out = append(out, winner)
	}
	return out, warnings, nil
}

func resolveConflict(id string, candidates []rule.GuidanceRule) (rule.GuidanceRule, error) {
	best := candidates[0]
	for _, c := range candidates[1:] {
		switch {
		case c.Priority > best.Priority:
			best = c
		case c.Priority == best.Priority:
			if c.Source == rule.SourceLocal && best.Source == rule.SourceRoot {
				best = c
			} else if c.Source == best.Source {
				return rule.GuidanceRule{}, apperr.NewConfigError("id:"+id,
					fmt.Errorf("duplicate rule id %q with equal priority (%d) and equal source (%s)", id, c.Priority, c.Source))
			}
		}
	}
	return best, nil
}
