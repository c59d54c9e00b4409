package compiler

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/guidanceplane/guidance/internal/domain/rule"
)

// headingPattern matches Markdown-style headings (# through ####).
var headingPattern = regexp.MustCompile(`^(#{1,4})\s+(.*)$`)

// constitutionHeadingPattern matches heading text that marks a section as
// always-loaded, per spec.md §4.1 step 2.
var constitutionHeadingPattern = regexp.MustCompile(
	`(?i)safety|security|invariant|constitution|critical|non-negotiable|always|must|never|required|mandatory`,
)

// ruleLinePattern matches the canonical rule-line grammar:
//
//	[ID] <text> (@tag)* (#domain)* (scope:<glob>)? (priority:<int>)? (\((low|medium|high|critical)\))?
var ruleLinePattern = regexp.MustCompile(`^\[([A-Za-z0-9_-]+)\]\s*(.*)$`)

var (
	tagPattern      = regexp.MustCompile(`@([A-Za-z0-9_.-]+)`)
	domainPattern   = regexp.MustCompile(`#([A-Za-z0-9_.-]+)`)
	scopePattern    = regexp.MustCompile(`scope:(\S+)`)
	priorityPattern = regexp.MustCompile(`priority:(-?\d+)`)
	riskPattern     = regexp.MustCompile(`(?i)\((low|medium|high|critical)\)`)
)

// rawRule accumulates the parsed pieces of one [ID] ... line plus any
// trailing prose lines that belong to it.
type rawRule struct {
	id             string
	textLines      []string
	tags           []string
	domains        []string
	scopes         []string
	priority       int
	hasPriority    bool
	risk           rule.RiskClass
	hasRisk        bool
	isConstitution bool
	lineNo         int
}

// section is a heading and the raw rules found under it, plus one implicit
// rule collecting prose that precedes any [ID] line in the section.
type section struct {
	heading        string
	isConstitution bool
	rules          []*rawRule
	implicit       *rawRule
}

// parseDocument splits doc into sections and rule lines. Malformed headers
// are not possible (the heading regex only recognizes well-formed Markdown
// headings); malformed rule lines fall through to prose and are attached to
// the current implicit rule, with a warning recorded by the caller.
func parseDocument(doc string) ([]*section, []string) {
	var warnings []string
	var sections []*section
	current := &section{heading: ""}
	sections = append(sections, current)

	var activeRule *rawRule

	lines := strings.Split(doc, "\n")
	for i, line := range lines {
		lineNo := i + 1
		trimmed := strings.TrimRight(line, "\r")

		if m := headingPattern.FindStringSubmatch(trimmed); m != nil {
			headingText := strings.TrimSpace(m[2])
			current = &section{
				heading:        headingText,
				isConstitution: constitutionHeadingPattern.MatchString(headingText),
			}
			sections = append(sections, current)
			activeRule = nil
			continue
		}

		bare := strings.TrimSpace(trimmed)
		if bare == "" {
			continue
		}

		if m := ruleLinePattern.FindStringSubmatch(bare); m != nil {
			rr := &rawRule{id: m[1], lineNo: lineNo, isConstitution: current.isConstitution}
			parseRuleBody(rr, m[2])
			current.rules = append(current.rules, rr)
			activeRule = rr
			continue
		}

		// Prose: attach to the active explicit rule, or to the section's
		// implicit rule if there is no active [ID] rule yet.
		if activeRule != nil {
			activeRule.textLines = append(activeRule.textLines, bare)
			continue
		}
		if current.implicit == nil {
			current.implicit = &rawRule{lineNo: lineNo, isConstitution: current.isConstitution}
		}
		current.implicit.textLines = append(current.implicit.textLines, bare)
	}

	return sections, warnings
}

// parseRuleBody extracts tags, domains, scope, priority, and risk class from
// the remainder of a rule line, leaving the plain text in rr.textLines.
func parseRuleBody(rr *rawRule, body string) {
	text := body

	for _, m := range tagPattern.FindAllStringSubmatch(body, -1) {
		rr.tags = append(rr.tags, m[1])
	}
	for _, m := range domainPattern.FindAllStringSubmatch(body, -1) {
		rr.domains = append(rr.domains, m[1])
	}
	if m := scopePattern.FindStringSubmatch(body); m != nil {
		rr.scopes = append(rr.scopes, m[1])
	}
	if m := priorityPattern.FindStringSubmatch(body); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			rr.priority = n
			rr.hasPriority = true
		}
	}
	if m := riskPattern.FindStringSubmatch(body); m != nil {
		rr.risk = rule.RiskClass(strings.ToLower(m[1]))
		rr.hasRisk = true
	}

	// Strip all recognized annotations from the text, leaving plain prose.
	text = tagPattern.ReplaceAllString(text, "")
	text = domainPattern.ReplaceAllString(text, "")
	text = scopePattern.ReplaceAllString(text, "")
	text = priorityPattern.ReplaceAllString(text, "")
	text = riskPattern.ReplaceAllString(text, "")
	text = strings.Join(strings.Fields(text), " ")
	if text != "" {
		rr.textLines = append(rr.textLines, text)
	}
}
