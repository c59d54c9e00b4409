package rule

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DefaultMaxConstitutionLines is the default cap on constitution rendering.
const DefaultMaxConstitutionLines = 60

// truncationMarker is appended when rendering overflows maxLines.
const truncationMarker = "... [truncated]"

// RenderConstitution concatenates rule text line-by-line up to maxLines and
// computes the canonical hash. Rules are rendered in the order given; callers
// that need priority ordering should sort before calling.
func RenderConstitution(rules []GuidanceRule, maxLines int) Constitution {
	if maxLines <= 0 {
		maxLines = DefaultMaxConstitutionLines
	}

	var lines []string
	for _, r := range rules {
		for _, line := range strings.Split(r.Text, "\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				lines = append(lines, line)
			}
		}
	}

	truncated := false
	if len(lines) > maxLines {
		lines = lines[:maxLines]
		lines = append(lines, truncationMarker)
		truncated = true
	}

	text := strings.Join(lines, "\n")
	return Constitution{
		Rules:     rules,
		Text:      text,
		Truncated: truncated,
		Hash:      CanonicalHash(text),
	}
}

// CanonicalHash returns the first 16 hex characters of the SHA-256 digest of
// the NFC-normalized, whitespace-canonicalized form of s.
func CanonicalHash(s string) string {
	sum := sha256.Sum256([]byte(Canonicalize(s)))
	return hex.EncodeToString(sum[:])[:16]
}

// Canonicalize NFC-normalizes s and collapses internal run-of-whitespace,
// so that two documents differing only in incidental whitespace or Unicode
// normalization form compile to the same hash.
func Canonicalize(s string) string {
	normalized := norm.NFC.String(s)
	var b strings.Builder
	lastSpace := false
	for _, r := range normalized {
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
			}
			lastSpace = true
			continue
		}
		lastSpace = false
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// SortByPriorityDesc sorts rules by descending priority, ties broken by ID
// ascending for determinism.
func SortByPriorityDesc(rules []GuidanceRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
}
