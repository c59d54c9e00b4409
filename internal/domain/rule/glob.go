package rule

import "path/filepath"

// MatchesRepoScope reports whether repoPath is covered by scopes. An empty
// scopes list or a literal "*" entry matches every path. Patterns are
// matched with path/filepath.Match semantics against the full repoPath and,
// for directory-style globs, against its base name as well.
func MatchesRepoScope(scopes []string, repoPath string) bool {
	if len(scopes) == 0 {
		return true
	}
	for _, scope := range scopes {
		if scope == "*" || scope == "" {
			return true
		}
		if ok, _ := filepath.Match(scope, repoPath); ok {
			return true
		}
		if ok, _ := filepath.Match(scope, filepath.Base(repoPath)); ok {
			return true
		}
	}
	return false
}

// ValidGlob reports whether pattern is a syntactically valid glob, i.e. it
// compiles under filepath.Match's grammar.
func ValidGlob(pattern string) bool {
	_, err := filepath.Match(pattern, "")
	return err == nil
}
