package gate

// DefaultDestructivePatterns lists the built-in destructive-operation
// patterns from spec.md §4.3. All are case-insensitive with word
// boundaries where meaningful.
func DefaultDestructivePatterns() []NamedPattern {
	return []NamedPattern{
		{"rm-rf", `(?i)\brm\s+(-\w*r\w*f\w*|-\w*f\w*r\w*)\b`},
		{"drop-database", `(?i)\bDROP\s+(DATABASE|TABLE|SCHEMA|INDEX)\b`},
		{"truncate-table", `(?i)\bTRUNCATE\s+TABLE\b`},
		{"git-push-force", `(?i)\bgit\s+push\b.*--force\b`},
		{"git-reset-hard", `(?i)\bgit\s+reset\s+--hard\b`},
		{"git-clean-fd", `(?i)\bgit\s+clean\s+-\w*f\w*d\w*\b`},
		{"format-drive", `(?i)\bformat\s+[a-zA-Z]:`},
		{"del-recursive-force", `(?i)\bdel\s+(/s|/f)\b`},
		{"k8s-delete-all", `(?i)\b(kubectl|helm)\s+delete\b.*(--all\b|\bnamespace\b)`},
		{"delete-from-unbounded", `(?i)\bDELETE\s+FROM\s+\S+\s*;?\s*$`},
		{"alter-table-drop", `(?i)\bALTER\s+TABLE\b.*\bDROP\b`},
	}
}

// DefaultSecretPatterns lists the built-in secret-detection patterns from
// spec.md §4.3, grounded on the response-scanner's compiled-at-construction
// regex style.
func DefaultSecretPatterns() []NamedPattern {
	return []NamedPattern{
		{"api-key-assignment", `(?i)\b(api[_-]?key)\b\s*[:=]\s*["']?([A-Za-z0-9_\-./+]{8,})["']?`},
		{"password-assignment", `(?i)\b(password|passwd|pwd)\b\s*[:=]\s*["']?(\S{4,})["']?`},
		{"bearer-token", `(?i)\bbearer\s+([A-Za-z0-9_\-.~+/]{8,}=*)`},
		{"pem-private-key", `-----BEGIN (RSA |EC |OPENSSH |)PRIVATE KEY-----`},
		{"vendor-key-sk", `\bsk-[A-Za-z0-9]{16,}\b`},
		{"vendor-key-ghp", `\bghp_[A-Za-z0-9]{20,}\b`},
		{"vendor-key-npm", `\bnpm_[A-Za-z0-9]{20,}\b`},
		{"vendor-key-akia", `\bAKIA[0-9A-Z]{12,}\b`},
	}
}
