// Package redact masks secrets out of strings before they reach a log
// line, adapted from pkg/masking/pattern.go's compiled-regex-plus-
// replacement idiom. The teacher's MaskingService scopes patterns per MCP
// server and alert payload; CALIBER has no MCP server registry or alert
// payloads, so this package keeps only the pattern-compilation shape and
// applies a fixed builtin set to whatever text the caller hands it; in
// caliberd that is the pack directory value in the startup log line.
package redact

import "regexp"

// Pattern is a pre-compiled regex with its replacement text.
type Pattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// builtinPatterns mirrors the shape of pkg/config's BuiltinConfig.MaskingPatterns
// but is fixed at compile time since CALIBER has no per-server masking config.
var builtinPatterns = []Pattern{
	{
		Name:        "postgres_dsn_password",
		Regex:       regexp.MustCompile(`(postgres(?:ql)?://[^:/?#\s]+:)[^@/?#\s]+(@)`),
		Replacement: "${1}***${2}",
	},
	{
		Name:        "bearer_token",
		Regex:       regexp.MustCompile(`(?i)(bearer\s+)[a-z0-9._\-]+`),
		Replacement: "${1}***",
	},
	{
		Name:        "key_value_secret",
		Regex:       regexp.MustCompile(`(?i)\b((?:api[_-]?key|secret|password|token)\s*[:=]\s*)\S+`),
		Replacement: "${1}***",
	},
}

// Redactor applies the builtin pattern set to arbitrary text.
type Redactor struct {
	patterns []Pattern
}

// New builds a Redactor over the builtin pattern set.
func New() *Redactor {
	return &Redactor{patterns: builtinPatterns}
}

// Mask runs every compiled pattern over s in order and returns the result.
func (r *Redactor) Mask(s string) string {
	for _, p := range r.patterns {
		s = p.Regex.ReplaceAllString(s, p.Replacement)
	}
	return s
}
