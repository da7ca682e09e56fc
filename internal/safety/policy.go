// Package safety implements the Safety Gate: the per-call allow/ask/deny
// decision engine and the redaction pipeline it shares with the WAL
// emitter.
package safety

import "strings"

// Mode is the global fallback decision when no rule matches.
type Mode string

const (
	ModeAllow Mode = "allow"
	ModeAsk   Mode = "ask"
	ModeDeny  Mode = "deny"
)

// SandboxPermission escalates the decision regardless of allowlist hits.
type SandboxPermission string

const (
	SandboxDefault          SandboxPermission = ""
	SandboxRequireEscalated SandboxPermission = "require_escalated"
)

// Policy is the custom-tool allow/deny configuration. It is deliberately
// kept separate from ShellPolicy's argv allow/deny lists: a custom tool
// name is never matched against the shell lists and vice versa.
type Policy struct {
	Mode              Mode
	Allow             []string
	Deny              []string
	SandboxPermission SandboxPermission
}

// ShellPolicy holds the argv-prefix allow/deny lists used only for
// shell_exec/exec_command risk evaluation.
type ShellPolicy struct {
	Allow []string
	Deny  []string
}

// NormalizeTool lowercases and trims a tool name for comparison, matching
// policy.NormalizeTool's behavior minus alias resolution, which this
// engine does not perform.
func NormalizeTool(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// matchPattern supports the pattern grammar:
//   - "*"                 matches anything
//   - "mcp:*"             matches any mcp: tool
//   - "prefix.*"          matches any tool starting with "prefix."
//   - exact string        matches only itself
func matchPattern(pattern, name string) bool {
	if pattern == "*" {
		return true
	}
	if pattern == name {
		return true
	}
	if strings.HasSuffix(pattern, ":*") {
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
	}
	if strings.HasSuffix(pattern, ".*") {
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
	}
	return false
}

func matchesAny(patterns []string, name string) (bool, string) {
	for _, p := range patterns {
		if matchPattern(NormalizeTool(p), name) {
			return true, p
		}
	}
	return false, ""
}
