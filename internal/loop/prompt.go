package loop

import (
	"fmt"
	"strings"

	"github.com/skillrun/agentcore/internal/skills"
)

// buildSystemPrompt composes the system message from the configured
// template text and, when requested, a list of every skill the Skills
// Manager currently has on offer — so the model knows what mentions are
// available without the caller hand-maintaining a second list.
func buildSystemPrompt(cfg Config, available []skills.Skill) string {
	var b strings.Builder
	if cfg.SystemText != "" {
		b.WriteString(cfg.SystemText)
	}
	if cfg.IncludeSkillsList && len(available) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Available skills:\n")
		for _, sk := range available {
			fmt.Fprintf(&b, "- $[%s].%s: %s\n", sk.Namespace, sk.SkillName, sk.Description)
		}
	}
	return b.String()
}

// buildDeveloperPrompt returns the configured developer/instructions text
// verbatim; it is a separate message so providers that distinguish
// system/developer roles can route it accordingly.
func buildDeveloperPrompt(cfg Config) string {
	return cfg.DeveloperText
}
