package safety

import "github.com/skillrun/agentcore/internal/engine"

// SanitizeArgs applies the redaction rules to a tool call's
// arguments before they are journaled or summarized for an approval
// request: env objects collapse to key lists, file_write.content
// collapses to a size+hash summary, and any remaining string field is run
// through the caller-supplied secret redactor.
func SanitizeArgs(toolName string, args map[string]any, redactor engine.Redactor) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		switch {
		case k == "env":
			switch m := v.(type) {
			case map[string]string:
				out[k] = engine.RedactEnv(m)
			case map[string]any:
				// JSON-decoded args arrive as map[string]any.
				converted := make(map[string]string, len(m))
				for key := range m {
					converted[key] = ""
				}
				out[k] = engine.RedactEnv(converted)
			default:
				out[k] = v
			}
		case toolName == "file_write" && k == "content":
			if s, ok := v.(string); ok {
				out[k] = engine.RedactFileContent([]byte(s))
				continue
			}
			out[k] = v
		default:
			if redactor != nil {
				out[k] = redactor(k, v)
			} else {
				out[k] = v
			}
		}
	}
	return out
}
