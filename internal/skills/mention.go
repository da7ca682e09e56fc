package skills

import "regexp"

// mentionPattern matches the strict $[<namespace>].<skill_name>
// grammar: 1-7 lowercase slug segments joined by ':', then a dot-separated
// skill name in the same slug grammar. It deliberately rejects
// shell-variable-style tokens like $PATH.
var mentionPattern = regexp.MustCompile(
	`\$\[((?:[a-z0-9](?:[a-z0-9-]{0,62}[a-z0-9])?)(?::[a-z0-9](?:[a-z0-9-]{0,62}[a-z0-9])?){0,6})\]\.([a-z0-9](?:[a-z0-9-]{0,62}[a-z0-9])?)`,
)

// Mention is one resolved or unresolved $[ns].name token found in task text.
type Mention struct {
	Text      string // the full matched token, e.g. "$[demo:local].dep-skill"
	Namespace string
	SkillName string
}

// ExtractMentions scans text for skill mentions using the strict slug
// grammar. Non-matching tokens like "$PATH" are silently ignored, not
// reported as malformed, since they are not skill mentions at all.
func ExtractMentions(text string) []Mention {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	out := make([]Mention, 0, len(matches))
	for _, m := range matches {
		out = append(out, Mention{Text: m[0], Namespace: m[1], SkillName: m[2]})
	}
	return out
}

// SpaceSet is the set of configured, enabled namespace spaces a mention is
// checked against before lookup.
type SpaceSet map[string]bool

// Resolve validates a mention against the configured spaces and looks it
// up in the manager's cache, returning stable sentinel errors on
// failure.
func Resolve(mgr *Manager, spaces SpaceSet, m Mention) (Skill, error) {
	if !spaces[m.Namespace] {
		return Skill{}, ErrSpaceNotConfigured
	}
	sk, ok := mgr.Lookup(m.Namespace, m.SkillName)
	if !ok {
		return Skill{}, ErrUnknownSkill
	}
	return sk, nil
}
