package skills

import "fmt"

// InjectedSkill is the result of loading a skill's body for prompt
// injection: the stable envelope plus metadata the caller journals as a
// skill_injected event.
type InjectedSkill struct {
	MentionText string
	SkillName   string
	Namespace   string
	Locator     string
	Bytes       int
	Envelope    string
}

// Inject loads skill's body via BodyLoader (the only point at which it
// may be called), enforces maxBytes, and wraps the body in a stable
// <skill> envelope for prompt injection.
func Inject(m Mention, sk Skill, maxBytes int) (InjectedSkill, error) {
	if sk.BodyLoader == nil {
		return InjectedSkill{}, fmt.Errorf("skills: %s has no body loader", sk.Key())
	}
	body, err := sk.BodyLoader()
	if err != nil {
		return InjectedSkill{}, fmt.Errorf("skills: load body for %s: %w", sk.Key(), err)
	}
	if maxBytes > 0 && len(body) > maxBytes {
		return InjectedSkill{}, ErrBodyTooLarge
	}
	envelope := fmt.Sprintf("<skill><name>%s</name><path>%s</path>%s</skill>", sk.SkillName, sk.Path, body)
	return InjectedSkill{
		MentionText: m.Text,
		SkillName:   sk.SkillName,
		Namespace:   sk.Namespace,
		Locator:     sk.Locator,
		Bytes:       len(body),
		Envelope:    envelope,
	}, nil
}
