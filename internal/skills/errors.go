package skills

import "errors"

// Stable error sentinels surfaced during mention resolution, injection,
// and bundle extraction. Stable strings, so dispatcher-level mapping to
// ErrorKind stays a one-line switch.
var (
	ErrSpaceNotConfigured    = errors.New("SKILL_SPACE_NOT_CONFIGURED")
	ErrUnknownSkill          = errors.New("SKILL_UNKNOWN")
	ErrBodyTooLarge          = errors.New("SKILL_BODY_TOO_LARGE")
	ErrBundleFingerprintBad  = errors.New("SKILL_BUNDLE_FINGERPRINT_MISMATCH")
	ErrBundlesUnsupported    = errors.New("skills: source does not support bundles")
	ErrDuplicateSkillName    = errors.New("skills: duplicate (namespace, skill_name) across enabled sources")
	ErrInvalidMention        = errors.New("skills: malformed mention token")
)
