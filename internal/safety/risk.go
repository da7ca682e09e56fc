package safety

import (
	"regexp"
	"strings"
)

// Risk classifies how dangerous a shell-like argv looks, feeding the
// gate's risk-level step (high -> ask).
type Risk string

const (
	RiskLow  Risk = "low"
	RiskHigh Risk = "high"
)

var (
	shellMetachars = regexp.MustCompile(`[;&|$><` + "`" + `\\(){}\[\]*?~!#]`)
	controlChars   = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f]`)
)

// highRiskCommands are argv[0] values that are never low risk regardless
// of the remaining arguments.
var highRiskCommands = map[string]bool{
	"rm": true, "dd": true, "mkfs": true, "shutdown": true, "reboot": true,
	"sudo": true, "su": true, "chmod": true, "chown": true, "curl": true,
	"wget": true, "kill": true, "killall": true,
}

// EvaluateRisk inspects an argv (already split, not a raw shell string)
// and classifies it. Any shell metacharacter, control character, or
// membership in the high-risk command set escalates to RiskHigh.
func EvaluateRisk(argv []string) Risk {
	if len(argv) == 0 {
		return RiskLow
	}
	cmd := strings.ToLower(lastPathSegment(argv[0]))
	if highRiskCommands[cmd] {
		return RiskHigh
	}
	for _, arg := range argv {
		if shellMetachars.MatchString(arg) || controlChars.MatchString(arg) {
			return RiskHigh
		}
	}
	return RiskLow
}

func lastPathSegment(p string) string {
	if idx := strings.LastIndexByte(p, '/'); idx >= 0 {
		return p[idx+1:]
	}
	return p
}

// MatchesDenylistPrefix reports whether argv's command matches any entry
// in a shell denylist, i.e. an entry equals argv[0] or its last path
// segment — the argv
// analogue of the custom-tool denylist used in step 1 of the decision
// order.
func MatchesDenylistPrefix(list []string, argv []string) (bool, string) {
	if len(argv) == 0 {
		return false, ""
	}
	cmd := lastPathSegment(argv[0])
	for _, entry := range list {
		if entry == argv[0] || entry == cmd {
			return true, entry
		}
	}
	return false, ""
}

// MatchesAllowlistPrefix is the allow-side counterpart of
// MatchesDenylistPrefix.
func MatchesAllowlistPrefix(list []string, argv []string) (bool, string) {
	return MatchesDenylistPrefix(list, argv)
}
