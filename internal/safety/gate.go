package safety

import (
	"strings"

	"github.com/skillrun/agentcore/internal/engine"
)

// Action is the outcome of a gate Decide call.
type Action string

const (
	ActionAllow Action = "allow"
	ActionAsk   Action = "ask"
	ActionDeny  Action = "deny"
)

// Decision is the structured result of evaluating one tool call against
// the gate's policy, carrying enough detail for both the tool_call_finished
// permission payload and for audit/debugging.
type Decision struct {
	Action      Action
	Reason      string
	MatchedRule string
	Summary     string
}

// Request is the call shape the gate evaluates: either a registered tool
// name (custom tools resolved via Policy) or a shell-like argv (resolved
// via ShellPolicy + risk evaluation). Exactly one of ToolName/Argv is the
// primary key; Argv is also inspected for shell tools even when ToolName
// is set (e.g. shell_exec's own argv argument).
type Request struct {
	ToolName string
	Argv     []string
	IsShell  bool
}

// Gate evaluates a fixed seven-step, first-match-wins decision order
// and is fail-closed: any internal error in rule evaluation yields deny.
type Gate struct {
	Policy      Policy
	ShellPolicy ShellPolicy
}

// NewGate builds a Gate with the given policies.
func NewGate(p Policy, sp ShellPolicy) *Gate {
	return &Gate{Policy: p, ShellPolicy: sp}
}

// Decide runs the fixed decision order:
//  1. denylist (tool-name or argv prefix) -> deny
//  2. global mode=deny -> deny
//  3. sandbox_permissions=require_escalated -> ask
//  4. allowlist hit -> allow
//  5. global mode=allow -> allow
//  6. risk level high -> ask
//  7. default (mode=ask) -> ask
func (g *Gate) Decide(req Request) (d Decision) {
	defer func() {
		// Fail-closed: a panic anywhere in rule evaluation (e.g. a
		// malformed descriptor) must not escape as an allow.
		if r := recover(); r != nil {
			d = Decision{Action: ActionDeny, Reason: "descriptor error", MatchedRule: "descriptor=deny"}
		}
	}()
	d = g.decide(req)
	d.Summary = summarizeRequest(req)
	return d
}

// maxSummaryChars is the length at which the human-facing request summary
// carried by approval_requested and approval prompts is cut; a cut
// summary gets "..." appended.
const maxSummaryChars = 200

// summarizeRequest renders the request for a human deciding an approval:
// the joined argv for shell-like calls, the tool name otherwise.
func summarizeRequest(req Request) string {
	s := req.ToolName
	if req.IsShell && len(req.Argv) > 0 {
		s = strings.Join(req.Argv, " ")
	}
	if len(s) > maxSummaryChars {
		s = s[:maxSummaryChars] + "..."
	}
	return s
}

func (g *Gate) decide(req Request) Decision {
	name := NormalizeTool(req.ToolName)

	// Step 1: denylist.
	if req.IsShell {
		if hit, rule := MatchesDenylistPrefix(g.ShellPolicy.Deny, req.Argv); hit {
			return Decision{Action: ActionDeny, Reason: "denylist", MatchedRule: "denylist:" + rule}
		}
	} else if hit, rule := matchesAny(g.Policy.Deny, name); hit {
		return Decision{Action: ActionDeny, Reason: "denylist", MatchedRule: "denylist:" + rule}
	}

	// Step 2: global deny mode.
	if g.Policy.Mode == ModeDeny {
		return Decision{Action: ActionDeny, Reason: "mode=deny", MatchedRule: "mode=deny"}
	}

	// Step 3: sandbox escalation forces ask even over an allowlist hit.
	if g.Policy.SandboxPermission == SandboxRequireEscalated {
		return Decision{Action: ActionAsk, Reason: "sandbox_permissions=require_escalated"}
	}

	// Step 4: allowlist.
	if req.IsShell {
		if hit, rule := MatchesAllowlistPrefix(g.ShellPolicy.Allow, req.Argv); hit {
			return Decision{Action: ActionAllow, Reason: "allowlist", MatchedRule: "allowlist:" + rule}
		}
	} else if hit, rule := matchesAny(g.Policy.Allow, name); hit {
		return Decision{Action: ActionAllow, Reason: "allowlist", MatchedRule: "allowlist:" + rule}
	}

	// Step 5: global allow mode.
	if g.Policy.Mode == ModeAllow {
		return Decision{Action: ActionAllow, Reason: "mode=allow", MatchedRule: "mode=allow"}
	}

	// Step 6: risk evaluator (shell-like calls only).
	if req.IsShell && EvaluateRisk(req.Argv) == RiskHigh {
		return Decision{Action: ActionAsk, Reason: "risk=high"}
	}

	// Step 7: default.
	return Decision{Action: ActionAsk, Reason: "default"}
}

// PermissionResult builds the ToolResultPayload for a deny decision, used
// directly by the dispatcher when the gate denies a call.
func PermissionResult(d Decision) *engine.ToolResult {
	return engine.NewToolResult(engine.ToolResultPayload{
		OK:        false,
		ErrorKind: engine.ErrorPermission,
		Message:   "denied by policy: " + d.Reason,
	})
}
