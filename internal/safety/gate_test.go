package safety

import "testing"

func TestGateDecisionOrder(t *testing.T) {
	tests := []struct {
		name   string
		gate   *Gate
		req    Request
		want   Action
		reason string
	}{
		{
			name: "denylist wins over allowlist",
			gate: NewGate(Policy{Mode: ModeAsk, Allow: []string{"read_file"}, Deny: []string{"read_file"}}, ShellPolicy{}),
			req:  Request{ToolName: "read_file"},
			want: ActionDeny, reason: "denylist",
		},
		{
			name: "global deny mode",
			gate: NewGate(Policy{Mode: ModeDeny}, ShellPolicy{}),
			req:  Request{ToolName: "read_file"},
			want: ActionDeny, reason: "mode=deny",
		},
		{
			name: "sandbox escalation beats allowlist",
			gate: NewGate(Policy{Mode: ModeAsk, Allow: []string{"shell_exec"}, SandboxPermission: SandboxRequireEscalated}, ShellPolicy{}),
			req:  Request{ToolName: "shell_exec"},
			want: ActionAsk, reason: "sandbox_permissions=require_escalated",
		},
		{
			name: "allowlist hit",
			gate: NewGate(Policy{Mode: ModeAsk, Allow: []string{"read_file"}}, ShellPolicy{}),
			req:  Request{ToolName: "read_file"},
			want: ActionAllow, reason: "allowlist",
		},
		{
			name: "global allow mode",
			gate: NewGate(Policy{Mode: ModeAllow}, ShellPolicy{}),
			req:  Request{ToolName: "anything"},
			want: ActionAllow, reason: "mode=allow",
		},
		{
			name: "high risk shell argv asks",
			gate: NewGate(Policy{Mode: ModeAsk}, ShellPolicy{}),
			req:  Request{ToolName: "shell_exec", IsShell: true, Argv: []string{"rm", "-rf", "/"}},
			want: ActionAsk, reason: "risk=high",
		},
		{
			name: "default asks",
			gate: NewGate(Policy{Mode: ModeAsk}, ShellPolicy{}),
			req:  Request{ToolName: "read_file"},
			want: ActionAsk, reason: "default",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.gate.Decide(tc.req)
			if got.Action != tc.want {
				t.Errorf("action = %s, want %s (reason=%s)", got.Action, tc.want, got.Reason)
			}
			if got.Reason != tc.reason {
				t.Errorf("reason = %s, want %s", got.Reason, tc.reason)
			}
		})
	}
}

func TestShellDenylistDoesNotAffectCustomTools(t *testing.T) {
	// Open-question decision: custom-tool lists and shell argv lists are
	// never cross-matched.
	g := NewGate(Policy{Mode: ModeAsk, Allow: []string{"rm"}}, ShellPolicy{Deny: []string{"rm"}})
	got := g.Decide(Request{ToolName: "rm"})
	if got.Action != ActionAllow {
		t.Errorf("expected custom tool named 'rm' to resolve via custom allow list, got %s (%s)", got.Action, got.Reason)
	}
}

func TestEvaluateRiskHighForMetacharacters(t *testing.T) {
	if EvaluateRisk([]string{"echo", "a;rm -rf /"}) != RiskHigh {
		t.Error("expected metacharacter-bearing argv to be high risk")
	}
	if EvaluateRisk([]string{"ls", "-la"}) != RiskLow {
		t.Error("expected plain argv to be low risk")
	}
}
