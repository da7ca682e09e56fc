// Package approval implements the Approval Hub: async approval futures,
// per-run session caching, and timeout-to-denied resolution. The hub owns
// just the async-future and cache responsibility; full policy evaluation
// lives in internal/safety.
package approval

import (
	"context"
	"sync"
	"time"

	"github.com/skillrun/agentcore/internal/engine"
)

// Decision is the resolved outcome of an approval request.
type Decision string

const (
	ApprovedOnce        Decision = "approved_once"
	ApprovedForSession  Decision = "approved_for_session"
	Denied              Decision = "denied"
	Abort               Decision = "abort"
)

// Request describes a pending approval.
type Request struct {
	ApprovalKey string
	Tool        string
	Summary     string
	Details     map[string]any
}

// Provider is the thin external-decider adapter: a policy engine, a human
// UI, or a scripted test provider. The hub holds no UI state itself.
type Provider interface {
	Decide(ctx context.Context, req Request) (Decision, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req Request) (Decision, error)

func (f ProviderFunc) Decide(ctx context.Context, req Request) (Decision, error) { return f(ctx, req) }

// Outcome is returned by Hub.RequestApproval and carries enough detail for
// the dispatcher to emit approval_requested/approval_decided.
type Outcome struct {
	Decision Decision
	Reason   string // cached|provider|timeout|no_provider
	Cached   bool
}

// Hub is scoped to one run_id; approvals never leak across runs.
type Hub struct {
	mu           sync.Mutex
	runID        string
	provider     Provider
	timeout      time.Duration
	sessionCache map[string]bool // approval_key -> approved for session
}

// NewHub constructs a Hub for one run. provider may be nil, in which case
// every request resolves to Denied with reason no_provider (the dispatcher
// treats repeated denials via its own threshold logic).
func NewHub(runID string, provider Provider, timeout time.Duration) *Hub {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Hub{runID: runID, provider: provider, timeout: timeout, sessionCache: make(map[string]bool)}
}

// RequestApproval resolves a request, consulting and updating the session
// cache. APPROVED_FOR_SESSION decisions populate the cache; denials never
// do.
func (h *Hub) RequestApproval(ctx context.Context, req Request) Outcome {
	h.mu.Lock()
	if h.sessionCache[req.ApprovalKey] {
		h.mu.Unlock()
		return Outcome{Decision: ApprovedForSession, Reason: "cached", Cached: true}
	}
	h.mu.Unlock()

	if h.provider == nil {
		return Outcome{Decision: Denied, Reason: "no_provider"}
	}

	tctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	decisionCh := make(chan Decision, 1)
	errCh := make(chan error, 1)
	go func() {
		d, err := h.provider.Decide(tctx, req)
		if err != nil {
			errCh <- err
			return
		}
		decisionCh <- d
	}()

	select {
	case d := <-decisionCh:
		if d == ApprovedForSession {
			h.mu.Lock()
			h.sessionCache[req.ApprovalKey] = true
			h.mu.Unlock()
		}
		return Outcome{Decision: d, Reason: "provider"}
	case <-errCh:
		return Outcome{Decision: Denied, Reason: "provider"}
	case <-tctx.Done():
		return Outcome{Decision: Denied, Reason: "timeout"}
	}
}

// IsSessionApproved reports whether an approval_key is already cached,
// without making a request — used by the dispatcher to decide whether to
// skip emitting approval_requested/approval_decided entirely.
func (h *Hub) IsSessionApproved(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessionCache[key]
}

// ToolResultForDecision builds a permission-denied ToolResult for the
// dispatcher's short-circuit path on Denied/Abort.
func ToolResultForDecision(d Decision, reason string) *engine.ToolResult {
	return engine.NewToolResult(engine.ToolResultPayload{
		OK:        false,
		ErrorKind: engine.ErrorPermission,
		Message:   "approval " + string(d) + ": " + reason,
	})
}
