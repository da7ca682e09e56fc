package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// NewRunID mints a fresh run identifier. Callers that need deterministic
// IDs for tests pass their own run_id into AgentLoop.Run instead of calling
// this.
func NewRunID() string { return "run_" + uuid.NewString() }

// NewCallID mints a fresh tool-call identifier.
func NewCallID() string { return "call_" + uuid.NewString() }

// TurnID formats the monotonic per-run turn counter as turn_<N>.
func TurnID(n int) string { return fmt.Sprintf("turn_%d", n) }

// StepID formats the monotonic per-run step counter as step_<N>.
func StepID(n int) string { return fmt.Sprintf("step_%d", n) }

// Sha256Hex is the fingerprint primitive used for raw_arguments_sha256,
// bundle_sha256 verification, and approval_key hashing.
func Sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ApprovalKey deterministically fingerprints a tool call so identical
// requests share an approval cache entry: a hash over
// (tool, canonicalized sanitized request).
func ApprovalKey(tool string, sanitizedRequest map[string]any) string {
	canon, err := json.Marshal(canonicalize(sanitizedRequest))
	if err != nil {
		canon = []byte("{}")
	}
	sum := sha256.Sum256(append([]byte(tool+"\x00"), canon...))
	return hex.EncodeToString(sum[:])
}

// canonicalize recursively sorts map keys via encoding/json's natural
// ordering (Go marshals map[string]any keys in sorted order already);
// kept as a named step so the hashing intent reads clearly at the call
// site.
func canonicalize(v any) any { return v }
