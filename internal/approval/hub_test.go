package approval

import (
	"context"
	"testing"
	"time"
)

func TestHubCachesApprovedForSession(t *testing.T) {
	calls := 0
	provider := ProviderFunc(func(ctx context.Context, req Request) (Decision, error) {
		calls++
		return ApprovedForSession, nil
	})
	hub := NewHub("run_1", provider, time.Second)

	req := Request{ApprovalKey: "key1", Tool: "file_write"}
	out1 := hub.RequestApproval(context.Background(), req)
	if out1.Decision != ApprovedForSession || out1.Cached {
		t.Fatalf("expected first call to hit provider, got %+v", out1)
	}
	out2 := hub.RequestApproval(context.Background(), req)
	if !out2.Cached || out2.Reason != "cached" {
		t.Fatalf("expected second call to be cached, got %+v", out2)
	}
	if calls != 1 {
		t.Errorf("expected provider called exactly once, got %d", calls)
	}
}

func TestHubDeniedNeverCaches(t *testing.T) {
	provider := ProviderFunc(func(ctx context.Context, req Request) (Decision, error) {
		return Denied, nil
	})
	hub := NewHub("run_1", provider, time.Second)
	req := Request{ApprovalKey: "key2"}
	hub.RequestApproval(context.Background(), req)
	if hub.IsSessionApproved("key2") {
		t.Error("denied decisions must not populate the session cache")
	}
}

func TestHubTimeoutResolvesDenied(t *testing.T) {
	provider := ProviderFunc(func(ctx context.Context, req Request) (Decision, error) {
		<-ctx.Done()
		return Denied, ctx.Err()
	})
	hub := NewHub("run_1", provider, 10*time.Millisecond)
	out := hub.RequestApproval(context.Background(), Request{ApprovalKey: "key3"})
	if out.Decision != Denied || out.Reason != "timeout" {
		t.Errorf("expected timeout denial, got %+v", out)
	}
}

func TestHubNoProviderDenies(t *testing.T) {
	hub := NewHub("run_1", nil, time.Second)
	out := hub.RequestApproval(context.Background(), Request{ApprovalKey: "key4"})
	if out.Decision != Denied || out.Reason != "no_provider" {
		t.Errorf("expected no_provider denial, got %+v", out)
	}
}

func TestDenialTrackerThreshold(t *testing.T) {
	tr := NewDenialTracker(2)
	if tr.RecordDenial("k") {
		t.Error("first denial should not exceed default threshold of 2")
	}
	if !tr.RecordDenial("k") {
		t.Error("second denial should exceed threshold of 2")
	}
}
