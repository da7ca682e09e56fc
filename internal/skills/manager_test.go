package skills

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// countingSource counts Scan calls and reports a fixed skill list.
type countingSource struct {
	id       string
	priority int
	skills   []Skill
	scans    atomic.Int32
	err      error
}

func (s *countingSource) ID() string    { return s.id }
func (s *countingSource) Priority() int { return s.priority }
func (s *countingSource) Scan() ([]Skill, error) {
	s.scans.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	out := make([]Skill, len(s.skills))
	copy(out, s.skills)
	return out, nil
}

func constSkill(ns, name, body string) Skill {
	return Skill{
		Namespace: ns, SkillName: name, Locator: "test:" + name,
		BodyLoader: func() (string, error) { return body, nil },
	}
}

func TestManagerPriorityMerge(t *testing.T) {
	low := &countingSource{id: "low", priority: 1, skills: []Skill{constSkill("ns", "dup", "from-low")}}
	high := &countingSource{id: "high", priority: 5, skills: []Skill{constSkill("ns", "dup", "from-high")}}
	mgr := NewManager([]Source{low, high}, RefreshAlways, 0)

	report, err := mgr.Scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(report.Skills) != 1 {
		t.Fatalf("merged to %d skills, want 1", len(report.Skills))
	}
	body, err := report.Skills[0].BodyLoader()
	if err != nil || body != "from-high" {
		t.Fatalf("higher priority must win: %q, %v", body, err)
	}
}

func TestManagerTTLServesCacheThenRefreshes(t *testing.T) {
	src := &countingSource{id: "s", priority: 0, skills: []Skill{constSkill("ns", "a", "")}}
	mgr := NewManager([]Source{src}, RefreshTTL, 50*time.Millisecond)

	if _, err := mgr.Scan(); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.Scan(); err != nil {
		t.Fatal(err)
	}
	if n := src.scans.Load(); n != 1 {
		t.Fatalf("second scan within TTL must hit the cache, got %d source scans", n)
	}

	time.Sleep(60 * time.Millisecond)
	if _, err := mgr.Scan(); err != nil {
		t.Fatal(err)
	}
	if n := src.scans.Load(); n != 2 {
		t.Fatalf("scan after TTL expiry must refresh, got %d source scans", n)
	}
}

func TestManagerManualPolicyCachesUntilRefresh(t *testing.T) {
	src := &countingSource{id: "s", priority: 0}
	mgr := NewManager([]Source{src}, RefreshManual, 0)

	for i := 0; i < 3; i++ {
		if _, err := mgr.Scan(); err != nil {
			t.Fatal(err)
		}
	}
	if n := src.scans.Load(); n != 1 {
		t.Fatalf("manual policy must scan once, got %d", n)
	}
	if _, err := mgr.Refresh(); err != nil {
		t.Fatal(err)
	}
	if n := src.scans.Load(); n != 2 {
		t.Fatalf("Refresh must force a re-scan, got %d", n)
	}
}

func TestManagerFailingSourceIsAWarning(t *testing.T) {
	ok := &countingSource{id: "ok", priority: 0, skills: []Skill{constSkill("ns", "a", "")}}
	bad := &countingSource{id: "bad", priority: 0, err: errors.New("connection refused")}
	mgr := NewManager([]Source{ok, bad}, RefreshAlways, 0)

	report, err := mgr.Scan()
	if err != nil {
		t.Fatalf("a failing source must not fail the scan: %v", err)
	}
	if len(report.Skills) != 1 {
		t.Fatalf("healthy source's skills missing: %d", len(report.Skills))
	}
	if len(report.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", report.Warnings)
	}
}

func TestManagerScanNeverInvokesBodyLoader(t *testing.T) {
	var called atomic.Bool
	src := &countingSource{id: "s", priority: 0, skills: []Skill{{
		Namespace: "ns", SkillName: "a",
		BodyLoader: func() (string, error) { called.Store(true); return "", nil },
	}}}
	mgr := NewManager([]Source{src}, RefreshAlways, 0)
	if _, err := mgr.Scan(); err != nil {
		t.Fatal(err)
	}
	if called.Load() {
		t.Fatal("BodyLoader invoked during scan")
	}
}

func TestManagerScanReportSerializes(t *testing.T) {
	src := &countingSource{id: "s", priority: 0, skills: []Skill{constSkill("ns", "a", "secret body bytes")}}
	mgr := NewManager([]Source{src}, RefreshAlways, 0)
	report, err := mgr.Scan()
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(struct {
		ScanID   string
		Errors   []string
		Warnings []string
		Stats    ScanStats
	}{report.ScanID, report.Errors, report.Warnings, report.Stats})
	if err != nil {
		t.Fatalf("report must serialize: %v", err)
	}
	if string(data) == "" {
		t.Fatal("empty serialization")
	}
}

func TestManagerTTLExpirySingleFlight(t *testing.T) {
	src := &countingSource{id: "s", priority: 0, skills: []Skill{constSkill("ns", "a", "")}}
	mgr := NewManager([]Source{src}, RefreshTTL, 10*time.Millisecond)

	if _, err := mgr.Scan(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = mgr.Scan()
		}()
	}
	wg.Wait()

	// One initial scan plus at most one collapsed refresh for the
	// concurrent expiry burst.
	if n := src.scans.Load(); n > 2 {
		t.Fatalf("TTL expiry under contention ran %d refreshes, want at most 2 total scans", n)
	}
}
