package skills

import (
	"sort"
	"sync"
	"time"
)

// Manager owns the scan cache across all configured sources, merging
// results on (namespace, skill_name) conflicts by source priority
// (higher wins).
type Manager struct {
	mu       sync.Mutex
	sources  []Source
	policy   RefreshPolicy
	ttl      time.Duration
	cached   []Skill
	cachedAt time.Time
	inFlight bool
	done     chan struct{}
	scanSeq  int
}

// NewManager builds a Manager over the given sources (any order; Priority
// resolves conflicts, not registration order).
func NewManager(sources []Source, policy RefreshPolicy, ttl time.Duration) *Manager {
	return &Manager{sources: sources, policy: policy, ttl: ttl}
}

// Scan returns the merged skill list, honoring the refresh policy.
// always re-scans every call; ttl serves the cache within ttl_sec and
// collapses concurrent expiry into a single refresh (single-flight);
// manual serves the cache until Refresh is called explicitly.
func (m *Manager) Scan() (ScanReport, error) {
	m.mu.Lock()
	needsScan := m.policy == RefreshAlways || (m.policy == RefreshTTL && time.Since(m.cachedAt) > m.ttl) || m.cachedAt.IsZero()
	if !needsScan {
		report := m.reportLocked()
		m.mu.Unlock()
		return report, nil
	}
	if m.inFlight {
		// Single-flight: wait for the in-progress refresh instead of
		// starting a second one.
		done := m.done
		m.mu.Unlock()
		<-done
		m.mu.Lock()
		report := m.reportLocked()
		m.mu.Unlock()
		return report, nil
	}
	m.inFlight = true
	m.done = make(chan struct{})
	m.mu.Unlock()

	report := m.rescan()

	m.mu.Lock()
	m.cached = report.Skills
	m.cachedAt = time.Now()
	m.inFlight = false
	close(m.done)
	m.mu.Unlock()

	return report, nil
}

// Refresh forces an immediate re-scan regardless of policy, for manual
// refresh policy or explicit cache invalidation (e.g. a filesystem watch
// event).
func (m *Manager) Refresh() (ScanReport, error) {
	report := m.rescan()
	m.mu.Lock()
	m.cached = report.Skills
	m.cachedAt = time.Now()
	m.mu.Unlock()
	return report, nil
}

func (m *Manager) rescan() ScanReport {
	start := time.Now()
	m.mu.Lock()
	m.scanSeq++
	scanID := m.scanSeq
	m.mu.Unlock()

	byKey := make(map[string]Skill)
	priorityByKey := make(map[string]int)
	var errs, warnings []string
	scanned := 0

	for _, src := range m.sources {
		found, err := src.Scan()
		scanned++
		if err != nil {
			warnings = append(warnings, "refresh failed for source "+src.ID()+", using cached result: "+err.Error())
			found = nil
			m.mu.Lock()
			for _, sk := range m.cached {
				if sk.SourceID == src.ID() {
					found = append(found, sk)
				}
			}
			m.mu.Unlock()
		}
		for _, sk := range found {
			key := sk.Key()
			if existingPriority, ok := priorityByKey[key]; ok {
				if src.Priority() <= existingPriority {
					continue
				}
			}
			byKey[key] = sk
			priorityByKey[key] = src.Priority()
		}
	}

	skills := make([]Skill, 0, len(byKey))
	for _, sk := range byKey {
		skills = append(skills, sk)
	}
	sort.Slice(skills, func(i, j int) bool {
		if skills[i].Namespace != skills[j].Namespace {
			return skills[i].Namespace < skills[j].Namespace
		}
		return skills[i].SkillName < skills[j].SkillName
	})

	return ScanReport{
		ScanID:   formatScanID(scanID),
		Skills:   skills,
		Errors:   errs,
		Warnings: warnings,
		Stats: ScanStats{
			SourcesScanned: scanned,
			SkillsFound:    len(skills),
			DurationMs:     time.Since(start).Milliseconds(),
		},
	}
}

func (m *Manager) reportLocked() ScanReport {
	return ScanReport{
		ScanID: formatScanID(m.scanSeq),
		Skills: append([]Skill(nil), m.cached...),
		Stats:  ScanStats{SourcesScanned: len(m.sources), SkillsFound: len(m.cached)},
	}
}

func formatScanID(n int) string {
	const digits = "0123456789"
	if n == 0 {
		return "scan_0"
	}
	buf := []byte{}
	for n > 0 {
		buf = append([]byte{digits[n%10]}, buf...)
		n /= 10
	}
	return "scan_" + string(buf)
}

// Lookup finds a skill by (namespace, skill_name) in the current cache
// without forcing a scan.
func (m *Manager) Lookup(namespace, name string) (Skill, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sk := range m.cached {
		if sk.Namespace == namespace && sk.SkillName == name {
			return sk, true
		}
	}
	return Skill{}, false
}

// SourceByID returns the registered source with the given ID, for bundle
// extraction's GetBundle lookup once a skill's origin source is known.
func (m *Manager) SourceByID(id string) (Source, bool) {
	for _, src := range m.sources {
		if src.ID() == id {
			return src, true
		}
	}
	return nil, false
}
