// Package skills implements the Skills Manager: metadata-only scanning
// across pluggable sources, mention resolution, lazy body loading, signed
// bundle extraction, and TTL/manual refresh caching.
package skills

// SourceType identifies where a Skill was discovered from.
type SourceType string

const (
	SourceFilesystem SourceType = "filesystem"
	SourceMemory     SourceType = "in_memory"
	SourceRedis      SourceType = "redis"
	SourcePostgres   SourceType = "pgsql"
	SourceSQLite     SourceType = "sqlite"
)

// Skill is one resolvable unit of injectable capability. BodyLoader is
// lazy and must never be invoked during a scan — only during injection or
// explicit body access.
type Skill struct {
	SpaceID         string
	SourceID        string
	Namespace       string
	SkillName       string
	Description     string
	Locator         string
	Path            string
	BodySize        int64
	BodyLoader      func() (string, error)
	RequiredEnvVars []string
	Metadata        map[string]any
	Scope           string

	// BundleSHA256, when non-empty, names a zip bundle of actions/
	// references assets available via GetBundle on sources that support
	// it.
	BundleSHA256 string
}

// Key returns the (namespace, skill_name) uniqueness key.
func (s Skill) Key() string { return s.Namespace + "\x00" + s.SkillName }

// ScanStats summarizes a scan for observability without exposing bodies.
type ScanStats struct {
	SourcesScanned int
	SkillsFound    int
	DurationMs     int64
}

// ScanReport is the only surface a scan produces. It must be JSON
// serializable with no body bytes and no file handles.
type ScanReport struct {
	ScanID   string
	Skills   []Skill
	Errors   []string
	Warnings []string
	Stats    ScanStats
}

// Source is the capability trait every discovery backend implements.
// Bundle fetching is not part of it: a source that serves bundles also
// implements BundleSource, and Facade.AssetDir reports
// ErrBundlesUnsupported for a source that does not.
type Source interface {
	ID() string
	Priority() int
	Scan() ([]Skill, error)
}

// BundleSource is the optional capability for fetching a skill's zip
// bundle bytes. Only RedisSource implements it; the Postgres and SQLite
// sources do not, and the filesystem source instead exposes assets
// directly via Skill.Path.
type BundleSource interface {
	GetBundle(skill Skill) ([]byte, error)
}

// RefreshPolicy controls how aggressively a Manager re-scans its sources.
type RefreshPolicy string

const (
	RefreshAlways RefreshPolicy = "always"
	RefreshTTL    RefreshPolicy = "ttl"
	RefreshManual RefreshPolicy = "manual"
)
