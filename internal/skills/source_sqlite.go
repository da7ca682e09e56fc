package skills

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// SQLiteSource discovers skills from an embedded, file-backed catalog
// sharing the Postgres table shape — for single-workspace deployments
// with no Postgres or Redis available. Scan selects metadata columns
// only; bodies are fetched lazily at injection time.
type SQLiteSource struct {
	id       string
	priority int
	db       *sql.DB
	table    string
	spaceID  string
	timeout  time.Duration
}

// OpenSQLiteSource opens (or creates) the catalog database at path and
// ensures the skills table exists.
func OpenSQLiteSource(id string, priority int, spaceID, path, table string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("skills: sqlite open: %w", err)
	}
	s := NewSQLiteSource(id, priority, spaceID, db, table)
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteSource builds a source over an existing *sql.DB (opened with
// the modernc.org/sqlite driver) and a table name (defaults to "skills").
func NewSQLiteSource(id string, priority int, spaceID string, db *sql.DB, table string) *SQLiteSource {
	if table == "" {
		table = "skills"
	}
	return &SQLiteSource{id: id, priority: priority, db: db, table: table, spaceID: spaceID, timeout: 10 * time.Second}
}

func (s *SQLiteSource) ID() string    { return s.id }
func (s *SQLiteSource) Priority() int { return s.priority }

// Close releases the underlying database handle.
func (s *SQLiteSource) Close() error { return s.db.Close() }

func (s *SQLiteSource) ensureSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		namespace TEXT NOT NULL,
		skill_name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		enabled INTEGER NOT NULL DEFAULT 1,
		body_size INTEGER NOT NULL DEFAULT 0,
		body_etag TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL DEFAULT '',
		required_env_vars TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '',
		scope TEXT NOT NULL DEFAULT '',
		UNIQUE(namespace, skill_name)
	)`, s.table))
	if err != nil {
		return fmt.Errorf("skills: sqlite schema: %w", err)
	}
	return nil
}

// Scan selects metadata columns only (never body) for enabled rows.
func (s *SQLiteSource) Scan() ([]Skill, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	query := fmt.Sprintf(
		`SELECT id, namespace, skill_name, description, body_size, body_etag, required_env_vars, metadata, scope
		 FROM %s WHERE enabled = 1`, s.table)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("skills: sqlite scan: %w", err)
	}
	defer rows.Close()

	var out []Skill
	for rows.Next() {
		var (
			id, namespace, name, description, etag, scope string
			bodySize                                       int64
			envVarsRaw, metadataRaw                        sql.NullString
		)
		if err := rows.Scan(&id, &namespace, &name, &description, &bodySize, &etag, &envVarsRaw, &metadataRaw, &scope); err != nil {
			return nil, fmt.Errorf("skills: sqlite row scan: %w", err)
		}
		var envVars []string
		if envVarsRaw.Valid && envVarsRaw.String != "" {
			envVars = strings.Split(envVarsRaw.String, ",")
		}
		var metadata map[string]any
		if metadataRaw.Valid && metadataRaw.String != "" {
			_ = json.Unmarshal([]byte(metadataRaw.String), &metadata)
		}
		rowID := id
		out = append(out, Skill{
			SpaceID:         s.spaceID,
			SourceID:        s.id,
			Namespace:       namespace,
			SkillName:       name,
			Description:     description,
			Locator:         fmt.Sprintf("sqlite:%s:%s", s.table, rowID),
			BodySize:        bodySize,
			BodyLoader:      s.bodyLoader(rowID),
			RequiredEnvVars: envVars,
			Metadata:        metadata,
			Scope:           scope,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("skills: sqlite rows: %w", err)
	}
	return out, nil
}

// Put inserts or replaces one skill row, recomputing body_size. The
// catalog is small enough that upsert-per-skill beats a bulk loader.
func (s *SQLiteSource) Put(namespace, name, description, body string, requiredEnvVars []string, scope string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s
		(id, namespace, skill_name, description, body, enabled, body_size, created_at, updated_at, required_env_vars, scope)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?, ?, ?)
		ON CONFLICT(namespace, skill_name) DO UPDATE SET
		description = excluded.description, body = excluded.body,
		body_size = excluded.body_size, updated_at = excluded.updated_at,
		required_env_vars = excluded.required_env_vars, scope = excluded.scope`, s.table),
		namespace+":"+name, namespace, name, description, body,
		int64(len(body)), now, now, strings.Join(requiredEnvVars, ","), scope)
	if err != nil {
		return fmt.Errorf("skills: sqlite put: %w", err)
	}
	return nil
}

func (s *SQLiteSource) bodyLoader(rowID string) func() (string, error) {
	return func() (string, error) {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		var body string
		query := fmt.Sprintf(`SELECT body FROM %s WHERE id = ?`, s.table)
		if err := s.db.QueryRowContext(ctx, query, rowID).Scan(&body); err != nil {
			return "", fmt.Errorf("skills: sqlite body fetch: %w", err)
		}
		return body, nil
	}
}
