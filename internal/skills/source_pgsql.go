package skills

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// PostgresSource discovers skills from a single table:
// {id, namespace, skill_name, description, body, enabled, body_size,
// body_etag, created_at, updated_at, required_env_vars, metadata, scope}.
// Scan issues one SELECT of the metadata columns only, omitting body;
// bodies are fetched lazily at injection time.
type PostgresSource struct {
	id       string
	priority int
	db       *sql.DB
	table    string
	spaceID  string
	timeout  time.Duration
}

// NewPostgresSource builds a source over an existing *sql.DB (opened with
// the lib/pq driver) and a table name (defaults to "skills").
func NewPostgresSource(id string, priority int, spaceID string, db *sql.DB, table string) *PostgresSource {
	if table == "" {
		table = "skills"
	}
	return &PostgresSource{id: id, priority: priority, db: db, table: table, spaceID: spaceID, timeout: 10 * time.Second}
}

func (s *PostgresSource) ID() string    { return s.id }
func (s *PostgresSource) Priority() int { return s.priority }

// Scan selects metadata columns only (never body) for enabled rows.
func (s *PostgresSource) Scan() ([]Skill, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	query := fmt.Sprintf(
		`SELECT id, namespace, skill_name, description, body_size, body_etag, required_env_vars, metadata, scope
		 FROM %s WHERE enabled = true`, s.table)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("skills: pgsql scan: %w", err)
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
			return nil, fmt.Errorf("skills: pgsql row scan: %w", err)
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
			Locator:         fmt.Sprintf("pgsql:%s:%s", s.table, rowID),
			BodySize:        bodySize,
			BodyLoader:      s.bodyLoader(rowID),
			RequiredEnvVars: envVars,
			Metadata:        metadata,
			Scope:           scope,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("skills: pgsql rows: %w", err)
	}
	return out, nil
}

func (s *PostgresSource) bodyLoader(rowID string) func() (string, error) {
	return func() (string, error) {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		var body string
		query := fmt.Sprintf(`SELECT body FROM %s WHERE id = $1`, s.table)
		if err := s.db.QueryRowContext(ctx, query, rowID).Scan(&body); err != nil {
			return "", fmt.Errorf("skills: pgsql body fetch: %w", err)
		}
		return body, nil
	}
}
