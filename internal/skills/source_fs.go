package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FilesystemSource discovers SKILL.md files under Root, parsing YAML
// frontmatter delimited by "---" lines.
type FilesystemSource struct {
	id       string
	priority int
	Root     string
	SpaceID  string
}

// NewFilesystemSource builds a source rooted at dir.
func NewFilesystemSource(id string, priority int, spaceID, dir string) *FilesystemSource {
	return &FilesystemSource{id: id, priority: priority, Root: dir, SpaceID: spaceID}
}

func (s *FilesystemSource) ID() string    { return s.id }
func (s *FilesystemSource) Priority() int { return s.priority }

type skillFrontmatter struct {
	Name            string         `yaml:"name"`
	Description     string         `yaml:"description"`
	RequiredEnvVars []string       `yaml:"required_env_vars"`
	Metadata        map[string]any `yaml:"metadata"`
	Scope           string         `yaml:"scope"`
	Namespace       string         `yaml:"namespace"`
}

// Scan walks Root for SKILL.md files. Only frontmatter is parsed; body is
// captured behind a lazy closure that re-reads the file on demand, so
// scanning never holds body bytes in memory.
func (s *FilesystemSource) Scan() ([]Skill, error) {
	return s.walk()
}

func (s *FilesystemSource) walk() ([]Skill, error) {
	var out []Skill
	err := filepath.Walk(s.Root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || filepath.Base(path) != "SKILL.md" {
			return nil
		}
		sk, perr := s.parseFile(path)
		if perr != nil {
			return nil // a malformed skill file is skipped without a warning, not a fatal scan error
		}
		out = append(out, sk)
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return out, nil
}

func (s *FilesystemSource) parseFile(path string) (Skill, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Skill{}, err
	}
	front, _, err := splitFrontmatter(string(raw))
	if err != nil {
		return Skill{}, err
	}
	var meta skillFrontmatter
	if err := yaml.Unmarshal([]byte(front), &meta); err != nil {
		return Skill{}, fmt.Errorf("skills: parse frontmatter %s: %w", path, err)
	}
	if meta.Name == "" {
		return Skill{}, fmt.Errorf("skills: %s missing name", path)
	}
	ns := meta.Namespace
	if ns == "" {
		ns = s.SpaceID
	}
	dir := filepath.Dir(path)
	return Skill{
		SpaceID:         s.SpaceID,
		SourceID:        s.id,
		Namespace:       ns,
		SkillName:       meta.Name,
		Description:     meta.Description,
		Locator:         path,
		Path:            dir,
		RequiredEnvVars: meta.RequiredEnvVars,
		Metadata:        meta.Metadata,
		Scope:           meta.Scope,
		BodyLoader: func() (string, error) {
			raw, err := os.ReadFile(path)
			if err != nil {
				return "", err
			}
			_, body, err := splitFrontmatter(string(raw))
			return body, err
		},
		BodySize: int64(len(raw)),
	}, nil
}

// splitFrontmatter separates a SKILL.md file's leading "---"-delimited
// YAML block from its markdown body.
func splitFrontmatter(content string) (frontmatter, body string, err error) {
	trimmed := strings.TrimPrefix(content, "\uFEFF")
	if !strings.HasPrefix(trimmed, "---") {
		return "", trimmed, nil
	}
	rest := trimmed[3:]
	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return "", "", fmt.Errorf("skills: unterminated frontmatter block")
	}
	frontmatter = rest[:idx]
	after := rest[idx+4:]
	if nl := strings.IndexByte(after, '\n'); nl >= 0 {
		body = after[nl+1:]
	}
	return frontmatter, body, nil
}
