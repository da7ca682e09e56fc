package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSource discovers skills stored under a prefixed key space:
// "<prefix>meta:<namespace>:<skill_name>" for metadata hashes,
// "<prefix>body:<namespace>:<skill_name>" for lazily-fetched bodies, and
// an optional "<prefix>bundle:<namespace>:<skill_name>" for a zip bundle.
// Scan only ever touches the meta keys; body and bundle keys are fetched
// on demand, never during a scan.
type RedisSource struct {
	id       string
	priority int
	client   *redis.Client
	prefix   string
	spaceID  string
	timeout  time.Duration
}

// NewRedisSource builds a source over an existing *redis.Client.
func NewRedisSource(id string, priority int, spaceID string, client *redis.Client, prefix string) *RedisSource {
	if prefix == "" {
		prefix = "skills:"
	}
	return &RedisSource{id: id, priority: priority, client: client, prefix: prefix, spaceID: spaceID, timeout: 10 * time.Second}
}

func (s *RedisSource) ID() string    { return s.id }
func (s *RedisSource) Priority() int { return s.priority }

type redisSkillMeta struct {
	Namespace       string         `json:"namespace"`
	SkillName       string         `json:"skill_name"`
	Description     string         `json:"description"`
	RequiredEnvVars []string       `json:"required_env_vars"`
	Metadata        map[string]any `json:"metadata"`
	Scope           string         `json:"scope"`
	BodySize        int64          `json:"body_size"`
	BundleSHA256    string         `json:"bundle_sha256"`
}

// Scan iterates "<prefix>meta:*" keys via SCAN and fetches each one with
// HGETALL, never touching the corresponding body/bundle key.
func (s *RedisSource) Scan() ([]Skill, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	pattern := s.prefix + "meta:*"
	var out []Skill
	iter := s.client.Scan(ctx, 0, pattern, 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		fields, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("skills: redis hgetall %s: %w", key, err)
		}
		sk, err := s.skillFromFields(key, fields)
		if err != nil {
			continue
		}
		out = append(out, sk)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("skills: redis scan: %w", err)
	}
	return out, nil
}

func (s *RedisSource) skillFromFields(key string, fields map[string]string) (Skill, error) {
	ns, name, ok := splitMetaKey(key, s.prefix)
	if !ok {
		return Skill{}, fmt.Errorf("skills: unexpected meta key %s", key)
	}
	var meta redisSkillMeta
	if raw, ok := fields["json"]; ok {
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			return Skill{}, err
		}
	} else {
		meta.Description = fields["description"]
		meta.Scope = fields["scope"]
		meta.BundleSHA256 = fields["bundle_sha256"]
		if ev, ok := fields["required_env_vars"]; ok && ev != "" {
			meta.RequiredEnvVars = strings.Split(ev, ",")
		}
	}
	if meta.Namespace != "" {
		ns = meta.Namespace
	}
	if meta.SkillName != "" {
		name = meta.SkillName
	}

	locator := s.prefix + "body:" + ns + ":" + name
	loader := func() (string, error) {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		return s.client.Get(ctx, locator).Result()
	}

	return Skill{
		SpaceID:         s.spaceID,
		SourceID:        s.id,
		Namespace:       ns,
		SkillName:       name,
		Description:     meta.Description,
		Locator:         locator,
		BodySize:        meta.BodySize,
		BodyLoader:      loader,
		RequiredEnvVars: meta.RequiredEnvVars,
		Metadata:        meta.Metadata,
		Scope:           meta.Scope,
		BundleSHA256:    meta.BundleSHA256,
	}, nil
}

func splitMetaKey(key, prefix string) (namespace, name string, ok bool) {
	rest := strings.TrimPrefix(key, prefix+"meta:")
	if rest == key {
		return "", "", false
	}
	idx := strings.LastIndex(rest, ":")
	if idx < 0 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}

// GetBundle fetches the zip bundle bytes lazily from
// "<prefix>bundle:<namespace>:<skill_name>".
func (s *RedisSource) GetBundle(skill Skill) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	key := s.prefix + "bundle:" + skill.Namespace + ":" + skill.SkillName
	b, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, fmt.Errorf("skills: redis bundle fetch %s: %w", key, err)
	}
	return b, nil
}
