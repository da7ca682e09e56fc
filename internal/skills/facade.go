package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Facade is the surface ExecutionContext.Skills exposes to the
// skill_exec/skill_ref_read handlers: a resolved manager plus the
// configured spaces and bundle extractor needed to materialize a
// skill's actions/references assets regardless of which source
// produced it.
type Facade struct {
	Manager  *Manager
	Spaces   SpaceSet
	Bundles  *BundleExtractor
	MaxBytes int64 // references.default_max_bytes; 0 means unbounded
}

// AssetDir returns the local directory holding sk's actions/references
// tree: the skill's own Path directory for filesystem-sourced skills, or
// the bundle extractor's content-addressed cache directory (fetching and
// extracting on first use) for every other source.
func (f *Facade) AssetDir(sk Skill) (string, error) {
	if sk.SourceID == "" || sk.BundleSHA256 == "" {
		if sk.Path == "" {
			return "", fmt.Errorf("skills: %s has neither a bundle nor a filesystem path", sk.Key())
		}
		// Path is the directory holding SKILL.md; actions/ and
		// references/ sit directly inside it.
		return sk.Path, nil
	}
	src, ok := f.Manager.SourceByID(sk.SourceID)
	if !ok {
		return "", fmt.Errorf("skills: unknown source %q for %s", sk.SourceID, sk.Key())
	}
	bundleSrc, ok := src.(BundleSource)
	if !ok {
		return "", ErrBundlesUnsupported
	}
	return f.Bundles.Extract(bundleSrc, sk)
}

// ReadAsset reads relPath (e.g. "references/api.md") under sk's asset
// directory, rejecting any attempt to escape it and enforcing MaxBytes.
func (f *Facade) ReadAsset(sk Skill, relPath string) ([]byte, error) {
	dir, err := f.AssetDir(sk)
	if err != nil {
		return nil, err
	}
	target, err := safeJoin(dir, relPath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(target)
	if err != nil {
		return nil, err
	}
	if f.MaxBytes > 0 && info.Size() > f.MaxBytes {
		return nil, fmt.Errorf("skills: asset %q exceeds max_bytes (%d > %d)", relPath, info.Size(), f.MaxBytes)
	}
	return os.ReadFile(target)
}

// ActionPath resolves sk's action script path under "actions/", for
// skill_exec to invoke via the Executor.
func (f *Facade) ActionPath(sk Skill, action string) (string, error) {
	dir, err := f.AssetDir(sk)
	if err != nil {
		return "", err
	}
	return safeJoin(dir, filepath.Join("actions", action))
}

func safeJoin(root, rel string) (string, error) {
	cleaned := filepath.Clean(filepath.Join(root, rel))
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	cleanedAbs, err := filepath.Abs(cleaned)
	if err != nil {
		return "", err
	}
	cleanedRel, err := filepath.Rel(rootAbs, cleanedAbs)
	if err != nil || cleanedRel == ".." || strings.HasPrefix(cleanedRel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("skills: asset path %q escapes skill directory", rel)
	}
	return cleanedAbs, nil
}
