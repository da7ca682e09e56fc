// Package workspace provides the workspace-root path containment guard
// shared by every filesystem- and process-touching tool.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/skillrun/agentcore/internal/engine"
)

// Resolver resolves a possibly-relative path against a fixed workspace
// root and rejects anything that would escape it.
type Resolver struct {
	Root string
}

// Resolve returns an absolute, cleaned path guaranteed to be inside Root,
// or engine.ErrWorkspaceEscape if it is not.
func (r Resolver) Resolve(path string) (string, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return "", fmt.Errorf("workspace: path is required")
	}
	root := strings.TrimSpace(r.Root)
	if root == "" {
		root = "."
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("workspace: resolve root: %w", err)
	}

	var target string
	if filepath.IsAbs(clean) {
		target = filepath.Clean(clean)
	} else {
		target = filepath.Join(rootAbs, clean)
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("workspace: resolve path: %w", err)
	}

	rel, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil {
		return "", fmt.Errorf("workspace: resolve path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", engine.ErrWorkspaceEscape
	}
	return targetAbs, nil
}

// ResolveDir behaves like Resolve but defaults to the workspace root
// itself when path is empty, matching the exec tools' "cwd optional"
// semantics.
func (r Resolver) ResolveDir(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return r.Resolve(".")
	}
	return r.Resolve(path)
}
