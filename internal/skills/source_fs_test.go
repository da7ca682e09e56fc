package skills

import (
	"os"
	"path/filepath"
	"testing"
)

const depSkillMD = `---
name: dep-skill
description: needs FOO
required_env_vars:
  - FOO
namespace: demo:local
metadata:
  actions:
    - run.sh
---
Body line one.
Body line two.
`

func writeSkillFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFilesystemSourceScan(t *testing.T) {
	root := t.TempDir()
	writeSkillFile(t, root, "dep/SKILL.md", depSkillMD)
	writeSkillFile(t, root, "dep/notes.md", "not a skill file")

	src := NewFilesystemSource("fs", 0, "demo:local", root)
	found, err := src.Scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("found %d skills, want 1", len(found))
	}
	sk := found[0]
	if sk.SkillName != "dep-skill" || sk.Namespace != "demo:local" {
		t.Fatalf("skill = %+v", sk)
	}
	if sk.Description != "needs FOO" {
		t.Fatalf("description = %q", sk.Description)
	}
	if len(sk.RequiredEnvVars) != 1 || sk.RequiredEnvVars[0] != "FOO" {
		t.Fatalf("required_env_vars = %v", sk.RequiredEnvVars)
	}
	if sk.Path != filepath.Join(root, "dep") {
		t.Fatalf("path = %q", sk.Path)
	}

	body, err := sk.BodyLoader()
	if err != nil {
		t.Fatalf("body: %v", err)
	}
	if body != "Body line one.\nBody line two.\n" {
		t.Fatalf("body = %q", body)
	}
}

func TestFilesystemSourceNamespaceDefaultsToSpace(t *testing.T) {
	root := t.TempDir()
	writeSkillFile(t, root, "plain/SKILL.md", "---\nname: plain\n---\nbody\n")

	src := NewFilesystemSource("fs", 0, "fallback-ns", root)
	found, err := src.Scan()
	if err != nil || len(found) != 1 {
		t.Fatalf("scan: %v, %d", err, len(found))
	}
	if found[0].Namespace != "fallback-ns" {
		t.Fatalf("namespace = %q, want the space id fallback", found[0].Namespace)
	}
}

func TestFilesystemSourceSkipsMalformedFiles(t *testing.T) {
	root := t.TempDir()
	writeSkillFile(t, root, "good/SKILL.md", "---\nname: good\n---\nbody\n")
	writeSkillFile(t, root, "bad/SKILL.md", "---\nno terminator")
	writeSkillFile(t, root, "nameless/SKILL.md", "---\ndescription: missing name\n---\nbody\n")

	src := NewFilesystemSource("fs", 0, "ns", root)
	found, err := src.Scan()
	if err != nil {
		t.Fatalf("malformed files must not fail the scan: %v", err)
	}
	if len(found) != 1 || found[0].SkillName != "good" {
		t.Fatalf("found = %+v, want only the well-formed skill", found)
	}
}

func TestFilesystemSourceMissingRoot(t *testing.T) {
	src := NewFilesystemSource("fs", 0, "ns", filepath.Join(t.TempDir(), "absent"))
	found, err := src.Scan()
	if err != nil {
		t.Fatalf("a missing root is an empty scan, not an error: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("found = %+v", found)
	}
}
