package skills

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/skillrun/agentcore/internal/engine"
)

func buildZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create entry %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("write entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

type fakeBundleSource struct {
	data  []byte
	calls int
}

func (f *fakeBundleSource) GetBundle(Skill) ([]byte, error) {
	f.calls++
	return f.data, nil
}

func TestBundleExtractor_HappyPath(t *testing.T) {
	data := buildZip(t, map[string]string{
		"actions/run.sh":        "#!/bin/sh\necho hi\n",
		"references/readme.md": "hello",
	})
	sha := engine.Sha256Hex(data)
	src := &fakeBundleSource{data: data}
	sk := Skill{Namespace: "demo", SkillName: "tool", BundleSHA256: sha}

	cacheRoot := t.TempDir()
	ext := NewBundleExtractor(cacheRoot, DefaultBundleLimits())

	dir, err := ext.Extract(src, sk)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "actions", "run.sh")); err != nil {
		t.Fatalf("expected extracted file: %v", err)
	}

	// Second extraction of the same sha256 must not touch the source again.
	dir2, err := ext.Extract(src, sk)
	if err != nil {
		t.Fatalf("second extract: %v", err)
	}
	if dir2 != dir {
		t.Fatalf("expected same cache dir, got %s vs %s", dir, dir2)
	}
	if src.calls != 1 {
		t.Fatalf("expected exactly one GetBundle call, got %d", src.calls)
	}
}

func TestBundleExtractor_FingerprintMismatch(t *testing.T) {
	data := buildZip(t, map[string]string{"actions/a.txt": "x"})
	src := &fakeBundleSource{data: data}
	sk := Skill{Namespace: "demo", SkillName: "tool", BundleSHA256: "deadbeef"}

	ext := NewBundleExtractor(t.TempDir(), DefaultBundleLimits())
	if _, err := ext.Extract(src, sk); err != ErrBundleFingerprintBad {
		t.Fatalf("expected ErrBundleFingerprintBad, got %v", err)
	}
}

func TestBundleExtractor_RejectsPathTraversal(t *testing.T) {
	data := buildZip(t, map[string]string{"actions/../../../etc/passwd": "x"})
	sha := engine.Sha256Hex(data)
	src := &fakeBundleSource{data: data}
	sk := Skill{Namespace: "demo", SkillName: "tool", BundleSHA256: sha}

	ext := NewBundleExtractor(t.TempDir(), DefaultBundleLimits())
	if _, err := ext.Extract(src, sk); err == nil {
		t.Fatalf("expected traversal to be rejected")
	}
}

func TestBundleExtractor_RejectsDisallowedTopLevel(t *testing.T) {
	data := buildZip(t, map[string]string{"scripts/run.sh": "x"})
	sha := engine.Sha256Hex(data)
	src := &fakeBundleSource{data: data}
	sk := Skill{Namespace: "demo", SkillName: "tool", BundleSHA256: sha}

	ext := NewBundleExtractor(t.TempDir(), DefaultBundleLimits())
	if _, err := ext.Extract(src, sk); err == nil {
		t.Fatalf("expected disallowed top-level dir to be rejected")
	}
}
