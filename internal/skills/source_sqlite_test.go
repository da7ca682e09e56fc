package skills

import (
	"path/filepath"
	"testing"
)

func openTestCatalog(t *testing.T) *SQLiteSource {
	t.Helper()
	src, err := OpenSQLiteSource("catalog", 0, "demo", filepath.Join(t.TempDir(), "skills.db"), "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { src.Close() })
	return src
}

func TestSQLiteSourceScanAndBody(t *testing.T) {
	src := openTestCatalog(t)
	if err := src.Put("demo:local", "dep-skill", "needs FOO", "the body", []string{"FOO"}, "workspace"); err != nil {
		t.Fatalf("put: %v", err)
	}

	found, err := src.Scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("found %d skills, want 1", len(found))
	}
	sk := found[0]
	if sk.Namespace != "demo:local" || sk.SkillName != "dep-skill" || sk.Description != "needs FOO" {
		t.Fatalf("skill = %+v", sk)
	}
	if sk.BodySize != int64(len("the body")) {
		t.Fatalf("body_size = %d", sk.BodySize)
	}
	if len(sk.RequiredEnvVars) != 1 || sk.RequiredEnvVars[0] != "FOO" {
		t.Fatalf("required_env_vars = %v", sk.RequiredEnvVars)
	}

	body, err := sk.BodyLoader()
	if err != nil || body != "the body" {
		t.Fatalf("body = %q, %v", body, err)
	}
}

func TestSQLiteSourcePutUpserts(t *testing.T) {
	src := openTestCatalog(t)
	if err := src.Put("ns", "s", "v1", "body one", nil, ""); err != nil {
		t.Fatal(err)
	}
	if err := src.Put("ns", "s", "v2", "body two", nil, ""); err != nil {
		t.Fatal(err)
	}

	found, err := src.Scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("upsert must not duplicate rows, found %d", len(found))
	}
	if found[0].Description != "v2" {
		t.Fatalf("description = %q, want the updated value", found[0].Description)
	}
	body, err := found[0].BodyLoader()
	if err != nil || body != "body two" {
		t.Fatalf("body = %q, %v", body, err)
	}
}
