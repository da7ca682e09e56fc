package skills

import "testing"

func TestEnvLookup_ProvidedWinsOverProcess(t *testing.T) {
	t.Setenv("SKILLRUN_TEST_FOO", "from-process")
	resolved, missing := EnvLookup([]string{"SKILLRUN_TEST_FOO"}, map[string]string{"SKILLRUN_TEST_FOO": "from-run"})
	if len(missing) != 0 {
		t.Fatalf("expected no missing vars, got %v", missing)
	}
	if resolved[0].Source != "provided" {
		t.Fatalf("expected provided source, got %s", resolved[0].Source)
	}
}

func TestEnvLookup_FallsBackToProcessEnv(t *testing.T) {
	t.Setenv("SKILLRUN_TEST_BAR", "from-process")
	resolved, missing := EnvLookup([]string{"SKILLRUN_TEST_BAR"}, nil)
	if len(missing) != 0 {
		t.Fatalf("expected no missing vars, got %v", missing)
	}
	if resolved[0].Source != "process_env" {
		t.Fatalf("expected process_env source, got %s", resolved[0].Source)
	}
}

func TestEnvLookup_ReportsMissing(t *testing.T) {
	_, missing := EnvLookup([]string{"SKILLRUN_TEST_DOES_NOT_EXIST"}, nil)
	if len(missing) != 1 || missing[0] != "SKILLRUN_TEST_DOES_NOT_EXIST" {
		t.Fatalf("expected missing var reported, got %v", missing)
	}
}
