package execengine

import "testing"

func TestExecSessions_SpawnWriteClose(t *testing.T) {
	es := NewExecSessions(t.TempDir())
	ref, err := es.Spawn([]string{"cat"}, "", nil, false)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	res, err := es.Write(ref.SessionID, "hello\n", 200, 1024)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if res.Stdout != "hello\n" {
		t.Fatalf("stdout = %q, want %q", res.Stdout, "hello\n")
	}
	if !res.Running {
		t.Fatalf("expected cat still running")
	}
	if err := es.Close(ref.SessionID); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := es.Write(ref.SessionID, "x", 0, 1024); err == nil {
		t.Fatalf("expected error writing to a closed session")
	}
}

func TestExecSessions_ExitReported(t *testing.T) {
	es := NewExecSessions(t.TempDir())
	ref, err := es.Spawn([]string{"sh", "-c", "exit 0"}, "", nil, false)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	res, err := es.Write(ref.SessionID, "", 200, 1024)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if res.Running {
		t.Fatalf("expected process to have exited")
	}
	if res.ExitCode == nil || *res.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %+v", res.ExitCode)
	}
}

func TestExecSessions_CloseAll(t *testing.T) {
	es := NewExecSessions(t.TempDir())
	ref1, _ := es.Spawn([]string{"cat"}, "", nil, false)
	ref2, _ := es.Spawn([]string{"cat"}, "", nil, false)
	es.CloseAll()
	if _, err := es.Write(ref1.SessionID, "x", 0, 1024); err == nil {
		t.Fatalf("expected session 1 to be gone after CloseAll")
	}
	if _, err := es.Write(ref2.SessionID, "x", 0, 1024); err == nil {
		t.Fatalf("expected session 2 to be gone after CloseAll")
	}
}
