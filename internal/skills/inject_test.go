package skills

import "testing"

func TestInject_WrapsEnvelope(t *testing.T) {
	sk := Skill{
		Namespace: "demo:local", SkillName: "dep-skill", Path: "/skills/dep",
		BodyLoader: func() (string, error) { return "do the thing", nil },
	}
	m := Mention{Text: "$[demo:local].dep-skill", Namespace: "demo:local", SkillName: "dep-skill"}

	got, err := Inject(m, sk, 0)
	if err != nil {
		t.Fatalf("inject: %v", err)
	}
	want := "<skill><name>dep-skill</name><path>/skills/dep</path>do the thing</skill>"
	if got.Envelope != want {
		t.Fatalf("envelope = %q, want %q", got.Envelope, want)
	}
	if got.Bytes != len("do the thing") {
		t.Fatalf("bytes = %d", got.Bytes)
	}
}

func TestInject_BodyTooLarge(t *testing.T) {
	sk := Skill{
		SkillName:  "big",
		BodyLoader: func() (string, error) { return "0123456789", nil },
	}
	_, err := Inject(Mention{}, sk, 4)
	if err != ErrBodyTooLarge {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
}

func TestInject_NeverCallsLoaderDuringScanOnlyPath(t *testing.T) {
	called := false
	sk := Skill{Namespace: "ns", SkillName: "s", BodyLoader: func() (string, error) { called = true; return "", nil }}
	mgr := NewManager([]Source{NewMemorySource("mem", 0, []Skill{sk})}, RefreshAlways, 0)
	if _, err := mgr.Scan(); err != nil {
		t.Fatal(err)
	}
	if called {
		t.Fatalf("body loader must not be invoked outside injection")
	}
}
