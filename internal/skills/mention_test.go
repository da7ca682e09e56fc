package skills

import (
	"reflect"
	"testing"
)

func TestExtractMentions(t *testing.T) {
	cases := []struct {
		name string
		text string
		want []Mention
	}{
		{
			name: "single mention",
			text: "use $[demo:local].dep-skill now",
			want: []Mention{{Text: "$[demo:local].dep-skill", Namespace: "demo:local", SkillName: "dep-skill"}},
		},
		{
			name: "single-segment namespace",
			text: "$[tools].grep",
			want: []Mention{{Text: "$[tools].grep", Namespace: "tools", SkillName: "grep"}},
		},
		{
			name: "multiple mentions",
			text: "$[a].one then $[b:c].two",
			want: []Mention{
				{Text: "$[a].one", Namespace: "a", SkillName: "one"},
				{Text: "$[b:c].two", Namespace: "b:c", SkillName: "two"},
			},
		},
		{
			name: "shell variable is not a mention",
			text: "echo $PATH and $HOME",
			want: []Mention{},
		},
		{
			name: "uppercase rejected",
			text: "$[Demo:Local].Skill",
			want: []Mention{},
		},
		{
			name: "missing skill name rejected",
			text: "$[demo:local]. and $[demo:local]",
			want: []Mention{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractMentions(tc.text)
			if len(got) == 0 && len(tc.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ExtractMentions(%q) = %+v, want %+v", tc.text, got, tc.want)
			}
		})
	}
}

func TestExtractMentionsSegmentLimit(t *testing.T) {
	// Seven segments is the most a namespace may carry.
	seven := "$[a:b:c:d:e:f:g].skill"
	if got := ExtractMentions(seven); len(got) != 1 || got[0].Namespace != "a:b:c:d:e:f:g" {
		t.Fatalf("seven segments should match, got %+v", got)
	}
	eight := "$[a:b:c:d:e:f:g:h].skill"
	got := ExtractMentions(eight)
	if len(got) == 1 && got[0].Text == eight {
		t.Fatalf("eight segments must not match as a whole: %+v", got)
	}
}

func TestResolveSpaceNotConfigured(t *testing.T) {
	mgr := NewManager(nil, RefreshAlways, 0)
	_, err := Resolve(mgr, SpaceSet{"other": true}, Mention{Namespace: "demo:local", SkillName: "x"})
	if err != ErrSpaceNotConfigured {
		t.Fatalf("err = %v, want ErrSpaceNotConfigured", err)
	}
}

func TestResolveUnknownSkill(t *testing.T) {
	mgr := NewManager([]Source{NewMemorySource("mem", 0, nil)}, RefreshAlways, 0)
	if _, err := mgr.Scan(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	_, err := Resolve(mgr, SpaceSet{"demo:local": true}, Mention{Namespace: "demo:local", SkillName: "ghost"})
	if err != ErrUnknownSkill {
		t.Fatalf("err = %v, want ErrUnknownSkill", err)
	}
}

func TestResolveFindsScannedSkill(t *testing.T) {
	mgr := NewManager([]Source{NewMemorySource("mem", 0, []Skill{
		{Namespace: "demo:local", SkillName: "dep-skill", BodyLoader: func() (string, error) { return "", nil }},
	})}, RefreshAlways, 0)
	if _, err := mgr.Scan(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	sk, err := Resolve(mgr, SpaceSet{"demo:local": true}, Mention{Namespace: "demo:local", SkillName: "dep-skill"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if sk.SkillName != "dep-skill" {
		t.Fatalf("resolved %q", sk.SkillName)
	}
}
