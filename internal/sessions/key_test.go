package sessions

import "testing"

func TestBuildSessionKey(t *testing.T) {
	got := BuildSessionKey("default", "telegram", PeerDirect, "386246614")
	want := "agent:default:telegram:direct:386246614"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuildGroupTopicSessionKey(t *testing.T) {
	got := BuildGroupTopicSessionKey("default", "telegram", "-100123456", 99)
	want := "agent:default:telegram:group:-100123456:topic:99"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuildCronSessionKeyGuardsDoublePrefix(t *testing.T) {
	got := BuildCronSessionKey("default", "reminder", "abc123")
	want := "agent:default:cron:reminder:run:abc123"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	// Passing an already-canonical key as jobID extracts its rest instead
	// of wrapping the whole key verbatim.
	already := BuildCronSessionKey("default", "agent:default:cron:reminder:run:xyz", "abc123")
	wantAlready := "agent:default:cron:cron:reminder:run:xyz:run:abc123"
	if already != wantAlready {
		t.Fatalf("got %q, want %q", already, wantAlready)
	}
}

func TestBuildScopedSessionKey(t *testing.T) {
	cases := []struct {
		name    string
		scope   string
		dmScope string
		kind    PeerKind
		want    string
	}{
		{"global", "global", "", PeerDirect, "global"},
		{"group always full key", "per-sender", "main", PeerGroup, "agent:a:tg:group:chat1"},
		{"dm main scope", "per-sender", "main", PeerDirect, "agent:a:main"},
		{"dm per-peer", "per-sender", "per-peer", PeerDirect, "agent:a:direct:chat1"},
		{"dm default per-channel-peer", "per-sender", "", PeerDirect, "agent:a:tg:direct:chat1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := BuildScopedSessionKey("a", "tg", tc.kind, "chat1", tc.scope, tc.dmScope, "main")
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseSessionKeyAndPredicates(t *testing.T) {
	agentID, rest := ParseSessionKey("agent:default:subagent:my-task")
	if agentID != "default" || rest != "subagent:my-task" {
		t.Fatalf("got agentID=%q rest=%q", agentID, rest)
	}
	if !IsSubagentSession("agent:default:subagent:my-task") {
		t.Fatal("expected subagent session to be detected")
	}
	if !IsCronSession("agent:default:cron:reminder:run:abc") {
		t.Fatal("expected cron session to be detected")
	}
	if IsSubagentSession("agent:default:telegram:direct:1") {
		t.Fatal("did not expect a channel DM session to be classified as subagent")
	}
}

func TestPeerKindFromGroup(t *testing.T) {
	if PeerKindFromGroup(true) != PeerGroup {
		t.Fatal("expected PeerGroup for isGroup=true")
	}
	if PeerKindFromGroup(false) != PeerDirect {
		t.Fatal("expected PeerDirect for isGroup=false")
	}
}
