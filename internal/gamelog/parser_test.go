package gamelog

import (
	"strings"
	"testing"

	"github.com/Code-6dof/DXX-Dashboard/internal/events"
)

func TestParseKillWithBoundIdentity(t *testing.T) {
	res, err := Parse([]byte("You killed bob with Plasma Cannon\n"), "alice")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Events) != 1 {
		t.Fatalf("got %d events, want 1", len(res.Events))
	}
	e := res.Events[0]
	if e.Kind != events.KindKill {
		t.Fatalf("kind = %s, want kill", e.Kind)
	}
	if e.Killer != "alice" || e.Victim != "bob" || e.Weapon != "Plasma Cannon" {
		t.Errorf("event = %s -> %s (%s)", e.Killer, e.Victim, e.Weapon)
	}
	if res.Stats["alice"].Kills != 1 || res.Stats["bob"].Deaths != 1 {
		t.Errorf("stats = %+v", res.Stats)
	}
}

func TestParseRewritesVictimSelfReference(t *testing.T) {
	res, err := Parse([]byte("bob killed You with Vulcan Cannon\n"), "alice")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.Events[0].Victim != "alice" {
		t.Errorf("victim = %q, want alice", res.Events[0].Victim)
	}
	if res.Stats["alice"].Killers["bob"] != 1 {
		t.Errorf("killers map = %+v", res.Stats["alice"].Killers)
	}
}

func TestParseSuicide(t *testing.T) {
	res, err := Parse([]byte("You killed yourself with Proximity Bomb\n"), "alice")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	e := res.Events[0]
	if !e.Suicide() {
		t.Fatalf("event not a suicide: %+v", e)
	}
	st := res.Stats["alice"]
	if st.Suicides != 1 || st.Deaths != 1 || st.Kills != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestParseGameTimePrefix(t *testing.T) {
	res, err := Parse([]byte("[12.5] alice killed bob with Laser\n"), "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.Events[0].GameTimeMicros != 12500000 {
		t.Errorf("µs = %d, want 12500000", res.Events[0].GameTimeMicros)
	}
}

func TestParseKillStreaks(t *testing.T) {
	log := strings.Join([]string{
		"alice killed bob with Laser",
		"alice killed bob with Laser",
		"alice killed bob with Laser",
		"bob killed alice with Fusion Cannon",
		"alice killed bob with Laser",
	}, "\n")
	res, err := Parse([]byte(log), "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	st := res.Stats["alice"]
	if st.Kills != 4 || st.MaxKillStreak != 3 || st.KillStreak != 1 {
		t.Errorf("alice stats = %+v", st)
	}
	if st.Weapons["Laser"] != 4 || st.Victims["bob"] != 4 {
		t.Errorf("alice maps = %+v", st)
	}
}

func TestParseChatJoinQuitAndUnknown(t *testing.T) {
	log := strings.Join([]string{
		"'bob' is joining the game.",
		"bob: good luck",
		"bob has left the game",
		"The reactor has been destroyed!",
		"%%% garbage line %%%",
	}, "\n")
	res, err := Parse([]byte(log), "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	kinds := make([]events.Kind, 0, len(res.Events))
	for _, e := range res.Events {
		kinds = append(kinds, e.Kind)
	}
	want := []events.Kind{events.KindJoin, events.KindChat, events.KindQuit, events.KindReactor}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("kinds = %v, want %v", kinds, want)
		}
	}
	if len(res.Unknown) != 1 {
		t.Errorf("unknown lines = %v", res.Unknown)
	}
}

func TestInferProvisionalIdentity(t *testing.T) {
	log := strings.Join([]string{
		"'alice' is joining the game.",
		"You killed bob with Plasma Cannon",
	}, "\n")
	res, err := Parse([]byte(log), "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.Identity != "alice" || !res.Provisional {
		t.Errorf("identity = %q provisional=%v, want alice/true", res.Identity, res.Provisional)
	}
	// the kill is attributed to the inferred identity
	for _, e := range res.Events {
		if e.Kind == events.KindKill && e.Killer != "alice" {
			t.Errorf("killer = %q, want alice", e.Killer)
		}
	}
}

func TestNoInferenceWithTwoJoins(t *testing.T) {
	log := strings.Join([]string{
		"'alice' is joining the game.",
		"'bob' is joining the game.",
		"You killed bob with Plasma Cannon",
	}, "\n")
	res, err := Parse([]byte(log), "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.Provisional || res.Identity != "" {
		t.Errorf("identity = %q provisional=%v, want no inference", res.Identity, res.Provisional)
	}
}

func TestParseRejectsInvalidUTF8(t *testing.T) {
	if _, err := Parse([]byte{0xff, 0xfe, 'h', 'i'}, ""); err == nil {
		t.Error("expected error for invalid UTF-8")
	}
}

func TestParseIsRestartable(t *testing.T) {
	full := "alice killed bob with Laser\nbob killed alice with Fusion Cannon\n"
	half, err := Parse([]byte(full[:28]), "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(half.Events) != 1 {
		t.Fatalf("partial parse produced %d events, want 1", len(half.Events))
	}
	again, err := Parse([]byte(full), "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(again.Events) != 2 {
		t.Fatalf("full parse produced %d events, want 2", len(again.Events))
	}
}

func TestClientManagerReplaceAndAppend(t *testing.T) {
	m := NewClientManager()
	n, err := m.Replace("alice", "You killed bob with Laser\nbob: ouch\n")
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if n != 2 {
		t.Fatalf("eventsReceived = %d, want 2", n)
	}
	if m.Count() != 1 {
		t.Fatalf("count = %d, want 1", m.Count())
	}

	// first chunk ends mid-line; nothing parses until the newline arrives
	newEvents, total, err := m.Append("alice", "You killed bob wi")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if newEvents != 0 || total != 2 {
		t.Fatalf("after partial append: new=%d total=%d", newEvents, total)
	}
	newEvents, total, err = m.Append("alice", "th Plasma Cannon\n")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if newEvents != 1 || total != 3 {
		t.Fatalf("after completing line: new=%d total=%d", newEvents, total)
	}

	streams := m.Streams()
	if len(streams) != 1 || streams[0].Identity != "alice" {
		t.Fatalf("streams = %+v", streams)
	}
	for _, e := range streams[0].Events {
		if e.Source != "upload:alice" {
			t.Errorf("source = %q, want upload:alice", e.Source)
		}
	}
}

func TestClientManagerReset(t *testing.T) {
	m := NewClientManager()
	if _, err := m.Replace("local", "alice killed bob with Laser\n"); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	m.Reset("local")
	streams := m.Streams()
	if len(streams) != 1 || len(streams[0].Events) != 0 {
		t.Fatalf("after reset: %+v", streams)
	}
}
