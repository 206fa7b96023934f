package snapshot

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/Code-6dof/DXX-Dashboard/internal/aggregator"
	"github.com/Code-6dof/DXX-Dashboard/internal/events"
	"github.com/Code-6dof/DXX-Dashboard/internal/gamelog"
	"github.com/Code-6dof/DXX-Dashboard/internal/protocol"
	"github.com/Code-6dof/DXX-Dashboard/internal/registry"
)

func TestWriterAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tracker_data.json")
	w := NewWriter(path)

	if err := w.Write(Document{ActiveGames: 1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Write(Document{ActiveGames: 2}); err != nil {
		t.Fatalf("second Write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if doc.ActiveGames != 2 {
		t.Errorf("activeGames = %d, want 2", doc.ActiveGames)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestBuildDocumentS1Shape(t *testing.T) {
	reg := registry.New()
	stores := events.NewStores()
	clients := gamelog.NewClientManager()

	src := &net.UDPAddr{IP: net.ParseIP("203.0.113.7"), Port: 55000}
	reg.UpsertOnRegister(src, protocol.Register{
		Version: protocol.VersionD1, GamePort: 5000, GameID: 0x04030201,
		Major: 1, Minor: 3, Micro: 2,
	})
	key := registry.Key{IP: "203.0.113.7", Port: 5000}
	reg.ApplyLite(key, protocol.LiteInfo{
		GameID: 0x04030201, GameName: "1v1", MissionTitle: "Wrath",
		Level: 1, Mode: 0, PlayerCount: 2, MaxPlayers: 2,
	})
	stores.GetOrCreate(key.String())

	doc := BuildDocument(reg, stores, clients)
	if doc.ActiveGames != 1 || len(doc.Games) != 1 {
		t.Fatalf("doc = %+v", doc)
	}
	g := doc.Games[0]
	if g.GameName != "1v1" || g.PlayerCount != 2 || g.Mode != "Anarchy" {
		t.Errorf("game = %+v", g)
	}
	if g.Version != "D1" || g.Release != "1.3.2" {
		t.Errorf("version = %s %s", g.Version, g.Release)
	}
	if doc.Gamelog == nil {
		t.Error("gamelog digest missing")
	}
}

func TestDigestTrimming(t *testing.T) {
	view := &aggregator.MergedView{DamageByWeapon: make(map[string]int)}
	for i := 0; i < 200; i++ {
		e := events.New(events.KindKill)
		e.GameTimeMicros = uint64(i + 1)
		view.KillFeed = append(view.KillFeed, e)
		view.Timeline = append(view.Timeline, e)
		c := events.New(events.KindChat)
		c.GameTimeMicros = uint64(i + 1)
		view.Chat = append(view.Chat, c)
	}
	for i := 0; i < 60; i++ {
		view.DamageByWeapon[fmt.Sprintf("weapon-%02d", i)] = i + 1
	}

	d := BuildDigest(view)
	if len(d.KillFeed) != killFeedTrim {
		t.Errorf("kill feed = %d, want %d", len(d.KillFeed), killFeedTrim)
	}
	if len(d.Timeline) != timelineTrim {
		t.Errorf("timeline = %d, want %d", len(d.Timeline), timelineTrim)
	}
	if len(d.Chat) != chatTrim {
		t.Errorf("chat = %d, want %d", len(d.Chat), chatTrim)
	}
	if len(d.DamageByWeapon) != damageTrim {
		t.Errorf("damage rows = %d, want %d", len(d.DamageByWeapon), damageTrim)
	}
	// Trimming keeps the newest entries.
	if d.KillFeed[0].GameTimeMicros != 151 {
		t.Errorf("kill feed starts at µs %d, want 151", d.KillFeed[0].GameTimeMicros)
	}
	// And the highest damage counts.
	if _, ok := d.DamageByWeapon["weapon-59"]; !ok {
		t.Error("top damage row trimmed away")
	}
	if _, ok := d.DamageByWeapon["weapon-00"]; ok {
		t.Error("lowest damage row kept")
	}
}
