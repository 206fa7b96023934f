// Package snapshot builds and atomically writes the JSON document dashboards
// poll between WebSocket frames. The file is replaced through a temp-file
// rename so a reader never observes truncated JSON.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Code-6dof/DXX-Dashboard/internal/aggregator"
	"github.com/Code-6dof/DXX-Dashboard/internal/events"
	"github.com/Code-6dof/DXX-Dashboard/internal/gamelog"
	"github.com/Code-6dof/DXX-Dashboard/internal/protocol"
	"github.com/Code-6dof/DXX-Dashboard/internal/registry"
)

// Digest trimming caps.
const (
	killFeedTrim = 50
	timelineTrim = 100
	chatTrim     = 50
	damageTrim   = 30
)

// GameSnapshot is the serialized state of one confirmed match.
type GameSnapshot struct {
	Key             string                    `json:"key"`
	GameID          uint32                    `json:"gameId"`
	Status          string                    `json:"status"`
	Version         string                    `json:"version"`
	Release         string                    `json:"release"`
	NetgameProto    uint16                    `json:"netgameProto,omitempty"`
	GameName        string                    `json:"gameName"`
	MissionTitle    string                    `json:"missionTitle"`
	MissionID       string                    `json:"missionId"`
	Level           uint32                    `json:"level"`
	Mode            string                    `json:"mode"`
	NetStatus       string                    `json:"netStatus"`
	Difficulty      uint8                     `json:"difficulty"`
	RefuseFlag      uint8                     `json:"refuseFlag"`
	Flags           uint8                     `json:"flags"`
	PlayerCount     int                       `json:"playerCount"`
	MaxPlayers      int                       `json:"maxPlayers"`
	Players         []aggregator.PlayerView   `json:"players,omitempty"`
	KillMatrix      map[string]map[string]int `json:"killMatrix,omitempty"`
	FirstRegistered time.Time                 `json:"firstRegistered"`
	LastSeen        time.Time                 `json:"lastSeen"`
}

// GamelogDigest is the top-level digest of the textual gamelog pipeline.
type GamelogDigest struct {
	TotalKills     int            `json:"totalKills"`
	TotalChats     int            `json:"totalChats"`
	KillFeed       []events.Event `json:"killFeed"`
	Timeline       []events.Event `json:"timeline"`
	Chat           []events.Event `json:"chat"`
	DamageByWeapon map[string]int `json:"damageByWeapon"`
	LastKill       *events.Event  `json:"lastKill,omitempty"`
}

// Document is the root of the snapshot file. Optional fields may be absent;
// consumers must tolerate that.
type Document struct {
	UpdatedAt   time.Time      `json:"updatedAt"`
	ActiveGames int            `json:"activeGames"`
	Games       []GameSnapshot `json:"games"`
	Gamelog     *GamelogDigest `json:"gamelog,omitempty"`
}

// BuildGame converts a match record plus its merged view into its snapshot
// form.
func BuildGame(m registry.Match, view *aggregator.MergedView) GameSnapshot {
	g := GameSnapshot{
		Key:             m.Key.String(),
		GameID:          m.GameID,
		Status:          m.Status.String(),
		Version:         fmt.Sprintf("D%d", m.Version),
		Release:         fmt.Sprintf("%d.%d.%d", m.Major, m.Minor, m.Micro),
		NetgameProto:    m.NetgameProto,
		GameName:        m.GameName(),
		PlayerCount:     m.PlayerCount(),
		MaxPlayers:      m.MaxPlayers(),
		Mode:            protocol.ModeName(m.Mode()),
		FirstRegistered: m.FirstRegistered,
		LastSeen:        m.LastSeen,
	}
	if m.HasLite {
		g.MissionTitle = m.Lite.MissionTitle
		g.MissionID = m.Lite.MissionID
		g.Level = m.Lite.Level
		g.NetStatus = protocol.StatusName(m.Lite.Status)
		g.Difficulty = m.Lite.Difficulty
		g.RefuseFlag = m.Lite.RefuseFlag
		g.Flags = m.Lite.Flags
	} else if m.HasFull {
		g.MissionTitle = m.Full.MissionTitle
		g.MissionID = m.Full.MissionID
		g.NetStatus = protocol.StatusName(m.Full.Status)
		g.Difficulty = m.Full.Difficulty
	}
	if view != nil {
		g.Players = view.Players
		g.KillMatrix = view.KillMatrix
	}
	return g
}

// BuildDigest trims a merged view down to the snapshot digest caps.
func BuildDigest(view *aggregator.MergedView) *GamelogDigest {
	return &GamelogDigest{
		TotalKills:     view.TotalKills,
		TotalChats:     view.TotalChats,
		KillFeed:       tail(view.KillFeed, killFeedTrim),
		Timeline:       tail(view.Timeline, timelineTrim),
		Chat:           tail(view.Chat, chatTrim),
		DamageByWeapon: topDamage(view.DamageByWeapon, damageTrim),
		LastKill:       view.LastKill,
	}
}

// BuildDocument assembles the full snapshot from the live registry, the
// per-match stores, and the textual streams.
func BuildDocument(reg *registry.Registry, stores *events.Stores, clients *gamelog.ClientManager) Document {
	streams := clients.Streams()
	confirmed := reg.Confirmed(0)
	sort.Slice(confirmed, func(i, j int) bool {
		return confirmed[i].Key.String() < confirmed[j].Key.String()
	})

	doc := Document{
		UpdatedAt:   time.Now(),
		ActiveGames: len(confirmed),
		Games:       make([]GameSnapshot, 0, len(confirmed)),
	}
	for _, m := range confirmed {
		store, _ := stores.Get(m.Key.String())
		view := aggregator.Merge(m, store, streams)
		doc.Games = append(doc.Games, BuildGame(m, view))
	}
	doc.Gamelog = BuildDigest(aggregator.Digest(streams))
	return doc
}

func tail(evs []events.Event, n int) []events.Event {
	if len(evs) <= n {
		return evs
	}
	return evs[len(evs)-n:]
}

// topDamage keeps the n highest-count weapon rows.
func topDamage(damage map[string]int, n int) map[string]int {
	if len(damage) <= n {
		return damage
	}
	type row struct {
		weapon string
		count  int
	}
	rows := make([]row, 0, len(damage))
	for w, c := range damage {
		rows = append(rows, row{w, c})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count != rows[j].count {
			return rows[i].count > rows[j].count
		}
		return rows[i].weapon < rows[j].weapon
	})
	out := make(map[string]int, n)
	for _, r := range rows[:n] {
		out[r.weapon] = r.count
	}
	return out
}

// Writer serializes documents to a well-known path via temp-file rename.
type Writer struct {
	mu   sync.Mutex
	path string
}

func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

func (w *Writer) Path() string { return w.path }

// Write atomically replaces the snapshot file.
func (w *Writer) Write(doc Document) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	dir := filepath.Dir(w.path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, w.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}
