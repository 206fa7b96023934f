// Package aggregator merges the three evidence sources for a match — UDP
// full-info stats, UDP-observed events, and textual gamelog streams — into a
// single consolidated view. Merge rules are deterministic: values only ever
// ratchet up, and duplicated observations collapse to one event.
package aggregator

import (
	"sort"
	"strings"

	"github.com/Code-6dof/DXX-Dashboard/internal/events"
	"github.com/Code-6dof/DXX-Dashboard/internal/gamelog"
	"github.com/Code-6dof/DXX-Dashboard/internal/registry"
)

// PlayerView is one scoreboard row of the merged view.
type PlayerView struct {
	Slot      int    `json:"slot"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	Kills     int    `json:"kills"`
	Deaths    int    `json:"deaths"`
	Suicides  int    `json:"suicides"`
	Score     int    `json:"score"`
}

// MergedView is the consolidated per-match state handed to the read-out
// surfaces.
type MergedView struct {
	Players        []PlayerView              `json:"players"`
	KillMatrix     map[string]map[string]int `json:"killMatrix"`
	KillFeed       []events.Event            `json:"killFeed"`
	Chat           []events.Event            `json:"chat"`
	Timeline       []events.Event            `json:"timeline"`
	DamageByWeapon map[string]int            `json:"damageByWeapon"`
	LastKill       *events.Event             `json:"lastKill,omitempty"`
	TotalKills     int                       `json:"totalKills"`
	TotalChats     int                       `json:"totalChats"`
}

// mergeTimeline unions event slices, collapsing duplicates. An event without
// a game time collapses onto a timed event describing the same occurrence,
// which is how an uploader's textual kill matches the host's UDP kill.
// Earlier slices win ties, so UDP evidence should come first.
func mergeTimeline(sources ...[]events.Event) []events.Event {
	var merged []events.Event
	exact := make(map[string]struct{})
	timeless := make(map[string]struct{})

	for _, src := range sources {
		for _, e := range src {
			key := e.MergeKey()
			if _, dup := exact[key]; dup {
				continue
			}
			if e.GameTimeMicros == 0 {
				if _, dup := timeless[e.TimelessKey()]; dup {
					continue
				}
			}
			exact[key] = struct{}{}
			timeless[e.TimelessKey()] = struct{}{}
			merged = append(merged, e)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].GameTimeMicros != merged[j].GameTimeMicros {
			return merged[i].GameTimeMicros < merged[j].GameTimeMicros
		}
		return merged[i].ReceivedAt.Before(merged[j].ReceivedAt)
	})
	return merged
}

// Merge builds the consolidated view for one match.
func Merge(m registry.Match, store *events.Store, streams []gamelog.ClientStream) *MergedView {
	sources := make([][]events.Event, 0, len(streams)+1)
	if store != nil {
		sources = append(sources, store.Timeline())
	}
	for _, s := range streams {
		sources = append(sources, s.Events)
	}
	timeline := mergeTimeline(sources...)

	view := &MergedView{
		Timeline:       timeline,
		DamageByWeapon: make(map[string]int),
	}

	// Per-slot tallies from the merged event stream.
	var kills, deaths, suicides [8]int
	names := m.SlotNames()
	slotByName := make(map[string]int, 8)
	for i, name := range names {
		if name != "" {
			slotByName[strings.ToLower(name)] = i
		}
	}
	resolve := func(slot int, name string) int {
		if slot >= 0 && slot < 8 {
			return slot
		}
		if i, ok := slotByName[strings.ToLower(name)]; ok {
			return i
		}
		return -1
	}

	eventMatrix := make(map[string]map[string]int)
	for _, e := range timeline {
		switch e.Kind {
		case events.KindKill:
			view.KillFeed = append(view.KillFeed, e)
			last := e
			view.LastKill = &last
			if e.Weapon != "" {
				view.DamageByWeapon[e.Weapon]++
			}
			if e.Suicide() {
				if i := resolve(e.VictimSlot, e.Victim); i >= 0 {
					suicides[i]++
					deaths[i]++
				}
				continue
			}
			view.TotalKills++
			if i := resolve(e.KillerSlot, e.Killer); i >= 0 {
				kills[i]++
			}
			if i := resolve(e.VictimSlot, e.Victim); i >= 0 {
				deaths[i]++
			}
			if e.Killer != "" && e.Victim != "" {
				row, ok := eventMatrix[e.Killer]
				if !ok {
					row = make(map[string]int)
					eventMatrix[e.Killer] = row
				}
				row[e.Victim]++
			}
		case events.KindChat:
			view.Chat = append(view.Chat, e)
			view.TotalChats++
		case events.KindDeath:
			if i := resolve(e.VictimSlot, e.Victim); i >= 0 {
				deaths[i]++
			}
		}
	}

	// Scoreboard: authoritative full-info numbers when present, never
	// regressing below what the event stream already proved.
	hasStats := m.HasFull && m.Full.HasStats
	for i := 0; i < 8; i++ {
		name := names[i]
		present := name != ""
		if !present && kills[i] == 0 && deaths[i] == 0 && suicides[i] == 0 {
			continue
		}
		if !present {
			name = m.SlotName(i)
		}
		p := PlayerView{
			Slot:     i,
			Name:     name,
			Kills:    kills[i],
			Deaths:   deaths[i],
			Suicides: suicides[i],
		}
		if m.HasFull {
			p.Connected = m.Full.Slots[i].Connected
		}
		if hasStats {
			if full := int(m.Full.TotalKills[i]); full > p.Kills {
				p.Kills = full
			}
			if full := int(m.Full.TotalDeaths[i]); full > p.Deaths {
				p.Deaths = full
			}
			p.Score = int(m.Full.Scores[i])
		}
		view.Players = append(view.Players, p)
	}

	// Kill matrix: full-info matrix verbatim when available, otherwise
	// derived from the kill events.
	if hasStats {
		view.KillMatrix = matrixByName(m)
	} else {
		view.KillMatrix = eventMatrix
	}

	return view
}

// Digest merges textual streams alone; it backs the snapshot file's
// top-level gamelog digest where no match record applies.
func Digest(streams []gamelog.ClientStream) *MergedView {
	return Merge(registry.Match{}, nil, streams)
}

func matrixByName(m registry.Match) map[string]map[string]int {
	out := make(map[string]map[string]int)
	names := m.SlotNames()
	for row := 0; row < 8; row++ {
		if names[row] == "" {
			continue
		}
		for col := 0; col < 8; col++ {
			if names[col] == "" {
				continue
			}
			n := int(m.Full.KillMatrix[row][col])
			if n == 0 {
				continue
			}
			r, ok := out[names[row]]
			if !ok {
				r = make(map[string]int)
				out[names[row]] = r
			}
			r[names[col]] = n
		}
	}
	return out
}
