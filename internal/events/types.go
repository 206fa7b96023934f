// Package events holds the per-match event model: typed kill/chat/timeline
// entries and the bounded ring buffers they accumulate in.
package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind tags an event variant.
type Kind string

const (
	KindKill         Kind = "kill"
	KindChat         Kind = "chat"
	KindDeath        Kind = "death"
	KindQuit         Kind = "quit"
	KindReactor      Kind = "reactor_destroyed"
	KindEscape       Kind = "escape"
	KindJoin         Kind = "join"
	KindFlagCaptured Kind = "flag_captured"
	KindKillGoal     Kind = "kill_goal"
)

// Event is one observed in-game occurrence. Slot indices are -1 when the
// source carries names instead of slots (textual gamelogs).
type Event struct {
	ID             uuid.UUID `json:"id"`
	Kind           Kind      `json:"kind"`
	GameTimeMicros uint64    `json:"gameTimeMicros,omitempty"`
	ReceivedAt     time.Time `json:"receivedAt"`
	KillerSlot     int       `json:"killerSlot"`
	VictimSlot     int       `json:"victimSlot"`
	Killer         string    `json:"killer,omitempty"`
	Victim         string    `json:"victim,omitempty"`
	Sender         string    `json:"sender,omitempty"`
	Weapon         string    `json:"weapon,omitempty"`
	Text           string    `json:"text,omitempty"`
	IsObserver     bool      `json:"isObserver,omitempty"`
	Source         string    `json:"source,omitempty"`
}

// New returns an event with identity fields filled and slots cleared.
func New(kind Kind) Event {
	return Event{
		ID:         uuid.New(),
		Kind:       kind,
		ReceivedAt: time.Now(),
		KillerSlot: -1,
		VictimSlot: -1,
	}
}

// Suicide reports whether a kill event is a self-kill.
func (e Event) Suicide() bool {
	if e.Kind != KindKill {
		return false
	}
	if e.KillerSlot >= 0 && e.KillerSlot == e.VictimSlot {
		return true
	}
	return e.Killer != "" && strings.EqualFold(e.Killer, e.Victim)
}

// MergeKey identifies an event for cross-source deduplication. Two sources
// that observed the same occurrence produce the same key.
func (e Event) MergeKey() string {
	return fmt.Sprintf("%d|%s|%s|%s|%s",
		e.GameTimeMicros, e.Kind,
		strings.ToLower(e.Killer), strings.ToLower(e.Victim), strings.ToLower(e.Sender))
}

// TimelessKey is MergeKey without the game-time component, used to collapse
// textual events that carry no timestamp against timed UDP events.
func (e Event) TimelessKey() string {
	return fmt.Sprintf("%s|%s|%s|%s",
		e.Kind, strings.ToLower(e.Killer), strings.ToLower(e.Victim), strings.ToLower(e.Sender))
}
