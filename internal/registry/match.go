package registry

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/Code-6dof/DXX-Dashboard/internal/protocol"
)

// Key identifies one live match by host IP and announced game port.
type Key struct {
	IP   string
	Port uint16
}

func (k Key) String() string {
	return net.JoinHostPort(k.IP, strconv.Itoa(int(k.Port)))
}

// ParseKey parses "ip:port" back into a Key.
func ParseKey(s string) (Key, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Key{}, fmt.Errorf("invalid match key %q: %w", s, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Key{}, fmt.Errorf("invalid match key %q: %w", s, err)
	}
	return Key{IP: host, Port: uint16(port)}, nil
}

// Status is the lifecycle classification of a match record. Transitions are
// one-way: pending -> confirmed -> dead.
type Status int

const (
	StatusPending Status = iota
	StatusConfirmed
	StatusDead
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	case StatusDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Match is everything the tracker knows about one live match. Matches are
// stored and handed out by value; the address SourceAddr points to is never
// mutated, though a same-game-id refresh replaces the pointer with the
// newest REGISTER source.
type Match struct {
	Key    Key
	GameID uint32

	Version             uint8 // 1=D1, 2=D2
	Major, Minor, Micro uint16
	NetgameProto        uint16 // learned from version-deny, 0 until then

	// SourceAddr is where the REGISTER came from; its port may differ from
	// the game port and is where register-ACKs go.
	SourceAddr *net.UDPAddr

	FirstRegistered time.Time
	LastSeen        time.Time
	CreatedAt       time.Time

	Status  Status
	AckSent bool

	HasLite bool
	Lite    protocol.LiteInfo

	HasFull bool
	Full    protocol.FullInfo
}

// GameName prefers the lite-info name; full info is the fallback.
func (m *Match) GameName() string {
	if m.HasLite && m.Lite.GameName != "" {
		return m.Lite.GameName
	}
	if m.HasFull {
		return m.Full.GameName
	}
	return ""
}

// PlayerCount prefers full-info numbers over lite numbers.
func (m *Match) PlayerCount() int {
	if m.HasFull {
		return int(m.Full.PlayerCount)
	}
	if m.HasLite {
		return int(m.Lite.PlayerCount)
	}
	return 0
}

// MaxPlayers prefers full-info numbers over lite numbers.
func (m *Match) MaxPlayers() int {
	if m.HasFull {
		return int(m.Full.MaxPlayers)
	}
	if m.HasLite {
		return int(m.Lite.MaxPlayers)
	}
	return 0
}

// Mode returns the netgame mode enum, preferring full info.
func (m *Match) Mode() uint8 {
	if m.HasFull {
		return m.Full.Mode
	}
	if m.HasLite {
		return m.Lite.Mode
	}
	return 0
}

// SlotNames returns display names for the 8 real player slots. Duplicate
// callsigns get " (1)", " (2)" suffixes in slot order; empty slots get
// empty names.
func (m *Match) SlotNames() [8]string {
	var names [8]string
	if !m.HasFull {
		return names
	}
	counts := make(map[string]int)
	for i := 0; i < 8; i++ {
		slot := m.Full.Slots[i]
		if !slot.Present() {
			continue
		}
		lower := strings.ToLower(slot.Callsign)
		counts[lower]++
		if n := counts[lower]; n > 1 {
			names[i] = fmt.Sprintf("%s (%d)", slot.Callsign, n-1)
		} else {
			names[i] = slot.Callsign
		}
	}
	return names
}

// SlotName returns the display name for a slot, falling back to a numbered
// placeholder when the slot has no name (player table unknown or slot
// empty).
func (m *Match) SlotName(slot int) string {
	if slot < 0 || slot >= 8 {
		return ""
	}
	if name := m.SlotNames()[slot]; name != "" {
		return name
	}
	return fmt.Sprintf("Player %d", slot+1)
}
