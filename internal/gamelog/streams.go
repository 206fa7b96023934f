package gamelog

import (
	"strings"
	"sync"
	"time"

	"github.com/Code-6dof/DXX-Dashboard/internal/events"
)

// ClientStream is one uploader's textual-stream record: the bound identity,
// the events parsed so far, and the raw tail awaiting its newline.
type ClientStream struct {
	PlayerName string         `json:"playerName"`
	Identity   string         `json:"identity"`
	Events     []events.Event `json:"events"`
	RawTail    string         `json:"-"`
	LastUpdate time.Time      `json:"lastUpdate"`
}

// ClientManager tracks the textual streams of all uploading players plus the
// local gamelog watcher.
type ClientManager struct {
	mu      sync.RWMutex
	streams map[string]*ClientStream
	metrics *Metrics
}

func NewClientManager() *ClientManager {
	return &ClientManager{
		streams: make(map[string]*ClientStream),
		metrics: NewMetrics(),
	}
}

// Metrics exposes the parsing throughput counters.
func (m *ClientManager) Metrics() *Metrics {
	return m.metrics
}

func countLines(s string) int {
	return strings.Count(s, "\n")
}

// splitComplete cuts content at its last newline; the remainder is carried
// as the stream's raw tail until more bytes arrive.
func splitComplete(content string) (complete, tail string) {
	idx := strings.LastIndexByte(content, '\n')
	if idx < 0 {
		return "", content
	}
	return content[:idx+1], content[idx+1:]
}

// Replace swaps a player's stream for a freshly parsed one. Nothing is
// committed when parsing fails.
func (m *ClientManager) Replace(player, content string) (int, error) {
	complete, tail := splitComplete(content)
	res, err := Parse([]byte(complete), player)
	if err != nil {
		return 0, err
	}
	for i := range res.Events {
		res.Events[i].Source = "upload:" + player
	}
	m.metrics.Record(countLines(complete), len(res.Events))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams[player] = &ClientStream{
		PlayerName: player,
		Identity:   res.Identity,
		Events:     res.Events,
		RawTail:    tail,
		LastUpdate: time.Now(),
	}
	return len(res.Events), nil
}

// Append parses the tail carried from the previous upload plus the new
// chunk and appends the resulting events. Returns new and total event
// counts.
func (m *ClientManager) Append(player, content string) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stream, ok := m.streams[player]
	if !ok {
		stream = &ClientStream{PlayerName: player, Identity: player}
		m.streams[player] = stream
	}

	complete, tail := splitComplete(stream.RawTail + content)
	res, err := Parse([]byte(complete), player)
	if err != nil {
		return 0, 0, err
	}
	for i := range res.Events {
		res.Events[i].Source = "upload:" + player
	}
	m.metrics.Record(countLines(complete), len(res.Events))

	stream.Events = append(stream.Events, res.Events...)
	stream.RawTail = tail
	stream.LastUpdate = time.Now()
	return len(res.Events), len(stream.Events), nil
}

// Reset clears a player's events, keeping the stream registered. The local
// watcher calls this when it sees the gamelog shrink.
func (m *ClientManager) Reset(player string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stream, ok := m.streams[player]; ok {
		stream.Events = nil
		stream.RawTail = ""
		stream.LastUpdate = time.Now()
	}
}

// Streams returns copies of all registered streams.
func (m *ClientManager) Streams() []ClientStream {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ClientStream, 0, len(m.streams))
	for _, s := range m.streams {
		cp := *s
		cp.Events = append([]events.Event(nil), s.Events...)
		out = append(out, cp)
	}
	return out
}

// Count returns the number of registered streams.
func (m *ClientManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.streams)
}
