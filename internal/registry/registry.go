// Package registry is the single source of truth for which matches are
// alive and what is currently known about each. All mutation goes through
// one read-write lock; callers get value copies and never perform I/O while
// the registry is locked.
package registry

import (
	"net"
	"sync"
	"time"

	"github.com/Code-6dof/DXX-Dashboard/internal/protocol"
)

// InactivityThreshold is how long a record may go unseen before reaping.
const InactivityThreshold = 5 * time.Minute

type Registry struct {
	mu    sync.RWMutex
	byKey map[Key]*Match
}

func New() *Registry {
	return &Registry{byKey: make(map[Key]*Match)}
}

// UpsertOnRegister ensures a record exists for the announced match key.
// A changed game-id under the same key drops the predecessor before the new
// record is created; the dropped match is returned so the caller can discard
// its event store. A re-registration with the same game-id is a refresh.
func (r *Registry) UpsertOnRegister(src *net.UDPAddr, reg protocol.Register) (m Match, created bool, dropped *Match) {
	key := Key{IP: src.IP.String(), Port: reg.GamePort}
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byKey[key]; ok {
		if existing.GameID == reg.GameID {
			existing.LastSeen = now
			existing.SourceAddr = src
			return *existing, false, nil
		}
		old := *existing
		old.Status = StatusDead
		delete(r.byKey, key)
		dropped = &old
	}

	rec := &Match{
		Key:             key,
		GameID:          reg.GameID,
		Version:         reg.Version,
		Major:           reg.Major,
		Minor:           reg.Minor,
		Micro:           reg.Micro,
		SourceAddr:      src,
		FirstRegistered: now,
		LastSeen:        now,
		CreatedAt:       now,
		Status:          StatusPending,
	}
	r.byKey[key] = rec
	return *rec, true, dropped
}

// ApplyLite updates lite fields. The first successful apply promotes the
// record to confirmed; confirmedNow tells the caller to fire the
// register-ACK triplet. A lite whose game-id does not match the record is
// dropped (ok=false).
func (r *Registry) ApplyLite(key Key, lite protocol.LiteInfo) (m Match, confirmedNow, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.byKey[key]
	if !exists {
		return Match{}, false, false
	}
	if lite.GameID != rec.GameID {
		return Match{}, false, false
	}

	rec.HasLite = true
	rec.Lite = lite
	rec.LastSeen = time.Now()
	if rec.Status == StatusPending {
		rec.Status = StatusConfirmed
		if !rec.AckSent {
			rec.AckSent = true
			confirmedNow = true
		}
	}
	return *rec, confirmedNow, true
}

// ApplyFull updates the player table and kill matrix. Full-info numbers are
// preferred over lite numbers by the read accessors. Like ApplyLite it
// promotes a pending record.
func (r *Registry) ApplyFull(key Key, full protocol.FullInfo) (m Match, confirmedNow, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.byKey[key]
	if !exists {
		return Match{}, false, false
	}

	rec.HasFull = true
	rec.Full = full
	rec.LastSeen = time.Now()
	if rec.Status == StatusPending {
		rec.Status = StatusConfirmed
		if !rec.AckSent {
			rec.AckSent = true
			confirmedNow = true
		}
	}
	return *rec, confirmedNow, true
}

// ApplyVersionDeny learns the netgame protocol for every record on the
// source IP whose protocol is still unknown. Returns how many records were
// updated.
func (r *Registry) ApplyVersionDeny(ip string, proto uint16) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	updated := 0
	for _, rec := range r.byKey {
		if rec.Key.IP == ip && rec.NetgameProto == 0 {
			rec.NetgameProto = proto
			updated++
		}
	}
	return updated
}

// RemoveByGameID removes the record matching IP and game-id. The source
// port of an UNREGISTER is ephemeral, so only the IP is compared.
func (r *Registry) RemoveByGameID(ip string, gameID uint32) *Match {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, rec := range r.byKey {
		if rec.Key.IP == ip && rec.GameID == gameID {
			old := *rec
			old.Status = StatusDead
			delete(r.byKey, key)
			return &old
		}
	}
	return nil
}

// ReapExpired removes and returns every record whose last-seen age exceeds
// the inactivity threshold at the given instant.
func (r *Registry) ReapExpired(now time.Time) []Match {
	r.mu.Lock()
	defer r.mu.Unlock()

	var reaped []Match
	for key, rec := range r.byKey {
		if now.Sub(rec.LastSeen) > InactivityThreshold {
			old := *rec
			old.Status = StatusDead
			delete(r.byKey, key)
			reaped = append(reaped, old)
		}
	}
	return reaped
}

// Find returns a copy of the record for a match key.
func (r *Registry) Find(key Key) (Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byKey[key]
	if !ok {
		return Match{}, false
	}
	return *rec, true
}

// FindByAddr correlates a packet source to a record: exact IP:port first,
// then IP alone, because game-info responses and gamelog packets may leave
// from an ephemeral port. With several records on one IP the most recently
// seen wins.
// TODO: two concurrent matches behind one NAT IP can still mis-attribute
// packets that correlate by IP alone.
func (r *Registry) FindByAddr(ip string, port uint16) (Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if rec, ok := r.byKey[Key{IP: ip, Port: port}]; ok {
		return *rec, true
	}
	var best *Match
	for _, rec := range r.byKey {
		if rec.Key.IP != ip {
			continue
		}
		if best == nil || rec.LastSeen.After(best.LastSeen) {
			best = rec
		}
	}
	if best == nil {
		return Match{}, false
	}
	return *best, true
}

// Touch bumps a record's last-seen time.
func (r *Registry) Touch(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.byKey[key]; ok {
		rec.LastSeen = time.Now()
	}
}

// All returns copies of every record.
func (r *Registry) All() []Match {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Match, 0, len(r.byKey))
	for _, rec := range r.byKey {
		out = append(out, *rec)
	}
	return out
}

// Confirmed returns copies of every confirmed record, optionally filtered
// by DXX major version (0 matches both).
func (r *Registry) Confirmed(version uint8) []Match {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Match, 0, len(r.byKey))
	for _, rec := range r.byKey {
		if rec.Status != StatusConfirmed {
			continue
		}
		if version != 0 && rec.Version != version {
			continue
		}
		out = append(out, *rec)
	}
	return out
}

// Count returns the number of live records.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}
