// Package archive is the handoff boundary between the live tracker and
// long-term storage. The tracker calls Save fire-and-forget when a match
// dies; a sink failure is logged and never rolls back in-memory state, and a
// reaped match is never retried.
package archive

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Code-6dof/DXX-Dashboard/internal/events"
	"github.com/Code-6dof/DXX-Dashboard/internal/snapshot"
)

// FinalizedMatch is the live snapshot schema plus end-of-life derivations.
type FinalizedMatch struct {
	snapshot.GameSnapshot

	ArchiveID       string    `json:"archiveId"`
	EndedAt         time.Time `json:"endedAt"`
	DurationSeconds float64   `json:"durationSeconds"`
}

// Sink accepts finalized matches for long-term storage.
type Sink interface {
	Save(ctx context.Context, match FinalizedMatch, evs []events.Event) error
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Finalize derives the archival record from a game snapshot.
func Finalize(g snapshot.GameSnapshot, endedAt time.Time) FinalizedMatch {
	name := strings.Trim(unsafeChars.ReplaceAllString(g.GameName, "_"), "_")
	if name == "" {
		name = "game"
	}
	key := strings.ReplaceAll(g.Key, ":", "-")
	return FinalizedMatch{
		GameSnapshot:    g,
		ArchiveID:       fmt.Sprintf("%s_%s_%s", endedAt.UTC().Format("20060102-150405"), name, key),
		EndedAt:         endedAt,
		DurationSeconds: endedAt.Sub(g.FirstRegistered).Seconds(),
	}
}

// NullSink discards everything; the default for tests and for deployments
// without an archive store.
type NullSink struct{}

func (NullSink) Save(ctx context.Context, match FinalizedMatch, evs []events.Event) error {
	return nil
}
