package archive

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/samber/oops"

	"github.com/Code-6dof/DXX-Dashboard/internal/events"
)

// LocalSink writes one JSON document per finalized match under a base
// directory.
type LocalSink struct {
	basePath string
}

func NewLocalSink(basePath string) (*LocalSink, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, oops.Wrapf(err, "failed to create archive directory")
	}
	return &LocalSink{basePath: basePath}, nil
}

type archivedDocument struct {
	Match  FinalizedMatch `json:"match"`
	Events []events.Event `json:"events"`
}

func (s *LocalSink) Save(ctx context.Context, match FinalizedMatch, evs []events.Event) error {
	data, err := json.MarshalIndent(archivedDocument{Match: match, Events: evs}, "", "  ")
	if err != nil {
		return oops.Wrapf(err, "failed to marshal archived match")
	}
	path := filepath.Join(s.basePath, match.ArchiveID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return oops.Wrapf(err, "failed to write archived match")
	}
	return nil
}
