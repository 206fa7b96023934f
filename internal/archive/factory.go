package archive

import (
	"fmt"

	"github.com/Code-6dof/DXX-Dashboard/internal/shared/config"
)

// NewSink creates an archive sink based on configuration.
func NewSink(cfg *config.Struct) (Sink, error) {
	switch cfg.Archive.Type {
	case "local":
		basePath := cfg.Archive.LocalPath
		if basePath == "" {
			basePath = "archive"
		}
		return NewLocalSink(basePath)
	case "s3":
		return NewS3Sink(cfg)
	case "none":
		return NullSink{}, nil
	default:
		return nil, fmt.Errorf("unsupported archive type: %s (supported: local, s3, none)", cfg.Archive.Type)
	}
}
