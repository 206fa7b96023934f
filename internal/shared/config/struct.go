package config

import "strings"

type Struct struct {
	Tracker struct {
		UdpPort     int    `default:"9999"`
		HttpPort    int    `default:"9998"`
		WsPort      int    `default:"8081"`
		LocalPlayer string `default:""`
		GamelogDirs string `default:""` // comma separated, overrides platform defaults
	}
	Archive struct {
		Type      string `default:"local"` // "local", "s3" or "none"
		LocalPath string `default:"archive"`
		S3        struct {
			Region          string `default:"us-east-1"`
			Bucket          string `default:""`
			AccessKeyID     string `default:""`
			SecretAccessKey string `default:""`
			Endpoint        string `default:""` // for S3-compatible services (MinIO, etc.)
			UseSSL          bool   `default:"true"`
		}
	}
	Snapshot struct {
		Path string `default:"tracker_data.json"`
	}
	Discord struct {
		Token     string `default:""`
		ChannelID string `default:""`
	}
	Log struct {
		Level string `default:"info"`
		File  string `default:""`
	}
	Debug struct {
		Pretty  bool `default:"true"`
		NoColor bool `default:"false"`
	}
}

// GamelogDirList splits the configured gamelog directory override into
// individual paths, dropping empty entries.
func (s *Struct) GamelogDirList() []string {
	var dirs []string
	for _, d := range strings.Split(s.Tracker.GamelogDirs, ",") {
		d = strings.TrimSpace(d)
		if d != "" {
			dirs = append(dirs, d)
		}
	}
	return dirs
}
