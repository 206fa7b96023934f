package watcher

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/Code-6dof/DXX-Dashboard/internal/event_manager"
	"github.com/Code-6dof/DXX-Dashboard/internal/gamelog"
)

const (
	gamelogFileName     = "gamelog.txt"
	shrinkCheckInterval = 2 * time.Second
)

// Watcher discovers gamelog files, follows them, and feeds their lines into
// the textual stream manager under the local player's identity.
type Watcher struct {
	clients  *gamelog.ClientManager
	em       *event_manager.EventManager
	identity string
	dirs     []string
	remotes  []string
}

// New builds a watcher. dirs overrides the platform default candidate
// directories when non-empty; entries with an ftp:// or sftp:// scheme are
// treated as remote sources.
func New(clients *gamelog.ClientManager, em *event_manager.EventManager, identity string, dirs []string) *Watcher {
	if identity == "" {
		identity = "local"
	}
	w := &Watcher{clients: clients, em: em, identity: identity}
	for _, d := range dirs {
		if strings.Contains(d, "://") {
			w.remotes = append(w.remotes, d)
		} else {
			w.dirs = append(w.dirs, d)
		}
	}
	if len(w.dirs) == 0 && len(w.remotes) == 0 {
		w.dirs = defaultCandidateDirs()
	}
	return w
}

// defaultCandidateDirs lists where DXX builds drop gamelog.txt.
func defaultCandidateDirs() []string {
	var dirs []string
	home, err := os.UserHomeDir()
	if err == nil {
		if runtime.GOOS == "windows" {
			dirs = append(dirs,
				filepath.Join(home, "d1x-redux"),
				filepath.Join(home, "d2x-redux"),
			)
		} else {
			dirs = append(dirs,
				filepath.Join(home, ".d1x-redux"),
				filepath.Join(home, ".d2x-redux"),
				filepath.Join(home, ".d1x-rebirth"),
				filepath.Join(home, ".d2x-rebirth"),
			)
		}
	}
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}
	return dirs
}

// Run watches until the context ends. It never returns an error for a
// missing gamelog; a player who has not started the game yet is normal.
func (w *Watcher) Run(ctx context.Context) error {
	started := make(map[string]bool)

	for _, dir := range w.dirs {
		path := filepath.Join(dir, gamelogFileName)
		if _, err := os.Stat(path); err == nil {
			started[path] = true
			go w.followLocal(ctx, path)
		}
	}

	for _, raw := range w.remotes {
		source, err := NewSourceFromURL(raw)
		if err != nil {
			log.Error().Err(err).Str("source", raw).Msg("Skipping bad gamelog source")
			continue
		}
		go w.followSource(ctx, raw, source)
	}

	// Watch candidate directories so a gamelog created after startup is
	// picked up without a restart.
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn().Err(err).Msg("Filesystem notifications unavailable")
		<-ctx.Done()
		return nil
	}
	defer fsw.Close()
	for _, dir := range w.dirs {
		if err := fsw.Add(dir); err != nil {
			log.Debug().Err(err).Str("dir", dir).Msg("Cannot watch directory")
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create == 0 || filepath.Base(ev.Name) != gamelogFileName {
				continue
			}
			if !started[ev.Name] {
				started[ev.Name] = true
				log.Info().Str("path", ev.Name).Msg("New gamelog appeared")
				go w.followLocal(ctx, ev.Name)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Debug().Err(err).Msg("Filesystem watch error")
		}
	}
}

// followLocal tails one local gamelog and watches its size: a shrink means
// the game started a new match, which resets the local stream.
func (w *Watcher) followLocal(ctx context.Context, path string) {
	source := NewLocalFileSource(path)
	lines, err := source.Watch(ctx)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to tail gamelog")
		return
	}
	defer source.Close()
	log.Info().Str("path", path).Str("identity", w.identity).Msg("Watching gamelog")

	go w.watchShrink(ctx, path)
	w.feed(ctx, lines)
}

func (w *Watcher) watchShrink(ctx context.Context, path string) {
	var lastSize int64 = -1
	ticker := time.NewTicker(shrinkCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stat, err := os.Stat(path)
			if err != nil {
				continue
			}
			size := stat.Size()
			if lastSize >= 0 && size < lastSize {
				log.Info().Str("path", path).Msg("Gamelog truncated, resetting stream")
				w.clients.Reset(w.identity)
				w.em.Publish(event_manager.EventTypeGamelogReset, map[string]interface{}{
					"identity": w.identity,
					"path":     path,
				})
			}
			lastSize = size
		}
	}
}

func (w *Watcher) followSource(ctx context.Context, name string, source LogSource) {
	lines, err := source.Watch(ctx)
	if err != nil {
		log.Error().Err(err).Str("source", name).Msg("Failed to watch remote gamelog")
		return
	}
	defer source.Close()
	log.Info().Str("source", name).Msg("Watching remote gamelog")
	w.feed(ctx, lines)
}

func (w *Watcher) feed(ctx context.Context, lines <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if line == "" {
				continue
			}
			newEvents, _, err := w.clients.Append(w.identity, line+"\n")
			if err != nil {
				log.Debug().Err(err).Msg("Gamelog line did not parse")
				continue
			}
			if newEvents > 0 {
				w.em.Publish(event_manager.EventTypeGameSummary, map[string]interface{}{
					"identity":  w.identity,
					"newEvents": newEvents,
				})
			}
		}
	}
}
