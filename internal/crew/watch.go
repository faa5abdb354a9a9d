package crew

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

const reloadDebounce = 250 * time.Millisecond

// Watcher reloads the crew definition when the YAML files in dir change.
// Invalid files are logged and the running definition is kept.
type Watcher struct {
	dir      string
	crew     *Crew
	fs       afero.Fs
	log      zerolog.Logger
	debounce time.Duration
}

func NewWatcher(dir string, c *Crew, log zerolog.Logger) *Watcher {
	return &Watcher{
		dir:      dir,
		crew:     c,
		fs:       afero.NewOsFs(),
		log:      log.With().Str("component", "crew-watch").Str("dir", dir).Logger(),
		debounce: reloadDebounce,
	}
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("crew watch init: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("crew watch %s: %w", w.dir, err)
	}
	w.log.Info().Msg("watching crew config")

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("crew watch error")
		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(ev.Name))
	return ext == ".yaml" || ext == ".yml"
}

func (w *Watcher) reload() {
	def, err := LoadDefinition(w.fs, w.dir)
	if err != nil {
		w.log.Warn().Err(err).Msg("crew config rejected")
		return
	}
	w.crew.SetDefinition(def)
	w.log.Info().Msg("crew config reloaded")
}
