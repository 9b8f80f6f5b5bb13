package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// ProfileWatcher reloads the profile file when it changes on disk.
type ProfileWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func(Profile)
	debounce time.Duration
	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// NewProfileWatcher creates a watcher for path. onChange receives every
// valid new profile; invalid edits are logged and ignored.
func NewProfileWatcher(path string, onChange func(Profile)) (*ProfileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &ProfileWatcher{
		path:     filepath.Clean(path),
		watcher:  watcher,
		onChange: onChange,
		debounce: 100 * time.Millisecond,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start watches the profile's directory so editors that replace the file
// are picked up too.
func (pw *ProfileWatcher) Start() error {
	dir := filepath.Dir(pw.path)
	if err := pw.watcher.Add(dir); err != nil {
		return err
	}

	go pw.watchForChanges()
	log.Info().Str("path", pw.path).Msg("Started watching sheet profile for changes")
	return nil
}

// Stop stops the watcher. Safe to call more than once.
func (pw *ProfileWatcher) Stop() {
	pw.stopOnce.Do(func() {
		close(pw.stopChan)
		pw.watcher.Close()
	})
}

func (pw *ProfileWatcher) watchForChanges() {
	defer close(pw.done)
	for {
		select {
		case event, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != pw.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// let the writer finish
			time.Sleep(pw.debounce)
			log.Info().Str("event", event.Op.String()).Msg("Detected sheet profile change")
			pw.reload()

		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Profile watcher error")

		case <-pw.stopChan:
			return
		}
	}
}

func (pw *ProfileWatcher) reload() {
	p, err := LoadProfile(pw.path)
	if err != nil {
		log.Warn().Err(err).Str("path", pw.path).Msg("Ignoring invalid sheet profile")
		return
	}
	if pw.onChange != nil {
		pw.onChange(p)
	}
	log.Info().Int("sheets", len(p.Sheets)).Msg("Applied sheet profile changes")
}
