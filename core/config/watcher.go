package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Watcher is the live configuration store: get/set access to opaque settings
// values plus change notifications keyed by (section, key). Changes arrive
// from programmatic Set calls and from edits to the .env file.
type Watcher struct {
	v       *viper.Viper
	envPath string

	mu   sync.Mutex
	subs map[string]map[int]func(value any)
	next int

	fsw  *fsnotify.Watcher
	done chan struct{}
}

func newWatcher(v *viper.Viper, envPath string) *Watcher {
	return &Watcher{
		v:       v,
		envPath: envPath,
		subs:    make(map[string]map[int]func(value any)),
	}
}

// Get returns the current value for section.key.
func (w *Watcher) Get(section, key string) any {
	return w.v.Get(section + "." + key)
}

// Set stores a value for section.key and notifies subscribers.
func (w *Watcher) Set(section, key string, value any) {
	full := section + "." + key
	old := w.v.Get(full)
	w.v.Set(full, value)
	if fmt.Sprintf("%v", old) != fmt.Sprintf("%v", value) {
		w.notify(full, value)
	}
}

// OnChange registers a callback for changes to section.key. The returned
// function removes the registration.
func (w *Watcher) OnChange(section, key string, fn func(value any)) func() {
	full := section + "." + key
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.subs[full] == nil {
		w.subs[full] = make(map[int]func(value any))
	}
	id := w.next
	w.next++
	w.subs[full][id] = fn

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.subs[full], id)
	}
}

// Start begins watching the .env file for external edits. Safe to skip when
// no .env file is used.
func (w *Watcher) Start(logger *zap.Logger) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	if err := fsw.Add(w.envPath); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", w.envPath, err)
	}

	w.fsw = fsw
	w.done = make(chan struct{})

	go func() {
		for {
			select {
			case <-w.done:
				return
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := w.reload(); err != nil {
					logger.Warn("Config reload failed", zap.Error(err))
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				logger.Warn("Config watcher error", zap.Error(err))
			}
		}
	}()

	return nil
}

// Close stops the file watcher.
func (w *Watcher) Close() {
	if w.fsw != nil {
		close(w.done)
		w.fsw.Close()
		w.fsw = nil
	}
}

// reload re-reads the .env file and applies changed values through Set, so
// subscribers observe external edits exactly like programmatic ones.
func (w *Watcher) reload() error {
	values, err := godotenv.Read(w.envPath)
	if err != nil {
		return err
	}
	// Env names are ambiguous to reverse (keys may themselves contain
	// underscores), so map forward from each registered key instead.
	for _, full := range w.v.AllKeys() {
		envKey := strings.ToUpper(strings.ReplaceAll(full, ".", "_"))
		value, present := values[envKey]
		if !present {
			continue
		}
		if fmt.Sprintf("%v", w.v.Get(full)) != value {
			w.v.Set(full, value)
			w.notify(full, value)
		}
	}
	return nil
}

func (w *Watcher) notify(full string, value any) {
	w.mu.Lock()
	callbacks := make([]func(any), 0, len(w.subs[full]))
	for _, fn := range w.subs[full] {
		callbacks = append(callbacks, fn)
	}
	w.mu.Unlock()

	for _, fn := range callbacks {
		fn(value)
	}
}
