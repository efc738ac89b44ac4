package host

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
)

// EnvFile is the string-only fallback store: a dotenv file plus an
// in-memory snapshot. External writers are observed through a file
// watcher and surfaced via OnEvent; this process's own writes update the
// snapshot first and therefore never echo back through events, matching
// same-origin storage-event semantics.
type EnvFile struct {
	path string

	mu       sync.Mutex
	snapshot map[string]string
	handlers []func(key, oldValue, newValue string)
}

// OpenEnvFile loads (or initializes) the dotenv file at
// dataDir/settings.env.
func OpenEnvFile(dataDir string) (*EnvFile, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	path := filepath.Join(dataDir, "settings.env")
	snapshot, err := readEnvFile(path)
	if err != nil {
		return nil, err
	}
	return &EnvFile{path: path, snapshot: snapshot}, nil
}

func readEnvFile(path string) (map[string]string, error) {
	vals, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return vals, nil
}

// Path returns the location of the backing file.
func (e *EnvFile) Path() string {
	return e.path
}

// Lookup returns the raw stored string for key. The boolean
// distinguishes an empty stored value from an absent one.
func (e *EnvFile) Lookup(key string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.snapshot[key]
	return v, ok
}

// SetString writes one key. The whole file is rewritten; dotenv files
// have no in-place update.
func (e *EnvFile) SetString(key, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := make(map[string]string, len(e.snapshot)+1)
	for k, v := range e.snapshot {
		next[k] = v
	}
	next[key] = value
	if err := godotenv.Write(next, e.path); err != nil {
		return fmt.Errorf("writing %s: %w", e.path, err)
	}
	e.snapshot = next
	return nil
}

// OnEvent registers fn for changes made by other processes. An empty
// oldValue or newValue marks that side as absent.
func (e *EnvFile) OnEvent(fn func(key, oldValue, newValue string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, fn)
}

// Watch observes the backing file until ctx is cancelled, emitting one
// event per key an external writer added, changed, or removed. The
// parent directory is watched rather than the file itself so atomic
// replace-style writes are picked up.
func (e *EnvFile) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(e.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != e.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
				!ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			e.refresh()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watching %s: %w", e.path, err)
		}
	}
}

// truncationSettle is how long refresh waits before re-reading a file it
// observed as suddenly empty. Writers that truncate in place before
// writing (godotenv.Write does) expose an empty file mid-rewrite.
const truncationSettle = 10 * time.Millisecond

// refresh re-reads the file, swaps the snapshot, and emits one event per
// key that differs. A snapshot already updated by a local write diffs
// clean, so self-writes stay silent.
func (e *EnvFile) refresh() {
	current, err := readEnvFile(e.path)
	if err != nil {
		// Mid-rewrite reads can fail transiently; the next event retries.
		return
	}

	// A full-to-empty transition is far more likely a half-finished
	// in-place rewrite than a writer clearing every key. Settle and
	// re-read so the diff sees the finished file instead of reporting
	// phantom removals.
	e.mu.Lock()
	wasPopulated := len(e.snapshot) > 0
	e.mu.Unlock()
	if len(current) == 0 && wasPopulated {
		time.Sleep(truncationSettle)
		current, err = readEnvFile(e.path)
		if err != nil {
			return
		}
	}

	e.mu.Lock()
	prev := e.snapshot
	e.snapshot = current
	handlers := slices.Clone(e.handlers)
	e.mu.Unlock()

	type event struct{ key, old, new string }
	var events []event
	for k, v := range current {
		if old, ok := prev[k]; !ok {
			events = append(events, event{k, "", v})
		} else if old != v {
			events = append(events, event{k, old, v})
		}
	}
	for k, v := range prev {
		if _, ok := current[k]; !ok {
			events = append(events, event{k, v, ""})
		}
	}

	for _, ev := range events {
		for _, fn := range handlers {
			fn(ev.key, ev.old, ev.new)
		}
	}
}
