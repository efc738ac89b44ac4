package host

import (
	"context"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/joho/godotenv"
)

func openTestEnvFile(t *testing.T) *EnvFile {
	t.Helper()
	e, err := OpenEnvFile(t.TempDir())
	if err != nil {
		t.Fatalf("OpenEnvFile failed: %v", err)
	}
	return e
}

func TestEnvFileLookupAbsent(t *testing.T) {
	e := openTestEnvFile(t)

	if v, ok := e.Lookup("never"); ok {
		t.Errorf("Lookup(never) = (%q, true), want absent", v)
	}
}

func TestEnvFileSetAndLookup(t *testing.T) {
	e := openTestEnvFile(t)

	if err := e.SetString("theme", "dark"); err != nil {
		t.Fatalf("SetString: %v", err)
	}
	if err := e.SetString("empty", ""); err != nil {
		t.Fatalf("SetString(empty): %v", err)
	}

	if v, ok := e.Lookup("theme"); !ok || v != "dark" {
		t.Errorf("Lookup(theme) = (%q, %v), want (dark, true)", v, ok)
	}
	// An empty stored value is present, not absent.
	if v, ok := e.Lookup("empty"); !ok || v != "" {
		t.Errorf("Lookup(empty) = (%q, %v), want (\"\", true)", v, ok)
	}
}

func TestEnvFilePersistsAcrossOpens(t *testing.T) {
	dir := t.TempDir()

	e1, err := OpenEnvFile(dir)
	if err != nil {
		t.Fatalf("first OpenEnvFile: %v", err)
	}
	if err := e1.SetString("theme", "dark"); err != nil {
		t.Fatalf("SetString: %v", err)
	}

	e2, err := OpenEnvFile(dir)
	if err != nil {
		t.Fatalf("second OpenEnvFile: %v", err)
	}
	if v, ok := e2.Lookup("theme"); !ok || v != "dark" {
		t.Errorf("Lookup(theme) = (%q, %v), want (dark, true)", v, ok)
	}
}

type eventRec struct {
	mu     sync.Mutex
	events []string
}

func (r *eventRec) record(key, oldValue, newValue string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, key+":"+oldValue+"->"+newValue)
}

func (r *eventRec) sorted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.events...)
	sort.Strings(out)
	return out
}

func TestEnvFileExternalChangeEvents(t *testing.T) {
	e := openTestEnvFile(t)
	if err := e.SetString("theme", "dark"); err != nil {
		t.Fatalf("SetString: %v", err)
	}
	if err := e.SetString("stale", "old"); err != nil {
		t.Fatalf("SetString: %v", err)
	}

	rec := &eventRec{}
	e.OnEvent(rec.record)

	// Simulate another process rewriting the file: theme changed, lang
	// added, stale removed.
	if err := godotenv.Write(map[string]string{
		"theme": "light",
		"lang":  "en",
	}, e.Path()); err != nil {
		t.Fatalf("external write: %v", err)
	}
	e.refresh()

	want := []string{
		"lang:->en",
		"stale:old->",
		"theme:dark->light",
	}
	got := rec.sorted()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEnvFileWatchExternalRewrite(t *testing.T) {
	e := openTestEnvFile(t)
	if err := e.SetString("theme", "dark"); err != nil {
		t.Fatalf("SetString: %v", err)
	}

	events := make(chan string, 8)
	e.OnEvent(func(key, oldValue, newValue string) {
		events <- key + ":" + oldValue + "->" + newValue
	})

	ctx, cancel := context.WithCancel(context.Background())
	watchDone := make(chan error, 1)
	go func() { watchDone <- e.Watch(ctx) }()

	// Give the watcher time to attach before the external write.
	time.Sleep(100 * time.Millisecond)

	if err := godotenv.Write(map[string]string{"theme": "light"}, e.Path()); err != nil {
		t.Fatalf("external write: %v", err)
	}

	select {
	case got := <-events:
		if got != "theme:dark->light" {
			t.Errorf("event = %q, want %q", got, "theme:dark->light")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher delivered no event")
	}

	cancel()
	if err := <-watchDone; err != nil {
		t.Errorf("Watch returned %v, want nil after cancel", err)
	}
}

func TestEnvFileTruncateThenRewrite(t *testing.T) {
	e := openTestEnvFile(t)
	if err := e.SetString("theme", "dark"); err != nil {
		t.Fatalf("SetString: %v", err)
	}

	rec := &eventRec{}
	e.OnEvent(rec.record)

	// An in-place rewrite shows up as a truncation first. The diff must
	// wait for the finished file instead of reporting a removal.
	if err := os.WriteFile(e.Path(), nil, 0o644); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.refresh()
	}()

	time.Sleep(2 * time.Millisecond)
	if err := godotenv.Write(map[string]string{"theme": "light"}, e.Path()); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	<-done

	got := rec.sorted()
	want := []string{"theme:dark->light"}
	if len(got) != len(want) || got[0] != want[0] {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestEnvFileSelfWritesDoNotEcho(t *testing.T) {
	e := openTestEnvFile(t)

	rec := &eventRec{}
	e.OnEvent(rec.record)

	if err := e.SetString("theme", "dark"); err != nil {
		t.Fatalf("SetString: %v", err)
	}
	// The watcher would fire after our own write; the snapshot is already
	// current, so the diff is clean.
	e.refresh()

	if got := rec.sorted(); len(got) != 0 {
		t.Errorf("self-write produced events %v, want none", got)
	}
}
