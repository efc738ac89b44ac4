package host

import (
	"context"
	"reflect"
	"testing"
)

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteFetchAbsentKeys(t *testing.T) {
	s := openTestSQLite(t)

	items, err := s.Fetch(context.Background(), []string{"never", "written"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Fetch of unwritten keys = %v, want empty", items)
	}
}

func TestSQLiteRoundTripKeepsTypes(t *testing.T) {
	s := openTestSQLite(t)

	items := map[string]any{
		"theme":   "dark",
		"retries": 42,
		"ratio":   4.5,
		"empty":   "",
	}
	if err := s.Store(context.Background(), items); err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, err := s.Fetch(context.Background(), []string{"theme", "retries", "ratio", "empty"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !reflect.DeepEqual(got, items) {
		t.Errorf("Fetch = %#v, want %#v", got, items)
	}
}

func TestSQLiteOverwrite(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	if err := s.Store(ctx, map[string]any{"theme": "dark"}); err != nil {
		t.Fatalf("first Store: %v", err)
	}
	// Type may change across writes.
	if err := s.Store(ctx, map[string]any{"theme": 3}); err != nil {
		t.Fatalf("second Store: %v", err)
	}

	got, err := s.Fetch(ctx, []string{"theme"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got["theme"] != 3 {
		t.Errorf("theme = %v (%T), want int 3", got["theme"], got["theme"])
	}
}

func TestSQLiteRejectsUnsupportedType(t *testing.T) {
	s := openTestSQLite(t)
	if err := s.Store(context.Background(), map[string]any{"k": true}); err == nil {
		t.Error("Store(bool) succeeded, want error")
	}
}

func TestSQLiteCommitHooks(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	if err := s.Store(ctx, map[string]any{"theme": "dark"}); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	var gotOld, gotNew map[string]any
	s.OnCommit(func(oldValues, newValues map[string]any) {
		gotOld, gotNew = oldValues, newValues
	})

	if err := s.Store(ctx, map[string]any{"theme": "light", "retries": 3}); err != nil {
		t.Fatalf("Store: %v", err)
	}

	wantOld := map[string]any{"theme": "dark"}
	wantNew := map[string]any{"theme": "light", "retries": 3}
	if !reflect.DeepEqual(gotOld, wantOld) {
		t.Errorf("oldValues = %#v, want %#v", gotOld, wantOld)
	}
	if !reflect.DeepEqual(gotNew, wantNew) {
		t.Errorf("newValues = %#v, want %#v", gotNew, wantNew)
	}
}

func TestSQLitePersistsAcrossOpens(t *testing.T) {
	dir := t.TempDir()

	s1, err := OpenSQLite(dir)
	if err != nil {
		t.Fatalf("first OpenSQLite: %v", err)
	}
	if err := s1.Store(context.Background(), map[string]any{"theme": "dark"}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	s1.Close()

	s2, err := OpenSQLite(dir)
	if err != nil {
		t.Fatalf("second OpenSQLite: %v", err)
	}
	defer s2.Close()

	got, err := s2.Fetch(context.Background(), []string{"theme"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got["theme"] != "dark" {
		t.Errorf("theme = %v, want %q", got["theme"], "dark")
	}
}
