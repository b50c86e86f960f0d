package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestService_Changed(t *testing.T) {
	dir := t.TempDir()
	catalog := filepath.Join(dir, "sources.yaml")
	if err := os.WriteFile(catalog, []byte("sources: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewService(catalog)

	// 1. Baseline: nothing changed yet.
	if got := s.Changed(); len(got) != 0 {
		t.Errorf("initial Changed() reported %v", got)
	}

	// 2. Touch the file with a future mtime so the change is visible
	// regardless of filesystem timestamp resolution.
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(catalog, future, future); err != nil {
		t.Fatal(err)
	}

	got := s.Changed()
	if len(got) != 1 || got[0] != catalog {
		t.Fatalf("Changed() = %v, want [%s]", got, catalog)
	}

	// 3. Repeated check stays quiet.
	if got := s.Changed(); len(got) != 0 {
		t.Errorf("repeat Changed() reported %v", got)
	}
}

func TestService_LateCreatedFile(t *testing.T) {
	dir := t.TempDir()
	catalog := filepath.Join(dir, "sources.yaml")

	s := NewService(catalog)

	// Missing file stays quiet.
	if got := s.Changed(); len(got) != 0 {
		t.Errorf("Changed() on missing file reported %v", got)
	}

	if err := os.WriteFile(catalog, []byte("sources: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := s.Changed()
	if len(got) != 1 || got[0] != catalog {
		t.Errorf("late-created file not reported: %v", got)
	}
}

func TestService_MultiplePaths(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")
	for _, p := range []string{a, b} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	s := NewService(a, b)

	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(b, future, future); err != nil {
		t.Fatal(err)
	}

	got := s.Changed()
	if len(got) != 1 || got[0] != b {
		t.Errorf("Changed() = %v, want only %s", got, b)
	}
}
