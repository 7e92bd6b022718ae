package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, "deadbeef")

	m, err := s.Load()
	if err != nil {
		t.Fatalf("Load (missing file): %v", err)
	}
	if len(m.Sessions) != 0 {
		t.Fatalf("expected empty manifest, got %+v", m.Sessions)
	}

	m.Put("alpha", Entry{Name: "alpha", AgentType: "claude", Cwd: "/work/alpha"})
	m.Put("beta", Entry{Name: "beta", AgentType: "codex", AgentSessionID: "sess-1", Cwd: "/work/beta"})
	if err := s.Save(m); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(reloaded.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(reloaded.Sessions))
	}
	if reloaded.Sessions["beta"].AgentSessionID != "sess-1" {
		t.Fatalf("unexpected beta entry: %+v", reloaded.Sessions["beta"])
	}
}

func TestSaveLeavesNoTempFilesBehind(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, "cafef00d")
	m := &Manifest{Sessions: map[string]Entry{"x": {Name: "x", AgentType: "claude"}}}
	if err := s.Save(m); err != nil {
		t.Fatalf("Save: %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(dir, "cafef00d"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != fileName {
		t.Fatalf("expected only %q to remain, got %v", fileName, entries)
	}
}

func TestRemove(t *testing.T) {
	m := &Manifest{Sessions: map[string]Entry{"a": {Name: "a"}}}
	m.Remove("a")
	if _, ok := m.Sessions["a"]; ok {
		t.Fatalf("expected entry to be removed")
	}
}
