// Package manifest persists the per-project session roster to disk so the
// dashboard can revive panes across restarts: one JSON file per project,
// keyed by the project's user-visible session names (§6). The atomic
// write pattern (temp file in the same directory, then rename) is
// grounded on the teacher's gamification stats store, extended with a
// uuid-suffixed temp name so concurrent dashboard instances writing the
// same manifest never collide on the temp path.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const fileName = "sessions.json"

// Entry is one pane's durable record.
type Entry struct {
	Name           string `json:"name"`
	AgentType      string `json:"agentType"`
	AgentSessionID string `json:"agentSessionId,omitempty"`
	Cwd            string `json:"cwd"`
	FailedAttempts int    `json:"failedAttempts"`
}

// Manifest is the full on-disk roster for one project, keyed by user name.
type Manifest struct {
	Sessions map[string]Entry `json:"sessions"`
}

// Store loads and saves a single project's manifest file at
// <baseDir>/<projectID>/sessions.json.
type Store struct {
	baseDir   string
	projectID string
}

// NewStore returns a Store for projectID rooted at baseDir.
func NewStore(baseDir, projectID string) *Store {
	return &Store{baseDir: baseDir, projectID: projectID}
}

func (s *Store) dir() string {
	return filepath.Join(s.baseDir, s.projectID)
}

func (s *Store) path() string {
	return filepath.Join(s.dir(), fileName)
}

// Load reads the manifest, returning an empty one if it does not exist yet.
func (s *Store) Load() (*Manifest, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return &Manifest{Sessions: make(map[string]Entry)}, nil
		}
		return nil, fmt.Errorf("manifest: read %s: %w", s.path(), err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: parse %s: %w", s.path(), err)
	}
	if m.Sessions == nil {
		m.Sessions = make(map[string]Entry)
	}
	return &m, nil
}

// Save writes the manifest atomically: marshal, write to a uniquely
// named temp file in the same directory, then rename over the final path
// (the temp file is not fsynced before the rename). The uuid suffix (rather than the PID used
// by the teacher's pattern) keeps temp names collision-free even across
// multiple dashboard processes racing to save the same project.
func (s *Store) Save(m *Manifest) error {
	if err := os.MkdirAll(s.dir(), 0o755); err != nil {
		return fmt.Errorf("manifest: create dir %s: %w", s.dir(), err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest: marshal: %w", err)
	}
	data = append(data, '\n')

	tmpName := fmt.Sprintf(".sessions-%s.tmp", uuid.NewString())
	tmpPath := filepath.Join(s.dir(), tmpName)
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("manifest: write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path()); err != nil {
		return fmt.Errorf("manifest: rename into place: %w", err)
	}
	committed = true
	return nil
}

// Put inserts or replaces one session entry in m.
func (m *Manifest) Put(userName string, e Entry) {
	if m.Sessions == nil {
		m.Sessions = make(map[string]Entry)
	}
	m.Sessions[userName] = e
}

// Remove deletes a session entry, if present.
func (m *Manifest) Remove(userName string) {
	delete(m.Sessions, userName)
}
