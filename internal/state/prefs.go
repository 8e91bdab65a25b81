// internal/state/prefs.go
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/user/gatewaychat/internal/types"
)

// Preferences are the choices remembered between runs.
type Preferences struct {
	Theme       string          `json:"theme,omitempty"`
	LastSession types.SessionID `json:"last_session,omitempty"`
	LastTarget  types.Target    `json:"last_target,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// PrefsStore is a JSON-file-backed preferences store at <root>/prefs.json.
type PrefsStore struct {
	root string
	mu   sync.RWMutex
}

// NewPrefsStore creates a preferences store rooted at the given directory.
func NewPrefsStore(root string) *PrefsStore {
	return &PrefsStore{root: root}
}

func (s *PrefsStore) path() string {
	return filepath.Join(s.root, "prefs.json")
}

func (s *PrefsStore) load() (Preferences, error) {
	var p Preferences
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return p, fmt.Errorf("read preferences: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("unmarshal preferences: %w", err)
	}
	return p, nil
}

func (s *PrefsStore) save(p Preferences) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Atomic write: write to temp file then rename
	tmp := s.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp preferences: %w", err)
	}
	if err := os.Rename(tmp, s.path()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp preferences: %w", err)
	}
	return nil
}

// Get returns the stored preferences, or zero values if none are stored.
func (s *PrefsStore) Get() (Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load()
}

// Update applies fn to the stored preferences and persists the result.
func (s *PrefsStore) Update(fn func(*Preferences)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.load()
	if err != nil {
		return err
	}
	fn(&p)
	p.UpdatedAt = time.Now()
	return s.save(p)
}

// LoadTheme returns the persisted theme id, or "" when none was chosen.
func (s *PrefsStore) LoadTheme() (string, error) {
	p, err := s.Get()
	if err != nil {
		return "", err
	}
	return p.Theme, nil
}

func (s *PrefsStore) SaveTheme(id string) error {
	return s.Update(func(p *Preferences) { p.Theme = id })
}

// Remember records the session and target of the latest conversation.
func (s *PrefsStore) Remember(session types.SessionID, target types.Target) error {
	return s.Update(func(p *Preferences) {
		if session != "" {
			p.LastSession = session
		}
		if target.Valid() {
			p.LastTarget = target
		}
	})
}
