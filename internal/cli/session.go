package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var ErrNoSession = errors.New("no saved session")

// Session is the identity the lsim CLI acts as.
type Session struct {
	ActorID    string    `json:"actor_id"`
	APIBaseURL string    `json:"api_base_url,omitempty"`
	LoggedInAt time.Time `json:"logged_in_at"`
}

// BaseDir is ~/.lsim, created on first use. It holds the session file and
// the offline queue.
func BaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".lsim")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// SessionFile is dir/session.json.
type SessionFile struct {
	path string
}

func NewSessionFile(dir string) *SessionFile {
	return &SessionFile{path: filepath.Join(dir, "session.json")}
}

func (f *SessionFile) Save(s Session) error {
	s.ActorID = strings.TrimSpace(s.ActorID)
	if s.ActorID == "" {
		return fmt.Errorf("%w: empty actor id", ErrNoSession)
	}
	if s.LoggedInAt.IsZero() {
		s.LoggedInAt = time.Now().UTC()
	}
	body, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *SessionFile) Load() (Session, error) {
	body, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(body, &s); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	if strings.TrimSpace(s.ActorID) == "" {
		return Session{}, ErrNoSession
	}
	return s, nil
}

// Clear removes the session; clearing twice is not an error.
func (f *SessionFile) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
