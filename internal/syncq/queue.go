// Package syncq keeps lsim writes that could not reach the API so they can
// be replayed later with `lsim sync`. Each entry keeps its idempotency key,
// so replaying an entry the API already saw is refused instead of applied
// twice.
package syncq

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const fileName = "queue.json"

var ErrInvalidCommand = errors.New("invalid queued command")

type Command struct {
	ActorID        string         `json:"actor_id"`
	Method         string         `json:"method"`
	Path           string         `json:"path"`
	Body           map[string]any `json:"body,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`
	QueuedAt       time.Time      `json:"queued_at"`
}

func (c Command) Validate() error {
	switch {
	case strings.TrimSpace(c.ActorID) == "":
		return fmt.Errorf("%w: missing actor", ErrInvalidCommand)
	case c.Method == "" || !strings.HasPrefix(c.Path, "/"):
		return fmt.Errorf("%w: %s %q", ErrInvalidCommand, c.Method, c.Path)
	case c.IdempotencyKey == "":
		return fmt.Errorf("%w: missing idempotency key", ErrInvalidCommand)
	}
	return nil
}

// Queue is a JSON file of pending commands, oldest first.
type Queue struct {
	path string
}

// Open uses dir/queue.json, creating dir if needed.
func Open(dir string) (*Queue, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("queue dir: %w", err)
	}
	return &Queue{path: filepath.Join(dir, fileName)}, nil
}

func (q *Queue) Load() ([]Command, error) {
	raw, err := os.ReadFile(q.path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && len(raw) == 0) {
		return []Command{}, nil
	}
	if err != nil {
		return nil, err
	}
	var out []Command
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", q.path, err)
	}
	return out, nil
}

// Save replaces the queue. An empty list removes the file.
func (q *Queue) Save(commands []Command) error {
	if len(commands) == 0 {
		if err := os.Remove(q.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	raw, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return err
	}
	tmp := q.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, q.path)
}

// Push appends cmd. A command whose idempotency key is already queued is
// ignored.
func (q *Queue) Push(cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	commands, err := q.Load()
	if err != nil {
		return err
	}
	for _, c := range commands {
		if c.IdempotencyKey == cmd.IdempotencyKey {
			return nil
		}
	}
	if cmd.QueuedAt.IsZero() {
		cmd.QueuedAt = time.Now().UTC()
	}
	return q.Save(append(commands, cmd))
}
