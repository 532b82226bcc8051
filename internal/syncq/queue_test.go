package syncq

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestQueuePushLoadSave(t *testing.T) {
	q, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	got, err := q.Load()
	if err != nil || len(got) != 0 {
		t.Fatalf("empty load=%v err=%v", got, err)
	}
	for _, key := range []string{"k1", "k2", "k1"} {
		if err := q.Push(Command{ActorID: "a", Method: "POST", Path: "/v1/proposals/p/approve", IdempotencyKey: key}); err != nil {
			t.Fatalf("push %s: %v", key, err)
		}
	}
	got, err = q.Load()
	if err != nil || len(got) != 2 {
		t.Fatalf("load=%v err=%v", got, err)
	}
	if got[1].IdempotencyKey != "k2" || got[0].QueuedAt.IsZero() {
		t.Fatalf("commands=%+v", got)
	}

	if err := q.Save(got[1:]); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err = q.Load()
	if err != nil || len(got) != 1 || got[0].IdempotencyKey != "k2" {
		t.Fatalf("after save=%+v err=%v", got, err)
	}
	if err := q.Save(nil); err != nil {
		t.Fatalf("save nil: %v", err)
	}
	if _, err := os.Stat(q.path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected queue file removed, stat err=%v", err)
	}
	if err := q.Save(nil); err != nil {
		t.Fatalf("second save nil: %v", err)
	}
}

func TestQueueRejectsInvalidCommands(t *testing.T) {
	q, _ := Open(t.TempDir())
	cases := []Command{
		{Method: "POST", Path: "/v1/businesses", IdempotencyKey: "k"},
		{ActorID: "a", Path: "/v1/businesses", IdempotencyKey: "k"},
		{ActorID: "a", Method: "POST", Path: "v1/businesses", IdempotencyKey: "k"},
		{ActorID: "a", Method: "POST", Path: "/v1/businesses"},
	}
	for i, c := range cases {
		if err := q.Push(c); !errors.Is(err, ErrInvalidCommand) {
			t.Fatalf("case %d: expected ErrInvalidCommand, got %v", i, err)
		}
	}
}

func TestQueueCorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, fileName), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	q, _ := Open(dir)
	if _, err := q.Load(); err == nil {
		t.Fatalf("expected decode error")
	}
}
