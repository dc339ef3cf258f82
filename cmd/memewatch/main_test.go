package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"memeWatch/internal/tracker"
)

func TestNewLogger(t *testing.T) {
	if _, err := newLogger("debug"); err != nil {
		t.Fatalf("valid level rejected: %v", err)
	}
	if _, err := newLogger("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestRootCommandsRegistered(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "add", "list", "refresh", "watch"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("command %s not registered: %v", name, err)
		}
	}
}

type countingRefresher struct {
	mu    sync.Mutex
	calls int
	err   error
	done  chan struct{}
}

func (c *countingRefresher) Refresh(context.Context, time.Time) (tracker.RefreshResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.calls == 3 {
		close(c.done)
	}
	return tracker.RefreshResult{}, c.err
}

func TestWatchLoopKeepsGoingOnErrors(t *testing.T) {
	r := &countingRefresher{err: errors.New("store down"), done: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- watchLoop(ctx, r, 5*time.Millisecond, time.Now, zap.NewNop())
	}()

	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatalf("watch loop did not keep triggering")
	}
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("watch loop returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("watch loop did not stop on cancel")
	}
}
