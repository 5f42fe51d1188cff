// ABOUTME: Lazily created remote conversation thread shared by every turn of a conversation
// ABOUTME: The id is fixed once created and changes only through explicit adoption

package thread

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/parley/internal/remote"
)

// ErrNoThread is returned by operations that need a created thread.
var ErrNoThread = errors.New("thread not created")

// replyWindow bounds how many recent messages are searched for a run's reply.
const replyWindow = 20

// Thread is a handle on one remote thread. Safe for concurrent use.
type Thread struct {
	svc    remote.Threads
	mu     sync.Mutex
	id     string
	logger *slog.Logger
}

// NewThread wraps id, which may be empty to defer creation.
func NewThread(svc remote.Threads, id string, logger *slog.Logger) *Thread {
	if logger == nil {
		logger = slog.Default()
	}
	return &Thread{svc: svc, id: id, logger: logger.With("component", "thread")}
}

// ID returns the remote id, or "" before creation.
func (t *Thread) ID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.id
}

// EnsureCreated creates the remote thread if needed and returns its id.
func (t *Thread) EnsureCreated(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.id != "" {
		return t.id, nil
	}
	th, err := t.svc.CreateThread(ctx)
	if err != nil {
		return "", fmt.Errorf("creating thread: %w", err)
	}
	t.id = th.ID
	t.logger.Debug("thread created", "thread_id", t.id)
	return t.id, nil
}

// Adopt replaces the id with one surfaced by a delegated run. Empty ids are ignored.
func (t *Thread) Adopt(id string) {
	if id == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.id != id {
		t.logger.Debug("thread adopted", "thread_id", id, "previous", t.id)
		t.id = id
	}
}

// Post appends a user message, creating the thread first if needed.
// Empty content posts nothing.
func (t *Thread) Post(ctx context.Context, content string) error {
	id, err := t.EnsureCreated(ctx)
	if err != nil {
		return err
	}
	if content == "" {
		return nil
	}
	if err := t.svc.PostMessage(ctx, id, content); err != nil {
		return fmt.Errorf("posting message: %w", err)
	}
	return nil
}

// Retrieve fetches the remote thread.
func (t *Thread) Retrieve(ctx context.Context) (*remote.Thread, error) {
	id := t.ID()
	if id == "" {
		return nil, ErrNoThread
	}
	th, err := t.svc.GetThread(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("retrieving thread: %w", err)
	}
	return th, nil
}

// LatestReply returns the newest assistant message on the thread.
func (t *Thread) LatestReply(ctx context.Context) (remote.Message, error) {
	id := t.ID()
	if id == "" {
		return remote.Message{}, ErrNoThread
	}
	return latestReply(ctx, t.svc, id, "")
}

// latestReply finds the newest assistant message, restricted to runID when given.
func latestReply(ctx context.Context, svc remote.Threads, threadID, runID string) (remote.Message, error) {
	msgs, err := svc.ListMessages(ctx, threadID, replyWindow)
	if err != nil {
		return remote.Message{}, fmt.Errorf("listing messages: %w", err)
	}
	for _, m := range msgs {
		if m.Role != remote.RoleAssistant {
			continue
		}
		if runID != "" && m.RunID != "" && m.RunID != runID {
			continue
		}
		if m.Text == "" {
			continue
		}
		return m, nil
	}
	return remote.Message{}, ErrNoReply
}
