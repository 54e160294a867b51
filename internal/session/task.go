package session

import (
	"context"
	"sync"

	"github.com/codefionn/schleuse/internal/tools"
)

// TaskFunc is the body of one task. The context is cancelled when the task
// is aborted; the body is expected to unwind cooperatively, running its own
// cleanup in defers. The returned string is the task's final message.
type TaskFunc func(ctx context.Context, turn *Turn) (string, error)

// Turn is the execution surface handed to a task body. Each task gets a
// fresh dispatcher so tool-call exclusivity is scoped to the turn.
type Turn struct {
	TaskID     string
	Kind       TaskKind
	Session    *Session
	Dispatcher *tools.Dispatcher
}

// RunningTask is the supervisor's handle on one spawned task.
type RunningTask struct {
	ID   string
	Kind TaskKind

	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	reason *AbortReason
}

// abort requests cancellation with the given reason. The first reason wins;
// aborting an already-aborted task only re-delivers the cancel signal.
func (t *RunningTask) abort(reason AbortReason) {
	t.mu.Lock()
	if t.reason == nil {
		r := reason
		t.reason = &r
	}
	t.mu.Unlock()
	t.cancel()
}

func (t *RunningTask) abortReason() (AbortReason, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.reason == nil {
		return 0, false
	}
	return *t.reason, true
}

// Done is closed once the task's goroutine has fully unwound and its
// terminal event has been emitted.
func (t *RunningTask) Done() <-chan struct{} {
	return t.done
}
