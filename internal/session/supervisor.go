package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/codefionn/schleuse/internal/logger"
	"github.com/codefionn/schleuse/internal/tools"
)

// ErrSessionClosed is returned by Spawn after the supervisor shut down.
var ErrSessionClosed = errors.New("session supervisor closed")

// SessionState is the supervisor's coarse state.
type SessionState int

const (
	StateIdle SessionState = iota
	StateActive
)

func (s SessionState) String() string {
	if s == StateActive {
		return "active"
	}
	return "idle"
}

const eventBuffer = 128

// Supervisor runs the session's tasks. There is never more than one logical
// turn: spawning a task first aborts everything still running with reason
// AbortReplaced. Lifecycle events come out of Events in per-task order
// (started strictly before the terminal event).
type Supervisor struct {
	session  *Session
	registry *tools.Registry
	events   chan Event
	log      *logger.Logger

	mu           sync.Mutex
	active       map[string]*RunningTask
	closed       bool
	eventsClosed bool
	wg           sync.WaitGroup
}

func NewSupervisor(session *Session, registry *tools.Registry, log *logger.Logger) *Supervisor {
	if log == nil {
		log = logger.Global()
	}
	return &Supervisor{
		session:  session,
		registry: registry,
		events:   make(chan Event, eventBuffer),
		log:      log,
		active:   make(map[string]*RunningTask),
	}
}

// Events returns the lifecycle event stream. The channel is closed by
// Shutdown once every task has unwound.
func (s *Supervisor) Events() <-chan Event {
	return s.events
}

// State reports whether any task is currently registered.
func (s *Supervisor) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.active) > 0 {
		return StateActive
	}
	return StateIdle
}

// ActiveTaskIDs returns the ids of all currently registered tasks.
func (s *Supervisor) ActiveTaskIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	return ids
}

// Spawn aborts every running task with reason AbortReplaced, then starts fn
// as the new turn and returns its task id.
func (s *Supervisor) Spawn(ctx context.Context, kind TaskKind, fn TaskFunc) (string, error) {
	if fn == nil {
		return "", fmt.Errorf("task body is required")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrSessionClosed
	}
	s.abortAllLocked(AbortReplaced)

	taskCtx, cancel := context.WithCancel(ctx)
	task := &RunningTask{
		ID:     uuid.New().String(),
		Kind:   kind,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.active[task.ID] = task
	s.wg.Add(1)
	s.mu.Unlock()

	if kind == TaskReview && s.session != nil {
		s.session.SetReviewActive(true)
	}

	s.log.Info("task %s started (%s)", task.ID, kind)
	s.emit(Event{Kind: EventTaskStarted, TaskID: task.ID, Task: kind})

	go s.run(taskCtx, task, fn)
	return task.ID, nil
}

// Interrupt aborts every running task with reason AbortUserInterrupt.
// Finished tasks are unaffected.
func (s *Supervisor) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abortAllLocked(AbortUserInterrupt)
}

// Task returns the handle of a running task, if it is still registered.
func (s *Supervisor) Task(id string) (*RunningTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.active[id]
	return task, ok
}

// Shutdown interrupts all tasks and waits for them to unwind, then closes
// the event stream. If ctx expires first the stream stays open because
// stragglers may still emit.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.abortAllLocked(AbortUserInterrupt)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.mu.Lock()
		if !s.eventsClosed {
			s.eventsClosed = true
			close(s.events)
		}
		s.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) abortAllLocked(reason AbortReason) {
	for id, task := range s.active {
		s.log.Info("aborting task %s: %s", id, reason)
		task.abort(reason)
	}
}

func (s *Supervisor) run(ctx context.Context, task *RunningTask, fn TaskFunc) {
	defer s.wg.Done()
	defer close(task.done)

	dispatcher := tools.NewDispatcher(ctx, s.registry, s.log)
	defer dispatcher.Close()

	turn := &Turn{
		TaskID:     task.ID,
		Kind:       task.Kind,
		Session:    s.session,
		Dispatcher: dispatcher,
	}

	lastMessage, err := fn(ctx, turn)

	// Let in-flight tool calls finish before the turn is declared over.
	dispatcher.Wait()

	s.mu.Lock()
	delete(s.active, task.ID)
	idle := len(s.active) == 0
	s.mu.Unlock()

	if task.Kind == TaskReview && s.session != nil {
		s.session.SetReviewActive(false)
	}

	switch {
	case s.emitAborted(task, err):
	case err != nil:
		s.log.Error("task %s failed: %v", task.ID, err)
		s.emit(Event{Kind: EventTurnAborted, TaskID: task.ID, Task: task.Kind, Reason: AbortError, Err: err})
	default:
		if s.session != nil {
			s.session.SetLastTaskResult(task.ID, lastMessage)
		}
		s.log.Info("task %s complete", task.ID)
		s.emit(Event{Kind: EventTaskComplete, TaskID: task.ID, Task: task.Kind, LastMessage: lastMessage})
	}

	if idle {
		s.log.Debug("session idle")
	}
}

// emitAborted emits the TurnAborted event for a task that was aborted, or
// whose body unwound from a cancellation it observed itself. Reports whether
// it emitted.
func (s *Supervisor) emitAborted(task *RunningTask, err error) bool {
	reason, aborted := task.abortReason()
	if !aborted {
		if err != nil && (errors.Is(err, tools.ErrTurnAborted) ||
			errors.Is(err, tools.ErrAbortRequested) ||
			errors.Is(err, context.Canceled)) {
			reason = AbortUserInterrupt
		} else {
			return false
		}
	}
	s.log.Info("task %s aborted: %s", task.ID, reason)
	s.emit(Event{Kind: EventTurnAborted, TaskID: task.ID, Task: task.Kind, Reason: reason})
	return true
}

// emit never blocks; a full buffer drops the event rather than stalling a
// task goroutine.
func (s *Supervisor) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.log.Warn("event buffer full, dropping %s for task %s", ev.Kind, ev.TaskID)
	}
}
