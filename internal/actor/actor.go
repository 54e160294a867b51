// Package actor is a small mailbox-based actor runtime. The approval
// coordinator runs on it so prompts, timeouts and cancellations are
// serialized in one place instead of being sprinkled across tool goroutines.
package actor

import (
	"context"
	"fmt"
	"sync"

	"github.com/codefionn/schleuse/internal/logger"
)

// Message is anything an actor can receive.
type Message interface {
	Type() string
}

// Actor processes messages one at a time.
type Actor interface {
	Receive(ctx context.Context, msg Message) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	ID() string
}

// ActorRef owns an actor's mailbox and run loop.
type ActorRef struct {
	id      string
	mailbox chan Message
	actor   Actor
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	mu      sync.RWMutex
	stopped bool
	log     *logger.Logger
}

func NewActorRef(id string, actor Actor, mailboxSize int) *ActorRef {
	return &ActorRef{
		id:      id,
		actor:   actor,
		mailbox: make(chan Message, mailboxSize),
		log:     logger.Global(),
	}
}

func (ref *ActorRef) ID() string {
	return ref.id
}

// Send enqueues a message without blocking. A full mailbox is an error so
// senders back off instead of stalling the caller.
func (ref *ActorRef) Send(msg Message) error {
	ref.mu.RLock()
	stopped := ref.stopped
	ref.mu.RUnlock()
	if stopped {
		return fmt.Errorf("actor %s is stopped", ref.id)
	}

	select {
	case ref.mailbox <- msg:
		return nil
	default:
		return fmt.Errorf("actor %s mailbox is full", ref.id)
	}
}

// Start launches the actor's processing loop.
func (ref *ActorRef) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	ref.cancel = cancel

	if err := ref.actor.Start(ctx); err != nil {
		cancel()
		return err
	}

	ref.wg.Add(1)
	go ref.run(ctx)
	return nil
}

// Stop shuts the actor down and waits for the loop to drain.
func (ref *ActorRef) Stop(ctx context.Context) error {
	ref.mu.Lock()
	if ref.stopped {
		ref.mu.Unlock()
		return nil
	}
	ref.stopped = true
	ref.mu.Unlock()

	if ref.cancel != nil {
		ref.cancel()
	}

	done := make(chan struct{})
	go func() {
		ref.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return ref.actor.Stop(ctx)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (ref *ActorRef) run(ctx context.Context) {
	defer ref.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ref.mailbox:
			if err := ref.actor.Receive(ctx, msg); err != nil {
				ref.log.Error("actor %s error processing message: %v", ref.id, err)
			}
		}
	}
}

// System manages a collection of actors by ID.
type System struct {
	actors map[string]*ActorRef
	mu     sync.RWMutex
}

func NewSystem() *System {
	return &System{
		actors: make(map[string]*ActorRef),
	}
}

// Spawn creates and starts a new actor.
func (s *System) Spawn(ctx context.Context, id string, actor Actor, mailboxSize int) (*ActorRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.actors[id]; exists {
		return nil, fmt.Errorf("actor with id %s already exists", id)
	}

	ref := NewActorRef(id, actor, mailboxSize)
	if err := ref.Start(ctx); err != nil {
		return nil, err
	}

	s.actors[id] = ref
	return ref, nil
}

func (s *System) Get(id string) (*ActorRef, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.actors[id]
	return ref, ok
}

// Stop stops one actor and removes it from the system.
func (s *System) Stop(ctx context.Context, id string) error {
	s.mu.Lock()
	ref, exists := s.actors[id]
	if !exists {
		s.mu.Unlock()
		return fmt.Errorf("actor %s not found", id)
	}
	delete(s.actors, id)
	s.mu.Unlock()

	return ref.Stop(ctx)
}

// StopAll stops every actor, returning the first error encountered.
func (s *System) StopAll(ctx context.Context) error {
	s.mu.Lock()
	actors := make([]*ActorRef, 0, len(s.actors))
	for _, ref := range s.actors {
		actors = append(actors, ref)
	}
	s.actors = make(map[string]*ActorRef)
	s.mu.Unlock()

	var firstErr error
	for _, ref := range actors {
		if err := ref.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
