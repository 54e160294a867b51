package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/codefionn/schleuse/internal/logger"
)

// ErrTurnAborted is returned by Dispatch once the turn has been aborted.
// Calls already running are not killed mid-write; they observe the cancelled
// context and wind down on their own.
var ErrTurnAborted = errors.New("turn aborted")

// Dispatcher serializes the tool calls of one turn. Parallel-safe tools
// share a read lock and may overlap each other; every other tool takes the
// write lock, so an exclusive call never runs while anything else does.
// A Dispatcher is used for exactly one turn and then discarded.
type Dispatcher struct {
	registry *Registry
	log      *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	gate sync.RWMutex
	wg   sync.WaitGroup

	mu      sync.Mutex
	aborted bool
}

func NewDispatcher(ctx context.Context, registry *Registry, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Global()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Dispatcher{
		registry: registry,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Dispatch runs one tool call, blocking until the gate admits it and the
// tool finishes. Safe to call from multiple goroutines. An unknown tool is a
// model-visible error, not a dispatch failure.
func (d *Dispatcher) Dispatch(call *ToolCall) (*ToolResult, error) {
	if call.ID == "" {
		call.ID = uuid.New().String()
	}
	if d.Aborted() {
		return nil, ErrTurnAborted
	}

	tool, ok := d.registry.Get(call.Name)
	if !ok {
		return &ToolResult{ID: call.ID, Error: fmt.Sprintf("unknown tool: %s", call.Name)}, nil
	}

	if isParallelSafe(tool) {
		d.gate.RLock()
		defer d.gate.RUnlock()
	} else {
		d.gate.Lock()
		defer d.gate.Unlock()
	}

	// The abort may have landed while this call was queued on the gate.
	if d.Aborted() {
		return nil, ErrTurnAborted
	}

	d.wg.Add(1)
	defer d.wg.Done()

	d.log.Debug("dispatch: %s (%s)", call.Name, call.ID)
	res, err := tool.Execute(d.ctx, call)
	if err != nil {
		if errors.Is(err, ErrAbortRequested) {
			// The user aborted from an approval prompt: the whole turn is
			// over, not just this call.
			d.Abort()
			return nil, ErrTurnAborted
		}
		if d.ctx.Err() != nil {
			return nil, ErrTurnAborted
		}
		return nil, err
	}
	return res, nil
}

// Abort cancels the turn. In-flight calls see the cancelled context;
// queued and future calls fail with ErrTurnAborted.
func (d *Dispatcher) Abort() {
	d.mu.Lock()
	already := d.aborted
	d.aborted = true
	d.mu.Unlock()
	if already {
		return
	}
	d.log.Debug("dispatch: turn aborted")
	d.cancel()
}

func (d *Dispatcher) Aborted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.aborted
}

// Wait blocks until every in-flight call has finished. Abort does not wait;
// callers that need the turn fully drained call Abort then Wait.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close releases the turn's context. Idempotent.
func (d *Dispatcher) Close() {
	d.cancel()
}

func isParallelSafe(tool Tool) bool {
	if p, ok := tool.(ParallelSafe); ok {
		return p.ParallelSafe()
	}
	return false
}
