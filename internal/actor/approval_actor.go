package actor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codefionn/schleuse/internal/authz"
	"github.com/codefionn/schleuse/internal/logger"
	"github.com/codefionn/schleuse/internal/tools"
)

// Prompter is implemented by each front end (terminal, socket, headless) to
// put one approval question to the user. It must honor ctx and must not
// block past it.
type Prompter interface {
	Prompt(ctx context.Context, req tools.ApprovalRequest) (authz.ApprovalDecision, error)
	Mode() string
}

// ApprovalRequestMsg asks the coordinator to collect a decision for one
// command or patch. The answer arrives on ResponseChan.
type ApprovalRequestMsg struct {
	RequestID    string
	Request      tools.ApprovalRequest
	RequestCtx   context.Context
	ResponseChan chan *ApprovalResponse
	// Timeout overrides the coordinator default when non-zero.
	Timeout time.Duration
}

func (m *ApprovalRequestMsg) Type() string { return "approval_request" }

// ApprovalResponse is the coordinator's answer. An unanswered prompt comes
// back as Denied: silence never grants permission.
type ApprovalResponse struct {
	RequestID string
	Decision  authz.ApprovalDecision
	TimedOut  bool
	Cancelled bool
	Err       error
}

// ApprovalCancelMsg withdraws a pending prompt, e.g. because the turn it
// belongs to was aborted.
type ApprovalCancelMsg struct {
	RequestID string
	Reason    string
}

func (m *ApprovalCancelMsg) Type() string { return "approval_cancel" }

type pendingApproval struct {
	msg       *ApprovalRequestMsg
	createdAt time.Time
	timer     *time.Timer
}

// ApprovalCoordinator owns every open approval prompt: it forwards requests
// to the front end's Prompter, enforces the answer timeout, and guarantees
// each requester gets exactly one response even across cancellation and
// shutdown.
type ApprovalCoordinator struct {
	id       string
	prompter Prompter
	pending  map[string]*pendingApproval
	mu       sync.Mutex

	defaultTimeout time.Duration
	log            *logger.Logger
}

const defaultApprovalTimeout = 2 * time.Minute

func NewApprovalCoordinator(id string, prompter Prompter, log *logger.Logger) *ApprovalCoordinator {
	if log == nil {
		log = logger.Global()
	}
	return &ApprovalCoordinator{
		id:             id,
		prompter:       prompter,
		pending:        make(map[string]*pendingApproval),
		defaultTimeout: defaultApprovalTimeout,
		log:            log,
	}
}

func (a *ApprovalCoordinator) ID() string {
	return a.id
}

func (a *ApprovalCoordinator) Start(ctx context.Context) error {
	a.log.Debug("approval coordinator %s started (mode=%s)", a.id, a.prompter.Mode())
	return nil
}

// Stop cancels every pending prompt so no requester is left blocked.
func (a *ApprovalCoordinator) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for requestID, pending := range a.pending {
		pending.timer.Stop()
		deliver(pending.msg.ResponseChan, &ApprovalResponse{
			RequestID: requestID,
			Decision:  authz.Denied,
			Cancelled: true,
			Err:       fmt.Errorf("approval coordinator stopped"),
		})
	}
	a.pending = make(map[string]*pendingApproval)
	return nil
}

func (a *ApprovalCoordinator) Receive(ctx context.Context, msg Message) error {
	switch m := msg.(type) {
	case *ApprovalRequestMsg:
		return a.handleRequest(ctx, m)
	case *ApprovalCancelMsg:
		return a.handleCancel(m)
	default:
		return fmt.Errorf("unknown message type: %T", msg)
	}
}

func (a *ApprovalCoordinator) handleRequest(ctx context.Context, req *ApprovalRequestMsg) error {
	timeout := req.Timeout
	if timeout == 0 {
		timeout = a.defaultTimeout
	}
	timer := time.AfterFunc(timeout, func() {
		a.handleTimeout(req.RequestID, timeout)
	})

	a.mu.Lock()
	a.pending[req.RequestID] = &pendingApproval{
		msg:       req,
		createdAt: time.Now(),
		timer:     timer,
	}
	a.mu.Unlock()

	a.log.Debug("approval %s: prompting (%s)", req.RequestID, a.prompter.Mode())

	// The prompt may block on the user, so it runs off the actor loop.
	go func() {
		promptCtx := req.RequestCtx
		if promptCtx == nil {
			promptCtx = ctx
		}
		decision, err := a.prompter.Prompt(promptCtx, req.Request)
		a.complete(req.RequestID, &ApprovalResponse{
			RequestID: req.RequestID,
			Decision:  decision,
			Err:       err,
		})
	}()

	return nil
}

func (a *ApprovalCoordinator) handleCancel(cancel *ApprovalCancelMsg) error {
	a.mu.Lock()
	pending, exists := a.pending[cancel.RequestID]
	if !exists {
		a.mu.Unlock()
		a.log.Debug("approval %s: cancel for unknown request", cancel.RequestID)
		return nil
	}
	pending.timer.Stop()
	delete(a.pending, cancel.RequestID)
	a.mu.Unlock()

	a.log.Debug("approval %s: cancelled: %s", cancel.RequestID, cancel.Reason)
	deliver(pending.msg.ResponseChan, &ApprovalResponse{
		RequestID: cancel.RequestID,
		Decision:  authz.Denied,
		Cancelled: true,
		Err:       fmt.Errorf("cancelled: %s", cancel.Reason),
	})
	return nil
}

func (a *ApprovalCoordinator) handleTimeout(requestID string, timeout time.Duration) {
	a.mu.Lock()
	pending, exists := a.pending[requestID]
	if !exists {
		a.mu.Unlock()
		return
	}
	delete(a.pending, requestID)
	a.mu.Unlock()

	a.log.Warn("approval %s: no answer after %s, denying", requestID, timeout)
	deliver(pending.msg.ResponseChan, &ApprovalResponse{
		RequestID: requestID,
		Decision:  authz.Denied,
		TimedOut:  true,
	})
}

func (a *ApprovalCoordinator) complete(requestID string, resp *ApprovalResponse) {
	a.mu.Lock()
	pending, exists := a.pending[requestID]
	if !exists {
		// Already timed out or cancelled; that response won.
		a.mu.Unlock()
		a.log.Debug("approval %s: late answer dropped", requestID)
		return
	}
	pending.timer.Stop()
	delete(a.pending, requestID)
	a.mu.Unlock()

	a.log.Debug("approval %s: answered %s after %s",
		requestID, resp.Decision, time.Since(pending.createdAt).Round(time.Millisecond))
	deliver(pending.msg.ResponseChan, resp)
}

// deliver sends without blocking; response channels are buffered, so a full
// channel means the requester already gave up.
func deliver(ch chan *ApprovalResponse, resp *ApprovalResponse) {
	select {
	case ch <- resp:
	default:
	}
}
