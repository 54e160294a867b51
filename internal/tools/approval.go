package tools

import (
	"context"
	"errors"

	"github.com/codefionn/schleuse/internal/authz"
	"github.com/codefionn/schleuse/internal/logger"
	"github.com/codefionn/schleuse/internal/sandbox"
)

// ErrAbortRequested is returned when the user answers an approval prompt by
// aborting the whole task rather than just this call.
var ErrAbortRequested = errors.New("task aborted by user")

// ApprovalRequest is handed to the Approver when a call needs a human
// decision. Either Command or Paths is set, never both.
type ApprovalRequest struct {
	CallID        string
	Command       []string
	Paths         []string
	Cwd           string
	Justification string
	// Escalated marks the follow-up prompt shown after a sandboxed attempt
	// failed and the tool wants to retry without the sandbox.
	Escalated bool
	// FailureOutput carries the failed attempt's stderr tail for the prompt.
	FailureOutput string
}

// Approver resolves approval requests, typically by asking the user. The
// returned decision follows authz.ApprovalDecision semantics; an error aborts
// the call (including context cancellation while the prompt is open).
type Approver interface {
	RequestApproval(ctx context.Context, req ApprovalRequest) (authz.ApprovalDecision, error)
}

// AuthorizerConfig wires an Authorizer.
type AuthorizerConfig struct {
	Engine    *authz.Engine
	Approvals *authz.SessionStore
	// Workspace persists session-scoped approvals across restarts. Optional.
	Workspace    *authz.WorkspaceStore
	WorkspaceDir string
	// Approver handles interactive prompts. When nil every ask becomes a
	// denial, which keeps non-interactive runs safe.
	Approver Approver
	Approval authz.ApprovalPolicy
	Sandbox  sandbox.Policy
	Log      *logger.Logger
}

// Authorizer gates tool execution on the decision engine and routes the
// engine's ask outcomes through the configured Approver. It is shared by all
// command-running tools of a session so they see one approval cache.
type Authorizer struct {
	engine       *authz.Engine
	approvals    *authz.SessionStore
	workspace    *authz.WorkspaceStore
	workspaceDir string
	approver     Approver
	approval     authz.ApprovalPolicy
	policy       sandbox.Policy
	log          *logger.Logger
}

func NewAuthorizer(cfg AuthorizerConfig) *Authorizer {
	log := cfg.Log
	if log == nil {
		log = logger.Global()
	}
	return &Authorizer{
		engine:       cfg.Engine,
		approvals:    cfg.Approvals,
		workspace:    cfg.Workspace,
		workspaceDir: cfg.WorkspaceDir,
		approver:     cfg.Approver,
		approval:     cfg.Approval,
		policy:       cfg.Sandbox,
		log:          log,
	}
}

// ApprovalPolicy returns the approval policy this authorizer enforces.
func (a *Authorizer) ApprovalPolicy() authz.ApprovalPolicy { return a.approval }

// SandboxPolicy returns the sandbox policy commands are confined to.
func (a *Authorizer) SandboxPolicy() sandbox.Policy { return a.policy }

// AuthorizeCommand assesses argv and resolves an ask outcome through the
// approver. The returned decision is final: Permit or Deny, never Ask.
func (a *Authorizer) AuthorizeCommand(ctx context.Context, req ApprovalRequest) (authz.CommandDecision, error) {
	decision := a.engine.AssessCommand(req.Command, a.approval, a.policy, a.approvals, req.Escalated)
	if decision.Kind != authz.DecisionAsk {
		return decision, nil
	}
	return a.resolveAsk(ctx, req)
}

// AuthorizePatch assesses the file paths a patch wants to touch.
func (a *Authorizer) AuthorizePatch(ctx context.Context, req ApprovalRequest) (authz.CommandDecision, error) {
	decision := a.engine.AssessPatch(req.Paths, a.approval, a.policy, req.Cwd)
	if decision.Kind != authz.DecisionAsk {
		return decision, nil
	}
	return a.resolveAsk(ctx, req)
}

// RequestEscalation asks the user whether a command that failed inside the
// sandbox may rerun without it. Under the never policy there is nobody to
// ask, so the failure stands.
func (a *Authorizer) RequestEscalation(ctx context.Context, req ApprovalRequest) (bool, error) {
	if a.approval == authz.ApprovalNever || a.approver == nil {
		return false, nil
	}
	req.Escalated = true
	answer, err := a.approver.RequestApproval(ctx, req)
	if err != nil {
		return false, err
	}
	if answer == authz.Abort {
		return false, ErrAbortRequested
	}
	if answer == authz.ApprovedForSession {
		a.remember(req)
	}
	return answer.IsApproval(), nil
}

func (a *Authorizer) resolveAsk(ctx context.Context, req ApprovalRequest) (authz.CommandDecision, error) {
	if a.approver == nil {
		return authz.Deny("approval required but no approver is configured"), nil
	}
	answer, err := a.approver.RequestApproval(ctx, req)
	if err != nil {
		return authz.CommandDecision{}, err
	}
	switch answer {
	case authz.Approved:
		return authz.Permit(sandbox.SandboxNone, true), nil
	case authz.ApprovedForSession:
		a.remember(req)
		return authz.Permit(sandbox.SandboxNone, true), nil
	case authz.Abort:
		return authz.CommandDecision{}, ErrAbortRequested
	default:
		return authz.Deny("rejected by user"), nil
	}
}

// remember caches a session-scoped approval and mirrors it into the
// workspace store when one is attached. Patch approvals carry no argv and
// are never cached: the next patch has different content anyway.
func (a *Authorizer) remember(req ApprovalRequest) {
	if len(req.Command) == 0 || a.approvals == nil {
		return
	}
	a.approvals.Record(req.Command, authz.ApprovedForSession)
	if a.workspace == nil {
		return
	}
	key := a.approvals.Key(req.Command)
	if err := a.workspace.RecordApproval(a.workspaceDir, key, req.Command, authz.ApprovedForSession); err != nil {
		a.log.Warn("tools: persisting approval failed: %v", err)
	}
}

// describeDenial turns a deny decision into the error string surfaced to the
// model.
func describeDenial(decision authz.CommandDecision) string {
	if decision.Reason != "" {
		return decision.Reason
	}
	return "command rejected"
}
