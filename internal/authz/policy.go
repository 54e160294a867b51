package authz

import (
	"fmt"
	"os"
	"strings"

	"github.com/codefionn/schleuse/internal/logger"
	"github.com/codefionn/schleuse/internal/sandbox"
)

// ApprovalPolicy controls when the engine escalates to the user instead
// of deciding on its own.
type ApprovalPolicy int

const (
	// ApprovalUnlessTrusted asks for everything except known read-only
	// commands.
	ApprovalUnlessTrusted ApprovalPolicy = iota
	// ApprovalOnFailure runs sandboxed first and only involves the user
	// when the sandboxed attempt fails.
	ApprovalOnFailure
	// ApprovalOnRequest lets the model request escalation; everything
	// else runs sandboxed when possible.
	ApprovalOnRequest
	// ApprovalNever never asks: commands either run (sandboxed when
	// required) or are rejected.
	ApprovalNever
)

func (p ApprovalPolicy) String() string {
	switch p {
	case ApprovalUnlessTrusted:
		return "untrusted"
	case ApprovalOnFailure:
		return "on-failure"
	case ApprovalOnRequest:
		return "on-request"
	case ApprovalNever:
		return "never"
	default:
		return fmt.Sprintf("approval-policy(%d)", int(p))
	}
}

// ParseApprovalPolicy maps the configuration wire form onto the policy.
func ParseApprovalPolicy(s string) (ApprovalPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "untrusted", "unless-trusted":
		return ApprovalUnlessTrusted, nil
	case "on-failure":
		return ApprovalOnFailure, nil
	case "on-request":
		return ApprovalOnRequest, nil
	case "never":
		return ApprovalNever, nil
	default:
		return ApprovalOnRequest, fmt.Errorf("unknown approval policy %q", s)
	}
}

// DecisionKind tags the three possible outcomes of an assessment.
type DecisionKind int

const (
	// DecisionPermit lets the command run under Decision.Sandbox.
	DecisionPermit DecisionKind = iota
	// DecisionAsk defers to the user.
	DecisionAsk
	// DecisionDeny rejects the command outright with a reason.
	DecisionDeny
)

// CommandDecision is the engine's verdict for one command.
type CommandDecision struct {
	Kind DecisionKind
	// Sandbox is the isolation the command must run under when Kind is
	// DecisionPermit.
	Sandbox sandbox.SandboxType
	// UserApproved is true when the permit rests on an explicit user
	// approval rather than the policy itself.
	UserApproved bool
	// Reason explains a DecisionDeny.
	Reason string
}

// Permit builds a permitting decision under the given sandbox.
func Permit(st sandbox.SandboxType, userApproved bool) CommandDecision {
	return CommandDecision{Kind: DecisionPermit, Sandbox: st, UserApproved: userApproved}
}

// RequireApproval builds a decision that defers to the user.
func RequireApproval() CommandDecision {
	return CommandDecision{Kind: DecisionAsk}
}

// Deny builds a rejecting decision.
func Deny(reason string) CommandDecision {
	return CommandDecision{Kind: DecisionDeny, Reason: reason}
}

// DeniedError is the error form of a DecisionDeny, returned by tool
// runtimes when the engine rejects a command.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string { return e.Reason }

// ApprovedLookup answers whether an exact command was already approved in
// this session.
type ApprovedLookup interface {
	Approved(argv []string) bool
}

// Engine folds classification, approval policy, sandbox availability and
// cached approvals into command decisions. It is pure given its inputs:
// platform sandbox availability and the tmpdir are captured at
// construction.
type Engine struct {
	classifier *Classifier
	platform   sandbox.SandboxType
	tmpdir     string
	log        *logger.Logger
}

// NewEngine builds a decision engine. platform names the sandbox this
// host can actually provide; pass sandbox.SandboxNone when none is
// available.
func NewEngine(classifier *Classifier, platform sandbox.SandboxType, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Global()
	}
	if classifier == nil {
		classifier = NewClassifier(nil, log)
	}
	return &Engine{
		classifier: classifier,
		platform:   platform,
		tmpdir:     os.Getenv("TMPDIR"),
		log:        log.WithPrefix("policy"),
	}
}

// Classifier exposes the engine's classifier for callers that need raw
// categories.
func (e *Engine) Classifier() *Classifier { return e.classifier }

// PlatformSandbox reports the sandbox type the engine assumes available.
func (e *Engine) PlatformSandbox() sandbox.SandboxType { return e.platform }

// AssessCommand is the single entry point for command authorization: it
// parses and classifies argv, consults the session approval cache, and
// applies the decision table. An exact cached approval short-circuits
// everything, including destructive categories.
func (e *Engine) AssessCommand(argv []string, approval ApprovalPolicy, sp sandbox.Policy, approved ApprovedLookup, escalated bool) CommandDecision {
	if approved != nil && approved.Approved(argv) {
		e.log.Debug("command %q permitted from session approval cache", argv)
		return Permit(sandbox.SandboxNone, true)
	}
	category := e.classifier.ClassifyAst(ParseToAst(argv))
	decision := e.assessCategory(category, approval, sp, escalated)
	e.log.Debug("command %q category=%s approval=%s sandbox=%s -> kind=%d",
		argv, category, approval, sp.Mode, decision.Kind)
	return decision
}

func (e *Engine) assessCategory(category CommandCategory, approval ApprovalPolicy, sp sandbox.Policy, escalated bool) CommandDecision {
	switch category {
	case ReadsFilesystem, ReadsVcs:
		return Permit(sandbox.SandboxNone, false)
	case DeletesData:
		if approval == ApprovalNever {
			return Deny("destructive commands are rejected by user approval settings")
		}
		return RequireApproval()
	case Unrecognized:
		if approval == ApprovalNever {
			if e.platform != sandbox.SandboxNone && sp.Mode != sandbox.ModeDangerFullAccess {
				return Permit(e.platform, false)
			}
			return Deny("unrecognized commands are rejected by user approval settings")
		}
		return RequireApproval()
	default:
		return e.EvaluateDecisionPolicy(approval, sp, escalated)
	}
}

// EvaluateDecisionPolicy decides the recoverable-mutation categories
// (ModifiesFilesystem, ModifiesVcs), where the answer depends only on
// policy and sandbox availability, not on the command itself.
func (e *Engine) EvaluateDecisionPolicy(approval ApprovalPolicy, sp sandbox.Policy, escalated bool) CommandDecision {
	if approval == ApprovalUnlessTrusted {
		return RequireApproval()
	}
	if sp.Mode == sandbox.ModeDangerFullAccess {
		return Permit(sandbox.SandboxNone, false)
	}
	switch approval {
	case ApprovalOnRequest:
		if escalated {
			return RequireApproval()
		}
		if e.platform != sandbox.SandboxNone {
			return Permit(e.platform, false)
		}
		return RequireApproval()
	case ApprovalOnFailure:
		if e.platform != sandbox.SandboxNone {
			return Permit(e.platform, false)
		}
		return RequireApproval()
	default: // ApprovalNever
		if e.platform != sandbox.SandboxNone {
			return Permit(e.platform, false)
		}
		return Deny("unsandboxed execution is rejected by user approval settings")
	}
}

// AssessPatch decides whether a file patch may be applied. A patch whose
// every path is writable under the sandbox policy needs no sandbox or
// prompt; anything outside the writable roots escalates per the approval
// policy.
func (e *Engine) AssessPatch(paths []string, approval ApprovalPolicy, sp sandbox.Policy, cwd string) CommandDecision {
	if approval == ApprovalUnlessTrusted {
		return RequireApproval()
	}
	for _, p := range paths {
		if sp.IsPathWritable(p, cwd, e.tmpdir) {
			continue
		}
		if approval == ApprovalNever {
			return Deny(fmt.Sprintf("patch writes outside the writable roots (%s) and is rejected by user approval settings", p))
		}
		return RequireApproval()
	}
	return Permit(sandbox.SandboxNone, false)
}
