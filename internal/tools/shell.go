package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/codefionn/schleuse/internal/authz"
	"github.com/codefionn/schleuse/internal/exec"
	"github.com/codefionn/schleuse/internal/logger"
	"github.com/codefionn/schleuse/internal/redact"
	"github.com/codefionn/schleuse/internal/sandbox"
)

const ToolNameShell = "shell"

// tailLimit bounds how much stderr an escalation prompt quotes back.
const tailLimit = 2048

// CommandRunner executes a prepared command spec. *exec.Runner is the real
// implementation.
type CommandRunner interface {
	Run(ctx context.Context, spec exec.CommandSpec, sink exec.OutputSink) (*exec.RawExecResult, error)
}

// ShellTool runs a command under the authorization engine. Permitted
// commands execute inside the platform sandbox; after a sandbox-attributable
// failure the command may rerun once without the sandbox, but only with the
// user's explicit approval.
type ShellTool struct {
	auth             *Authorizer
	manager          *sandbox.Manager
	runner           CommandRunner
	workingDir       string
	defaultTimeoutMs int
	sink             exec.OutputSink
	log              *logger.Logger
}

// NewShellTool builds a shell tool. sink may be nil; defaultTimeoutMs of 0
// falls back to the runner's built-in timeout.
func NewShellTool(auth *Authorizer, manager *sandbox.Manager, runner CommandRunner, workingDir string, defaultTimeoutMs int, sink exec.OutputSink, log *logger.Logger) *ShellTool {
	if log == nil {
		log = logger.Global()
	}
	return &ShellTool{
		auth:             auth,
		manager:          manager,
		runner:           runner,
		workingDir:       workingDir,
		defaultTimeoutMs: defaultTimeoutMs,
		sink:             sink,
		log:              log,
	}
}

func (t *ShellTool) Name() string {
	return ToolNameShell
}

func (t *ShellTool) Description() string {
	return "Run a shell command in the workspace. Commands execute inside a filesystem sandbox; destructive or out-of-policy commands require user approval."
}

func (t *ShellTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Command and arguments to execute (argv form)",
			},
			"workdir": map[string]interface{}{
				"type":        "string",
				"description": "Working directory (optional, defaults to the session working directory)",
			},
			"timeout_ms": map[string]interface{}{
				"type":        "integer",
				"description": "Timeout in milliseconds (optional)",
			},
			"with_escalated_permissions": map[string]interface{}{
				"type":        "boolean",
				"description": "Request to run without the sandbox; requires user approval",
			},
			"justification": map[string]interface{}{
				"type":        "string",
				"description": "Shown to the user when approval is requested",
			},
		},
		"required": []string{"command"},
	}
}

func (t *ShellTool) SandboxPreference() SandboxMode { return SandboxAuto }

func (t *ShellTool) EscalateOnFailure() bool { return true }

func (t *ShellTool) Execute(ctx context.Context, call *ToolCall) (*ToolResult, error) {
	argv := commandArgv(call.Parameters)
	if len(argv) == 0 {
		return &ToolResult{ID: call.ID, Error: "command is required"}, nil
	}

	cwd := GetStringParam(call.Parameters, "workdir", t.workingDir)
	escalated := GetBoolParam(call.Parameters, "with_escalated_permissions", false)
	justification := GetStringParam(call.Parameters, "justification", "")

	spec := exec.CommandSpec{
		Argv:                     argv,
		Cwd:                      cwd,
		TimeoutMs:                GetIntParam(call.Parameters, "timeout_ms", t.defaultTimeoutMs),
		WithEscalatedPermissions: escalated,
		Justification:            justification,
	}

	req := ApprovalRequest{
		CallID:        call.ID,
		Command:       argv,
		Cwd:           cwd,
		Justification: justification,
		Escalated:     escalated,
	}
	decision, err := t.auth.AuthorizeCommand(ctx, req)
	if err != nil {
		return nil, err
	}
	if decision.Kind == authz.DecisionDeny {
		t.log.Info("shell: denied: %s (%s)", SummarizeCommand(argv), decision.Reason)
		return &ToolResult{ID: call.ID, Error: describeDenial(decision)}, nil
	}

	boxType := decision.Sandbox
	res, runErr := t.runOnce(ctx, spec, boxType)
	if runErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &ToolResult{ID: call.ID, Error: runErr.Error()}, nil
	}

	if t.shouldOfferEscalation(res, boxType) {
		req.FailureOutput = tail(res.Stderr, tailLimit)
		ok, err := t.auth.RequestEscalation(ctx, req)
		if err != nil {
			return nil, err
		}
		if ok {
			t.log.Info("shell: retrying without sandbox: %s", SummarizeCommand(argv))
			retry, retryErr := t.runner.Run(ctx, spec, t.sink)
			if retryErr != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return &ToolResult{ID: call.ID, Error: retryErr.Error()}, nil
			}
			return t.buildResult(call, spec, retry, sandbox.SandboxNone, true), nil
		}
	}

	return t.buildResult(call, spec, res, boxType, false), nil
}

// runOnce transforms the spec for the chosen sandbox and executes it. A
// transform failure is surfaced as an error rather than running the command
// with weaker confinement.
func (t *ShellTool) runOnce(ctx context.Context, spec exec.CommandSpec, boxType sandbox.SandboxType) (*exec.RawExecResult, error) {
	run := spec
	if boxType != sandbox.SandboxNone {
		transformed, err := t.manager.Transform(spec, boxType, t.auth.SandboxPolicy())
		if err != nil {
			return nil, fmt.Errorf("sandbox unavailable: %w", err)
		}
		run = transformed
	}
	return t.runner.Run(ctx, run, t.sink)
}

// shouldOfferEscalation reports whether a failed attempt looks like the
// sandbox itself caused the failure. Unsandboxed attempts never escalate, so
// a command reruns outside the sandbox at most once.
func (t *ShellTool) shouldOfferEscalation(res *exec.RawExecResult, boxType sandbox.SandboxType) bool {
	if boxType == sandbox.SandboxNone || res.ExitCode == 0 || !t.EscalateOnFailure() {
		return false
	}
	return exec.JudgeFailure(true, res.ExitCode, res.Stderr).ShouldEscalate()
}

func (t *ShellTool) buildResult(call *ToolCall, spec exec.CommandSpec, res *exec.RawExecResult, boxType sandbox.SandboxType, escalated bool) *ToolResult {
	output := redact.Secrets(res.AggregatedOutput)
	if hits := redact.Found(res.AggregatedOutput); len(hits) > 0 {
		t.log.Warn("shell: redacted %s from command output", strings.Join(hits, ", "))
	}
	payload := map[string]interface{}{
		"output":    output,
		"exit_code": res.ExitCode,
	}
	if res.TimedOut {
		payload["timed_out"] = true
	}
	if res.Truncated {
		payload["truncated"] = true
	}
	return &ToolResult{
		ID:     call.ID,
		Result: payload,
		Metadata: &ExecutionMetadata{
			Command:    SummarizeCommand(spec.Argv),
			WorkingDir: spec.Cwd,
			ExitCode:   res.ExitCode,
			DurationMs: res.Duration.Milliseconds(),
			TimedOut:   res.TimedOut,
			Sandbox:    boxType.String(),
			Escalated:  escalated,
		},
	}
}

// commandArgv reads the command parameter. The schema asks for argv form; a
// plain string is tolerated and wrapped in a login shell the way models tend
// to hand commands over anyway.
func commandArgv(params map[string]interface{}) []string {
	if argv := GetStringSliceParam(params, "command"); len(argv) > 0 {
		return argv
	}
	if script := GetStringParam(params, "command", ""); strings.TrimSpace(script) != "" {
		return []string{"bash", "-lc", script}
	}
	return nil
}

func tail(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[len(s)-limit:]
}
