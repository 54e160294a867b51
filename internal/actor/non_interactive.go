package actor

import (
	"context"
	"strings"

	"github.com/codefionn/schleuse/internal/authz"
	"github.com/codefionn/schleuse/internal/logger"
	"github.com/codefionn/schleuse/internal/tools"
)

// NonInteractiveOptions configures the headless prompter.
type NonInteractiveOptions struct {
	// DangerouslyAllowAll approves every prompt. For trusted automation
	// only.
	DangerouslyAllowAll bool
	// AllowedCommands are command-line prefixes that are pre-approved,
	// matched against the rendered command.
	AllowedCommands []string
	// AllowedPaths are directory prefixes patches may touch without a
	// human.
	AllowedPaths []string
}

// NonInteractivePrompter answers approval prompts from pre-configured rules
// instead of a human. Anything not covered by a rule is denied, which keeps
// unattended runs inside the configured policy.
type NonInteractivePrompter struct {
	opts NonInteractiveOptions
	log  *logger.Logger
}

func NewNonInteractivePrompter(opts NonInteractiveOptions, log *logger.Logger) *NonInteractivePrompter {
	if log == nil {
		log = logger.Global()
	}
	return &NonInteractivePrompter{opts: opts, log: log}
}

func (p *NonInteractivePrompter) Mode() string {
	return "non-interactive"
}

func (p *NonInteractivePrompter) Prompt(ctx context.Context, req tools.ApprovalRequest) (authz.ApprovalDecision, error) {
	if p.opts.DangerouslyAllowAll {
		p.log.Debug("non-interactive: auto-approved (allow-all)")
		return authz.Approved, nil
	}

	if len(req.Command) > 0 {
		rendered := tools.SummarizeCommand(req.Command)
		for _, prefix := range p.opts.AllowedCommands {
			if strings.HasPrefix(rendered, prefix) {
				p.log.Debug("non-interactive: command %q matches allowed prefix %q", rendered, prefix)
				return authz.Approved, nil
			}
		}
		p.log.Debug("non-interactive: command %q not pre-approved, denying", rendered)
		return authz.Denied, nil
	}

	if len(req.Paths) > 0 {
		if p.pathsAllowed(req.Paths) {
			p.log.Debug("non-interactive: patch paths pre-approved")
			return authz.Approved, nil
		}
		p.log.Debug("non-interactive: patch touches unapproved paths, denying")
		return authz.Denied, nil
	}

	return authz.Denied, nil
}

func (p *NonInteractivePrompter) pathsAllowed(paths []string) bool {
	if len(p.opts.AllowedPaths) == 0 {
		return false
	}
	for _, path := range paths {
		allowed := false
		for _, prefix := range p.opts.AllowedPaths {
			if strings.HasPrefix(path, prefix) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}
	return true
}
