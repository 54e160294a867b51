package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/codefionn/schleuse/internal/authz"
	"github.com/codefionn/schleuse/internal/tools"
)

// terminalPrompter asks the user on the controlling terminal. Prompts are
// serialized; the coordinator already queues requests but the mutex keeps a
// stray concurrent caller from interleaving reads.
type terminalPrompter struct {
	mu sync.Mutex
	in *bufio.Reader
}

func newTerminalPrompter() *terminalPrompter {
	return &terminalPrompter{in: bufio.NewReader(os.Stdin)}
}

func (p *terminalPrompter) Mode() string { return "terminal" }

func (p *terminalPrompter) Prompt(ctx context.Context, req tools.ApprovalRequest) (authz.ApprovalDecision, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case len(req.Command) > 0:
		fmt.Fprintf(os.Stderr, "\nCommand requires approval:\n  %s\n", tools.SummarizeCommand(req.Command))
	case len(req.Paths) > 0:
		fmt.Fprintf(os.Stderr, "\nPatch requires approval for:\n")
		for _, path := range req.Paths {
			fmt.Fprintf(os.Stderr, "  %s\n", path)
		}
	default:
		fmt.Fprintf(os.Stderr, "\nApproval requested.\n")
	}
	if req.Cwd != "" {
		fmt.Fprintf(os.Stderr, "  in %s\n", req.Cwd)
	}
	if req.Escalated {
		fmt.Fprintf(os.Stderr, "  The sandboxed attempt failed; approving reruns the command without the sandbox.\n")
		if req.FailureOutput != "" {
			fmt.Fprintf(os.Stderr, "  Failure output:\n%s\n", indent(req.FailureOutput, "    "))
		}
	}
	if req.Justification != "" {
		fmt.Fprintf(os.Stderr, "  Reason: %s\n", req.Justification)
	}
	fmt.Fprintf(os.Stderr, "Allow? [y]es / [s]ession / [n]o / [a]bort: ")

	type readResult struct {
		line string
		err  error
	}
	lines := make(chan readResult, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		lines <- readResult{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr)
		return authz.Denied, ctx.Err()
	case res := <-lines:
		if res.err != nil {
			// EOF on stdin means nobody is answering prompts.
			return authz.Denied, nil
		}
		return parseAnswer(res.line), nil
	}
}

func parseAnswer(line string) authz.ApprovalDecision {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return authz.Approved
	case "s", "session", "always":
		return authz.ApprovedForSession
	case "a", "abort", "q":
		return authz.Abort
	default:
		return authz.Denied
	}
}

func indent(s, prefix string) string {
	trimmed := strings.TrimRight(s, "\n")
	if trimmed == "" {
		return trimmed
	}
	return prefix + strings.ReplaceAll(trimmed, "\n", "\n"+prefix)
}
