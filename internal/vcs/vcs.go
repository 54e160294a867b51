// Package vcs resolves the workspace a directory belongs to. Approvals
// persisted for a workspace should apply across the whole repository, not
// just the directory the tool happened to start in.
package vcs

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// Resolver finds repository roots. Lookups are cached per directory; a
// directory does not move between repositories within one process run.
type Resolver struct {
	mu    sync.Mutex
	roots map[string]string
}

func NewResolver() *Resolver {
	return &Resolver{roots: make(map[string]string)}
}

// RepositoryRoot returns the root of the git repository containing dir.
// Worktrees and submodules resolve to their own checkout root, which is
// what approval scoping wants.
func (r *Resolver) RepositoryRoot(ctx context.Context, dir string) (string, error) {
	r.mu.Lock()
	if root, ok := r.roots[dir]; ok {
		r.mu.Unlock()
		if root == "" {
			return "", fmt.Errorf("%s is not in a git repository", dir)
		}
		return root, nil
	}
	r.mu.Unlock()

	cmd := exec.CommandContext(ctx, "git", "-C", dir, "rev-parse", "--show-toplevel")
	output, err := cmd.Output()

	root := ""
	if err == nil {
		root = strings.TrimSpace(string(output))
	}
	r.mu.Lock()
	r.roots[dir] = root
	r.mu.Unlock()

	if root == "" {
		return "", fmt.Errorf("%s is not in a git repository", dir)
	}
	return root, nil
}

// Workspace returns the repository root containing dir, or dir itself when
// dir is outside any repository or git is not installed. The result is the
// key persisted approvals are stored under.
func (r *Resolver) Workspace(ctx context.Context, dir string) string {
	root, err := r.RepositoryRoot(ctx, dir)
	if err != nil {
		return dir
	}
	return root
}
