package vcs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func setupTestRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	runGit(t, dir, "init")
	runGit(t, dir, "config", "user.name", "Test User")
	runGit(t, dir, "config", "user.email", "test@example.com")
	return dir
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, output)
	}
}

// resolve normalizes symlinks so paths under /var on darwin compare equal.
func resolve(t *testing.T, path string) string {
	t.Helper()
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		t.Fatalf("EvalSymlinks(%s): %v", path, err)
	}
	return resolved
}

func TestRepositoryRootFromSubdirectory(t *testing.T) {
	repo := setupTestRepo(t)
	sub := filepath.Join(repo, "a", "b")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	r := NewResolver()
	root, err := r.RepositoryRoot(context.Background(), sub)
	if err != nil {
		t.Fatalf("RepositoryRoot: %v", err)
	}
	if resolve(t, root) != resolve(t, repo) {
		t.Errorf("root = %s, want %s", root, repo)
	}
}

func TestRepositoryRootOutsideRepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	r := NewResolver()
	if _, err := r.RepositoryRoot(context.Background(), dir); err == nil {
		t.Error("expected an error outside a repository")
	}
	// Workspace falls back to the directory itself.
	if got := r.Workspace(context.Background(), dir); got != dir {
		t.Errorf("Workspace = %s, want %s", got, dir)
	}
}

func TestWorkspaceCachesLookups(t *testing.T) {
	repo := setupTestRepo(t)
	r := NewResolver()
	ctx := context.Background()

	first := r.Workspace(ctx, repo)
	second := r.Workspace(ctx, repo)
	if first != second {
		t.Errorf("cached lookup differs: %s vs %s", first, second)
	}
	if len(r.roots) != 1 {
		t.Errorf("cache size = %d, want 1", len(r.roots))
	}
}
