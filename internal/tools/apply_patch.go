package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/codefionn/schleuse/internal/authz"
	"github.com/codefionn/schleuse/internal/logger"
)

const ToolNameApplyPatch = "apply_patch"

// patchChange is one file touched by a patch.
type patchChange struct {
	fd   *diff.FileDiff
	path string // absolute
	kind string // "add" | "update" | "delete"
}

// ApplyPatchTool applies a unified diff to the workspace. It never spawns a
// process; confinement comes from checking every touched path against the
// sandbox policy's writable roots before anything is written.
type ApplyPatchTool struct {
	auth       *Authorizer
	workingDir string
	log        *logger.Logger
}

func NewApplyPatchTool(auth *Authorizer, workingDir string, log *logger.Logger) *ApplyPatchTool {
	if log == nil {
		log = logger.Global()
	}
	return &ApplyPatchTool{auth: auth, workingDir: workingDir, log: log}
}

func (t *ApplyPatchTool) Name() string {
	return ToolNameApplyPatch
}

func (t *ApplyPatchTool) Description() string {
	return "Apply a unified diff to files in the workspace. Creates, updates and deletes files; writes outside the writable roots require user approval."
}

func (t *ApplyPatchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"patch": map[string]interface{}{
				"type":        "string",
				"description": "Unified diff with --- / +++ file headers; may cover multiple files",
			},
		},
		"required": []string{"patch"},
	}
}

func (t *ApplyPatchTool) SandboxPreference() SandboxMode { return SandboxForbid }

func (t *ApplyPatchTool) EscalateOnFailure() bool { return false }

func (t *ApplyPatchTool) Execute(ctx context.Context, call *ToolCall) (*ToolResult, error) {
	patch := GetStringParam(call.Parameters, "patch", "")
	if strings.TrimSpace(patch) == "" {
		return &ToolResult{ID: call.ID, Error: "patch is required"}, nil
	}

	changes, err := t.parsePatch(patch)
	if err != nil {
		return &ToolResult{ID: call.ID, Error: err.Error()}, nil
	}

	paths := make([]string, 0, len(changes))
	for _, c := range changes {
		paths = append(paths, c.path)
	}
	decision, err := t.auth.AuthorizePatch(ctx, ApprovalRequest{
		CallID: call.ID,
		Paths:  paths,
		Cwd:    t.workingDir,
	})
	if err != nil {
		return nil, err
	}
	if decision.Kind == authz.DecisionDeny {
		t.log.Info("apply_patch: denied: %s", decision.Reason)
		return &ToolResult{ID: call.ID, Error: describeDenial(decision)}, nil
	}

	applied := make([]map[string]interface{}, 0, len(changes))
	for _, c := range changes {
		if err := t.applyChange(c); err != nil {
			return &ToolResult{ID: call.ID, Error: fmt.Sprintf("%s: %v", c.path, err)}, nil
		}
		applied = append(applied, map[string]interface{}{
			"path":   t.displayPath(c.path),
			"action": c.kind,
		})
	}

	t.log.Info("apply_patch: applied %d file(s)", len(applied))
	return &ToolResult{
		ID: call.ID,
		Result: map[string]interface{}{
			"files": applied,
		},
	}, nil
}

// parsePatch parses the diff and resolves each file's target path against
// the working directory.
func (t *ApplyPatchTool) parsePatch(patch string) ([]patchChange, error) {
	fileDiffs, err := diff.ParseMultiFileDiff([]byte(patch))
	if err != nil {
		return nil, fmt.Errorf("failed to parse unified diff: %w", err)
	}
	if len(fileDiffs) == 0 {
		return nil, fmt.Errorf("patch contains no file changes")
	}

	changes := make([]patchChange, 0, len(fileDiffs))
	for _, fd := range fileDiffs {
		orig := stripDiffPrefix(fd.OrigName)
		dest := stripDiffPrefix(fd.NewName)

		c := patchChange{fd: fd, kind: "update"}
		switch {
		case dest == "/dev/null":
			c.kind = "delete"
			c.path = t.resolve(orig)
		case orig == "/dev/null":
			c.kind = "add"
			c.path = t.resolve(dest)
		default:
			c.path = t.resolve(dest)
		}
		if c.path == "" {
			return nil, fmt.Errorf("patch entry has no usable file name (%q -> %q)", fd.OrigName, fd.NewName)
		}
		changes = append(changes, c)
	}
	return changes, nil
}

func (t *ApplyPatchTool) applyChange(c patchChange) error {
	switch c.kind {
	case "delete":
		return os.Remove(c.path)
	case "add":
		content := addedLines(c.fd)
		if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
			return err
		}
		return os.WriteFile(c.path, []byte(content), 0o644)
	default:
		data, err := os.ReadFile(c.path)
		if err != nil {
			return err
		}
		updated, err := applyFileDiff(string(data), c.fd)
		if err != nil {
			return err
		}
		return os.WriteFile(c.path, []byte(updated), 0o644)
	}
}

func (t *ApplyPatchTool) resolve(name string) string {
	if name == "" || name == "/dev/null" {
		return ""
	}
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(t.workingDir, name)
}

func (t *ApplyPatchTool) displayPath(abs string) string {
	if rel, err := filepath.Rel(t.workingDir, abs); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return abs
}

// stripDiffPrefix removes the conventional a/ and b/ prefixes from diff file
// headers.
func stripDiffPrefix(name string) string {
	if strings.HasPrefix(name, "a/") || strings.HasPrefix(name, "b/") {
		return name[2:]
	}
	return name
}

// addedLines reconstructs a new file's content from its hunks.
func addedLines(fd *diff.FileDiff) string {
	var lines []string
	for _, hunk := range fd.Hunks {
		for _, line := range strings.Split(string(hunk.Body), "\n") {
			if len(line) > 0 && line[0] == '+' {
				lines = append(lines, line[1:])
			}
		}
	}
	return strings.Join(lines, "\n")
}

// applyFileDiff replays a parsed file diff against the original content,
// hunk by hunk. Context lines are taken from the original, deletions skip
// it, additions come from the hunk.
func applyFileDiff(original string, fd *diff.FileDiff) (string, error) {
	originalLines := strings.Split(original, "\n")
	result := make([]string, 0, len(originalLines))
	currentOrigLine := 0

	for _, hunk := range fd.Hunks {
		hunkStartLine := int(hunk.OrigStartLine) - 1
		if hunkStartLine < currentOrigLine {
			return "", fmt.Errorf("hunks overlap at line %d", hunk.OrigStartLine)
		}
		for currentOrigLine < hunkStartLine && currentOrigLine < len(originalLines) {
			result = append(result, originalLines[currentOrigLine])
			currentOrigLine++
		}

		for _, line := range strings.Split(string(hunk.Body), "\n") {
			if len(line) == 0 {
				continue
			}
			switch line[0] {
			case ' ':
				if currentOrigLine < len(originalLines) {
					result = append(result, originalLines[currentOrigLine])
					currentOrigLine++
				}
			case '-':
				if currentOrigLine < len(originalLines) {
					currentOrigLine++
				}
			case '+':
				result = append(result, line[1:])
			}
		}
	}

	for currentOrigLine < len(originalLines) {
		result = append(result, originalLines[currentOrigLine])
		currentOrigLine++
	}

	return strings.Join(result, "\n"), nil
}
