package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/codefionn/schleuse/internal/authz"
	"github.com/codefionn/schleuse/internal/sandbox"
)

func newPatchFixture(t *testing.T, approval authz.ApprovalPolicy, policy sandbox.Policy, approver Approver) (*ApplyPatchTool, string) {
	t.Helper()
	workDir := t.TempDir()
	store := authz.NewSessionStore(workDir, policy, nil)
	auth := NewAuthorizer(AuthorizerConfig{
		Engine:    authz.NewEngine(nil, sandbox.SandboxNone, nil),
		Approvals: store,
		Approver:  approver,
		Approval:  approval,
		Sandbox:   policy,
	})
	return NewApplyPatchTool(auth, workDir, nil), workDir
}

func patchCall(patch string) *ToolCall {
	return &ToolCall{
		ID:         "patch-1",
		Name:       ToolNameApplyPatch,
		Parameters: map[string]interface{}{"patch": patch},
	}
}

func TestApplyPatchTool_UpdatesFile(t *testing.T) {
	tool, workDir := newPatchFixture(t, authz.ApprovalNever, sandbox.WorkspaceWrite(), nil)

	target := filepath.Join(workDir, "greeting.txt")
	if err := os.WriteFile(target, []byte("hello\nworld\nbye\n"), 0o644); err != nil {
		t.Fatalf("seeding file: %v", err)
	}

	patch := `--- a/greeting.txt
+++ b/greeting.txt
@@ -1,3 +1,3 @@
 hello
-world
+there
 bye
`
	res, err := tool.Execute(context.Background(), patchCall(patch))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Error != "" {
		t.Fatalf("unexpected tool error: %s", res.Error)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("reading patched file: %v", err)
	}
	if string(data) != "hello\nthere\nbye\n" {
		t.Fatalf("unexpected content after patch: %q", string(data))
	}
}

func TestApplyPatchTool_AddsAndDeletesFiles(t *testing.T) {
	tool, workDir := newPatchFixture(t, authz.ApprovalNever, sandbox.WorkspaceWrite(), nil)

	stale := filepath.Join(workDir, "old.txt")
	if err := os.WriteFile(stale, []byte("stale\ndata\n"), 0o644); err != nil {
		t.Fatalf("seeding file: %v", err)
	}

	patch := `--- /dev/null
+++ b/notes/new.txt
@@ -0,0 +1,2 @@
+alpha
+beta
--- a/old.txt
+++ /dev/null
@@ -1,2 +0,0 @@
-stale
-data
`
	res, err := tool.Execute(context.Background(), patchCall(patch))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Error != "" {
		t.Fatalf("unexpected tool error: %s", res.Error)
	}

	created, err := os.ReadFile(filepath.Join(workDir, "notes", "new.txt"))
	if err != nil {
		t.Fatalf("reading created file: %v", err)
	}
	if string(created) != "alpha\nbeta" {
		t.Fatalf("unexpected new file content: %q", string(created))
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("expected old.txt to be deleted, stat err=%v", err)
	}

	payload := res.Result.(map[string]interface{})
	files := payload["files"].([]map[string]interface{})
	if len(files) != 2 {
		t.Fatalf("expected 2 file entries, got %d", len(files))
	}
	if files[0]["action"] != "add" || files[1]["action"] != "delete" {
		t.Fatalf("unexpected actions: %v", files)
	}
}

func TestApplyPatchTool_DeniedOutsideWritableRoots(t *testing.T) {
	// A read-only sandbox policy has no writable roots, so under the never
	// policy every patch is rejected outright.
	tool, workDir := newPatchFixture(t, authz.ApprovalNever, sandbox.ReadOnly(), nil)

	target := filepath.Join(workDir, "greeting.txt")
	if err := os.WriteFile(target, []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("seeding file: %v", err)
	}

	patch := `--- a/greeting.txt
+++ b/greeting.txt
@@ -1 +1 @@
-hello
+goodbye
`
	res, err := tool.Execute(context.Background(), patchCall(patch))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.Error, "rejected by user approval settings") {
		t.Fatalf("expected policy denial, got %q", res.Error)
	}

	data, _ := os.ReadFile(target)
	if string(data) != "hello\n" {
		t.Fatalf("denied patch must not modify the file, got %q", string(data))
	}
}

func TestApplyPatchTool_PromptsThenApplies(t *testing.T) {
	approver := &scriptedApprover{answers: []authz.ApprovalDecision{authz.Approved}}
	tool, workDir := newPatchFixture(t, authz.ApprovalOnRequest, sandbox.ReadOnly(), approver)

	target := filepath.Join(workDir, "greeting.txt")
	if err := os.WriteFile(target, []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("seeding file: %v", err)
	}

	patch := `--- a/greeting.txt
+++ b/greeting.txt
@@ -1 +1 @@
-hello
+goodbye
`
	res, err := tool.Execute(context.Background(), patchCall(patch))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Error != "" {
		t.Fatalf("unexpected tool error: %s", res.Error)
	}

	if len(approver.requests) != 1 {
		t.Fatalf("expected one prompt, got %d", len(approver.requests))
	}
	if len(approver.requests[0].Paths) != 1 || approver.requests[0].Paths[0] != target {
		t.Fatalf("prompt should carry the touched path, got %v", approver.requests[0].Paths)
	}

	data, _ := os.ReadFile(target)
	if string(data) != "goodbye\n" {
		t.Fatalf("expected patched content, got %q", string(data))
	}
}

func TestApplyPatchTool_RejectsMalformedPatch(t *testing.T) {
	tool, _ := newPatchFixture(t, authz.ApprovalNever, sandbox.WorkspaceWrite(), nil)

	res, err := tool.Execute(context.Background(), patchCall("this is not a diff"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Error == "" {
		t.Fatalf("expected a parse failure")
	}

	res, err = tool.Execute(context.Background(), patchCall("   "))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Error != "patch is required" {
		t.Fatalf("unexpected error for blank patch: %q", res.Error)
	}
}

func TestApplyFileDiff_RejectsOverlappingHunks(t *testing.T) {
	fd := &diff.FileDiff{
		Hunks: []*diff.Hunk{
			{OrigStartLine: 3, Body: []byte(" c\n-d\n+D\n")},
			{OrigStartLine: 1, Body: []byte(" a\n-b\n+B\n")},
		},
	}
	if _, err := applyFileDiff("a\nb\nc\nd\n", fd); err == nil {
		t.Fatalf("expected overlap error")
	}
}
