package tools

import (
	"context"
	"testing"
)

type staticTool struct {
	name     string
	parallel bool
}

func (s *staticTool) Name() string        { return s.name }
func (s *staticTool) Description() string { return "static test tool" }
func (s *staticTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}
func (s *staticTool) ParallelSafe() bool { return s.parallel }
func (s *staticTool) Execute(ctx context.Context, call *ToolCall) (*ToolResult, error) {
	return &ToolResult{ID: call.ID, Result: s.name}, nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&staticTool{name: "alpha"})

	tool, ok := reg.Get("alpha")
	if !ok {
		t.Fatalf("expected alpha to be registered")
	}
	if tool.Name() != "alpha" {
		t.Fatalf("expected alpha, got %s", tool.Name())
	}

	if _, ok := reg.Get("missing"); ok {
		t.Fatalf("expected missing tool to be absent")
	}
}

func TestRegistry_ListSorted(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&staticTool{name: "zeta"})
	reg.Register(&staticTool{name: "alpha"})
	reg.Register(&staticTool{name: "mid"})

	list := reg.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 tools, got %d", len(list))
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, tool := range list {
		if tool.Name() != want[i] {
			t.Fatalf("expected %s at %d, got %s", want[i], i, tool.Name())
		}
	}
}

func TestRegistry_ToJSONSchema(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&staticTool{name: "alpha"})

	schemas := reg.ToJSONSchema()
	if len(schemas) != 1 {
		t.Fatalf("expected 1 schema, got %d", len(schemas))
	}
	if schemas[0]["name"] != "alpha" {
		t.Fatalf("expected schema name alpha, got %v", schemas[0]["name"])
	}
	if _, ok := schemas[0]["parameters"].(map[string]interface{}); !ok {
		t.Fatalf("expected parameters map in schema")
	}
}

func TestGetStringParam(t *testing.T) {
	params := map[string]interface{}{"name": "value", "number": 42}

	if got := GetStringParam(params, "name", "fallback"); got != "value" {
		t.Fatalf("expected value, got %s", got)
	}
	if got := GetStringParam(params, "number", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback for non-string, got %s", got)
	}
	if got := GetStringParam(params, "missing", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback for missing, got %s", got)
	}
}

func TestGetIntParam(t *testing.T) {
	params := map[string]interface{}{
		"int":    7,
		"float":  float64(9), // JSON numbers decode to float64
		"string": "11",
	}

	if got := GetIntParam(params, "int", 0); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
	if got := GetIntParam(params, "float", 0); got != 9 {
		t.Fatalf("expected 9, got %d", got)
	}
	if got := GetIntParam(params, "string", 3); got != 3 {
		t.Fatalf("expected fallback for string, got %d", got)
	}
	if got := GetIntParam(params, "missing", 5); got != 5 {
		t.Fatalf("expected fallback for missing, got %d", got)
	}
}

func TestGetBoolParam(t *testing.T) {
	params := map[string]interface{}{"yes": true, "text": "true"}

	if !GetBoolParam(params, "yes", false) {
		t.Fatalf("expected true")
	}
	if GetBoolParam(params, "text", false) {
		t.Fatalf("expected fallback for non-bool")
	}
	if !GetBoolParam(params, "missing", true) {
		t.Fatalf("expected fallback for missing")
	}
}

func TestGetStringSliceParam(t *testing.T) {
	params := map[string]interface{}{
		"argv":  []interface{}{"git", "status", 3, "short"},
		"plain": "text",
	}

	got := GetStringSliceParam(params, "argv")
	want := []string{"git", "status", "short"}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	if got := GetStringSliceParam(params, "plain"); got != nil {
		t.Fatalf("expected nil for non-array, got %v", got)
	}
	if got := GetStringSliceParam(params, "missing"); got != nil {
		t.Fatalf("expected nil for missing, got %v", got)
	}
}

func TestCommandArgv(t *testing.T) {
	argv := commandArgv(map[string]interface{}{
		"command": []interface{}{"git", "status"},
	})
	if len(argv) != 2 || argv[0] != "git" || argv[1] != "status" {
		t.Fatalf("expected [git status], got %v", argv)
	}

	argv = commandArgv(map[string]interface{}{"command": "echo hi"})
	if len(argv) != 3 || argv[0] != "bash" || argv[1] != "-lc" || argv[2] != "echo hi" {
		t.Fatalf("expected bash -lc wrapper, got %v", argv)
	}

	if argv := commandArgv(map[string]interface{}{"command": "   "}); argv != nil {
		t.Fatalf("expected nil for blank command, got %v", argv)
	}
	if argv := commandArgv(map[string]interface{}{}); argv != nil {
		t.Fatalf("expected nil for missing command, got %v", argv)
	}
}
