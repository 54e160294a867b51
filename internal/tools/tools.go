// Package tools hosts the tool surface exposed to the model: each tool
// declares a JSON-schema parameter block, runs under the authorization
// engine and, where applicable, inside the platform sandbox.
package tools

import (
	"context"
	"sort"
	"sync"
)

// Tool is implemented by every runnable tool. Name and Parameters feed the
// schema advertised to the model; Execute performs the call. A non-nil error
// means the call produced nothing the model should see, e.g. the user
// aborted the task or the context was cancelled; tool-level failures go in
// ToolResult.Error instead.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, call *ToolCall) (*ToolResult, error)
}

// ParallelSafe marks tools that may run concurrently with other
// parallel-safe tools inside the same turn. Tools that do not implement it
// are treated as exclusive.
type ParallelSafe interface {
	ParallelSafe() bool
}

// SandboxMode states how a tool relates to the platform sandbox.
type SandboxMode int

const (
	// SandboxAuto defers to the authorization decision for each call.
	SandboxAuto SandboxMode = iota
	// SandboxForbid runs the tool in-process, never under the sandbox.
	SandboxForbid
)

// Sandboxable is implemented by tools whose work is a subprocess that can be
// confined. EscalateOnFailure reports whether a sandbox-attributable failure
// may be retried outside the sandbox after user approval.
type Sandboxable interface {
	SandboxPreference() SandboxMode
	EscalateOnFailure() bool
}

// ToolCall is a single invocation request.
type ToolCall struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`
}

// ToolResult carries the outcome of a call back to the model. Error is a
// tool-level failure the model should see; transport-level failures are
// returned as Go errors by the dispatcher instead.
type ToolResult struct {
	ID     string      `json:"id"`
	Result interface{} `json:"result"`
	Error  string      `json:"error,omitempty"`

	Metadata *ExecutionMetadata `json:"execution_metadata,omitempty"`
}

// ExecutionMetadata describes how a command-running tool actually executed.
type ExecutionMetadata struct {
	Command    string `json:"command,omitempty"`
	WorkingDir string `json:"working_dir,omitempty"`
	ExitCode   int    `json:"exit_code"`
	DurationMs int64  `json:"duration_ms"`
	TimedOut   bool   `json:"timed_out,omitempty"`
	Sandbox    string `json:"sandbox,omitempty"`
	// Escalated is set when the command reran outside the sandbox after a
	// sandboxed attempt failed and the user approved the retry.
	Escalated bool `json:"escalated,omitempty"`
}

// Registry holds the tools available to a session.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns the registered tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		list = append(list, tool)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })
	return list
}

// ToJSONSchema renders the registry as the tool declarations sent to the
// model provider.
func (r *Registry) ToJSONSchema() []map[string]interface{} {
	list := r.List()
	schemas := make([]map[string]interface{}, 0, len(list))
	for _, tool := range list {
		schemas = append(schemas, map[string]interface{}{
			"name":        tool.Name(),
			"description": tool.Description(),
			"parameters":  tool.Parameters(),
		})
	}
	return schemas
}

// GetStringParam extracts a string parameter with a default value.
func GetStringParam(params map[string]interface{}, key string, defaultVal string) string {
	if val, ok := params[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return defaultVal
}

// GetIntParam extracts an integer parameter with a default value. JSON
// numbers arrive as float64.
func GetIntParam(params map[string]interface{}, key string, defaultVal int) int {
	if val, ok := params[key]; ok {
		switch v := val.(type) {
		case int:
			return v
		case float64:
			return int(v)
		}
	}
	return defaultVal
}

// GetBoolParam extracts a boolean parameter with a default value.
func GetBoolParam(params map[string]interface{}, key string, defaultVal bool) bool {
	if val, ok := params[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return defaultVal
}

// GetStringSliceParam extracts a string-array parameter. JSON arrays arrive
// as []interface{}; entries that are not strings are skipped.
func GetStringSliceParam(params map[string]interface{}, key string) []string {
	val, ok := params[key]
	if !ok {
		return nil
	}
	items, ok := val.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if str, ok := item.(string); ok {
			out = append(out, str)
		}
	}
	return out
}
