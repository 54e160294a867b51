package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const ToolNameReadFile = "read_file"

const maxReadLines = 2000

// ReadFileTool reads workspace files. It never writes, so it is safe to run
// alongside other read-only tools in the same turn.
type ReadFileTool struct {
	workingDir string
}

func NewReadFileTool(workingDir string) *ReadFileTool {
	return &ReadFileTool{workingDir: workingDir}
}

func (t *ReadFileTool) Name() string {
	return ToolNameReadFile
}

func (t *ReadFileTool) Description() string {
	return "Read a file from the workspace. Can read the entire file or a specific line range. Maximum 2000 lines per read."
}

func (t *ReadFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path to the file to read (relative to the working directory)",
			},
			"from_line": map[string]interface{}{
				"type":        "integer",
				"description": "Starting line number (1-indexed, optional)",
			},
			"to_line": map[string]interface{}{
				"type":        "integer",
				"description": "Ending line number (1-indexed, optional)",
			},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) ParallelSafe() bool { return true }

func (t *ReadFileTool) Execute(ctx context.Context, call *ToolCall) (*ToolResult, error) {
	path := GetStringParam(call.Parameters, "path", "")
	if path == "" {
		return &ToolResult{ID: call.ID, Error: "path is required"}, nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(t.workingDir, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return &ToolResult{ID: call.ID, Error: fmt.Sprintf("error reading file: %v", err)}, nil
	}

	lines := strings.Split(string(data), "\n")
	fromLine := GetIntParam(call.Parameters, "from_line", 0)
	toLine := GetIntParam(call.Parameters, "to_line", 0)

	if fromLine > 0 {
		if fromLine > len(lines) {
			return &ToolResult{ID: call.ID, Error: fmt.Sprintf("from_line %d is past the end of the file (%d lines)", fromLine, len(lines))}, nil
		}
		if toLine <= 0 || toLine > len(lines) {
			toLine = len(lines)
		}
		if toLine < fromLine {
			return &ToolResult{ID: call.ID, Error: "to_line must not be smaller than from_line"}, nil
		}
		lines = lines[fromLine-1 : toLine]
	}

	truncated := false
	if len(lines) > maxReadLines {
		lines = lines[:maxReadLines]
		truncated = true
	}

	payload := map[string]interface{}{
		"content": strings.Join(lines, "\n"),
		"lines":   len(lines),
	}
	if truncated {
		payload["truncated"] = true
	}
	return &ToolResult{ID: call.ID, Result: payload}, nil
}
