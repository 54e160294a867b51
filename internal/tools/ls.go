package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/codefionn/schleuse/internal/fs"
)

const ToolNameLs = "ls"

// LsTool lists directory contents. Read-only, parallel-safe.
type LsTool struct {
	workingDir string
}

func NewLsTool(workingDir string) *LsTool {
	return &LsTool{workingDir: workingDir}
}

func (t *LsTool) Name() string {
	return ToolNameLs
}

func (t *LsTool) Description() string {
	return "List directory contents with file sizes. Directories are suffixed with a slash; gitignored entries are skipped unless all is set."
}

func (t *LsTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Directory path to list (optional, defaults to the working directory)",
			},
			"all": map[string]interface{}{
				"type":        "boolean",
				"description": "Include hidden and gitignored files",
			},
		},
	}
}

func (t *LsTool) ParallelSafe() bool { return true }

func (t *LsTool) Execute(ctx context.Context, call *ToolCall) (*ToolResult, error) {
	path := GetStringParam(call.Parameters, "path", "")
	if path == "" {
		path = t.workingDir
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(t.workingDir, path)
	}
	all := GetBoolParam(call.Parameters, "all", false)

	entries, err := os.ReadDir(path)
	if err != nil {
		return &ToolResult{ID: call.ID, Error: fmt.Sprintf("error listing directory: %v", err)}, nil
	}

	var ignore *fs.Ignore
	if !all {
		ignore = fs.LoadIgnore(t.workingDir, path)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !all {
			if strings.HasPrefix(name, ".") {
				continue
			}
			if ignore.Ignored(filepath.Join(path, name), entry.IsDir()) {
				continue
			}
		}
		if entry.IsDir() {
			names = append(names, name+"/")
			continue
		}
		if info, err := entry.Info(); err == nil {
			names = append(names, fmt.Sprintf("%s (%d bytes)", name, info.Size()))
		} else {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	return &ToolResult{
		ID: call.ID,
		Result: map[string]interface{}{
			"path":    path,
			"entries": names,
		},
	}, nil
}
