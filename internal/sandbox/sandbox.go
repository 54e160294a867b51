// Package sandbox turns a command that should run under a filesystem
// sandbox into the concrete argv and environment that enforce it. The
// transformation is a pure rewrite; actual enforcement happens in the
// spawned process (sandbox-exec on macOS, a Landlock re-exec helper on
// Linux).
package sandbox

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// SandboxType identifies the enforcement mechanism for one attempt.
type SandboxType int

const (
	SandboxNone SandboxType = iota
	SandboxMacosSeatbelt
	SandboxLinuxLandlock
)

func (t SandboxType) String() string {
	switch t {
	case SandboxNone:
		return "none"
	case SandboxMacosSeatbelt:
		return "seatbelt"
	case SandboxLinuxLandlock:
		return "landlock"
	default:
		return "unknown"
	}
}

// Environment markers visible to sandboxed commands. Tools and scripts
// use them to detect that they are running restricted.
const (
	EnvSandboxMarker         = "SCHLEUSE_SANDBOX"
	EnvNetworkDisabledMarker = "SCHLEUSE_SANDBOX_NETWORK_DISABLED"
)

// PolicyMode selects how much the sandbox lets a command touch.
type PolicyMode int

const (
	// ModeDangerFullAccess disables sandboxing entirely.
	ModeDangerFullAccess PolicyMode = iota
	// ModeReadOnly permits reading the whole disk and nothing else.
	ModeReadOnly
	// ModeWorkspaceWrite additionally permits writing inside the
	// workspace and configured roots.
	ModeWorkspaceWrite
)

func (m PolicyMode) String() string {
	switch m {
	case ModeDangerFullAccess:
		return "danger-full-access"
	case ModeReadOnly:
		return "read-only"
	case ModeWorkspaceWrite:
		return "workspace-write"
	default:
		return "unknown"
	}
}

// Policy describes the sandbox rules a session runs under.
type Policy struct {
	Mode PolicyMode

	// WritableRoots lists extra directories writable in workspace-write
	// mode, in addition to the working directory and temp dirs.
	WritableRoots []string

	// NetworkAccess permits outbound network in workspace-write mode.
	NetworkAccess bool

	// ExcludeTmpdirEnvVar keeps $TMPDIR read-only in workspace-write mode.
	ExcludeTmpdirEnvVar bool

	// ExcludeSlashTmp keeps /tmp read-only in workspace-write mode.
	ExcludeSlashTmp bool

	// DenyWrite lists paths or doublestar glob patterns that stay
	// read-only even inside writable roots. Literal entries also become
	// enforcement-level carve-outs; glob entries apply to in-process
	// checks such as patch application.
	DenyWrite []string
}

// DangerFullAccess returns a policy that runs commands unrestricted.
func DangerFullAccess() Policy {
	return Policy{Mode: ModeDangerFullAccess}
}

// ReadOnly returns a policy that permits reads only.
func ReadOnly() Policy {
	return Policy{Mode: ModeReadOnly}
}

// WorkspaceWrite returns a policy that permits writes under the working
// directory, temp dirs, and the given extra roots.
func WorkspaceWrite(roots ...string) Policy {
	return Policy{Mode: ModeWorkspaceWrite, WritableRoots: roots}
}

// HasFullDiskWriteAccess reports whether the policy places no write
// restrictions at all.
func (p Policy) HasFullDiskWriteAccess() bool {
	return p.Mode == ModeDangerFullAccess
}

// HasFullNetworkAccess reports whether outbound network is unrestricted.
func (p Policy) HasFullNetworkAccess() bool {
	switch p.Mode {
	case ModeDangerFullAccess:
		return true
	case ModeWorkspaceWrite:
		return p.NetworkAccess
	default:
		return false
	}
}

// WritableRoot is one directory the sandbox may write under, minus the
// subpaths that stay read-only inside it.
type WritableRoot struct {
	Root             string
	ReadOnlySubpaths []string
}

// IsPathWritable reports whether path falls under the root and outside
// every read-only subpath. Paths are compared lexically; callers pass
// cleaned absolute paths.
func (w WritableRoot) IsPathWritable(path string) bool {
	if !isPathUnder(w.Root, path) {
		return false
	}
	for _, ro := range w.ReadOnlySubpaths {
		if isPathUnder(ro, path) {
			return false
		}
	}
	return true
}

// WritableRootsWithCwd expands the policy into the concrete writable
// roots for a command running in cwd. tmpdir is the value of $TMPDIR,
// passed in so the expansion stays deterministic. Only workspace-write
// mode yields any roots. Each root carves out its .git directory so
// sandboxed commands cannot corrupt repository state.
func (p Policy) WritableRootsWithCwd(cwd, tmpdir string) []WritableRoot {
	if p.Mode != ModeWorkspaceWrite {
		return nil
	}

	paths := make([]string, 0, len(p.WritableRoots)+3)
	if cwd != "" {
		paths = append(paths, cwd)
	}
	if !p.ExcludeSlashTmp {
		paths = append(paths, "/tmp")
	}
	if !p.ExcludeTmpdirEnvVar && tmpdir != "" {
		paths = append(paths, tmpdir)
	}
	paths = append(paths, p.WritableRoots...)

	seen := make(map[string]bool, len(paths))
	roots := make([]WritableRoot, 0, len(paths))
	for _, path := range paths {
		cleaned := filepath.Clean(path)
		if seen[cleaned] {
			continue
		}
		seen[cleaned] = true

		subpaths := []string{filepath.Join(cleaned, ".git")}
		for _, deny := range p.DenyWrite {
			if !hasGlobMeta(deny) && isPathUnder(cleaned, deny) {
				subpaths = append(subpaths, filepath.Clean(deny))
			}
		}
		roots = append(roots, WritableRoot{
			Root:             cleaned,
			ReadOnlySubpaths: subpaths,
		})
	}
	return roots
}

// IsPathWritable reports whether the policy lets a command running in
// cwd write to path. Glob deny patterns are honored here even though the
// OS-level sandboxes cannot express them.
func (p Policy) IsPathWritable(path, cwd, tmpdir string) bool {
	if p.HasFullDiskWriteAccess() {
		return true
	}
	path = filepath.Clean(path)
	for _, deny := range p.DenyWrite {
		if hasGlobMeta(deny) {
			if ok, err := doublestar.Match(deny, path); err == nil && ok {
				return false
			}
			continue
		}
		if isPathUnder(deny, path) {
			return false
		}
	}
	for _, root := range p.WritableRootsWithCwd(cwd, tmpdir) {
		if root.IsPathWritable(path) {
			return true
		}
	}
	return false
}

func hasGlobMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

func isPathUnder(root, path string) bool {
	root = filepath.Clean(root)
	path = filepath.Clean(path)
	if path == root {
		return true
	}
	if !strings.HasSuffix(root, string(filepath.Separator)) {
		root += string(filepath.Separator)
	}
	return strings.HasPrefix(path, root)
}

// TransformError reports that a command could not be rewritten for the
// requested sandbox type.
type TransformError struct {
	Type   SandboxType
	Reason string
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("cannot sandbox command with %s: %s", e.Type, e.Reason)
}
