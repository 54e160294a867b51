package sandbox

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/codefionn/schleuse/internal/exec"
	"github.com/codefionn/schleuse/internal/logger"
)

const seatbeltExecutable = "/usr/bin/sandbox-exec"

// InitSubcommand is the argv[1] value that switches the binary into the
// Landlock re-exec helper.
const InitSubcommand = "sandbox-init"

// Manager rewrites CommandSpecs so they run under the platform sandbox.
// It is immutable after construction; Transform never touches the
// filesystem, so results depend only on the spec and policy.
type Manager struct {
	sandboxType SandboxType
	helperPath  string // own executable, re-invoked as the Landlock helper
	baseEnv     []string
	tmpdir      string
	log         *logger.Logger
}

// NewManager creates a Manager enforcing with sandboxType. helperPath is
// the executable re-invoked for Landlock setup, normally os.Executable().
func NewManager(sandboxType SandboxType, helperPath string, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Global()
	}
	return &Manager{
		sandboxType: sandboxType,
		helperPath:  helperPath,
		baseEnv:     os.Environ(),
		tmpdir:      os.Getenv("TMPDIR"),
		log:         log.WithPrefix("sandbox"),
	}
}

// Type returns the sandbox mechanism this manager enforces with.
func (m *Manager) Type() SandboxType {
	return m.sandboxType
}

// Transform rewrites spec so it runs under sandboxType with the given
// policy. SandboxNone returns the spec unchanged. The returned spec has a
// fully materialized environment including the sandbox markers.
func (m *Manager) Transform(spec exec.CommandSpec, sandboxType SandboxType, policy Policy) (exec.CommandSpec, error) {
	if len(spec.Argv) == 0 {
		return spec, &TransformError{Type: sandboxType, Reason: "empty command"}
	}

	switch sandboxType {
	case SandboxNone:
		return spec, nil
	case SandboxMacosSeatbelt:
		return m.transformSeatbelt(spec, policy), nil
	case SandboxLinuxLandlock:
		return m.transformLandlock(spec, policy)
	default:
		return spec, &TransformError{Type: sandboxType, Reason: "unsupported sandbox type"}
	}
}

func (m *Manager) transformSeatbelt(spec exec.CommandSpec, policy Policy) exec.CommandSpec {
	roots := policy.WritableRootsWithCwd(spec.Cwd, m.tmpdir)
	profile, params := buildSeatbeltProfile(policy, roots)
	m.log.Debug("seatbelt transform: policy=%s writable_roots=%d", policy.Mode, len(roots))

	argv := make([]string, 0, len(spec.Argv)+len(params)*2+4)
	argv = append(argv, seatbeltExecutable, "-p", profile)
	for _, p := range params {
		argv = append(argv, "-D", p)
	}
	argv = append(argv, "--")
	argv = append(argv, spec.Argv...)

	out := spec
	out.Argv = argv
	out.Env = m.markedEnv(spec.Env, SandboxMacosSeatbelt, policy)
	return out
}

func (m *Manager) transformLandlock(spec exec.CommandSpec, policy Policy) (exec.CommandSpec, error) {
	if m.helperPath == "" {
		return spec, &TransformError{Type: SandboxLinuxLandlock, Reason: "no helper executable configured"}
	}

	hp := helperPolicy{
		AllowNetwork: policy.HasFullNetworkAccess(),
	}
	for _, root := range policy.WritableRootsWithCwd(spec.Cwd, m.tmpdir) {
		hp.WritableRoots = append(hp.WritableRoots, helperWritableRoot{
			Root:             root.Root,
			ReadOnlySubpaths: root.ReadOnlySubpaths,
		})
	}

	encoded, err := json.Marshal(hp)
	if err != nil {
		return spec, &TransformError{Type: SandboxLinuxLandlock, Reason: fmt.Sprintf("encode policy: %v", err)}
	}
	m.log.Debug("landlock transform: policy=%s writable_roots=%d", policy.Mode, len(hp.WritableRoots))

	argv := make([]string, 0, len(spec.Argv)+5)
	argv = append(argv, m.helperPath, InitSubcommand, "--policy", string(encoded), "--")
	argv = append(argv, spec.Argv...)

	out := spec
	out.Argv = argv
	out.Env = m.markedEnv(spec.Env, SandboxLinuxLandlock, policy)
	return out, nil
}

// markedEnv materializes the environment for a sandboxed attempt: the
// spec's env (or the inherited one), dynamic-linker injection variables
// stripped, plus the sandbox markers.
func (m *Manager) markedEnv(specEnv []string, sandboxType SandboxType, policy Policy) []string {
	base := specEnv
	if base == nil {
		base = m.baseEnv
	}

	env := sanitizeEnv(base)
	env = setEnvValue(env, EnvSandboxMarker, sandboxType.String())
	if !policy.HasFullNetworkAccess() {
		env = setEnvValue(env, EnvNetworkDisabledMarker, "1")
	}
	return env
}

// sanitizeEnv removes DYLD_* and LD_* variables. Both prefixes can inject
// dynamic libraries into the sandboxed process.
func sanitizeEnv(env []string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		if strings.HasPrefix(kv, "DYLD_") || strings.HasPrefix(kv, "LD_") {
			continue
		}
		out = append(out, kv)
	}
	return out
}

func setEnvValue(env []string, key, value string) []string {
	prefix := key + "="
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			continue
		}
		out = append(out, kv)
	}
	return append(out, prefix+value)
}

// helperPolicy is the JSON document handed to the Landlock re-exec
// helper on its command line.
type helperPolicy struct {
	WritableRoots []helperWritableRoot `json:"writable_roots,omitempty"`
	AllowNetwork  bool                 `json:"allow_network,omitempty"`
}

type helperWritableRoot struct {
	Root             string   `json:"root"`
	ReadOnlySubpaths []string `json:"read_only_subpaths,omitempty"`
}
