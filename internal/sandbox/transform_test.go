package sandbox

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/codefionn/schleuse/internal/exec"
	"github.com/codefionn/schleuse/internal/logger"
)

func testManager(t *testing.T, sandboxType SandboxType, helperPath string) *Manager {
	t.Helper()
	return &Manager{
		sandboxType: sandboxType,
		helperPath:  helperPath,
		baseEnv:     []string{"PATH=/usr/bin", "HOME=/home/u", "DYLD_INSERT_LIBRARIES=/evil.dylib", "LD_PRELOAD=/evil.so"},
		tmpdir:      "/var/tmpdir",
		log:         logger.Global(),
	}
}

func envValue(env []string, key string) (string, bool) {
	prefix := key + "="
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			return strings.TrimPrefix(kv, prefix), true
		}
	}
	return "", false
}

func TestTransformNonePassesThrough(t *testing.T) {
	m := testManager(t, SandboxNone, "")
	spec := exec.CommandSpec{Argv: []string{"ls", "-la"}, Cwd: "/work"}

	out, err := m.Transform(spec, SandboxNone, ReadOnly())
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if len(out.Argv) != 2 || out.Argv[0] != "ls" {
		t.Errorf("argv changed: %v", out.Argv)
	}
	if out.Env != nil {
		t.Errorf("env should stay untouched for SandboxNone, got %v", out.Env)
	}
}

func TestTransformEmptyArgv(t *testing.T) {
	m := testManager(t, SandboxMacosSeatbelt, "")
	_, err := m.Transform(exec.CommandSpec{}, SandboxMacosSeatbelt, ReadOnly())

	var terr *TransformError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want TransformError", err)
	}
}

func TestTransformSeatbelt(t *testing.T) {
	m := testManager(t, SandboxMacosSeatbelt, "")
	spec := exec.CommandSpec{Argv: []string{"cargo", "build"}, Cwd: "/work"}

	out, err := m.Transform(spec, SandboxMacosSeatbelt, WorkspaceWrite())
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}

	if out.Argv[0] != seatbeltExecutable || out.Argv[1] != "-p" {
		t.Fatalf("argv prefix = %v", out.Argv[:2])
	}
	profile := out.Argv[2]
	if !strings.Contains(profile, "(version 1)") || !strings.Contains(profile, "(deny default)") {
		t.Errorf("profile missing base policy:\n%s", profile)
	}

	foundRootParam := false
	sawSeparator := false
	for i, arg := range out.Argv {
		if arg == "-D" && i+1 < len(out.Argv) && strings.HasPrefix(out.Argv[i+1], "WRITABLE_ROOT_0=") {
			foundRootParam = true
		}
		if arg == "--" {
			sawSeparator = true
			rest := out.Argv[i+1:]
			if len(rest) != 2 || rest[0] != "cargo" || rest[1] != "build" {
				t.Errorf("command after separator = %v", rest)
			}
			break
		}
	}
	if !foundRootParam {
		t.Errorf("missing WRITABLE_ROOT_0 parameter in argv: %v", out.Argv)
	}
	if !sawSeparator {
		t.Errorf("missing -- separator in argv: %v", out.Argv)
	}

	if got, ok := envValue(out.Env, EnvSandboxMarker); !ok || got != "seatbelt" {
		t.Errorf("%s = %q (present=%v), want seatbelt", EnvSandboxMarker, got, ok)
	}
	if _, ok := envValue(out.Env, EnvNetworkDisabledMarker); !ok {
		t.Errorf("network-disabled marker missing for workspace-write without network")
	}
	for _, kv := range out.Env {
		if strings.HasPrefix(kv, "DYLD_") || strings.HasPrefix(kv, "LD_") {
			t.Errorf("dynamic linker variable survived: %s", kv)
		}
	}
}

func TestTransformSeatbeltNetworkMarker(t *testing.T) {
	m := testManager(t, SandboxMacosSeatbelt, "")
	spec := exec.CommandSpec{Argv: []string{"curl", "example.com"}, Cwd: "/work"}

	policy := Policy{Mode: ModeWorkspaceWrite, NetworkAccess: true}
	out, err := m.Transform(spec, SandboxMacosSeatbelt, policy)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if _, ok := envValue(out.Env, EnvNetworkDisabledMarker); ok {
		t.Errorf("network marker set even though network access granted")
	}
	if !strings.Contains(out.Argv[2], "(allow network-outbound)") {
		t.Errorf("profile missing network grant:\n%s", out.Argv[2])
	}
}

func TestTransformLandlock(t *testing.T) {
	m := testManager(t, SandboxLinuxLandlock, "/usr/local/bin/schleuse")
	spec := exec.CommandSpec{Argv: []string{"make", "test"}, Cwd: "/work"}

	out, err := m.Transform(spec, SandboxLinuxLandlock, WorkspaceWrite("/data"))
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}

	if out.Argv[0] != "/usr/local/bin/schleuse" || out.Argv[1] != InitSubcommand {
		t.Fatalf("argv prefix = %v", out.Argv[:2])
	}
	if out.Argv[2] != "--policy" {
		t.Fatalf("argv[2] = %q, want --policy", out.Argv[2])
	}

	var hp helperPolicy
	if err := json.Unmarshal([]byte(out.Argv[3]), &hp); err != nil {
		t.Fatalf("policy is not valid JSON: %v", err)
	}
	paths := make([]string, 0, len(hp.WritableRoots))
	for _, r := range hp.WritableRoots {
		paths = append(paths, r.Root)
	}
	if len(paths) != 4 {
		t.Errorf("writable roots = %v, want cwd+/tmp+tmpdir+/data", paths)
	}
	if hp.AllowNetwork {
		t.Errorf("network should be disabled for default workspace-write")
	}

	if out.Argv[4] != "--" || out.Argv[5] != "make" {
		t.Errorf("command tail = %v", out.Argv[4:])
	}
	if got, ok := envValue(out.Env, EnvSandboxMarker); !ok || got != "landlock" {
		t.Errorf("%s = %q (present=%v), want landlock", EnvSandboxMarker, got, ok)
	}
}

func TestTransformLandlockNoHelper(t *testing.T) {
	m := testManager(t, SandboxLinuxLandlock, "")
	spec := exec.CommandSpec{Argv: []string{"make"}, Cwd: "/work"}

	_, err := m.Transform(spec, SandboxLinuxLandlock, ReadOnly())
	var terr *TransformError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want TransformError", err)
	}
	if terr.Type != SandboxLinuxLandlock {
		t.Errorf("TransformError.Type = %v, want landlock", terr.Type)
	}
}

func TestParseInitArgs(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		hp, argv, err := parseInitArgs([]string{
			"--policy", `{"writable_roots":[{"root":"/work"}]}`, "--", "ls", "-la",
		})
		if err != nil {
			t.Fatalf("parseInitArgs failed: %v", err)
		}
		if len(hp.WritableRoots) != 1 || hp.WritableRoots[0].Root != "/work" {
			t.Errorf("policy = %+v", hp)
		}
		if len(argv) != 2 || argv[0] != "ls" {
			t.Errorf("argv = %v", argv)
		}
	})

	t.Run("missing policy flag", func(t *testing.T) {
		if _, _, err := parseInitArgs([]string{"--", "ls"}); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("missing separator", func(t *testing.T) {
		if _, _, err := parseInitArgs([]string{"--policy", "{}", "ls", "-la"}); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("bad json", func(t *testing.T) {
		if _, _, err := parseInitArgs([]string{"--policy", "{", "--", "ls"}); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("no command", func(t *testing.T) {
		if _, _, err := parseInitArgs([]string{"--policy", "{}", "--"}); err == nil {
			t.Fatal("expected error")
		}
	})
}
