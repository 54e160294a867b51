//go:build linux

package sandbox

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"syscall"
)

// RunInit is the entry point of the Landlock re-exec helper. The parent
// spawns this binary with the sandbox-init subcommand; we apply the
// restrictions to ourselves and exec the real command, which inherits
// them. Returns the exit code to terminate with if exec never happens.
func RunInit(args []string) int {
	// Landlock restricts the calling thread; pin it and never unlock,
	// since this process either execs or exits.
	runtime.LockOSThread()

	hp, argv, err := parseInitArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "schleuse sandbox-init: %v\n", err)
		return 1
	}

	if err := applyLandlockPolicy(hp); err != nil {
		fmt.Fprintf(os.Stderr, "schleuse sandbox-init: %v\n", err)
		return 1
	}

	path, err := exec.LookPath(argv[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "schleuse sandbox-init: %s: command not found\n", argv[0])
		return 127
	}

	if err := syscall.Exec(path, argv, os.Environ()); err != nil {
		fmt.Fprintf(os.Stderr, "schleuse sandbox-init: exec %s: %v\n", path, err)
		return 126
	}
	return 0 // unreachable
}
