//go:build windows

package exec

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

const killSignal = syscall.SIGKILL

// No SIGSYS on Windows; pick a value no exit code matches.
const sigsysExitCode = -1

func configureProcessGroup(cmd *exec.Cmd) {
	// Process groups are handled differently on Windows.
	// We leave the command configuration untouched.
	_ = cmd
}

func processGroupID(cmd *exec.Cmd) int {
	return 0
}

func signalProcessGroup(pgid int, sig syscall.Signal) error {
	_ = pgid
	_ = sig
	return syscall.EWINDOWS
}

func isIgnorableSignalError(err error) bool {
	return errors.Is(err, os.ErrProcessDone)
}

func exitCodeFromState(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	return state.ExitCode()
}
