//go:build !windows

package exec

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

const killSignal = syscall.SIGKILL

// sigsysExitCode is the shell-style exit code of a process killed by
// SIGSYS, which seccomp filters deliver on a blocked syscall.
const sigsysExitCode = 128 + int(syscall.SIGSYS)

// configureProcessGroup ensures the command runs in its own process group
// so that signals reach the entire tree (parent + children).
func configureProcessGroup(cmd *exec.Cmd) {
	if cmd == nil {
		return
	}
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

func processGroupID(cmd *exec.Cmd) int {
	if cmd == nil || cmd.Process == nil {
		return 0
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		return 0
	}
	return pgid
}

func signalProcessGroup(pgid int, sig syscall.Signal) error {
	if pgid <= 0 {
		return errors.New("invalid process group id")
	}
	return syscall.Kill(-pgid, sig)
}

func isIgnorableSignalError(err error) bool {
	return errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH)
}

// exitCodeFromState converts a wait status into a shell-style exit code,
// mapping a fatal signal N to 128+N.
func exitCodeFromState(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return state.ExitCode()
}
