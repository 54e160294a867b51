package exec

import "github.com/codefionn/schleuse/internal/stringsearch"

// SandboxVerdict is the judgement on why a sandboxed attempt failed. It
// drives the single unsandboxed retry: only LikelySandbox failures are
// worth escalating.
type SandboxVerdict int

const (
	VerdictUnknown SandboxVerdict = iota
	VerdictLikelySandbox
	VerdictLikelyNotSandbox
)

func (v SandboxVerdict) String() string {
	switch v {
	case VerdictLikelySandbox:
		return "likely-sandbox"
	case VerdictLikelyNotSandbox:
		return "likely-not-sandbox"
	default:
		return "unknown"
	}
}

// ShouldEscalate reports whether the failure justifies offering an
// unsandboxed retry.
func (v SandboxVerdict) ShouldEscalate() bool {
	return v == VerdictLikelySandbox
}

// Stderr fragments that strongly suggest the sandbox blocked the command.
var denialHints = stringsearch.New(
	"operation not permitted",
	"permission denied",
	"read-only file system",
	"seccomp",
	"bad system call",
	"sandbox: deny",
	"not permitted by sandbox",
)

// Exit codes with a well-known meaning unrelated to sandboxing: usage
// errors, timeouts, missing commands, and the sysexits.h range.
func isKnownNonSandboxExit(exitCode int) bool {
	switch exitCode {
	case 2, TimeoutExitCode, 127:
		return true
	}
	if exitCode >= 64 && exitCode <= 78 {
		return true
	}
	return false
}

// Signals a process commonly dies from for reasons other than sandbox
// enforcement (shell-style 128+N exit codes).
func isKnownNonSandboxSignal(sig int) bool {
	switch sig {
	case 1, 2, 3, 9, 13, 15: // HUP, INT, QUIT, KILL, PIPE, TERM
		return true
	}
	return false
}

// JudgeFailure classifies a finished attempt. Attempts that did not run
// sandboxed are never the sandbox's fault. Exit 126 (found but not
// executable) is ambiguous: both sandboxes and ordinary permission
// problems produce it, so without a stderr hint it stays Unknown.
func JudgeFailure(sandboxed bool, exitCode int, stderr string) SandboxVerdict {
	if !sandboxed || exitCode == 0 {
		return VerdictLikelyNotSandbox
	}
	if exitCode == sigsysExitCode {
		return VerdictLikelySandbox
	}
	if stderrSuggestsDenial(stderr) {
		return VerdictLikelySandbox
	}
	if exitCode == 126 {
		return VerdictUnknown
	}
	if isKnownNonSandboxExit(exitCode) {
		return VerdictLikelyNotSandbox
	}
	if sig := exitCode - 128; sig > 0 && isKnownNonSandboxSignal(sig) {
		return VerdictLikelyNotSandbox
	}
	return VerdictLikelySandbox
}

func stderrSuggestsDenial(stderr string) bool {
	return denialHints.Contains(stderr)
}
