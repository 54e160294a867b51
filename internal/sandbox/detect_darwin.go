//go:build darwin

package sandbox

import "os"

func platformSandbox() SandboxType {
	// sandbox-exec ships with macOS, but probe anyway so a stripped-down
	// system degrades to no sandbox instead of failing every command.
	if _, err := os.Stat(seatbeltExecutable); err != nil {
		return SandboxNone
	}
	return SandboxMacosSeatbelt
}
