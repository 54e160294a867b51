//go:build linux

package sandbox

import (
	llsys "github.com/landlock-lsm/go-landlock/landlock/syscall"
)

func platformSandbox() SandboxType {
	// Landlock needs kernel 5.13+ with the LSM enabled; the ABI version
	// probe answers without creating a ruleset.
	if v, err := llsys.LandlockGetABIVersion(); err != nil || v < 1 {
		return SandboxNone
	}
	return SandboxLinuxLandlock
}
