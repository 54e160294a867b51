//go:build !darwin && !linux

package sandbox

func platformSandbox() SandboxType {
	return SandboxNone
}
