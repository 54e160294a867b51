package sandbox

// PlatformSandbox returns the sandbox mechanism available on this host,
// or SandboxNone when commands cannot be confined here.
func PlatformSandbox() SandboxType {
	return platformSandbox()
}
