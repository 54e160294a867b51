//go:build !linux

package sandbox

import (
	"fmt"
	"os"
)

// RunInit only has work to do on Linux; elsewhere the sandbox is either
// seatbelt (no helper involved) or absent.
func RunInit(args []string) int {
	_ = args
	fmt.Fprintln(os.Stderr, "schleuse sandbox-init: only supported on Linux")
	return 1
}
