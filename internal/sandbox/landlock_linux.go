//go:build linux

package sandbox

import (
	"fmt"
	"os"

	landlock "github.com/landlock-lsm/go-landlock/landlock"
)

// applyLandlockPolicy restricts the calling process according to the
// helper policy. Landlock rules only ever grant access: the whole tree
// is added read-only first and writable roots are layered on top.
// Read-only subpaths inside a writable root cannot be carved back out,
// so .git protection inside writable roots is macOS-only.
func applyLandlockPolicy(hp helperPolicy) error {
	rules := []landlock.Rule{landlock.RODirs("/")}

	for _, root := range hp.WritableRoots {
		info, err := os.Stat(root.Root)
		if err != nil {
			// A missing root grants nothing; skip it instead of failing
			// the whole ruleset.
			continue
		}
		if info.IsDir() {
			rules = append(rules, landlock.RWDirs(root.Root))
		} else {
			rules = append(rules, landlock.RWFiles(root.Root))
		}
	}

	if err := landlock.V6.BestEffort().RestrictPaths(rules...); err != nil {
		return fmt.Errorf("landlock restrict paths: %w", err)
	}

	if !hp.AllowNetwork {
		// Handling the net access rights with zero grants blocks all TCP
		// bind/connect on ABI v4+ kernels; older kernels degrade to
		// unrestricted network under best effort.
		if err := landlock.V6.BestEffort().RestrictNet(); err != nil {
			return fmt.Errorf("landlock restrict net: %w", err)
		}
	}

	return nil
}
