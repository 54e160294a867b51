package sandbox

import (
	"encoding/json"
	"errors"
	"fmt"
)

// parseInitArgs splits the helper's arguments into the policy document
// and the command to exec. The expected shape is
//
//	--policy <json> -- <argv...>
func parseInitArgs(args []string) (helperPolicy, []string, error) {
	var hp helperPolicy

	if len(args) < 4 || args[0] != "--policy" {
		return hp, nil, errors.New("usage: sandbox-init --policy <json> -- <command...>")
	}
	if args[2] != "--" {
		return hp, nil, errors.New("missing -- separator before command")
	}

	if err := json.Unmarshal([]byte(args[1]), &hp); err != nil {
		return hp, nil, fmt.Errorf("decode policy: %w", err)
	}

	argv := args[3:]
	if len(argv) == 0 {
		return hp, nil, errors.New("no command to exec")
	}
	return hp, argv, nil
}
