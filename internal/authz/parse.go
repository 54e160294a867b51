package authz

import (
	"path/filepath"
	"strings"
)

// subcommandTools names the tools whose first non-flag token is a
// subcommand rather than an operand. Deliberately short: make, sed and
// friends take file operands first.
var subcommandTools = map[string]bool{
	"git":     true,
	"cargo":   true,
	"npm":     true,
	"pnpm":    true,
	"yarn":    true,
	"go":      true,
	"docker":  true,
	"kubectl": true,
	"just":    true,
}

// ParseToAst turns a raw argument vector into a CommandAst. It never
// fails: anything that cannot be decomposed safely becomes Unknown, which
// the classifier ranks as maximally risky.
func ParseToAst(argv []string) CommandAst {
	if len(argv) == 0 {
		return UnknownAst(argv)
	}
	if script, ok := shellWrapperScript(argv); ok {
		words, ok := splitShellScript(script)
		if !ok {
			return UnknownAst(argv)
		}
		commands := make([]SimpleCommand, 0, len(words))
		for _, w := range words {
			commands = append(commands, NormalizeSimple(w))
		}
		return SequenceAst(argv, commands)
	}
	return SequenceAst(argv, []SimpleCommand{NormalizeSimple(argv)})
}

// ParseShellScriptCommands unwraps a shell invocation like
// ["bash", "-lc", "ls && pwd"] into the word lists of its simple
// commands. It returns false when argv is not a shell wrapper or the
// script uses constructs that cannot be decomposed safely.
func ParseShellScriptCommands(argv []string) ([][]string, bool) {
	script, ok := shellWrapperScript(argv)
	if !ok {
		return nil, false
	}
	return splitShellScript(script)
}

// shellWrapperScript recognizes `<shell> -c|-lc <script>` invocations.
// Any tool whose base name ends in "sh" counts as a shell; tokens after
// the script are shell positional arguments and are ignored.
func shellWrapperScript(argv []string) (string, bool) {
	if len(argv) < 3 {
		return "", false
	}
	base := baseToolName(argv[0])
	if base == "" || !strings.HasSuffix(base, "sh") {
		return "", false
	}
	if argv[1] != "-c" && argv[1] != "-lc" {
		return "", false
	}
	return argv[2], true
}

// NormalizeSimple splits one word list into tool, subcommand, flags and
// operands. Short flag clusters of two or three lowercase letters are
// kept and additionally expanded ("-la" yields "-la", "-l", "-a") so
// rules can match either spelling. "--" ends flag parsing.
func NormalizeSimple(argv []string) SimpleCommand {
	cmd := SimpleCommand{Raw: argv}
	if len(argv) == 0 {
		return cmd
	}
	cmd.Tool = argv[0]
	wantsSubcommand := subcommandTools[baseToolName(argv[0])]
	operandsOnly := false
	for _, tok := range argv[1:] {
		switch {
		case operandsOnly:
			cmd.Operands = append(cmd.Operands, tok)
		case tok == "--":
			operandsOnly = true
		case len(tok) > 1 && tok[0] == '-':
			cmd.Flags = append(cmd.Flags, tok)
			cmd.Flags = append(cmd.Flags, expandFlagCluster(tok)...)
		case wantsSubcommand && cmd.Subcommand == "":
			cmd.Subcommand = tok
		default:
			cmd.Operands = append(cmd.Operands, tok)
		}
	}
	return cmd
}

// expandFlagCluster splits "-la" style clusters into their single-letter
// flags. Only clusters of 2-3 lowercase letters expand; longer dash words
// like "-delete" are single flags.
func expandFlagCluster(tok string) []string {
	letters := tok[1:]
	if tok[1] == '-' || len(letters) < 2 || len(letters) > 3 {
		return nil
	}
	for _, r := range letters {
		if r < 'a' || r > 'z' {
			return nil
		}
	}
	expanded := make([]string, 0, len(letters))
	for _, r := range letters {
		expanded = append(expanded, "-"+string(r))
	}
	return expanded
}

// baseToolName strips any directory prefix from a tool name so rules can
// match /bin/ls and ls alike.
func baseToolName(tool string) string {
	if tool == "" {
		return ""
	}
	return filepath.Base(tool)
}
