package tools

import (
	"strings"

	"github.com/codefionn/schleuse/internal/authz"
)

// CommandActionKind buckets a shell stage for display purposes.
type CommandActionKind int

const (
	// ActionRun is the catch-all for stages with no friendlier rendering.
	ActionRun CommandActionKind = iota
	ActionRead
	ActionListFiles
	ActionSearch
)

func (k CommandActionKind) String() string {
	switch k {
	case ActionRead:
		return "read"
	case ActionListFiles:
		return "list-files"
	case ActionSearch:
		return "search"
	default:
		return "run"
	}
}

// CommandAction is one stage of a command rendered for the UI and the
// session transcript, e.g. "Read main.go" instead of "bash -lc 'cat main.go'".
type CommandAction struct {
	Kind    CommandActionKind
	Command string
	// Target names the file, directory or query the stage touches, when the
	// stage has one.
	Target string
}

// DescribeCommand breaks argv into display actions, one per pipeline or
// sequence stage. Commands the parser cannot see through come back as a
// single run action.
func DescribeCommand(argv []string) []CommandAction {
	ast := authz.ParseToAst(argv)
	if ast.Unknown || len(ast.Commands) == 0 {
		return []CommandAction{{Kind: ActionRun, Command: SummarizeCommand(argv)}}
	}
	actions := make([]CommandAction, 0, len(ast.Commands))
	for _, sc := range ast.Commands {
		actions = append(actions, describeSimple(sc))
	}
	return actions
}

func describeSimple(sc authz.SimpleCommand) CommandAction {
	display := SummarizeCommand(sc.Raw)
	switch sc.Tool {
	case "cat", "head", "tail", "less", "more", "bat":
		return CommandAction{Kind: ActionRead, Command: display, Target: firstOperand(sc)}
	case "ls", "tree", "dir":
		return CommandAction{Kind: ActionListFiles, Command: display, Target: firstOperand(sc)}
	case "grep", "rg", "egrep", "fgrep":
		return CommandAction{Kind: ActionSearch, Command: display, Target: firstOperand(sc)}
	case "find", "fd":
		return CommandAction{Kind: ActionSearch, Command: display, Target: firstOperand(sc)}
	default:
		return CommandAction{Kind: ActionRun, Command: display}
	}
}

func firstOperand(sc authz.SimpleCommand) string {
	if len(sc.Operands) == 0 {
		return ""
	}
	return sc.Operands[0]
}

// SummarizeCommand renders argv as a copy-pasteable shell line.
func SummarizeCommand(argv []string) string {
	parts := make([]string, 0, len(argv))
	for _, arg := range argv {
		parts = append(parts, quoteArg(arg))
	}
	return strings.Join(parts, " ")
}

func quoteArg(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n\"'\\$&|;<>()*?[]{}~#`!") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
