package authz

import "strings"

// CommandMatcher narrows a CommandRule to particular invocations of its
// tool. The set of matcher kinds is closed; rule files pick from the
// constructors below.
type CommandMatcher interface {
	matches(cmd *SimpleCommand) bool
}

type matchAny struct{}

func (matchAny) matches(*SimpleCommand) bool { return true }

type matchSubcommands struct{ subcommands []string }

func (m matchSubcommands) matches(cmd *SimpleCommand) bool {
	for _, s := range m.subcommands {
		if cmd.Subcommand == s {
			return true
		}
	}
	return false
}

type matchAnyFlag struct{ flags []string }

func (m matchAnyFlag) matches(cmd *SimpleCommand) bool {
	return cmd.HasAnyFlag(m.flags...)
}

type matchPredicate struct{ fn func(cmd *SimpleCommand) bool }

func (m matchPredicate) matches(cmd *SimpleCommand) bool { return m.fn(cmd) }

// MatchAny matches every invocation of the rule's tool.
func MatchAny() CommandMatcher { return matchAny{} }

// MatchSubcommands matches when the parsed subcommand is one of subs.
func MatchSubcommands(subs ...string) CommandMatcher {
	return matchSubcommands{subcommands: subs}
}

// MatchAnyFlag matches when any of the given flags is present. Flag
// clusters are expanded before matching, so "-r" matches "rm -rf".
func MatchAnyFlag(flags ...string) CommandMatcher {
	return matchAnyFlag{flags: flags}
}

// MatchPredicate matches when fn returns true for the command.
func MatchPredicate(fn func(cmd *SimpleCommand) bool) CommandMatcher {
	return matchPredicate{fn: fn}
}

// CommandRule binds one tool to a category, optionally narrowed by a
// matcher. Rules are evaluated in table order; the first match wins.
type CommandRule struct {
	Tool     string
	Matcher  CommandMatcher
	Category CommandCategory
}

// Matches reports whether this rule applies to cmd. The tool comparison
// strips any directory prefix so /bin/ls hits the ls rule. A nil matcher
// matches every invocation.
func (r CommandRule) Matches(cmd *SimpleCommand) bool {
	if baseToolName(cmd.Tool) != r.Tool {
		return false
	}
	if r.Matcher == nil {
		return true
	}
	return r.Matcher.matches(cmd)
}

// BuildRuleIndex groups rules by tool, preserving table order within each
// tool so first-match-wins survives the indexing.
func BuildRuleIndex(rules []CommandRule) map[string][]CommandRule {
	index := make(map[string][]CommandRule)
	for _, r := range rules {
		index[r.Tool] = append(index[r.Tool], r)
	}
	return index
}

// readOnlyTools are commands whose every invocation only inspects state.
var readOnlyTools = []string{
	"ls", "cat", "head", "tail", "wc", "pwd", "echo", "file", "stat",
	"which", "basename", "dirname", "realpath", "du", "df", "env",
	"printenv", "date", "whoami", "id", "uname", "hostname", "true",
	"false", "sort", "uniq", "cut", "tr", "grep", "rg",
}

// fsMutatingTools are commands that modify files in recoverable ways.
var fsMutatingTools = []string{"mkdir", "touch", "cp", "mv", "chmod", "chown"}

// findWriteFlags are find(1) options that write or execute; their
// presence means the invocation is not a plain tree walk.
var findWriteFlags = []string{
	"-exec", "-execdir", "-ok", "-okdir",
	"-fls", "-fprint", "-fprint0", "-fprintf",
}

// BuiltinRules returns the built-in classification table. Order matters:
// within a tool the first matching rule wins, so destructive refinements
// come before broad read-only entries.
func BuiltinRules() []CommandRule {
	rules := []CommandRule{
		{Tool: "find", Matcher: MatchAnyFlag("-delete"), Category: DeletesData},
		{Tool: "find", Matcher: MatchAnyFlag(findWriteFlags...), Category: Unrecognized},
		{Tool: "find", Matcher: MatchAny(), Category: ReadsFilesystem},

		{Tool: "rm", Matcher: MatchAnyFlag("-f", "-r", "-R", "--force", "--recursive"), Category: DeletesData},

		{Tool: "sed", Matcher: MatchPredicate(func(cmd *SimpleCommand) bool {
			return IsSedReadOnly(cmd.Raw)
		}), Category: ReadsFilesystem},

		{Tool: "cargo", Matcher: MatchSubcommands("check"), Category: ReadsFilesystem},
	}
	for _, tool := range readOnlyTools {
		rules = append(rules, CommandRule{Tool: tool, Matcher: MatchAny(), Category: ReadsFilesystem})
	}
	for _, tool := range fsMutatingTools {
		rules = append(rules, CommandRule{Tool: tool, Matcher: MatchAny(), Category: ModifiesFilesystem})
	}
	return rules
}

// IsSedReadOnly recognizes the one sed shape that is a pure line read:
// `sed -n 1,5p file`. Everything else (in-place edits, scripts,
// expressions without the trailing p) stays unclassified.
func IsSedReadOnly(argv []string) bool {
	if len(argv) != 4 {
		return false
	}
	if baseToolName(argv[0]) != "sed" || argv[1] != "-n" {
		return false
	}
	return isValidSedNArg(argv[2])
}

// isValidSedNArg accepts "<N>p" and "<N>,<M>p" where N and M are
// decimal line numbers.
func isValidSedNArg(arg string) bool {
	body, found := strings.CutSuffix(arg, "p")
	if !found {
		return false
	}
	first, second, hasComma := strings.Cut(body, ",")
	if !allDigits(first) {
		return false
	}
	if !hasComma {
		return true
	}
	return allDigits(second)
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
