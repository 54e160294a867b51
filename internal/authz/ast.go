package authz

// SimpleCommand is one normalized command inside an invocation: a tool
// name, an optional subcommand, and the flag/operand split the rule table
// matches against. Tool keeps argv[0] exactly as given; path stripping
// happens at classification time.
type SimpleCommand struct {
	Tool       string
	Subcommand string
	Flags      []string
	Operands   []string
	Raw        []string
}

// HasFlag reports whether the normalized flag list contains flag. Short
// clusters are already expanded, so HasFlag("-r") matches "rm -rf".
func (c *SimpleCommand) HasFlag(flag string) bool {
	for _, f := range c.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// HasAnyFlag reports whether any of the given flags is present.
func (c *SimpleCommand) HasAnyFlag(flags ...string) bool {
	for _, f := range flags {
		if c.HasFlag(f) {
			return true
		}
	}
	return false
}

// CommandAst is the parse result for one tool-call argv: an ordered
// sequence of simple commands, or an opaque unknown when the invocation
// could not be decomposed safely. Unknown is not an error; the classifier
// treats it as maximally risky.
type CommandAst struct {
	Commands []SimpleCommand
	Unknown  bool
	Raw      []string
}

// UnknownAst wraps argv that could not be decomposed.
func UnknownAst(argv []string) CommandAst {
	return CommandAst{Unknown: true, Raw: argv}
}

// SequenceAst wraps an ordered sequence of simple commands.
func SequenceAst(argv []string, commands []SimpleCommand) CommandAst {
	return CommandAst{Commands: commands, Raw: argv}
}
