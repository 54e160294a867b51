package authz

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_bash "github.com/tree-sitter/tree-sitter-bash/bindings/go"
)

// splitShellScript parses a shell script with tree-sitter-bash and
// decomposes it into the word lists of its simple commands, split on
// `&&`, `||`, `;` and `|`. It returns false for anything whose effects
// cannot be judged from the word lists alone: redirections, subshells,
// substitutions, assignments, expansions, background jobs and
// non-literal quoting all disqualify the script.
func splitShellScript(script string) ([][]string, bool) {
	parser := tree_sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(tree_sitter.NewLanguage(tree_sitter_bash.Language())); err != nil {
		return nil, false
	}

	source := []byte(script)
	tree := parser.Parse(source, nil)
	if tree == nil {
		return nil, false
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || root.HasError() {
		return nil, false
	}

	var commands [][]string
	if !collectCommands(root, source, &commands) {
		return nil, false
	}
	if len(commands) == 0 {
		return nil, false
	}
	return commands, true
}

// collectCommands walks the subset of the bash grammar we accept. Any
// node kind outside the allow list aborts the walk.
func collectCommands(n *tree_sitter.Node, source []byte, out *[][]string) bool {
	switch n.Kind() {
	case "program", "list", "pipeline":
		for i := uint(0); i < n.ChildCount(); i++ {
			child := n.Child(i)
			if child == nil {
				return false
			}
			switch child.Kind() {
			case "&&", "||", "|", ";", "\n", "comment":
				continue
			default:
				if !collectCommands(child, source, out) {
					return false
				}
			}
		}
		return true
	case "command":
		words, ok := commandWords(n, source)
		if !ok {
			return false
		}
		*out = append(*out, words)
		return true
	default:
		return false
	}
}

// commandWords extracts the literal word list of a command node. Only
// plain words, numbers and fully literal quoted strings are accepted.
func commandWords(n *tree_sitter.Node, source []byte) ([]string, bool) {
	var words []string
	for i := uint(0); i < n.ChildCount(); i++ {
		child := n.Child(i)
		if child == nil {
			return nil, false
		}
		switch child.Kind() {
		case "command_name":
			name, ok := commandNameWord(child, source)
			if !ok {
				return nil, false
			}
			words = append(words, name)
		case "word", "number":
			words = append(words, unescapeWord(nodeText(child, source)))
		case "string":
			lit, ok := doubleQuotedLiteral(child, source)
			if !ok {
				return nil, false
			}
			words = append(words, lit)
		case "raw_string":
			words = append(words, singleQuotedLiteral(child, source))
		default:
			return nil, false
		}
	}
	if len(words) == 0 {
		return nil, false
	}
	return words, true
}

// commandNameWord accepts only a plain word as the command name. Quoted
// or expanded command names disqualify the script.
func commandNameWord(n *tree_sitter.Node, source []byte) (string, bool) {
	if n.ChildCount() != 1 {
		return "", false
	}
	child := n.Child(0)
	if child == nil || child.Kind() != "word" {
		return "", false
	}
	return unescapeWord(nodeText(child, source)), true
}

// doubleQuotedLiteral returns the contents of a double-quoted string when
// it is fully literal. A string containing expansions or substitutions
// returns false.
func doubleQuotedLiteral(n *tree_sitter.Node, source []byte) (string, bool) {
	var b strings.Builder
	for i := uint(0); i < n.ChildCount(); i++ {
		child := n.Child(i)
		if child == nil {
			return "", false
		}
		switch child.Kind() {
		case "\"":
		case "string_content":
			b.WriteString(nodeText(child, source))
		default:
			return "", false
		}
	}
	return b.String(), true
}

// singleQuotedLiteral strips the surrounding quotes off a raw_string.
func singleQuotedLiteral(n *tree_sitter.Node, source []byte) string {
	text := nodeText(n, source)
	return strings.TrimSuffix(strings.TrimPrefix(text, "'"), "'")
}

func nodeText(n *tree_sitter.Node, source []byte) string {
	start, end := n.StartByte(), n.EndByte()
	if start > end || end > uint(len(source)) {
		return ""
	}
	return string(source[start:end])
}

// unescapeWord resolves backslash escapes in an unquoted word so that
// `hello\ world` becomes one operand "hello world".
func unescapeWord(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	if escaped {
		b.WriteByte('\\')
	}
	return b.String()
}
