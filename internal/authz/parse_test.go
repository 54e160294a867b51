package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToAstShellWrapper(t *testing.T) {
	tests := []struct {
		name     string
		argv     []string
		unwraps  bool
		commands int
	}{
		{
			name:     "bash -c",
			argv:     []string{"bash", "-c", "ls"},
			unwraps:  true,
			commands: 1,
		},
		{
			name:     "bash -lc",
			argv:     []string{"bash", "-lc", "ls && pwd"},
			unwraps:  true,
			commands: 2,
		},
		{
			name:     "sh -c",
			argv:     []string{"sh", "-c", "pwd"},
			unwraps:  true,
			commands: 1,
		},
		{
			name:     "zsh -lc",
			argv:     []string{"zsh", "-lc", "ls"},
			unwraps:  true,
			commands: 1,
		},
		{
			name:     "absolute shell path",
			argv:     []string{"/bin/bash", "-lc", "ls"},
			unwraps:  true,
			commands: 1,
		},
		{
			name:     "unusual shell name still counts",
			argv:     []string{"mysh", "-c", "ls"},
			unwraps:  true,
			commands: 1,
		},
		{
			name:     "extra positional arguments are ignored",
			argv:     []string{"bash", "-c", "ls", "bash", "extra"},
			unwraps:  true,
			commands: 1,
		},
		{
			name:     "not a shell",
			argv:     []string{"not-a-shell", "-c", "ls"},
			unwraps:  false,
			commands: 1,
		},
		{
			name:     "python -c is not a shell wrapper",
			argv:     []string{"python", "-c", "print('hi')"},
			unwraps:  false,
			commands: 1,
		},
		{
			name:     "wrong flag",
			argv:     []string{"bash", "-x", "ls"},
			unwraps:  false,
			commands: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ast := ParseToAst(tt.argv)
			require.False(t, ast.Unknown)
			assert.Len(t, ast.Commands, tt.commands)
			if !tt.unwraps {
				assert.Equal(t, tt.argv[0], ast.Commands[0].Tool)
			}
		})
	}
}

func TestParseToAstUnknown(t *testing.T) {
	tests := []struct {
		name string
		argv []string
	}{
		{"empty argv", nil},
		{"shell without script", []string{"bash", "-c"}},
		{"empty script", []string{"bash", "-c", ""}},
		{"redirection", []string{"bash", "-lc", "ls > out.txt"}},
		{"variable expansion", []string{"bash", "-lc", "echo $HOME"}},
		{"command substitution", []string{"bash", "-lc", "echo $(date)"}},
		{"subshell", []string{"bash", "-lc", "(ls)"}},
		{"background job", []string{"bash", "-lc", "sleep 5 &"}},
		{"assignment prefix", []string{"bash", "-lc", "FOO=1 ls"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ast := ParseToAst(tt.argv)
			assert.True(t, ast.Unknown)
			assert.Empty(t, ast.Commands)
		})
	}
}

func TestNormalizeSimple(t *testing.T) {
	tests := []struct {
		name       string
		argv       []string
		tool       string
		subcommand string
		flags      []string
		operands   []string
	}{
		{
			name:     "ls with flag cluster",
			argv:     []string{"ls", "-la"},
			tool:     "ls",
			flags:    []string{"-la", "-l", "-a"},
			operands: nil,
		},
		{
			name:     "grep with double dash",
			argv:     []string{"grep", "-R", "--", "needle", "haystack"},
			tool:     "grep",
			flags:    []string{"-R"},
			operands: []string{"needle", "haystack"},
		},
		{
			name:     "find keeps long dash words whole",
			argv:     []string{"find", "/tmp", "-delete"},
			tool:     "find",
			flags:    []string{"-delete"},
			operands: []string{"/tmp"},
		},
		{
			name:       "git commit takes a subcommand",
			argv:       []string{"git", "commit", "-m", "message"},
			tool:       "git",
			subcommand: "commit",
			flags:      []string{"-m"},
			operands:   []string{"message"},
		},
		{
			name:       "cargo check",
			argv:       []string{"cargo", "check", "--all"},
			tool:       "cargo",
			subcommand: "check",
			flags:      []string{"--all"},
		},
		{
			name:     "sudo takes no subcommand",
			argv:     []string{"sudo", "sudo", "/bin/ls", "-l"},
			tool:     "sudo",
			flags:    []string{"-l"},
			operands: []string{"sudo", "/bin/ls"},
		},
		{
			name:     "rm cluster expansion",
			argv:     []string{"rm", "-rf", "/"},
			tool:     "rm",
			flags:    []string{"-rf", "-r", "-f"},
			operands: []string{"/"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NormalizeSimple(tt.argv)
			assert.Equal(t, tt.tool, cmd.Tool)
			assert.Equal(t, tt.subcommand, cmd.Subcommand)
			assert.Equal(t, tt.flags, cmd.Flags)
			assert.Equal(t, tt.operands, cmd.Operands)
			assert.Equal(t, tt.argv, cmd.Raw)
		})
	}
}

func TestParseShellScriptCommands(t *testing.T) {
	words, ok := ParseShellScriptCommands([]string{"bash", "-lc", "ls -la && git status"})
	require.True(t, ok)
	require.Len(t, words, 2)
	assert.Equal(t, []string{"ls", "-la"}, words[0])
	assert.Equal(t, []string{"git", "status"}, words[1])

	_, ok = ParseShellScriptCommands([]string{"ls", "-la"})
	assert.False(t, ok, "plain command is not a shell wrapper")
}

func TestParseToAstDangerousCommandsStillParse(t *testing.T) {
	ast := ParseToAst([]string{"rm", "-rf", "/"})
	require.False(t, ast.Unknown)
	require.Len(t, ast.Commands, 1)
	assert.Equal(t, "rm", ast.Commands[0].Tool)

	ast = ParseToAst([]string{"bash", "-lc", "ls | rm -rf /"})
	require.False(t, ast.Unknown)
	require.Len(t, ast.Commands, 2)
	assert.Equal(t, "rm", ast.Commands[1].Tool)
}

func TestHasFlag(t *testing.T) {
	cmd := NormalizeSimple([]string{"rm", "-rf", "target"})
	assert.True(t, cmd.HasFlag("-r"))
	assert.True(t, cmd.HasFlag("-f"))
	assert.True(t, cmd.HasFlag("-rf"))
	assert.False(t, cmd.HasFlag("-x"))
	assert.True(t, cmd.HasAnyFlag("-x", "-f"))
	assert.False(t, cmd.HasAnyFlag("-x", "-y"))
}
