package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitShellScriptSequences(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   [][]string
	}{
		{
			name:   "single command",
			script: "ls",
			want:   [][]string{{"ls"}},
		},
		{
			name:   "and chain",
			script: "ls && pwd",
			want:   [][]string{{"ls"}, {"pwd"}},
		},
		{
			name:   "or chain",
			script: "test -f go.mod || ls",
			want:   [][]string{{"test", "-f", "go.mod"}, {"ls"}},
		},
		{
			name:   "pipeline",
			script: "ls -la | grep foo",
			want:   [][]string{{"ls", "-la"}, {"grep", "foo"}},
		},
		{
			name:   "semicolon",
			script: "ls; pwd",
			want:   [][]string{{"ls"}, {"pwd"}},
		},
		{
			name:   "newline separated",
			script: "ls\npwd",
			want:   [][]string{{"ls"}, {"pwd"}},
		},
		{
			name:   "mixed operators",
			script: "git status && git diff | head -5",
			want:   [][]string{{"git", "status"}, {"git", "diff"}, {"head", "-5"}},
		},
		{
			name:   "trailing comment",
			script: "ls # list the workspace",
			want:   [][]string{{"ls"}},
		},
		{
			name:   "numeric argument",
			script: "sleep 2",
			want:   [][]string{{"sleep", "2"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := splitShellScript(tt.script)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitShellScriptQuoting(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{
			name:   "single quotes",
			script: "echo 'hello world'",
			want:   []string{"echo", "hello world"},
		},
		{
			name:   "double quotes",
			script: `echo "hello world"`,
			want:   []string{"echo", "hello world"},
		},
		{
			name:   "escaped space",
			script: `cat hello\ world.txt`,
			want:   []string{"cat", "hello world.txt"},
		},
		{
			name:   "empty double quotes",
			script: `grep "" file`,
			want:   []string{"grep", "", "file"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := splitShellScript(tt.script)
			require.True(t, ok)
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0])
		})
	}
}

func TestSplitShellScriptRejections(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"empty script", ""},
		{"only whitespace", "   "},
		{"output redirection", "ls > out.txt"},
		{"input redirection", "sort < data.txt"},
		{"append redirection", "echo hi >> log"},
		{"variable expansion", "echo $HOME"},
		{"expansion inside double quotes", `echo "home: $HOME"`},
		{"command substitution", "echo $(date)"},
		{"backtick substitution", "echo `date`"},
		{"subshell", "(ls && pwd)"},
		{"background job", "sleep 10 &"},
		{"assignment prefix", "FOO=1 env"},
		{"quoted command name", `"ls" -la`},
		{"syntax error", "ls &&"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := splitShellScript(tt.script)
			assert.False(t, ok)
			assert.Nil(t, got)
		})
	}
}

func TestUnescapeWord(t *testing.T) {
	assert.Equal(t, "plain", unescapeWord("plain"))
	assert.Equal(t, "hello world", unescapeWord(`hello\ world`))
	assert.Equal(t, `a\`, unescapeWord(`a\`))
	assert.Equal(t, "a$b", unescapeWord(`a\$b`))
}
