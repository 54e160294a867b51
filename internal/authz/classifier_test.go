package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyArgv(t *testing.T) {
	tests := []struct {
		name string
		argv []string
		want CommandCategory
	}{
		{"ls", []string{"ls"}, ReadsFilesystem},
		{"ls with flags", []string{"ls", "-la"}, ReadsFilesystem},
		{"absolute path matches base name", []string{"/bin/ls", "-l"}, ReadsFilesystem},
		{"cat", []string{"cat", "go.mod"}, ReadsFilesystem},
		{"grep", []string{"grep", "-R", "pattern", "."}, ReadsFilesystem},
		{"rg", []string{"rg", "pattern"}, ReadsFilesystem},

		{"mkdir", []string{"mkdir", "-p", "build"}, ModifiesFilesystem},
		{"touch", []string{"touch", "file"}, ModifiesFilesystem},
		{"cp", []string{"cp", "a", "b"}, ModifiesFilesystem},
		{"mv", []string{"mv", "a", "b"}, ModifiesFilesystem},

		{"plain rm stays unclassified", []string{"rm", "file"}, Unrecognized},
		{"rm -rf", []string{"rm", "-rf", "/"}, DeletesData},
		{"rm -r", []string{"rm", "-r", "dir"}, DeletesData},
		{"rm -f", []string{"rm", "-f", "file"}, DeletesData},
		{"rm --force", []string{"rm", "--force", "file"}, DeletesData},
		{"rm --recursive", []string{"rm", "--recursive", "dir"}, DeletesData},

		{"find walk", []string{"find", "/tmp"}, ReadsFilesystem},
		{"find with name filter", []string{"find", ".", "-name", "*.go"}, ReadsFilesystem},
		{"find -delete", []string{"find", "/tmp", "-delete"}, DeletesData},
		{"find -exec", []string{"find", ".", "-exec", "rm", "{}", ";"}, Unrecognized},

		{"sed line read", []string{"sed", "-n", "1,5p", "file.go"}, ReadsFilesystem},
		{"sed single line", []string{"sed", "-n", "12p", "file.go"}, ReadsFilesystem},
		{"sed without p suffix", []string{"sed", "-n", "1,5", "file.go"}, Unrecognized},
		{"sed in place", []string{"sed", "-i", "s/a/b/", "file.go"}, Unrecognized},

		{"cargo check", []string{"cargo", "check", "--all"}, ReadsFilesystem},
		{"cargo build", []string{"cargo", "build"}, Unrecognized},
		{"npm install", []string{"npm", "install"}, Unrecognized},
		{"sudo", []string{"sudo", "ls"}, Unrecognized},
		{"unknown tool", []string{"frobnicate"}, Unrecognized},

		{"git status", []string{"git", "status"}, ReadsVcs},
		{"git log", []string{"git", "log", "--oneline"}, ReadsVcs},
		{"git diff", []string{"git", "diff"}, ReadsVcs},
		{"git add", []string{"git", "add", "."}, ModifiesVcs},
		{"git commit", []string{"git", "commit", "-m", "msg"}, ModifiesVcs},
		{"git reset", []string{"git", "reset", "HEAD~1"}, ModifiesVcs},
		{"git reset --hard", []string{"git", "reset", "--hard", "HEAD~1"}, DeletesData},

		{"empty argv", nil, Unrecognized},
		{"unparseable script", []string{"bash", "-lc", "echo $HOME"}, Unrecognized},

		{"read-only sequence", []string{"bash", "-lc", "ls && pwd"}, ReadsFilesystem},
		{"sequence takes the riskiest", []string{"bash", "-lc", "ls | rm -rf /"}, DeletesData},
		{"vcs sequence", []string{"bash", "-lc", "git status && git commit -m wip"}, ModifiesVcs},
		{"mixed sequence", []string{"bash", "-lc", "mkdir build; cargo check"}, ModifiesFilesystem},
	}

	c := NewClassifier(nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.ClassifyArgv(tt.argv))
		})
	}
}

func TestClassifierCustomRules(t *testing.T) {
	custom := []CommandRule{
		{Tool: "npm", Matcher: MatchSubcommands("ci"), Category: ReadsFilesystem},
		{Tool: "terraform", Matcher: MatchAnyFlag("-destroy"), Category: DeletesData},
		{Tool: "make", Category: ModifiesFilesystem},
	}
	c := NewClassifier(custom, nil)

	assert.Equal(t, ReadsFilesystem, c.ClassifyArgv([]string{"npm", "ci"}))
	assert.Equal(t, Unrecognized, c.ClassifyArgv([]string{"npm", "install"}))
	assert.Equal(t, DeletesData, c.ClassifyArgv([]string{"terraform", "apply", "-destroy"}))
	assert.Equal(t, Unrecognized, c.ClassifyArgv([]string{"terraform", "apply"}))
	assert.Equal(t, ModifiesFilesystem, c.ClassifyArgv([]string{"make", "install"}))
}

func TestClassifierCustomRulesShadowBuiltins(t *testing.T) {
	custom := []CommandRule{
		{Tool: "ls", Category: Unrecognized},
		{Tool: "git", Matcher: MatchSubcommands("push"), Category: Unrecognized},
	}
	c := NewClassifier(custom, nil)

	assert.Equal(t, Unrecognized, c.ClassifyArgv([]string{"ls"}))
	assert.Equal(t, Unrecognized, c.ClassifyArgv([]string{"git", "push"}))
	// The dedicated git model still serves everything the custom rule
	// does not claim.
	assert.Equal(t, ReadsVcs, c.ClassifyArgv([]string{"git", "status"}))
}

func TestClassifierReload(t *testing.T) {
	c := NewClassifier(nil, nil)
	assert.Equal(t, Unrecognized, c.ClassifyArgv([]string{"just", "build"}))

	c.Reload([]CommandRule{{Tool: "just", Category: ModifiesFilesystem}})
	assert.Equal(t, ModifiesFilesystem, c.ClassifyArgv([]string{"just", "build"}))

	c.Reload(nil)
	assert.Equal(t, Unrecognized, c.ClassifyArgv([]string{"just", "build"}))
}

func TestAggregateCategories(t *testing.T) {
	assert.Equal(t, Unrecognized, AggregateCategories(nil))
	assert.Equal(t, ReadsFilesystem, AggregateCategories([]CommandCategory{ReadsFilesystem}))
	assert.Equal(t, DeletesData,
		AggregateCategories([]CommandCategory{ReadsFilesystem, DeletesData, ModifiesVcs}))
	assert.Equal(t, Unrecognized,
		AggregateCategories([]CommandCategory{ModifiesVcs, Unrecognized}))
}

func TestCategoryOrder(t *testing.T) {
	// The lattice order is what aggregation and the decision table key
	// off; a reordering would silently change every verdict.
	assert.True(t, ReadsFilesystem < ReadsVcs)
	assert.True(t, ReadsVcs < ModifiesFilesystem)
	assert.True(t, ModifiesFilesystem < ModifiesVcs)
	assert.True(t, ModifiesVcs < Unrecognized)
	assert.True(t, Unrecognized < DeletesData)
}

func TestParseCategoryRoundTrip(t *testing.T) {
	for _, c := range []CommandCategory{
		ReadsFilesystem, ReadsVcs, ModifiesFilesystem,
		ModifiesVcs, Unrecognized, DeletesData,
	} {
		parsed, err := ParseCategory(c.String())
		assert.NoError(t, err)
		assert.Equal(t, c, parsed)
	}

	_, err := ParseCategory("nonsense")
	assert.Error(t, err)
}

func TestIsSedReadOnly(t *testing.T) {
	tests := []struct {
		name string
		argv []string
		want bool
	}{
		{"range print", []string{"sed", "-n", "1,5p", "file"}, true},
		{"single line print", []string{"sed", "-n", "42p", "file"}, true},
		{"path-qualified sed", []string{"/usr/bin/sed", "-n", "1,5p", "file"}, true},
		{"missing p suffix", []string{"sed", "-n", "1,5", "file"}, false},
		{"non-numeric range", []string{"sed", "-n", "a,bp", "file"}, false},
		{"bare p", []string{"sed", "-n", "p", "file"}, false},
		{"wrong flag", []string{"sed", "-e", "1,5p", "file"}, false},
		{"too many arguments", []string{"sed", "-n", "1,5p", "a", "b"}, false},
		{"too few arguments", []string{"sed", "-n", "1,5p"}, false},
		{"not sed", []string{"awk", "-n", "1,5p", "file"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSedReadOnly(tt.argv))
		})
	}
}
