package authz

import "strings"

// GitSubcommand identifies the git subcommands the classifier models.
type GitSubcommand int

const (
	GitUnknown GitSubcommand = iota
	GitStatus
	GitLog
	GitDiff
	GitShow
	GitBranch
	GitTag
	GitRemote
	GitAdd
	GitCommit
	GitPush
	GitFetch
	GitPull
	GitCheckout
	GitSwitch
	GitMerge
	GitRebase
	GitStash
	GitCherryPick
	GitReset
	GitClean
)

var gitSubcommandNames = map[string]GitSubcommand{
	"status":      GitStatus,
	"log":         GitLog,
	"diff":        GitDiff,
	"show":        GitShow,
	"branch":      GitBranch,
	"tag":         GitTag,
	"remote":      GitRemote,
	"add":         GitAdd,
	"commit":      GitCommit,
	"push":        GitPush,
	"fetch":       GitFetch,
	"pull":        GitPull,
	"checkout":    GitCheckout,
	"switch":      GitSwitch,
	"merge":       GitMerge,
	"rebase":      GitRebase,
	"stash":       GitStash,
	"cherry-pick": GitCherryPick,
	"reset":       GitReset,
	"clean":       GitClean,
}

// GitCommitOptions carries the parts of a commit invocation the engine
// cares about.
type GitCommitOptions struct {
	Message string
}

// GitResetOptions distinguishes --hard resets, which destroy uncommitted
// work, from soft and mixed ones.
type GitResetOptions struct {
	Hard bool
}

// GitPushOptions records whether the push rewrites remote history.
type GitPushOptions struct {
	Force bool
}

// GitBranchOptions distinguishes listing from branch mutation.
type GitBranchOptions struct {
	List        bool
	ForceDelete bool
}

// GitTagOptions distinguishes listing from tag creation or deletion.
type GitTagOptions struct {
	List bool
}

// GitRemoteOptions distinguishes remote inspection from remote mutation.
type GitRemoteOptions struct {
	Read bool
}

// GitCheckoutOptions records whether the checkout discards working tree
// changes via the `--` pathspec form.
type GitCheckoutOptions struct {
	DiscardsPaths bool
}

// GitCleanOptions records whether -f/--force was given; without it git
// clean refuses to run.
type GitCleanOptions struct {
	Force bool
}

// GitCommand is the parsed model of one git invocation. Only the option
// struct matching Subcommand is meaningful.
type GitCommand struct {
	Subcommand GitSubcommand
	Commit     GitCommitOptions
	Reset      GitResetOptions
	Push       GitPushOptions
	Branch     GitBranchOptions
	Tag        GitTagOptions
	Remote     GitRemoteOptions
	Checkout   GitCheckoutOptions
	Clean      GitCleanOptions
}

// ParseGitCommand builds the git model from a normalized simple command.
// Unrecognized subcommands map to GitUnknown, which classifies as
// Unrecognized.
func ParseGitCommand(cmd *SimpleCommand) GitCommand {
	g := GitCommand{Subcommand: gitSubcommandNames[cmd.Subcommand]}
	switch g.Subcommand {
	case GitCommit:
		g.Commit.Message = gitCommitMessage(cmd)
	case GitReset:
		g.Reset.Hard = cmd.HasFlag("--hard")
	case GitPush:
		g.Push.Force = cmd.HasAnyFlag("-f", "--force")
	case GitBranch:
		g.Branch.ForceDelete = cmd.HasFlag("-D")
		g.Branch.List = len(cmd.Operands) == 0 &&
			!cmd.HasAnyFlag("-D", "-d", "--delete", "-m", "-M", "--move", "-c", "-C", "--copy")
	case GitTag:
		g.Tag.List = cmd.HasAnyFlag("-l", "--list") ||
			(len(cmd.Operands) == 0 && !cmd.HasAnyFlag("-d", "--delete"))
	case GitRemote:
		g.Remote.Read = len(cmd.Operands) == 0 || cmd.HasAnyFlag("-v", "--verbose")
	case GitCheckout:
		g.Checkout.DiscardsPaths = gitHasDoubleDash(cmd)
	case GitClean:
		g.Clean.Force = cmd.HasAnyFlag("-f", "--force")
	}
	return g
}

// ClassifyGitCommand maps the git model onto the risk lattice.
func ClassifyGitCommand(g GitCommand) CommandCategory {
	switch g.Subcommand {
	case GitStatus, GitLog, GitDiff, GitShow:
		return ReadsVcs
	case GitBranch:
		if g.Branch.ForceDelete {
			return DeletesData
		}
		if g.Branch.List {
			return ReadsVcs
		}
		return ModifiesVcs
	case GitTag:
		if g.Tag.List {
			return ReadsVcs
		}
		return ModifiesVcs
	case GitRemote:
		if g.Remote.Read {
			return ReadsVcs
		}
		return ModifiesVcs
	case GitAdd, GitCommit, GitFetch, GitPull, GitSwitch, GitMerge,
		GitRebase, GitStash, GitCherryPick:
		return ModifiesVcs
	case GitPush:
		if g.Push.Force {
			return DeletesData
		}
		return ModifiesVcs
	case GitCheckout:
		if g.Checkout.DiscardsPaths {
			return DeletesData
		}
		return ModifiesVcs
	case GitReset:
		if g.Reset.Hard {
			return DeletesData
		}
		return ModifiesVcs
	case GitClean:
		if g.Clean.Force {
			return DeletesData
		}
		return Unrecognized
	default:
		return Unrecognized
	}
}

// gitCommitMessage extracts the -m / --message value. After
// normalization the message is the first operand when the flag is
// present.
func gitCommitMessage(cmd *SimpleCommand) string {
	for _, f := range cmd.Flags {
		if v, ok := strings.CutPrefix(f, "--message="); ok {
			return v
		}
		if v, ok := strings.CutPrefix(f, "-m="); ok {
			return v
		}
	}
	if cmd.HasAnyFlag("-m", "--message") && len(cmd.Operands) > 0 {
		return cmd.Operands[0]
	}
	return ""
}

// gitHasDoubleDash reports whether the raw invocation used the `--`
// pathspec separator.
func gitHasDoubleDash(cmd *SimpleCommand) bool {
	for _, tok := range cmd.Raw {
		if tok == "--" {
			return true
		}
	}
	return false
}
