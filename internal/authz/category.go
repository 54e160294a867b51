// Package authz decides whether a model-proposed command may run, under
// what sandbox, and with what user approval. It parses raw argv into a
// command AST, classifies each simple command onto a risk lattice, and
// folds policy, sandbox availability and cached approvals into a single
// decision.
package authz

import "fmt"

// CommandCategory places a command on the risk lattice. The numeric order
// is the total risk order: aggregation over a command sequence takes the
// maximum.
type CommandCategory int

const (
	// ReadsFilesystem covers commands that only inspect files or
	// process state (ls, cat, grep, ...).
	ReadsFilesystem CommandCategory = iota
	// ReadsVcs covers read-only version control queries (git status,
	// git log, ...).
	ReadsVcs
	// ModifiesFilesystem covers recoverable file mutations (mkdir,
	// touch, cp, mv, ...).
	ModifiesFilesystem
	// ModifiesVcs covers version control mutations that git can undo
	// (commit, add, checkout, ...).
	ModifiesVcs
	// Unrecognized is the category for commands no rule matched. It
	// ranks above every recoverable mutation because nothing is known
	// about it.
	Unrecognized
	// DeletesData covers irreversible destruction (rm -rf, git reset
	// --hard, find -delete, ...).
	DeletesData
)

func (c CommandCategory) String() string {
	switch c {
	case ReadsFilesystem:
		return "reads-filesystem"
	case ReadsVcs:
		return "reads-vcs"
	case ModifiesFilesystem:
		return "modifies-filesystem"
	case ModifiesVcs:
		return "modifies-vcs"
	case Unrecognized:
		return "unrecognized"
	case DeletesData:
		return "deletes-data"
	default:
		return fmt.Sprintf("command-category(%d)", int(c))
	}
}

// ParseCategory maps the wire form used in rule files back onto the
// lattice.
func ParseCategory(s string) (CommandCategory, error) {
	switch s {
	case "reads-filesystem":
		return ReadsFilesystem, nil
	case "reads-vcs":
		return ReadsVcs, nil
	case "modifies-filesystem":
		return ModifiesFilesystem, nil
	case "modifies-vcs":
		return ModifiesVcs, nil
	case "unrecognized":
		return Unrecognized, nil
	case "deletes-data":
		return DeletesData, nil
	default:
		return Unrecognized, fmt.Errorf("unknown command category %q", s)
	}
}

// AggregateCategories folds the categories of a command sequence into the
// risk of the whole invocation. An empty sequence means nothing could be
// parsed, which is treated as Unrecognized.
func AggregateCategories(categories []CommandCategory) CommandCategory {
	if len(categories) == 0 {
		return Unrecognized
	}
	highest := categories[0]
	for _, c := range categories[1:] {
		if c > highest {
			highest = c
		}
	}
	return highest
}
