package authz

import (
	"sync"

	"github.com/codefionn/schleuse/internal/logger"
)

// Classifier maps parsed commands onto the risk lattice using an indexed
// rule table. Custom rules, when present, are consulted before the
// built-in table; git invocations that no rule claims fall through to the
// dedicated git model.
type Classifier struct {
	mu    sync.RWMutex
	index map[string][]CommandRule
	log   *logger.Logger
}

// NewClassifier builds a classifier from the built-in table with custom
// rules merged ahead of it.
func NewClassifier(custom []CommandRule, log *logger.Logger) *Classifier {
	if log == nil {
		log = logger.Global()
	}
	c := &Classifier{log: log.WithPrefix("classify")}
	c.Reload(custom)
	return c
}

// Reload replaces the custom rules, keeping the built-in table behind
// them. Safe to call while classification is in flight.
func (c *Classifier) Reload(custom []CommandRule) {
	rules := make([]CommandRule, 0, len(custom)+64)
	rules = append(rules, custom...)
	rules = append(rules, BuiltinRules()...)
	index := BuildRuleIndex(rules)

	c.mu.Lock()
	c.index = index
	c.mu.Unlock()
	if len(custom) > 0 {
		c.log.Info("loaded %d custom classification rules", len(custom))
	}
}

// ClassifySimple classifies one simple command. Matching is by the
// tool's base name, so /bin/ls and ls classify alike; the first matching
// rule wins and no rule means Unrecognized.
func (c *Classifier) ClassifySimple(cmd *SimpleCommand) CommandCategory {
	base := baseToolName(cmd.Tool)

	c.mu.RLock()
	rules := c.index[base]
	c.mu.RUnlock()

	for _, rule := range rules {
		if rule.Matches(cmd) {
			return rule.Category
		}
	}
	if base == "git" {
		return ClassifyGitCommand(ParseGitCommand(cmd))
	}
	return Unrecognized
}

// ClassifyAst folds an entire invocation into one category: the maximum
// risk over its simple commands. Unknown ASTs rank as Unrecognized.
func (c *Classifier) ClassifyAst(ast CommandAst) CommandCategory {
	if ast.Unknown || len(ast.Commands) == 0 {
		return Unrecognized
	}
	categories := make([]CommandCategory, 0, len(ast.Commands))
	for i := range ast.Commands {
		categories = append(categories, c.ClassifySimple(&ast.Commands[i]))
	}
	category := AggregateCategories(categories)
	c.log.Debug("classified %q as %s", ast.Raw, category)
	return category
}

// ClassifyArgv parses and classifies a raw argument vector in one step.
func (c *Classifier) ClassifyArgv(argv []string) CommandCategory {
	return c.ClassifyAst(ParseToAst(argv))
}
