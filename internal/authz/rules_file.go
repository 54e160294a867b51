package authz

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/codefionn/schleuse/internal/logger"
)

// ruleSpec is the YAML form of one custom classification rule. A rule
// needs a tool and a category; subcommands or flags narrow it, and
// giving neither matches every invocation of the tool.
type ruleSpec struct {
	Tool        string   `yaml:"tool"`
	Category    string   `yaml:"category"`
	Subcommands []string `yaml:"subcommands,omitempty"`
	Flags       []string `yaml:"flags,omitempty"`
}

type rulesFile struct {
	Rules []ruleSpec `yaml:"rules"`
}

// LoadRulesFile reads custom classification rules from a YAML file.
// A missing file yields no rules and no error; a malformed file is an
// error so a typo cannot silently drop the user's rules.
func LoadRulesFile(path string) ([]CommandRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}

	rules := make([]CommandRule, 0, len(file.Rules))
	for i, spec := range file.Rules {
		rule, err := spec.toRule()
		if err != nil {
			return nil, fmt.Errorf("rules file %s, rule %d: %w", path, i+1, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (s ruleSpec) toRule() (CommandRule, error) {
	if s.Tool == "" {
		return CommandRule{}, fmt.Errorf("missing tool")
	}
	category, err := ParseCategory(s.Category)
	if err != nil {
		return CommandRule{}, err
	}
	if len(s.Subcommands) > 0 && len(s.Flags) > 0 {
		return CommandRule{}, fmt.Errorf("rule for %s sets both subcommands and flags", s.Tool)
	}

	rule := CommandRule{Tool: s.Tool, Category: category, Matcher: MatchAny()}
	switch {
	case len(s.Subcommands) > 0:
		rule.Matcher = MatchSubcommands(s.Subcommands...)
	case len(s.Flags) > 0:
		rule.Matcher = MatchAnyFlag(s.Flags...)
	}
	return rule, nil
}

// RuleWatcher keeps a classifier's custom rules in sync with a YAML file
// on disk. The parent directory is watched so editors that replace the
// file via rename still trigger a reload.
type RuleWatcher struct {
	path       string
	classifier *Classifier
	watcher    *fsnotify.Watcher
	stop       chan struct{}
	log        *logger.Logger
}

// WatchRulesFile loads path into classifier and reloads it on change.
// The initial load is strict: a malformed file fails the watch setup.
func WatchRulesFile(path string, classifier *Classifier, log *logger.Logger) (*RuleWatcher, error) {
	if log == nil {
		log = logger.Global()
	}
	log = log.WithPrefix("rules-watch")

	rules, err := LoadRulesFile(path)
	if err != nil {
		return nil, err
	}
	classifier.Reload(rules)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create rules watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch rules directory: %w", err)
	}

	w := &RuleWatcher{
		path:       path,
		classifier: classifier,
		watcher:    watcher,
		stop:       make(chan struct{}),
		log:        log,
	}
	go w.watch()
	return w, nil
}

// Close stops the watcher.
func (w *RuleWatcher) Close() error {
	close(w.stop)
	return w.watcher.Close()
}

func (w *RuleWatcher) watch() {
	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("rules watcher error: %v", err)
		}
	}
}

// reload re-reads the rules file. A file that became malformed keeps the
// previous rules in place.
func (w *RuleWatcher) reload() {
	rules, err := LoadRulesFile(w.path)
	if err != nil {
		w.log.Warn("keeping previous rules: %v", err)
		return
	}
	w.classifier.Reload(rules)
	w.log.Info("reloaded rules from %s", w.path)
}
