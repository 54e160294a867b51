// Package fs answers which workspace entries a listing should surface.
// Build artifacts and vendored trees drown the useful entries, so listings
// honor the .gitignore chain the same way git status does.
package fs

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

type rule struct {
	pattern string
	negate  bool
	dirOnly bool
}

// ignoreSet holds the rules of one .gitignore, evaluated against paths
// relative to the directory holding it.
type ignoreSet struct {
	dir   string
	rules []rule
}

// Ignore is the .gitignore chain from a workspace root down to one
// directory. The zero value ignores nothing.
type Ignore struct {
	sets []ignoreSet
}

// LoadIgnore collects .gitignore files on the path from root to dir,
// outermost first. Both paths must be absolute; dir outside root yields
// just the root's rules. Missing files are fine.
func LoadIgnore(root, dir string) *Ignore {
	ig := &Ignore{}
	for _, d := range chainDirs(root, dir) {
		rules := readRules(filepath.Join(d, ".gitignore"))
		if len(rules) > 0 {
			ig.sets = append(ig.sets, ignoreSet{dir: d, rules: rules})
		}
	}
	return ig
}

// chainDirs lists root and every directory between root and dir.
func chainDirs(root, dir string) []string {
	dirs := []string{root}
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return dirs
	}
	current := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		current = filepath.Join(current, part)
		dirs = append(dirs, current)
	}
	return dirs
}

func readRules(path string) []rule {
	file, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer file.Close()

	var rules []rule
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		r := rule{}
		if strings.HasPrefix(line, "!") {
			r.negate = true
			line = strings.TrimPrefix(line, "!")
		}
		if strings.HasSuffix(line, "/") {
			r.dirOnly = true
			line = strings.TrimSuffix(line, "/")
		}
		r.pattern = line
		rules = append(rules, r)
	}
	return rules
}

// Ignored reports whether the entry at path should be dropped from a
// listing. path must be absolute; isDir distinguishes dir-only rules. The
// .git directory itself is always ignored.
func (ig *Ignore) Ignored(path string, isDir bool) bool {
	if filepath.Base(path) == ".git" {
		return true
	}
	if ig == nil {
		return false
	}
	ignored := false
	for _, set := range ig.sets {
		rel, err := filepath.Rel(set.dir, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		rel = filepath.ToSlash(rel)
		for _, r := range set.rules {
			if r.matches(rel, isDir) {
				// Last matching rule wins, like git.
				ignored = !r.negate
			}
		}
	}
	return ignored
}

// matches follows gitignore placement: a pattern without a slash floats to
// any depth, one with a slash anchors at the .gitignore's directory. A
// pattern matching a directory also covers everything beneath it.
func (r rule) matches(rel string, isDir bool) bool {
	pat := r.pattern
	if !strings.Contains(pat, "/") {
		pat = "**/" + pat
	}
	pat = strings.TrimPrefix(pat, "/")
	if !r.dirOnly || isDir {
		if ok, err := doublestar.Match(pat, rel); err == nil && ok {
			return true
		}
	}
	// An entry beneath a matched directory is covered whatever its type.
	ok, err := doublestar.Match(pat+"/**", rel)
	return err == nil && ok
}
