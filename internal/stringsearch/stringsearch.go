// Package stringsearch matches a fixed set of literal fragments against
// arbitrary text. A short-chunk index narrows the fragment set before any
// full containment check runs, so scanning stays cheap even when the
// fragment list grows.
package stringsearch

import (
	"sort"
	"strings"
)

const chunkSize = 4

// Matcher holds an immutable fragment set. Matching is case-insensitive.
type Matcher struct {
	fragments []string
	chunks    map[string][]int
	// short fragments fit inside no index window and are always checked
	// directly.
	short []int
}

// New builds a matcher over the given fragments. Empty fragments are
// dropped; they would otherwise match everything.
func New(fragments ...string) *Matcher {
	m := &Matcher{chunks: make(map[string][]int)}
	for _, f := range fragments {
		f = strings.ToLower(f)
		if f == "" {
			continue
		}
		m.fragments = append(m.fragments, f)
	}
	for i, f := range m.fragments {
		if len(f) < chunkSize {
			m.short = append(m.short, i)
			continue
		}
		for _, c := range chunksOf(f) {
			m.chunks[c] = append(m.chunks[c], i)
		}
	}
	for _, ids := range m.chunks {
		sort.Ints(ids)
	}
	return m
}

// chunksOf slices s into overlapping fixed-size windows.
func chunksOf(s string) []string {
	if len(s) < chunkSize {
		return []string{s}
	}
	out := make([]string, 0, len(s)-chunkSize+1)
	for i := 0; i+chunkSize <= len(s); i++ {
		out = append(out, s[i:i+chunkSize])
	}
	return out
}

// match returns the indices of fragments contained in text, in fragment
// order.
func (m *Matcher) match(text string) []int {
	if len(m.fragments) == 0 || text == "" {
		return nil
	}
	text = strings.ToLower(text)

	candidates := make(map[int]struct{})
	for _, id := range m.short {
		candidates[id] = struct{}{}
	}
	for _, c := range chunksOf(text) {
		for _, id := range m.chunks[c] {
			candidates[id] = struct{}{}
		}
	}

	var hits []int
	for id := range candidates {
		if strings.Contains(text, m.fragments[id]) {
			hits = append(hits, id)
		}
	}
	sort.Ints(hits)
	return hits
}

// Contains reports whether any fragment occurs in text.
func (m *Matcher) Contains(text string) bool {
	return len(m.match(text)) > 0
}

// FindAll returns the fragments that occur in text, lowercased, in the
// order they were given to New.
func (m *Matcher) FindAll(text string) []string {
	ids := m.match(text)
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.fragments[id])
	}
	return out
}

// Len returns the number of indexed fragments.
func (m *Matcher) Len() int { return len(m.fragments) }
