// ShadowCheck - Surveillance Pattern Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package correlation

import "strings"

// Keyword is a pattern tagged with the category it contributes to.
type Keyword struct {
	Text     string
	Category Category
	Score    float64
}

// Match is one whole-word keyword hit.
type Match struct {
	Keyword  Keyword
	Position int
}

type acNode struct {
	children map[byte]*acNode
	failure  *acNode
	output   []int
}

func newACNode() *acNode {
	return &acNode{children: make(map[byte]*acNode)}
}

// KeywordMatcher is an Aho-Corasick automaton over lower-cased ASCII text.
// It scans a string once regardless of the number of keywords. Matches are
// only reported on word boundaries so "ice" does not fire inside "police".
// A built matcher is immutable and safe for concurrent use.
type KeywordMatcher struct {
	root     *acNode
	keywords []Keyword
}

// NewKeywordMatcher builds the automaton.
func NewKeywordMatcher(keywords []Keyword) *KeywordMatcher {
	m := &KeywordMatcher{root: newACNode()}
	for _, kw := range keywords {
		kw.Text = strings.ToLower(strings.TrimSpace(kw.Text))
		if kw.Text == "" {
			continue
		}
		m.keywords = append(m.keywords, kw)
		m.insert(len(m.keywords)-1, kw.Text)
	}
	m.buildFailureLinks()
	return m
}

func (m *KeywordMatcher) insert(index int, text string) {
	node := m.root
	for i := 0; i < len(text); i++ {
		ch := text[i]
		next, ok := node.children[ch]
		if !ok {
			next = newACNode()
			node.children[ch] = next
		}
		node = next
	}
	node.output = append(node.output, index)
}

func (m *KeywordMatcher) buildFailureLinks() {
	queue := make([]*acNode, 0, len(m.root.children))
	for _, child := range m.root.children {
		child.failure = m.root
		queue = append(queue, child)
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for ch, child := range current.children {
			queue = append(queue, child)

			fail := current.failure
			for fail != nil && fail.children[ch] == nil {
				fail = fail.failure
			}
			if fail == nil {
				child.failure = m.root
			} else {
				child.failure = fail.children[ch]
				child.output = append(child.output, child.failure.output...)
			}
		}
	}
}

// Search returns every whole-word keyword occurrence in text.
func (m *KeywordMatcher) Search(text string) []Match {
	if len(m.keywords) == 0 || text == "" {
		return nil
	}
	lower := strings.ToLower(text)

	var matches []Match
	node := m.root
	for i := 0; i < len(lower); i++ {
		ch := lower[i]
		for node != m.root && node.children[ch] == nil {
			node = node.failure
		}
		if next, ok := node.children[ch]; ok {
			node = next
		}

		for _, idx := range node.output {
			kw := m.keywords[idx]
			start := i - len(kw.Text) + 1
			if isBoundary(lower, start-1) && isBoundary(lower, i+1) {
				matches = append(matches, Match{Keyword: kw, Position: start})
			}
		}
	}
	return matches
}

// Distinct returns the set of keywords matched at least once, in first-hit
// order. Repeated hits of one keyword count once.
func (m *KeywordMatcher) Distinct(texts ...string) []Keyword {
	seen := make(map[string]bool)
	var out []Keyword
	for _, text := range texts {
		for _, match := range m.Search(text) {
			if seen[match.Keyword.Text] {
				continue
			}
			seen[match.Keyword.Text] = true
			out = append(out, match.Keyword)
		}
	}
	return out
}

func isBoundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	c := s[i]
	return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9')
}
