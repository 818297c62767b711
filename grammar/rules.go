// Copyright 2018 prog-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package grammar

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// RuleSet is the interface between the search engine and a concrete grammar.
// The engine itself is grammar-agnostic; rule tables are external data.
type RuleSet interface {
	NrMutations() int

	// Mutate returns a new root with leaf replaced by the expansion of
	// the given rule.
	Mutate(root, leaf *Node, rule int) *Node
}

// Part is one element of a production: either fixed terminal text or a
// non-terminal that becomes a new leaf.
type Part struct {
	Text  string
	Fixed bool
}

// Table is a RuleSet backed by a parsed rules file.
type Table struct {
	rules [][]Part
}

func (t *Table) NrMutations() int {
	return len(t.rules)
}

func (t *Table) Mutate(root, leaf *Node, rule int) *Node {
	replacement := &Node{}
	for _, part := range t.rules[rule] {
		replacement.Children = append(replacement.Children,
			&Node{Text: part.Text, Fixed: part.Fixed})
	}
	return Replace(root, leaf, replacement)
}

// ParseRules reads a rules file: one production per line, comments starting
// with #. The first and last characters of a line are delimiters and are
// stripped. Within a line, [name] spans are non-terminals and everything else
// is fixed text; \[ and \] escape literal brackets.
func ParseRules(r io.Reader) (*Table, error) {
	t := &Table{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if len(line) < 2 {
			return nil, fmt.Errorf("rules:%d: line too short", lineno)
		}
		parts, err := parseProduction(line[1 : len(line)-1])
		if err != nil {
			return nil, fmt.Errorf("rules:%d: %v", lineno, err)
		}
		t.rules = append(t.rules, parts)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(t.rules) == 0 {
		return nil, fmt.Errorf("rules: no productions")
	}
	return t, nil
}

func parseProduction(body string) ([]Part, error) {
	var parts []Part
	var buf strings.Builder
	inBracket := false
	flush := func(fixed bool) {
		if buf.Len() > 0 || !fixed {
			parts = append(parts, Part{Text: buf.String(), Fixed: fixed})
		}
		buf.Reset()
	}
	for i := 0; i < len(body); {
		c := body[i]
		switch {
		case c == '\\' && i+1 < len(body) && (body[i+1] == '[' || body[i+1] == ']'):
			buf.WriteByte(body[i+1])
			i += 2
		case c == '[' && !inBracket:
			flush(true)
			inBracket = true
			i++
		case c == ']' && inBracket:
			flush(false)
			inBracket = false
			i++
		default:
			buf.WriteByte(c)
			i++
		}
	}
	if inBracket {
		return nil, fmt.Errorf("unterminated non-terminal")
	}
	flush(true)
	return parts, nil
}

// LoadRules parses the rules file at path.
func LoadRules(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := ParseRules(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}
	return t, nil
}
