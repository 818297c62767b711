// Copyright 2018 prog-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package grammar is the untyped tree used by grammar-mode fuzzing. A node is
// either a fixed text fragment, which mutation never replaces, or a sequence
// of children. A non-fixed node without children is a leaf: a still
// expandable non-terminal.
package grammar

import (
	"io"
	"strings"
)

type Node struct {
	Text     string
	Children []*Node

	// Fixed marks a node that cannot be replaced through mutation.
	Fixed bool
}

// NewLeaf returns a replaceable non-terminal carrying its name as
// placeholder text.
func NewLeaf(text string) *Node {
	return &Node{Text: text}
}

// NewFixed returns a terminal text fragment.
func NewFixed(text string) *Node {
	return &Node{Text: text, Fixed: true}
}

// NewSeq returns an inner node with the given children.
func NewSeq(children ...*Node) *Node {
	return &Node{Children: children}
}

// setChild returns a copy of n with child i replaced; n itself is shared
// between candidates and never mutated.
func (n *Node) setChild(i int, x *Node) *Node {
	children := make([]*Node, len(n.Children))
	copy(children, n.Children)
	children[i] = x
	return &Node{Text: n.Text, Children: children, Fixed: n.Fixed}
}

// Print writes the concatenation of all text fragments in pre-order.
func (n *Node) Print(w io.Writer) {
	io.WriteString(w, n.Text)
	for _, child := range n.Children {
		child.Print(w)
	}
}

func (n *Node) String() string {
	var sb strings.Builder
	n.Print(&sb)
	return sb.String()
}

// Size is the total text length when flattened; used by candidate scoring.
func (n *Node) Size() int {
	size := len(n.Text)
	for _, child := range n.Children {
		size += child.Size()
	}
	return size
}

// Replace returns a tree equal to n with the single occurrence of a replaced
// by b, sharing every untouched subtree with n.
func Replace(n, a, b *Node) *Node {
	if n == a {
		return b
	}
	for i, child := range n.Children {
		if child2 := Replace(child, a, b); child2 != child {
			return n.setChild(i, child2)
		}
	}
	return n
}

// FindLeaves enumerates the replaceable non-terminals reachable from root.
// Traversal deduplicates on node identity: structural sharing can make the
// same subtree reachable via multiple paths, and it must count once.
func FindLeaves(root *Node) []*Node {
	var result []*Node
	seen := map[*Node]struct{}{}
	todo := []*Node{root}
	for len(todo) > 0 {
		n := todo[0]
		todo = todo[1:]
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}

		if len(n.Children) == 0 && !n.Fixed {
			result = append(result, n)
		}
		todo = append(todo, n.Children...)
	}
	return result
}
