// Copyright 2018 prog-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package ir

import (
	"math"
	"math/rand"
	"sort"
)

// Site enumeration for mutation. FindExprs/FindStmts collect every node of
// one variant, sorted most-recent-generation first; PickRecent then draws a
// geometrically distributed index so that fresh nodes are favored but any
// site keeps non-zero probability.

// geomP is the parameter of the geometric distribution used by PickRecent.
const geomP = 0.1

// FindResult is one candidate mutation site. Ref points at the slot holding
// the node inside the (cloned) program, so assigning through it splices a
// replacement in.
type FindResult[T Node] struct {
	Fn  *Function
	Ref *Node
	N   T
}

// FindExprs returns all expressions of variant T that appear inside a
// function body, most recent generation first.
func FindExprs[T Node](p *Program) []FindResult[T] {
	return find[T](p, true, nil)
}

// FindStmts returns all statements of variant T anywhere in the program,
// optionally filtered by a visitor-context predicate (for example "only
// inside unreachable subtrees").
func FindStmts[T Node](p *Program, filter func(*Visitor) bool) []FindResult[T] {
	return find[T](p, false, filter)
}

func find[T Node](p *Program, insideFnOnly bool, filter func(*Visitor) bool) []FindResult[T] {
	var results []FindResult[T]
	v := &Visitor{}
	v.Expr = func(fn *Function, ref *Node) {
		if insideFnOnly && fn == nil {
			return
		}
		if filter != nil && !filter(v) {
			return
		}
		if n, ok := (*ref).(T); ok {
			results = append(results, FindResult[T]{fn, ref, n})
		}
	}
	p.Visit(v)
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].N.Generation() > results[j].N.Generation()
	})
	return results
}

// Geometric draws from a geometric distribution with parameter prob
// (the number of failures before the first success).
func Geometric(r *rand.Rand, prob float64) int {
	u := r.Float64()
	for u == 0 {
		u = r.Float64()
	}
	return int(math.Log(u) / math.Log(1-prob))
}

// PickRecent selects one site with a bias toward recently created nodes.
// results must already be sorted by descending generation.
func PickRecent[T Node](r *rand.Rand, results []FindResult[T]) (FindResult[T], bool) {
	if len(results) == 0 {
		var zero FindResult[T]
		return zero, false
	}
	index := Geometric(r, geomP)
	if index >= len(results) {
		index = len(results) - 1
	}
	return results[index], true
}

// PickUniform selects one site with no recency bias. Used for
// literal-value-specific subsets and for statement insertion points.
func PickUniform[T Node](r *rand.Rand, results []FindResult[T]) (FindResult[T], bool) {
	if len(results) == 0 {
		var zero FindResult[T]
		return zero, false
	}
	return results[r.Intn(len(results))], true
}
