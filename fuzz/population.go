// Copyright 2018 prog-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzz

import (
	"math/rand"
	"sort"

	"github.com/vegard/prog-fuzz/grammar"
)

// Candidate is one grammar-mode test case. Lower score means more important.
type Candidate struct {
	Root       *grammar.Node
	Generation int

	// Mutations is the set of rule ids that produced this candidate.
	Mutations map[int]bool

	// UsageCount accumulates how often this lineage's rules had been used
	// when each ancestor was created; rarely used rules score better.
	UsageCount uint32

	// NewBits accumulates the previously-unseen edges this lineage found.
	NewBits int

	Score float64
}

// NewCandidate computes the candidate's score once at creation.
//
// The jitter term is essential: it breaks ties between near-identical
// candidates and keeps the search exploring instead of hammering the current
// minimum.
func NewCandidate(r *rand.Rand, root *grammar.Node, generation int,
	mutations map[int]bool, usage uint32, newBits, maxSize int) *Candidate {
	c := &Candidate{
		Root:       root,
		Generation: generation,
		Mutations:  mutations,
		UsageCount: usage,
		NewBits:    newBits,
	}

	score := -float64(len(mutations))

	// Test cases should grow toward maxSize, then stay there: too-large
	// inputs slow every compile down, but mutations tend to grow them.
	size := root.Size()
	if size < maxSize {
		score += float64(maxSize) / 5
	} else {
		score += float64(size-maxSize) / 5
	}

	score -= 10 * float64(generation)
	if usage > 0 {
		score -= 100 * float64(usage+1) / float64(usage)
	}
	score -= 100 * float64(newBits)
	score -= 100 * float64(len(grammar.FindLeaves(root)))
	score += r.NormFloat64() * 100

	c.Score = score
	return c
}

// CloneMutations copies the rule-id set with one more rule added.
func (c *Candidate) CloneMutations(rule int) map[int]bool {
	m := make(map[int]bool, len(c.Mutations)+1)
	for k := range c.Mutations {
		m[k] = true
	}
	m[rule] = true
	return m
}

// Population is a bounded candidate set ordered by ascending score. Pushing
// past capacity evicts the worst (highest-scored) candidates.
type Population struct {
	capacity int
	items    []*Candidate
}

func NewPopulation(capacity int) *Population {
	return &Population{capacity: capacity}
}

func (pq *Population) Push(c *Candidate) {
	i := sort.Search(len(pq.items), func(i int) bool {
		return pq.items[i].Score > c.Score
	})
	pq.items = append(pq.items, nil)
	copy(pq.items[i+1:], pq.items[i:])
	pq.items[i] = c
	if len(pq.items) > pq.capacity {
		pq.items = pq.items[:pq.capacity]
	}
}

// Top returns the best candidate without removing it.
func (pq *Population) Top() *Candidate {
	return pq.items[0]
}

// Pop removes and returns the best candidate.
func (pq *Population) Pop() *Candidate {
	c := pq.items[0]
	pq.items = pq.items[1:]
	return c
}

func (pq *Population) Len() int {
	return len(pq.items)
}

func (pq *Population) Empty() bool {
	return len(pq.items) == 0
}
