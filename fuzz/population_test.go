// Copyright 2018 prog-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzz

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vegard/prog-fuzz/grammar"
)

func TestPopulationNeverExceedsCapacity(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	pq := NewPopulation(10)
	for i := 0; i < 1000; i++ {
		pq.Push(&Candidate{Score: r.Float64() * 1000})
		require.LessOrEqual(t, pq.Len(), 10)
	}
	assert.Equal(t, 10, pq.Len())
}

func TestPopulationOrdering(t *testing.T) {
	pq := NewPopulation(100)
	for _, score := range []float64{5, -3, 12, 0} {
		pq.Push(&Candidate{Score: score})
	}
	assert.Equal(t, float64(-3), pq.Top().Score)
	assert.Equal(t, float64(-3), pq.Pop().Score)
	assert.Equal(t, float64(0), pq.Top().Score)
	assert.Equal(t, 3, pq.Len())
}

func TestPopulationEvictsWorst(t *testing.T) {
	pq := NewPopulation(2)
	pq.Push(&Candidate{Score: 1})
	pq.Push(&Candidate{Score: 2})
	pq.Push(&Candidate{Score: 3})
	assert.Equal(t, 2, pq.Len())
	assert.Equal(t, float64(1), pq.Pop().Score)
	assert.Equal(t, float64(2), pq.Pop().Score)
}

func TestCandidateScoring(t *testing.T) {
	// The jitter is N(0, 100^2); comparing means over many samples keeps
	// the test robust while still catching a sign error on the new-bits and
	// generation terms.
	mean := func(generation, newBits int) float64 {
		r := rand.New(rand.NewSource(7))
		total := 0.0
		const samples = 2000
		for i := 0; i < samples; i++ {
			c := NewCandidate(r, grammar.NewFixed("x"), generation, nil, 1, newBits, 2048)
			total += c.Score
		}
		return total / samples
	}

	assert.Less(t, mean(0, 5), mean(0, 0), "new coverage must improve the score")
	assert.Less(t, mean(10, 0), mean(0, 0), "deeper generations must improve the score")
}

func TestCloneMutations(t *testing.T) {
	c := &Candidate{Mutations: map[int]bool{1: true}}
	m := c.CloneMutations(2)
	assert.Equal(t, map[int]bool{1: true, 2: true}, m)
	assert.Equal(t, map[int]bool{1: true}, c.Mutations)

	empty := &Candidate{}
	assert.Equal(t, map[int]bool{3: true}, empty.CloneMutations(3))
}

func TestIsICE(t *testing.T) {
	ignore := []string{"gimplification failed"}

	assert.False(t, IsICE([]byte("error: expected ';'"), ignore))
	assert.True(t, IsICE([]byte("x.cc:1: internal compiler error: in foo"), ignore))
	assert.False(t, IsICE([]byte("internal compiler error: gimplification failed"), ignore))
	assert.True(t, IsICE([]byte("internal compiler error"), nil))
}
