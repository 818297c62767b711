// Copyright 2018 prog-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package coverage

import "log"

// Ledger accumulates edge-hit counts across a whole run, plus per-mutation
// usage counts. It is reset only at a search restart.
type Ledger struct {
	traceBits [MapSize]uint32
	mutations []uint32
	totalBits int
}

func NewLedger(nrMutations int) *Ledger {
	return &Ledger{
		mutations: make([]uint32, nrMutations),
	}
}

// Update folds one run's bitmap into the cumulative counters and reports how
// many edges were hit for the first time.
func (l *Ledger) Update(bitmap []byte) int {
	if len(bitmap) != MapSize {
		log.Fatalf("bad cover bitmap size (%v)", len(bitmap))
	}
	newBits := 0
	for i, b := range bitmap {
		if b == 0 {
			continue
		}
		l.traceBits[i]++
		if l.traceBits[i] == 1 {
			newBits++
		}
	}
	l.totalBits += newBits
	return newBits
}

// CountMutation bumps the usage counter for one mutation rule and returns the
// new count.
func (l *Ledger) CountMutation(rule int) uint32 {
	l.mutations[rule]++
	return l.mutations[rule]
}

// TotalBits is the number of distinct edges seen since the last reset.
func (l *Ledger) TotalBits() int {
	return l.totalBits
}

func (l *Ledger) Reset() {
	l.traceBits = [MapSize]uint32{}
	for i := range l.mutations {
		l.mutations[i] = 0
	}
	l.totalBits = 0
}
