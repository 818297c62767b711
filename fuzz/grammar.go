// Copyright 2018 prog-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzz

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/vegard/prog-fuzz/coverage"
	"github.com/vegard/prog-fuzz/grammar"
	"github.com/vegard/prog-fuzz/harness"
)

const (
	grammarCapacity = 750

	// After this many executions without a new edge the search restarts
	// from scratch, keeping only an on-disk snapshot of the best case.
	grammarRestartAfter = 500

	syncPeriod = 3 * time.Second
)

// Grammar is the grammar-mode search controller.
type Grammar struct {
	cfg     *Config
	rules   grammar.RuleSet
	rnd     *rand.Rand
	ledger  *coverage.Ledger
	storage *Storage
	pop     *Population

	execs           uint64
	execsWithoutNew int
	restarts        uint64
	startTime       time.Time
	lastSync        time.Time
	verbose         int
}

func NewGrammar(cfg *Config, rules grammar.RuleSet, rnd *rand.Rand, verbose int) (*Grammar, error) {
	storage, err := NewStorage(cfg.OutputDir, cfg.StderrDir)
	if err != nil {
		return nil, err
	}
	return &Grammar{
		cfg:       cfg,
		rules:     rules,
		rnd:       rnd,
		ledger:    coverage.NewLedger(rules.NrMutations()),
		storage:   storage,
		pop:       NewPopulation(grammarCapacity),
		startTime: time.Now(),
		verbose:   verbose,
	}, nil
}

// Run searches until the context is cancelled or a crash/ICE finding stops
// it. A nil return means a finding was saved; details are logged.
func (f *Grammar) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		f.broadcastStats()

		if f.pop.Empty() {
			f.pop.Push(NewCandidate(f.rnd, &grammar.Node{}, 0, nil, 1, 0, f.cfg.MaxSize))
		}

		// Peeking rather than popping keeps working on a promising case;
		// popping every time drains the queue before anything pays off.
		current := f.pop.Top()
		leaves := grammar.FindLeaves(current.Root)
		if len(leaves) == 0 {
			f.pop.Pop()
			continue
		}

		leaf := leaves[f.rnd.Intn(len(leaves))]
		rule := f.rnd.Intn(f.rules.NrMutations())
		root := f.rules.Mutate(current.Root, leaf, rule)
		source := []byte(root.String())

		out, newBits, err := f.evaluate(ctx, source)
		if err != nil {
			return err
		}
		f.execs++

		if out.Crashed() {
			path, err := f.storage.SaveReproducer(f.cfg.Ext, source)
			if err != nil {
				return err
			}
			f.storage.SaveStderr(out.Stderr)
			log.Printf("target terminated by signal %v; reproducer saved to %s", out.Signal, path)
			return nil
		}
		if IsICE(out.Stderr, f.cfg.IgnoreICE) {
			path, err := f.storage.SaveReproducer(f.cfg.Ext, source)
			if err != nil {
				return err
			}
			f.storage.SaveStderr(out.Stderr)
			log.Printf("internal compiler error; reproducer saved to %s", path)
			return nil
		}

		if !out.TimedOut && out.ExitCode == 0 {
			usage := f.ledger.CountMutation(rule)
			next := NewCandidate(f.rnd, root,
				current.Generation+1,
				current.CloneMutations(rule),
				current.UsageCount+usage,
				current.NewBits+newBits,
				f.cfg.MaxSize)
			f.pop.Push(next)
			if f.verbose >= 1 {
				log.Printf("compiled (%d | score %.2f | queue %d | %d new bits)",
					f.execs, next.Score, f.pop.Len(), newBits)
			}
		}

		if newBits > 0 {
			f.execsWithoutNew = 0
		} else {
			f.execsWithoutNew++
			if f.execsWithoutNew >= grammarRestartAfter {
				if err := f.restart(); err != nil {
					return err
				}
			}
		}
	}
	return ctx.Err()
}

// evaluate runs one source text through the target and updates the ledger on
// a successful run. The shared-memory segment is released on every path.
func (f *Grammar) evaluate(ctx context.Context, source []byte) (*harness.Outcome, int, error) {
	shm, err := harness.CreateShm()
	if err != nil {
		return nil, 0, err
	}
	defer shm.Remove()

	target := &harness.Target{
		Argv:        f.cfg.Target,
		Timeout:     f.cfg.Timeout(),
		StderrLimit: f.cfg.StderrLimit,
	}
	out, err := harness.Run(ctx, target, source, shm)
	if err != nil {
		return nil, 0, err
	}
	newBits := 0
	if !out.TimedOut && out.Signal < 0 && out.ExitCode == 0 {
		newBits = f.ledger.Update(shm.Bitmap())
	}
	return out, newBits, nil
}

// restart snapshots the best candidate, then clears the queue and both
// counter arrays so the search can take a fresh trajectory.
func (f *Grammar) restart() error {
	if !f.pop.Empty() {
		top := f.pop.Top()
		if path, err := f.storage.SaveReproducer(f.cfg.Ext, []byte(top.Root.String())); err == nil {
			log.Printf("restart %d: snapshot saved to %s", f.restarts+1, path)
		} else {
			return fmt.Errorf("restart snapshot: %w", err)
		}
	}
	f.pop = NewPopulation(grammarCapacity)
	f.ledger.Reset()
	f.execsWithoutNew = 0
	f.restarts++
	return nil
}

func (f *Grammar) broadcastStats() {
	if time.Since(f.lastSync) < syncPeriod {
		return
	}
	f.lastSync = time.Now()
	uptime := time.Since(f.startTime).Truncate(time.Second)
	execsPerSec := float64(f.execs) * 1e9 / float64(time.Since(f.startTime))
	fmt.Printf("queue: %v, execs: %v (%.0f/sec), restarts: %v, cover: %v, uptime: %v\n",
		f.pop.Len(), f.execs, execsPerSec, f.restarts, f.ledger.TotalBits(), uptime)
}
