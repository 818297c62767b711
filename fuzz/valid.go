// Copyright 2018 prog-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzz

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/vegard/prog-fuzz/coverage"
	"github.com/vegard/prog-fuzz/harness"
	"github.com/vegard/prog-fuzz/ir"
	"github.com/vegard/prog-fuzz/transform"
)

const (
	validSeedFloor     = 250
	validCapacity      = 1200
	validSeedRewrites  = 50
	validMaxFailures   = 50
	validAlpha         = 0.85
	validInitialRounds = 10
)

// validCase is one population entry: a program plus the adaptive mutation
// budget. How many transformations to apply before recompiling is the hard
// part: large programs compile slowly, but too few rewrites rarely reach new
// coverage. The budget shrinks while a case keeps producing new edges and
// grows with its failure streak.
type validCase struct {
	prog     *ir.Program
	failures int
	rounds   float64
}

// Valid is the valid-mode search controller.
type Valid struct {
	cfg     *Config
	rnd     *rand.Rand
	ledger  *coverage.Ledger
	storage *Storage
	cases   []*validCase

	execs     uint64
	startTime time.Time
	lastSync  time.Time
	verbose   int
}

func NewValid(cfg *Config, rnd *rand.Rand, verbose int) (*Valid, error) {
	storage, err := NewStorage(cfg.OutputDir, cfg.StderrDir)
	if err != nil {
		return nil, err
	}
	return &Valid{
		cfg:       cfg,
		rnd:       rnd,
		ledger:    coverage.NewLedger(len(transform.Catalogue)),
		storage:   storage,
		startTime: time.Now(),
		verbose:   verbose,
	}, nil
}

// Run drives the mutate-and-evaluate cycle until the context is cancelled or
// a finding terminates the search. A returned error is a Fatal-tier event:
// harness failure, unexpected compile failure, compiler crash, or a
// miscompile.
func (f *Valid) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		f.broadcastStats()

		if len(f.cases) < validSeedFloor {
			if err := f.seed(ctx); err != nil {
				return err
			}
			continue
		}

		i := f.rnd.Intn(len(f.cases))
		t := f.cases[i]
		if f.verbose >= 1 {
			log.Printf("case %3d | failures %2d | rounds %5.2f", i, t.failures, t.rounds)
		}

		p := t.prog
		rounds := int(math.Ceil(t.rounds))
		if rounds < 1 {
			rounds = 1
		}
		for j := 0; j < rounds; j++ {
			p = transform.Random(f.rnd).Apply(f.rnd, p)
		}

		newBits, err := f.evaluate(ctx, p)
		if err != nil {
			return err
		}
		if newBits {
			t.rounds = validAlpha*t.rounds + (1-validAlpha)*(10*float64(t.failures))
			t.failures = 0
			t.prog = p
			continue
		}
		t.failures++
		if t.failures == validMaxFailures {
			f.cases = append(f.cases[:i], f.cases[i+1:]...)
		} else {
			t.rounds = validAlpha*t.rounds + (1-validAlpha)*(10*float64(t.failures))
		}
	}
	return ctx.Err()
}

// seed generates one fresh program, elaborates it with random rewrites and
// enqueues it only if it reached a previously-unseen edge.
func (f *Valid) seed(ctx context.Context) error {
	p := ir.NewProgram(int32(f.rnd.Uint32()))
	for i := 0; i < validSeedRewrites; i++ {
		p = transform.Random(f.rnd).Apply(f.rnd, p)
	}
	newBits, err := f.evaluate(ctx, p)
	if err != nil {
		return err
	}
	if newBits && len(f.cases) < validCapacity {
		f.cases = append(f.cases, &validCase{prog: p, rounds: validInitialRounds})
	}
	return nil
}

// evaluate compiles one candidate, runs the two-stage check and folds its
// coverage into the ledger. It reports whether any new edge was hit.
func (f *Valid) evaluate(ctx context.Context, p *ir.Program) (bool, error) {
	source := p.Source()
	if f.cfg.ScratchFile != "" {
		if err := os.WriteFile(f.cfg.ScratchFile, source, 0o644); err != nil {
			return false, err
		}
	}

	shm, err := harness.CreateShm()
	if err != nil {
		return false, err
	}
	defer shm.Remove()

	target := &harness.Target{
		Argv:        f.cfg.Target,
		Timeout:     f.cfg.Timeout(),
		StderrLimit: f.cfg.StderrLimit,
	}
	out, err := harness.Run(ctx, target, source, shm)
	if err != nil {
		return false, err
	}
	f.execs++

	if out.Crashed() {
		return false, f.finding(source, out.Stderr,
			fmt.Errorf("compiler terminated by signal %v", out.Signal))
	}
	if out.ExitCode != 0 {
		if containsICE(out.Stderr) && !IsICE(out.Stderr, f.cfg.IgnoreICE) {
			// An already-reported ICE; drop the candidate and move on.
			return false, nil
		}
		return false, f.finding(source, out.Stderr,
			fmt.Errorf("compiler exited with code %d", out.ExitCode))
	}

	// The compiler accepted the program; now make sure the generated code
	// actually computes the right answer.
	if err := harness.Assemble(ctx, f.cfg.Assembler); err != nil {
		return false, err
	}
	actual, err := harness.RunInferior(ctx, f.cfg.Inferior)
	if err != nil {
		return false, err
	}
	if actual != p.ExpectedValue {
		return false, f.finding(source, nil,
			fmt.Errorf("miscompile: program printed %d, expected %d", actual, p.ExpectedValue))
	}

	newBits := f.ledger.Update(shm.Bitmap())
	if f.verbose >= 2 {
		log.Printf("%d bits; %d new", f.ledger.TotalBits(), newBits)
	}
	return newBits > 0, nil
}

// finding saves the reproducer and stderr, then wraps err for the caller to
// terminate on.
func (f *Valid) finding(source, stderr []byte, err error) error {
	path, serr := f.storage.SaveReproducer(f.cfg.Ext, source)
	if serr != nil {
		return fmt.Errorf("%v (saving reproducer failed: %v)", err, serr)
	}
	if len(stderr) > 0 {
		f.storage.SaveStderr(stderr)
	}
	return fmt.Errorf("%v; reproducer saved to %s", err, path)
}

func (f *Valid) broadcastStats() {
	if time.Since(f.lastSync) < syncPeriod {
		return
	}
	f.lastSync = time.Now()
	uptime := time.Since(f.startTime).Truncate(time.Second)
	execsPerSec := float64(f.execs) * 1e9 / float64(time.Since(f.startTime))
	fmt.Printf("cases: %v, execs: %v (%.0f/sec), cover: %v, uptime: %v\n",
		len(f.cases), f.execs, execsPerSec, f.ledger.TotalBits(), uptime)
}

func containsICE(stderr []byte) bool {
	return IsICE(stderr, nil)
}
