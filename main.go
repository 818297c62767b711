// Copyright 2018 prog-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// prog-fuzz is a coverage-guided fuzzer for compilers. The valid engine
// mutates programs whose output is known in advance and hunts for
// miscompiles; the grammar engine grows syntactically plausible inputs from
// a rules file and hunts for crashes and internal compiler errors.
package main

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/vegard/prog-fuzz/fuzz"
	"github.com/vegard/prog-fuzz/grammar"
)

var (
	flagSeed    int64
	flagConfig  string
	flagV       int
	flagTarget  []string
	flagTimeout int
	flagOutput  string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "prog-fuzz",
		Short:         "coverage-guided compiler fuzzer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Int64Var(&flagSeed, "seed", 0, "rng seed (0 picks one from the clock)")
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "yaml run configuration")
	root.PersistentFlags().IntVarP(&flagV, "verbose", "v", 0, "verbosity level")
	root.PersistentFlags().StringArrayVar(&flagTarget, "target", nil, "instrumented target argv (repeatable)")
	root.PersistentFlags().IntVar(&flagTimeout, "timeout", -1, "per-run timeout in ms (-1 keeps the mode default)")
	root.PersistentFlags().StringVar(&flagOutput, "output", "", "artifact directory")

	root.AddCommand(newValidCmd())
	root.AddCommand(newGrammarCmd())
	return root
}

func newValidCmd() *cobra.Command {
	var assembler []string
	var inferior string
	cmd := &cobra.Command{
		Use:   "valid",
		Short: "mutate known-output programs, hunting for miscompiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := fuzz.DefaultValidConfig()
			if err := applyFlags(&cfg); err != nil {
				return err
			}
			if len(assembler) > 0 {
				cfg.Assembler = assembler
			}
			if inferior != "" {
				cfg.Inferior = inferior
			}
			f, err := fuzz.NewValid(&cfg, newRand(), flagV)
			if err != nil {
				return err
			}
			return run(f.Run)
		},
	}
	cmd.Flags().StringArrayVar(&assembler, "assembler", nil, "assembler driver argv (repeatable)")
	cmd.Flags().StringVar(&inferior, "inferior", "", "path of the assembled binary")
	return cmd
}

func newGrammarCmd() *cobra.Command {
	var rulesPath, ext string
	cmd := &cobra.Command{
		Use:   "grammar",
		Short: "grow inputs from a grammar, hunting for crashes and ICEs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := fuzz.DefaultGrammarConfig()
			if err := applyFlags(&cfg); err != nil {
				return err
			}
			if ext != "" {
				cfg.Ext = ext
			}
			rules, err := grammar.LoadRules(rulesPath)
			if err != nil {
				return err
			}
			f, err := fuzz.NewGrammar(&cfg, rules, newRand(), flagV)
			if err != nil {
				return err
			}
			return run(f.Run)
		},
	}
	cmd.Flags().StringVar(&rulesPath, "rules", "", "grammar rules file")
	cmd.Flags().StringVar(&ext, "ext", "", "artifact file extension")
	cmd.MarkFlagRequired("rules")
	return cmd
}

func applyFlags(cfg *fuzz.Config) error {
	if flagConfig != "" {
		if err := fuzz.LoadConfig(flagConfig, cfg); err != nil {
			return err
		}
	}
	if len(flagTarget) > 0 {
		cfg.Target = flagTarget
	}
	if flagTimeout >= 0 {
		cfg.TimeoutMS = flagTimeout
	}
	if flagOutput != "" {
		cfg.OutputDir = flagOutput
	}
	return nil
}

func newRand() *rand.Rand {
	seed := flagSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	log.Printf("rng seed %d", seed)
	return rand.New(rand.NewSource(seed))
}

// run executes one engine until it finds something or the user interrupts.
func run(engine func(context.Context) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err := engine(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
