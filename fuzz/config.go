// Copyright 2018 prog-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package fuzz contains the search controllers: the valid-mode loop over
// semantics-preserving transformations and the grammar-mode priority-queue
// loop, plus their shared configuration and artifact storage.
package fuzz

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is one engine's run configuration, loadable from YAML with CLI
// flags layered on top.
type Config struct {
	// Target is the instrumented compiler/interpreter argv.
	Target []string `yaml:"target"`

	// Assembler turns the compiler's assembly output into a binary in
	// valid mode, e.g. [g++ prog.s].
	Assembler []string `yaml:"assembler"`

	// Inferior is the path of the binary the assembler produces.
	Inferior string `yaml:"inferior"`

	// Ext is the artifact file extension (cc, js, ...).
	Ext string `yaml:"ext"`

	// TimeoutMS bounds one evaluation; 0 waits unbounded.
	TimeoutMS int `yaml:"timeout_ms"`

	// StderrLimit caps captured child stderr, in bytes.
	StderrLimit int `yaml:"stderr_limit"`

	// MaxSize is the soft target size for grammar-mode test cases.
	MaxSize int `yaml:"max_size"`

	OutputDir string `yaml:"output_dir"`
	StderrDir string `yaml:"stderr_dir"`

	// ScratchFile receives the current source before each compile so the
	// last input survives a fuzzer crash. Empty disables it.
	ScratchFile string `yaml:"scratch_file"`

	// IgnoreICE lists stderr substrings of internal compiler errors that
	// are already reported upstream and keep re-surfacing.
	IgnoreICE []string `yaml:"ignore_ice"`
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// DefaultValidConfig targets a cc1plus-style compiler reading C++ on stdin
// and writing assembly to prog.s.
func DefaultValidConfig() Config {
	return Config{
		Target:      []string{"cc1plus", "-quiet", "-O3", "-o", "prog.s"},
		Assembler:   []string{"g++", "prog.s"},
		Inferior:    "./a.out",
		Ext:         "cc",
		TimeoutMS:   0,
		StderrLimit: 400 << 10,
		OutputDir:   "output",
		StderrDir:   "stderr",
		ScratchFile: "/tmp/current.cc",
		IgnoreICE: []string{
			"of kind asm_expr",
			"gimplification failed",
		},
	}
}

// DefaultGrammarConfig targets a compiler front end or JS engine that only
// needs to accept the input, with a short per-run timeout.
func DefaultGrammarConfig() Config {
	return Config{
		Target:      []string{"cc1plus", "-quiet", "-O3", "-o", "-.s"},
		Ext:         "cc",
		TimeoutMS:   500,
		StderrLimit: 40 << 10,
		MaxSize:     2048,
		OutputDir:   "output",
		StderrDir:   "stderr",
		IgnoreICE: []string{
			"types may not be defined in parameter types",
			"internal compiler error: in synthesize_implicit_template_parm",
			"internal compiler error: in search_anon_aggr",
			"non_type_check",
			"internal compiler error: in xref_basetypes, at",
			"internal compiler error: in build_capture_proxy",
			"internal compiler error: tree check: expected record_type or union_type or qual_union_type, have array_type in reduced_constant_expression_p",
		},
	}
}

// LoadConfig overlays the YAML file at path onto cfg.
func LoadConfig(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%s: %v", path, err)
	}
	return nil
}

// IsICE reports whether stderr contains an internal-compiler-error message
// that is not on the ignore list.
func IsICE(stderr []byte, ignore []string) bool {
	if !bytes.Contains(stderr, []byte("internal compiler error")) {
		return false
	}
	for _, s := range ignore {
		if bytes.Contains(stderr, []byte(s)) {
			return false
		}
	}
	return true
}
