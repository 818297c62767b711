// Copyright 2018 prog-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package harness

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// Valid-mode second stage: the target compiler only emits assembly, so
// detecting a miscompile requires assembling the output and running the
// resulting binary.

// Assemble invokes the assembler driver, e.g. ["g++", "prog.s"].
func Assemble(ctx context.Context, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("assemble %v: %v\n%s", argv, err, out)
	}
	return nil
}

// RunInferior executes the assembled program and parses the integer it
// prints, which the caller compares against the program's expected value.
func RunInferior(ctx context.Context, path string) (int32, error) {
	cmd := exec.CommandContext(ctx, path)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("run %v: %w", path, err)
	}
	var value int32
	if _, err := fmt.Fscanf(&stdout, "%d", &value); err != nil {
		return 0, fmt.Errorf("%v: parse output %q: %v", path, stdout.String(), err)
	}
	return value, nil
}
