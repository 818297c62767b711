// Copyright 2018 prog-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzz

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Storage persists interesting specimens: reproducers under the output
// directory and the compiler's stderr alongside them.
type Storage struct {
	outputDir string
	stderrDir string
}

func NewStorage(outputDir, stderrDir string) (*Storage, error) {
	for _, dir := range []string{outputDir, stderrDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &Storage{outputDir: outputDir, stderrDir: stderrDir}, nil
}

func artifactName(ext string) string {
	return fmt.Sprintf("%d-%d.%s", time.Now().Unix(), os.Getpid(), ext)
}

// SaveReproducer writes one generated source text and returns its path.
func (s *Storage) SaveReproducer(ext string, source []byte) (string, error) {
	path := filepath.Join(s.outputDir, artifactName(ext))
	if err := os.WriteFile(path, source, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// SaveStderr mirrors the captured child stderr next to a reproducer.
func (s *Storage) SaveStderr(data []byte) (string, error) {
	path := filepath.Join(s.stderrDir, artifactName("txt"))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
