// Copyright 2018 prog-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build linux || darwin

package harness

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/vegard/prog-fuzz/coverage"
)

// Shm is one System-V shared-memory segment holding the edge bitmap. The
// instrumentation runtime in the child attaches it via the id exported in the
// environment; the parent reads the bitmap back after reaping the child.
//
// Segments are a finite kernel resource. Remove must run on every evaluation
// path or the SHM table fills up within minutes.
type Shm struct {
	id  int
	mem []byte
}

// CreateShm allocates and attaches a fresh private segment of MapSize bytes.
func CreateShm() (*Shm, error) {
	id, err := unix.SysvShmGet(unix.IPC_PRIVATE, coverage.MapSize,
		unix.IPC_CREAT|unix.IPC_EXCL|0o600)
	if err != nil {
		return nil, fmt.Errorf("shmget: %w", err)
	}
	mem, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		unix.SysvShmCtl(id, unix.IPC_RMID, nil)
		return nil, fmt.Errorf("shmat: %w", err)
	}
	return &Shm{id: id, mem: mem}, nil
}

// ID is the segment identifier the child needs to attach the bitmap.
func (s *Shm) ID() int {
	return s.id
}

// Bitmap is the attached segment: one 8-bit hit counter per edge.
func (s *Shm) Bitmap() []byte {
	return s.mem
}

// Remove marks the segment for destruction and detaches it. Safe to call
// more than once.
func (s *Shm) Remove() error {
	if s.mem == nil {
		return nil
	}
	mem := s.mem
	s.mem = nil
	if _, err := unix.SysvShmCtl(s.id, unix.IPC_RMID, nil); err != nil {
		unix.SysvShmDetach(mem)
		return fmt.Errorf("shmctl(IPC_RMID): %w", err)
	}
	if err := unix.SysvShmDetach(mem); err != nil {
		return fmt.Errorf("shmdt: %w", err)
	}
	return nil
}
