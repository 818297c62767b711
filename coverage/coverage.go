// Copyright 2018 prog-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package coverage

const (
	// MapSize is the size of the edge-hit bitmap written by the
	// instrumentation runtime inside the target. It must match the value
	// the target was built with.
	MapSize = 64 << 10

	// ShmEnvVar is the environment variable the instrumentation runtime
	// reads to find the shared-memory segment holding the bitmap.
	ShmEnvVar = "__AFL_SHM_ID"
)
