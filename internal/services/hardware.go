// Package services provides host hardware introspection used to size the
// worker pool.
package services

import (
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
)

// maxWorkersCeiling caps the worker pool regardless of configuration or
// core count. Transcription is memory-heavy; more parallelism than this
// does not pay off.
const maxWorkersCeiling = 12

// PhysicalCores returns the number of physical CPU cores, falling back to
// the logical count when physical topology cannot be read.
func PhysicalCores() int {
	if n, err := cpu.Counts(false); err == nil && n >= 1 {
		return n
	}
	return runtime.NumCPU()
}

// RecommendedWorkers derives the worker pool size from the configured
// maximum, the host CPU count, and the number of submitted tasks.
//
// The configured value is clamped to [1, 12] and capped by the physical
// core count. Small submissions lower the result further: one task never
// needs more than one worker, two tasks never more than two.
func RecommendedWorkers(configured, taskCount int) int {
	n := configured
	if n < 1 {
		n = 1
	}
	if n > maxWorkersCeiling {
		n = maxWorkersCeiling
	}
	if cores := PhysicalCores(); n > cores {
		n = cores
	}

	switch {
	case taskCount == 1:
		n = 1
	case taskCount == 2 && n > 2:
		n = 2
	}
	if n < 1 {
		n = 1
	}
	return n
}
