// Package pprof writes CPU and heap profiles for a single run. Useful when
// a large rules file or a long command stream makes the engine worth
// measuring; enabled via environment variables so no flag surface changes.
package pprof

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/pprof"
)

// Profiler drives file-based profiling for the lifetime of the process.
type Profiler struct {
	cpuPath  string
	heapPath string
	cpuFile  *os.File
}

// FromEnv builds a profiler from SCHLEUSE_CPUPROFILE and
// SCHLEUSE_HEAPPROFILE. Returns nil when neither is set.
func FromEnv() *Profiler {
	cpu := os.Getenv("SCHLEUSE_CPUPROFILE")
	heap := os.Getenv("SCHLEUSE_HEAPPROFILE")
	if cpu == "" && heap == "" {
		return nil
	}
	return &Profiler{cpuPath: cpu, heapPath: heap}
}

// Start begins CPU profiling when configured. Heap profiles are snapshotted
// at Stop.
func (p *Profiler) Start() error {
	if p == nil || p.cpuPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(p.cpuPath), 0o755); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}
	f, err := os.Create(p.cpuPath)
	if err != nil {
		return fmt.Errorf("failed to create cpu profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to start cpu profile: %w", err)
	}
	p.cpuFile = f
	return nil
}

// Stop finishes the CPU profile and writes the heap snapshot.
func (p *Profiler) Stop() error {
	if p == nil {
		return nil
	}
	var firstErr error
	if p.cpuFile != nil {
		pprof.StopCPUProfile()
		if err := p.cpuFile.Close(); err != nil {
			firstErr = fmt.Errorf("failed to close cpu profile: %w", err)
		}
		p.cpuFile = nil
	}
	if p.heapPath != "" {
		if err := os.MkdirAll(filepath.Dir(p.heapPath), 0o755); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to create profile directory: %w", err)
			}
		} else if f, err := os.Create(p.heapPath); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to create heap profile: %w", err)
			}
		} else {
			if err := pprof.WriteHeapProfile(f); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("failed to write heap profile: %w", err)
			}
			f.Close()
		}
	}
	return firstErr
}
