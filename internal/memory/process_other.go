//go:build !linux

package memory

import (
	"fmt"
	"runtime"
)

// Process reads the address space of another process. It is only
// implemented on Linux.
type Process struct {
	pid int
}

// OpenProcess reports that remote reads are unavailable on this platform.
func OpenProcess(pid int) (*Process, error) {
	return nil, fmt.Errorf("reading process %d memory is not supported on %s", pid, runtime.GOOS)
}

// Pid returns the target process id.
func (p *Process) Pid() int { return p.pid }

func (p *Process) ReadAt(b []byte, off int64) (int, error) {
	return 0, ErrUnmapped
}

// Close is a no-op.
func (p *Process) Close() error { return nil }
