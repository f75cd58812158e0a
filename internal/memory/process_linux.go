//go:build linux

package memory

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Process reads the address space of another process with
// process_vm_readv. The caller needs ptrace access to the target.
type Process struct {
	pid int
}

// OpenProcess returns a reader for the process with the given pid.
func OpenProcess(pid int) (*Process, error) {
	if pid <= 0 {
		return nil, fmt.Errorf("invalid pid %d", pid)
	}
	return &Process{pid: pid}, nil
}

// Pid returns the target process id.
func (p *Process) Pid() int { return p.pid }

func (p *Process) ReadAt(b []byte, off int64) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}

	var local unix.Iovec
	local.Base = &b[0]
	local.SetLen(len(b))
	remote := unix.RemoteIovec{Base: uintptr(off), Len: len(b)}

	n, err := unix.ProcessVMReadv(p.pid, []unix.Iovec{local}, []unix.RemoteIovec{remote}, 0)
	if err != nil {
		return 0, fmt.Errorf("process_vm_readv pid %d at 0x%x: %w", p.pid, off, err)
	}
	if n < len(b) {
		return n, ErrUnmapped
	}
	return n, nil
}

// Close is a no-op; the reader holds no descriptors.
func (p *Process) Close() error { return nil }
