package memory

import (
	"unsafe"
)

type local struct{}

// Local reads the memory of the current process. It trusts the caller: the
// addresses come from live call frames, and reading an invalid one faults.
var Local local

func (local) ReadAt(p []byte, off int64) (int, error) {
	if off == 0 {
		return 0, ErrUnmapped
	}
	if len(p) == 0 {
		return 0, nil
	}
	src := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(off))), len(p)) //nolint:govet // address comes from a native frame
	return copy(p, src), nil
}
