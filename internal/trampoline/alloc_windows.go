//go:build windows

package trampoline

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

// PageAllocator commits fresh pages for each stub and flips them from
// read-write to execute-read when sealed.
type PageAllocator struct{}

func (PageAllocator) Alloc(size int) (Region, error) {
	addr, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, fmt.Errorf("VirtualAlloc %d bytes: %w", size, err)
	}
	return &pageRegion{addr: addr, size: size}, nil
}

type pageRegion struct {
	mu    sync.Mutex
	addr  uintptr
	size  int
	freed bool
}

func (r *pageRegion) Addr() uint64 { return uint64(r.addr) }

func (r *pageRegion) Bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(r.addr)), r.size)
}

func (r *pageRegion) Seal() error {
	var old uint32
	if err := windows.VirtualProtect(r.addr, uintptr(r.size), windows.PAGE_EXECUTE_READ, &old); err != nil {
		return fmt.Errorf("VirtualProtect: %w", err)
	}
	return nil
}

func (r *pageRegion) Free() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.freed {
		return nil
	}
	r.freed = true
	return windows.VirtualFree(r.addr, 0, windows.MEM_RELEASE)
}
