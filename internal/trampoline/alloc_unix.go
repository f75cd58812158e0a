//go:build unix

package trampoline

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// PageAllocator maps anonymous pages for each stub and flips them from
// read-write to read-execute when sealed.
type PageAllocator struct{}

func (PageAllocator) Alloc(size int) (Region, error) {
	page := unix.Getpagesize()
	n := (size + page - 1) / page * page

	b, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes: %w", n, err)
	}
	return &pageRegion{b: b, addr: uint64(uintptr(unsafe.Pointer(&b[0])))}, nil
}

type pageRegion struct {
	mu   sync.Mutex
	b    []byte
	addr uint64
}

func (r *pageRegion) Addr() uint64 { return r.addr }

func (r *pageRegion) Bytes() []byte { return r.b }

func (r *pageRegion) Seal() error {
	if err := unix.Mprotect(r.b, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return fmt.Errorf("mprotect: %w", err)
	}
	return nil
}

func (r *pageRegion) Free() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.b == nil {
		return nil
	}
	b := r.b
	r.b = nil
	return unix.Munmap(b)
}
