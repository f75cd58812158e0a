package trampoline

import (
	"github.com/QetzylTech/ZLUDA/internal/memory"
)

// Region is memory a stub is written into. It is writable until Seal.
type Region interface {
	Addr() uint64
	Bytes() []byte
	// Seal makes the region executable and read-only.
	Seal() error
	Free() error
}

// Allocator hands out stub memory.
type Allocator interface {
	Alloc(size int) (Region, error)
}

// BufferAllocator places stubs in a memory snapshot instead of executable
// memory. The stubs can be inspected and disassembled but not run.
type BufferAllocator struct {
	Mem *memory.Snapshot
}

// NewBufferAllocator returns an allocator over a fresh snapshot.
func NewBufferAllocator() *BufferAllocator {
	return &BufferAllocator{Mem: memory.NewSnapshot()}
}

func (b *BufferAllocator) Alloc(size int) (Region, error) {
	addr, data := b.Mem.Reserve(size, 16)
	return &bufferRegion{addr: addr, data: data}, nil
}

type bufferRegion struct {
	addr uint64
	data []byte
}

func (r *bufferRegion) Addr() uint64  { return r.addr }
func (r *bufferRegion) Bytes() []byte { return r.data }
func (r *bufferRegion) Seal() error   { return nil }
func (r *bufferRegion) Free() error   { return nil }
