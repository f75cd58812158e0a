package memory

import (
	"sort"
	"sync"
)

// snapshotBase is the first address handed out by Reserve.
const snapshotBase = 0x10000

// Snapshot is a sparse, in-memory address space. It backs tests, offline
// rendering and the stubs the thunk command emits. Mapped slices are kept by
// reference, so writes through them are visible to later reads.
type Snapshot struct {
	mu   sync.RWMutex
	segs []segment
	next uint64
}

type segment struct {
	addr uint64
	data []byte
}

func (s segment) end() uint64 { return s.addr + uint64(len(s.data)) }

// NewSnapshot returns an empty address space.
func NewSnapshot() *Snapshot {
	return &Snapshot{next: snapshotBase}
}

// Map places data at addr, keeping a reference to the slice. A mapping
// that starts at or above an existing one shadows it where they overlap.
func (s *Snapshot) Map(addr uint64, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seg := segment{addr: addr, data: data}
	i := sort.Search(len(s.segs), func(i int) bool { return s.segs[i].addr > addr })
	s.segs = append(s.segs, segment{})
	copy(s.segs[i+1:], s.segs[i:])
	s.segs[i] = seg

	if seg.end() > s.next {
		s.next = seg.end()
	}
}

// Reserve allocates size zeroed bytes aligned to align and returns their
// address and backing slice.
func (s *Snapshot) Reserve(size, align int) (uint64, []byte) {
	if align <= 0 {
		align = 1
	}
	s.mu.Lock()
	a := uint64(align)
	addr := (s.next + a - 1) &^ (a - 1)
	// Keep a gap so distinct reservations never read as one range.
	s.next = addr + uint64(size) + 1
	s.mu.Unlock()

	data := make([]byte, size)
	s.Map(addr, data)
	return addr, data
}

// Alloc copies data into a fresh 16-byte aligned reservation.
func (s *Snapshot) Alloc(data []byte) uint64 {
	addr, buf := s.Reserve(len(data), 16)
	copy(buf, data)
	return addr
}

// ReadAt implements io.ReaderAt over the mapped segments. A read may span
// adjacent segments; it stops at the first unmapped byte.
func (s *Snapshot) ReadAt(p []byte, off int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	addr := uint64(off)
	n := 0
	for n < len(p) {
		seg, ok := s.find(addr)
		if !ok {
			return n, ErrUnmapped
		}
		c := copy(p[n:], seg.data[addr-seg.addr:])
		n += c
		addr += uint64(c)
	}
	return n, nil
}

// find returns the highest-starting segment that contains addr.
func (s *Snapshot) find(addr uint64) (segment, bool) {
	i := sort.Search(len(s.segs), func(i int) bool { return s.segs[i].addr > addr })
	for j := i - 1; j >= 0; j-- {
		if addr < s.segs[j].end() {
			return s.segs[j], true
		}
	}
	return segment{}, false
}
