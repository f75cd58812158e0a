// Package trampoline synthesizes the machine-code stubs that stand in for
// intercepted entry points.
//
// A stub saves the argument registers, calls a report function with the
// call identity and a pointer to the saved frame, restores every argument
// and tail-jumps to the original function. The return address and return
// value path are the caller's own.
//
// Stub memory holds the code, int3 padding up to a 16 byte boundary, and
// the 16 byte call tag the report function receives a pointer to.
package trampoline

import (
	"errors"
	"fmt"

	"github.com/QetzylTech/ZLUDA/internal/arch"
)

// ErrUnsupportedArch is returned for layouts without an emitter.
var ErrUnsupportedArch = errors.New("unsupported trampoline architecture")

const tagSize = 16

// Identity is what a stub reports for each call.
type Identity struct {
	// Tag identifies the intercepted module.
	Tag [tagSize]byte
	// Index is the function's position in the catalog.
	Index uint64
}

// Params describes one stub.
type Params struct {
	Original uint64
	Report   uint64
	Identity Identity
}

// Trampoline is a sealed stub. It is immutable until Close.
type Trampoline struct {
	arch   arch.Arch
	params Params
	region Region
	code   []byte
	tagOff int
}

// Synthesize builds a stub for p in memory obtained from alloc.
func Synthesize(a arch.Arch, p Params, alloc Allocator) (*Trampoline, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedArch, a)
	}
	if p.Original == 0 || p.Report == 0 {
		return nil, errors.New("original and report addresses are required")
	}

	// Immediates have a fixed width, so the code size does not depend on
	// where the stub ends up.
	probe, err := emit(a, p, 0)
	if err != nil {
		return nil, err
	}
	tagOff := alignUp(len(probe), 16)

	region, err := alloc.Alloc(tagOff + tagSize)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate stub memory: %w", err)
	}

	tagAddr := region.Addr() + uint64(tagOff)
	code, err := emit(a, p, tagAddr)
	if err == nil && len(code) != len(probe) {
		err = fmt.Errorf("stub size changed from %d to %d bytes", len(probe), len(code))
	}
	if err != nil {
		_ = region.Free()
		return nil, err
	}

	buf := region.Bytes()
	n := copy(buf, code)
	for i := n; i < tagOff; i++ {
		buf[i] = 0xcc
	}
	copy(buf[tagOff:], p.Identity.Tag[:])

	if err := region.Seal(); err != nil {
		_ = region.Free()
		return nil, fmt.Errorf("failed to seal stub memory: %w", err)
	}

	return &Trampoline{
		arch:   a,
		params: p,
		region: region,
		code:   code,
		tagOff: tagOff,
	}, nil
}

// Arch returns the layout the stub was generated for.
func (t *Trampoline) Arch() arch.Arch { return t.arch }

// Params returns the parameters the stub was built from.
func (t *Trampoline) Params() Params { return t.params }

// Addr returns the callable entry address.
func (t *Trampoline) Addr() uint64 { return t.region.Addr() }

// TagAddr returns the address of the call tag passed to the report function.
func (t *Trampoline) TagAddr() uint64 { return t.region.Addr() + uint64(t.tagOff) }

// Code returns a copy of the stub instructions, without padding or tag.
func (t *Trampoline) Code() []byte {
	return append([]byte(nil), t.code...)
}

// Close releases the stub memory. The stub must no longer be reachable.
func (t *Trampoline) Close() error {
	return t.region.Free()
}

func alignUp(n, a int) int {
	return (n + a - 1) / a * a
}
