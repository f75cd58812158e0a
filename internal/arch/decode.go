package arch

import (
	"fmt"
	"io"

	"github.com/QetzylTech/ZLUDA/internal/catalog"
	"github.com/QetzylTech/ZLUDA/internal/memory"
	"github.com/QetzylTech/ZLUDA/internal/render"
)

// Decode reads the arguments of fn from a trampoline frame. mem must expose
// the stack the frame lives on.
func (a Arch) Decode(mem io.ReaderAt, frame uint64, fn *catalog.Function) ([]render.Value, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, a)
	}
	d := decoder{arch: a, l: a.Layout(), mem: mem, frame: frame}

	out := make([]render.Value, len(fn.Params))
	for i, p := range fn.Params {
		data, err := d.next(i, p.Type)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s argument %s: %w", fn.Name, p.Name, err)
		}
		out[i] = render.Value{Type: p.Type, Data: data}
	}
	return out, nil
}

type decoder struct {
	arch  Arch
	l     Layout
	mem   io.ReaderAt
	frame uint64

	ints  int
	xmms  int
	stack int64
}

func (d *decoder) read(off int64, size int) ([]byte, error) {
	return memory.Read(d.mem, d.frame+uint64(off), size)
}

func (d *decoder) next(pos int, t *catalog.Type) ([]byte, error) {
	switch {
	case d.arch == X86:
		return d.onStack(t, 4)
	case d.l.Positional:
		return d.positional(pos, t)
	}
	return d.sysv(t)
}

// onStack consumes the next stack slot, rounded to the slot size.
func (d *decoder) onStack(t *catalog.Type, slot int64) ([]byte, error) {
	off := d.l.Stack + d.stack
	d.stack += alignUp(int64(t.Size), slot)
	return d.read(off, t.Size)
}

func (d *decoder) positional(pos int, t *catalog.Type) ([]byte, error) {
	if isFloat(t) && pos < d.l.XMM {
		return d.read(d.l.XMMOffset+16*int64(pos), t.Size)
	}

	var off int64
	if pos < len(d.l.Args) {
		off = d.l.Args[pos].Offset
	} else {
		off = d.l.Stack + 8*int64(pos-len(d.l.Args))
	}

	if isAggregate(t) && !fitsRegister(t.Size) {
		// Passed by reference to a caller-owned copy.
		addr, err := memory.ReadPointer(d.mem, d.frame+uint64(off), 8)
		if err != nil {
			return nil, err
		}
		return memory.Read(d.mem, addr, t.Size)
	}
	return d.read(off, t.Size)
}

func (d *decoder) sysv(t *catalog.Type) ([]byte, error) {
	switch {
	case isFloat(t):
		if d.xmms < d.l.XMM {
			off := d.l.XMMOffset + 16*int64(d.xmms)
			d.xmms++
			return d.read(off, t.Size)
		}
		return d.onStack(t, 8)

	case isAggregate(t):
		// Aggregates up to two eightbytes travel in integer registers when
		// enough are left; larger ones are always passed in memory. Saved
		// argument registers are contiguous, so a multi-register value can
		// be read in one piece.
		n := (t.Size + 7) / 8
		if t.Size <= 16 && d.ints+n <= len(d.l.Args) {
			off := d.l.Args[d.ints].Offset
			d.ints += n
			return d.read(off, t.Size)
		}
		return d.onStack(t, 8)
	}

	if d.ints < len(d.l.Args) {
		off := d.l.Args[d.ints].Offset
		d.ints++
		return d.read(off, t.Size)
	}
	return d.onStack(t, 8)
}

func isFloat(t *catalog.Type) bool {
	return t.Kind == catalog.KindScalar && t.Scalar.Float()
}

func isAggregate(t *catalog.Type) bool {
	switch t.Kind {
	case catalog.KindStruct, catalog.KindUnion, catalog.KindArray:
		return true
	}
	return false
}

func fitsRegister(size int) bool {
	return size == 1 || size == 2 || size == 4 || size == 8
}

func alignUp(n, a int64) int64 {
	return (n + a - 1) / a * a
}
