package format

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/QetzylTech/ZLUDA/internal/catalog"
	"github.com/QetzylTech/ZLUDA/internal/memory"
	"github.com/QetzylTech/ZLUDA/internal/render"
)

// CountArray renders a pointer argument as an array whose length is held by
// the argument at index Count. Unless Bracketed is set, a count below two
// renders the single referenced element with no brackets.
type CountArray struct {
	Count     int
	Bracketed bool
}

func (o CountArray) validate(fn *catalog.Function) error {
	if o.Count < 0 || o.Count >= len(fn.Params) {
		return fmt.Errorf("count argument %d out of range", o.Count)
	}
	return nil
}

func (o CountArray) FormatArg(w io.Writer, a Arg) error {
	v := a.Value()
	if v.Type.Kind != catalog.KindPointer {
		return fmt.Errorf("%s argument %d: count array over %s", a.Name, a.Index, v.Type)
	}
	if o.Count >= len(a.Args) {
		return a.Render(w, v)
	}
	n := a.Args[o.Count].Uint()
	if !o.Bracketed && n < 2 {
		return a.Render(w, v)
	}

	addr := v.Uint()
	if addr == 0 && n > 0 {
		_, err := io.WriteString(w, "NULL")
		return err
	}

	elem := v.Type.Elem
	if _, err := io.WriteString(w, "["); err != nil {
		return err
	}
	for i := uint64(0); i < n; i++ {
		if i > 0 {
			if _, err := io.WriteString(w, ", "); err != nil {
				return err
			}
		}
		at := addr + i*uint64(elem.Size)
		ev, err := a.r.Load(elem, at)
		if err != nil {
			if _, err := fmt.Fprintf(w, "0x%x", at); err != nil {
				return err
			}
			continue
		}
		if err := a.Render(w, ev); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "]")
	return err
}

// SentinelList renders a pointer to a list of pointer-sized slots terminated
// by the value 0. The values 1 and 2 are markers; the slot after the buffer
// size marker points at the size and is printed as a decimal integer.
type SentinelList struct {
	End           string
	BufferPointer string
	BufferSize    string
}

func (o SentinelList) FormatArg(w io.Writer, a Arg) error {
	v := a.Value()
	addr := v.Uint()
	if addr == 0 {
		_, err := io.WriteString(w, "NULL")
		return err
	}

	mem := a.r.Memory()
	ptrSize := a.r.Catalog().PointerSize
	if _, err := io.WriteString(w, "["); err != nil {
		return err
	}

	sizeNext := false
	for i := 0; ; i++ {
		if i > 0 {
			if _, err := io.WriteString(w, ", "); err != nil {
				return err
			}
		}

		slot, err := memory.ReadPointer(mem, addr+uint64(i*ptrSize), ptrSize)
		if err != nil {
			_, err := io.WriteString(w, "...]")
			return err
		}

		var text string
		switch {
		case sizeNext:
			sizeNext = false
			size, err := memory.ReadUint(mem, slot, ptrSize)
			if err != nil {
				text = fmt.Sprintf("0x%x", slot)
			} else {
				text = strconv.FormatUint(size, 10)
			}
		case slot == 0:
			_, err := io.WriteString(w, o.End+"]")
			return err
		case slot == 1:
			text = o.BufferPointer
		case slot == 2:
			text = o.BufferSize
			sizeNext = true
		default:
			text = fmt.Sprintf("0x%x", slot)
		}
		if _, err := io.WriteString(w, text); err != nil {
			return err
		}
	}
}

// LUID renders a pointer to an 8 byte locally unique identifier.
type LUID struct{}

func (LUID) FormatArg(w io.Writer, a Arg) error {
	addr := a.Value().Uint()
	if addr == 0 {
		_, err := io.WriteString(w, "NULL")
		return err
	}
	b, err := memory.Read(a.r.Memory(), addr, 8)
	if err != nil {
		_, err := fmt.Fprintf(w, "0x%x", addr)
		return err
	}
	low := binary.LittleEndian.Uint32(b[0:4])
	high := binary.LittleEndian.Uint32(b[4:8])
	_, err = io.WriteString(w, render.FormatLUID(low, high))
	return err
}

// ArgTaggedUnion renders a pointer to a union whose active member is chosen
// by the enum argument at index Tag.
type ArgTaggedUnion struct {
	Tag int
}

func (o ArgTaggedUnion) validate(fn *catalog.Function) error {
	if o.Tag < 0 || o.Tag >= len(fn.Params) {
		return fmt.Errorf("tag argument %d out of range", o.Tag)
	}
	t := fn.Params[o.Tag].Type
	if t.Kind != catalog.KindEnum {
		return fmt.Errorf("tag argument %d is %s, not an enum", o.Tag, t)
	}
	return nil
}

func (o ArgTaggedUnion) FormatArg(w io.Writer, a Arg) error {
	v := a.Value()
	if v.Type.Kind != catalog.KindPointer || v.Type.Elem.Kind != catalog.KindUnion {
		return fmt.Errorf("%s argument %d: %s is not a pointer to a union", a.Name, a.Index, v.Type)
	}
	addr := v.Uint()
	if addr == 0 {
		_, err := io.WriteString(w, "NULL")
		return err
	}
	if o.Tag >= len(a.Args) {
		return a.Render(w, v)
	}
	uv, err := a.r.Load(v.Type.Elem, addr)
	if err != nil {
		_, err := fmt.Fprintf(w, "0x%x", addr)
		return err
	}
	return a.r.RenderUnion(w, uv, a.Args[o.Tag].Tag(), a.Site())
}

// Unsupported marks an argument the tracer cannot render yet.
type Unsupported struct{}

func (Unsupported) FormatArg(_ io.Writer, a Arg) error {
	return fmt.Errorf("%w: %s argument %d", render.ErrNotImplemented, a.Name, a.Index)
}

// IsNotImplemented reports whether err signals an unsupported shape.
func IsNotImplemented(err error) bool {
	return errors.Is(err, render.ErrNotImplemented)
}
