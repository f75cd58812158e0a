package render

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/QetzylTech/ZLUDA/internal/catalog"
	"github.com/QetzylTech/ZLUDA/internal/memory"
)

// compile selects the rendering procedure for a type. Named formats take
// precedence over the shape of the type.
func (r *Renderer) compile(t *catalog.Type) proc {
	if t.Unsupported {
		return notImplemented(t)
	}

	switch t.Format {
	case catalog.FormatGUID:
		return func(w *writer, v Value, _ CallSite) { w.str(FormatGUID(v.Data)) }
	case catalog.FormatHandle:
		return func(w *writer, v Value, _ CallSite) { w.str(FormatHandle(v.Data)) }
	case catalog.FormatAddress:
		return func(w *writer, v Value, _ CallSite) { w.printf("0x%x", v.Uint()) }
	}

	switch t.Kind {
	case catalog.KindScalar:
		return func(w *writer, v Value, _ CallSite) { w.str(scalarText(t.Scalar, v)) }
	case catalog.KindEnum:
		return func(w *writer, v Value, _ CallSite) { w.str(enumText(t, v)) }
	case catalog.KindPointer:
		return r.pointer(t)
	case catalog.KindArray:
		return r.array(t)
	case catalog.KindStruct:
		return func(w *writer, v Value, _ CallSite) { r.renderStruct(w, v, nil) }
	case catalog.KindUnion:
		return r.union(t)
	}
	return notImplemented(t)
}

func notImplemented(t *catalog.Type) proc {
	return func(w *writer, _ Value, _ CallSite) {
		w.fail(fmt.Errorf("%w: rendering %s", ErrNotImplemented, t))
	}
}

func scalarText(s catalog.Scalar, v Value) string {
	switch {
	case s == catalog.ScalarFloat32:
		return strconv.FormatFloat(float64(math.Float32frombits(uint32(v.Uint()))), 'f', -1, 32)
	case s == catalog.ScalarFloat64:
		return strconv.FormatFloat(math.Float64frombits(v.Uint()), 'f', -1, 64)
	case s == catalog.ScalarBool:
		return strconv.FormatBool(v.Uint() != 0)
	case s.Signed():
		return strconv.FormatInt(v.Int(), 10)
	}
	return strconv.FormatUint(v.Uint(), 10)
}

func enumText(t *catalog.Type, v Value) string {
	if name, ok := t.VariantName(v.Tag()); ok {
		return name
	}
	return scalarText(t.Scalar, v)
}

// pointer renders NULL, or the pointee read from memory. Named pointer
// typedefs and pointers to void or opaque types are handles and print as
// their address.
func (r *Renderer) pointer(t *catalog.Type) proc {
	elem := t.Elem
	address := t.Name != "" || elem.Kind == catalog.KindVoid || elem.Kind == catalog.KindOpaque

	return func(w *writer, v Value, site CallSite) {
		addr := v.Uint()
		if address && !elem.Unsupported {
			w.printf("0x%x", addr)
			return
		}
		if addr == 0 {
			w.str("NULL")
			return
		}
		if elem.Unsupported {
			w.fail(fmt.Errorf("%w: rendering %s", ErrNotImplemented, elem))
			return
		}

		switch {
		case elem.IsChar():
			s, err := memory.ReadCString(r.mem, addr)
			switch {
			case errors.Is(err, memory.ErrTooLong):
				w.str(`"` + lossy(s) + `"...`)
			case err != nil:
				w.printf("0x%x", addr)
			default:
				w.str(`"` + lossy(s) + `"`)
			}
		case elem.IsWChar():
			s, err := memory.ReadUTF16(r.mem, addr)
			switch {
			case errors.Is(err, memory.ErrTooLong):
				w.str(`"` + s + `"...`)
			case err != nil:
				w.printf("0x%x", addr)
			default:
				w.str(`"` + s + `"`)
			}
		default:
			pv, err := r.Load(elem, addr)
			if err != nil {
				w.printf("0x%x", addr)
				return
			}
			r.render(w, pv, site)
		}
	}
}

func (r *Renderer) array(t *catalog.Type) proc {
	return func(w *writer, v Value, _ CallSite) {
		w.str("[")
		for i := 0; i < t.Len; i++ {
			if i > 0 {
				w.str(", ")
			}
			r.render(w, v.at(catalog.Field{Type: t.Elem, Offset: i * t.Elem.Size}), CallSite{})
		}
		w.str("]")
	}
}

// fieldList writes the `name: value` entries of a brace list.
type fieldList struct {
	w *writer
	n int
}

func (l *fieldList) sep() {
	if l.n == 0 {
		l.w.str(" ")
	} else {
		l.w.str(", ")
	}
	l.n++
}

func (l *fieldList) field(name string) {
	l.sep()
	l.w.str(name)
	l.w.str(": ")
}

// renderStruct writes `{ a: x, b: y }`. sel picks the live member of
// embedded unions by field name.
func (r *Renderer) renderStruct(w *writer, v Value, sel map[string]string) {
	w.str("{")
	l := &fieldList{w: w}
	if r.fields(w, l, v, sel) {
		l.sep()
		w.str("...")
	}
	w.str(" }")
}

// fields writes the visible fields of a struct into l. It reports whether a
// tagged union was skipped because its tag is unknown.
func (r *Renderer) fields(w *writer, l *fieldList, v Value, sel map[string]string) (partial bool) {
	t := v.Type
	for _, f := range t.Fields {
		if f.Reserved {
			continue
		}
		fv := v.at(f)

		if u := f.Type.Union; f.Type.Kind == catalog.KindUnion && u != nil && u.Tag != "" && !u.SelfTagged() {
			var (
				c  *catalog.UnionCase
				ok bool
			)
			if tf, found := t.FieldByName(u.Tag); found {
				c, ok = u.Lookup(v.at(tf).Tag())
			}
			if !ok {
				partial = true
				continue
			}
			r.sibling(w, l, f.Name, fv, c)
			continue
		}

		if f.Embedded {
			if r.inline(w, l, fv, sel[f.Name], sel) {
				partial = true
			}
			continue
		}

		l.field(f.Name)
		r.render(w, fv, CallSite{})
	}
	return partial
}

// sibling renders a union whose tag is a field of the enclosing struct.
func (r *Renderer) sibling(w *writer, l *fieldList, name string, u Value, c *catalog.UnionCase) {
	mv, err := u.Path(c.Member)
	if err != nil {
		w.fail(err)
		return
	}

	if c.Flatten && mv.Type.Kind == catalog.KindStruct {
		for _, f := range mv.Type.Fields {
			if f.Reserved {
				continue
			}
			fv := mv.at(f)
			if f.Type.Kind == catalog.KindPointer && fv.Uint() == 0 {
				continue
			}
			l.field(f.Name)
			r.render(w, fv, CallSite{})
		}
		return
	}

	l.field(name)
	r.member(w, mv, c.Select, CallSite{})
}

// inline renders an embedded member into the enclosing brace list.
func (r *Renderer) inline(w *writer, l *fieldList, v Value, pick string, sel map[string]string) bool {
	if v.Type.Kind == catalog.KindStruct {
		return r.fields(w, l, v, sel)
	}
	if v.Type.Kind != catalog.KindUnion {
		w.fail(fmt.Errorf("embedded field of type %s", v.Type))
		return false
	}

	var (
		f  catalog.Field
		ok bool
	)
	if pick != "" {
		f, ok = v.Type.FieldByName(pick)
	} else {
		f, ok = firstVisible(v.Type.Fields)
	}
	if !ok {
		return false
	}
	l.field(f.Name)
	r.render(w, v.at(f), CallSite{})
	return false
}

func (r *Renderer) member(w *writer, v Value, sel map[string]string, site CallSite) {
	if len(sel) > 0 && v.Type.Kind == catalog.KindStruct && !v.Type.Unsupported && v.Type.Format == catalog.FormatDefault {
		r.renderStruct(w, v, sel)
		return
	}
	r.render(w, v, site)
}

func (r *Renderer) renderCase(w *writer, v Value, c *catalog.UnionCase, site CallSite) {
	mv, err := v.Path(c.Member)
	if err != nil {
		w.fail(err)
		return
	}
	r.member(w, mv, c.Select, site)
}

// union renders a standalone union. Self-tagged unions pick their case
// from the tag; untagged unions show their first member. Without a usable
// tag only the common fields are shown, followed by "...".
func (r *Renderer) union(t *catalog.Type) proc {
	u := t.Union
	return func(w *writer, v Value, site CallSite) {
		if u == nil || len(u.Cases) == 0 {
			f, ok := firstVisible(t.Fields)
			if !ok {
				w.str("{ }")
				return
			}
			r.render(w, v.at(f), CallSite{})
			return
		}

		if u.SelfTagged() {
			tf, _ := u.CommonField(u.Tag)
			if c, ok := u.Lookup(v.at(tf).Tag()); ok {
				r.renderCase(w, v, c, CallSite{})
				return
			}
		}

		w.str("{")
		l := &fieldList{w: w}
		for _, f := range u.Common {
			if f.Reserved {
				continue
			}
			l.field(f.Name)
			r.render(w, v.at(f), CallSite{})
		}
		l.sep()
		w.str("... }")
	}
}

func firstVisible(fields []catalog.Field) (catalog.Field, bool) {
	for _, f := range fields {
		if !f.Reserved {
			return f, true
		}
	}
	return catalog.Field{}, false
}
