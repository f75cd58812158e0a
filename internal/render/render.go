// Package render turns typed argument values into trace text.
//
// A Renderer compiles one rendering procedure per catalog type up front and
// dispatches on the type of each value. Rendering reads only immutable
// catalog data and the traced memory, so one Renderer serves any number of
// goroutines.
package render

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/QetzylTech/ZLUDA/internal/catalog"
	"github.com/QetzylTech/ZLUDA/internal/memory"
)

// ErrNotImplemented is returned for shapes the tracer cannot render.
var ErrNotImplemented = errors.New("not implemented")

type proc func(w *writer, v Value, site CallSite)

// Renderer renders values described by one catalog.
type Renderer struct {
	cat   *catalog.Catalog
	mem   io.ReaderAt
	procs map[*catalog.Type]proc
}

// New builds a renderer that dereferences pointers through mem.
func New(cat *catalog.Catalog, mem io.ReaderAt) *Renderer {
	r := &Renderer{
		cat: cat,
		mem: mem,
	}

	all := cat.All()
	r.procs = make(map[*catalog.Type]proc, len(all))
	for _, t := range all {
		r.procs[t] = r.compile(t)
	}
	return r
}

// Catalog returns the catalog the renderer was built for.
func (r *Renderer) Catalog() *catalog.Catalog { return r.cat }

// Memory returns the address space pointers are read from.
func (r *Renderer) Memory() io.ReaderAt { return r.mem }

// Load reads a value of type t from addr.
func (r *Renderer) Load(t *catalog.Type, addr uint64) (Value, error) {
	data, err := memory.Read(r.mem, addr, t.Size)
	if err != nil {
		return Value{}, err
	}
	return Value{Type: t, Data: data}, nil
}

// Render writes the text form of v. site identifies the argument v belongs
// to and is carried into dereferenced pointees.
func (r *Renderer) Render(w io.Writer, v Value, site CallSite) error {
	ww := &writer{w: w}
	r.render(ww, v, site)
	return ww.err
}

// RenderUnion writes the member of union v selected by tag. An unknown tag
// renders as "...".
func (r *Renderer) RenderUnion(w io.Writer, v Value, tag int64, site CallSite) error {
	ww := &writer{w: w}
	if v.Type.Kind != catalog.KindUnion {
		return fmt.Errorf("%s is not a union", v.Type)
	}
	c, ok := v.Type.Union.Lookup(tag)
	if !ok {
		ww.str("...")
		return ww.err
	}
	r.renderCase(ww, v, c, site)
	return ww.err
}

func (r *Renderer) render(w *writer, v Value, site CallSite) {
	if w.err != nil {
		return
	}
	p, ok := r.procs[v.Type]
	if !ok {
		// Types built outside the catalog are compiled on demand.
		p = r.compile(v.Type)
	}
	p(w, v, site)
}

// writer keeps the first error so procedures can write without checking
// every call.
type writer struct {
	w   io.Writer
	err error
}

func (w *writer) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	n, err := w.w.Write(p)
	if err != nil {
		w.err = err
	}
	return n, err
}

func (w *writer) str(s string) {
	if w.err != nil {
		return
	}
	_, w.err = io.WriteString(w.w, s)
}

func (w *writer) printf(format string, args ...any) {
	if w.err != nil {
		return
	}
	_, w.err = fmt.Fprintf(w.w, format, args...)
}

func (w *writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

// lossy replaces invalid UTF-8 with U+FFFD.
func lossy(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}
