// Package format renders complete intercepted calls as trace lines.
//
// A Formatter walks the arguments of a call in declaration order. Each
// argument is first matched against the override table by function name and
// argument index; arguments without an override go through the generic
// renderer.
package format

import (
	"fmt"
	"io"

	"github.com/QetzylTech/ZLUDA/internal/catalog"
	"github.com/QetzylTech/ZLUDA/internal/render"
)

// Key identifies one argument of one function.
type Key struct {
	Function string
	Index    int
}

func (k Key) String() string {
	return fmt.Sprintf("%s#%d", k.Function, k.Index)
}

// Override replaces the generic rendering of one argument.
type Override interface {
	FormatArg(w io.Writer, a Arg) error
}

// Overrides is a fixed table of argument overrides. It is never modified
// after the Formatter is built.
type Overrides map[Key]Override

// Validate checks that every key names an existing argument of cat.
func (o Overrides) Validate(cat *catalog.Catalog) error {
	for k, ov := range o {
		fn, ok := cat.Function(k.Function)
		if !ok {
			return fmt.Errorf("override %s: unknown function", k)
		}
		if k.Index < 0 || k.Index >= len(fn.Params) {
			return fmt.Errorf("override %s: %s has %d parameters", k, fn.Name, len(fn.Params))
		}
		if v, ok := ov.(interface{ validate(*catalog.Function) error }); ok {
			if err := v.validate(fn); err != nil {
				return fmt.Errorf("override %s: %w", k, err)
			}
		}
	}
	return nil
}

// Arg is the argument an Override is asked to render, together with the
// rest of the call.
type Arg struct {
	r *render.Renderer

	// Function is the catalog signature, or nil for functions the catalog
	// does not describe.
	Function *catalog.Function
	Name     string
	Args     []render.Value
	Index    int
}

// Value returns the argument being rendered.
func (a Arg) Value() render.Value { return a.Args[a.Index] }

// Site returns the call site of the argument.
func (a Arg) Site() render.CallSite {
	return render.CallSite{Function: a.Name, Index: a.Index}
}

// Renderer returns the renderer the call is formatted with.
func (a Arg) Renderer() *render.Renderer { return a.r }

// Render writes v through the generic renderer at the argument's call site.
func (a Arg) Render(w io.Writer, v render.Value) error {
	return a.r.Render(w, v, a.Site())
}

// Formatter turns intercepted calls into `name(arg: value, ...)` lines.
// It is safe for concurrent use.
type Formatter struct {
	r         *render.Renderer
	overrides Overrides
}

// New builds a formatter. overrides may be nil.
func New(r *render.Renderer, overrides Overrides) *Formatter {
	return &Formatter{
		r:         r,
		overrides: overrides,
	}
}

// Renderer returns the underlying value renderer.
func (f *Formatter) Renderer() *render.Renderer { return f.r }

// FormatCall writes `name(arg: value, ...)`. Functions missing from the
// catalog get positional argument names.
func (f *Formatter) FormatCall(w io.Writer, name string, args []render.Value) error {
	if _, err := io.WriteString(w, name+"("); err != nil {
		return err
	}
	if err := f.FormatArgs(w, name, args); err != nil {
		return err
	}
	_, err := io.WriteString(w, ")")
	return err
}

// FormatArgs writes the comma separated argument list of a call without the
// surrounding parentheses.
func (f *Formatter) FormatArgs(w io.Writer, name string, args []render.Value) error {
	fn, _ := f.r.Catalog().Function(name)

	for i := range args {
		if i > 0 {
			if _, err := io.WriteString(w, ", "); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, paramName(fn, i)+": "); err != nil {
			return err
		}

		a := Arg{r: f.r, Function: fn, Name: name, Args: args, Index: i}
		if ov, ok := f.overrides[Key{Function: name, Index: i}]; ok {
			if err := ov.FormatArg(w, a); err != nil {
				return err
			}
			continue
		}
		if err := a.Render(w, args[i]); err != nil {
			return err
		}
	}
	return nil
}

func paramName(fn *catalog.Function, i int) string {
	if fn != nil && i < len(fn.Params) {
		return fn.Params[i].Name
	}
	return fmt.Sprintf("arg%d", i)
}
