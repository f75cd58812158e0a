// Package catalog holds the static description of the intercepted driver API:
// function signatures and the layout of every type they reach.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"sort"
	"sync"

	"github.com/zeebo/xxh3"

	zerrors "github.com/QetzylTech/ZLUDA/internal/errors"
)

//go:embed cuda.yaml
var cudaCatalog []byte

// Catalog is an immutable set of types and function signatures laid out for
// one pointer size. It is safe for concurrent use.
type Catalog struct {
	Version     string
	PointerSize int

	types       map[string]*Type
	all         []*Type
	functions   []*Function
	byName      map[string]*Function
	fingerprint string
}

var (
	defaultOnce [2]sync.Once
	defaultCat  [2]*Catalog
	defaultErr  [2]error
)

// Default returns the embedded CUDA driver catalog for the given pointer size.
// The result is parsed once and shared.
func Default(pointerSize int) (*Catalog, error) {
	var slot int
	switch pointerSize {
	case 4:
		slot = 0
	case 8:
		slot = 1
	default:
		return nil, fmt.Errorf("unsupported pointer size %d", pointerSize)
	}
	defaultOnce[slot].Do(func() {
		defaultCat[slot], defaultErr[slot] = Parse(cudaCatalog, pointerSize)
	})
	return defaultCat[slot], defaultErr[slot]
}

// MustDefault is Default for a pointer size known to be 4 or 8. The embedded
// catalog ships with the binary, so a parse failure is a build defect.
func MustDefault(pointerSize int) *Catalog {
	cat, err := Default(pointerSize)
	zerrors.Must(err, "embedded CUDA catalog")
	return cat
}

// Load reads a catalog file from disk.
func Load(path string, pointerSize int) (*Catalog, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- catalog path is operator supplied.
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return Parse(data, pointerSize)
}

// Type returns a named type.
func (c *Catalog) Type(name string) (*Type, bool) {
	t, ok := c.types[name]
	return t, ok
}

// Types returns the named types sorted by name.
func (c *Catalog) Types() []*Type {
	out := make([]*Type, 0, len(c.types))
	for _, t := range c.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// All returns every type in the catalog, including the anonymous pointer and
// array types built while resolving declarations.
func (c *Catalog) All() []*Type {
	return slices.Clone(c.all)
}

// Function returns the signature of a named function.
func (c *Catalog) Function(name string) (*Function, bool) {
	fn, ok := c.byName[name]
	return fn, ok
}

// Functions returns all signatures in declaration order.
func (c *Catalog) Functions() []*Function {
	return slices.Clone(c.functions)
}

// Fingerprint identifies the catalog source the types were built from.
func (c *Catalog) Fingerprint() string {
	return c.fingerprint
}

func fingerprint(data []byte) string {
	return fmt.Sprintf("%016x", xxh3.Hash(data))
}
