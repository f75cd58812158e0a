package intercept

import (
	"errors"
	"fmt"
)

// ErrSymbolNotFound is returned by Module.Lookup for missing exports.
var ErrSymbolNotFound = errors.New("symbol not found")

// Module is a loaded library whose exports can be resolved.
type Module interface {
	// Name identifies the module. It seeds the call tag of its stubs.
	Name() string
	// Lookup returns the address of an exported symbol.
	Lookup(symbol string) (uint64, error)
	Close() error
}

// library is a Module backed by the platform loader.
type library struct {
	path   string
	handle uintptr
}

func (l *library) Name() string { return l.path }

func (l *library) Lookup(symbol string) (uint64, error) {
	addr, err := lookupSymbol(l.handle, symbol)
	if err != nil || addr == 0 {
		return 0, fmt.Errorf("%w: %s in %s", ErrSymbolNotFound, symbol, l.path)
	}
	return uint64(addr), nil
}

func (l *library) Close() error {
	if l.handle == 0 {
		return nil
	}
	err := closeLibrary(l.handle)
	l.handle = 0
	return err
}

// OpenLibrary loads the shared library at path.
func OpenLibrary(path string) (Module, error) {
	h, err := openLibrary(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return &library{path: path, handle: h}, nil
}
