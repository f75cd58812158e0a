package intercept

import (
	"github.com/google/uuid"

	"github.com/QetzylTech/ZLUDA/internal/catalog"
	"github.com/QetzylTech/ZLUDA/internal/format"
	"github.com/QetzylTech/ZLUDA/internal/trampoline"
)

// InterceptedModule is the replacement table of one installed module.
type InterceptedModule struct {
	// ID is the call tag every stub of the module reports.
	ID   uuid.UUID
	Name string

	formatter *format.Formatter
	entries   []*Entry
	byName    map[string]*Entry
	byIndex   map[uint64]*Entry
}

// Entry is one exported catalog function.
type Entry struct {
	Function *catalog.Function
	Original uint64

	stub *trampoline.Trampoline
}

// Replacement returns the stub address, or the original address when the
// function is not hooked.
func (e *Entry) Replacement() uint64 {
	if e.stub == nil {
		return e.Original
	}
	return e.stub.Addr()
}

// Hooked reports whether calls through Replacement are traced.
func (e *Entry) Hooked() bool { return e.stub != nil }

// Stub returns the trampoline, or nil when the function is not hooked.
func (e *Entry) Stub() *trampoline.Trampoline { return e.stub }

// Replacement returns the address to publish for the named export. ok is
// false when the module does not export the function or the catalog does
// not describe it.
func (im *InterceptedModule) Replacement(name string) (addr uint64, ok bool) {
	e, ok := im.byName[name]
	if !ok {
		return 0, false
	}
	return e.Replacement(), true
}

// Entries returns the exported functions in catalog order.
func (im *InterceptedModule) Entries() []*Entry {
	return append([]*Entry(nil), im.entries...)
}
