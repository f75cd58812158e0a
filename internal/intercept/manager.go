// Package intercept installs trampolines over a module's exported driver
// functions and turns every reported call into one trace line.
//
// Install and Uninstall are expected at attach and detach time, while the
// module is otherwise quiescent. Reporting runs on whatever thread the
// application called from and only takes a read lock.
package intercept

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/QetzylTech/ZLUDA/internal/arch"
	"github.com/QetzylTech/ZLUDA/internal/catalog"
	zerrors "github.com/QetzylTech/ZLUDA/internal/errors"
	"github.com/QetzylTech/ZLUDA/internal/format"
	"github.com/QetzylTech/ZLUDA/internal/memory"
	"github.com/QetzylTech/ZLUDA/internal/render"
	"github.com/QetzylTech/ZLUDA/internal/trampoline"
)

var (
	// ErrNotInstalled is returned when uninstalling a module the manager
	// does not track.
	ErrNotInstalled = errors.New("module is not installed")

	// ErrManagerActive is returned when a second manager tries to take over
	// the native report callback.
	ErrManagerActive = errors.New("another interception manager is active")

	errClosed = errors.New("interception manager is closed")
)

// tagNamespace seeds module tags, so the same module name always gets the
// same tag.
var tagNamespace = uuid.MustParse("0b1e6a5c-2f1d-5d7e-9c3a-5a4c7d2e1f00")

// LineWriter receives finished trace lines.
type LineWriter interface {
	WriteLine(line []byte) error
}

// Config contains configuration for the interception manager.
type Config struct {
	// Arch is the calling convention of the intercepted module.
	Arch arch.Arch

	// Sink receives one line per reported call.
	Sink LineWriter

	// Overrides are the per-argument formatting rules.
	Overrides format.Overrides

	// Allocator provides stub memory. Defaults to executable pages.
	Allocator trampoline.Allocator

	// Memory is where frames, tags and pointees are read from. Defaults to
	// the current process.
	Memory io.ReaderAt

	// Report is the address stubs call. Zero selects the process-wide
	// native callback, which only one manager may own at a time.
	Report uint64

	// Skip lists functions that are never intercepted.
	Skip []string
}

// Manager owns the stubs of every module it installed.
type Manager struct {
	config Config
	logger zerolog.Logger
	report uint64
	native bool

	mu      sync.RWMutex
	modules map[uuid.UUID]*InterceptedModule
	closed  bool
}

// NewManager creates an interception manager.
func NewManager(cfg Config, logger zerolog.Logger) (*Manager, error) {
	if !cfg.Arch.Valid() {
		return nil, fmt.Errorf("%w: %s", trampoline.ErrUnsupportedArch, cfg.Arch)
	}
	if cfg.Sink == nil {
		return nil, errors.New("trace sink is required")
	}
	if cfg.Allocator == nil {
		cfg.Allocator = trampoline.PageAllocator{}
	}
	if cfg.Memory == nil {
		cfg.Memory = memory.Local
	}

	m := &Manager{
		config:  cfg,
		logger:  logger.With().Str("component", "intercept").Logger(),
		report:  cfg.Report,
		modules: make(map[uuid.UUID]*InterceptedModule),
	}

	if m.report == 0 {
		addr, err := activate(m)
		if err != nil {
			return nil, err
		}
		m.report = addr
		m.native = true
	}
	return m, nil
}

// Install synthesizes a stub for every catalog function the module exports.
// A function whose stub cannot be built keeps its original address.
func (m *Manager) Install(mod Module, cat *catalog.Catalog) (*InterceptedModule, error) {
	if cat.PointerSize != m.config.Arch.PointerSize() {
		return nil, fmt.Errorf("catalog is laid out for %d byte pointers, %s uses %d",
			cat.PointerSize, m.config.Arch, m.config.Arch.PointerSize())
	}

	id := uuid.NewSHA1(tagNamespace, []byte(mod.Name()))

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errClosed
	}
	if _, ok := m.modules[id]; ok {
		return nil, fmt.Errorf("module %s is already installed", mod.Name())
	}

	if err := m.config.Overrides.Validate(cat); err != nil {
		m.logger.Warn().Err(err).Msg("Argument overrides do not match the catalog")
	}

	im := &InterceptedModule{
		ID:        id,
		Name:      mod.Name(),
		formatter: format.New(render.New(cat, m.config.Memory), m.config.Overrides),
		byName:    make(map[string]*Entry),
		byIndex:   make(map[uint64]*Entry),
	}

	var hooked, failed int
	for _, fn := range cat.Functions() {
		if slices.Contains(m.config.Skip, fn.Name) {
			continue
		}
		addr, err := mod.Lookup(fn.Name)
		if err != nil {
			m.logger.Trace().Str("function", fn.Name).Msg("Not exported")
			continue
		}

		e := &Entry{Function: fn, Original: addr}
		e.stub, err = trampoline.Synthesize(m.config.Arch, trampoline.Params{
			Original: addr,
			Report:   m.report,
			Identity: trampoline.Identity{Tag: id, Index: uint64(fn.Index)},
		}, m.config.Allocator)
		if err != nil {
			failed++
			m.logger.Warn().
				Err(err).
				Str("function", fn.Name).
				Msg("Failed to synthesize trampoline, function stays untraced")
		} else {
			hooked++
		}

		im.entries = append(im.entries, e)
		im.byName[fn.Name] = e
		im.byIndex[uint64(fn.Index)] = e
	}

	m.modules[id] = im
	m.logger.Info().
		Str("module", im.Name).
		Str("tag", id.String()).
		Str("catalog", cat.Fingerprint()).
		Int("hooked", hooked).
		Int("failed", failed).
		Msg("Installed interception")
	return im, nil
}

// Uninstall releases the stubs of im. Entries then resolve to their
// original addresses again. The stubs must no longer be reachable.
func (m *Manager) Uninstall(im *InterceptedModule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uninstallLocked(im)
}

func (m *Manager) uninstallLocked(im *InterceptedModule) error {
	if im == nil || m.modules[im.ID] != im {
		return ErrNotInstalled
	}
	delete(m.modules, im.ID)

	var errs []error
	for _, e := range im.entries {
		if e.stub == nil {
			continue
		}
		if err := e.stub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.Function.Name, err))
		}
		e.stub = nil
	}

	m.logger.Info().Str("module", im.Name).Msg("Removed interception")
	return errors.Join(errs...)
}

// Close uninstalls every module and releases the native callback.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	for _, im := range m.modules {
		errs = append(errs, m.uninstallLocked(im))
	}
	if m.native {
		active.CompareAndSwap(m, nil)
	}
	return errors.Join(errs...)
}

// Report formats one call. Stubs reach it through the native callback;
// tag is the address of the module tag, frame the stub's saved frame.
// Failures are logged and never reach the intercepted call.
func (m *Manager) Report(tag, index, frame uint64) {
	defer zerrors.DeferRecover(m.logger, "Panic while tracing call")

	raw, err := memory.Read(m.config.Memory, tag, 16)
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to read call tag")
		return
	}
	id, _ := uuid.FromBytes(raw)

	m.mu.RLock()
	im := m.modules[id]
	m.mu.RUnlock()

	if im == nil {
		m.logger.Error().Str("tag", id.String()).Msg("Call from unknown module")
		return
	}
	e := im.byIndex[index]
	if e == nil {
		m.logger.Error().Str("module", im.Name).Uint64("index", index).Msg("Call to unknown function")
		return
	}

	args, err := m.config.Arch.Decode(m.config.Memory, frame, e.Function)
	if err != nil {
		m.logger.Error().Err(err).Str("function", e.Function.Name).Msg("Failed to decode call frame")
		return
	}

	buf := bufPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		bufPool.Put(buf)
	}()

	if err := im.formatter.FormatCall(buf, e.Function.Name, args); err != nil {
		ev := m.logger.Error()
		if format.IsNotImplemented(err) {
			ev = m.logger.Warn()
		}
		ev.Err(err).Str("function", e.Function.Name).Msg("Dropped trace line")
		return
	}

	if err := m.config.Sink.WriteLine(buf.Bytes()); err != nil {
		m.logger.Error().Err(err).Str("function", e.Function.Name).Msg("Failed to write trace line")
	}
}

var bufPool = sync.Pool{New: func() any { return new(bytes.Buffer) }}

// The native callback is created once per process and dispatches to the
// active manager.
var (
	nativeOnce sync.Once
	nativeAddr uintptr
	active     atomic.Pointer[Manager]
)

func activate(m *Manager) (uint64, error) {
	nativeOnce.Do(func() {
		nativeAddr = newCallback(dispatch)
	})
	if nativeAddr == 0 {
		return 0, errors.New("native callbacks are not available on this platform")
	}
	if !active.CompareAndSwap(nil, m) {
		return 0, ErrManagerActive
	}
	return uint64(nativeAddr), nil
}

func dispatch(tag, index, frame uintptr) uintptr {
	if m := active.Load(); m != nil {
		m.Report(uint64(tag), uint64(index), uint64(frame))
	}
	return 0
}
