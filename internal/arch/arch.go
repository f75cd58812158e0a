// Package arch describes the calling conventions trampolines are generated
// for, and decodes the argument values a trampoline captured on the stack.
package arch

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrUnsupported is returned for platforms without a trampoline layout.
var ErrUnsupported = errors.New("unsupported architecture")

// Arch is a calling-convention layout.
type Arch uint8

const (
	Unknown Arch = iota
	// X86 is 32-bit x86 with all arguments on the stack (stdcall, cdecl).
	X86
	// X64Windows is the Microsoft x64 convention: four register slots backed
	// by caller-allocated shadow space.
	X64Windows
	// X64SysV is the System V AMD64 convention used on Linux and macOS.
	X64SysV
)

var names = map[Arch]string{
	X86:        "x86",
	X64Windows: "x64-windows",
	X64SysV:    "x64-sysv",
}

// All returns every supported layout.
func All() []Arch {
	return []Arch{X86, X64Windows, X64SysV}
}

func (a Arch) String() string {
	if n, ok := names[a]; ok {
		return n
	}
	return fmt.Sprintf("arch(%d)", uint8(a))
}

// Valid reports whether a is a known layout.
func (a Arch) Valid() bool {
	_, ok := names[a]
	return ok
}

// PointerSize returns the size of a pointer in bytes.
func (a Arch) PointerSize() int {
	if a == X86 {
		return 4
	}
	return 8
}

// Bits returns the instruction set width, as used by x86 decoders.
func (a Arch) Bits() int {
	return 8 * a.PointerSize()
}

// Parse resolves a layout name. "auto" and the empty string select the host.
func Parse(name string) (Arch, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return Host()
	case "x86", "386", "i386":
		return X86, nil
	case "x64-windows", "win64":
		return X64Windows, nil
	case "x64-sysv", "sysv", "amd64":
		return X64SysV, nil
	}
	return Unknown, fmt.Errorf("%w: %q", ErrUnsupported, name)
}

// Host returns the layout of the running process.
func Host() (Arch, error) {
	return hostArch(runtime.GOOS, runtime.GOARCH)
}

func hostArch(goos, goarch string) (Arch, error) {
	switch goarch {
	case "386":
		return X86, nil
	case "amd64":
		if goos == "windows" {
			return X64Windows, nil
		}
		return X64SysV, nil
	}
	return Unknown, fmt.Errorf("%w: %s/%s", ErrUnsupported, goos, goarch)
}
