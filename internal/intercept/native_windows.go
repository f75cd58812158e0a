//go:build windows

package intercept

import (
	"golang.org/x/sys/windows"
)

func openLibrary(path string) (uintptr, error) {
	h, err := windows.LoadLibrary(path)
	return uintptr(h), err
}

func lookupSymbol(handle uintptr, name string) (uintptr, error) {
	return windows.GetProcAddress(windows.Handle(handle), name)
}

func closeLibrary(handle uintptr) error {
	return windows.FreeLibrary(windows.Handle(handle))
}

// Callbacks are stdcall on 386, which is what the x86 stub expects.
func newCallback(fn func(tag, index, frame uintptr) uintptr) uintptr {
	return windows.NewCallback(fn)
}
