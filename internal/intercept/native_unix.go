//go:build (darwin || freebsd || linux || netbsd) && (amd64 || arm64)

package intercept

import (
	"github.com/ebitengine/purego"
)

func openLibrary(path string) (uintptr, error) {
	return purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
}

func lookupSymbol(handle uintptr, name string) (uintptr, error) {
	return purego.Dlsym(handle, name)
}

func closeLibrary(handle uintptr) error {
	return purego.Dlclose(handle)
}

func newCallback(fn func(tag, index, frame uintptr) uintptr) uintptr {
	return purego.NewCallback(fn)
}
