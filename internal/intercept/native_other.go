//go:build !windows && !((darwin || freebsd || linux || netbsd) && (amd64 || arm64))

package intercept

import (
	"fmt"
	"runtime"
)

var errNoLoader = fmt.Errorf("no native loader for %s/%s", runtime.GOOS, runtime.GOARCH)

func openLibrary(string) (uintptr, error) { return 0, errNoLoader }

func lookupSymbol(uintptr, string) (uintptr, error) { return 0, errNoLoader }

func closeLibrary(uintptr) error { return errNoLoader }

func newCallback(func(tag, index, frame uintptr) uintptr) uintptr { return 0 }
