//go:build !unix && !windows

package trampoline

import "fmt"

// PageAllocator is unavailable on this platform.
type PageAllocator struct{}

func (PageAllocator) Alloc(int) (Region, error) {
	return nil, fmt.Errorf("%w: no executable memory on this platform", ErrUnsupportedArch)
}
