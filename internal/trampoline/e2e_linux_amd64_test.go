//go:build linux && amd64

package trampoline

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ebitengine/purego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QetzylTech/ZLUDA/internal/arch"
	"github.com/QetzylTech/ZLUDA/internal/catalog"
	"github.com/QetzylTech/ZLUDA/internal/memory"
)

const e2eCatalog = `
functions:
  sum:
    a: uintptr_t
    b: uintptr_t
    c: uintptr_t
    d: uintptr_t
    e: uintptr_t
    f: uintptr_t
    g: uintptr_t
`

// Callbacks are process-wide and never freed, so the test creates them once.
var (
	e2eOnce     sync.Once
	e2eReport   uintptr
	e2eOriginal uintptr
	e2eSeen     atomic.Pointer[func(tag, index, frame uintptr)]
)

func e2eCallbacks() (report, original uintptr) {
	e2eOnce.Do(func() {
		e2eReport = purego.NewCallback(func(tag, index, frame uintptr) uintptr {
			if fn := e2eSeen.Load(); fn != nil {
				(*fn)(tag, index, frame)
			}
			return 0
		})
		e2eOriginal = purego.NewCallback(func(a, b, c, d, e, f, g uintptr) uintptr {
			return a + 2*b + 3*c + 4*d + 5*e + 6*f + 7*g
		})
	})
	return e2eReport, e2eOriginal
}

func TestNativeStubCallsThrough(t *testing.T) {
	cat, err := catalog.Parse([]byte(e2eCatalog), 8)
	require.NoError(t, err)
	fn, _ := cat.Function("sum")

	report, original := e2eCallbacks()
	tr, err := Synthesize(arch.X64SysV, Params{
		Original: uint64(original),
		Report:   uint64(report),
		Identity: Identity{Tag: testTag, Index: 9},
	}, PageAllocator{})
	require.NoError(t, err)
	defer func() { assert.NoError(t, tr.Close()) }()

	var (
		mu    sync.Mutex
		calls [][]uint64
		tags  [][]byte
	)
	seen := func(tag, index, frame uintptr) {
		vals, err := arch.X64SysV.Decode(memory.Local, uint64(frame), fn)
		tagBytes, _ := memory.Read(memory.Local, uint64(tag), 16)

		mu.Lock()
		defer mu.Unlock()
		if err != nil || index != 9 {
			calls = append(calls, nil)
			return
		}
		var args []uint64
		for _, v := range vals {
			args = append(args, v.Uint())
		}
		calls = append(calls, args)
		tags = append(tags, tagBytes)
	}
	e2eSeen.Store(&seen)
	defer e2eSeen.Store(nil)

	const workers = 8
	results := make([]uintptr, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			base := uintptr(100 * i)
			results[i], _, _ = purego.SyscallN(uintptr(tr.Addr()),
				base+1, base+2, base+3, base+4, base+5, base+6, base+7)
		}(i)
	}
	wg.Wait()

	for i, got := range results {
		b := uintptr(100 * i)
		want := (b + 1) + 2*(b+2) + 3*(b+3) + 4*(b+4) + 5*(b+5) + 6*(b+6) + 7*(b+7)
		assert.Equal(t, want, got, "worker %d", i)
	}

	require.Len(t, calls, workers)
	firsts := make(map[uint64]bool)
	for _, args := range calls {
		require.Len(t, args, 7)
		for j, v := range args {
			assert.Equal(t, args[0]+uint64(j), v)
		}
		firsts[args[0]] = true
	}
	assert.Len(t, firsts, workers)
	for _, tag := range tags {
		assert.Equal(t, testTag[:], tag)
	}
}
