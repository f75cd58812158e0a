package trace

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkWriter records each Write separately.
type chunkWriter struct {
	mu     sync.Mutex
	chunks []string
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.chunks = append(w.chunks, string(p))
	return len(p), nil
}

func TestWriteLine(t *testing.T) {
	var buf bytes.Buffer
	s := NewSink(&buf)

	require.NoError(t, s.WriteLine([]byte("cuInit(Flags: 0)")))
	require.NoError(t, s.WriteLine(nil))
	assert.Equal(t, "cuInit(Flags: 0)\n\n", buf.String())
	assert.NoError(t, s.Close())
}

func TestWriteLineConcurrent(t *testing.T) {
	w := &chunkWriter{}
	s := NewSink(w)

	const writers, lines = 8, 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < lines; j++ {
				line := fmt.Sprintf("foo(a: %d, b: %s)", i, strings.Repeat("x", j))
				assert.NoError(t, s.WriteLine([]byte(line)))
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, w.chunks, writers*lines)
	for _, c := range w.chunks {
		assert.True(t, strings.HasPrefix(c, "foo(a: "), c)
		assert.True(t, strings.HasSuffix(c, ")\n"), c)
		assert.Equal(t, 1, strings.Count(c, "\n"))
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteLineError(t *testing.T) {
	err := NewSink(failingWriter{}).WriteLine([]byte("x"))
	assert.ErrorContains(t, err, "disk full")
}

func TestOpen(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	assert.Same(t, os.Stderr, s.w)

	s, err = Open("stdout")
	require.NoError(t, err)
	assert.Same(t, os.Stdout, s.w)
	assert.NoError(t, s.Close())

	path := filepath.Join(t.TempDir(), "trace.log")
	require.NoError(t, os.WriteFile(path, []byte("earlier\n"), 0o644))

	s, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, s.WriteLine([]byte("cuCtxSynchronize()")))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "earlier\ncuCtxSynchronize()\n", string(data))

	_, err = Open(filepath.Join(t.TempDir(), "missing", "trace.log"))
	assert.Error(t, err)
}
