package errors

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type mockCloser struct {
	closeErr error
	closed   bool
}

func (m *mockCloser) Close() error {
	m.closed = true
	return m.closeErr
}

func TestDeferClose(t *testing.T) {
	tests := []struct {
		name       string
		closer     *mockCloser
		wantLogged bool
	}{
		{name: "nil closer"},
		{name: "successful close", closer: &mockCloser{}},
		{name: "close with error", closer: &mockCloser{closeErr: errors.New("close failed")}, wantLogged: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf)

			var closer io.Closer
			if tt.closer != nil {
				closer = tt.closer
			}
			DeferClose(logger, closer, "test close")

			if tt.closer != nil {
				assert.True(t, tt.closer.closed, "Close() was not called")
			}
			assert.Equal(t, tt.wantLogged, buf.Len() > 0)
			if tt.wantLogged {
				assert.Contains(t, buf.String(), "close failed")
			}
		})
	}
}

func TestDeferRecover(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	func() {
		defer DeferRecover(logger, "report failed")
		panic("boom")
	}()
	assert.Contains(t, buf.String(), "boom")
	assert.Contains(t, buf.String(), "report failed")

	buf.Reset()
	func() {
		defer DeferRecover(logger, "report failed")
	}()
	assert.Zero(t, buf.Len())
}

func TestMust(t *testing.T) {
	assert.NotPanics(t, func() { Must(nil, "initialization") })
	assert.PanicsWithValue(t, "initialization: failed", func() {
		Must(errors.New("failed"), "initialization")
	})
}
