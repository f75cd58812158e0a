// Package trace serializes rendered calls onto the trace destination.
package trace

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Sink writes whole trace lines. Each line reaches the underlying writer in
// a single Write, so lines from concurrent calls never interleave.
type Sink struct {
	mu    sync.Mutex
	w     io.Writer
	buf   []byte
	close func() error
}

// NewSink wraps w. Closing the sink does not close w.
func NewSink(w io.Writer) *Sink {
	return &Sink{w: w}
}

// Open resolves a configured destination: "stderr" (or empty), "stdout",
// or a file path that is appended to.
func Open(dest string) (*Sink, error) {
	switch dest {
	case "", "stderr":
		return NewSink(os.Stderr), nil
	case "stdout":
		return NewSink(os.Stdout), nil
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	s := NewSink(f)
	s.close = f.Close
	return s, nil
}

// WriteLine writes line followed by a newline.
func (s *Sink) WriteLine(line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf = append(append(s.buf[:0], line...), '\n')
	if _, err := s.w.Write(s.buf); err != nil {
		return fmt.Errorf("failed to write trace line: %w", err)
	}
	return nil
}

// Close closes the destination if Open created it.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.close == nil {
		return nil
	}
	err := s.close()
	s.close = nil
	return err
}
