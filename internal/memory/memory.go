// Package memory provides the address spaces argument values are read from.
//
// Every source is an io.ReaderAt whose offsets are virtual addresses. The
// renderer only ever reads; sources never hand out references into the
// traced address space.
package memory

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf16"
)

var (
	// ErrUnmapped is returned when an address range is not readable.
	ErrUnmapped = errors.New("address not mapped")

	// ErrTooLong is returned with the first MaxStringLen characters of a
	// string that has no terminator within that bound.
	ErrTooLong = errors.New("string too long")
)

// MaxStringLen bounds C and UTF-16 string reads.
const MaxStringLen = 1 << 16

// ReadUint reads a little-endian unsigned integer of 1, 2, 4 or 8 bytes.
func ReadUint(r io.ReaderAt, addr uint64, size int) (uint64, error) {
	var buf [8]byte
	if size <= 0 || size > len(buf) {
		return 0, fmt.Errorf("invalid integer size %d", size)
	}
	if err := readFull(r, buf[:size], addr); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// ReadPointer reads a pointer-sized word.
func ReadPointer(r io.ReaderAt, addr uint64, pointerSize int) (uint64, error) {
	return ReadUint(r, addr, pointerSize)
}

// Read returns size bytes starting at addr.
func Read(r io.ReaderAt, addr uint64, size int) ([]byte, error) {
	buf := make([]byte, size)
	if err := readFull(r, buf, addr); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadCString reads a NUL-terminated byte string. The terminator is not
// included. Bytes are fetched one at a time so a string ending right before
// an unmapped page is still read.
func ReadCString(r io.ReaderAt, addr uint64) ([]byte, error) {
	var (
		out []byte
		b   [1]byte
	)
	for i := uint64(0); i < MaxStringLen; i++ {
		if err := readFull(r, b[:], addr+i); err != nil {
			return out, err
		}
		if b[0] == 0 {
			return out, nil
		}
		out = append(out, b[0])
	}
	return out, fmt.Errorf("%w: string at 0x%x is longer than %d bytes", ErrTooLong, addr, MaxStringLen)
}

// ReadUTF16 reads a NUL-terminated UTF-16LE string and decodes it,
// substituting U+FFFD for unpaired surrogates.
func ReadUTF16(r io.ReaderAt, addr uint64) (string, error) {
	var (
		units []uint16
		b     [2]byte
	)
	for i := uint64(0); i < MaxStringLen; i++ {
		if err := readFull(r, b[:], addr+2*i); err != nil {
			return string(utf16.Decode(units)), err
		}
		u := binary.LittleEndian.Uint16(b[:])
		if u == 0 {
			return string(utf16.Decode(units)), nil
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units)), fmt.Errorf("%w: string at 0x%x is longer than %d units", ErrTooLong, addr, MaxStringLen)
}

func readFull(r io.ReaderAt, buf []byte, addr uint64) error {
	if addr == 0 {
		return fmt.Errorf("%w: 0x0", ErrUnmapped)
	}
	n, err := r.ReadAt(buf, int64(addr))
	if n == len(buf) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = ErrUnmapped
	}
	return fmt.Errorf("read %d bytes at 0x%x: %w", len(buf), addr, err)
}
