package memory

import (
	"bytes"
	"encoding/binary"
	"runtime"
	"strings"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotReadAt(t *testing.T) {
	s := NewSnapshot()
	s.Map(0x1000, []byte{1, 2, 3, 4})
	s.Map(0x1004, []byte{5, 6})
	s.Map(0x2000, []byte{9})

	tests := []struct {
		name    string
		addr    int64
		size    int
		want    []byte
		wantErr bool
	}{
		{name: "inside", addr: 0x1001, size: 2, want: []byte{2, 3}},
		{name: "spans adjacent segments", addr: 0x1002, size: 4, want: []byte{3, 4, 5, 6}},
		{name: "runs past the end", addr: 0x1005, size: 2, want: []byte{6, 0}, wantErr: true},
		{name: "gap", addr: 0x1800, size: 1, want: []byte{0}, wantErr: true},
		{name: "single byte segment", addr: 0x2000, size: 1, want: []byte{9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, tt.size)
			_, err := s.ReadAt(buf, tt.addr)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnmapped)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, buf)
		})
	}
}

func TestSnapshotReserveIsLive(t *testing.T) {
	s := NewSnapshot()
	a, buf := s.Reserve(8, 8)
	b, _ := s.Reserve(4, 16)

	assert.Zero(t, a%8)
	assert.Zero(t, b%16)
	assert.Greater(t, b, a+8)

	binary.LittleEndian.PutUint64(buf, 0xdeadbeef)
	v, err := ReadUint(s, a, 8)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xdeadbeef), v)
}

func TestReadUint(t *testing.T) {
	s := NewSnapshot()
	addr := s.Alloc([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08})

	tests := []struct {
		size int
		want uint64
	}{
		{size: 1, want: 0x01},
		{size: 2, want: 0x0201},
		{size: 4, want: 0x04030201},
		{size: 8, want: 0x0807060504030201},
	}
	for _, tt := range tests {
		got, err := ReadUint(s, addr, tt.size)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "size %d", tt.size)
	}

	_, err := ReadUint(s, addr, 9)
	assert.Error(t, err)
	_, err = ReadPointer(s, 0, 8)
	assert.ErrorIs(t, err, ErrUnmapped)
}

func TestReadCString(t *testing.T) {
	s := NewSnapshot()
	addr := s.Alloc([]byte("hello\x00world"))

	got, err := ReadCString(s, addr)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	// No terminator before the end of the mapping.
	tail := s.Alloc([]byte("abc"))
	got, err = ReadCString(s, tail)
	assert.ErrorIs(t, err, ErrUnmapped)
	assert.Equal(t, "abc", string(got))

	long := s.Alloc(append(bytes.Repeat([]byte{'x'}, MaxStringLen+1), 0))
	got, err = ReadCString(s, long)
	assert.ErrorIs(t, err, ErrTooLong)
	assert.Len(t, got, MaxStringLen)
}

func TestReadUTF16(t *testing.T) {
	s := NewSnapshot()
	// "Hi€" followed by an unpaired high surrogate, then NUL.
	units := []uint16{'H', 'i', 0x20ac, 0xd800, 0}
	raw := make([]byte, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(raw[2*i:], u)
	}
	addr := s.Alloc(raw)

	got, err := ReadUTF16(s, addr)
	require.NoError(t, err)
	assert.Equal(t, "Hi€�", got)

	long := s.Alloc(append(bytes.Repeat([]byte{'y', 0}, MaxStringLen+1), 0, 0))
	got, err = ReadUTF16(s, long)
	assert.ErrorIs(t, err, ErrTooLong)
	assert.Equal(t, strings.Repeat("y", MaxStringLen), got)
}

func TestLocal(t *testing.T) {
	data := []byte{0xaa, 0xbb, 0xcc, 0x00}
	addr := uint64(uintptr(unsafe.Pointer(&data[0])))

	v, err := ReadUint(Local, addr, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xbbaa), v)

	s, err := ReadCString(Local, addr)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xaa, 0xbb, 0xcc}, s)
	runtime.KeepAlive(data)

	_, err = ReadUint(Local, 0, 4)
	assert.ErrorIs(t, err, ErrUnmapped)
}
