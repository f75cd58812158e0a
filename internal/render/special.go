package render

import (
	"encoding/hex"
	"fmt"
)

// FormatGUID renders 16 bytes in Windows GUID order: the first three groups
// are little-endian, the last eight bytes are printed as stored. Shorter
// input falls back to FormatHandle.
func FormatGUID(b []byte) string {
	if len(b) < 16 {
		return FormatHandle(b)
	}
	return fmt.Sprintf("{%02x%02x%02x%02x-%02x%02x-%02x%02x-%s-%s}",
		b[3], b[2], b[1], b[0],
		b[5], b[4],
		b[7], b[6],
		hex.EncodeToString(b[8:10]),
		hex.EncodeToString(b[10:16]))
}

// FormatHandle renders an opaque blob as one hex literal, last byte first.
func FormatHandle(b []byte) string {
	out := make([]byte, 2, 2+2*len(b))
	out[0], out[1] = '0', 'x'
	for i := len(b) - 1; i >= 0; i-- {
		out = hex.AppendEncode(out, b[i:i+1])
	}
	return string(out)
}

// FormatLUID renders a locally unique identifier as {LOW-HIGH}.
func FormatLUID(low, high uint32) string {
	return fmt.Sprintf("{%08X-%08X}", low, high)
}
