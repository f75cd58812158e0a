package render

import (
	"fmt"

	"github.com/QetzylTech/ZLUDA/internal/catalog"
)

// Value is one typed value in little-endian byte form.
type Value struct {
	Type *catalog.Type
	Data []byte
}

// Uint zero-extends the first eight bytes of the value.
func (v Value) Uint() uint64 {
	n := min(len(v.Data), 8)
	var x uint64
	for i := n - 1; i >= 0; i-- {
		x = x<<8 | uint64(v.Data[i])
	}
	return x
}

// Int sign-extends the value from its own width.
func (v Value) Int() int64 {
	n := min(len(v.Data), 8)
	if n == 0 {
		return 0
	}
	shift := uint(64 - 8*n)
	return int64(v.Uint()<<shift) >> shift
}

// Tag returns the value as an enum discriminant, honouring the signedness
// of its underlying scalar.
func (v Value) Tag() int64 {
	if v.Type != nil && v.Type.Scalar.Signed() {
		return v.Int()
	}
	return int64(v.Uint())
}

// Field returns the struct field or union member called name.
func (v Value) Field(name string) (Value, bool) {
	f, ok := v.Type.FieldByName(name)
	if !ok {
		return Value{}, false
	}
	return v.at(f), true
}

// Path returns the member reached by a dotted path.
func (v Value) Path(path string) (Value, error) {
	f, err := catalog.ResolvePath(v.Type, path)
	if err != nil {
		return Value{}, err
	}
	return v.at(f), nil
}

// at slices a field out of the value. Short data yields zero bytes for the
// missing tail rather than panicking.
func (v Value) at(f catalog.Field) Value {
	if end := f.Offset + f.Type.Size; end <= len(v.Data) {
		return Value{Type: f.Type, Data: v.Data[f.Offset:end:end]}
	}
	out := Value{Type: f.Type, Data: make([]byte, f.Type.Size)}
	if f.Offset < len(v.Data) {
		copy(out.Data, v.Data[f.Offset:])
	}
	return out
}

func (v Value) String() string {
	return fmt.Sprintf("%s(% x)", v.Type, v.Data)
}

// CallSite names the function argument a value belongs to. The zero
// CallSite marks values that are not arguments, such as struct fields.
type CallSite struct {
	Function string
	Index    int
}
