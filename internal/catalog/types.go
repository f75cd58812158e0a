package catalog

import "fmt"

// Kind identifies the shape of a Type.
type Kind uint8

const (
	KindVoid Kind = iota
	KindScalar
	KindPointer
	KindArray
	KindStruct
	KindUnion
	KindEnum
	// KindOpaque is an incomplete type: it can only be reached through a pointer.
	KindOpaque
)

func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindScalar:
		return "scalar"
	case KindPointer:
		return "pointer"
	case KindArray:
		return "array"
	case KindStruct:
		return "struct"
	case KindUnion:
		return "union"
	case KindEnum:
		return "enum"
	case KindOpaque:
		return "opaque"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Scalar is the machine representation of a scalar or enum type.
type Scalar uint8

const (
	ScalarNone Scalar = iota
	ScalarChar
	ScalarInt8
	ScalarUint8
	ScalarInt16
	ScalarUint16
	ScalarInt32
	ScalarUint32
	ScalarInt64
	ScalarUint64
	// ScalarSize is pointer sized and unsigned (size_t, uintptr_t).
	ScalarSize
	ScalarFloat32
	ScalarFloat64
	ScalarBool
	// ScalarWChar is a UTF-16 code unit.
	ScalarWChar
)

// Signed reports whether values of s are sign extended when widened.
func (s Scalar) Signed() bool {
	switch s {
	case ScalarChar, ScalarInt8, ScalarInt16, ScalarInt32, ScalarInt64:
		return true
	}
	return false
}

// Float reports whether s is an IEEE-754 type.
func (s Scalar) Float() bool {
	return s == ScalarFloat32 || s == ScalarFloat64
}

func (s Scalar) size(pointerSize int) int {
	switch s {
	case ScalarChar, ScalarInt8, ScalarUint8, ScalarBool:
		return 1
	case ScalarInt16, ScalarUint16, ScalarWChar:
		return 2
	case ScalarInt32, ScalarUint32, ScalarFloat32:
		return 4
	case ScalarInt64, ScalarUint64, ScalarFloat64:
		return 8
	case ScalarSize:
		return pointerSize
	}
	return 0
}

// Format selects a rendering that depends on the identity of a named type
// rather than on its shape.
type Format uint8

const (
	FormatDefault Format = iota
	// FormatHandle renders the value bytes as one big-endian hex literal.
	FormatHandle
	// FormatGUID renders 16 bytes as {xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx}.
	FormatGUID
	// FormatAddress renders an integer or pointer as 0x-prefixed hex and
	// never dereferences it.
	FormatAddress
)

func parseFormat(s string) (Format, error) {
	switch s {
	case "":
		return FormatDefault, nil
	case "handle":
		return FormatHandle, nil
	case "guid":
		return FormatGUID, nil
	case "address":
		return FormatAddress, nil
	}
	return FormatDefault, fmt.Errorf("unknown format %q", s)
}

// Type describes the layout of one C type. Types are built once by Parse and
// are read-only afterwards.
type Type struct {
	Name   string
	Kind   Kind
	Scalar Scalar
	Format Format
	Size   int
	Align  int

	// Elem is the pointee of a pointer or the element of an array.
	Elem *Type
	// Len is the element count of an array.
	Len int

	// Fields holds struct fields, or union members (all at offset 0).
	Fields []Field
	// Variants holds the named values of an enum in declaration order.
	Variants []EnumVariant
	// Union describes how the active member of a union is chosen.
	Union *UnionInfo

	// Unsupported marks shapes that cannot be rendered for this catalog version.
	Unsupported bool
}

// Field is a named member of a struct or union.
type Field struct {
	Name   string
	Type   *Type
	Offset int
	// Reserved fields are padding and are never rendered.
	Reserved bool
	// Embedded marks an anonymous member whose own members render inline.
	Embedded bool
}

// EnumVariant is one named value of an enum.
type EnumVariant struct {
	Name  string
	Value int64
}

// UnionInfo lists the tag-to-member mapping of a tagged union.
type UnionInfo struct {
	// Tag names the discriminating field. It is either one of Common (the
	// union carries its own tag) or a sibling field of the enclosing struct.
	// Unions tagged by a function argument leave it empty.
	Tag string
	// TagType is the enum the tag values are spelled in.
	TagType *Type
	// Common lists the leading fields shared by every member.
	Common []Field
	Cases  []UnionCase
}

// SelfTagged reports whether the tag lives inside the union itself.
func (u *UnionInfo) SelfTagged() bool {
	if u == nil || u.Tag == "" {
		return false
	}
	for _, f := range u.Common {
		if f.Name == u.Tag {
			return true
		}
	}
	return false
}

// CommonField returns the shared field called name.
func (u *UnionInfo) CommonField(name string) (Field, bool) {
	for _, f := range u.Common {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Lookup returns the case registered for a tag value.
func (u *UnionInfo) Lookup(tag int64) (*UnionCase, bool) {
	if u == nil {
		return nil, false
	}
	for i := range u.Cases {
		for _, v := range u.Cases[i].Values {
			if v == tag {
				return &u.Cases[i], true
			}
		}
	}
	return nil, false
}

// UnionCase selects the member rendered for a set of tag values.
type UnionCase struct {
	Tags   []string
	Values []int64
	// Member is a dotted path from the union to the rendered value.
	Member string
	// Select picks the member of embedded unions inside Member, keyed by the
	// embedded field name. Tags that share one member layout but differ in
	// which inner value is live use it instead of separate members.
	Select map[string]string
	// Flatten renders the fields of Member inline in the enclosing struct,
	// skipping NULL pointers.
	Flatten bool
}

// FieldByName returns the struct field or union member called name.
func (t *Type) FieldByName(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// VariantName returns the symbolic name of an enum value.
func (t *Type) VariantName(v int64) (string, bool) {
	for _, variant := range t.Variants {
		if variant.Value == v {
			return variant.Name, true
		}
	}
	return "", false
}

// VariantValue returns the value of a named enum variant.
func (t *Type) VariantValue(name string) (int64, bool) {
	for _, variant := range t.Variants {
		if variant.Name == name {
			return variant.Value, true
		}
	}
	return 0, false
}

// IsChar reports whether t is the plain C char type.
func (t *Type) IsChar() bool {
	return t != nil && t.Kind == KindScalar && t.Scalar == ScalarChar
}

// IsWChar reports whether t is a UTF-16 code unit.
func (t *Type) IsWChar() bool {
	return t != nil && t.Kind == KindScalar && t.Scalar == ScalarWChar
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	if t.Name != "" {
		return t.Name
	}
	switch t.Kind {
	case KindPointer:
		return t.Elem.String() + "*"
	case KindArray:
		return fmt.Sprintf("%s[%d]", t.Elem, t.Len)
	}
	return t.Kind.String()
}

// Function is the signature of one driver entry point.
type Function struct {
	Name string
	// Index is the position of the function in the catalog.
	Index  int
	Params []Param
}

// Param is one named argument of a Function.
type Param struct {
	Name string
	Type *Type
}
