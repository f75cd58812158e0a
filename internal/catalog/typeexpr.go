package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// TypeExpr is a parsed C type spelling such as "const char*" or
// "unsigned char[16]".
type TypeExpr struct {
	Base     string
	Pointers int
	// ArrayLen is zero for non-array types.
	ArrayLen int
}

// ParseTypeExpr splits a C type spelling into its base name, pointer depth
// and optional array length. Qualifiers are dropped.
func ParseTypeExpr(s string) (TypeExpr, error) {
	var expr TypeExpr
	s = strings.TrimSpace(s)
	if s == "" {
		return expr, fmt.Errorf("empty type expression")
	}

	if strings.HasSuffix(s, "]") {
		open := strings.LastIndexByte(s, '[')
		if open < 0 {
			return expr, fmt.Errorf("unbalanced array suffix in %q", s)
		}
		n, err := strconv.Atoi(strings.TrimSpace(s[open+1 : len(s)-1]))
		if err != nil || n <= 0 {
			return expr, fmt.Errorf("invalid array length in %q", s)
		}
		expr.ArrayLen = n
		s = s[:open]
	}

	expr.Pointers = strings.Count(s, "*")
	s = strings.ReplaceAll(s, "*", " ")

	words := strings.Fields(s)
	base := words[:0]
	for _, w := range words {
		if w == "const" || w == "volatile" || w == "struct" || w == "union" || w == "enum" {
			continue
		}
		base = append(base, w)
	}
	if len(base) == 0 {
		return expr, fmt.Errorf("missing base type in %q", s)
	}
	expr.Base = strings.Join(base, " ")
	return expr, nil
}

func (e TypeExpr) String() string {
	s := e.Base + strings.Repeat("*", e.Pointers)
	if e.ArrayLen > 0 {
		s += "[" + strconv.Itoa(e.ArrayLen) + "]"
	}
	return s
}

// builtinScalars maps C spellings to machine scalars.
var builtinScalars = map[string]Scalar{
	"char":               ScalarChar,
	"signed char":        ScalarInt8,
	"unsigned char":      ScalarUint8,
	"short":              ScalarInt16,
	"unsigned short":     ScalarUint16,
	"int":                ScalarInt32,
	"unsigned int":       ScalarUint32,
	"unsigned":           ScalarUint32,
	"long long":          ScalarInt64,
	"unsigned long long": ScalarUint64,
	"size_t":             ScalarSize,
	"uintptr_t":          ScalarSize,
	"float":              ScalarFloat32,
	"double":             ScalarFloat64,
	"bool":               ScalarBool,
	"wchar_t":            ScalarWChar,
	"int8_t":             ScalarInt8,
	"uint8_t":            ScalarUint8,
	"int16_t":            ScalarInt16,
	"uint16_t":           ScalarUint16,
	"int32_t":            ScalarInt32,
	"uint32_t":           ScalarUint32,
	"int64_t":            ScalarInt64,
	"uint64_t":           ScalarUint64,
}
