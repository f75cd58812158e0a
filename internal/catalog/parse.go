package catalog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownType is returned when a type expression names a type the
	// catalog does not define.
	ErrUnknownType = errors.New("unknown type")
	// ErrCycle is returned when a type contains itself by value.
	ErrCycle = errors.New("type cycle")
)

type document struct {
	Version   string    `yaml:"version"`
	Types     yaml.Node `yaml:"types"`
	Functions yaml.Node `yaml:"functions"`
}

type typeDoc struct {
	Alias       string    `yaml:"alias"`
	Opaque      bool      `yaml:"opaque"`
	Format      string    `yaml:"format"`
	Unsupported bool      `yaml:"unsupported"`
	Base        string    `yaml:"base"`
	Enum        yaml.Node `yaml:"enum"`
	Struct      yaml.Node `yaml:"struct"`
	Union       *unionDoc `yaml:"union"`
}

type unionDoc struct {
	Tag     string    `yaml:"tag"`
	TagType string    `yaml:"tag_type"`
	Common  yaml.Node `yaml:"common"`
	Members yaml.Node `yaml:"members"`
	Cases   []caseDoc `yaml:"cases"`
}

type caseDoc struct {
	Tags    []string          `yaml:"tags"`
	Member  string            `yaml:"member"`
	Select  map[string]string `yaml:"select"`
	Flatten bool              `yaml:"flatten"`
}

type fieldDoc struct {
	Type     string `yaml:"type"`
	Reserved bool   `yaml:"reserved"`
	Embedded bool   `yaml:"embedded"`
}

const (
	stateNone uint8 = iota
	stateActive
	stateDone
)

type arrayKey struct {
	elem *Type
	n    int
}

// builder turns a catalog document into resolved, laid-out types.
type builder struct {
	pointerSize int

	docs  map[string]*typeDoc
	named map[string]*Type
	order []string

	scalars  map[Scalar]*Type
	void     *Type
	pointers map[*Type]*Type
	arrays   map[arrayKey]*Type
	all      []*Type

	fillState   map[*Type]uint8
	layoutState map[*Type]uint8
}

// Parse builds a Catalog from its YAML description, laying every type out
// for the given pointer size (4 or 8).
func Parse(data []byte, pointerSize int) (*Catalog, error) {
	if pointerSize != 4 && pointerSize != 8 {
		return nil, fmt.Errorf("unsupported pointer size %d", pointerSize)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	b := &builder{
		pointerSize: pointerSize,
		docs:        make(map[string]*typeDoc),
		named:       make(map[string]*Type),
		scalars:     make(map[Scalar]*Type),
		pointers:    make(map[*Type]*Type),
		arrays:      make(map[arrayKey]*Type),
		fillState:   make(map[*Type]uint8),
		layoutState: make(map[*Type]uint8),
	}
	b.void = b.intern(&Type{Name: "void", Kind: KindVoid})

	// 1. Create a shell per named type so definitions can refer to each
	// other in any order.
	err := eachPair(&doc.Types, func(name string, value *yaml.Node) error {
		if _, ok := builtinScalars[name]; ok || name == "void" {
			return fmt.Errorf("type %q shadows a builtin", name)
		}
		if _, dup := b.docs[name]; dup {
			return fmt.Errorf("type %q defined twice", name)
		}
		var td typeDoc
		if err := value.Decode(&td); err != nil {
			return fmt.Errorf("type %s: %w", name, err)
		}
		b.docs[name] = &td
		b.named[name] = b.intern(&Type{Name: name})
		b.order = append(b.order, name)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 2. Fill in shapes.
	for _, name := range b.order {
		if _, err := b.fill(name); err != nil {
			return nil, err
		}
	}

	// 3. Compute sizes and field offsets.
	for i := 0; i < len(b.all); i++ {
		if err := b.layout(b.all[i]); err != nil {
			return nil, err
		}
	}

	// 4. Validate union case paths now that every member is known.
	for _, name := range b.order {
		if err := b.checkUnion(b.named[name]); err != nil {
			return nil, err
		}
	}

	cat := &Catalog{
		Version:     doc.Version,
		PointerSize: pointerSize,
		types:       b.named,
		all:         b.all,
		byName:      make(map[string]*Function),
	}

	err = eachPair(&doc.Functions, func(name string, value *yaml.Node) error {
		if _, dup := cat.byName[name]; dup {
			return fmt.Errorf("function %q defined twice", name)
		}
		fn := &Function{Name: name, Index: len(cat.functions)}
		err := eachPair(value, func(param string, typ *yaml.Node) error {
			if typ.Kind != yaml.ScalarNode {
				return fmt.Errorf("function %s: parameter %s: expected a type expression", name, param)
			}
			t, err := b.expr(typ.Value)
			if err != nil {
				return fmt.Errorf("function %s: parameter %s: %w", name, param, err)
			}
			// Array parameters decay to pointers.
			if t.Kind == KindArray {
				t = b.pointerTo(t.Elem)
			}
			if t.Kind == KindVoid || t.Kind == KindOpaque {
				return fmt.Errorf("function %s: parameter %s: %s cannot be passed by value", name, param, t)
			}
			fn.Params = append(fn.Params, Param{Name: param, Type: t})
			return nil
		})
		if err != nil {
			return err
		}
		cat.functions = append(cat.functions, fn)
		cat.byName[name] = fn
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Parameters may have created new derived types.
	for i := 0; i < len(b.all); i++ {
		if err := b.layout(b.all[i]); err != nil {
			return nil, err
		}
	}
	cat.all = b.all
	cat.fingerprint = fingerprint(data)
	return cat, nil
}

// eachPair walks a YAML mapping in document order.
func eachPair(n *yaml.Node, fn func(key string, value *yaml.Node) error) error {
	n = deref(n)
	if n == nil || n.Kind == 0 {
		return nil
	}
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", n.Line)
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if err := fn(n.Content[i].Value, deref(n.Content[i+1])); err != nil {
			return err
		}
	}
	return nil
}

// deref follows YAML aliases so shared member lists can be written once.
func deref(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

func (b *builder) intern(t *Type) *Type {
	b.all = append(b.all, t)
	return t
}

func (b *builder) scalar(s Scalar, name string) *Type {
	if t, ok := b.scalars[s]; ok {
		return t
	}
	t := b.intern(&Type{Name: name, Kind: KindScalar, Scalar: s})
	b.scalars[s] = t
	return t
}

func (b *builder) pointerTo(elem *Type) *Type {
	if t, ok := b.pointers[elem]; ok {
		return t
	}
	t := b.intern(&Type{Kind: KindPointer, Elem: elem})
	b.pointers[elem] = t
	return t
}

func (b *builder) arrayOf(elem *Type, n int) *Type {
	key := arrayKey{elem: elem, n: n}
	if t, ok := b.arrays[key]; ok {
		return t
	}
	t := b.intern(&Type{Kind: KindArray, Elem: elem, Len: n})
	b.arrays[key] = t
	return t
}

// expr resolves a type spelling to a Type.
func (b *builder) expr(s string) (*Type, error) {
	e, err := ParseTypeExpr(s)
	if err != nil {
		return nil, err
	}

	var t *Type
	switch {
	case e.Base == "void":
		t = b.void
	case builtinScalars[e.Base] != ScalarNone:
		t = b.scalar(builtinScalars[e.Base], e.Base)
	default:
		named, ok := b.named[e.Base]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownType, e.Base)
		}
		t = named
	}

	for i := 0; i < e.Pointers; i++ {
		t = b.pointerTo(t)
	}
	if e.ArrayLen > 0 {
		t = b.arrayOf(t, e.ArrayLen)
	}
	return t, nil
}

func (b *builder) fill(name string) (*Type, error) {
	t := b.named[name]
	switch b.fillState[t] {
	case stateDone:
		return t, nil
	case stateActive:
		return nil, fmt.Errorf("%w: alias chain through %s", ErrCycle, name)
	}
	b.fillState[t] = stateActive

	doc := b.docs[name]
	format, err := parseFormat(doc.Format)
	if err != nil {
		return nil, fmt.Errorf("type %s: %w", name, err)
	}

	switch {
	case doc.Alias != "":
		target, err := b.expr(doc.Alias)
		if err != nil {
			return nil, fmt.Errorf("type %s: %w", name, err)
		}
		if target.Name != "" && b.docs[target.Name] != nil {
			if _, err := b.fill(target.Name); err != nil {
				return nil, err
			}
		}
		*t = *target
		t.Name = name
		if format != FormatDefault {
			t.Format = format
		}
		t.Unsupported = t.Unsupported || doc.Unsupported
		b.fillState[t] = stateDone
		return t, nil

	case doc.Opaque:
		t.Kind = KindOpaque

	case doc.Enum.Kind != 0:
		t.Kind = KindEnum
		t.Scalar = ScalarInt32
		if doc.Base != "" {
			s, ok := builtinScalars[doc.Base]
			if !ok || s.Float() {
				return nil, fmt.Errorf("type %s: invalid enum base %q", name, doc.Base)
			}
			t.Scalar = s
		}
		err := eachPair(&doc.Enum, func(variant string, value *yaml.Node) error {
			var v int64
			if err := value.Decode(&v); err != nil {
				return fmt.Errorf("type %s: variant %s: %w", name, variant, err)
			}
			t.Variants = append(t.Variants, EnumVariant{Name: variant, Value: v})
			return nil
		})
		if err != nil {
			return nil, err
		}

	case doc.Struct.Kind != 0:
		t.Kind = KindStruct
		if t.Fields, err = b.fields(name, &doc.Struct); err != nil {
			return nil, err
		}

	case doc.Union != nil:
		t.Kind = KindUnion
		if t.Fields, err = b.fields(name, &doc.Union.Members); err != nil {
			return nil, err
		}
		if t.Union, err = b.unionInfo(name, doc.Union); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("type %s: no alias, opaque, enum, struct or union definition", name)
	}

	t.Format = format
	t.Unsupported = doc.Unsupported
	b.fillState[t] = stateDone
	return t, nil
}

func (b *builder) fields(owner string, n *yaml.Node) ([]Field, error) {
	var fields []Field
	err := eachPair(n, func(name string, value *yaml.Node) error {
		var fd fieldDoc
		switch value.Kind {
		case yaml.ScalarNode:
			fd.Type = value.Value
		case yaml.MappingNode:
			if err := value.Decode(&fd); err != nil {
				return fmt.Errorf("type %s: field %s: %w", owner, name, err)
			}
		default:
			return fmt.Errorf("type %s: field %s: expected a type expression", owner, name)
		}
		t, err := b.expr(fd.Type)
		if err != nil {
			return fmt.Errorf("type %s: field %s: %w", owner, name, err)
		}
		fields = append(fields, Field{
			Name:     name,
			Type:     t,
			Reserved: fd.Reserved || strings.HasPrefix(name, "reserved") || name == "_unused",
			Embedded: fd.Embedded,
		})
		return nil
	})
	return fields, err
}

func (b *builder) unionInfo(owner string, doc *unionDoc) (*UnionInfo, error) {
	info := &UnionInfo{Tag: doc.Tag}

	var err error
	if info.Common, err = b.fields(owner, &doc.Common); err != nil {
		return nil, err
	}

	switch {
	case doc.TagType != "":
		tt, ok := b.named[doc.TagType]
		if !ok {
			return nil, fmt.Errorf("type %s: %w: %s", owner, ErrUnknownType, doc.TagType)
		}
		if _, err := b.fill(doc.TagType); err != nil {
			return nil, err
		}
		info.TagType = tt
	case info.SelfTagged():
		f, _ := info.CommonField(info.Tag)
		if f.Type.Name != "" && b.docs[f.Type.Name] != nil {
			if _, err := b.fill(f.Type.Name); err != nil {
				return nil, err
			}
		}
		info.TagType = f.Type
	}
	if len(doc.Cases) > 0 && (info.TagType == nil || info.TagType.Kind != KindEnum) {
		return nil, fmt.Errorf("type %s: union cases need an enum tag_type", owner)
	}

	for _, cd := range doc.Cases {
		c := UnionCase{
			Tags:    cd.Tags,
			Member:  cd.Member,
			Select:  cd.Select,
			Flatten: cd.Flatten,
		}
		for _, tag := range cd.Tags {
			if v, err := strconv.ParseInt(tag, 0, 64); err == nil {
				c.Values = append(c.Values, v)
				continue
			}
			v, ok := info.TagType.VariantValue(tag)
			if !ok {
				return nil, fmt.Errorf("type %s: %s is not a variant of %s", owner, tag, info.TagType.Name)
			}
			c.Values = append(c.Values, v)
		}
		info.Cases = append(info.Cases, c)
	}
	return info, nil
}

func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

func (b *builder) layout(t *Type) error {
	switch b.layoutState[t] {
	case stateDone:
		return nil
	case stateActive:
		return fmt.Errorf("%w: %s contains itself by value", ErrCycle, t)
	}
	b.layoutState[t] = stateActive

	switch t.Kind {
	case KindVoid, KindOpaque:
		t.Size, t.Align = 0, 1
	case KindScalar, KindEnum:
		t.Size = t.Scalar.size(b.pointerSize)
		t.Align = t.Size
	case KindPointer:
		t.Size, t.Align = b.pointerSize, b.pointerSize
	case KindArray:
		if err := b.layoutByValue(t.Elem, t); err != nil {
			return err
		}
		t.Size = t.Elem.Size * t.Len
		t.Align = t.Elem.Align
	case KindStruct:
		size, align, err := b.layoutFields(t, t.Fields)
		if err != nil {
			return err
		}
		t.Size, t.Align = alignUp(size, align), align
	case KindUnion:
		t.Align = 1
		for i := range t.Fields {
			f := &t.Fields[i]
			if err := b.layoutByValue(f.Type, t); err != nil {
				return err
			}
			f.Offset = 0
			t.Size = max(t.Size, f.Type.Size)
			t.Align = max(t.Align, f.Type.Align)
		}
		if t.Union != nil {
			size, align, err := b.layoutFields(t, t.Union.Common)
			if err != nil {
				return err
			}
			t.Size = max(t.Size, size)
			t.Align = max(t.Align, align)
		}
		t.Size = alignUp(t.Size, t.Align)
	}

	b.layoutState[t] = stateDone
	return nil
}

func (b *builder) layoutFields(owner *Type, fields []Field) (size, align int, err error) {
	align = 1
	for i := range fields {
		f := &fields[i]
		if err := b.layoutByValue(f.Type, owner); err != nil {
			return 0, 0, err
		}
		size = alignUp(size, f.Type.Align)
		f.Offset = size
		size += f.Type.Size
		align = max(align, f.Type.Align)
	}
	return size, align, nil
}

func (b *builder) layoutByValue(t, owner *Type) error {
	if t.Kind == KindVoid || t.Kind == KindOpaque {
		return fmt.Errorf("type %s: %s cannot be embedded by value", owner, t)
	}
	return b.layout(t)
}

func (b *builder) checkUnion(t *Type) error {
	if t.Kind != KindUnion || t.Union == nil {
		return nil
	}
	for _, c := range t.Union.Cases {
		member, err := ResolvePath(t, c.Member)
		if err != nil {
			return fmt.Errorf("type %s: case %v: %w", t.Name, c.Tags, err)
		}
		for embedded, pick := range c.Select {
			f, ok := member.Type.FieldByName(embedded)
			if !ok || f.Type.Kind != KindUnion {
				return fmt.Errorf("type %s: case %v: %s is not a union field of %s", t.Name, c.Tags, embedded, member.Type)
			}
			if _, ok := f.Type.FieldByName(pick); !ok {
				return fmt.Errorf("type %s: case %v: %s has no member %s", t.Name, c.Tags, f.Type, pick)
			}
		}
	}
	return nil
}

// ResolvePath walks a dotted member path from t and returns the final field
// with its offset relative to t.
func ResolvePath(t *Type, path string) (Field, error) {
	if path == "" {
		return Field{}, fmt.Errorf("empty member path")
	}
	cur := Field{Type: t}
	for _, part := range strings.Split(path, ".") {
		f, ok := cur.Type.FieldByName(part)
		if !ok {
			return Field{}, fmt.Errorf("%s has no member %s", cur.Type, part)
		}
		f.Offset += cur.Offset
		cur = f
	}
	return cur, nil
}
