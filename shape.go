package forma

import (
	"reflect"
)

// Kind classifies the structural shape of a type as seen by the builder.
type Kind uint8

const (
	KindScalar Kind = iota
	KindStruct
	KindEnum
	KindArray
	KindList
	KindMap
	KindSet
	KindOption
	KindResult
	KindPointer
	KindDynamic
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindStruct:
		return "struct"
	case KindEnum:
		return "enum"
	case KindArray:
		return "array"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindSet:
		return "set"
	case KindOption:
		return "option"
	case KindResult:
		return "result"
	case KindPointer:
		return "pointer"
	case KindDynamic:
		return "dynamic"
	default:
		return "unknown"
	}
}

// MaxFields is the per-composite member ceiling imposed by the initialization
// bitmask. Structs, fixed arrays and enum variant payloads beyond this width
// are rejected at derivation time. This is a documented limitation, chosen so
// progress tracking stays a single machine word.
const MaxFields = 64

// Shape is the immutable, process-wide descriptor of one Go type: its layout,
// its structural kind, and, for composites, its member descriptors. Shapes are
// derived once per type and interned forever; the builder trusts Size/Align to
// match the real in-memory layout without re-validating it.
type Shape struct {
	Type  reflect.Type
	Kind  Kind
	Size  uintptr
	Align int

	// Fields describes struct members in declaration order (KindStruct only).
	Fields []Field
	// Variants describes the closed variant set of an enum (KindEnum only).
	Variants []Variant

	// Elem is the element/pointee shape for arrays, lists, sets, pointers and
	// the inner shape for options.
	Elem *Shape
	// KeyShape/ValShape describe map entries (KindMap only).
	KeyShape *Shape
	ValShape *Shape
	// OkShape/ErrShape describe the two arms of a result (KindResult only).
	OkShape  *Shape
	ErrShape *Shape
	// ArrayLen is the fixed element count (KindArray only).
	ArrayLen int

	// Defaultable marks the container as eligible for whole-struct default
	// filling of unset fields that support default construction.
	Defaultable bool

	ops *OpTable
}

func (s *Shape) String() string {
	if s == nil {
		return "<nil shape>"
	}
	return s.Type.String()
}

// Ops returns the operation table for this shape. The table itself is never
// nil; individual entries may be.
func (s *Shape) Ops() *OpTable { return s.ops }

// FieldByName returns the field descriptor with the given resolved name.
func (s *Shape) FieldByName(name string) (*Field, bool) {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i], true
		}
	}
	return nil, false
}

// VariantByName returns the variant descriptor with the given name.
func (s *Shape) VariantByName(name string) (*Variant, bool) {
	for i := range s.Variants {
		if s.Variants[i].Name == name {
			return &s.Variants[i], true
		}
	}
	return nil, false
}

// Field describes one struct member: its resolved wire name, declaration
// index, byte offset inside the parent, and the nested shape.
type Field struct {
	Name   string
	Index  int
	Offset uintptr

	shape *Shape

	// DefaultText is the literal from a `default:"..."` tag, parsed through
	// the field type's ParseText op at fill time.
	DefaultText    string
	hasDefaultText bool
	// defaultFn is a field-specific default supplied via WithFieldDefault.
	defaultFn func() (any, error)
	// wantTypeDefault marks a bare `default` tag flag: fill from the type's
	// Default op, erroring with default_attr_but_no_default_impl if absent.
	wantTypeDefault bool

	validators []Validator
}

// Shape returns the field's type descriptor.
func (f *Field) Shape() *Shape { return f.shape }

// HasDefault reports whether the field declares any field-specific default.
func (f *Field) HasDefault() bool {
	return f.hasDefaultText || f.defaultFn != nil || f.wantTypeDefault
}

// Validators returns the validators declared for this field.
func (f *Field) Validators() []Validator { return f.validators }

// FieldDefault produces the field-specific default value, if one is declared.
// The bool result is false when the field has no field-specific default.
func (f *Field) FieldDefault() (any, bool, error) {
	if f.defaultFn != nil {
		v, err := f.defaultFn()
		return v, true, err
	}
	if f.hasDefaultText {
		ptr := reflect.New(f.shape.Type)
		ok, err := f.shape.CallParseText(ptr.Interface(), f.DefaultText)
		if !ok {
			return nil, true, errOperationFailed(f.shape, "parse_text")
		}
		if err != nil {
			return nil, true, err
		}
		return ptr.Elem().Interface(), true, nil
	}
	if f.wantTypeDefault {
		ptr := reflect.New(f.shape.Type)
		ok, err := f.shape.CallDefault(ptr.Interface())
		if !ok {
			return nil, true, &Error{Code: CodeNoDefaultImpl, Shape: f.shape, Field: f.Name}
		}
		if err != nil {
			return nil, true, err
		}
		return ptr.Elem().Interface(), true, nil
	}
	return nil, false, nil
}

// WantsTypeDefault reports whether the field carries a bare `default` tag.
func (f *Field) WantsTypeDefault() bool { return f.wantTypeDefault }

// Validator checks one already-initialized field value.
type Validator func(v any) error

// Variant describes one member of a closed enum: its name, discriminant, the
// Go struct type carrying its payload, and that payload's shape.
type Variant struct {
	Name         string
	Discriminant int
	Type         reflect.Type

	shape *Shape
	// byPointer records whether the payload satisfies the enum interface via
	// a pointer receiver, deciding how a built payload is committed.
	byPointer bool
}

// Shape returns the variant payload's descriptor (always KindStruct).
func (v *Variant) Shape() *Shape { return v.shape }

// ByPointer reports whether the payload implements the enum interface with a
// pointer receiver.
func (v *Variant) ByPointer() bool { return v.byPointer }

// IsAbsenceShaped reports whether the shape has a natural empty/absent value
// usable when a missing field need not be an error: options, and nil-able
// growable collections.
func (s *Shape) IsAbsenceShaped() bool {
	switch s.Kind {
	case KindOption, KindList, KindMap, KindSet, KindDynamic:
		return true
	default:
		return false
	}
}

// ExpectKind returns a was_not_a error when the shape is not of kind k.
// expected is the human name used in the error ("struct", "map", ...).
func (s *Shape) ExpectKind(k Kind, expected string) error {
	if s.Kind != k {
		return errWasNotA(expected, s)
	}
	return nil
}
