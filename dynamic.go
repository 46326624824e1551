package forma

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DynKind classifies what a Dynamic currently holds.
type DynKind uint8

const (
	DynNull DynKind = iota
	DynBool
	DynInt
	DynFloat
	DynString
	DynArray
	DynObject
)

func (k DynKind) String() string {
	switch k {
	case DynNull:
		return "null"
	case DynBool:
		return "bool"
	case DynInt:
		return "int"
	case DynFloat:
		return "float"
	case DynString:
		return "string"
	case DynArray:
		return "array"
	case DynObject:
		return "object"
	default:
		return "unknown"
	}
}

// Dynamic is a self-describing value: null, a scalar, an array of Dynamic, or
// an object of string-keyed Dynamic members. The zero value is null.
//
// Mutators that overwrite an existing member or element always reset the slot
// to null before installing the new content, so a cleanup pass over the
// containing collection never observes a half-replaced entry.
type Dynamic struct {
	kind DynKind
	b    bool
	i    int64
	f    float64
	s    string
	arr  []Dynamic
	obj  map[string]*Dynamic
}

// Kind returns what the value currently holds.
func (d *Dynamic) Kind() DynKind { return d.kind }

// IsNull reports whether the value is the null sentinel.
func (d *Dynamic) IsNull() bool { return d.kind == DynNull }

// Reset returns the value to the null sentinel, releasing any children.
func (d *Dynamic) Reset() { *d = Dynamic{} }

// SetBool makes the value a bool scalar.
func (d *Dynamic) SetBool(v bool) { d.Reset(); d.kind = DynBool; d.b = v }

// SetInt makes the value an integer scalar.
func (d *Dynamic) SetInt(v int64) { d.Reset(); d.kind = DynInt; d.i = v }

// SetFloat makes the value a float scalar.
func (d *Dynamic) SetFloat(v float64) { d.Reset(); d.kind = DynFloat; d.f = v }

// SetString makes the value a string scalar.
func (d *Dynamic) SetString(v string) { d.Reset(); d.kind = DynString; d.s = v }

// BecomeArray makes the value an empty array unless it already is one.
func (d *Dynamic) BecomeArray() {
	if d.kind != DynArray {
		d.Reset()
		d.kind = DynArray
		d.arr = nil
	}
}

// BecomeObject makes the value an empty object unless it already is one.
func (d *Dynamic) BecomeObject() {
	if d.kind != DynObject {
		d.Reset()
		d.kind = DynObject
		d.obj = map[string]*Dynamic{}
	}
}

// Append adds v as the next array element. The value must be an array.
func (d *Dynamic) Append(v Dynamic) error {
	if d.kind != DynArray {
		return &Error{Code: CodeWasNotA, Expected: "dynamic array", Actual: d.kind.String()}
	}
	d.arr = append(d.arr, v)
	return nil
}

// SetMember installs v under key. An existing member is reset to null first,
// then overwritten, keeping the object safe for a later cleanup pass even if
// the overwrite is interrupted.
func (d *Dynamic) SetMember(key string, v Dynamic) error {
	if d.kind != DynObject {
		return &Error{Code: CodeWasNotA, Expected: "dynamic object", Actual: d.kind.String()}
	}
	if prev, ok := d.obj[key]; ok {
		prev.Reset()
		*prev = v
		return nil
	}
	nv := v
	d.obj[key] = &nv
	return nil
}

// Member returns the object member under key, or nil when absent or when the
// value is not an object. The returned pointer aliases the stored member.
func (d *Dynamic) Member(key string) *Dynamic {
	if d.kind != DynObject {
		return nil
	}
	return d.obj[key]
}

// Len returns the element count of an array, the member count of an object,
// and zero otherwise.
func (d *Dynamic) Len() int {
	switch d.kind {
	case DynArray:
		return len(d.arr)
	case DynObject:
		return len(d.obj)
	default:
		return 0
	}
}

// Index returns the i-th array element, or nil when out of range or not an
// array. The returned pointer aliases the stored element.
func (d *Dynamic) Index(i int) *Dynamic {
	if d.kind != DynArray || i < 0 || i >= len(d.arr) {
		return nil
	}
	return &d.arr[i]
}

// Keys returns the object's member keys in sorted order.
func (d *Dynamic) Keys() []string {
	if d.kind != DynObject {
		return nil
	}
	ks := make([]string, 0, len(d.obj))
	for k := range d.obj {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}

// Bool returns the bool scalar (false when not a bool).
func (d *Dynamic) Bool() bool { return d.b }

// Int returns the integer scalar (0 when not an int).
func (d *Dynamic) Int() int64 { return d.i }

// Float returns the float scalar, widening an int scalar.
func (d *Dynamic) Float() float64 {
	if d.kind == DynInt {
		return float64(d.i)
	}
	return d.f
}

// Str returns the string scalar ("" when not a string).
func (d *Dynamic) Str() string { return d.s }

// Equal reports deep structural equality.
func (d *Dynamic) Equal(other *Dynamic) bool {
	if d.kind != other.kind {
		return false
	}
	switch d.kind {
	case DynNull:
		return true
	case DynBool:
		return d.b == other.b
	case DynInt:
		return d.i == other.i
	case DynFloat:
		return d.f == other.f
	case DynString:
		return d.s == other.s
	case DynArray:
		if len(d.arr) != len(other.arr) {
			return false
		}
		for i := range d.arr {
			if !d.arr[i].Equal(&other.arr[i]) {
				return false
			}
		}
		return true
	case DynObject:
		if len(d.obj) != len(other.obj) {
			return false
		}
		for k, v := range d.obj {
			ov, ok := other.obj[k]
			if !ok || !v.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders a compact JSON-ish representation for diagnostics.
func (d *Dynamic) String() string {
	b := &strings.Builder{}
	d.render(b)
	return b.String()
}

func (d *Dynamic) render(b *strings.Builder) {
	switch d.kind {
	case DynNull:
		b.WriteString("null")
	case DynBool:
		b.WriteString(strconv.FormatBool(d.b))
	case DynInt:
		b.WriteString(strconv.FormatInt(d.i, 10))
	case DynFloat:
		b.WriteString(strconv.FormatFloat(d.f, 'g', -1, 64))
	case DynString:
		b.WriteString(strconv.Quote(d.s))
	case DynArray:
		b.WriteByte('[')
		for i := range d.arr {
			if i > 0 {
				b.WriteByte(',')
			}
			d.arr[i].render(b)
		}
		b.WriteByte(']')
	case DynObject:
		b.WriteByte('{')
		for i, k := range d.Keys() {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(b, "%s:", strconv.Quote(k))
			d.obj[k].render(b)
		}
		b.WriteByte('}')
	}
}
