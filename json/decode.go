package json

import (
	"bytes"
	"reflect"
	"strconv"

	gojson "github.com/goccy/go-json"

	forma "github.com/unformed/forma"
	"github.com/unformed/forma/partial"
)

// Option configures decoding.
type Option func(*decoder)

// IgnoreUnknownFields makes object keys without a matching struct field be
// skipped instead of raising unknown_field.
func IgnoreUnknownFields() Option {
	return func(d *decoder) { d.ignoreUnknown = true }
}

type decoder struct {
	ignoreUnknown bool
}

// Unmarshal decodes JSON into a freshly built T, driving a builder shape by
// shape so partial input fails with path-tagged errors instead of producing
// half-initialized values.
func Unmarshal[T any](data []byte, opts ...Option) (T, error) {
	var zero T
	v, err := UnmarshalValue(forma.ShapeOf[T](), data, opts...)
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, &forma.Error{Code: forma.CodeWasNotA, Expected: forma.ShapeOf[T]().String(), Actual: reflect.TypeOf(v).String()}
	}
	return out, nil
}

// UnmarshalValue is the shape-driven form of Unmarshal.
func UnmarshalValue(sh *forma.Shape, data []byte, opts ...Option) (any, error) {
	tree, err := parseTree(data)
	if err != nil {
		return nil, &forma.Error{Code: forma.CodeParseError, Message: err.Error(), Cause: err}
	}
	d := &decoder{}
	for _, o := range opts {
		o(d)
	}
	p := partial.New(sh)
	if err := d.value(p, tree); err != nil {
		p.Abandon()
		return nil, err
	}
	return p.Build()
}

// UnmarshalInto decodes into caller-supplied memory through a borrowing
// builder.
func UnmarshalInto(ptr any, data []byte, opts ...Option) error {
	tree, err := parseTree(data)
	if err != nil {
		return &forma.Error{Code: forma.CodeParseError, Message: err.Error(), Cause: err}
	}
	d := &decoder{}
	for _, o := range opts {
		o(d)
	}
	p, err := partial.Borrow(ptr)
	if err != nil {
		return err
	}
	if err := d.value(p, tree); err != nil {
		p.Abandon()
		return err
	}
	_, err = p.Build()
	return err
}

// parseTree decodes the document into the generic tree form, with numbers
// kept textual so integer precision survives.
func parseTree(data []byte) (any, error) {
	dec := gojson.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// value decodes one tree node into the builder's current frame.
func (d *decoder) value(p *partial.Partial, v any) error {
	sh := p.Shape()
	if v == nil {
		if sh.IsAbsenceShaped() || sh.Kind == forma.KindPointer {
			return p.SetDefault()
		}
		return &forma.Error{Code: forma.CodeWrongShape, Path: p.Path().String(), Shape: sh, Expected: sh.String(), Actual: "null"}
	}
	switch sh.Kind {
	case forma.KindScalar:
		return d.scalar(p, sh, v)
	case forma.KindStruct:
		return d.object(p, sh, v)
	case forma.KindList:
		return d.list(p, v, p.BeginListItem)
	case forma.KindSet:
		return d.list(p, v, p.BeginSetItem)
	case forma.KindArray:
		return d.array(p, sh, v)
	case forma.KindMap:
		return d.mapping(p, v)
	case forma.KindOption:
		if err := p.BeginSome(); err != nil {
			return err
		}
		if err := d.value(p, v); err != nil {
			return err
		}
		return p.End()
	case forma.KindResult:
		return d.result(p, sh, v)
	case forma.KindPointer:
		if err := p.BeginPointee(); err != nil {
			return err
		}
		if err := d.value(p, v); err != nil {
			return err
		}
		return p.End()
	case forma.KindEnum:
		return d.enum(p, sh, v)
	case forma.KindDynamic:
		dyn, err := dynamicFromTree(v)
		if err != nil {
			return err
		}
		return p.Set(dyn)
	default:
		return &forma.Error{Code: forma.CodeWasNotA, Shape: sh, Expected: "decodable shape", Actual: sh.Kind.String()}
	}
}

func (d *decoder) scalar(p *partial.Partial, sh *forma.Shape, v any) error {
	switch x := v.(type) {
	case bool:
		return p.Set(x)
	case string:
		if sh.Type.Kind() == reflect.String {
			return p.Set(x)
		}
		// timestamps, byte strings and other textual scalars go through
		// the type's own parser
		return p.ParseText(x)
	case gojson.Number:
		return d.number(p, sh, x)
	default:
		return &forma.Error{Code: forma.CodeWrongShape, Path: p.Path().String(), Shape: sh, Expected: sh.String(), Actual: treeKind(v)}
	}
}

// number routes through try_from so narrowing stays lossless; shapes without
// a numeric conversion fall back to textual parsing.
func (d *decoder) number(p *partial.Partial, sh *forma.Shape, n gojson.Number) error {
	if sh.Type.Kind() == reflect.String {
		return &forma.Error{Code: forma.CodeWrongShape, Path: p.Path().String(), Shape: sh, Expected: sh.String(), Actual: "number"}
	}
	tmp := reflect.New(sh.Type)
	if i, err := strconv.ParseInt(string(n), 10, 64); err == nil {
		if ok, cerr := sh.CallTryFrom(tmp.Interface(), i); ok {
			if cerr != nil {
				return &forma.Error{Code: forma.CodeWrongShape, Path: p.Path().String(), Shape: sh, Expected: sh.String(), Actual: string(n), Cause: cerr}
			}
			return p.Set(tmp.Elem().Interface())
		}
	} else if f, ferr := n.Float64(); ferr == nil {
		if ok, cerr := sh.CallTryFrom(tmp.Interface(), f); ok {
			if cerr != nil {
				return &forma.Error{Code: forma.CodeWrongShape, Path: p.Path().String(), Shape: sh, Expected: sh.String(), Actual: string(n), Cause: cerr}
			}
			return p.Set(tmp.Elem().Interface())
		}
	}
	return p.ParseText(string(n))
}

func (d *decoder) object(p *partial.Partial, sh *forma.Shape, v any) error {
	obj, ok := v.(map[string]any)
	if !ok {
		return &forma.Error{Code: forma.CodeWrongShape, Path: p.Path().String(), Shape: sh, Expected: "object", Actual: treeKind(v)}
	}
	// field order over wire order keeps error paths deterministic
	for i := range sh.Fields {
		fd := &sh.Fields[i]
		fv, present := obj[fd.Name]
		if !present {
			continue
		}
		if err := p.BeginField(fd.Name); err != nil {
			return err
		}
		if err := d.value(p, fv); err != nil {
			return err
		}
		if err := p.End(); err != nil {
			return err
		}
	}
	if d.ignoreUnknown {
		return nil
	}
	for key := range obj {
		if _, known := sh.FieldByName(key); !known {
			return &forma.Error{Code: forma.CodeUnknownField, Path: p.Path().String(), Shape: sh, Field: key}
		}
	}
	return nil
}

func (d *decoder) list(p *partial.Partial, v any, begin func() error) error {
	arr, ok := v.([]any)
	if !ok {
		return &forma.Error{Code: forma.CodeWrongShape, Path: p.Path().String(), Shape: p.Shape(), Expected: "array", Actual: treeKind(v)}
	}
	if len(arr) == 0 {
		return p.SetDefault()
	}
	for _, ev := range arr {
		if err := begin(); err != nil {
			return err
		}
		if err := d.value(p, ev); err != nil {
			return err
		}
		if err := p.End(); err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) array(p *partial.Partial, sh *forma.Shape, v any) error {
	arr, ok := v.([]any)
	if !ok {
		return &forma.Error{Code: forma.CodeWrongShape, Path: p.Path().String(), Shape: sh, Expected: "array", Actual: treeKind(v)}
	}
	if len(arr) != sh.ArrayLen {
		return &forma.Error{Code: forma.CodeOutOfBounds, Path: p.Path().String(), Shape: sh, Message: "length " + strconv.Itoa(len(arr)) + ", want " + strconv.Itoa(sh.ArrayLen)}
	}
	for i, ev := range arr {
		if err := p.BeginNthField(i); err != nil {
			return err
		}
		if err := d.value(p, ev); err != nil {
			return err
		}
		if err := p.End(); err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) mapping(p *partial.Partial, v any) error {
	obj, ok := v.(map[string]any)
	if !ok {
		return &forma.Error{Code: forma.CodeWrongShape, Path: p.Path().String(), Shape: p.Shape(), Expected: "object", Actual: treeKind(v)}
	}
	if len(obj) == 0 {
		return p.SetDefault()
	}
	keySh := p.Shape().KeyShape
	for key, ev := range obj {
		if err := p.BeginKey(); err != nil {
			return err
		}
		if keySh.Type.Kind() == reflect.String {
			if err := p.Set(key); err != nil {
				return err
			}
		} else if err := p.ParseText(key); err != nil {
			return err
		}
		if err := p.End(); err != nil {
			return err
		}
		if err := p.BeginValue(); err != nil {
			return err
		}
		if err := d.value(p, ev); err != nil {
			return err
		}
		if err := p.End(); err != nil {
			return err
		}
	}
	return nil
}

// result decodes the {"ok": ...} / {"err": ...} envelope.
func (d *decoder) result(p *partial.Partial, sh *forma.Shape, v any) error {
	obj, ok := v.(map[string]any)
	if !ok || len(obj) != 1 {
		return &forma.Error{Code: forma.CodeWrongShape, Path: p.Path().String(), Shape: sh, Expected: `an object with exactly one of "ok"/"err"`, Actual: treeKind(v)}
	}
	if inner, found := obj["ok"]; found {
		if err := p.BeginOk(); err != nil {
			return err
		}
		if err := d.value(p, inner); err != nil {
			return err
		}
		return p.End()
	}
	if inner, found := obj["err"]; found {
		if err := p.BeginErr(); err != nil {
			return err
		}
		if err := d.value(p, inner); err != nil {
			return err
		}
		return p.End()
	}
	return &forma.Error{Code: forma.CodeWrongShape, Path: p.Path().String(), Shape: sh, Expected: `an object with exactly one of "ok"/"err"`, Actual: "object"}
}

// variantKey is the internal tag naming the active variant of an enum object.
const variantKey = "type"

func (d *decoder) enum(p *partial.Partial, sh *forma.Shape, v any) error {
	switch x := v.(type) {
	case string:
		// a bare name selects a variant with an empty payload
		if err := p.SelectVariant(x); err != nil {
			return err
		}
		return nil
	case map[string]any:
		tag, ok := x[variantKey].(string)
		if !ok {
			return &forma.Error{Code: forma.CodeUnknownVariant, Path: p.Path().String(), Shape: sh, Message: "missing " + strconv.Quote(variantKey) + " tag"}
		}
		if err := p.SelectVariant(tag); err != nil {
			return err
		}
		variant, _ := sh.VariantByName(tag)
		for i := range variant.Shape().Fields {
			fd := &variant.Shape().Fields[i]
			fv, present := x[fd.Name]
			if !present {
				continue
			}
			if err := p.BeginField(fd.Name); err != nil {
				return err
			}
			if err := d.value(p, fv); err != nil {
				return err
			}
			if err := p.End(); err != nil {
				return err
			}
		}
		if !d.ignoreUnknown {
			for key := range x {
				if key == variantKey {
					continue
				}
				if _, known := variant.Shape().FieldByName(key); !known {
					return &forma.Error{Code: forma.CodeUnknownField, Path: p.Path().String(), Shape: sh, Field: key, Variant: tag}
				}
			}
		}
		return nil
	default:
		return &forma.Error{Code: forma.CodeWrongShape, Path: p.Path().String(), Shape: sh, Expected: "tagged object", Actual: treeKind(v)}
	}
}

// dynamicFromTree converts a decoded tree into a Dynamic value.
func dynamicFromTree(v any) (forma.Dynamic, error) {
	var d forma.Dynamic
	switch x := v.(type) {
	case nil:
		// null sentinel
	case bool:
		d.SetBool(x)
	case string:
		d.SetString(x)
	case gojson.Number:
		if i, err := strconv.ParseInt(string(x), 10, 64); err == nil {
			d.SetInt(i)
		} else {
			f, ferr := x.Float64()
			if ferr != nil {
				return d, &forma.Error{Code: forma.CodeParseError, Message: "number " + string(x), Cause: ferr}
			}
			d.SetFloat(f)
		}
	case []any:
		d.BecomeArray()
		for _, ev := range x {
			ed, err := dynamicFromTree(ev)
			if err != nil {
				return d, err
			}
			if err := d.Append(ed); err != nil {
				return d, err
			}
		}
	case map[string]any:
		d.BecomeObject()
		for key, mv := range x {
			md, err := dynamicFromTree(mv)
			if err != nil {
				return d, err
			}
			if err := d.SetMember(key, md); err != nil {
				return d, err
			}
		}
	default:
		return d, &forma.Error{Code: forma.CodeWrongShape, Expected: "dynamic tree", Actual: treeKind(v)}
	}
	return d, nil
}

// treeKind names a decoded tree node for error messages.
func treeKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case string:
		return "string"
	case gojson.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return reflect.TypeOf(v).String()
	}
}
