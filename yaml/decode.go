// Package yaml decodes YAML documents into values by driving a builder
// shape by shape, mirroring the json package. Scalars are kept textual
// during the walk so integer precision survives and narrowing stays
// lossless.
//
// Only decoding is provided. Values that need to be serialized go out
// through the json package.
package yaml

import (
	"reflect"
	"strconv"

	yamlv3 "gopkg.in/yaml.v3"

	forma "github.com/unformed/forma"
	"github.com/unformed/forma/partial"
)

// Option configures decoding.
type Option func(*decoder)

// IgnoreUnknownFields makes mapping keys without a matching struct field
// be skipped instead of raising unknown_field.
func IgnoreUnknownFields() Option {
	return func(d *decoder) { d.ignoreUnknown = true }
}

type decoder struct {
	ignoreUnknown bool
}

// Unmarshal decodes the first YAML document into a freshly built T.
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
	root, err := parseDoc(data)
	if err != nil {
		return nil, err
	}
	d := &decoder{}
	for _, o := range opts {
		o(d)
	}
	p := partial.New(sh)
	if err := d.value(p, root); err != nil {
		p.Abandon()
		return nil, err
	}
	return p.Build()
}

// UnmarshalInto decodes into caller-supplied memory through a borrowing
// builder.
func UnmarshalInto(ptr any, data []byte, opts ...Option) error {
	root, err := parseDoc(data)
	if err != nil {
		return err
	}
	d := &decoder{}
	for _, o := range opts {
		o(d)
	}
	p, err := partial.Borrow(ptr)
	if err != nil {
		return err
	}
	if err := d.value(p, root); err != nil {
		p.Abandon()
		return err
	}
	_, err = p.Build()
	return err
}

// parseDoc parses data and returns the root node of the first document.
// An empty input decodes as a null node.
func parseDoc(data []byte) (*yamlv3.Node, error) {
	var doc yamlv3.Node
	if err := yamlv3.Unmarshal(data, &doc); err != nil {
		return nil, &forma.Error{Code: forma.CodeParseError, Message: err.Error(), Cause: err}
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return &yamlv3.Node{Kind: yamlv3.ScalarNode, Tag: "!!null"}, nil
	}
	return doc.Content[0], nil
}

// resolve follows alias nodes to their anchor target.
func resolve(n *yamlv3.Node) *yamlv3.Node {
	for n.Kind == yamlv3.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

func isNull(n *yamlv3.Node) bool {
	return n.Kind == yamlv3.ScalarNode && (n.Tag == "!!null" || (n.Tag == "" && n.Value == ""))
}

// value decodes one node into the builder's current frame.
func (d *decoder) value(p *partial.Partial, n *yamlv3.Node) error {
	n = resolve(n)
	sh := p.Shape()
	if isNull(n) {
		if sh.IsAbsenceShaped() || sh.Kind == forma.KindPointer {
			return p.SetDefault()
		}
		return &forma.Error{Code: forma.CodeWrongShape, Path: p.Path().String(), Shape: sh, Expected: sh.String(), Actual: "null"}
	}
	switch sh.Kind {
	case forma.KindScalar:
		return d.scalar(p, sh, n)
	case forma.KindStruct:
		return d.object(p, sh, n)
	case forma.KindList:
		return d.list(p, n, p.BeginListItem)
	case forma.KindSet:
		return d.list(p, n, p.BeginSetItem)
	case forma.KindArray:
		return d.array(p, sh, n)
	case forma.KindMap:
		return d.mapping(p, n)
	case forma.KindOption:
		if err := p.BeginSome(); err != nil {
			return err
		}
		if err := d.value(p, n); err != nil {
			return err
		}
		return p.End()
	case forma.KindResult:
		return d.result(p, sh, n)
	case forma.KindPointer:
		if err := p.BeginPointee(); err != nil {
			return err
		}
		if err := d.value(p, n); err != nil {
			return err
		}
		return p.End()
	case forma.KindEnum:
		return d.enum(p, sh, n)
	case forma.KindDynamic:
		dyn, err := dynamicFromNode(n)
		if err != nil {
			return err
		}
		return p.Set(dyn)
	default:
		return &forma.Error{Code: forma.CodeWasNotA, Shape: sh, Expected: "decodable shape", Actual: sh.Kind.String()}
	}
}

func (d *decoder) scalar(p *partial.Partial, sh *forma.Shape, n *yamlv3.Node) error {
	if n.Kind != yamlv3.ScalarNode {
		return &forma.Error{Code: forma.CodeWrongShape, Path: p.Path().String(), Shape: sh, Expected: sh.String(), Actual: nodeKind(n)}
	}
	switch n.Tag {
	case "!!bool":
		b, err := strconv.ParseBool(n.Value)
		if err != nil {
			return &forma.Error{Code: forma.CodeParseError, Path: p.Path().String(), Shape: sh, Message: "bool " + n.Value, Cause: err}
		}
		return p.Set(b)
	case "!!int", "!!float":
		return d.number(p, sh, n.Value)
	default:
		// !!str, !!timestamp and custom tags all carry text
		if sh.Type.Kind() == reflect.String {
			return p.Set(n.Value)
		}
		return p.ParseText(n.Value)
	}
}

// number routes through try_from so narrowing stays lossless; shapes
// without a numeric conversion fall back to textual parsing.
func (d *decoder) number(p *partial.Partial, sh *forma.Shape, text string) error {
	if sh.Type.Kind() == reflect.String {
		return &forma.Error{Code: forma.CodeWrongShape, Path: p.Path().String(), Shape: sh, Expected: sh.String(), Actual: "number"}
	}
	tmp := reflect.New(sh.Type)
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		if ok, cerr := sh.CallTryFrom(tmp.Interface(), i); ok {
			if cerr != nil {
				return &forma.Error{Code: forma.CodeWrongShape, Path: p.Path().String(), Shape: sh, Expected: sh.String(), Actual: text, Cause: cerr}
			}
			return p.Set(tmp.Elem().Interface())
		}
	} else if f, ferr := strconv.ParseFloat(text, 64); ferr == nil {
		if ok, cerr := sh.CallTryFrom(tmp.Interface(), f); ok {
			if cerr != nil {
				return &forma.Error{Code: forma.CodeWrongShape, Path: p.Path().String(), Shape: sh, Expected: sh.String(), Actual: text, Cause: cerr}
			}
			return p.Set(tmp.Elem().Interface())
		}
	}
	return p.ParseText(text)
}

// pairs returns the key/value node pairs of a mapping, with scalar keys
// resolved to their text.
func pairs(n *yamlv3.Node) ([][2]*yamlv3.Node, bool) {
	if n.Kind != yamlv3.MappingNode || len(n.Content)%2 != 0 {
		return nil, false
	}
	out := make([][2]*yamlv3.Node, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		out = append(out, [2]*yamlv3.Node{resolve(n.Content[i]), n.Content[i+1]})
	}
	return out, true
}

func (d *decoder) object(p *partial.Partial, sh *forma.Shape, n *yamlv3.Node) error {
	kvs, ok := pairs(n)
	if !ok {
		return &forma.Error{Code: forma.CodeWrongShape, Path: p.Path().String(), Shape: sh, Expected: "mapping", Actual: nodeKind(n)}
	}
	byKey := make(map[string]*yamlv3.Node, len(kvs))
	for _, kv := range kvs {
		byKey[kv[0].Value] = kv[1]
	}
	// field order over wire order keeps error paths deterministic
	for i := range sh.Fields {
		fd := &sh.Fields[i]
		fv, present := byKey[fd.Name]
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
	for key := range byKey {
		if _, known := sh.FieldByName(key); !known {
			return &forma.Error{Code: forma.CodeUnknownField, Path: p.Path().String(), Shape: sh, Field: key}
		}
	}
	return nil
}

func (d *decoder) list(p *partial.Partial, n *yamlv3.Node, begin func() error) error {
	if n.Kind != yamlv3.SequenceNode {
		return &forma.Error{Code: forma.CodeWrongShape, Path: p.Path().String(), Shape: p.Shape(), Expected: "sequence", Actual: nodeKind(n)}
	}
	if len(n.Content) == 0 {
		return p.SetDefault()
	}
	for _, en := range n.Content {
		if err := begin(); err != nil {
			return err
		}
		if err := d.value(p, en); err != nil {
			return err
		}
		if err := p.End(); err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) array(p *partial.Partial, sh *forma.Shape, n *yamlv3.Node) error {
	if n.Kind != yamlv3.SequenceNode {
		return &forma.Error{Code: forma.CodeWrongShape, Path: p.Path().String(), Shape: sh, Expected: "sequence", Actual: nodeKind(n)}
	}
	if len(n.Content) != sh.ArrayLen {
		return &forma.Error{Code: forma.CodeOutOfBounds, Path: p.Path().String(), Shape: sh, Message: "length " + strconv.Itoa(len(n.Content)) + ", want " + strconv.Itoa(sh.ArrayLen)}
	}
	for i, en := range n.Content {
		if err := p.BeginNthField(i); err != nil {
			return err
		}
		if err := d.value(p, en); err != nil {
			return err
		}
		if err := p.End(); err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) mapping(p *partial.Partial, n *yamlv3.Node) error {
	kvs, ok := pairs(n)
	if !ok {
		return &forma.Error{Code: forma.CodeWrongShape, Path: p.Path().String(), Shape: p.Shape(), Expected: "mapping", Actual: nodeKind(n)}
	}
	if len(kvs) == 0 {
		return p.SetDefault()
	}
	keySh := p.Shape().KeyShape
	for _, kv := range kvs {
		if err := p.BeginKey(); err != nil {
			return err
		}
		if keySh.Type.Kind() == reflect.String {
			if err := p.Set(kv[0].Value); err != nil {
				return err
			}
		} else if err := p.ParseText(kv[0].Value); err != nil {
			return err
		}
		if err := p.End(); err != nil {
			return err
		}
		if err := p.BeginValue(); err != nil {
			return err
		}
		if err := d.value(p, kv[1]); err != nil {
			return err
		}
		if err := p.End(); err != nil {
			return err
		}
	}
	return nil
}

// result decodes the ok/err envelope: a mapping with exactly one of the
// two keys.
func (d *decoder) result(p *partial.Partial, sh *forma.Shape, n *yamlv3.Node) error {
	kvs, ok := pairs(n)
	if !ok || len(kvs) != 1 {
		return &forma.Error{Code: forma.CodeWrongShape, Path: p.Path().String(), Shape: sh, Expected: `a mapping with exactly one of "ok"/"err"`, Actual: nodeKind(n)}
	}
	var begin func() error
	switch kvs[0][0].Value {
	case "ok":
		begin = p.BeginOk
	case "err":
		begin = p.BeginErr
	default:
		return &forma.Error{Code: forma.CodeWrongShape, Path: p.Path().String(), Shape: sh, Expected: `a mapping with exactly one of "ok"/"err"`, Actual: "mapping"}
	}
	if err := begin(); err != nil {
		return err
	}
	if err := d.value(p, kvs[0][1]); err != nil {
		return err
	}
	return p.End()
}

// variantKey is the internal tag naming the active variant of an enum
// mapping.
const variantKey = "type"

func (d *decoder) enum(p *partial.Partial, sh *forma.Shape, n *yamlv3.Node) error {
	if n.Kind == yamlv3.ScalarNode && n.Tag != "!!null" {
		// a bare name selects a variant with an empty payload
		return p.SelectVariant(n.Value)
	}
	kvs, ok := pairs(n)
	if !ok {
		return &forma.Error{Code: forma.CodeWrongShape, Path: p.Path().String(), Shape: sh, Expected: "tagged mapping", Actual: nodeKind(n)}
	}
	byKey := make(map[string]*yamlv3.Node, len(kvs))
	for _, kv := range kvs {
		byKey[kv[0].Value] = kv[1]
	}
	tagNode, found := byKey[variantKey]
	if !found || resolve(tagNode).Kind != yamlv3.ScalarNode {
		return &forma.Error{Code: forma.CodeUnknownVariant, Path: p.Path().String(), Shape: sh, Message: "missing " + strconv.Quote(variantKey) + " tag"}
	}
	tag := resolve(tagNode).Value
	if err := p.SelectVariant(tag); err != nil {
		return err
	}
	variant, _ := sh.VariantByName(tag)
	for i := range variant.Shape().Fields {
		fd := &variant.Shape().Fields[i]
		fv, present := byKey[fd.Name]
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
		for key := range byKey {
			if key == variantKey {
				continue
			}
			if _, known := variant.Shape().FieldByName(key); !known {
				return &forma.Error{Code: forma.CodeUnknownField, Path: p.Path().String(), Shape: sh, Field: key, Variant: tag}
			}
		}
	}
	return nil
}

// dynamicFromNode converts a parsed node into a Dynamic value.
func dynamicFromNode(n *yamlv3.Node) (forma.Dynamic, error) {
	var d forma.Dynamic
	n = resolve(n)
	switch {
	case isNull(n):
		// null sentinel
	case n.Kind == yamlv3.ScalarNode:
		switch n.Tag {
		case "!!bool":
			b, err := strconv.ParseBool(n.Value)
			if err != nil {
				return d, &forma.Error{Code: forma.CodeParseError, Message: "bool " + n.Value, Cause: err}
			}
			d.SetBool(b)
		case "!!int":
			i, err := strconv.ParseInt(n.Value, 10, 64)
			if err != nil {
				return d, &forma.Error{Code: forma.CodeParseError, Message: "int " + n.Value, Cause: err}
			}
			d.SetInt(i)
		case "!!float":
			f, err := strconv.ParseFloat(n.Value, 64)
			if err != nil {
				return d, &forma.Error{Code: forma.CodeParseError, Message: "float " + n.Value, Cause: err}
			}
			d.SetFloat(f)
		default:
			d.SetString(n.Value)
		}
	case n.Kind == yamlv3.SequenceNode:
		d.BecomeArray()
		for _, en := range n.Content {
			ed, err := dynamicFromNode(en)
			if err != nil {
				return d, err
			}
			if err := d.Append(ed); err != nil {
				return d, err
			}
		}
	case n.Kind == yamlv3.MappingNode:
		kvs, _ := pairs(n)
		d.BecomeObject()
		for _, kv := range kvs {
			md, err := dynamicFromNode(kv[1])
			if err != nil {
				return d, err
			}
			if err := d.SetMember(kv[0].Value, md); err != nil {
				return d, err
			}
		}
	default:
		return d, &forma.Error{Code: forma.CodeWrongShape, Expected: "dynamic tree", Actual: nodeKind(n)}
	}
	return d, nil
}

// nodeKind names a node for error messages.
func nodeKind(n *yamlv3.Node) string {
	switch n.Kind {
	case yamlv3.ScalarNode:
		switch n.Tag {
		case "!!bool":
			return "bool"
		case "!!int", "!!float":
			return "number"
		case "!!null":
			return "null"
		default:
			return "string"
		}
	case yamlv3.SequenceNode:
		return "sequence"
	case yamlv3.MappingNode:
		return "mapping"
	case yamlv3.AliasNode:
		return "alias"
	default:
		return "document"
	}
}
