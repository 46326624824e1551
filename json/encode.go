package json

import (
	"fmt"
	"reflect"
	"sort"
	"time"

	gojson "github.com/goccy/go-json"

	forma "github.com/unformed/forma"
)

// Marshal encodes v by walking its shape, mirroring what Unmarshal accepts:
// options encode as presence (absent members are omitted from objects),
// results as the one-armed envelope, enums as internally tagged objects.
func Marshal[T any](v T) ([]byte, error) {
	tree, err := encodeValue(forma.ShapeOf[T](), reflect.ValueOf(&v).Elem())
	if err != nil {
		return nil, err
	}
	return gojson.Marshal(tree)
}

var timeType = reflect.TypeOf(time.Time{})

func encodeValue(sh *forma.Shape, rv reflect.Value) (any, error) {
	switch sh.Kind {
	case forma.KindScalar:
		if sh.Type == timeType {
			return rv.Interface().(time.Time).Format(time.RFC3339Nano), nil
		}
		return rv.Interface(), nil
	case forma.KindStruct:
		return encodeStruct(sh, rv)
	case forma.KindList, forma.KindArray:
		out := make([]any, rv.Len())
		for i := range out {
			ev, err := encodeValue(sh.Elem, rv.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	case forma.KindSet:
		out := make([]any, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := reflect.New(sh.Elem.Type).Elem()
			k.Set(iter.Key())
			ev, err := encodeValue(sh.Elem, k)
			if err != nil {
				return nil, err
			}
			out = append(out, ev)
		}
		// map iteration order is random; emit something stable
		sort.Slice(out, func(i, j int) bool {
			return fmt.Sprint(out[i]) < fmt.Sprint(out[j])
		})
		return out, nil
	case forma.KindMap:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			mv := reflect.New(sh.ValShape.Type).Elem()
			mv.Set(iter.Value())
			ev, err := encodeValue(sh.ValShape, mv)
			if err != nil {
				return nil, err
			}
			out[mapKeyString(sh.KeyShape, iter.Key())] = ev
		}
		return out, nil
	case forma.KindOption:
		if !rv.FieldByName("Present").Bool() {
			return nil, nil
		}
		return encodeValue(sh.Elem, rv.FieldByName("Value"))
	case forma.KindResult:
		if rv.FieldByName("IsErr").Bool() {
			ev, err := encodeValue(sh.ErrShape, rv.FieldByName("Err"))
			if err != nil {
				return nil, err
			}
			return map[string]any{"err": ev}, nil
		}
		ev, err := encodeValue(sh.OkShape, rv.FieldByName("Ok"))
		if err != nil {
			return nil, err
		}
		return map[string]any{"ok": ev}, nil
	case forma.KindPointer:
		if rv.IsNil() {
			return nil, nil
		}
		return encodeValue(sh.Elem, rv.Elem())
	case forma.KindEnum:
		return encodeEnum(sh, rv)
	case forma.KindDynamic:
		if !rv.CanAddr() {
			tmp := reflect.New(sh.Type).Elem()
			tmp.Set(rv)
			rv = tmp
		}
		d := rv.Addr().Interface().(*forma.Dynamic)
		return treeFromDynamic(d), nil
	default:
		return nil, &forma.Error{Code: forma.CodeWasNotA, Shape: sh, Expected: "encodable shape", Actual: sh.Kind.String()}
	}
}

func encodeStruct(sh *forma.Shape, rv reflect.Value) (any, error) {
	out := make(map[string]any, len(sh.Fields))
	for i := range sh.Fields {
		fd := &sh.Fields[i]
		fv := rv.Field(fd.Index)
		if fd.Shape().Kind == forma.KindOption && !fv.FieldByName("Present").Bool() {
			continue
		}
		ev, err := encodeValue(fd.Shape(), fv)
		if err != nil {
			return nil, err
		}
		out[fd.Name] = ev
	}
	return out, nil
}

func encodeEnum(sh *forma.Shape, rv reflect.Value) (any, error) {
	if rv.IsNil() {
		return nil, &forma.Error{Code: forma.CodeUninitializedValue, Shape: sh}
	}
	payload := rv.Elem()
	pt := payload.Type()
	if pt.Kind() == reflect.Pointer {
		payload = payload.Elem()
		pt = pt.Elem()
	}
	for i := range sh.Variants {
		va := &sh.Variants[i]
		if va.Type != pt {
			continue
		}
		// interface payloads are not addressable; encode from a copy
		tmp := reflect.New(pt).Elem()
		tmp.Set(payload)
		inner, err := encodeStruct(va.Shape(), tmp)
		if err != nil {
			return nil, err
		}
		out := inner.(map[string]any)
		out[variantKey] = va.Name
		return out, nil
	}
	return nil, &forma.Error{Code: forma.CodeUnknownVariant, Shape: sh, Actual: pt.String()}
}

func mapKeyString(keySh *forma.Shape, key reflect.Value) string {
	if keySh.Type.Kind() == reflect.String {
		return key.String()
	}
	k := reflect.New(keySh.Type).Elem()
	k.Set(key)
	if s, ok := keySh.CallDisplay(k.Addr().Interface()); ok {
		return s
	}
	return fmt.Sprint(k.Interface())
}

func treeFromDynamic(d *forma.Dynamic) any {
	switch d.Kind() {
	case forma.DynNull:
		return nil
	case forma.DynBool:
		return d.Bool()
	case forma.DynInt:
		return d.Int()
	case forma.DynFloat:
		return d.Float()
	case forma.DynString:
		return d.Str()
	case forma.DynArray:
		out := make([]any, d.Len())
		for i := range out {
			out[i] = treeFromDynamic(d.Index(i))
		}
		return out
	case forma.DynObject:
		out := make(map[string]any, d.Len())
		for _, k := range d.Keys() {
			out[k] = treeFromDynamic(d.Member(k))
		}
		return out
	default:
		return nil
	}
}
