package forma

import "reflect"

// Discard runs drop operations, exactly once each, over a fully built value
// and everything it contains. In a collected runtime the memory itself needs
// no freeing; Discard exists so types that track resources (or count drops in
// tests) observe the same single-drop guarantee the builder enforces for
// values it abandons.
func Discard[T any](v *T) {
	DiscardValue(ShapeOf[T](), reflect.ValueOf(v).Elem())
}

// DiscardValue is the type-erased form of Discard. v must be addressable and
// fully initialized for its shape.
func DiscardValue(sh *Shape, v reflect.Value) {
	sh.CallDrop(v.Addr().Interface())
	switch sh.Kind {
	case KindStruct:
		for i := range sh.Fields {
			f := &sh.Fields[i]
			DiscardValue(f.shape, v.Field(f.Index))
		}
	case KindArray:
		for i := 0; i < sh.ArrayLen; i++ {
			DiscardValue(sh.Elem, v.Index(i))
		}
	case KindList:
		for i := 0; i < v.Len(); i++ {
			DiscardValue(sh.Elem, v.Index(i))
		}
	case KindMap:
		// map entries are not addressable; drop ops run against copies,
		// which is equivalent for resource accounting
		iter := v.MapRange()
		for iter.Next() {
			k := reflect.New(sh.KeyShape.Type).Elem()
			k.Set(iter.Key())
			DiscardValue(sh.KeyShape, k)
			mv := reflect.New(sh.ValShape.Type).Elem()
			mv.Set(iter.Value())
			DiscardValue(sh.ValShape, mv)
		}
	case KindSet:
		iter := v.MapRange()
		for iter.Next() {
			k := reflect.New(sh.Elem.Type).Elem()
			k.Set(iter.Key())
			DiscardValue(sh.Elem, k)
		}
	case KindOption:
		if v.FieldByName("Present").Bool() {
			DiscardValue(sh.Elem, v.FieldByName("Value"))
		}
	case KindResult:
		if v.FieldByName("IsErr").Bool() {
			DiscardValue(sh.ErrShape, v.FieldByName("Err"))
		} else {
			DiscardValue(sh.OkShape, v.FieldByName("Ok"))
		}
	case KindPointer:
		if !v.IsNil() {
			DiscardValue(sh.Elem, v.Elem())
		}
	case KindEnum:
		if v.IsNil() {
			return
		}
		payload := v.Elem()
		pt := payload.Type()
		if pt.Kind() == reflect.Pointer {
			if payload.IsNil() {
				return
			}
			for i := range sh.Variants {
				if sh.Variants[i].Type == pt.Elem() {
					DiscardValue(sh.Variants[i].shape, payload.Elem())
					return
				}
			}
			return
		}
		for i := range sh.Variants {
			if sh.Variants[i].Type == pt {
				// interface payloads are not addressable; account against a copy
				tmp := reflect.New(pt).Elem()
				tmp.Set(payload)
				DiscardValue(sh.Variants[i].shape, tmp)
				return
			}
		}
	}
}
