package partial

import (
	"reflect"
	"strconv"

	"go.uber.org/zap"

	forma "github.com/unformed/forma"
)

// BeginField descends into the named member of the current struct, enum
// variant payload, or dynamic object. The matching End commits the member.
func (p *Partial) BeginField(name string) error {
	if err := p.active(); err != nil {
		return err
	}
	f := p.top()
	switch f.shape.Kind {
	case forma.KindStruct:
		fd, ok := f.shape.FieldByName(name)
		if !ok {
			return p.fail(&forma.Error{Code: forma.CodeUnknownField, Shape: f.shape, Field: name})
		}
		return p.descendStructField(f, fd)
	case forma.KindEnum:
		tk, ok := f.tracker.(*tEnum)
		if !ok {
			return p.fail(&forma.Error{Code: forma.CodeWasNotA, Shape: f.shape, Expected: "enum with a selected variant", Actual: f.shape.String()})
		}
		fd, ok := tk.variant.Shape().FieldByName(name)
		if !ok {
			return p.fail(&forma.Error{Code: forma.CodeUnknownField, Shape: f.shape, Field: name, Variant: tk.variant.Name})
		}
		return p.descendEnumField(f, tk, fd)
	case forma.KindDynamic:
		return p.descendDynamicMember(f, name)
	default:
		return p.fail(&forma.Error{Code: forma.CodeWasNotA, Shape: f.shape, Expected: "struct, enum or dynamic object", Actual: f.shape.Kind.String()})
	}
}

// BeginNthField descends by declaration position: struct fields, enum variant
// payload fields, tuple positions, and fixed-array indices all use it.
func (p *Partial) BeginNthField(idx int) error {
	if err := p.active(); err != nil {
		return err
	}
	f := p.top()
	switch f.shape.Kind {
	case forma.KindStruct:
		if idx < 0 || idx >= len(f.shape.Fields) {
			return p.fail(&forma.Error{Code: forma.CodeOutOfBounds, Shape: f.shape, Message: "field index " + strconv.Itoa(idx)})
		}
		return p.descendStructField(f, &f.shape.Fields[idx])
	case forma.KindEnum:
		tk, ok := f.tracker.(*tEnum)
		if !ok {
			return p.fail(&forma.Error{Code: forma.CodeWasNotA, Shape: f.shape, Expected: "enum with a selected variant", Actual: f.shape.String()})
		}
		payload := tk.variant.Shape()
		if idx < 0 || idx >= len(payload.Fields) {
			return p.fail(&forma.Error{Code: forma.CodeOutOfBounds, Shape: f.shape, Message: "variant field index " + strconv.Itoa(idx)})
		}
		return p.descendEnumField(f, tk, &payload.Fields[idx])
	case forma.KindArray:
		return p.descendArrayIndex(f, idx)
	default:
		return p.fail(&forma.Error{Code: forma.CodeWasNotA, Shape: f.shape, Expected: "struct, enum or array", Actual: f.shape.Kind.String()})
	}
}

// descendStructField pushes a frame over one struct member. Pushing clears
// the parent's tracker bit for the member: drop responsibility transfers to
// the child and only returns when the child ends successfully.
func (p *Partial) descendStructField(f *frame, fd *forma.Field) error {
	tk, ok := f.tracker.(*tStruct)
	if !ok {
		switch f.tracker.(type) {
		case *tUninit:
			tk = newStructTracker(f.shape)
			f.tracker = tk
		case *tInit:
			// whole value was filled in one call; expand to per-field
			// tracking so a single member can be replaced
			tk = newStructTracker(f.shape)
			for i := range f.shape.Fields {
				tk.bits.Set(i)
			}
			f.tracker = tk
		default:
			return p.fail(&forma.Error{Code: forma.CodeChildInProgress, Shape: f.shape})
		}
	}
	if tk.child >= 0 {
		return p.fail(&forma.Error{Code: forma.CodeChildInProgress, Shape: f.shape, Field: f.shape.Fields[tk.child].Name})
	}

	bit := fieldBit(f.shape, fd)
	if p.deferred != nil {
		if stored, ok := p.takeStored(fd.Name); ok {
			tk.bits.Clear(bit)
			tk.child = bit
			p.push(stored, fd.Name)
			return nil
		}
	}

	child := newFrame(f.slot.Field(fd.Index), fd.Shape(), ownField)
	if tk.bits.Get(bit) {
		// re-entering an initialized member: the child holds the old value
		// and must drop it before anything new is written
		child.tracker = &tInit{}
	}
	tk.bits.Clear(bit)
	tk.child = bit
	p.push(child, fd.Name)
	return nil
}

// fieldBit maps a field to its tracker bit: its position in the shape's
// declared field list, which may differ from its reflect index when
// unexported fields are skipped.
func fieldBit(sh *forma.Shape, fd *forma.Field) int {
	for i := range sh.Fields {
		if sh.Fields[i].Index == fd.Index {
			return i
		}
	}
	panic("partial: field does not belong to shape " + sh.String())
}

func (p *Partial) descendEnumField(f *frame, tk *tEnum, fd *forma.Field) error {
	if tk.child >= 0 {
		return p.fail(&forma.Error{Code: forma.CodeChildInProgress, Shape: f.shape})
	}
	bit := fieldBit(tk.variant.Shape(), fd)
	if p.deferred != nil {
		if stored, ok := p.takeStored(fd.Name); ok {
			tk.bits.Clear(bit)
			tk.child = bit
			p.push(stored, fd.Name)
			return nil
		}
	}

	child := newFrame(tk.payload.Field(fd.Index), fd.Shape(), ownField)
	if tk.bits.Get(bit) {
		child.tracker = &tInit{}
	}
	tk.bits.Clear(bit)
	tk.child = bit
	p.push(child, fd.Name)
	return nil
}

func (p *Partial) descendArrayIndex(f *frame, idx int) error {
	if idx < 0 || idx >= f.shape.ArrayLen {
		return p.fail(&forma.Error{Code: forma.CodeOutOfBounds, Shape: f.shape, Message: "array index " + strconv.Itoa(idx)})
	}
	tk, ok := f.tracker.(*tArray)
	if !ok {
		switch f.tracker.(type) {
		case *tUninit:
			tk = newArrayTracker(f.shape)
			f.tracker = tk
		case *tInit:
			tk = newArrayTracker(f.shape)
			for i := 0; i < f.shape.ArrayLen; i++ {
				tk.bits.Set(i)
			}
			f.tracker = tk
		default:
			return p.fail(&forma.Error{Code: forma.CodeChildInProgress, Shape: f.shape})
		}
	}
	if tk.child >= 0 {
		return p.fail(&forma.Error{Code: forma.CodeChildInProgress, Shape: f.shape})
	}
	seg := strconv.Itoa(idx)
	if p.deferred != nil {
		if stored, ok := p.takeStored(seg); ok {
			tk.bits.Clear(idx)
			tk.child = idx
			p.push(stored, seg)
			return nil
		}
	}

	child := newFrame(f.slot.Index(idx), f.shape.Elem, ownField)
	if tk.bits.Get(idx) {
		child.tracker = &tInit{}
	}
	tk.bits.Clear(idx)
	tk.child = idx
	p.push(child, seg)
	return nil
}

// Set writes a concrete value into the current frame: leaf scalars or any
// whole movable value whose type is assignable or losslessly convertible to
// the frame's type. Setting an already-initialized frame is a replacement:
// the old value is dropped first.
func (p *Partial) Set(v any) error {
	if err := p.active(); err != nil {
		return err
	}
	f := p.top()
	if f.shape.Kind == forma.KindDynamic {
		return p.setDynamic(f, v)
	}

	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return p.fail(&forma.Error{Code: forma.CodeWrongShape, Shape: f.shape, Expected: f.shape.String(), Actual: "untyped nil"})
	}
	switch {
	case rv.Type() == f.shape.Type:
	case rv.Type().AssignableTo(f.shape.Type):
	case f.shape.Kind == forma.KindScalar && rv.Type().Kind() == f.shape.Type.Kind() && rv.Type().ConvertibleTo(f.shape.Type):
		// same underlying kind, e.g. a named scalar type; cannot lose data
		rv = rv.Convert(f.shape.Type)
	case f.shape.Kind == forma.KindScalar:
		// cross-kind scalar conversion goes through try_from so lossy
		// narrowing (1.5 into int64, 65 into string) is rejected instead
		// of silently truncated
		tmp := reflect.New(f.shape.Type)
		ok, err := f.shape.CallTryFrom(tmp.Interface(), v)
		if !ok {
			return p.fail(&forma.Error{Code: forma.CodeWrongShape, Shape: f.shape, Expected: f.shape.String(), Actual: rv.Type().String()})
		}
		if err != nil {
			return p.fail(&forma.Error{Code: forma.CodeWrongShape, Shape: f.shape, Expected: f.shape.String(), Actual: rv.Type().String(), Cause: err})
		}
		rv = tmp.Elem()
	default:
		return p.fail(&forma.Error{Code: forma.CodeWrongShape, Shape: f.shape, Expected: f.shape.String(), Actual: rv.Type().String()})
	}

	p.replaceInit(f)
	f.slot.Set(rv)
	f.tracker = &tInit{}
	return nil
}

// replaceInit drops whatever the frame already initialized, in preparation
// for overwriting it. Unlike abandonment cleanup this always runs, including
// for borrowed-in-place frames.
func (p *Partial) replaceInit(f *frame) {
	if _, uninit := f.tracker.(*tUninit); uninit {
		return
	}
	p.log.Debug("partial: replacing initialized value", zap.String("shape", f.shape.String()))
	f.deinit()
}

// SetDefault initializes the current frame with its type's default: the
// Default operation when the type has one, otherwise the natural empty value
// of absence-shaped types (none, empty collection, dynamic null).
func (p *Partial) SetDefault() error {
	if err := p.active(); err != nil {
		return err
	}
	f := p.top()
	if f.shape.Ops().Default != nil {
		p.replaceInit(f)
		if _, err := f.shape.CallDefault(f.slot.Addr().Interface()); err != nil {
			return p.fail(err)
		}
		f.tracker = &tInit{}
		return nil
	}
	switch f.shape.Kind {
	case forma.KindOption, forma.KindDynamic, forma.KindPointer:
		p.replaceInit(f)
		f.slot.Set(reflect.Zero(f.shape.Type))
		f.tracker = &tInit{}
		return nil
	case forma.KindList:
		p.replaceInit(f)
		f.slot.Set(reflect.MakeSlice(f.shape.Type, 0, 0))
		f.tracker = &tInit{}
		return nil
	case forma.KindMap, forma.KindSet:
		p.replaceInit(f)
		f.slot.Set(reflect.MakeMap(f.shape.Type))
		f.tracker = &tInit{}
		return nil
	case forma.KindStruct:
		if f.shape.Defaultable {
			p.replaceInit(f)
			if err := fillStructDefaults(f.shape, f.slot, nil); err != nil {
				return p.fail(err)
			}
			f.tracker = &tInit{}
			return nil
		}
	}
	return p.fail(&forma.Error{Code: forma.CodeOperationFailed, Shape: f.shape, Op: "default"})
}

// ParseText parses a textual scalar into the current frame through the
// type's ParseText operation.
func (p *Partial) ParseText(text string) error {
	if err := p.active(); err != nil {
		return err
	}
	f := p.top()
	tmp := reflect.New(f.shape.Type)
	ok, err := f.shape.CallParseText(tmp.Interface(), text)
	if !ok {
		return p.fail(&forma.Error{Code: forma.CodeOperationFailed, Shape: f.shape, Op: "parse_text"})
	}
	if err != nil {
		return p.fail(err)
	}
	p.replaceInit(f)
	f.slot.Set(tmp.Elem())
	f.tracker = &tInit{}
	return nil
}

// SetField is sugar for BeginField + Set + End.
func (p *Partial) SetField(name string, v any) error {
	if err := p.BeginField(name); err != nil {
		return err
	}
	if err := p.Set(v); err != nil {
		return err
	}
	return p.End()
}
