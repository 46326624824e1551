package partial

import (
	"reflect"

	forma "github.com/unformed/forma"
)

// End completes the member under construction: the top frame is validated
// (filling defaults where they apply), popped, and committed into its parent,
// which takes back drop responsibility for it.
func (p *Partial) End() error {
	if err := p.active(); err != nil {
		return err
	}
	if len(p.frames) == 1 {
		return p.fail(&forma.Error{Code: forma.CodeNoActiveFrame, Message: "end called on the root; call Build"})
	}
	f := p.top()

	if p.deferred != nil && len(p.frames) > p.deferred.startDepth {
		// default filling waits for FinishDeferred: an incomplete frame may
		// be re-entered and completed later
		if err := f.requireFullInit(); err != nil && p.storableInDeferred(f) {
			p.storeDeferred()
			return nil
		}
	}

	if err := p.finishFrame(f); err != nil {
		return p.fail(err)
	}

	child := p.pop()
	parent := p.top()
	return p.commitChild(parent, child)
}

// finishFrame runs default filling, full-initialization validation, field
// validators, and (for enums) the payload commit.
func (p *Partial) finishFrame(f *frame) error {
	if err := p.fillFrameDefaults(f); err != nil {
		return err
	}
	if err := f.requireFullInit(); err != nil {
		return err
	}
	if err := runValidators(f); err != nil {
		return err
	}
	if tk, ok := f.tracker.(*tEnum); ok {
		commitEnumPayload(f, tk)
	}
	return nil
}

// commitEnumPayload moves a fully built payload into the interface slot.
func commitEnumPayload(f *frame, tk *tEnum) {
	if tk.variant.ByPointer() {
		// the payload allocation itself becomes the value; it is not
		// released because the built value now owns it
		f.slot.Set(tk.payload.Addr())
	} else {
		f.slot.Set(tk.payload)
		releaseSlot()
	}
	f.tracker = &tInit{}
}

// commitChild re-attaches a completed child to its parent: tracker bits are
// re-set for field children, lengths advance for list slots, and the map
// protocol moves one phase forward.
func (p *Partial) commitChild(parent *frame, child *frame) error {
	switch tk := parent.tracker.(type) {
	case *tStruct:
		tk.bits.Set(tk.child)
		tk.child = -1
	case *tArray:
		tk.bits.Set(tk.child)
		tk.child = -1
	case *tEnum:
		tk.bits.Set(tk.child)
		tk.child = -1
	case *tList:
		p.commitListItem(parent, child)
	case *tSet:
		p.commitSetItem(parent, child)
	case *tMap:
		switch tk.phase {
		case mapPushingKey:
			commitMapKey(parent)
		case mapPushingValue:
			tk.valInit = true
			commitMapValue(parent)
		}
	case *tOption:
		parent.slot.FieldByName("Present").SetBool(true)
		parent.tracker = &tInit{}
	case *tResult:
		parent.slot.FieldByName("IsErr").SetBool(tk.isErr)
		parent.tracker = &tInit{}
	case *tPointer:
		parent.tracker = &tInit{}
	case *tDynamic:
		if err := p.commitDynamicChild(parent, child); err != nil {
			return p.fail(err)
		}
	default:
		// completing a child under a whole-initialized or untracked parent
		// is a navigation bug
		return p.fail(&forma.Error{Code: forma.CodeWasNotA, Shape: parent.shape, Expected: "composite under construction", Actual: parent.tracker.trackerName()})
	}
	return nil
}

// Build validates the root (filling defaults as needed) and hands the
// finished value to the caller, consuming the builder without running its
// cleanup path.
func (p *Partial) Build() (any, error) {
	if p.state != stateActive {
		return nil, &forma.Error{Code: forma.CodeBuilderConsumed}
	}
	if p.deferred != nil {
		return nil, &forma.Error{Code: forma.CodeNotInDeferred, Message: "finish deferred mode before building"}
	}
	if len(p.frames) != 1 {
		p.state = stateFailed
		err := &forma.Error{Code: forma.CodeUninitializedValue, Shape: p.top().shape, Message: "unfinished nested frames", Path: p.Path().String()}
		p.Abandon()
		return nil, err
	}
	root := p.top()
	if err := p.finishFrame(root); err != nil {
		p.state = stateFailed
		if fe, ok := forma.AsError(err); ok && fe.Path == "" {
			fe.Path = "/"
		}
		p.Abandon()
		return nil, err
	}
	p.state = stateBuilt
	p.frames = nil
	p.log.Debug("partial: built", zapShape(root.shape))
	return root.slot.Interface(), nil
}

// fillFrameDefaults applies §4.4-style default filling to struct-like
// frames. The all-set fast path costs one mask compare.
func (p *Partial) fillFrameDefaults(f *frame) error {
	switch tk := f.tracker.(type) {
	case *tUninit:
		if f.shape.Kind == forma.KindStruct {
			st := newStructTracker(f.shape)
			f.tracker = st
			return fillStructDefaults(f.shape, f.slot, st)
		}
	case *tStruct:
		if tk.bits.AllSet() {
			return nil
		}
		return fillStructDefaults(f.shape, f.slot, tk)
	case *tEnum:
		if tk.bits.AllSet() {
			return nil
		}
		return fillVariantDefaults(f.shape, tk)
	}
	return nil
}

// fillStructDefaults fills every unset field of a struct value, in declared
// order: field-specific default, then container-level defaultability, then
// the natural empty of absence-shaped types. A field with none of these is
// required, and its absence is terminal. tk may be nil when the whole value
// is being defaulted outside frame tracking.
func fillStructDefaults(sh *forma.Shape, slot reflect.Value, tk *tStruct) error {
	for i := range sh.Fields {
		if tk != nil && tk.bits.Get(i) {
			continue
		}
		fd := &sh.Fields[i]
		if err := fillFieldDefault(sh, fd, slot.Field(fd.Index), ""); err != nil {
			return err
		}
		if tk != nil {
			tk.bits.Set(i)
		}
	}
	return nil
}

func fillVariantDefaults(enumShape *forma.Shape, tk *tEnum) error {
	payload := tk.variant.Shape()
	for i := range payload.Fields {
		if tk.bits.Get(i) {
			continue
		}
		fd := &payload.Fields[i]
		if err := fillFieldDefault(payload, fd, tk.payload.Field(fd.Index), tk.variant.Name); err != nil {
			if fe, ok := forma.AsError(err); ok && fe.Code == forma.CodeUninitializedField {
				fe.Code = forma.CodeUninitializedEnumField
				fe.Shape = enumShape
				fe.Variant = tk.variant.Name
			}
			return err
		}
		tk.bits.Set(i)
	}
	return nil
}

func fillFieldDefault(owner *forma.Shape, fd *forma.Field, slot reflect.Value, variant string) error {
	// (a) field-specific default
	if dv, declared, err := fd.FieldDefault(); declared {
		if err != nil {
			return err
		}
		rv := reflect.ValueOf(dv)
		if !rv.IsValid() || !rv.Type().AssignableTo(fd.Shape().Type) {
			return &forma.Error{Code: forma.CodeWrongShape, Shape: fd.Shape(), Field: fd.Name, Expected: fd.Shape().String(), Message: "field default has the wrong type"}
		}
		slot.Set(rv)
		return nil
	}
	// (b) defaultable container + default-constructible field type
	if owner.Defaultable {
		if ok, err := fd.Shape().CallDefault(slot.Addr().Interface()); ok {
			return err
		}
	}
	// (c) absence-shaped: the zero value already is the natural empty
	if fd.Shape().IsAbsenceShaped() {
		return nil
	}
	// (d) required
	return &forma.Error{Code: forma.CodeUninitializedField, Shape: owner, Field: fd.Name, Variant: variant}
}

// runValidators runs declared field validators over a finished frame,
// surfacing the first failure tagged with field and shape.
func runValidators(f *frame) error {
	var sh *forma.Shape
	var slot reflect.Value
	switch tk := f.tracker.(type) {
	case *tEnum:
		sh, slot = tk.variant.Shape(), tk.payload
	default:
		if f.shape.Kind != forma.KindStruct {
			return nil
		}
		sh, slot = f.shape, f.slot
	}
	for i := range sh.Fields {
		fd := &sh.Fields[i]
		for _, v := range fd.Validators() {
			if err := v(slot.Field(fd.Index).Interface()); err != nil {
				if fe, ok := forma.AsError(err); ok {
					if fe.Field == "" {
						fe.Field = fd.Name
					}
					if fe.Shape == nil {
						fe.Shape = sh
					}
					return fe
				}
				return &forma.Error{Code: forma.CodeValidation, Shape: sh, Field: fd.Name, Message: err.Error(), Cause: err}
			}
		}
	}
	return nil
}
