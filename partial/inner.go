package partial

import (
	"reflect"

	forma "github.com/unformed/forma"
	"github.com/unformed/forma/internal/bitset"
)

// BeginSome descends into the payload of the current option; the matching
// End makes the option present.
func (p *Partial) BeginSome() error {
	if err := p.active(); err != nil {
		return err
	}
	f := p.top()
	if err := f.shape.ExpectKind(forma.KindOption, "option"); err != nil {
		return p.fail(err)
	}
	switch f.tracker.(type) {
	case *tUninit:
	case *tInit:
		// replacing a complete option: drop it, then reset the slot so a
		// stale Present flag can never pair with dropped contents
		p.replaceInit(f)
		f.slot.Set(reflect.Zero(f.shape.Type))
	default:
		return p.fail(&forma.Error{Code: forma.CodeChildInProgress, Shape: f.shape})
	}
	f.tracker = &tOption{building: true}
	child := newFrame(f.slot.FieldByName("Value"), f.shape.Elem, ownField)
	p.push(child, "(some)")
	return nil
}

// BeginOk descends into the ok arm of the current result.
func (p *Partial) BeginOk() error {
	return p.beginResultArm(false)
}

// BeginErr descends into the err arm of the current result.
func (p *Partial) BeginErr() error {
	return p.beginResultArm(true)
}

func (p *Partial) beginResultArm(isErr bool) error {
	if err := p.active(); err != nil {
		return err
	}
	f := p.top()
	if err := f.shape.ExpectKind(forma.KindResult, "result"); err != nil {
		return p.fail(err)
	}
	switch f.tracker.(type) {
	case *tUninit:
	case *tInit:
		p.replaceInit(f)
		f.slot.Set(reflect.Zero(f.shape.Type))
	default:
		return p.fail(&forma.Error{Code: forma.CodeChildInProgress, Shape: f.shape})
	}
	f.tracker = &tResult{isErr: isErr, building: true}
	var slot reflect.Value
	var sh *forma.Shape
	if isErr {
		slot, sh = f.slot.FieldByName("Err"), f.shape.ErrShape
	} else {
		slot, sh = f.slot.FieldByName("Ok"), f.shape.OkShape
	}
	child := newFrame(slot, sh, ownField)
	if isErr {
		p.push(child, "(err)")
	} else {
		p.push(child, "(ok)")
	}
	return nil
}

// BeginPointee allocates the pointee of the current pointer and descends
// into it; End commits the pointer.
func (p *Partial) BeginPointee() error {
	if err := p.active(); err != nil {
		return err
	}
	f := p.top()
	if err := f.shape.ExpectKind(forma.KindPointer, "pointer"); err != nil {
		return p.fail(err)
	}
	switch f.tracker.(type) {
	case *tUninit:
	case *tInit:
		p.replaceInit(f)
	default:
		return p.fail(&forma.Error{Code: forma.CodeChildInProgress, Shape: f.shape})
	}
	f.tracker = &tPointer{building: true}
	pointee := reflect.New(f.shape.Elem.Type)
	f.slot.Set(pointee)
	child := newFrame(pointee.Elem(), f.shape.Elem, ownField)
	p.push(child, "(pointee)")
	return nil
}

// SelectVariant fixes the active variant of the current enum by name. The
// variant payload is built in a side buffer and committed into the interface
// slot when the frame ends.
func (p *Partial) SelectVariant(name string) error {
	if err := p.active(); err != nil {
		return err
	}
	f := p.top()
	if err := f.shape.ExpectKind(forma.KindEnum, "enum"); err != nil {
		return p.fail(err)
	}
	v, ok := f.shape.VariantByName(name)
	if !ok {
		return p.fail(&forma.Error{Code: forma.CodeUnknownVariant, Shape: f.shape, Variant: name})
	}
	return p.selectVariant(f, v)
}

// SelectVariantAt fixes the active variant by discriminant index.
func (p *Partial) SelectVariantAt(idx int) error {
	if err := p.active(); err != nil {
		return err
	}
	f := p.top()
	if err := f.shape.ExpectKind(forma.KindEnum, "enum"); err != nil {
		return p.fail(err)
	}
	if idx < 0 || idx >= len(f.shape.Variants) {
		return p.fail(&forma.Error{Code: forma.CodeOutOfBounds, Shape: f.shape})
	}
	return p.selectVariant(f, &f.shape.Variants[idx])
}

func (p *Partial) selectVariant(f *frame, v *forma.Variant) error {
	switch tk := f.tracker.(type) {
	case *tUninit:
	case *tInit:
		p.replaceInit(f)
	case *tEnum:
		if tk.child >= 0 {
			return p.fail(&forma.Error{Code: forma.CodeChildInProgress, Shape: f.shape})
		}
		// re-selecting: drop whatever the previous variant initialized
		f.deinit()
	default:
		return p.fail(&forma.Error{Code: forma.CodeChildInProgress, Shape: f.shape})
	}
	payloadShape := v.Shape()
	f.tracker = &tEnum{
		variant: v,
		payload: allocSlot(payloadShape),
		bits:    bitset.New(len(payloadShape.Fields)),
		child:   -1,
	}
	return nil
}
