package partial

import (
	"math"
	"reflect"

	forma "github.com/unformed/forma"
)

func dynAt(slot reflect.Value) *forma.Dynamic {
	return slot.Addr().Interface().(*forma.Dynamic)
}

// dynTracker installs (or fetches) the dynamic tracker of a frame. A frame
// that was previously set whole keeps its committed content; the sub-state
// is re-derived from the value itself.
func dynTracker(f *frame) *tDynamic {
	if tk, ok := f.tracker.(*tDynamic); ok {
		return tk
	}
	tk := &tDynamic{}
	switch dynAt(f.slot).Kind() {
	case forma.DynArray:
		tk.phase = dynArray
	case forma.DynObject:
		tk.phase = dynObject
	case forma.DynNull:
		tk.phase = dynEmpty
	default:
		tk.phase = dynScalar
	}
	f.tracker = tk
	return tk
}

// descendDynamicMember begins one member of a dynamic object. Re-entering an
// existing member rewrites it in place: the child frame aliases the stored
// entry and abandonment cleanup must leave it alone, while a replacement-set
// still resets it through the null sentinel.
func (p *Partial) descendDynamicMember(f *frame, name string) error {
	tk := dynTracker(f)
	if tk.building {
		return p.fail(&forma.Error{Code: forma.CodeChildInProgress, Shape: f.shape})
	}
	d := dynAt(f.slot)
	d.BecomeObject()
	tk.phase = dynObject

	if existing := d.Member(name); existing != nil {
		tk.building = true
		tk.memberKey = name
		tk.inPlace = true
		child := newFrame(reflect.ValueOf(existing).Elem(), f.shape, ownBorrowedInPlace)
		child.tracker = &tInit{}
		p.push(child, name)
		return nil
	}

	tk.building = true
	tk.memberKey = name
	tk.inPlace = false
	child := newFrame(allocSlot(f.shape), f.shape, ownTempBuffer)
	p.push(child, name)
	return nil
}

// beginDynamicElem begins the next element of a dynamic array.
func (p *Partial) beginDynamicElem(f *frame) error {
	tk := dynTracker(f)
	if tk.building {
		return p.fail(&forma.Error{Code: forma.CodeChildInProgress, Shape: f.shape})
	}
	d := dynAt(f.slot)
	d.BecomeArray()
	tk.phase = dynArray
	tk.building = true
	tk.inPlace = false
	tk.memberKey = ""
	child := newFrame(allocSlot(f.shape), f.shape, ownListSlot)
	p.push(child, "-")
	return nil
}

// commitDynamicChild runs when a dynamic child frame ends.
func (p *Partial) commitDynamicChild(parent *frame, child *frame) error {
	tk := parent.tracker.(*tDynamic)
	defer func() {
		tk.building = false
		tk.inPlace = false
		tk.memberKey = ""
	}()
	if tk.inPlace {
		// the child wrote through the alias; nothing to move
		return nil
	}
	d := dynAt(parent.slot)
	var err error
	switch tk.phase {
	case dynObject:
		err = d.SetMember(tk.memberKey, *dynAt(child.slot))
	case dynArray:
		err = d.Append(*dynAt(child.slot))
	default:
		err = &forma.Error{Code: forma.CodeWasNotA, Shape: parent.shape, Expected: "dynamic container", Actual: d.Kind().String()}
	}
	child.tracker = &tUninit{}
	child.release()
	return err
}

// setDynamic writes a scalar (or a whole Dynamic) into a dynamic frame. The
// slot always passes through the null sentinel before taking new content.
func (p *Partial) setDynamic(f *frame, v any) error {
	d := dynAt(f.slot)
	switch x := v.(type) {
	case nil:
		d.Reset()
	case bool:
		d.SetBool(x)
	case int:
		d.SetInt(int64(x))
	case int8:
		d.SetInt(int64(x))
	case int16:
		d.SetInt(int64(x))
	case int32:
		d.SetInt(int64(x))
	case int64:
		d.SetInt(x)
	case uint8:
		d.SetInt(int64(x))
	case uint16:
		d.SetInt(int64(x))
	case uint32:
		d.SetInt(int64(x))
	case uint:
		if uint64(x) > math.MaxInt64 {
			return p.fail(&forma.Error{Code: forma.CodeWrongShape, Shape: f.shape, Expected: "dynamic int", Actual: "uint overflowing int64"})
		}
		d.SetInt(int64(x))
	case uint64:
		if x > math.MaxInt64 {
			return p.fail(&forma.Error{Code: forma.CodeWrongShape, Shape: f.shape, Expected: "dynamic int", Actual: "uint64 overflowing int64"})
		}
		d.SetInt(int64(x))
	case uintptr:
		if uint64(x) > math.MaxInt64 {
			return p.fail(&forma.Error{Code: forma.CodeWrongShape, Shape: f.shape, Expected: "dynamic int", Actual: "uintptr overflowing int64"})
		}
		d.SetInt(int64(x))
	case float32:
		d.SetFloat(float64(x))
	case float64:
		d.SetFloat(x)
	case string:
		d.SetString(x)
	case forma.Dynamic:
		d.Reset()
		*d = x
	case *forma.Dynamic:
		d.Reset()
		*d = *x
	default:
		return p.fail(&forma.Error{Code: forma.CodeWrongShape, Shape: f.shape, Expected: "dynamic scalar", Actual: reflect.TypeOf(v).String()})
	}
	f.tracker = &tInit{}
	return nil
}
