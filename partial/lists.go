package partial

import (
	"reflect"

	forma "github.com/unformed/forma"
)

// BeginListItem reserves the next element of the current list (or dynamic
// array). End commits it, advancing the tracked length; abandoning instead
// leaves the slot uncounted.
func (p *Partial) BeginListItem() error {
	if err := p.active(); err != nil {
		return err
	}
	f := p.top()
	if f.shape.Kind == forma.KindDynamic {
		return p.beginDynamicElem(f)
	}
	if err := f.shape.ExpectKind(forma.KindList, "list"); err != nil {
		return p.fail(err)
	}
	tk, ok := f.tracker.(*tList)
	if !ok {
		if _, uninit := f.tracker.(*tUninit); !uninit {
			if _, wasInit := f.tracker.(*tInit); !wasInit {
				return p.fail(&forma.Error{Code: forma.CodeChildInProgress, Shape: f.shape})
			}
		}
		tk = &tList{}
		f.tracker = tk
	}
	if tk.building {
		return p.fail(&forma.Error{Code: forma.CodeChildInProgress, Shape: f.shape, Message: "previous element not ended"})
	}
	if !tk.init {
		if f.slot.IsNil() {
			f.slot.Set(reflect.MakeSlice(f.shape.Type, 0, 0))
		}
		tk.init = true
	}
	tk.building = true
	p.push(allocFrame(f.shape.Elem, ownListSlot), "-")
	return nil
}

// BeginSetItem reserves the next member of the current set.
func (p *Partial) BeginSetItem() error {
	if err := p.active(); err != nil {
		return err
	}
	f := p.top()
	if err := f.shape.ExpectKind(forma.KindSet, "set"); err != nil {
		return p.fail(err)
	}
	tk, ok := f.tracker.(*tSet)
	if !ok {
		if _, uninit := f.tracker.(*tUninit); !uninit {
			if _, wasInit := f.tracker.(*tInit); !wasInit {
				return p.fail(&forma.Error{Code: forma.CodeChildInProgress, Shape: f.shape})
			}
		}
		tk = &tSet{}
		f.tracker = tk
	}
	if tk.building {
		return p.fail(&forma.Error{Code: forma.CodeChildInProgress, Shape: f.shape, Message: "previous item not ended"})
	}
	if !tk.init {
		if f.slot.IsNil() {
			f.slot.Set(reflect.MakeMap(f.shape.Type))
		}
		tk.init = true
	}
	tk.building = true
	p.push(allocFrame(f.shape.Elem, ownListSlot), "-")
	return nil
}

// commitListItem runs when an element frame ends: the length advances by
// appending the now-complete element, and the side slot is released without
// dropping (ownership of the contents moved into the slice).
func (p *Partial) commitListItem(parent *frame, child *frame) {
	tk := parent.tracker.(*tList)
	parent.slot.Set(reflect.Append(parent.slot, child.slot))
	tk.building = false
	child.tracker = &tUninit{}
	child.release()
}

// commitSetItem inserts the completed member. Inserting a member equal to an
// existing one drops the incoming duplicate; the set keeps its entry.
func (p *Partial) commitSetItem(parent *frame, child *frame) {
	tk := parent.tracker.(*tSet)
	if parent.slot.MapIndex(child.slot).IsValid() {
		forma.DiscardValue(parent.shape.Elem, child.slot)
	} else {
		parent.slot.SetMapIndex(child.slot, reflect.ValueOf(struct{}{}))
	}
	tk.building = false
	child.tracker = &tUninit{}
	child.release()
}
