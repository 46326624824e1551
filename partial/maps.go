package partial

import (
	"reflect"

	forma "github.com/unformed/forma"
)

// BeginKey starts the two-phase insertion protocol of the current map: a key
// is built in a side buffer, then BeginValue builds the value, and completing
// the value inserts both atomically.
func (p *Partial) BeginKey() error {
	if err := p.active(); err != nil {
		return err
	}
	f := p.top()
	if err := f.shape.ExpectKind(forma.KindMap, "map"); err != nil {
		return p.fail(err)
	}
	tk, ok := f.tracker.(*tMap)
	if !ok {
		if _, uninit := f.tracker.(*tUninit); !uninit {
			if _, wasInit := f.tracker.(*tInit); !wasInit {
				return p.fail(&forma.Error{Code: forma.CodeChildInProgress, Shape: f.shape})
			}
		}
		tk = &tMap{}
		f.tracker = tk
	}
	if tk.phase != mapIdle {
		return p.fail(&forma.Error{Code: forma.CodeKeyWithoutValue, Shape: f.shape, Message: "previous insertion not completed"})
	}
	if !tk.init {
		if f.slot.IsNil() {
			f.slot.Set(reflect.MakeMap(f.shape.Type))
		}
		tk.init = true
	}
	tk.phase = mapPushingKey
	tk.key = allocSlot(f.shape.KeyShape)
	tk.keyInit = false
	child := newFrame(tk.key, f.shape.KeyShape, ownTempBuffer)
	p.push(child, "(key)")
	return nil
}

// BeginValue starts the value half of a map insertion. It is an error unless
// a key was completed immediately before.
func (p *Partial) BeginValue() error {
	if err := p.active(); err != nil {
		return err
	}
	f := p.top()
	if err := f.shape.ExpectKind(forma.KindMap, "map"); err != nil {
		return p.fail(err)
	}
	tk, ok := f.tracker.(*tMap)
	if !ok || tk.phase != mapPushingKey || !tk.keyInit {
		return p.fail(&forma.Error{Code: forma.CodeKeyWithoutValue, Shape: f.shape, Message: "begin_value without a completed key"})
	}
	tk.phase = mapPushingValue
	tk.val = allocSlot(f.shape.ValShape)
	tk.valInit = false
	child := newFrame(tk.val, f.shape.ValShape, ownTempBuffer)
	p.push(child, "(value)")
	return nil
}

// commitMapKey runs when a key frame ends: the buffer stays alive in the
// tracker, waiting for its value.
func commitMapKey(parent *frame) {
	tk := parent.tracker.(*tMap)
	tk.keyInit = true
}

// commitMapValue runs when a value frame ends: key and value are inserted
// atomically and both side buffers are released, without dropping, since
// ownership of their contents moved into the map. An existing entry under
// the same key is replaced; its value is dropped first.
func commitMapValue(parent *frame) {
	tk := parent.tracker.(*tMap)
	if prev := parent.slot.MapIndex(tk.key); prev.IsValid() {
		old := reflect.New(parent.shape.ValShape.Type).Elem()
		old.Set(prev)
		forma.DiscardValue(parent.shape.ValShape, old)
		// the replaced key stays in the map; drop the incoming duplicate
		forma.DiscardValue(parent.shape.KeyShape, tk.key)
	}
	parent.slot.SetMapIndex(tk.key, tk.val)
	tk.key = reflect.Value{}
	tk.val = reflect.Value{}
	tk.keyInit = false
	tk.valInit = false
	tk.phase = mapIdle
	releaseSlot() // key buffer
	releaseSlot() // value buffer
}
