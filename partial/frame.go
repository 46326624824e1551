package partial

import (
	"fmt"
	"reflect"
	"strconv"
	"sync/atomic"

	forma "github.com/unformed/forma"
)

// ownership decides a frame's cleanup responsibility. Exactly one tag per
// frame; the deinit/release matrix below is the whole no-leak/no-double-drop
// argument, so changes here need a matching change in Abandon.
type ownership uint8

const (
	// ownOwned: the frame allocated its slot. Deinitialize and release on
	// abandonment.
	ownOwned ownership = iota

	// ownField: the slot is a member inside a parent's allocation. The
	// parent's tracker bit for the member was cleared when this frame was
	// pushed and is re-set when the frame ends, so a live field frame always
	// owns its own deinit and never releases.
	ownField

	// ownTempBuffer: a side allocation (map key/value under construction)
	// fully owned by this frame while it exists.
	ownTempBuffer

	// ownBorrowedInPlace: aliases a live collection entry. Abandonment
	// cleanup must never drop it (the collection has no per-entry tracking
	// and would double-drop); an explicit replacement still drops the old
	// value before overwriting.
	ownBorrowedInPlace

	// ownExternal: caller-supplied memory. Deinitialize, never release.
	ownExternal

	// ownListSlot: a reserved-but-uncounted element of a growable container.
	// Ending the frame commits it (the length advances); abandonment leaves
	// it uncounted and releases nothing beyond the element's own contents.
	ownListSlot
)

func (o ownership) String() string {
	switch o {
	case ownOwned:
		return "owned"
	case ownField:
		return "field"
	case ownTempBuffer:
		return "temp-buffer"
	case ownBorrowedInPlace:
		return "borrowed-in-place"
	case ownExternal:
		return "external"
	case ownListSlot:
		return "list-slot"
	default:
		return "unknown"
	}
}

// side-allocation accounting, balanced by release; the leak tests in this
// package assert the counters return to level after Build or Abandon.
var (
	allocCount atomic.Int64
	freeCount  atomic.Int64
)

// frame is one level of in-progress construction: an addressable slot, its
// shape, the recorded allocation size, progress state, and the ownership tag.
type frame struct {
	slot  reflect.Value
	shape *forma.Shape
	// size is recorded when the allocation is made and is authoritative for
	// release; it is never re-derived from the shape, because side buffers
	// may be over-sized relative to the nominal type.
	size    uintptr
	own     ownership
	tracker tracker
	// released guards against double release.
	released bool
}

func newFrame(slot reflect.Value, sh *forma.Shape, own ownership) *frame {
	f := &frame{slot: slot, shape: sh, size: sh.Size, own: own, tracker: &tUninit{}}
	// empty structs have nothing to initialize
	if sh.Kind == forma.KindStruct && len(sh.Fields) == 0 {
		f.tracker = &tInit{}
	}
	return f
}

// allocFrame allocates a fresh slot for sh and wraps it in a frame.
func allocFrame(sh *forma.Shape, own ownership) *frame {
	allocCount.Add(1)
	return newFrame(reflect.New(sh.Type).Elem(), sh, own)
}

// allocSlot allocates a standalone side buffer for sh.
func allocSlot(sh *forma.Shape) reflect.Value {
	allocCount.Add(1)
	return reflect.New(sh.Type).Elem()
}

// releaseSlot balances allocSlot/allocFrame accounting for buffers whose
// backing storage is handed to the collector.
func releaseSlot() {
	freeCount.Add(1)
}

func (f *frame) isInit() bool {
	_, ok := f.tracker.(*tInit)
	return ok
}

// deinit runs drop operations for whatever is currently initialized, without
// releasing the slot. The tracker is back to uninitialized afterwards.
func (f *frame) deinit() {
	switch tk := f.tracker.(type) {
	case *tUninit:
		// nothing was initialized
	case *tInit:
		forma.DiscardValue(f.shape, f.slot)
	case *tStruct:
		if tk.bits.AllSet() {
			// whole-value fast path
			forma.DiscardValue(f.shape, f.slot)
		} else {
			for i := range f.shape.Fields {
				if tk.bits.Get(i) {
					fd := &f.shape.Fields[i]
					forma.DiscardValue(fd.Shape(), f.slot.Field(fd.Index))
				}
			}
		}
	case *tArray:
		if tk.bits.AllSet() {
			forma.DiscardValue(f.shape, f.slot)
		} else {
			for i := 0; i < f.shape.ArrayLen; i++ {
				if tk.bits.Get(i) {
					forma.DiscardValue(f.shape.Elem, f.slot.Index(i))
				}
			}
		}
	case *tEnum:
		payloadShape := tk.variant.Shape()
		for i := range payloadShape.Fields {
			if tk.bits.Get(i) {
				fd := &payloadShape.Fields[i]
				forma.DiscardValue(fd.Shape(), tk.payload.Field(fd.Index))
			}
		}
		releaseSlot() // payload side buffer
	case *tList:
		if tk.init {
			forma.DiscardValue(f.shape, f.slot)
		}
		// an in-flight element is handled by its own frame, popped first
	case *tSet:
		if tk.init {
			forma.DiscardValue(f.shape, f.slot)
		}
	case *tMap:
		if tk.init {
			forma.DiscardValue(f.shape, f.slot)
		}
		f.cleanupMapInsert(tk)
	case *tOption, *tResult, *tPointer:
		// only exists while the inner value is being built; the child frame
		// deinitializes the inner progress, nothing is whole here
	case *tDynamic:
		// dynamic values hold no droppable resources; an in-flight child is
		// handled by its own frame
	default:
		panic(fmt.Sprintf("partial: unhandled tracker %s in deinit", f.tracker.trackerName()))
	}
	f.tracker = &tUninit{}
}

// cleanupMapInsert drops and releases the two-phase insertion temporaries
// whose owning frames have already been popped. Mid-flight buffers (keyInit /
// valInit still false) belong to a live child frame and are left alone.
func (f *frame) cleanupMapInsert(tk *tMap) {
	switch tk.phase {
	case mapIdle:
	case mapPushingKey:
		if tk.keyInit {
			forma.DiscardValue(f.shape.KeyShape, tk.key)
			releaseSlot()
		}
	case mapPushingValue:
		// the key is always complete in this phase
		forma.DiscardValue(f.shape.KeyShape, tk.key)
		releaseSlot()
		if tk.val.IsValid() && tk.valInit {
			forma.DiscardValue(f.shape.ValShape, tk.val)
			releaseSlot()
		}
	}
	tk.phase = mapIdle
	tk.key = reflect.Value{}
	tk.val = reflect.Value{}
	tk.keyInit = false
	tk.valInit = false
}

// release frees the frame's allocation, for ownership kinds that own one.
// Calling it before deinit is a lifetime bug, not a recoverable error.
func (f *frame) release() {
	if _, uninit := f.tracker.(*tUninit); !uninit {
		panic("partial: frame released before deinit")
	}
	if f.released {
		panic("partial: frame released twice")
	}
	switch f.own {
	case ownOwned, ownTempBuffer, ownListSlot:
		if f.size != f.shape.Size {
			// the recorded size is authoritative; a mismatch means the slot
			// was swapped out from under the frame
			panic(fmt.Sprintf("partial: recorded size %d disagrees with slot of %s", f.size, f.shape))
		}
		f.slot = reflect.Value{}
		f.released = true
		releaseSlot()
	case ownField, ownBorrowedInPlace, ownExternal:
		// memory belongs to the parent / collection / caller
	}
}

// requireFullInit returns a typed error naming the first missing member when
// the frame is not completely initialized.
func (f *frame) requireFullInit() error {
	switch tk := f.tracker.(type) {
	case *tUninit:
		return &forma.Error{Code: forma.CodeUninitializedValue, Shape: f.shape}
	case *tInit:
		return nil
	case *tStruct:
		if tk.bits.AllSet() {
			return nil
		}
		idx := tk.bits.FirstUnset()
		return &forma.Error{Code: forma.CodeUninitializedField, Shape: f.shape, Field: f.shape.Fields[idx].Name}
	case *tArray:
		if tk.bits.AllSet() {
			return nil
		}
		return &forma.Error{Code: forma.CodeUninitializedField, Shape: f.shape, Field: strconv.Itoa(tk.bits.FirstUnset())}
	case *tEnum:
		if tk.bits.AllSet() {
			return nil
		}
		idx := tk.bits.FirstUnset()
		return &forma.Error{
			Code:    forma.CodeUninitializedEnumField,
			Shape:   f.shape,
			Field:   tk.variant.Shape().Fields[idx].Name,
			Variant: tk.variant.Name,
		}
	case *tList:
		if tk.init && !tk.building {
			return nil
		}
		return &forma.Error{Code: forma.CodeUninitializedValue, Shape: f.shape}
	case *tSet:
		if tk.init && !tk.building {
			return nil
		}
		return &forma.Error{Code: forma.CodeUninitializedValue, Shape: f.shape}
	case *tMap:
		if tk.init && tk.phase == mapIdle {
			return nil
		}
		return &forma.Error{Code: forma.CodeUninitializedValue, Shape: f.shape}
	case *tOption:
		return &forma.Error{Code: forma.CodeUninitializedValue, Shape: f.shape}
	case *tResult:
		return &forma.Error{Code: forma.CodeUninitializedValue, Shape: f.shape}
	case *tPointer:
		return &forma.Error{Code: forma.CodeUninitializedValue, Shape: f.shape}
	case *tDynamic:
		if tk.building {
			return &forma.Error{Code: forma.CodeUninitializedValue, Shape: f.shape}
		}
		return nil
	default:
		panic(fmt.Sprintf("partial: unhandled tracker %s", tk.trackerName()))
	}
}

// currentChildIndex returns the member index a child frame is building, when
// the tracker kind has one.
func (f *frame) currentChildIndex() (int, bool) {
	switch tk := f.tracker.(type) {
	case *tStruct:
		if tk.child >= 0 {
			return tk.child, true
		}
	case *tArray:
		if tk.child >= 0 {
			return tk.child, true
		}
	case *tEnum:
		if tk.child >= 0 {
			return tk.child, true
		}
	}
	return 0, false
}
