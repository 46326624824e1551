package partial

import (
	"sort"
	"strconv"

	"go.uber.org/zap"

	forma "github.com/unformed/forma"
)

// Deferred mode serves format drivers that deliver fields out of declaration
// order (flattened or streaming input): a field may be begun, popped without
// finishing, and re-entered later. Popped-but-unfinished frames are stored
// keyed by their path relative to the point where deferred mode began;
// re-descending to the same path restores the exact stored frame.
type deferredState struct {
	startDepth int
	cur        forma.KeyPath
	stored     map[string]*storedFrame
}

type storedFrame struct {
	path forma.KeyPath
	f    *frame
}

// BeginDeferred enters deferred mode rooted at the current frame.
func (p *Partial) BeginDeferred() error {
	if err := p.active(); err != nil {
		return err
	}
	if p.deferred != nil {
		return p.fail(&forma.Error{Code: forma.CodeNotInDeferred, Message: "deferred mode already active"})
	}
	p.deferred = &deferredState{
		startDepth: len(p.frames),
		stored:     map[string]*storedFrame{},
	}
	p.log.Debug("partial: deferred mode begun", zap.Int("depth", len(p.frames)))
	return nil
}

// storableInDeferred reports whether an unfinished frame may be parked for
// re-entry: only field members of struct-like parents have a stable path.
func (p *Partial) storableInDeferred(f *frame) bool {
	if f.own != ownField || len(p.deferred.cur) == 0 {
		return false
	}
	if len(p.frames) < 2 {
		return false
	}
	parent := p.frames[len(p.frames)-2]
	switch parent.tracker.(type) {
	case *tStruct, *tEnum, *tArray:
		return true
	}
	return false
}

// storeDeferred parks the top frame under its current path. The parent's
// tracker bit stays cleared: drop responsibility remains with the stored
// frame until FinishDeferred commits it.
func (p *Partial) storeDeferred() {
	path := p.deferred.cur
	f := p.pop()
	parent := p.top()
	switch tk := parent.tracker.(type) {
	case *tStruct:
		tk.child = -1
	case *tEnum:
		tk.child = -1
	case *tArray:
		tk.child = -1
	}
	p.deferred.stored[path.String()] = &storedFrame{path: path, f: f}
	p.log.Debug("partial: deferred store", zap.String("path", path.String()))
}

// takeStored removes and returns the frame previously stored under the
// current path extended by seg.
func (p *Partial) takeStored(seg string) (*frame, bool) {
	key := p.deferred.cur.Push(seg).String()
	sf, ok := p.deferred.stored[key]
	if !ok {
		return nil, false
	}
	delete(p.deferred.stored, key)
	p.log.Debug("partial: deferred restore", zap.String("path", key))
	return sf.f, true
}

// FinishDeferred leaves deferred mode: every stored frame is validated (with
// default filling) and committed into its parent, deepest path first, so a
// parent's bits are only read after all of its stored children have been
// folded in. The cursor must be back at the frame where deferred mode began.
func (p *Partial) FinishDeferred() error {
	if err := p.active(); err != nil {
		return err
	}
	if p.deferred == nil {
		return p.fail(&forma.Error{Code: forma.CodeNotInDeferred})
	}
	if len(p.frames) != p.deferred.startDepth {
		return p.fail(&forma.Error{Code: forma.CodeChildInProgress, Message: "unfinished frames above the deferred entry point"})
	}

	frames := make([]*storedFrame, 0, len(p.deferred.stored))
	for _, sf := range p.deferred.stored {
		frames = append(frames, sf)
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].path.Depth() > frames[j].path.Depth() })

	for _, sf := range frames {
		if err := p.finishFrame(sf.f); err != nil {
			if fe, ok := forma.AsError(err); ok && fe.Path == "" {
				fe.Path = sf.path.String()
			}
			return p.fail(err)
		}
		parent, err := p.deferredParent(sf.path)
		if err != nil {
			return p.fail(err)
		}
		if err := markMemberInit(parent, sf.path[len(sf.path)-1]); err != nil {
			return p.fail(err)
		}
		delete(p.deferred.stored, sf.path.String())
	}

	p.deferred = nil
	p.log.Debug("partial: deferred mode finished")
	return nil
}

// deferredParent resolves the frame owning the member at path: a stored
// ancestor when one exists, otherwise the deferred entry frame.
func (p *Partial) deferredParent(path forma.KeyPath) (*frame, error) {
	if path.Depth() == 1 {
		return p.frames[p.deferred.startDepth-1], nil
	}
	sf, ok := p.deferred.stored[path.Pop().String()]
	if !ok {
		// the ancestor completed in order and was committed on the stack;
		// by then this child's bit was still clear, so the ancestor could
		// not have completed. Reaching here is a bookkeeping bug.
		panic("partial: stored frame " + path.String() + " has no parent")
	}
	return sf.f, nil
}

// markMemberInit re-sets the parent's tracker bit for the named member,
// returning drop responsibility to the parent.
func markMemberInit(parent *frame, seg string) error {
	switch tk := parent.tracker.(type) {
	case *tStruct:
		fd, ok := parent.shape.FieldByName(seg)
		if !ok {
			return &forma.Error{Code: forma.CodeUnknownField, Shape: parent.shape, Field: seg}
		}
		tk.bits.Set(fieldBit(parent.shape, fd))
	case *tEnum:
		fd, ok := tk.variant.Shape().FieldByName(seg)
		if !ok {
			return &forma.Error{Code: forma.CodeUnknownField, Shape: parent.shape, Field: seg, Variant: tk.variant.Name}
		}
		tk.bits.Set(fieldBit(tk.variant.Shape(), fd))
	case *tArray:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= parent.shape.ArrayLen {
			return &forma.Error{Code: forma.CodeOutOfBounds, Shape: parent.shape, Message: seg}
		}
		tk.bits.Set(idx)
	default:
		return &forma.Error{Code: forma.CodeWasNotA, Shape: parent.shape, Expected: "struct-like parent", Actual: parent.tracker.trackerName()}
	}
	return nil
}

// teardownDeferred deinitializes stored frames during abandonment. Order is
// load-bearing: a stored child points into its stored parent's allocation,
// so teardown runs deepest-path-first, never in map iteration order.
func (p *Partial) teardownDeferred() {
	if p.deferred == nil {
		return
	}
	frames := make([]*storedFrame, 0, len(p.deferred.stored))
	for _, sf := range p.deferred.stored {
		frames = append(frames, sf)
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].path.Depth() > frames[j].path.Depth() })
	for _, sf := range frames {
		switch sf.f.own {
		case ownBorrowedInPlace:
			sf.f.tracker = &tUninit{}
		default:
			// parent bits for stored members stay cleared while stored, so
			// the stored frame owns exactly its own drops
			sf.f.deinit()
		}
		sf.f.release()
		p.log.Debug("partial: deferred teardown", zap.String("path", sf.path.String()))
	}
	p.deferred = nil
}
