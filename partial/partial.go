package partial

import (
	"reflect"
	"strconv"

	"go.uber.org/zap"

	forma "github.com/unformed/forma"
)

// builderState tracks whether the builder can still be used.
type builderState uint8

const (
	stateActive builderState = iota
	stateBuilt
	stateFailed
)

// Partial is a type-erased, progressively-initialized value: a stack of
// frames over one allocation, where each navigation call descends into a
// member, supplies a scalar, or ascends after completing one.
//
// A Partial is a single-writer cursor: it must not be shared between
// goroutines. Independent Partials are independent; shapes and op tables are
// immutable and process-wide.
//
// Abandoning a Partial (dropping it before Build) must go through Abandon,
// which deterministically runs drop operations for everything actually
// initialized, exactly once each.
type Partial struct {
	frames   []*frame
	state    builderState
	deferred *deferredState
	log      *zap.Logger
}

// Option configures a Partial at construction.
type Option func(*Partial)

// WithLogger installs a trace logger; frame pushes, pops, drops and deferred
// store/restore are logged at debug level. The default is a nop logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Partial) { p.log = log }
}

// New allocates a builder for a root value of the given shape.
func New(sh *forma.Shape, opts ...Option) *Partial {
	p := &Partial{log: zap.NewNop()}
	for _, o := range opts {
		o(p)
	}
	p.frames = append(p.frames, allocFrame(sh, ownOwned))
	p.log.Debug("partial: root allocated", zap.String("shape", sh.String()))
	return p
}

// Borrow builds directly into caller-supplied memory: ptr must be a non-nil
// pointer; the pointed-to value is overwritten in place and Build returns it.
// The builder never releases the caller's memory.
func Borrow(ptr any, opts ...Option) (*Partial, error) {
	rv := reflect.ValueOf(ptr)
	if !rv.IsValid() || rv.Kind() != reflect.Pointer || rv.IsNil() {
		return nil, &forma.Error{Code: forma.CodeWrongShape, Expected: "non-nil pointer", Actual: reflect.TypeOf(ptr).String(), Message: "Borrow target"}
	}
	sh := forma.ShapeOfType(rv.Type().Elem())
	p := &Partial{log: zap.NewNop()}
	for _, o := range opts {
		o(p)
	}
	p.frames = append(p.frames, newFrame(rv.Elem(), sh, ownExternal))
	return p, nil
}

func (p *Partial) active() error {
	if p.state != stateActive {
		return &forma.Error{Code: forma.CodeBuilderConsumed}
	}
	if len(p.frames) == 0 {
		return &forma.Error{Code: forma.CodeNoActiveFrame}
	}
	return nil
}

func (p *Partial) top() *frame { return p.frames[len(p.frames)-1] }

func zapShape(sh *forma.Shape) zap.Field {
	return zap.String("shape", sh.String())
}

// Shape returns the descriptor of the value currently under the cursor.
func (p *Partial) Shape() *forma.Shape {
	if len(p.frames) == 0 {
		return nil
	}
	return p.top().shape
}

// CurrentField returns the field descriptor a child frame is building inside
// the top frame, or nil when none is in progress.
func (p *Partial) CurrentField() *forma.Field {
	if len(p.frames) == 0 {
		return nil
	}
	f := p.top()
	idx, ok := f.currentChildIndex()
	if !ok {
		return nil
	}
	switch tk := f.tracker.(type) {
	case *tStruct:
		return &f.shape.Fields[idx]
	case *tEnum:
		return &tk.variant.Shape().Fields[idx]
	}
	return nil
}

// Path renders the cursor's position from the root as a key path.
func (p *Partial) Path() forma.KeyPath {
	var path forma.KeyPath
	for i := 0; i < len(p.frames)-1; i++ {
		path = append(path, frameSegment(p.frames[i]))
	}
	return path
}

// frameSegment names the in-progress child of a frame for paths and errors.
func frameSegment(f *frame) string {
	switch tk := f.tracker.(type) {
	case *tStruct:
		if tk.child >= 0 {
			return f.shape.Fields[tk.child].Name
		}
	case *tArray:
		if tk.child >= 0 {
			return strconv.Itoa(tk.child)
		}
	case *tEnum:
		if tk.child >= 0 {
			return tk.variant.Shape().Fields[tk.child].Name
		}
	case *tList:
		if tk.building {
			return strconv.Itoa(f.slot.Len())
		}
	case *tSet:
		if tk.building {
			return "(item)"
		}
	case *tMap:
		switch tk.phase {
		case mapPushingKey:
			return "(key)"
		case mapPushingValue:
			return "(value)"
		}
	case *tOption:
		if tk.building {
			return "(some)"
		}
	case *tResult:
		if tk.building {
			if tk.isErr {
				return "(err)"
			}
			return "(ok)"
		}
	case *tPointer:
		if tk.building {
			return "(pointee)"
		}
	case *tDynamic:
		if tk.building {
			if tk.phase == dynObject {
				return tk.memberKey
			}
			return "(elem)"
		}
	}
	return "?"
}

// push makes child the new top frame, recording the deferred path segment.
func (p *Partial) push(child *frame, seg string) {
	p.frames = append(p.frames, child)
	if p.deferred != nil {
		p.deferred.cur = p.deferred.cur.Push(seg)
	}
	p.log.Debug("partial: push",
		zap.String("shape", child.shape.String()),
		zap.String("ownership", child.own.String()),
		zap.String("segment", seg),
	)
}

// pop removes and returns the top frame.
func (p *Partial) pop() *frame {
	f := p.top()
	p.frames = p.frames[:len(p.frames)-1]
	if p.deferred != nil {
		p.deferred.cur = p.deferred.cur.Pop()
	}
	p.log.Debug("partial: pop", zap.String("shape", f.shape.String()))
	return f
}

// fail tags err with the cursor path when it carries none and returns it.
// The builder stays active: callers may recover from a rejected call.
func (p *Partial) fail(err error) error {
	if fe, ok := forma.AsError(err); ok && fe.Path == "" {
		fe.Path = p.Path().String()
	}
	return err
}

// Abandon unwinds everything without building: every value actually
// initialized is dropped exactly once, every side allocation released
// exactly once. Safe to call on an already-built or already-abandoned
// builder, where it does nothing.
func (p *Partial) Abandon() {
	if p.state == stateBuilt {
		return
	}
	p.state = stateFailed
	p.teardownDeferred()

	for len(p.frames) > 0 {
		f := p.pop()
		switch f.own {
		case ownBorrowedInPlace:
			// the parent collection owns the entry and has no per-entry
			// tracking; dropping here would double-drop
			f.tracker = &tUninit{}
		default:
			f.deinit()
		}
		f.release()
		p.log.Debug("partial: abandoned frame", zap.String("shape", f.shape.String()))
	}
}
