package partial

import (
	"reflect"

	forma "github.com/unformed/forma"
	"github.com/unformed/forma/internal/bitset"
)

// tracker is the per-structural-kind progress state of one frame. It is a
// closed sum: every call site switches exhaustively over the variants below.
// A frame starts as *tUninit and ends as *tInit; composite kinds move through
// their dedicated variant in between.
type tracker interface {
	trackerName() string
}

// tUninit: nothing initialized yet.
type tUninit struct{}

// tInit: the whole value is initialized (single default/clone/set call, or a
// composite whose completion collapsed into whole-value state).
type tInit struct{}

// tStruct tracks struct members: one bit per field, plus the index of the
// member a child frame is currently building (-1 when none).
type tStruct struct {
	bits  bitset.Set64
	child int
}

// tArray tracks fixed-array elements the same way structs track fields.
type tArray struct {
	bits  bitset.Set64
	child int
}

// tEnum tracks a selected variant: the payload is built in a side buffer and
// committed into the interface slot when the frame finishes.
type tEnum struct {
	variant *forma.Variant
	payload reflect.Value
	bits    bitset.Set64
	child   int
}

// tList: membership is delegated to the slice itself; the tracker only flags
// whether an element is currently being built.
type tList struct {
	init     bool
	building bool
}

// tSet mirrors tList for set-shaped maps.
type tSet struct {
	init     bool
	building bool
}

// map insertion phases: Idle -> PushingKey -> PushingValue -> Idle.
type mapPhase uint8

const (
	mapIdle mapPhase = iota
	mapPushingKey
	mapPushingValue
)

// tMap tracks the two-phase key-then-value insertion protocol. The key buffer
// is held from key completion until the value commits; both temporaries are
// then released together.
type tMap struct {
	init    bool
	phase   mapPhase
	key     reflect.Value // side buffer for the pending key
	keyInit bool          // key fully built (its frame has been popped)
	val     reflect.Value // side buffer for the pending value
	valInit bool
}

// tOption: true while inside Some(...).
type tOption struct {
	building bool
}

// tResult: which arm was begun, and whether its payload is still being built.
type tResult struct {
	isErr    bool
	building bool
}

// tPointer: true while the pointee is being built.
type tPointer struct {
	building bool
}

// dynamic sub-states: what the self-describing slot currently is.
type dynPhase uint8

const (
	dynEmpty dynPhase = iota
	dynScalar
	dynArray
	dynObject
)

// tDynamic tracks a self-describing value: its current sub-state, and the
// object member key a child frame is building (array children carry no key).
type tDynamic struct {
	phase     dynPhase
	building  bool
	memberKey string
	inPlace   bool // child aliases an existing member rather than a side buffer
}

func (*tUninit) trackerName() string  { return "uninit" }
func (*tInit) trackerName() string    { return "init" }
func (*tStruct) trackerName() string  { return "struct" }
func (*tArray) trackerName() string   { return "array" }
func (*tEnum) trackerName() string    { return "enum" }
func (*tList) trackerName() string    { return "list" }
func (*tSet) trackerName() string     { return "set" }
func (*tMap) trackerName() string     { return "map" }
func (*tOption) trackerName() string  { return "option" }
func (*tResult) trackerName() string  { return "result" }
func (*tPointer) trackerName() string { return "pointer" }
func (*tDynamic) trackerName() string { return "dynamic" }

// newStructTracker sizes a struct tracker for the shape's field count.
func newStructTracker(sh *forma.Shape) *tStruct {
	return &tStruct{bits: bitset.New(len(sh.Fields)), child: -1}
}

func newArrayTracker(sh *forma.Shape) *tArray {
	return &tArray{bits: bitset.New(sh.ArrayLen), child: -1}
}
