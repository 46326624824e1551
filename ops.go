package forma

import (
	"hash"
	"reflect"
	"sync"
)

// OpTable is the table of optional type-erased operations for one type. Every
// entry is independently optional: a nil entry means the capability is
// unsupported for that type, which is never an error by itself. All functions
// take typed pointers passed as `any` (for a type T, the ptr arguments hold a
// *T); the Call* helpers on Shape make the unsupported/failed distinction
// explicit at call sites.
type OpTable struct {
	// Drop releases resources held by the pointed-to value. The builder calls
	// it exactly once per value it actually initialized.
	Drop func(ptr any)
	// Default constructs the type's default value in place.
	Default func(ptr any) error
	// CloneInto copies src into dst, both fully initialized afterwards.
	CloneInto func(dst, src any) error
	// ParseText parses a textual rendering into the pointed-to value.
	ParseText func(ptr any, s string) error
	// Equal reports structural equality of two values.
	Equal func(a, b any) bool
	// Compare orders two values: negative, zero, positive.
	Compare func(a, b any) int
	// Hash writes the value's hashable bytes to the sink.
	Hash func(ptr any, sink hash.Hash)
	// Display renders a human-facing representation.
	Display func(ptr any) string
	// Debug renders a debugging representation.
	Debug func(ptr any) string
	// TryFrom performs a narrowing/widening conversion from another value.
	TryFrom func(dst any, src any) error
	// TryBorrowInner exposes the inner value of a transparent wrapper.
	TryBorrowInner func(ptr any) (any, error)
}

func (t *OpTable) merge(over *OpTable) {
	if over == nil {
		return
	}
	if over.Drop != nil {
		t.Drop = over.Drop
	}
	if over.Default != nil {
		t.Default = over.Default
	}
	if over.CloneInto != nil {
		t.CloneInto = over.CloneInto
	}
	if over.ParseText != nil {
		t.ParseText = over.ParseText
	}
	if over.Equal != nil {
		t.Equal = over.Equal
	}
	if over.Compare != nil {
		t.Compare = over.Compare
	}
	if over.Hash != nil {
		t.Hash = over.Hash
	}
	if over.Display != nil {
		t.Display = over.Display
	}
	if over.Debug != nil {
		t.Debug = over.Debug
	}
	if over.TryFrom != nil {
		t.TryFrom = over.TryFrom
	}
	if over.TryBorrowInner != nil {
		t.TryBorrowInner = over.TryBorrowInner
	}
}

// Ops is the typed registration form of OpTable. Entries left nil stay
// unsupported.
type Ops[T any] struct {
	Drop           func(*T)
	Default        func(*T) error
	CloneInto      func(dst, src *T) error
	ParseText      func(*T, string) error
	Equal          func(a, b *T) bool
	Compare        func(a, b *T) int
	Hash           func(*T, hash.Hash)
	Display        func(*T) string
	Debug          func(*T) string
	TryFrom        func(dst *T, src any) error
	TryBorrowInner func(*T) (any, error)
}

var (
	opsMu      sync.RWMutex
	registered = map[reflect.Type]*OpTable{}
)

// RegisterOps installs (or overlays) the operation table for T. Registration
// must happen before the first shape derivation of T; entries registered later
// are not picked up by already-interned shapes.
func RegisterOps[T any](ops Ops[T]) {
	rt := reflect.TypeOf((*T)(nil)).Elem()
	erased := eraseOps(ops)
	opsMu.Lock()
	defer opsMu.Unlock()
	if prev, ok := registered[rt]; ok {
		prev.merge(erased)
		return
	}
	registered[rt] = erased
}

func eraseOps[T any](ops Ops[T]) *OpTable {
	t := &OpTable{}
	if ops.Drop != nil {
		t.Drop = func(p any) { ops.Drop(p.(*T)) }
	}
	if ops.Default != nil {
		t.Default = func(p any) error { return ops.Default(p.(*T)) }
	}
	if ops.CloneInto != nil {
		t.CloneInto = func(d, s any) error { return ops.CloneInto(d.(*T), s.(*T)) }
	}
	if ops.ParseText != nil {
		t.ParseText = func(p any, s string) error { return ops.ParseText(p.(*T), s) }
	}
	if ops.Equal != nil {
		t.Equal = func(a, b any) bool { return ops.Equal(a.(*T), b.(*T)) }
	}
	if ops.Compare != nil {
		t.Compare = func(a, b any) int { return ops.Compare(a.(*T), b.(*T)) }
	}
	if ops.Hash != nil {
		t.Hash = func(p any, sink hash.Hash) { ops.Hash(p.(*T), sink) }
	}
	if ops.Display != nil {
		t.Display = func(p any) string { return ops.Display(p.(*T)) }
	}
	if ops.Debug != nil {
		t.Debug = func(p any) string { return ops.Debug(p.(*T)) }
	}
	if ops.TryFrom != nil {
		t.TryFrom = func(d, s any) error { return ops.TryFrom(d.(*T), s) }
	}
	if ops.TryBorrowInner != nil {
		t.TryBorrowInner = func(p any) (any, error) { return ops.TryBorrowInner(p.(*T)) }
	}
	return t
}

func lookupOps(rt reflect.Type) *OpTable {
	table := builtinOps(rt)
	opsMu.RLock()
	user := registered[rt]
	opsMu.RUnlock()
	table.merge(user)
	return table
}

// ---- Call helpers ----
//
// Each helper returns ok=false when the operation is unsupported for the
// shape, distinguished from ok=true with a non-nil error, which means the
// operation is supported but failed at runtime.

// CallDrop runs the drop operation, if any. It reports whether a drop
// operation exists for the shape.
func (s *Shape) CallDrop(ptr any) bool {
	if s.ops.Drop == nil {
		return false
	}
	s.ops.Drop(ptr)
	return true
}

// CallDefault default-constructs the value in place.
func (s *Shape) CallDefault(ptr any) (bool, error) {
	if s.ops.Default == nil {
		return false, nil
	}
	return true, s.ops.Default(ptr)
}

// CallCloneInto copies src into dst.
func (s *Shape) CallCloneInto(dst, src any) (bool, error) {
	if s.ops.CloneInto == nil {
		return false, nil
	}
	return true, s.ops.CloneInto(dst, src)
}

// CallParseText parses a textual rendering into the value.
func (s *Shape) CallParseText(ptr any, text string) (bool, error) {
	if s.ops.ParseText == nil {
		return false, nil
	}
	if err := s.ops.ParseText(ptr, text); err != nil {
		return true, &Error{Code: CodeParseError, Shape: s, Message: err.Error(), Cause: err}
	}
	return true, nil
}

// CallEqual reports structural equality.
func (s *Shape) CallEqual(a, b any) (eq bool, ok bool) {
	if s.ops.Equal == nil {
		return false, false
	}
	return s.ops.Equal(a, b), true
}

// CallCompare orders two values.
func (s *Shape) CallCompare(a, b any) (cmp int, ok bool) {
	if s.ops.Compare == nil {
		return 0, false
	}
	return s.ops.Compare(a, b), true
}

// CallHash writes the value's hashable bytes into sink.
func (s *Shape) CallHash(ptr any, sink hash.Hash) bool {
	if s.ops.Hash == nil {
		return false
	}
	s.ops.Hash(ptr, sink)
	return true
}

// CallDisplay renders the human-facing representation.
func (s *Shape) CallDisplay(ptr any) (string, bool) {
	if s.ops.Display == nil {
		return "", false
	}
	return s.ops.Display(ptr), true
}

// CallDebug renders the debugging representation.
func (s *Shape) CallDebug(ptr any) (string, bool) {
	if s.ops.Debug == nil {
		return "", false
	}
	return s.ops.Debug(ptr), true
}

// CallTryFrom converts src into the value.
func (s *Shape) CallTryFrom(dst any, src any) (bool, error) {
	if s.ops.TryFrom == nil {
		return false, nil
	}
	return true, s.ops.TryFrom(dst, src)
}

// CallTryBorrowInner exposes the inner value of a transparent wrapper.
func (s *Shape) CallTryBorrowInner(ptr any) (any, bool, error) {
	if s.ops.TryBorrowInner == nil {
		return nil, false, nil
	}
	inner, err := s.ops.TryBorrowInner(ptr)
	return inner, true, err
}
