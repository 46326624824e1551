package forma

// Result is a two-armed value: either an Ok payload or an Err payload. The
// zero value is Ok with a zero payload. Fields are exported so the reflection
// layer can address them; prefer the constructors and accessors.
type Result[T, E any] struct {
	IsErr bool
	Ok    T
	Err   E
}

// OkOf returns a result holding the ok arm.
func OkOf[T, E any](v T) Result[T, E] { return Result[T, E]{Ok: v} }

// ErrOf returns a result holding the err arm.
func ErrOf[T, E any](e E) Result[T, E] { return Result[T, E]{IsErr: true, Err: e} }

// Unpack returns the ok payload and true, or the zero payload and false when
// the result holds the err arm.
func (r Result[T, E]) Unpack() (T, bool) {
	if r.IsErr {
		var zero T
		return zero, false
	}
	return r.Ok, true
}

// ErrValue returns the err payload and whether the err arm is active.
func (r Result[T, E]) ErrValue() (E, bool) {
	if !r.IsErr {
		var zero E
		return zero, false
	}
	return r.Err, true
}

// marker consumed by shape derivation; only Result implements it.
func (Result[T, E]) formaResult() {}

type resultMarker interface{ formaResult() }
