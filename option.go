package forma

// Option is an explicit optional value. The zero value is None. Fields are
// exported so the reflection layer can address them; prefer the accessors in
// application code (the sql.Null* types follow the same convention).
type Option[T any] struct {
	Present bool
	Value   T
}

// Some returns an option holding v.
func Some[T any](v T) Option[T] { return Option[T]{Present: true, Value: v} }

// None returns the absent option.
func None[T any]() Option[T] { return Option[T]{} }

// Get returns the contained value and whether it is present.
func (o Option[T]) Get() (T, bool) { return o.Value, o.Present }

// OrElse returns the contained value, or fallback when absent.
func (o Option[T]) OrElse(fallback T) T {
	if o.Present {
		return o.Value
	}
	return fallback
}

// IsSome reports whether a value is present.
func (o Option[T]) IsSome() bool { return o.Present }

// marker consumed by shape derivation; only Option implements it.
func (Option[T]) formaOption() {}

type optionMarker interface{ formaOption() }
