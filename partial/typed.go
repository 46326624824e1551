package partial

import (
	forma "github.com/unformed/forma"
)

// Typed wraps a Partial whose root is known statically, so Build returns the
// concrete type instead of any. All navigation still goes through the
// embedded Partial.
type Typed[T any] struct {
	*Partial
}

// Alloc starts a typed builder for T.
func Alloc[T any](opts ...Option) *Typed[T] {
	return &Typed[T]{Partial: New(forma.ShapeOf[T](), opts...)}
}

// Build finishes the root and returns the value.
func (t *Typed[T]) Build() (T, error) {
	var zero T
	v, err := t.Partial.Build()
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		sh := forma.ShapeOf[T]()
		return zero, &forma.Error{Code: forma.CodeWasNotA, Shape: sh, Expected: sh.String()}
	}
	return out, nil
}
