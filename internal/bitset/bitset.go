// Package bitset provides the fixed-capacity membership mask used to track
// which members of a composite are initialized. Capacity is one machine word
// (64 slots); wider composites are rejected at shape derivation.
package bitset

import "math/bits"

// Set64 is a fixed-capacity bitmask over member indices 0..63.
type Set64 struct {
	bits uint64
	n    int
}

// New returns a set sized for n members. n must be at most 64.
func New(n int) Set64 {
	if n < 0 || n > 64 {
		panic("bitset: capacity out of range")
	}
	return Set64{n: n}
}

// Len returns the capacity the set was sized for.
func (s Set64) Len() int { return s.n }

// Set marks index i.
func (s *Set64) Set(i int) {
	if i < 0 || i >= s.n {
		panic("bitset: index out of range")
	}
	s.bits |= 1 << uint(i)
}

// Clear unmarks index i.
func (s *Set64) Clear(i int) {
	if i < 0 || i >= s.n {
		panic("bitset: index out of range")
	}
	s.bits &^= 1 << uint(i)
}

// Get reports whether index i is marked.
func (s Set64) Get(i int) bool {
	if i < 0 || i >= s.n {
		return false
	}
	return s.bits&(1<<uint(i)) != 0
}

// AllSet reports whether every index is marked. Empty sets count as all set.
func (s Set64) AllSet() bool {
	if s.n == 0 {
		return true
	}
	if s.n == 64 {
		return s.bits == ^uint64(0)
	}
	return s.bits == (1<<uint(s.n))-1
}

// Count returns how many indices are marked.
func (s Set64) Count() int { return bits.OnesCount64(s.bits) }

// FirstUnset returns the lowest unmarked index, or -1 when all are set.
func (s Set64) FirstUnset() int {
	for i := 0; i < s.n; i++ {
		if s.bits&(1<<uint(i)) == 0 {
			return i
		}
	}
	return -1
}
