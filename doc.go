// Package forma provides runtime type descriptors (shapes), optional
// type-erased operation tables, and the value model (Option, Result, Dynamic,
// registered enums) underpinning the progressive value builder in
// package partial.
//
// A Shape describes one Go type: layout, structural kind, and member
// descriptors. Shapes are derived by reflection, configured through struct
// tags and Derive options, and interned for the lifetime of the process.
// Format drivers never inspect Go types directly; they navigate shapes and
// feed scalars through the builder, which is what keeps them independent of
// the concrete types they decode into.
package forma
