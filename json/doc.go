// Package json decodes and encodes JSON against derived shapes, driving the
// progressive builder underneath so malformed or incomplete documents fail
// with path-tagged errors and never yield half-initialized values.
package json
