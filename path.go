package forma

import "strings"

// KeyPath is a sequence of field names / rendered indices identifying one
// location inside a value under construction. It renders as a JSON Pointer
// (for example: /items/2/price).
type KeyPath []string

// Push returns the path extended with one segment. The receiver is not
// mutated; stored paths stay valid.
func (p KeyPath) Push(seg string) KeyPath {
	np := make(KeyPath, len(p)+1)
	copy(np, p)
	np[len(p)] = seg
	return np
}

// Pop returns the path without its last segment.
func (p KeyPath) Pop() KeyPath {
	if len(p) == 0 {
		return p
	}
	return p[:len(p)-1]
}

// Depth returns the number of segments.
func (p KeyPath) Depth() int { return len(p) }

// String renders the path as a JSON Pointer; the empty path renders as "/".
func (p KeyPath) String() string {
	if len(p) == 0 {
		return "/"
	}
	b := &strings.Builder{}
	for _, seg := range p {
		b.WriteByte('/')
		b.WriteString(escapePointerSeg(seg))
	}
	return b.String()
}

// escape per RFC 6901: "~" -> "~0", "/" -> "~1"
func escapePointerSeg(s string) string {
	if !strings.ContainsAny(s, "~/") {
		return s
	}
	s = strings.ReplaceAll(s, "~", "~0")
	return strings.ReplaceAll(s, "/", "~1")
}
