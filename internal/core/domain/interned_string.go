package domain

import "unique"

// InternedString is a canonicalized string. Target cells, base paths and names repeat
// across every graph, so equal values share one allocation and compare by handle.
type InternedString struct {
	h unique.Handle[string]
}

// NewInternedString interns s.
func NewInternedString(s string) InternedString {
	return InternedString{h: unique.Make(s)}
}

// String returns the underlying string value. The zero InternedString is the empty string.
func (is InternedString) String() string {
	if is.h == (unique.Handle[string]{}) {
		return ""
	}
	return is.h.Value()
}

// IsEmpty reports whether is holds the empty string.
func (is InternedString) IsEmpty() bool {
	return is.String() == ""
}
