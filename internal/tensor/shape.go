package tensor

import (
	"strconv"
	"strings"
)

// Shape is an ordered sequence of positive dimensions.
type Shape []int

// NumElements returns the total element count, or 0 for an empty shape.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 0
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Valid reports whether the shape is non-empty with all dimensions positive.
func (s Shape) Valid() bool {
	if len(s) == 0 {
		return false
	}
	for _, dim := range s {
		if dim <= 0 {
			return false
		}
	}
	return true
}

// Equal reports whether two shapes have identical rank and dimensions.
// Shapes with the same element count but different dimensions are not equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i, dim := range s {
		if dim != other[i] {
			return false
		}
	}
	return true
}

// String renders the shape as "128x128".
func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, dim := range s {
		parts[i] = strconv.Itoa(dim)
	}
	return strings.Join(parts, "x")
}

// Clone returns an independent copy of the shape.
func (s Shape) Clone() Shape {
	out := make(Shape, len(s))
	copy(out, s)
	return out
}
