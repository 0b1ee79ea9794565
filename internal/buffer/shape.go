package buffer

import "fmt"

// Shape holds the dimension sizes of a buffer, outermost first.
// An empty shape describes a scalar.
type Shape []int

// NumElements returns how many elements a buffer of this shape holds.
func (s Shape) NumElements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate rejects shapes with non-positive dimensions.
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim < 1 {
			return fmt.Errorf("shape dimension %d is %d, must be positive", i, dim)
		}
	}
	return nil
}

// Equal reports whether s and other have identical dimensions.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the shape.
func (s Shape) Clone() Shape {
	return append(Shape(nil), s...)
}

// strides returns the row-major element strides for the shape: the distance
// between consecutive elements along each dimension.
func (s Shape) strides() []int {
	out := make([]int, len(s))
	stride := 1
	for i := len(s) - 1; i >= 0; i-- {
		out[i] = stride
		stride *= s[i]
	}
	return out
}
