package core

import (
	"golang.org/x/exp/constraints"
)

// Series is an ordered pair of category labels and values rendered as one
// chart line. Label i belongs to value i.
type Series struct {
	Categories []string
	Values     []float64
}

// Length returns the number of values in the series
func (s Series) Length() int {
	return len(s.Values)
}

// Aligned reports whether categories and values have the same length
func (s Series) Aligned() bool {
	return len(s.Categories) == len(s.Values)
}

// Bounds returns the smallest and largest element of values.
// ok is false for an empty slice.
func Bounds[T constraints.Ordered](values []T) (lo, hi T, ok bool) {
	if len(values) == 0 {
		return lo, hi, false
	}

	lo, hi = values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi, true
}
