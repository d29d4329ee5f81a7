// Copyright 2025 ParExpr contributors.
// SPDX-License-Identifier: Apache-2.0
package parexpr

import (
	"github.com/parexpr/parexpr/errors"
)

// StridedView describes an N-dimensional view over a flat float64 buffer:
// element (i0, i1, ... in) lives at Data[Offset + i0*Stride[0] + ... +
// in*Stride[n]]. Strides are in elements, may be negative, and need not
// be canonical row-major. Logical enumeration of a view is always
// row-major over Shape regardless of memory layout.
type StridedView struct {
	Data   []float64
	Offset int
	Shape  []int
	Stride []int
}

// validate checks the view's own consistency: matching rank, positive
// extents, and that every reachable element, including via negative
// strides, lies within the buffer. Done once at call setup, never during
// traversal.
func (v *StridedView) validate() error {
	if len(v.Shape) == 0 {
		return errors.New(errors.ErrBadArgument, "invalid strided array, empty shape")
	}
	if len(v.Shape) != len(v.Stride) {
		return errors.New(errors.ErrBadArgument, "invalid strided array, shape.length != stride.length")
	}
	min, max := v.Offset, v.Offset
	for d := range v.Shape {
		if v.Shape[d] < 1 {
			return errors.New(errors.ErrBadArgument, "invalid strided array, non-positive shape")
		}
		span := (v.Shape[d] - 1) * v.Stride[d]
		if span >= 0 {
			max += span
		} else {
			min += span
		}
	}
	if min < 0 || max >= len(v.Data) {
		return errors.New(errors.ErrBadArgument, "invalid strided array, buffer overflow")
	}
	return nil
}

// Elements returns the number of logical positions in the view.
func (v *StridedView) Elements() int {
	n := 1
	for _, s := range v.Shape {
		n *= s
	}
	return n
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// indexOfLinear converts a row-major logical position into a
// multi-dimensional index over shape. Joblet slice boundaries are logical
// positions, so this is how each joblet finds its starting index.
func indexOfLinear(pos int, shape []int) []int {
	index := make([]int, len(shape))
	for d := len(shape) - 1; d >= 0; d-- {
		index[d] = pos % shape[d]
		pos /= shape[d]
	}
	return index
}

// offsetAt maps a multi-dimensional index through this view's own strides
// to a buffer offset.
func (v *StridedView) offsetAt(index []int) int {
	off := v.Offset
	for d := range index {
		off += index[d] * v.Stride[d]
	}
	return off
}

// stridedCursor walks one view in the logical row-major order of the
// broadcast shape. Advancing moves the buffer offset by the innermost
// stride; when an axis wraps, the carry propagates upward like a
// multi-digit odometer and the offset is adjusted by that axis's full
// extent.
type stridedCursor struct {
	view  *StridedView
	index []int
	off   int
}

func newStridedCursor(v *StridedView, start int) *stridedCursor {
	index := indexOfLinear(start, v.Shape)
	return &stridedCursor{
		view:  v,
		index: index,
		off:   v.offsetAt(index),
	}
}

func (c *stridedCursor) value() float64 {
	return c.view.Data[c.off]
}

func (c *stridedCursor) set(x float64) {
	c.view.Data[c.off] = x
}

// advance steps to the next logical position. Returns false on reaching
// the end of the view.
func (c *stridedCursor) advance() bool {
	v := c.view
	for d := len(c.index) - 1; d >= 0; d-- {
		c.index[d]++
		c.off += v.Stride[d]
		if c.index[d] < v.Shape[d] {
			return true
		}
		c.index[d] = 0
		c.off -= v.Stride[d] * v.Shape[d]
	}
	return false
}
