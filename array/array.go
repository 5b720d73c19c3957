// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package array contains definitions and utilities for volreg arrays.
// Arrays are dense, n-dimensional, reflection-typed containers that
// back both input volumes and monitored outputs. Arrays may alias
// ordinary Go slices or shared-memory segments; views created by
// slicing always alias the storage of their parent.
package array

import (
	"fmt"
	"reflect"
)

// A Decl declares the element type and shape of an array output that
// has not yet been computed. Declarations carry no data; they exist so
// that storage (possibly shared across processes) can be sized ahead
// of a computation.
type Decl struct {
	// Type is the array's element type.
	Type reflect.Type
	// Shape is the array's extent along each dimension.
	Shape []int
}

// DeclOf returns a declaration for an array with the same element
// type as elem and the provided shape.
func DeclOf(elem interface{}, shape ...int) Decl {
	return Decl{Type: reflect.TypeOf(elem), Shape: shape}
}

// An Array is a dense n-dimensional view over a flat, reflection-typed
// slice. Arrays are rectangular and row-major; views produced by Slice
// share storage with their parent. The zero Array is not valid; use
// New, Of, or Wrap.
type Array struct {
	// data is always a slice of the element type.
	data    reflect.Value
	shape   []int
	strides []int // in elements
	off     int
	segment string
}

// New creates a new, zeroed Array with the provided element type and
// shape.
func New(typ reflect.Type, shape ...int) *Array {
	n := size(shape)
	return &Array{
		data:    reflect.MakeSlice(reflect.SliceOf(typ), n, n),
		shape:   shapeCopy(shape),
		strides: rowMajor(shape),
	}
}

// Of returns an Array that aliases the provided slice, shaped by
// shape. If no shape is given, the array is one-dimensional with the
// slice's length. Of panics if x is not a slice or if the shape does
// not account for exactly the slice's length. Mutations of the
// returned array are visible through x and vice versa.
func Of(x interface{}, shape ...int) *Array {
	v := reflect.ValueOf(x)
	if v.Kind() != reflect.Slice {
		panic(fmt.Sprintf("array.Of: expected slice, got %v", v.Type()))
	}
	if len(shape) == 0 {
		shape = []int{v.Len()}
	}
	if size(shape) != v.Len() {
		panic(fmt.Sprintf("array.Of: shape %v does not match slice length %d", shape, v.Len()))
	}
	return &Array{
		data:    v,
		shape:   shapeCopy(shape),
		strides: rowMajor(shape),
	}
}

// ElemType returns the array's element type.
func (a *Array) ElemType() reflect.Type { return a.data.Type().Elem() }

// Shape returns the array's extent along each dimension. The returned
// slice must not be mutated.
func (a *Array) Shape() []int { return a.shape }

// NumDim returns the number of dimensions of the array.
func (a *Array) NumDim() int { return len(a.shape) }

// Size returns the total number of elements in the array.
func (a *Array) Size() int { return size(a.shape) }

// Segment returns the name of the shared-memory segment backing this
// array, or the empty string if the array is process-local.
func (a *Array) Segment() string { return a.segment }

// Index returns the (settable) value at the provided coordinates.
func (a *Array) Index(ix ...int) reflect.Value {
	if len(ix) != len(a.shape) {
		panic(fmt.Sprintf("array: index %v into %d-d array", ix, len(a.shape)))
	}
	flat := a.off
	for i, x := range ix {
		if x < 0 || x >= a.shape[i] {
			panic(fmt.Sprintf("array: index %v out of range for shape %v", ix, a.shape))
		}
		flat += x * a.strides[i]
	}
	return a.data.Index(flat)
}

// Slice returns a view of the array with the provided axis fixed at
// index k; the axis is dropped from the view's shape. The view aliases
// the array's storage: writes through the view are visible to all
// other holders of the same storage, shared segments included.
func (a *Array) Slice(axis, k int) *Array {
	if axis < 0 || axis >= len(a.shape) {
		panic(fmt.Sprintf("array: axis %d out of range for shape %v", axis, a.shape))
	}
	if k < 0 || k >= a.shape[axis] {
		panic(fmt.Sprintf("array: index %d out of range for axis %d of shape %v", k, axis, a.shape))
	}
	shape := make([]int, 0, len(a.shape)-1)
	strides := make([]int, 0, len(a.shape)-1)
	for i := range a.shape {
		if i == axis {
			continue
		}
		shape = append(shape, a.shape[i])
		strides = append(strides, a.strides[i])
	}
	return &Array{
		data:    a.data,
		shape:   shape,
		strides: strides,
		off:     a.off + k*a.strides[axis],
		segment: a.segment,
	}
}

// Contiguous tells whether the array's elements are laid out
// consecutively in row-major order.
func (a *Array) Contiguous() bool {
	expect := rowMajor(a.shape)
	for i := range expect {
		if a.strides[i] != expect[i] {
			return false
		}
	}
	return true
}

// Interface returns the array's elements as a flat slice of the
// element type. When the array is contiguous, the returned slice
// aliases the array's storage; otherwise a contiguous copy is
// returned.
func (a *Array) Interface() interface{} {
	if a.Contiguous() {
		return a.data.Slice(a.off, a.off+a.Size()).Interface()
	}
	c := New(a.ElemType(), a.shape...)
	c.CopyFrom(a)
	return c.Interface()
}

// CopyFrom copies the elements of src into a, element-wise and in
// place: the identity of a's storage is preserved, so every holder of
// a view over the same storage observes the new values. CopyFrom
// panics if the shapes or element types differ.
func (a *Array) CopyFrom(src *Array) {
	if a.ElemType() != src.ElemType() {
		panic(fmt.Sprintf("array: copy %v into %v", src.ElemType(), a.ElemType()))
	}
	if !EqualShape(a.shape, src.shape) {
		panic(fmt.Sprintf("array: copy shape %v into shape %v", src.shape, a.shape))
	}
	if a.Contiguous() && src.Contiguous() {
		reflect.Copy(
			a.data.Slice(a.off, a.off+a.Size()),
			src.data.Slice(src.off, src.off+src.Size()),
		)
		return
	}
	each(a.shape, func(ix []int) {
		a.Index(ix...).Set(src.Index(ix...))
	})
}

// Equal tells whether arrays a and b have the same element type,
// shape, and (deeply) equal elements.
func Equal(a, b *Array) bool {
	if a.ElemType() != b.ElemType() || !EqualShape(a.shape, b.shape) {
		return false
	}
	return reflect.DeepEqual(a.Interface(), b.Interface())
}

// EqualShape tells whether the two shapes are identical.
func EqualShape(x, y []int) bool {
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

// String returns a descriptive string of the array.
func (a *Array) String() string {
	if a.segment != "" {
		return fmt.Sprintf("array%v%s@%s", a.shape, a.ElemType(), a.segment)
	}
	return fmt.Sprintf("array%v%s", a.shape, a.ElemType())
}

// each invokes f for every coordinate of the provided shape in
// row-major order.
func each(shape []int, f func(ix []int)) {
	if size(shape) == 0 {
		return
	}
	ix := make([]int, len(shape))
	for {
		f(ix)
		i := len(shape) - 1
		for ; i >= 0; i-- {
			ix[i]++
			if ix[i] < shape[i] {
				break
			}
			ix[i] = 0
		}
		if i < 0 {
			return
		}
	}
}

func size(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func rowMajor(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func shapeCopy(shape []int) []int {
	c := make([]int, len(shape))
	copy(c, shape)
	return c
}
