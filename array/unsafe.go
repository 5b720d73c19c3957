// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package array

import (
	"fmt"
	"reflect"
	"unsafe"
)

// Plain reports whether type t is a fixed-size, bitwise-plain type:
// one that contains no pointers and can therefore back a buffer shared
// across process boundaries.
func Plain(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return Plain(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !Plain(t.Field(i).Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// sliceHeader is a safe version of reflect.SliceHeader used within
// this package.
type sliceHeader struct {
	Data unsafe.Pointer
	Len  int
	Cap  int
}

// Wrap returns an Array of the provided element type and shape whose
// storage is the provided byte buffer, typically a mapped
// shared-memory segment named by segment. The element type must be
// bitwise-plain and the buffer must be large enough to hold the
// array's elements. The returned array aliases data: writes through
// the array are visible to every process that has the segment mapped.
func Wrap(typ reflect.Type, shape []int, data []byte, segment string) *Array {
	if !Plain(typ) {
		panic(fmt.Sprintf("array.Wrap: element type %v is not bitwise-plain", typ))
	}
	n := size(shape)
	if need := n * int(typ.Size()); need > len(data) {
		panic(fmt.Sprintf("array.Wrap: buffer of %d bytes cannot hold %d %v elements", len(data), n, typ))
	}
	slice := reflect.New(reflect.SliceOf(typ))
	if n > 0 {
		*(*sliceHeader)(unsafe.Pointer(slice.Pointer())) = sliceHeader{
			Data: unsafe.Pointer(&data[0]),
			Len:  n,
			Cap:  n,
		}
	}
	return &Array{
		data:    slice.Elem(),
		shape:   shapeCopy(shape),
		strides: rowMajor(shape),
		segment: segment,
	}
}

// bytes returns the raw bytes of a contiguous array's elements,
// aliasing the array's storage.
func (a *Array) bytes() []byte {
	if !a.Contiguous() {
		panic("array: bytes of non-contiguous array")
	}
	n := a.Size() * int(a.ElemType().Size())
	if n == 0 {
		return nil
	}
	p := unsafe.Pointer(a.data.Index(a.off).Addr().Pointer())
	return unsafe.Slice((*byte)(p), n)
}
