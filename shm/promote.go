// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package shm

import (
	"reflect"

	"github.com/grailbio/volreg/array"
	"github.com/grailbio/volreg/proc"
)

// Promote decides, per value, whether a value crossing from process
// local to process target should be backed by a shared buffer. It
// returns v unchanged when there is no cross-process boundary to
// bridge (target equals local), when v is not array-shaped (scalars
// are cheap to serialize), or when v's element type is not
// bitwise-plain. Otherwise it returns a shared *array.Array sized and
// typed to match v (for an array.Decl, sized per the declaration with
// no data copied), registered as visible to exactly local and target.
// Promote is idempotent-safe: an array already backed by a
// segment visible to target is returned unchanged.
//
// All ineligible inputs fall back silently to the value itself;
// Promote returns an error only when a shared segment genuinely
// cannot be allocated.
func Promote(v interface{}, local, target proc.ID) (interface{}, error) {
	if target == local || target == proc.None {
		return v, nil
	}
	switch x := v.(type) {
	case array.Decl:
		if !array.Plain(x.Type) || size(x.Shape) == 0 {
			return v, nil
		}
		return alloc(x.Type, x.Shape, nil, local, target)
	case *array.Array:
		if x.Segment() != "" && VisibleTo(x.Segment(), target) {
			return v, nil
		}
		if !array.Plain(x.ElemType()) || x.Size() == 0 {
			return v, nil
		}
		return alloc(x.ElemType(), x.Shape(), x, local, target)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || !array.Plain(rv.Type().Elem()) || rv.Len() == 0 {
		return v, nil
	}
	return alloc(rv.Type().Elem(), []int{rv.Len()}, array.Of(v), local, target)
}

// alloc allocates a shared array of the provided element type and
// shape, visible to local and target, copying src in when present.
func alloc(typ reflect.Type, shape []int, src *array.Array, local, target proc.ID) (*array.Array, error) {
	seg, err := create(size(shape)*int(typ.Size()), local, target)
	if err != nil {
		return nil, err
	}
	a := array.Wrap(typ, shape, seg.data, seg.name)
	if src != nil {
		a.CopyFrom(src)
	}
	return a, nil
}

func size(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
