// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package array

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"reflect"
)

func init() {
	gob.Register(&Array{})
}

// kindTypes enumerates the element types that can cross process
// boundaries, either inside a gob payload or through a shared segment.
var kindTypes = map[reflect.Kind]reflect.Type{
	reflect.Bool:       reflect.TypeOf(false),
	reflect.Int:        reflect.TypeOf(int(0)),
	reflect.Int8:       reflect.TypeOf(int8(0)),
	reflect.Int16:      reflect.TypeOf(int16(0)),
	reflect.Int32:      reflect.TypeOf(int32(0)),
	reflect.Int64:      reflect.TypeOf(int64(0)),
	reflect.Uint:       reflect.TypeOf(uint(0)),
	reflect.Uint8:      reflect.TypeOf(uint8(0)),
	reflect.Uint16:     reflect.TypeOf(uint16(0)),
	reflect.Uint32:     reflect.TypeOf(uint32(0)),
	reflect.Uint64:     reflect.TypeOf(uint64(0)),
	reflect.Uintptr:    reflect.TypeOf(uintptr(0)),
	reflect.Float32:    reflect.TypeOf(float32(0)),
	reflect.Float64:    reflect.TypeOf(float64(0)),
	reflect.Complex64:  reflect.TypeOf(complex64(0)),
	reflect.Complex128: reflect.TypeOf(complex128(0)),
}

// attacher maps an existing shared segment into this process. It is
// registered by the shm package; arrays themselves know segments only
// by name.
var attacher func(segment string) ([]byte, error)

// RegisterAttacher registers the function used to map a named shared
// segment when a shared array is gob-decoded in a new process. It is
// called by the shm package's init and should not be needed by users.
func RegisterAttacher(attach func(segment string) ([]byte, error)) {
	attacher = attach
}

// gobArray is the wire representation of an Array. Shared arrays
// travel by segment name and are re-mapped on decode; local arrays
// travel by value.
type gobArray struct {
	Segment string
	Kind    reflect.Kind
	Shape   []int
	Data    []byte
}

// GobEncode implements a custom gob encoder for arrays. Only arrays
// with basic bitwise-plain element types can be encoded; shared arrays
// are encoded by segment name so that no element data is copied.
func (a *Array) GobEncode() ([]byte, error) {
	kind := a.ElemType().Kind()
	if kindTypes[kind] != a.ElemType() {
		return nil, fmt.Errorf("array: cannot encode element type %v", a.ElemType())
	}
	g := gobArray{Segment: a.segment, Kind: kind, Shape: a.shape}
	if a.segment != "" && (a.off != 0 || !a.Contiguous()) {
		// A view loses its offset on the wire; only whole shared
		// arrays can travel by segment name.
		return nil, fmt.Errorf("array: cannot encode view of shared segment %s", a.segment)
	}
	if a.segment == "" {
		c := a
		if !a.Contiguous() {
			c = New(a.ElemType(), a.shape...)
			c.CopyFrom(a)
		}
		g.Data = c.bytes()
	}
	var b bytes.Buffer
	err := gob.NewEncoder(&b).Encode(g)
	return b.Bytes(), err
}

// GobDecode implements a custom gob decoder for arrays. Decoding a
// shared array maps its segment into the calling process, so the
// decoded array aliases the same storage as the encoder's.
func (a *Array) GobDecode(p []byte) error {
	var g gobArray
	if err := gob.NewDecoder(bytes.NewReader(p)).Decode(&g); err != nil {
		return err
	}
	typ, ok := kindTypes[g.Kind]
	if !ok {
		return fmt.Errorf("array: cannot decode element kind %v", g.Kind)
	}
	if g.Segment != "" {
		if attacher == nil {
			return fmt.Errorf("array: no attacher registered for shared segment %s", g.Segment)
		}
		data, err := attacher(g.Segment)
		if err != nil {
			return err
		}
		*a = *Wrap(typ, g.Shape, data, g.Segment)
		return nil
	}
	*a = *New(typ, g.Shape...)
	if a.Size() > 0 {
		copy(a.bytes(), g.Data)
	}
	return nil
}
