// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package volume represents image volumes as axis-named arrays. The
// package's single job in the dispatch protocol is to extract the
// sub-view of an input volume corresponding to one unit of work: one
// index along the volume's time axis.
package volume

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"strings"

	"github.com/grailbio/volreg/array"
)

// A Volume is an n-dimensional array whose dimensions are named by
// axes, e.g. "x", "y", "z", "t". Axis names are matched
// case-insensitively; "t" and "time" both denote the time axis.
type Volume struct {
	axes []string
	data *array.Array
}

// New returns a volume over the provided array with the provided axis
// names, one per dimension. New panics if the number of axes does not
// match the array's dimensionality.
func New(data *array.Array, axes ...string) *Volume {
	if len(axes) != data.NumDim() {
		panic(fmt.Sprintf("volume: %d axes for %d-d array", len(axes), data.NumDim()))
	}
	c := make([]string, len(axes))
	copy(c, axes)
	return &Volume{axes: c, data: data}
}

// Axes returns the volume's axis names. The returned slice must not
// be mutated.
func (v *Volume) Axes() []string { return v.axes }

// Data returns the array backing the volume.
func (v *Volume) Data() *array.Array { return v.data }

// TimeAxis returns the index of the volume's time axis, or -1 if the
// volume has no time axis.
func (v *Volume) TimeAxis() int {
	for i, ax := range v.axes {
		switch strings.ToLower(ax) {
		case "t", "time":
			return i
		}
	}
	return -1
}

// NumTime returns the length of the volume's time axis, or 1 if the
// volume has no time axis, so that a driver can always iterate units
// of work as 0..NumTime()-1.
func (v *Volume) NumTime() int {
	i := v.TimeAxis()
	if i < 0 {
		return 1
	}
	return v.data.Shape()[i]
}

// TimeSlice returns a view of the volume restricted to index k along
// its time axis, with the time axis dropped. The view aliases the
// volume's storage: implementations may write back through it. If the
// volume has no time axis, the volume itself is returned, for any k.
func (v *Volume) TimeSlice(k int) *Volume {
	i := v.TimeAxis()
	if i < 0 {
		return v
	}
	axes := make([]string, 0, len(v.axes)-1)
	for j, ax := range v.axes {
		if j != i {
			axes = append(axes, ax)
		}
	}
	return &Volume{axes: axes, data: v.data.Slice(i, k)}
}

// TimeSlice is the function form of (*Volume).TimeSlice.
func TimeSlice(v *Volume, k int) *Volume { return v.TimeSlice(k) }

// gobVolume is the wire representation of a Volume.
type gobVolume struct {
	Axes []string
	Data *array.Array
}

// GobEncode implements a custom gob encoder for volumes.
func (v *Volume) GobEncode() ([]byte, error) {
	var b bytes.Buffer
	err := gob.NewEncoder(&b).Encode(gobVolume{v.axes, v.data})
	return b.Bytes(), err
}

// GobDecode implements a custom gob decoder for volumes.
func (v *Volume) GobDecode(p []byte) error {
	var g gobVolume
	if err := gob.NewDecoder(bytes.NewReader(p)).Decode(&g); err != nil {
		return err
	}
	v.axes, v.data = g.Axes, g.Data
	return nil
}
