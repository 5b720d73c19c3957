// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package monitor implements the per-computation registry of values a
// driver wants reported back from a worker. A monitor is a mapping
// from field name to current value whose key set is fixed at creation:
// only values are overwritten thereafter. Field names are matched
// against descriptor struct fields case-insensitively, so a driver may
// watch "shift" on a descriptor that defines Shift.
//
// Monitors implement the soft error policy of the dispatch protocol:
// watching a field the descriptor does not define is silently ignored,
// and updating a name that is not a monitor key is a no-op. Callers
// may use key-presence checks to skip expensive-to-compute values, but
// correctness never requires it.
package monitor

import (
	"reflect"
	"strings"

	"github.com/grailbio/volreg/array"
	"github.com/grailbio/volreg/proc"
	"github.com/grailbio/volreg/shm"
)

// Values holds extra values to be inserted into a monitor at creation
// time, keyed by field name.
type Values map[string]interface{}

// A Monitor is a mapping from field name to the field's most recently
// reported value. Values are either scalars, Go slices, or
// *array.Array (possibly backed by a shared segment).
type Monitor map[string]interface{}

// New builds a monitor for the descriptor d. For each name in fields
// that d's type defines, the field's current value is copied into the
// monitor after shared-buffer promotion keyed by the descriptor's
// target process; names d does not define are silently skipped. Every
// key in extra is then inserted, likewise promoted. New returns an
// error only when a shared buffer cannot be allocated.
func New(d interface{}, fields []string, extra Values, local, target proc.ID) (Monitor, error) {
	m := make(Monitor)
	for _, name := range fields {
		v, ok := fieldValue(d, name)
		if !ok {
			continue
		}
		p, err := shm.Promote(v, local, target)
		if err != nil {
			return nil, err
		}
		m[name] = p
	}
	for name, v := range extra {
		p, err := shm.Promote(v, local, target)
		if err != nil {
			return nil, err
		}
		m[name] = p
	}
	return m, nil
}

// NewEach builds one monitor per descriptor, independently and in
// order. Each descriptor's target process is taken from its TargetProc
// method when it has one, and is local otherwise.
func NewEach(ds []interface{}, fields []string, extra Values, local proc.ID) ([]Monitor, error) {
	ms := make([]Monitor, len(ds))
	for i, d := range ds {
		target := local
		if t, ok := d.(interface{ TargetProc() proc.ID }); ok {
			target = t.TargetProc()
		}
		m, err := New(d, fields, extra, local, target)
		if err != nil {
			return nil, err
		}
		ms[i] = m
	}
	return ms, nil
}

// Update reports a new value for the named field. It is a no-op
// unless name is already a monitor key. When the stored value and v
// are both arrays of identical element type and shape, the stored
// array is overwritten element-wise in place, preserving its storage
// identity so that other holders, including the far side of a shared
// buffer, observe the update without re-fetching. Otherwise the
// stored value is replaced outright, which covers shape changes, kind
// changes, and scalars.
func (m Monitor) Update(name string, v interface{}) {
	old, ok := m[name]
	if !ok {
		return
	}
	if dst, src := asArray(old), asArray(v); dst != nil && src != nil &&
		dst.ElemType() == src.ElemType() && array.EqualShape(dst.Shape(), src.Shape()) {
		dst.CopyFrom(src)
		return
	}
	m[name] = v
}

// UpdateFrom updates the monitor in place from the descriptor d: for
// every monitor key whose field d's type defines, the field's current
// value is reported through Update. Keys d does not define are left
// untouched. Implementations call UpdateFrom once the results for the
// current unit of work are ready.
func UpdateFrom(m Monitor, d interface{}) {
	for name := range m {
		if v, ok := fieldValue(d, name); ok {
			m.Update(name, v)
		}
	}
}

// asArray views v as an array when it is array-shaped: *array.Array
// values are returned as is, Go slices are wrapped in a
// one-dimensional view aliasing their storage, and anything else
// yields nil.
func asArray(v interface{}) *array.Array {
	if a, ok := v.(*array.Array); ok {
		return a
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice {
		return array.Of(v)
	}
	return nil
}

// fieldValue returns the value of the struct field of d matching name
// case-insensitively, and whether d defines such a field. Embedded
// fields are visible under the usual Go promotion rules.
func fieldValue(d interface{}, name string) (interface{}, bool) {
	rv := reflect.ValueOf(d)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}
	fv := rv.FieldByNameFunc(func(n string) bool {
		return strings.EqualFold(n, name)
	})
	if !fv.IsValid() || !fv.CanInterface() {
		return nil, false
	}
	return fv.Interface(), true
}
