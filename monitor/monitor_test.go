// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package monitor

import (
	"reflect"
	"sort"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/grailbio/volreg/array"
	"github.com/grailbio/volreg/proc"
)

const local = proc.ID("driver:1")

type affineDescriptor struct {
	Shift   []float64
	Quality float64
	Iters   int
	hidden  string
}

func keys(m Monitor) []string {
	var ks []string
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}

func TestNewKeySet(t *testing.T) {
	d := &affineDescriptor{Shift: []float64{0, 0, 0}, Quality: 0.5}
	m, err := New(d, []string{"shift", "quality", "mismatch", "nosuchfield"}, nil, local, local)
	if err != nil {
		t.Fatal(err)
	}
	// Only the requested names the descriptor defines appear as keys.
	if got, want := keys(m), []string{"quality", "shift"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := m["quality"], 0.5; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNewExtra(t *testing.T) {
	d := &affineDescriptor{}
	m, err := New(d, []string{"iters"}, Values{"elapsed": 0.0}, local, local)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := keys(m), []string{"elapsed", "iters"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNewUnexported(t *testing.T) {
	d := &affineDescriptor{hidden: "x"}
	m, err := New(d, []string{"hidden"}, nil, local, local)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(m), 0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestUpdateMissingKey(t *testing.T) {
	m := Monitor{"quality": 0.5}
	m.Update("shift", []float64{1, 2, 3})
	if got, want := keys(m), []string{"quality"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := m["quality"], 0.5; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestUpdateInPlace(t *testing.T) {
	stored := []float64{1, 2, 3}
	m := Monitor{"shift": stored}
	m.Update("shift", []float64{4, 5, 6})
	// Same storage, new values.
	if got, want := reflect.ValueOf(m["shift"]).Pointer(), reflect.ValueOf(stored).Pointer(); got != want {
		t.Error("same-shape update did not preserve storage identity")
	}
	if got, want := stored, []float64{4, 5, 6}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestUpdateInPlaceArray(t *testing.T) {
	stored := array.Of([]float64{1, 2, 3, 4}, 2, 2)
	m := Monitor{"warp": stored}
	m.Update("warp", array.Of([]float64{5, 6, 7, 8}, 2, 2))
	if m["warp"].(*array.Array) != stored {
		t.Error("same-shape update did not preserve the stored array")
	}
	if got, want := stored.Index(1, 1).Float(), 8.0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestUpdateReplaces(t *testing.T) {
	stored := []float64{1, 2, 3}
	m := Monitor{"shift": stored, "quality": 0.5}
	// Shape change: replaced outright.
	m.Update("shift", []float64{1, 2, 3, 4})
	if got, want := reflect.ValueOf(m["shift"]).Pointer(), reflect.ValueOf(stored).Pointer(); got == want {
		t.Error("shape-changing update did not replace the stored value")
	}
	if got, want := m["shift"].([]float64), []float64{1, 2, 3, 4}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	// Kind change and scalars: replaced outright.
	m.Update("shift", "diverged")
	if got, want := m["shift"], "diverged"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	m.Update("quality", 0.9)
	if got, want := m["quality"], 0.9; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestUpdateFrom(t *testing.T) {
	d := &affineDescriptor{Shift: []float64{0, 0, 0}, Quality: 0}
	m, err := New(d, []string{"shift", "quality"}, nil, local, local)
	if err != nil {
		t.Fatal(err)
	}
	stored := m["shift"].([]float64)
	d.Shift = []float64{7, 8, 9}
	d.Quality = 0.25
	d.Iters = 11 // not watched; must not appear
	UpdateFrom(m, d)
	if got, want := keys(m), []string{"quality", "shift"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := m["quality"], 0.25; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := reflect.ValueOf(m["shift"]).Pointer(), reflect.ValueOf(stored).Pointer(); got != want {
		t.Error("update through descriptor did not preserve storage identity")
	}
	if got, want := stored, []float64{7, 8, 9}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

// TestLocalNoPromotion checks the end-to-end local case: with target
// equal to the local process, the monitor shares storage with the
// descriptor's own fields.
func TestLocalNoPromotion(t *testing.T) {
	d := &affineDescriptor{Quality: 0, Shift: []float64{0, 0, 0}}
	m, err := New(d, []string{"quality", "shift", "iters2"}, nil, local, local)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := keys(m), []string{"quality", "shift"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := reflect.ValueOf(m["shift"]).Pointer(), reflect.ValueOf(d.Shift).Pointer(); got != want {
		t.Error("monitor does not share storage with the descriptor field")
	}
}

func TestNewEach(t *testing.T) {
	ds := []interface{}{
		&affineDescriptor{Quality: 0.1},
		&affineDescriptor{Quality: 0.2},
		&affineDescriptor{Quality: 0.3},
	}
	ms, err := NewEach(ds, []string{"quality"}, nil, local)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(ms), 3; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i, want := range []float64{0.1, 0.2, 0.3} {
		if got := ms[i]["quality"]; got != want {
			t.Errorf("monitor %d: got %v, want %v", i, got, want)
		}
	}
}

// TestFuzzedKeySet checks the key-set property over randomized
// descriptor contents: requested names that the descriptor defines
// always appear, and nothing else ever does.
func TestFuzzedKeySet(t *testing.T) {
	fz := fuzz.New().NilChance(0)
	for i := 0; i < 100; i++ {
		var d affineDescriptor
		fz.Fuzz(&d)
		m, err := New(&d, []string{"shift", "quality", "iters", "warp"}, nil, local, local)
		if err != nil {
			t.Fatal(err)
		}
		if got, want := keys(m), []string{"iters", "quality", "shift"}; !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		if got, want := m["iters"], d.Iters; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}
