// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package volreg

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/grailbio/volreg/array"
	"github.com/grailbio/volreg/monitor"
	"github.com/grailbio/volreg/volume"
)

// testVolume returns a 2x2 spatial volume over 3 time indices.
func testVolume() *volume.Volume {
	data := array.Of([]uint16{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
		10, 11, 12,
	}, 2, 2, 3)
	return volume.New(data, "x", "y", "t")
}

// orderedDescriptor records the order of lifecycle calls.
type orderedDescriptor struct {
	Base
	calls []string
	fail  int // unit whose execution fails, or -1
}

func (d *orderedDescriptor) Initialize(ctx context.Context) error {
	d.calls = append(d.calls, "initialize")
	return nil
}

func (d *orderedDescriptor) Cleanup(ctx context.Context) error {
	d.calls = append(d.calls, "cleanup")
	return nil
}

func (d *orderedDescriptor) Execute(ctx context.Context, vol *volume.Volume, unit int, mon monitor.Monitor) (interface{}, error) {
	d.calls = append(d.calls, "execute")
	if unit == d.fail {
		return nil, errors.New("registration diverged")
	}
	return unit * 10, nil
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	s := NewSession()
	d := &orderedDescriptor{fail: -1}
	mon, err := s.NewMonitor(ctx, d, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	results, err := s.Run(ctx, d, testVolume(), nil, mon)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := results, []interface{}{0, 10, 20}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	want := []string{"initialize", "execute", "execute", "execute", "cleanup"}
	if got := d.calls; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestRunCleanupOnError(t *testing.T) {
	ctx := context.Background()
	s := NewSession()
	d := &orderedDescriptor{fail: 1}
	results, err := s.Run(ctx, d, testVolume(), nil, nil)
	if err == nil {
		t.Fatal("expected execute error")
	}
	if got, want := results, []interface{}{0}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	// Cleanup still runs, last, after the failed execute.
	want := []string{"initialize", "execute", "execute", "cleanup"}
	if got := d.calls; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestRunUnits(t *testing.T) {
	ctx := context.Background()
	s := NewSession()
	d := &orderedDescriptor{fail: -1}
	results, err := s.Run(ctx, d, testVolume(), []int{2, 0}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := results, []interface{}{20, 0}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestRunAll(t *testing.T) {
	ctx := context.Background()
	s := NewSession()
	vol := testVolume()
	refs := []Ref{
		&meanDescriptor{},
		&meanDescriptor{},
	}
	mons, err := s.NewMonitors(ctx, refs, []string{"mean"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	results, err := s.RunAll(ctx, refs, vol, []int{0}, mons)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(results), 2; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	// Unit 0 holds intensities 1, 4, 7, 10.
	for i, mon := range mons {
		if got, want := mon["mean"], 5.5; got != want {
			t.Errorf("monitor %d: got %v, want %v", i, got, want)
		}
	}
}

func TestRunAllMismatch(t *testing.T) {
	s := NewSession()
	_, err := s.RunAll(context.Background(), []Ref{&meanDescriptor{}}, testVolume(), nil, nil)
	if err == nil {
		t.Fatal("expected error for mismatched monitors")
	}
}

func TestUnits(t *testing.T) {
	if got, want := Units(testVolume()), []int{0, 1, 2}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	flat := volume.New(array.Of([]uint16{1, 2}, 2), "x")
	if got, want := Units(flat), []int{0}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
