// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package volreg

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/status"
	"github.com/grailbio/volreg/monitor"
	"github.com/grailbio/volreg/proc"
	"github.com/grailbio/volreg/volume"
	"golang.org/x/sync/errgroup"
)

// A Session hosts driver-side state for dispatching computations: the
// identity of the local process (used to decide when monitor fields
// need shared-buffer promotion) and an optional status group for
// progress reporting. Sessions are cheap; a driver typically creates
// one per run.
type Session struct {
	local  proc.ID
	status *status.Group
}

// An Option represents a session configuration parameter.
type Option func(*Session)

// WithProc sets the session's local process identity. The default is
// proc.Self.
func WithProc(p proc.ID) Option {
	return func(s *Session) { s.local = p }
}

// WithStatus causes the session to report per-descriptor run progress
// to the provided status group.
func WithStatus(g *status.Group) Option {
	return func(s *Session) { s.status = g }
}

// NewSession creates a new driver session with the provided options.
func NewSession(options ...Option) *Session {
	s := &Session{local: proc.Self()}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Proc returns the session's local process identity.
func (s *Session) Proc() proc.ID { return s.local }

// NewMonitor builds a monitor for the descriptor referenced by ref,
// watching the named fields plus the keys of extra. Promotion is
// keyed by the descriptor's target process, read from ref without
// fetching when the ref itself knows its target (descriptors and
// machine handles both do).
func (s *Session) NewMonitor(ctx context.Context, ref Ref, fields []string, extra monitor.Values) (monitor.Monitor, error) {
	target := s.local
	if t, ok := ref.(interface{ TargetProc() proc.ID }); ok {
		target = t.TargetProc()
	}
	w, err := Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	return monitor.New(w, fields, extra, s.local, target)
}

// NewMonitors builds one monitor per descriptor, independently and in
// order.
func (s *Session) NewMonitors(ctx context.Context, refs []Ref, fields []string, extra monitor.Values) ([]monitor.Monitor, error) {
	ms := make([]monitor.Monitor, len(refs))
	for i, ref := range refs {
		m, err := s.NewMonitor(ctx, ref, fields, extra)
		if err != nil {
			return nil, err
		}
		ms[i] = m
	}
	return ms, nil
}

// Units returns the canonical unit-of-work indices for the provided
// volume: one per time index, or the single unit 0 when the volume
// has no time axis.
func Units(vol *volume.Volume) []int {
	units := make([]int, vol.NumTime())
	for i := range units {
		units[i] = i
	}
	return units
}

// Run drives one descriptor through its full lifecycle: resolve ref
// once, Initialize, Execute for each unit in order, then Cleanup
// last. Cleanup runs even when an Execute fails; the first error
// wins. A nil units slice means every unit of vol, per Units. The
// per-unit results are returned in unit order, truncated at the first
// failure. Errors from the implementation propagate unmodified; Run
// performs no retries.
func (s *Session) Run(ctx context.Context, ref Ref, vol *volume.Volume, units []int, mon monitor.Monitor) (results []interface{}, err error) {
	w, err := Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	var task *status.Task
	if s.status != nil {
		task = s.status.Start(fmt.Sprintf("worker %s", w.TargetProc()))
		defer task.Done()
	}
	if units == nil {
		units = Units(vol)
	}
	if err = w.Initialize(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if cerr := w.Cleanup(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	results = make([]interface{}, 0, len(units))
	for i, unit := range units {
		if task != nil {
			task.Printf("unit %d (%d/%d)", unit, i+1, len(units))
		}
		var res interface{}
		res, err = w.Execute(ctx, vol, unit, mon)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// RunAll drives several descriptors concurrently, one goroutine per
// descriptor, each over the same volume and unit indices but with its
// own monitor. The protocol's per-descriptor calls remain strictly
// sequential; concurrency exists only across descriptors. The first
// error cancels the remaining runs.
func (s *Session) RunAll(ctx context.Context, refs []Ref, vol *volume.Volume, units []int, mons []monitor.Monitor) ([][]interface{}, error) {
	if len(mons) != len(refs) {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("volreg: %d monitors for %d descriptors", len(mons), len(refs)))
	}
	results := make([][]interface{}, len(refs))
	g, ctx := errgroup.WithContext(ctx)
	for i := range refs {
		i := i
		g.Go(func() error {
			res, err := s.Run(ctx, refs[i], vol, units, mons[i])
			results[i] = res
			return err
		})
	}
	return results, g.Wait()
}
