// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package volreg

import (
	"context"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/volreg/monitor"
	"github.com/grailbio/volreg/proc"
	"github.com/grailbio/volreg/volume"
)

// A Device selects accelerator support to be loaded by
// LoadDeviceSupport, e.g. "cpu" or "cuda:0". Device selection logic
// itself is out of scope; the protocol carries only the selector.
type Device string

// Worker is the lifecycle contract every computation descriptor
// satisfies. A descriptor is a value fully specifying one
// computation's algorithm and parameters; concrete variants embed Base
// to inherit defaults for the optional entry points and override
// Execute, which is mandatory.
//
// Per descriptor and run, the intended order is Initialize once, then
// any number of Execute calls, then Cleanup last. The protocol itself
// does not enforce the order (Initialize and Cleanup default to
// no-ops, so most implementations have nothing to violate); Session.Run
// provides the canonical ordering for drivers that want it.
type Worker interface {
	// Initialize is called once before any unit-of-work execution. It
	// may allocate resources, such as a device context, tied to the
	// descriptor's target process.
	Initialize(ctx context.Context) error

	// Execute performs the computation for one unit of work: unit
	// selects a time slice of vol, and any requested results are
	// written into mon via the monitor package's update operations.
	// The result value is implementation-defined. Execute blocks for
	// the duration of the computation; cancellation beyond ctx is the
	// orchestrator's concern.
	Execute(ctx context.Context, vol *volume.Volume, unit int, mon monitor.Monitor) (interface{}, error)

	// Cleanup is called once after all unit-of-work execution for this
	// descriptor is finished; it releases anything Initialize
	// allocated.
	Cleanup(ctx context.Context) error

	// LoadDeviceSupport conditionally loads accelerator-specific
	// support code for the provided device selector.
	LoadDeviceSupport(ctx context.Context, device Device) error

	// TargetProc returns the process the descriptor is bound to: the
	// process in which its computation runs and with which shared
	// buffers are set up.
	TargetProc() proc.ID
}

// Base provides default implementations of the optional Worker entry
// points. Descriptor variants embed Base and override Execute;
// invoking Execute on a descriptor that never overrode it fails
// immediately with a NotSupported error.
type Base struct {
	// Proc is the process the descriptor is bound to. TargetProc
	// returns the calling process when Proc is unset, so purely local
	// descriptors need not populate it.
	Proc proc.ID
}

// Initialize implements Worker as a no-op.
func (Base) Initialize(ctx context.Context) error { return nil }

// Execute implements Worker by failing: descriptor variants must
// override it.
func (Base) Execute(ctx context.Context, vol *volume.Volume, unit int, mon monitor.Monitor) (interface{}, error) {
	return nil, errors.E(errors.NotSupported, "volreg: Execute not implemented")
}

// Cleanup implements Worker as a no-op.
func (Base) Cleanup(ctx context.Context) error { return nil }

// LoadDeviceSupport implements Worker as a no-op.
func (Base) LoadDeviceSupport(ctx context.Context, device Device) error { return nil }

// TargetProc implements Worker by returning the embedded Proc field,
// or the calling process when it is unset.
func (b Base) TargetProc() proc.ID {
	if b.Proc != proc.None {
		return b.Proc
	}
	return proc.Self()
}

// Initialize resolves ref and invokes the descriptor's Initialize.
func Initialize(ctx context.Context, ref Ref) error {
	w, err := Resolve(ctx, ref)
	if err != nil {
		return err
	}
	return w.Initialize(ctx)
}

// Execute resolves ref and invokes the descriptor's Execute for one
// unit of work. Errors from the implementation propagate unmodified;
// there are no retries at this layer.
func Execute(ctx context.Context, ref Ref, vol *volume.Volume, unit int, mon monitor.Monitor) (interface{}, error) {
	w, err := Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	return w.Execute(ctx, vol, unit, mon)
}

// Cleanup resolves ref and invokes the descriptor's Cleanup.
func Cleanup(ctx context.Context, ref Ref) error {
	w, err := Resolve(ctx, ref)
	if err != nil {
		return err
	}
	return w.Cleanup(ctx)
}

// LoadDeviceSupport resolves ref and invokes the descriptor's
// LoadDeviceSupport with the provided device selector.
func LoadDeviceSupport(ctx context.Context, ref Ref, device Device) error {
	w, err := Resolve(ctx, ref)
	if err != nil {
		return err
	}
	return w.LoadDeviceSupport(ctx, device)
}
