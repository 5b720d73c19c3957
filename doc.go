// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
Package volreg implements the coordination contract between a driver
process and a set of remote worker processes that each perform a
long-running computation (in our case, image registration on one
time slice of a large image volume) on behalf of the driver. The
driver knows nothing about any particular registration algorithm; it
knows only how to dispatch work to a worker, ask a worker to
initialize and later clean up, declare which named values produced
during the computation should be reported back, and receive those
values without re-copying large arrays across process boundaries.

Algorithm implementations are descriptors: values that embed Base and
override Execute (and optionally Initialize, Cleanup, TargetProc, and
LoadDeviceSupport). The driver builds a monitor per descriptor naming
the fields it wants collected, then drives the lifecycle

	Initialize, then Execute (per unit of work), then Cleanup

either directly or through a Session. Every entry point accepts a
descriptor or a remote handle to one interchangeably; handles are
resolved by a single fetch-then-delegate rule. Distribution uses
bigmachine: descriptors registered with a machine's worker store are
referenced by MachineHandle, and monitor fields promoted to shared
buffers (package shm) cross back to the driver without serialization.

Volreg jobs can run locally; the details of distribution are handled
by the combination of bigmachine and the shm package.
*/
package volreg
