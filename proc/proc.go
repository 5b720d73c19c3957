// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package proc names the processes that participate in a volreg
// computation. Process identities are threaded explicitly through APIs
// that need to distinguish the driver process from a worker's target
// process; there is no ambient "current process" global beyond Self,
// which callers use only to seed a driver session.
package proc

import (
	"fmt"
	"os"
	"sync"
)

// ID identifies a single OS process, typically as "host:pid" for local
// processes or a machine address for bigmachine-managed workers. IDs
// are compared only for equality.
type ID string

// None is the zero ID. Promotion and dispatch treat None as "no
// process", i.e., local.
const None ID = ""

var (
	selfOnce sync.Once
	self     ID
)

// Self returns the ID of the calling process. It is computed once and
// is stable for the lifetime of the process.
func Self() ID {
	selfOnce.Do(func() {
		host, err := os.Hostname()
		if err != nil {
			host = "localhost"
		}
		self = ID(fmt.Sprintf("%s:%d", host, os.Getpid()))
	})
	return self
}
