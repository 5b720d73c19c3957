// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package volreg

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
)

// A Ref refers to a computation descriptor: it is either a Worker
// itself or a Handle to one living in another process. Every protocol
// entry point accepts a Ref, so callers never branch on which they
// hold.
type Ref interface{}

// A Handle is an indirect reference to a descriptor that may live in
// a different process than the caller. A handle never implies
// ownership: the descriptor remains owned by the driver that built
// it.
type Handle interface {
	// Fetch retrieves the referenced descriptor from wherever it
	// lives.
	Fetch(ctx context.Context) (Worker, error)
}

// Resolve dereferences ref to a Worker. Handles are fetched and the
// result resolved again, so chains of handles are followed; a Worker
// is returned as is. This single rule is applied uniformly by all
// protocol entry points, with no entry-point-specific logic.
func Resolve(ctx context.Context, ref Ref) (Worker, error) {
	for {
		switch x := ref.(type) {
		case Handle:
			w, err := x.Fetch(ctx)
			if err != nil {
				return nil, err
			}
			ref = w
		case Worker:
			return x, nil
		default:
			return nil, errors.E(errors.Invalid, fmt.Sprintf("volreg: %T is neither a Worker nor a Handle", ref))
		}
	}
}
