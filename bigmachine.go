// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package volreg

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/volreg/proc"
	"github.com/spaolacci/murmur3"
	"golang.org/x/sync/errgroup"
)

// workersService is the name under which the worker store is
// installed on every machine started by StartMachines.
const workersService = "Workers"

// Register registers a descriptor variant for transport. Every
// concrete Worker type that is offered to a machine or fetched
// through a handle must be registered, typically from an init
// function in the package defining it.
func Register(w Worker) {
	gob.Register(w)
}

// workerBox carries a Worker across a bigmachine call; the indirection
// lets gob encode the interface value.
type workerBox struct {
	W Worker
}

// A WorkerStore is a bigmachine service that holds descriptors by
// content-hash key so that other processes can reference them through
// machine handles. Registration is idempotent: offering the same
// descriptor value twice yields the same key.
type WorkerStore struct {
	// Exported just satisfies gob's persnickety nature: we need at
	// least one exported field.
	Exported struct{}

	mu      sync.Mutex
	workers map[uint64]Worker
}

// Put stores the boxed descriptor and replies with its content-hash
// key.
func (s *WorkerStore) Put(ctx context.Context, box workerBox, key *uint64) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&box); err != nil {
		return err
	}
	*key = murmur3.Sum64(buf.Bytes())
	s.mu.Lock()
	if s.workers == nil {
		s.workers = make(map[uint64]Worker)
	}
	s.workers[*key] = box.W
	s.mu.Unlock()
	return nil
}

// Get replies with the descriptor stored under key.
func (s *WorkerStore) Get(ctx context.Context, key uint64, box *workerBox) error {
	s.mu.Lock()
	w := s.workers[key]
	s.mu.Unlock()
	if w == nil {
		return errors.E(errors.NotExist, fmt.Sprintf("volreg: no worker with key %016x", key))
	}
	box.W = w
	return nil
}

// A MachineHandle is a remote handle to a descriptor resident in a
// machine's worker store. MachineHandle implements Handle, so it can
// be passed to any protocol entry point in place of the descriptor
// itself.
type MachineHandle struct {
	// Machine is the machine hosting the descriptor.
	Machine *bigmachine.Machine
	// Key is the descriptor's content-hash key in the machine's
	// worker store.
	Key uint64
}

// Fetch implements Handle: it retrieves the referenced descriptor
// from the machine's worker store.
func (h *MachineHandle) Fetch(ctx context.Context) (Worker, error) {
	var box workerBox
	if err := h.Machine.Call(ctx, workersService+".Get", h.Key, &box); err != nil {
		return nil, err
	}
	return box.W, nil
}

// TargetProc returns the identity of the process hosting the
// descriptor, so that monitors built against a handle promote shared
// buffers for the right process without fetching.
func (h *MachineHandle) TargetProc() proc.ID {
	return proc.ID(h.Machine.Addr)
}

// Offer stores the descriptor w in machine m's worker store and
// returns a handle to it. The descriptor remains owned by the caller;
// the handle is only a reference.
func Offer(ctx context.Context, m *bigmachine.Machine, w Worker) (*MachineHandle, error) {
	var key uint64
	if err := m.Call(ctx, workersService+".Put", workerBox{w}, &key); err != nil {
		return nil, err
	}
	return &MachineHandle{Machine: m, Key: key}, nil
}

// StartMachines starts n machines with a worker store installed and
// waits until every one is running.
func StartMachines(ctx context.Context, b *bigmachine.B, n int) ([]*bigmachine.Machine, error) {
	machines, err := b.Start(ctx, n, bigmachine.Services{
		workersService: &WorkerStore{},
	})
	if err != nil {
		return nil, err
	}
	log.Printf("volreg: waiting for %d machines", len(machines))
	g, gctx := errgroup.WithContext(ctx)
	for _, m := range machines {
		m := m
		g.Go(func() error {
			select {
			case <-m.Wait(bigmachine.Running):
			case <-gctx.Done():
				return gctx.Err()
			}
			if err := m.Err(); err != nil {
				log.Printf("volreg: machine %s failed to start: %v", m.Addr, err)
				return err
			}
			log.Printf("volreg: machine %s is ready", m.Addr)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return machines, nil
}
