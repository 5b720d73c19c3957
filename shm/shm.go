// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package shm implements shared-memory buffers for volreg. A shared
// buffer backs an array-typed monitor field that is visible to both
// the driver process and a worker's target process, so that results
// cross the process boundary without serialization. Segments are
// memory-mapped files under /dev/shm; each segment is registered as
// visible to exactly two processes, the allocator and the target.
package shm

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/volreg/array"
	"github.com/grailbio/volreg/proc"
	"golang.org/x/sys/unix"
)

// Dir is the directory in which segment files are created. It is a
// variable to let tests redirect segments to a private tmpfs.
var Dir = "/dev/shm"

func init() {
	array.RegisterAttacher(Attach)
}

// A segment is one mapped shared-memory region known to this process.
type segment struct {
	name  string
	data  []byte
	procs []proc.ID // processes the segment is visible to; nil when attached
}

var (
	mu       sync.Mutex
	segments = map[string]*segment{}
)

// create allocates a new segment of the provided size, visible to the
// provided processes.
func create(size int, procs ...proc.ID) (*segment, error) {
	name := "volreg-" + uuid.New().String()
	path := filepath.Join(Dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		return nil, errors.E(err, "shm: create segment")
	}
	defer f.Close()
	if err := f.Truncate(int64(size)); err != nil {
		os.Remove(path)
		return nil, errors.E(err, "shm: size segment")
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		os.Remove(path)
		return nil, errors.E(err, "shm: map segment")
	}
	seg := &segment{name: name, data: data, procs: procs}
	mu.Lock()
	segments[name] = seg
	mu.Unlock()
	return seg, nil
}

// Attach maps the named segment into the calling process and returns
// its bytes. Attaching a segment already mapped by this process
// returns the existing mapping, so that arrays decoded repeatedly
// alias the same storage.
func Attach(name string) ([]byte, error) {
	mu.Lock()
	if seg, ok := segments[name]; ok {
		mu.Unlock()
		return seg.data, nil
	}
	mu.Unlock()
	path := filepath.Join(Dir, name)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.E(errors.NotExist, "shm: attach "+name, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, errors.E(err, "shm: attach "+name)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.E(err, "shm: map "+name)
	}
	mu.Lock()
	// Recheck under the lock; a concurrent attach may have won.
	if seg, ok := segments[name]; ok {
		mu.Unlock()
		unix.Munmap(data)
		return seg.data, nil
	}
	segments[name] = &segment{name: name, data: data}
	mu.Unlock()
	return data, nil
}

// VisibleTo tells whether the named segment is registered in this
// process as visible to process p.
func VisibleTo(name string, p proc.ID) bool {
	mu.Lock()
	seg, ok := segments[name]
	mu.Unlock()
	if !ok {
		return false
	}
	for _, q := range seg.procs {
		if q == p {
			return true
		}
	}
	return false
}

// Release unmaps the named segment and removes its backing file. It
// is the driver's responsibility to release segments once the monitor
// values they back are no longer needed; arrays wrapping a released
// segment must not be used afterwards.
func Release(name string) error {
	mu.Lock()
	seg, ok := segments[name]
	delete(segments, name)
	mu.Unlock()
	if !ok {
		return errors.E(errors.NotExist, "shm: release "+name)
	}
	err := unix.Munmap(seg.data)
	if rerr := os.Remove(filepath.Join(Dir, seg.name)); err == nil {
		err = rerr
	}
	return err
}
