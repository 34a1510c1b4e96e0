// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux || darwin

package reader

import (
	"os"

	"golang.org/x/sys/unix"
)

// Mmap is a Reader over a memory-mapped file.
type Mmap struct {
	Mem
	mapping []byte
}

// OpenMmap maps path read-only. Falls back on the caller to use
// OpenFile for zero-length or unmappable files.
func OpenMmap(path string) (*Mmap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return &Mmap{Mem{path, data}, data}, nil
}

func (r *Mmap) Close() error {
	if r.mapping == nil {
		return nil
	}
	err := unix.Munmap(r.mapping)
	r.mapping = nil
	r.data = nil
	return err
}
