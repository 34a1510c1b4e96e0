// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package reader

import (
	"compress/zlib"
	"io"

	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"
)

// lazy materializes decompressed bytes on first read. The stream is
// decoded exactly once; later reads hit the in-memory copy.
type lazy struct {
	name string
	fill func() ([]byte, error)
	data []byte
	err  error
	done bool
}

func (l *lazy) materialize() error {
	if !l.done {
		l.done = true
		l.data, l.err = l.fill()
		l.fill = nil
	}
	return l.err
}

func (l *lazy) ReadAt(p []byte, off int64) (int, error) {
	if err := l.materialize(); err != nil {
		return 0, err
	}
	if off < 0 || off > int64(len(l.data)) {
		return 0, errors.Errorf("%s: read at invalid offset %#x", l.name, off)
	}
	n := copy(p, l.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (l *lazy) ReadString(off int64) (string, error) { return readString(l, off) }
func (l *lazy) Name() string                         { return l.name }

func (l *lazy) Size() int64 {
	if l.materialize() != nil {
		return 0
	}
	return int64(len(l.data))
}

func (l *lazy) View(name string, off, length int64) Reader {
	return clipView(l, name, off, length)
}

// Inflate is a Reader that decompresses a zlib stream held in src.
// size is the declared decompressed length.
type Inflate struct {
	lazy
	declared int64
}

// NewInflate returns a Reader over the inflated contents of src.
func NewInflate(name string, src Reader, size int64) *Inflate {
	r := &Inflate{declared: size}
	r.lazy.name = name
	r.lazy.fill = func() ([]byte, error) {
		zr, err := zlib.NewReader(io.NewSectionReader(src, 0, src.Size()))
		if err != nil {
			return nil, errors.Wrapf(err, "%s: inflate", name)
		}
		defer zr.Close()
		data := make([]byte, size)
		if _, err := io.ReadFull(zr, data); err != nil {
			return nil, errors.Wrapf(err, "%s: inflate %d bytes", name, size)
		}
		return data, nil
	}
	return r
}

// Size reports the declared decompressed size without forcing
// decompression.
func (r *Inflate) Size() int64 { return r.declared }

// Lzma is a Reader that decompresses an XZ/LZMA stream held in src.
// The decompressed size is not known until the stream is decoded.
type Lzma struct {
	lazy
}

// NewLzma returns a Reader over the decompressed contents of src.
func NewLzma(name string, src Reader) *Lzma {
	r := &Lzma{}
	r.lazy.name = name
	r.lazy.fill = func() ([]byte, error) {
		xr, err := xz.NewReader(io.NewSectionReader(src, 0, src.Size()))
		if err != nil {
			return nil, errors.Wrapf(err, "%s: xz", name)
		}
		data, err := io.ReadAll(xr)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: xz", name)
		}
		return data, nil
	}
	return r
}
