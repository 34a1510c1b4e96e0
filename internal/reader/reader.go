// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package reader provides random-access byte readers for object file
// parsing. A Reader is an io.ReaderAt with a size, a descriptive name,
// NUL-terminated string access, and cheap sub-views over windows of the
// underlying bytes.
package reader

import (
	"bytes"
	"io"
	"os"
	"unsafe"

	"github.com/pkg/errors"
)

// Reader is a random-access view over a sequence of bytes.
//
// Views returned by View share the underlying bytes with their parent.
// Reads past the end of a Reader fail with a read error; they never
// panic or return silently-truncated values.
type Reader interface {
	io.ReaderAt

	// ReadString returns the NUL-terminated string starting at off.
	// The NUL is not included in the result.
	ReadString(off int64) (string, error)

	// Size returns the total number of readable bytes.
	Size() int64

	// View returns a sub-reader over [off, off+length). The window is
	// clipped to the parent's size. name describes the view for
	// diagnostics.
	View(name string, off, length int64) Reader

	// Name describes this reader for diagnostics (typically a file
	// path, possibly decorated by wrapping readers).
	Name() string
}

// Obj reads a fixed-layout value of type T at off. T must be a
// trivially-copyable struct or scalar whose in-memory layout matches the
// on-disk layout (ELF structures are naturally aligned, so this holds
// for all of them on 64-bit targets).
func Obj[T any](r Reader, off int64) (T, error) {
	var v T
	if err := Into(r, off, &v); err != nil {
		return v, err
	}
	return v, nil
}

// Into reads a fixed-layout value at off into v.
func Into[T any](r Reader, off int64, v *T) error {
	buf := unsafe.Slice((*byte)(unsafe.Pointer(v)), unsafe.Sizeof(*v))
	if _, err := io.ReadFull(io.NewSectionReader(r, off, int64(len(buf))), buf); err != nil {
		return errors.Wrapf(err, "%s: read %d bytes at offset %#x", r.Name(), len(buf), off)
	}
	return nil
}

// readString is the shared ReadString implementation. It reads forward
// in small chunks until it finds a NUL or runs off the end of r.
func readString(r Reader, off int64) (string, error) {
	var sb bytes.Buffer
	var chunk [64]byte
	for {
		n, err := r.ReadAt(chunk[:], off)
		if n == 0 {
			if err == nil || err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return "", errors.Wrapf(err, "%s: unterminated string at offset %#x", r.Name(), off)
		}
		if i := bytes.IndexByte(chunk[:n], 0); i >= 0 {
			sb.Write(chunk[:i])
			return sb.String(), nil
		}
		sb.Write(chunk[:n])
		off += int64(n)
		if err != nil {
			return "", errors.Wrapf(err, "%s: unterminated string at offset %#x", r.Name(), off)
		}
	}
}

// Mem is a Reader over an in-memory byte slice.
type Mem struct {
	name string
	data []byte
}

// NewMem returns a Reader over data.
func NewMem(name string, data []byte) *Mem {
	return &Mem{name, data}
}

func (m *Mem) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(m.data)) {
		return 0, errors.Errorf("%s: read at invalid offset %#x", m.name, off)
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *Mem) ReadString(off int64) (string, error) { return readString(m, off) }
func (m *Mem) Size() int64                          { return int64(len(m.data)) }
func (m *Mem) Name() string                         { return m.name }

func (m *Mem) View(name string, off, length int64) Reader {
	return clipView(m, name, off, length)
}

// Null is a Reader with no content. All reads fail.
type Null struct{}

func (Null) ReadAt(p []byte, off int64) (int, error) {
	return 0, errors.New("read from null reader")
}

func (Null) ReadString(off int64) (string, error) {
	return "", errors.New("read from null reader")
}

func (Null) Size() int64                      { return 0 }
func (Null) Name() string                     { return "(null)" }
func (Null) View(string, int64, int64) Reader { return Null{} }

// view is a window over a parent Reader.
type view struct {
	name   string
	parent Reader
	off    int64
	size   int64
}

// clipView builds a view clipped to the parent's bounds.
func clipView(parent Reader, name string, off, length int64) Reader {
	if off < 0 {
		off = 0
	}
	if length < 0 {
		length = 0
	}
	if max := parent.Size(); off > max {
		off, length = max, 0
	} else if length > max-off {
		length = max - off
	}
	return &view{name, parent, off, length}
}

func (v *view) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > v.size {
		return 0, errors.Errorf("%s: read at invalid offset %#x", v.name, off)
	}
	if int64(len(p)) > v.size-off {
		p = p[:v.size-off]
		n, err := v.parent.ReadAt(p, v.off+off)
		if err == nil {
			err = io.EOF
		}
		return n, err
	}
	return v.parent.ReadAt(p, v.off+off)
}

func (v *view) ReadString(off int64) (string, error) { return readString(v, off) }
func (v *view) Size() int64                          { return v.size }
func (v *view) Name() string                         { return v.name }

func (v *view) View(name string, off, length int64) Reader {
	// Collapse nested views so deep section nesting doesn't build up
	// long delegation chains.
	if off < 0 {
		off = 0
	}
	if off > v.size {
		off, length = v.size, 0
	} else if length > v.size-off {
		length = v.size - off
	}
	return clipView(v.parent, name, v.off+off, length)
}

// File is a Reader over an open file.
type File struct {
	name string
	f    *os.File
	size int64
}

// OpenFile opens path for reading.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &File{path, f, st.Size()}, nil
}

// NewFile wraps an already-open file. The Reader takes ownership of f.
func NewFile(name string, f *os.File) (*File, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return &File{name, f, st.Size()}, nil
}

func (r *File) ReadAt(p []byte, off int64) (int, error) {
	n, err := r.f.ReadAt(p, off)
	if err != nil && err != io.EOF {
		err = errors.Wrapf(err, "%s: read at offset %#x", r.name, off)
	}
	return n, err
}

func (r *File) ReadString(off int64) (string, error) { return readString(r, off) }
func (r *File) Size() int64                          { return r.size }
func (r *File) Name() string                         { return r.name }
func (r *File) Close() error                         { return r.f.Close() }

func (r *File) View(name string, off, length int64) Reader {
	return clipView(r, name, off, length)
}
