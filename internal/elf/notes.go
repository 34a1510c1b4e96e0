// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elf

import (
	"io"

	"github.com/elfscope/elfscope/internal/reader"
)

// NoteDesc is one entry of a PT_NOTE segment.
type NoteDesc struct {
	hdr Nhdr
	io  reader.Reader // window from the note header to the segment end
}

// Header returns the fixed note header.
func (n NoteDesc) Header() Nhdr { return n.hdr }

// Type returns the note type.
func (n NoteDesc) Type() uint32 { return n.hdr.Type }

// Name returns the note name, which starts just past the header.
func (n NoteDesc) Name() string {
	s, err := n.io.ReadString(nhdrSize)
	if err != nil {
		return ""
	}
	return s
}

// Data returns a reader over the descriptor bytes.
func (n NoteDesc) Data() reader.Reader {
	return n.io.View("note descriptor", roundup4(nhdrSize+int64(n.hdr.Namesz)), int64(n.hdr.Descsz))
}

// Notes iterates over every note in every PT_NOTE segment, in segment
// address order and file order within each segment. Forward-only and
// non-restartable, in the manner of bufio.Scanner:
//
//	for ns := obj.Notes(); ns.Next(); {
//		n := ns.Note()
//		...
//	}
type Notes struct {
	io      reader.Reader
	phdrs   []Phdr
	seg     int
	segIO   reader.Reader
	off     int64
	cur     NoteDesc
	started bool
}

// Notes returns an iterator over the image's notes.
func (o *Object) Notes() *Notes {
	return &Notes{io: o.io, phdrs: o.phdrs[PT_NOTE]}
}

// Note returns the current note. Valid only after a true Next.
func (ns *Notes) Note() NoteDesc { return ns.cur }

// Next advances to the next note, returning false when every PT_NOTE
// segment is exhausted.
func (ns *Notes) Next() bool {
	if !ns.started {
		ns.started = true
		ns.startSegment()
	} else {
		next := roundup4(ns.off + nhdrSize + int64(ns.cur.hdr.Namesz))
		next = roundup4(next + int64(ns.cur.hdr.Descsz))
		if next >= int64(ns.phdrs[ns.seg].Filesz) {
			ns.seg++
			ns.startSegment()
		} else {
			ns.off = next
		}
	}
	return ns.read()
}

func (ns *Notes) startSegment() {
	ns.off = 0
	if ns.seg < len(ns.phdrs) {
		ph := ns.phdrs[ns.seg]
		ns.segIO = ns.io.View("note segment", int64(ph.Off), int64(ph.Filesz))
	}
}

// read parses the note at the current position, skipping to later
// segments while the current one has no room for a header.
func (ns *Notes) read() bool {
	for ns.seg < len(ns.phdrs) {
		if ns.off+nhdrSize <= int64(ns.phdrs[ns.seg].Filesz) {
			hdr, err := reader.Obj[Nhdr](ns.segIO, ns.off)
			if err == nil {
				ns.cur = NoteDesc{hdr, ns.segIO.View("note", ns.off, ns.segIO.Size()-ns.off)}
				return true
			}
		}
		ns.seg++
		ns.startSegment()
	}
	return false
}

// BuildID returns the GNU build-id note descriptor bytes, if present.
func (o *Object) BuildID() ([]byte, bool) {
	for ns := o.Notes(); ns.Next(); {
		n := ns.Note()
		if n.Name() != "GNU" || n.Type() != NT_GNU_BUILD_ID {
			continue
		}
		data := n.Data()
		id := make([]byte, data.Size())
		if _, err := io.ReadFull(io.NewSectionReader(data, 0, data.Size()), id); err != nil {
			return nil, false
		}
		return id, true
	}
	return nil, false
}
