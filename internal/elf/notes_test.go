// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elf

import (
	"bytes"
	"io"
	"testing"

	"github.com/elfscope/elfscope/internal/reader"
)

func noteBytes(t *testing.T, name string, typ uint32, desc []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	namez := append([]byte(name), 0)
	buf.Write(le(t, Nhdr{Namesz: uint32(len(namez)), Descsz: uint32(len(desc)), Type: typ}))
	buf.Write(namez)
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
	buf.Write(desc)
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

var testBuildID = []byte{0xab, 0xcd, 0xef, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d}

func notesImage(t *testing.T) *Object {
	t.Helper()
	var notes bytes.Buffer
	notes.Write(noteBytes(t, "GNU", NT_GNU_BUILD_ID, testBuildID))
	notes.Write(noteBytes(t, "stapsdt", 3, []byte{1, 2, 3, 4}))

	img := newBuilder().
		section(sectionSpec{name: ".note", typ: SHT_NOTE, addr: 0x200, data: notes.Bytes()}).
		segment(phdrSpec{typ: PT_NOTE, section: ".note", vaddr: 0x200}).
		build(t)
	obj, err := New(&Context{}, reader.NewMem("test.elf", img), false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return obj
}

func TestNotesIteration(t *testing.T) {
	obj := notesImage(t)

	ns := obj.Notes()
	if !ns.Next() {
		t.Fatalf("no first note")
	}
	n := ns.Note()
	if n.Name() != "GNU" || n.Type() != NT_GNU_BUILD_ID {
		t.Fatalf("first note = %q type %d", n.Name(), n.Type())
	}
	desc := n.Data()
	if desc.Size() != int64(len(testBuildID)) {
		t.Fatalf("descriptor size = %d, want %d", desc.Size(), len(testBuildID))
	}
	got := make([]byte, desc.Size())
	if _, err := io.ReadFull(io.NewSectionReader(desc, 0, desc.Size()), got); err != nil {
		t.Fatalf("read descriptor: %v", err)
	}
	if !bytes.Equal(got, testBuildID) {
		t.Fatalf("descriptor = %x, want %x", got, testBuildID)
	}

	if !ns.Next() {
		t.Fatalf("no second note")
	}
	if n := ns.Note(); n.Name() != "stapsdt" || n.Header().Descsz != 4 {
		t.Fatalf("second note = %q descsz %d", n.Name(), n.Header().Descsz)
	}

	if ns.Next() {
		t.Fatalf("unexpected third note: %q", ns.Note().Name())
	}
}

func TestNotesAcrossSegments(t *testing.T) {
	// Two PT_NOTE segments; iteration visits them in address order
	// and restarts at offset 0 in the second.
	img := newBuilder().
		section(sectionSpec{name: ".note.a", typ: SHT_NOTE, addr: 0x300, data: noteBytes(t, "GNU", NT_GNU_BUILD_ID, []byte{1, 2})}).
		section(sectionSpec{name: ".note.b", typ: SHT_NOTE, addr: 0x200, data: noteBytes(t, "FreeBSD", 1, []byte{9})}).
		segment(phdrSpec{typ: PT_NOTE, section: ".note.a", vaddr: 0x300}).
		segment(phdrSpec{typ: PT_NOTE, section: ".note.b", vaddr: 0x200}).
		build(t)
	obj, err := New(&Context{}, reader.NewMem("test.elf", img), false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var names []string
	for ns := obj.Notes(); ns.Next(); {
		names = append(names, ns.Note().Name())
	}
	// Program headers are sorted by p_vaddr, so .note.b comes first.
	if len(names) != 2 || names[0] != "FreeBSD" || names[1] != "GNU" {
		t.Fatalf("notes = %v, want [FreeBSD GNU]", names)
	}
}

func TestBuildID(t *testing.T) {
	obj := notesImage(t)
	id, ok := obj.BuildID()
	if !ok || !bytes.Equal(id, testBuildID) {
		t.Fatalf("BuildID = %x, %v; want %x", id, ok, testBuildID)
	}
}

func TestNoNotes(t *testing.T) {
	img := newBuilder().build(t)
	obj, err := New(&Context{}, reader.NewMem("test.elf", img), false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if obj.Notes().Next() {
		t.Fatalf("unexpected note in empty image")
	}
	if _, ok := obj.BuildID(); ok {
		t.Fatalf("unexpected build ID")
	}
}
