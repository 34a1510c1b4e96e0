// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package reader

import (
	"bytes"
	"compress/zlib"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ulikunitz/xz"
)

func TestMemReadAt(t *testing.T) {
	r := NewMem("mem", []byte("hello world"))
	if r.Size() != 11 {
		t.Fatalf("Size = %d, want 11", r.Size())
	}
	buf := make([]byte, 5)
	if _, err := r.ReadAt(buf, 6); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(buf) != "world" {
		t.Fatalf("ReadAt = %q", buf)
	}
	if _, err := r.ReadAt(buf, 20); err == nil {
		t.Fatalf("ReadAt past end succeeded")
	}
	if n, err := r.ReadAt(buf, 8); n != 3 || err != io.EOF {
		t.Fatalf("short ReadAt = %d, %v; want 3, EOF", n, err)
	}
}

func TestReadString(t *testing.T) {
	r := NewMem("mem", []byte("one\x00two\x00"))
	for off, want := range map[int64]string{0: "one", 4: "two", 2: "e"} {
		got, err := r.ReadString(off)
		if err != nil || got != want {
			t.Errorf("ReadString(%d) = %q, %v; want %q", off, got, err, want)
		}
	}
	if _, err := r.ReadString(100); err == nil {
		t.Errorf("ReadString past end succeeded")
	}
	if _, err := NewMem("m", []byte("unterminated")).ReadString(0); err == nil {
		t.Errorf("ReadString without NUL succeeded")
	}

	// Strings longer than the internal chunk size.
	long := strings.Repeat("x", 200)
	got, err := NewMem("m", append([]byte(long), 0)).ReadString(0)
	if err != nil || got != long {
		t.Errorf("long ReadString = %d bytes, %v", len(got), err)
	}
}

func TestView(t *testing.T) {
	r := NewMem("mem", []byte("0123456789"))
	v := r.View("v", 2, 5) // "23456"
	if v.Size() != 5 {
		t.Fatalf("view size = %d, want 5", v.Size())
	}
	buf := make([]byte, 3)
	if _, err := v.ReadAt(buf, 1); err != nil || string(buf) != "345" {
		t.Fatalf("view ReadAt = %q, %v", buf, err)
	}
	if _, err := v.ReadAt(buf, 5); err == nil {
		t.Fatalf("view read past window succeeded")
	}

	// Nested views address the original bytes.
	vv := v.View("vv", 2, 2) // "45"
	if got := mustReadAll(t, vv); got != "45" {
		t.Fatalf("nested view = %q, want 45", got)
	}

	// Windows are clipped to the parent.
	clipped := r.View("c", 8, 100)
	if clipped.Size() != 2 {
		t.Fatalf("clipped view size = %d, want 2", clipped.Size())
	}
	if out := r.View("o", 50, 10); out.Size() != 0 {
		t.Fatalf("out-of-range view size = %d, want 0", out.Size())
	}
}

func TestNull(t *testing.T) {
	var n Null
	if n.Size() != 0 {
		t.Fatalf("null size = %d", n.Size())
	}
	if _, err := n.ReadAt(make([]byte, 1), 0); err == nil {
		t.Fatalf("null read succeeded")
	}
	if _, err := n.ReadString(0); err == nil {
		t.Fatalf("null ReadString succeeded")
	}
	if v := n.View("v", 0, 10); v.Size() != 0 {
		t.Fatalf("null view size = %d", v.Size())
	}
}

func TestObj(t *testing.T) {
	type pair struct {
		A uint32
		B uint32
	}
	r := NewMem("mem", []byte{1, 0, 0, 0, 2, 0, 0, 0})
	p, err := Obj[pair](r, 0)
	if err != nil || p != (pair{1, 2}) {
		t.Fatalf("Obj = %+v, %v", p, err)
	}
	if _, err := Obj[pair](r, 4); err == nil {
		t.Fatalf("Obj past end succeeded")
	}
}

func TestFileReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(path, []byte("file contents"), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if r.Name() != path || r.Size() != 13 {
		t.Fatalf("Name=%q Size=%d", r.Name(), r.Size())
	}
	if got := mustReadAll(t, r.View("v", 5, 8)); got != "contents" {
		t.Fatalf("view = %q", got)
	}
}

func TestMmapReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(path, []byte("mapped bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := OpenMmap(path)
	if err != nil {
		t.Skipf("mmap unavailable: %v", err)
	}
	defer r.Close()
	if got := mustReadAll(t, r.View("v", 0, r.Size())); got != "mapped bytes" {
		t.Fatalf("mmap view = %q", got)
	}
}

func TestCache(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789abcdef"), 1024) // 16 KiB, 4 pages
	c := NewCache(NewMem("mem", data))
	if c.Size() != int64(len(data)) {
		t.Fatalf("Size = %d, want %d", c.Size(), len(data))
	}
	// Reads that span page boundaries.
	buf := make([]byte, 100)
	if _, err := c.ReadAt(buf, cachePageSize-50); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(buf, data[cachePageSize-50:cachePageSize+50]) {
		t.Fatalf("cross-page read mismatch")
	}
	// Repeated reads hit the cache and stay correct.
	for i := 0; i < 3; i++ {
		if _, err := c.ReadAt(buf, 10); err != nil || !bytes.Equal(buf, data[10:110]) {
			t.Fatalf("cached read %d mismatch (%v)", i, err)
		}
	}
	if n, err := c.ReadAt(make([]byte, 10), c.Size()-4); n != 4 || err != io.EOF {
		t.Fatalf("tail read = %d, %v; want 4, EOF", n, err)
	}
}

func TestInflate(t *testing.T) {
	payload := bytes.Repeat([]byte("squeeze me "), 100)
	var packed bytes.Buffer
	zw := zlib.NewWriter(&packed)
	zw.Write(payload)
	zw.Close()

	r := NewInflate("z", NewMem("packed", packed.Bytes()), int64(len(payload)))
	if r.Size() != int64(len(payload)) {
		t.Fatalf("Size = %d, want %d", r.Size(), len(payload))
	}
	if got := mustReadAll(t, r.View("v", 0, int64(len(payload)))); got != string(payload) {
		t.Fatalf("inflated content mismatch (%d bytes)", len(got))
	}

	// Corrupt streams surface read errors.
	bad := NewInflate("bad", NewMem("junk", []byte("not zlib at all")), 10)
	if _, err := bad.ReadAt(make([]byte, 1), 0); err == nil {
		t.Fatalf("read from corrupt stream succeeded")
	}
}

func TestLzma(t *testing.T) {
	payload := bytes.Repeat([]byte("xz me "), 200)
	var packed bytes.Buffer
	xw, err := xz.NewWriter(&packed)
	if err != nil {
		t.Fatal(err)
	}
	xw.Write(payload)
	xw.Close()

	r := NewLzma("x", NewMem("packed", packed.Bytes()))
	if r.Size() != int64(len(payload)) {
		t.Fatalf("Size = %d, want %d", r.Size(), len(payload))
	}
	if got := mustReadAll(t, r.View("v", 0, r.Size())); got != string(payload) {
		t.Fatalf("decompressed content mismatch (%d bytes)", len(got))
	}
}

func mustReadAll(t *testing.T, r Reader) string {
	t.Helper()
	buf := make([]byte, r.Size())
	if _, err := io.ReadFull(io.NewSectionReader(r, 0, r.Size()), buf); err != nil {
		t.Fatalf("read %s: %v", r.Name(), err)
	}
	return string(buf)
}
