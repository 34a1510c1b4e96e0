// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elf

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// Test fixtures are synthesized ELF64 images built in memory, in the
// spirit of testing/fstest: declare sections and segments, get bytes.

type sectionSpec struct {
	name    string
	typ     uint32
	flags   uint64
	addr    uint64
	data    []byte
	link    string // linked section, resolved by name
	entsize uint64
}

type phdrSpec struct {
	typ     uint32
	section string // back the segment with this section's file window
	vaddr   uint64 // used when section is ""
	memsz   uint64
	off     uint64
	filesz  uint64
}

type builder struct {
	machine  uint16
	secs     []sectionSpec
	phdrs    []phdrSpec
	shnumExt bool // write e_shnum=0 and put the count in header 0
}

func newBuilder() *builder {
	return &builder{machine: EM_X86_64}
}

func (b *builder) section(s sectionSpec) *builder {
	b.secs = append(b.secs, s)
	return b
}

func (b *builder) segment(p phdrSpec) *builder {
	b.phdrs = append(b.phdrs, p)
	return b
}

func le(t *testing.T, vs ...interface{}) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, v := range vs {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			t.Fatalf("binary.Write: %v", err)
		}
	}
	return buf.Bytes()
}

func (b *builder) build(t *testing.T) []byte {
	t.Helper()

	all := append([]sectionSpec{{typ: SHT_NULL}}, b.secs...)

	// Section name table, appended as the last section.
	var shstr bytes.Buffer
	shstr.WriteByte(0)
	nameOff := map[string]uint32{"": 0}
	addName := func(n string) {
		if _, ok := nameOff[n]; ok || n == "" {
			return
		}
		nameOff[n] = uint32(shstr.Len())
		shstr.WriteString(n)
		shstr.WriteByte(0)
	}
	for _, s := range all {
		addName(s.name)
	}
	addName(".shstrtab")
	all = append(all, sectionSpec{name: ".shstrtab", typ: SHT_STRTAB, data: shstr.Bytes()})

	index := make(map[string]int)
	for i, s := range all {
		if s.name != "" {
			index[s.name] = i
		}
	}

	// Layout: header, program headers, section bodies, section headers.
	offsets := make([]uint64, len(all))
	pos := uint64(ehdrSize + len(b.phdrs)*phdrSize)
	for i, s := range all {
		if len(s.data) == 0 {
			continue
		}
		pos = (pos + 7) &^ 7
		offsets[i] = pos
		pos += uint64(len(s.data))
	}
	shoff := (pos + 7) &^ 7

	img := make([]byte, shoff+uint64(len(all)*shdrSize))

	shnum := uint16(len(all))
	if b.shnumExt {
		shnum = 0
	}
	ehdr := Ehdr{
		Ident:     [16]byte{0x7f, 'E', 'L', 'F', ELFCLASS64, ELFDATA2LSB, EV_CURRENT},
		Type:      2, // ET_EXEC
		Machine:   b.machine,
		Version:   EV_CURRENT,
		Phoff:     ehdrSize,
		Shoff:     shoff,
		Ehsize:    ehdrSize,
		Phentsize: phdrSize,
		Phnum:     uint16(len(b.phdrs)),
		Shentsize: shdrSize,
		Shnum:     shnum,
		Shstrndx:  uint16(len(all) - 1),
	}
	copy(img, le(t, ehdr))

	for i, p := range b.phdrs {
		ph := Phdr{
			Type:   p.typ,
			Vaddr:  p.vaddr,
			Off:    p.off,
			Filesz: p.filesz,
			Memsz:  p.memsz,
		}
		if p.section != "" {
			idx, ok := index[p.section]
			if !ok {
				t.Fatalf("segment references unknown section %q", p.section)
			}
			ph.Off = offsets[idx]
			ph.Filesz = uint64(len(all[idx].data))
			if ph.Vaddr == 0 {
				ph.Vaddr = all[idx].addr
			}
			if ph.Memsz == 0 {
				ph.Memsz = ph.Filesz
			}
		}
		copy(img[ehdrSize+i*phdrSize:], le(t, ph))
	}

	for i, s := range all {
		copy(img[offsets[i]:], s.data)
		var link uint32
		if s.link != "" {
			idx, ok := index[s.link]
			if !ok {
				t.Fatalf("section %q links unknown section %q", s.name, s.link)
			}
			link = uint32(idx)
		}
		sh := Shdr{
			Name:    nameOff[s.name],
			Type:    s.typ,
			Flags:   s.flags,
			Addr:    s.addr,
			Off:     offsets[i],
			Size:    uint64(len(s.data)),
			Link:    link,
			Entsize: s.entsize,
		}
		if i == 0 && b.shnumExt {
			sh.Size = uint64(len(all))
		}
		copy(img[shoff+uint64(i*shdrSize):], le(t, sh))
	}
	return img
}

// strtab builds string table bytes and remembers offsets.
type strtab struct {
	buf bytes.Buffer
	off map[string]uint32
}

func newStrtab() *strtab {
	s := &strtab{off: map[string]uint32{"": 0}}
	s.buf.WriteByte(0)
	return s
}

func (s *strtab) add(name string) uint32 {
	if off, ok := s.off[name]; ok {
		return off
	}
	off := uint32(s.buf.Len())
	s.off[name] = off
	s.buf.WriteString(name)
	s.buf.WriteByte(0)
	return off
}

func (s *strtab) bytes() []byte { return s.buf.Bytes() }

func symBytes(t *testing.T, syms []Sym) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, s := range syms {
		buf.Write(le(t, s))
	}
	return buf.Bytes()
}

// buildSysvHash lays out a one-bucket classic hash table over symbol
// indexes [first, first+count).
func buildSysvHash(t *testing.T, first, count uint32) []byte {
	t.Helper()
	nchain := first + count
	words := []uint32{1, nchain, first} // nbucket, nchain, buckets[0]
	chains := make([]uint32, nchain)
	for i := first; i < nchain-1; i++ {
		chains[i] = i + 1
	}
	return le(t, words, chains)
}

// buildGnuHash lays out a one-bucket GNU hash table for names, which
// occupy symbol indexes [symOffset, symOffset+len(names)).
func buildGnuHash(t *testing.T, names []string, symOffset uint32) []byte {
	t.Helper()
	const bloomShift = 6
	var bloom uint64
	chains := make([]uint32, len(names))
	for i, n := range names {
		h := gnuHashOf(n)
		bloom |= 1 << (h % gnuHashBits)
		bloom |= 1 << ((h >> bloomShift) % gnuHashBits)
		chains[i] = h &^ 1
	}
	chains[len(chains)-1] |= 1
	hdr := gnuHashHeader{NBuckets: 1, SymOffset: symOffset, BloomSize: 1, BloomShift: bloomShift}
	return le(t, hdr, bloom, []uint32{symOffset}, chains)
}
