// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package elf parses ELF images on demand and resolves symbols by name
// or by runtime address, including across auxiliary debug images. It is
// the substrate for stack tracing: consumers hand it a reader over an
// ELF image and ask it to translate instruction pointers into symbols
// and to locate sections such as .debug_info or .dynamic.
//
// Only 64-bit little-endian images are accepted. On-disk structures
// follow the ELF gABI bit for bit.
package elf

// ELF identification.
const (
	EI_CLASS   = 4
	EI_DATA    = 5
	EI_VERSION = 6

	ELFCLASS64  = 2
	ELFDATA2LSB = 1
	EV_CURRENT  = 1
)

// Program header types.
const (
	PT_LOAD   = 1
	PT_INTERP = 3
	PT_NOTE   = 4
)

// Section header types.
const (
	SHT_NULL        = 0
	SHT_PROGBITS    = 1
	SHT_SYMTAB      = 2
	SHT_STRTAB      = 3
	SHT_HASH        = 5
	SHT_DYNAMIC     = 6
	SHT_NOTE        = 7
	SHT_NOBITS      = 8
	SHT_DYNSYM      = 11
	SHT_GNU_HASH    = 0x6ffffff6
	SHT_GNU_verdef  = 0x6ffffffd
	SHT_GNU_verneed = 0x6ffffffe
	SHT_GNU_versym  = 0x6fffffff
)

// Section flags.
const (
	SHF_ALLOC      = 0x2
	SHF_COMPRESSED = 0x800
)

// Special section indexes.
const (
	SHN_UNDEF     = 0
	SHN_LORESERVE = 0xff00
	SHN_XINDEX    = 0xffff
)

// Dynamic tags.
const (
	DT_NULL       = 0
	DT_VERDEFNUM  = 0x6ffffffc
	DT_VERNEEDNUM = 0x6fffffff
)

// Symbol types (low nibble of st_info).
const (
	STT_NOTYPE = 0
	STT_OBJECT = 1
	STT_FUNC   = 2
)

// STN_UNDEF terminates SysV hash chains.
const STN_UNDEF = 0

// Compression algorithms for SHF_COMPRESSED sections.
const ELFCOMPRESS_ZLIB = 1

// GNU note types.
const NT_GNU_BUILD_ID = 3

// Machine types the tooling knows how to disassemble.
const (
	EM_386     = 3
	EM_X86_64  = 62
	EM_AARCH64 = 183
)

// Ehdr is the ELF64 file header.
type Ehdr struct {
	Ident     [16]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint64
	Phoff     uint64
	Shoff     uint64
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

// IsELF reports whether the header carries the ELF magic.
func (h *Ehdr) IsELF() bool {
	return h.Ident[0] == 0x7f && h.Ident[1] == 'E' && h.Ident[2] == 'L' && h.Ident[3] == 'F'
}

// Phdr is an ELF64 program header.
type Phdr struct {
	Type   uint32
	Flags  uint32
	Off    uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

// Shdr is an ELF64 section header.
type Shdr struct {
	Name      uint32
	Type      uint32
	Flags     uint64
	Addr      uint64
	Off       uint64
	Size      uint64
	Link      uint32
	Info      uint32
	Addralign uint64
	Entsize   uint64
}

// Sym is an ELF64 symbol table entry.
type Sym struct {
	Name  uint32
	Info  uint8
	Other uint8
	Shndx uint16
	Value uint64
	Size  uint64
}

// Type returns the symbol type tag from st_info.
func (s Sym) Type() uint8 { return s.Info & 0xf }

// Undef is the sentinel returned by lookups that find nothing. Its
// section index is SHN_UNDEF.
var Undef = Sym{Shndx: SHN_UNDEF}

// Dyn is an entry of the .dynamic section.
type Dyn struct {
	Tag int64
	Val uint64
}

// Chdr is the compression header at the front of an SHF_COMPRESSED
// section.
type Chdr struct {
	Type      uint32
	Reserved  uint32
	Size      uint64
	Addralign uint64
}

// Nhdr is the fixed header of a note entry.
type Nhdr struct {
	Namesz uint32
	Descsz uint32
	Type   uint32
}

// Verneed heads a list of versions required from one needed file.
type Verneed struct {
	Version uint16
	Cnt     uint16
	File    uint32
	Aux     uint32
	Next    uint32
}

// Vernaux is one required version under a Verneed.
type Vernaux struct {
	Hash  uint32
	Flags uint16
	Other uint16
	Name  uint32
	Next  uint32
}

// Verdef heads one version defined by this image.
type Verdef struct {
	Version uint16
	Flags   uint16
	Ndx     uint16
	Cnt     uint16
	Hash    uint32
	Aux     uint32
	Next    uint32
}

// Verdaux carries a version name under a Verdef.
type Verdaux struct {
	Name uint32
	Next uint32
}

const (
	ehdrSize = 64
	phdrSize = 56
	shdrSize = 64
	symSize  = 24
	dynSize  = 16
	chdrSize = 24
	nhdrSize = 12
)

func roundup4(n int64) int64 { return (n + 3) &^ 3 }
