// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elf

import (
	"github.com/elfscope/elfscope/internal/reader"
)

// elfHash is the classic System V ABI hash.
func elfHash(name string) uint32 {
	var h uint32
	for i := 0; i < len(name); i++ {
		h = h<<4 + uint32(name[i])
		if g := h & 0xf0000000; g != 0 {
			h ^= g >> 24
			h &^= g
		}
	}
	return h
}

// gnuHashOf is the DT_GNU_HASH djb2 hash.
func gnuHashOf(name string) uint32 {
	h := uint32(5381)
	for i := 0; i < len(name); i++ {
		h = h<<5 + h + uint32(name[i])
	}
	return h
}

// SymHash accelerates dynamic symbol lookup through the classic .hash
// section: two count words, then nbucket bucket entries, then nchain
// chain entries. The whole table is small and read into memory up
// front.
type SymHash struct {
	nbucket uint32
	nchain  uint32
	buckets []uint32
	chains  []uint32
	syms    reader.Reader
	strings reader.Reader
}

// NewSymHash builds a SymHash over the .hash section contents, the
// dynamic symbol table, and its string table.
func NewSymHash(hash, syms, strings reader.Reader) (*SymHash, error) {
	words := hash.Size() / 4
	data := make([]uint32, words)
	for i := int64(0); i < words; i++ {
		w, err := reader.Obj[uint32](hash, i*4)
		if err != nil {
			return nil, err
		}
		data[i] = w
	}
	h := &SymHash{syms: syms, strings: strings}
	if words >= 2 {
		h.nbucket = data[0]
		h.nchain = data[1]
		rest := data[2:]
		if int64(h.nbucket) <= int64(len(rest)) {
			h.buckets = rest[:h.nbucket]
			h.chains = rest[h.nbucket:]
		}
	}
	return h, nil
}

// FindSymbol looks up name, returning its symbol table index and value.
// A miss returns (0, Undef).
func (h *SymHash) FindSymbol(name string) (uint32, Sym) {
	if h.nbucket == 0 {
		return 0, Undef
	}
	bucket := elfHash(name) % h.nbucket
	for i := h.buckets[bucket]; i != STN_UNDEF; {
		sym, err := reader.Obj[Sym](h.syms, int64(i)*symSize)
		if err != nil {
			break
		}
		if n, err := h.strings.ReadString(int64(sym.Name)); err == nil && n == name {
			return i, sym
		}
		if i >= uint32(len(h.chains)) {
			break
		}
		i = h.chains[i]
	}
	return 0, Undef
}

// gnuHashHeader is the fixed header of a .gnu.hash section.
type gnuHashHeader struct {
	NBuckets   uint32
	SymOffset  uint32
	BloomSize  uint32
	BloomShift uint32
}

const gnuHashBits = 64 // ELF64 bloom words are machine words

// GnuHash accelerates dynamic symbol lookup through the .gnu.hash
// section: the fixed header, bloom_size machine-word bloom filter
// entries, nbuckets bucket entries, then per-symbol chain words
// starting at symbol index symoffset.
type GnuHash struct {
	header  gnuHashHeader
	hash    reader.Reader
	syms    reader.Reader
	strings reader.Reader
}

// NewGnuHash builds a GnuHash over the .gnu.hash section contents, the
// dynamic symbol table, and its string table.
func NewGnuHash(hash, syms, strings reader.Reader) (*GnuHash, error) {
	hdr, err := reader.Obj[gnuHashHeader](hash, 0)
	if err != nil {
		return nil, err
	}
	return &GnuHash{hdr, hash, syms, strings}, nil
}

func (h *GnuHash) bloomoff(i uint32) int64 {
	return int64(16 + 8*i)
}

func (h *GnuHash) bucketoff(i uint32) int64 {
	return h.bloomoff(h.header.BloomSize) + int64(4*i)
}

func (h *GnuHash) chainoff(i uint32) int64 {
	return h.bucketoff(h.header.NBuckets) + int64(4*i)
}

// FindSymbol looks up name, returning its symbol table index and value.
// A miss returns (0, Undef).
func (h *GnuHash) FindSymbol(name string) (uint32, Sym) {
	if h.header.NBuckets == 0 || h.header.BloomSize == 0 {
		return 0, Undef
	}
	symhash := gnuHashOf(name)

	bloom, err := reader.Obj[uint64](h.hash, h.bloomoff((symhash/gnuHashBits)%h.header.BloomSize))
	if err != nil {
		return 0, Undef
	}
	mask := uint64(1)<<(symhash%gnuHashBits) |
		uint64(1)<<((symhash>>h.header.BloomShift)%gnuHashBits)
	if bloom&mask != mask {
		return 0, Undef
	}

	idx, err := reader.Obj[uint32](h.hash, h.bucketoff(symhash%h.header.NBuckets))
	if err != nil || idx < h.header.SymOffset {
		return 0, Undef
	}
	for {
		sym, err := reader.Obj[Sym](h.syms, int64(idx)*symSize)
		if err != nil {
			return 0, Undef
		}
		chainhash, err := reader.Obj[uint32](h.hash, h.chainoff(idx-h.header.SymOffset))
		if err != nil {
			return 0, Undef
		}
		if chainhash|1 == symhash|1 {
			if n, err := h.strings.ReadString(int64(sym.Name)); err == nil && n == name {
				return idx, sym
			}
		}
		if chainhash&1 != 0 {
			return 0, Undef
		}
		idx++
	}
}
