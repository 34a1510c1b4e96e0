// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elf

import (
	"github.com/elfscope/elfscope/internal/reader"
)

// SymbolSection is indexed access to a symbol table with string
// resolution through the linked string table.
type SymbolSection struct {
	syms    reader.Reader
	strings reader.Reader
}

// NewSymbolSection builds a SymbolSection over raw symbol table bytes
// and the matching string table.
func NewSymbolSection(syms, strings reader.Reader) *SymbolSection {
	return &SymbolSection{syms, strings}
}

// Len returns the number of symbols in the table.
func (t *SymbolSection) Len() uint32 {
	return uint32(t.syms.Size() / symSize)
}

// Symbol returns the symbol at index i.
func (t *SymbolSection) Symbol(i uint32) (Sym, error) {
	return reader.Obj[Sym](t.syms, int64(i)*symSize)
}

// Name resolves s's name against the string table. Unresolvable names
// come back empty.
func (t *SymbolSection) Name(s Sym) string {
	name, err := t.strings.ReadString(int64(s.Name))
	if err != nil {
		return ""
	}
	return name
}

// symtab builds a SymbolSection for the named table, preferring local
// content and falling back to the separate debug image.
func (o *Object) symtab(name string, typ uint32) *SymbolSection {
	sec := o.DebugSection(name, typ)
	if sec == nil {
		return NewSymbolSection(reader.Null{}, reader.Null{})
	}
	var strs reader.Reader = reader.Null{}
	if linked := o.LinkedSection(sec); linked != nil {
		strs = linked.IO()
	}
	return NewSymbolSection(sec.IO(), strs)
}

// DebugSymbols returns the .symtab symbol table, possibly from the
// separate debug image.
func (o *Object) DebugSymbols() *SymbolSection {
	if o.debugSyms == nil {
		o.debugSyms = o.symtab(".symtab", SHT_SYMTAB)
	}
	return o.debugSyms
}

// DynamicSymbols returns the .dynsym symbol table.
func (o *Object) DynamicSymbols() *SymbolSection {
	if o.dynSyms == nil {
		o.dynSyms = o.symtab(".dynsym", SHT_DYNSYM)
	}
	return o.dynSyms
}

// FindSymbolByAddress finds the symbol covering addr. typ filters by
// symbol type; STT_NOTYPE accepts everything. The debug symbol table is
// consulted before the dynamic one, and the LZMA-embedded
// .gnu_debugdata image before giving up. A zero-size symbol exactly at
// addr is retained as a fallback but never beats a covering symbol.
func (o *Object) FindSymbolByAddress(addr uint64, typ uint8) (Sym, string, bool) {
	var provisional Sym
	var provisionalName string
	haveProvisional := false

	findIn := func(table *SymbolSection) (Sym, string, bool) {
		n := table.Len()
		for i := uint32(0); i < n; i++ {
			candidate, err := table.Symbol(i)
			if err != nil {
				break
			}
			if int(candidate.Shndx) >= len(o.sections) {
				continue
			}
			if typ != STT_NOTYPE && candidate.Type() != typ {
				continue
			}
			if candidate.Value > addr {
				continue
			}
			if candidate.Value+candidate.Size <= addr {
				if candidate.Size == 0 && candidate.Value == addr {
					provisional = candidate
					provisionalName = table.Name(candidate)
					haveProvisional = true
				}
				continue
			}
			if o.sections[candidate.Shndx].hdr.Flags&SHF_ALLOC == 0 {
				continue
			}
			return candidate, table.Name(candidate), true
		}
		return Undef, "", false
	}

	if sym, name, ok := findIn(o.DebugSymbols()); ok {
		return sym, name, true
	}
	if sym, name, ok := findIn(o.DynamicSymbols()); ok {
		return sym, name, true
	}

	// .gnu_debugdata is a separate LZMA-compressed ELF image carrying
	// just a symbol table.
	if !o.debugDataTried {
		o.debugDataTried = true
		if sec := o.Section(".gnu_debugdata", SHT_PROGBITS); sec != nil {
			embedded, err := New(o.ctx, reader.NewLzma(".gnu_debugdata", sec.IO()), true)
			if err != nil {
				warnBadDebugData.Do(func() {
					o.ctx.warnf("cannot decode embedded debug data in %s: %v", o.io.Name(), err)
				})
			} else {
				o.debugData = embedded
			}
		}
	}
	if o.debugData != nil {
		if sym, name, ok := o.debugData.FindSymbolByAddress(addr, typ); ok {
			return sym, name, true
		}
	}

	if haveProvisional {
		return provisional, provisionalName, true
	}
	return Undef, "", false
}

// FindDynamicSymbol looks up name in the dynamic symbol table through
// whichever hash section the image carries, preferring .gnu.hash.
func (o *Object) FindDynamicSymbol(name string) (Sym, uint32, bool) {
	var idx uint32
	sym := Undef
	if gh := o.gnuHashTable(); gh != nil {
		idx, sym = gh.FindSymbol(name)
	} else if sh := o.symHashTable(); sh != nil {
		idx, sym = sh.FindSymbol(name)
	}
	if idx == 0 {
		return Undef, 0, false
	}
	return sym, idx, true
}

func (o *Object) dynsymReaders() (syms, strings reader.Reader) {
	syms, strings = reader.Null{}, reader.Null{}
	sec := o.Section(".dynsym", SHT_DYNSYM)
	if sec == nil {
		return
	}
	syms = sec.IO()
	if linked := o.LinkedSection(sec); linked != nil {
		strings = linked.IO()
	}
	return
}

func (o *Object) gnuHashTable() *GnuHash {
	if !o.gnuHashTried {
		o.gnuHashTried = true
		if sec := o.Section(".gnu.hash", SHT_GNU_HASH); sec != nil {
			syms, strs := o.dynsymReaders()
			o.gnuHash, _ = NewGnuHash(sec.IO(), syms, strs)
		}
	}
	return o.gnuHash
}

func (o *Object) symHashTable() *SymHash {
	if !o.symHashTried {
		o.symHashTried = true
		if sec := o.Section(".hash", SHT_HASH); sec != nil {
			syms, strs := o.dynsymReaders()
			o.symHash, _ = NewSymHash(sec.IO(), syms, strs)
		}
	}
	return o.symHash
}

// FindDebugSymbol looks up name in the full debug symbol table. The
// first call scans the table once and indexes every name.
func (o *Object) FindDebugSymbol(name string) (Sym, uint32, bool) {
	syms := o.DebugSymbols()
	if o.namedDebugSyms == nil {
		o.namedDebugSyms = make(map[string]uint32, syms.Len())
		for i, n := uint32(0), syms.Len(); i < n; i++ {
			sym, err := syms.Symbol(i)
			if err != nil {
				break
			}
			o.namedDebugSyms[syms.Name(sym)] = i
		}
	}
	idx, ok := o.namedDebugSyms[name]
	if !ok {
		return Undef, 0, false
	}
	sym, err := syms.Symbol(idx)
	if err != nil {
		return Undef, 0, false
	}
	return sym, idx, true
}
