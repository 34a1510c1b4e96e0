// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elf

import (
	"github.com/elfscope/elfscope/internal/reader"
)

// SymbolVersioning is the merged view of .gnu.version_r and
// .gnu.version_d. Versions maps a version index to its name; Files maps
// a needed file to the version indexes it provides; Predecessors maps a
// defined version index to the name it supersedes.
type SymbolVersioning struct {
	Versions     map[int]string
	Files        map[string][]int
	Predecessors map[int]string
}

// SymbolVersions reconstructs the versioning table on first use.
func (o *Object) SymbolVersions() *SymbolVersioning {
	if o.versions != nil {
		return o.versions
	}
	sv := &SymbolVersioning{
		Versions:     make(map[int]string),
		Files:        make(map[string][]int),
		Predecessors: make(map[int]string),
	}

	if sec := o.Section(".gnu.version_r", SHT_GNU_verneed); sec != nil {
		if linked := o.LinkedSection(sec); linked != nil {
			if num := o.dynamic[DT_VERNEEDNUM]; len(num) != 0 {
				o.loadVerneed(sv, sec.IO(), linked.IO(), num[0].Val)
			}
		}
	}
	if sec := o.Section(".gnu.version_d", SHT_GNU_verdef); sec != nil {
		if linked := o.LinkedSection(sec); linked != nil {
			if num := o.dynamic[DT_VERDEFNUM]; len(num) != 0 {
				o.loadVerdef(sv, sec.IO(), linked.IO(), num[0].Val)
			}
		}
	}
	o.versions = sv
	return sv
}

func (o *Object) loadVerneed(sv *SymbolVersioning, vio, strs reader.Reader, count uint64) {
	var off int64
	for ; count != 0; count-- {
		verneed, err := reader.Obj[Verneed](vio, off)
		if err != nil {
			return
		}
		filename, err := strs.ReadString(int64(verneed.File))
		if err != nil {
			return
		}
		auxOff := off + int64(verneed.Aux)
		for i := 0; i < int(verneed.Cnt); i++ {
			aux, err := reader.Obj[Vernaux](vio, auxOff)
			if err != nil {
				return
			}
			name, err := strs.ReadString(int64(aux.Name))
			if err != nil {
				return
			}
			sv.Versions[int(aux.Other)] = name
			sv.Files[filename] = append(sv.Files[filename], int(aux.Other))
			auxOff += int64(aux.Next)
		}
		off += int64(verneed.Next)
	}
}

func (o *Object) loadVerdef(sv *SymbolVersioning, vio, strs reader.Reader, count uint64) {
	var off int64
	for ; count != 0; count-- {
		verdef, err := reader.Obj[Verdef](vio, off)
		if err != nil {
			return
		}
		auxOff := off + int64(verdef.Aux)
		// The first Verdaux is the version name; the second, if
		// present, names the predecessor.
		if verdef.Cnt >= 1 {
			aux, err := reader.Obj[Verdaux](vio, auxOff)
			if err != nil {
				return
			}
			if name, err := strs.ReadString(int64(aux.Name)); err == nil {
				sv.Versions[int(verdef.Ndx)] = name
			}
			auxOff += int64(aux.Next)
		}
		if verdef.Cnt >= 2 {
			aux, err := reader.Obj[Verdaux](vio, auxOff)
			if err != nil {
				return
			}
			if name, err := strs.ReadString(int64(aux.Name)); err == nil {
				sv.Predecessors[int(verdef.Ndx)] = name
			}
		}
		off += int64(verdef.Next)
	}
}

// VersionIdxForSymbol returns the .gnu.version entry for dynamic
// symbol index i, or false if the image has no versioning data.
func (o *Object) VersionIdxForSymbol(i uint32) (uint16, bool) {
	if o.gnuVersion == nil {
		return 0, false
	}
	idx, err := reader.Obj[uint16](o.gnuVersion.IO(), int64(i)*2)
	if err != nil {
		return 0, false
	}
	return idx, true
}

// SymbolVersion resolves a version index to its name. Only the low 15
// bits are meaningful; indexes 0 and 1 are the reserved local and
// global versions and yield no name.
func (o *Object) SymbolVersion(idx uint16) (string, bool) {
	i := int(idx & 0x7fff)
	if i < 2 {
		return "", false
	}
	name, ok := o.SymbolVersions().Versions[i]
	return name, ok
}
