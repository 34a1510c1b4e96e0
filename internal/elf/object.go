// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elf

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/elfscope/elfscope/internal/reader"
)

// ErrNotELF is returned when the image fails header validation.
var ErrNotELF = errors.New("not an ELF image")

// Object is a parsed ELF image.
//
// Construction parses the file header, the program headers, and the
// section header table in one pass; section bodies, symbol tables,
// versioning data, and sibling debug images materialize lazily. An
// Object is not safe for concurrent use; independent Objects are.
type Object struct {
	io  reader.Reader
	ctx *Context

	// Header is the ELF file header.
	Header Ehdr

	phdrs        map[uint32][]Phdr
	sections     []*Section
	sectionNames map[string]int
	dynamic      map[int64][]Dyn
	gnuVersion   *Section

	// Lazily-initialized caches. debugTried is separate from debug so
	// a failed resolution is not retried; it is also how a debug image
	// marks itself as one.
	debugSyms      *SymbolSection
	dynSyms        *SymbolSection
	symHash        *SymHash
	symHashTried   bool
	gnuHash        *GnuHash
	gnuHashTried   bool
	versions       *SymbolVersioning
	namedDebugSyms map[string]uint32
	debug          *Object
	debugTried     bool
	debugData      *Object
	debugDataTried bool
	lastSegment    *Phdr
}

// New parses the ELF image in r. isDebug marks the Object as a debug
// image, which suppresses resolution of further debug siblings.
func New(ctx *Context, r reader.Reader, isDebug bool) (*Object, error) {
	o := &Object{
		io:         r,
		ctx:        ctx,
		phdrs:      make(map[uint32][]Phdr),
		dynamic:    make(map[int64][]Dyn),
		debugTried: isDebug,
	}

	if err := reader.Into(r, 0, &o.Header); err != nil {
		return nil, errors.Wrapf(ErrNotELF, "%s: %v", r.Name(), err)
	}
	hdr := &o.Header
	if !hdr.IsELF() || hdr.Ident[EI_VERSION] != EV_CURRENT {
		return nil, errors.Wrapf(ErrNotELF, "%s", r.Name())
	}
	if hdr.Ident[EI_CLASS] != ELFCLASS64 || hdr.Ident[EI_DATA] != ELFDATA2LSB {
		return nil, errors.Wrapf(ErrNotELF, "%s: only 64-bit little-endian images are supported", r.Name())
	}

	if err := o.loadProgramHeaders(); err != nil {
		return nil, err
	}
	if err := o.loadSections(); err != nil {
		return nil, err
	}
	return o, nil
}

// IO returns the backing reader for the whole image.
func (o *Object) IO() reader.Reader { return o.io }

// Context returns the context the Object was loaded with.
func (o *Object) Context() *Context { return o.ctx }

func (o *Object) loadProgramHeaders() error {
	hdr := &o.Header
	headers := o.io.View("program headers", int64(hdr.Phoff), int64(hdr.Phnum)*phdrSize)
	for i := 0; i < int(hdr.Phnum); i++ {
		ph, err := reader.Obj[Phdr](headers, int64(i)*phdrSize)
		if err != nil {
			return err
		}
		o.phdrs[ph.Type] = append(o.phdrs[ph.Type], ph)
	}
	for _, phdrs := range o.phdrs {
		sort.SliceStable(phdrs, func(i, j int) bool {
			return phdrs[i].Vaddr < phdrs[j].Vaddr
		})
	}
	return nil
}

func (o *Object) loadSections() error {
	hdr := &o.Header
	if int64(hdr.Shoff) >= o.io.Size() {
		// No section table in range. Leave a null section no matter
		// what.
		o.sections = []*Section{{obj: o}}
		return nil
	}

	// If there are too many sections for e_shnum, the real count lives
	// in the first header's sh_size.
	count := int(hdr.Shnum)
	if hdr.Shnum == 0 && hdr.Shentsize != 0 {
		count = 1
	}
	off := int64(hdr.Shoff)
	for i := 0; i < count; i++ {
		sh, err := reader.Obj[Shdr](o.io, off)
		if err != nil {
			return err
		}
		o.sections = append(o.sections, &Section{obj: o, hdr: sh})
		if i == 0 && hdr.Shnum == 0 {
			count = int(sh.Size)
		}
		off += int64(hdr.Shentsize)
	}
	if len(o.sections) == 0 {
		o.sections = []*Section{{obj: o}}
	}

	if hdr.Shstrndx == SHN_UNDEF {
		return nil
	}
	// e_shstrndx may be too small to hold the string section's index;
	// the real index is then in the null section's sh_link.
	strndx := int(hdr.Shstrndx)
	if hdr.Shstrndx == SHN_XINDEX {
		strndx = int(o.sections[0].hdr.Link)
	}
	if strndx >= len(o.sections) {
		return errors.Errorf("%s: section name table index %d out of range", o.io.Name(), strndx)
	}
	names := o.sections[strndx].IO()
	o.sectionNames = make(map[string]int, len(o.sections))
	for i, s := range o.sections {
		name, err := names.ReadString(int64(s.hdr.Name))
		if err != nil {
			return errors.Wrapf(err, "%s: section %d name", o.io.Name(), i)
		}
		s.name = name
		o.sectionNames[name] = i
	}

	if dyn := o.Section(".dynamic", SHT_DYNAMIC); dyn != nil {
		dio := dyn.IO()
		for off := int64(0); off+dynSize <= dio.Size(); off += dynSize {
			d, err := reader.Obj[Dyn](dio, off)
			if err != nil {
				return err
			}
			o.dynamic[d.Tag] = append(o.dynamic[d.Tag], d)
		}
	}
	o.gnuVersion = o.Section(".gnu.version", SHT_GNU_versym)
	return nil
}

// Section returns the named section if its type matches typ (or typ is
// SHT_NULL). Two legacy fallbacks apply: .debug_* retries the .zdebug_*
// compressed spelling, and names without a .dwo suffix retry with one
// appended.
func (o *Object) Section(name string, typ uint32) *Section {
	if idx, ok := o.sectionNames[name]; ok {
		s := o.sections[idx]
		if s.hdr.Type == typ || typ == SHT_NULL {
			return s
		}
	}
	if strings.HasPrefix(name, ".debug_") {
		// Section.IO handles the decompression for these.
		if s := o.Section(".z"+name[1:], typ); s != nil {
			return s
		}
	}
	if !strings.HasSuffix(name, ".dwo") {
		return o.Section(name+".dwo", typ)
	}
	return nil
}

// SectionAt returns the section at index idx, or nil for the null
// section and out-of-range indexes.
func (o *Object) SectionAt(idx uint32) *Section {
	if int(idx) >= len(o.sections) || o.sections[idx].hdr.Type == SHT_NULL {
		return nil
	}
	return o.sections[idx]
}

// Sections returns the section table, index 0 being the null section.
func (o *Object) Sections() []*Section { return o.sections }

// DebugSection returns the named section from this image if it carries
// content, otherwise from the separate debug image.
func (o *Object) DebugSection(name string, typ uint32) *Section {
	if s := o.Section(name, typ); s != nil && s.hdr.Type != SHT_NOBITS {
		return s
	}
	if d := o.Debug(); d != nil {
		return d.Section(name, typ)
	}
	return nil
}

// LinkedSection resolves s's sh_link against the object that owns s,
// which may be the debug sibling rather than o.
func (o *Object) LinkedSection(s *Section) *Section {
	if s == nil {
		return nil
	}
	if s.obj == o {
		if int(s.hdr.Link) < len(o.sections) {
			return o.sections[s.hdr.Link]
		}
		return nil
	}
	if d := o.Debug(); d != nil {
		return d.LinkedSection(s)
	}
	return nil
}

// Segments returns the program headers of the given type, sorted by
// virtual address.
func (o *Object) Segments(typ uint32) []Phdr { return o.phdrs[typ] }

// AllSegments returns every program header bucketed by type.
func (o *Object) AllSegments() map[uint32][]Phdr { return o.phdrs }

// SegmentForAddress returns the PT_LOAD segment covering a, or nil.
// The last hit is cached: stack walks probe the same segment many
// times in a row.
func (o *Object) SegmentForAddress(a uint64) *Phdr {
	if last := o.lastSegment; last != nil && last.Vaddr <= a && a < last.Vaddr+last.Memsz {
		return last
	}
	load := o.phdrs[PT_LOAD]
	pos := sort.Search(len(load), func(i int) bool {
		return load[i].Vaddr+load[i].Memsz > a
	})
	if pos < len(load) && load[pos].Vaddr <= a {
		o.lastSegment = &load[pos]
		return o.lastSegment
	}
	return nil
}

// Interpreter returns the PT_INTERP string, or "" if the image has
// none.
func (o *Object) Interpreter() string {
	for _, seg := range o.phdrs[PT_INTERP] {
		s, err := o.io.ReadString(int64(seg.Off))
		if err != nil {
			return ""
		}
		return s
	}
	return ""
}

// EndVA returns the end of the highest PT_LOAD segment.
func (o *Object) EndVA() uint64 {
	load := o.phdrs[PT_LOAD]
	if len(load) == 0 {
		return 0
	}
	last := load[len(load)-1]
	return last.Vaddr + last.Memsz
}

// Dynamic returns the .dynamic entries with the given tag.
func (o *Object) Dynamic(tag int64) []Dyn { return o.dynamic[tag] }
