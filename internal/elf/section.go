// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elf

import (
	"strings"
	"sync"

	"github.com/elfscope/elfscope/internal/reader"
)

// Section is a parsed section header plus lazily-materialized content.
// The content reader always reflects uncompressed bytes regardless of
// the on-disk encoding.
type Section struct {
	obj  *Object
	hdr  Shdr
	name string
	io   reader.Reader
}

// Header returns a copy of the section header.
func (s *Section) Header() Shdr { return s.hdr }

// Name returns the section name resolved from the name table.
func (s *Section) Name() string { return s.name }

// These sync.Once values guard the one-shot warning classes.
// Package-level because each warning should fire once per process, not
// once per image.
var (
	warnBadCompression sync.Once
	warnBadDebugData   sync.Once
)

// IO returns the section content reader. The first call picks the
// materialization path from the header flags and section name:
// SHT_NULL resolves to a null reader, SHF_COMPRESSED and the legacy
// .zdebug_ spelling resolve to inflating readers, everything else to a
// plain window over the backing file.
func (s *Section) IO() reader.Reader {
	if s.io != nil {
		return s.io
	}

	if s.hdr.Type == SHT_NULL {
		s.io = reader.Null{}
		return s.io
	}

	raw := s.obj.io.View(s.name, int64(s.hdr.Off), int64(s.hdr.Size))
	switch {
	case s.hdr.Flags&SHF_COMPRESSED != 0:
		chdr, err := reader.Obj[Chdr](raw, 0)
		if err != nil || chdr.Type != ELFCOMPRESS_ZLIB {
			warnBadCompression.Do(func() {
				s.obj.ctx.warnf("unsupported compression in section %s of %s", s.name, s.obj.io.Name())
			})
			break
		}
		s.io = reader.NewInflate(s.name, raw.View("compressed content", chdrSize, int64(s.hdr.Size)-chdrSize), int64(chdr.Size))

	case strings.HasPrefix(s.name, ".zdebug_"):
		// 12-byte header: the ASCII literal "ZLIB" then the
		// decompressed size, big-endian.
		var sig [12]byte
		if err := reader.Into(raw, 0, &sig); err != nil {
			break
		}
		if string(sig[:4]) != "ZLIB" {
			break
		}
		var size int64
		for _, b := range sig[4:] {
			size = size<<8 | int64(b)
		}
		s.io = reader.NewInflate(s.name, raw.View("compressed content", int64(len(sig)), int64(s.hdr.Size)-int64(len(sig))), size)

	default:
		s.io = raw
	}

	if s.io == nil {
		s.io = reader.Null{}
	}
	return s.io
}
