// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elf

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/elfscope/elfscope/internal/reader"
)

// Debug resolves and returns the separate debug image for this object,
// or nil if none can be found. The result is memoized; a failed
// resolution is never retried, and an object loaded as a debug image
// never looks for further debug siblings.
//
// Resolution order: configured debug directories by executable
// basename, the build-id path, .gnu_debuglink, then a debuginfo
// server.
func (o *Object) Debug() *Object {
	if o.debugTried || o.ctx.NoExtDebug {
		return o.debug
	}
	o.debugTried = true

	execName := filepath.Base(o.io.Name())
	o.ctx.debugf(1, "looking for debug info for %s", execName)

	for _, dir := range o.ctx.DebugDirectories {
		st, err := os.Stat(dir)
		if err != nil || !st.IsDir() {
			continue
		}
		path := filepath.Join(dir, execName+".debug")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if obj := o.ctx.openDebug(path); obj != nil {
			o.debug = obj
			break
		}
	}

	var buildID []byte
	if o.debug == nil {
		var ok bool
		if buildID, ok = o.BuildID(); ok && len(buildID) > 0 {
			rel := fmt.Sprintf(".build-id/%02x/%x.debug", buildID[0], buildID[1:])
			o.debug = o.ctx.GetDebugImage(rel)
		}
	}

	if o.debug == nil {
		o.resolveDebugLink()
	}

	if o.debug == nil && len(buildID) > 0 && o.ctx.Debuginfod != nil {
		if f, err := o.ctx.Debuginfod.FetchDebuginfo(buildID); err == nil {
			fr, err := reader.NewFile(f.Name(), f)
			if err == nil {
				if obj, err := New(o.ctx, reader.NewCache(fr), true); err == nil {
					o.debug = obj
				}
			}
		} else {
			o.ctx.debugf(1, "failed to fetch debuginfo for %s: %v", execName, err)
		}
	}

	if o.debug == nil {
		o.ctx.debugf(2, "no debug object for %s", o.io.Name())
		return nil
	}
	o.ctx.debugf(1, "found debug object %s for %s", o.debug.io.Name(), o.io.Name())
	o.adjustPrelink()
	return o.debug
}

func (o *Object) resolveDebugLink() {
	sec := o.Section(".gnu_debuglink", SHT_PROGBITS)
	if sec == nil {
		return
	}
	// The link name is NUL-terminated at offset 0. A CRC follows; it
	// is not verified here.
	link, err := sec.IO().ReadString(0)
	if err != nil {
		return
	}
	for _, dir := range o.ctx.DebugDirectories {
		if _, err := os.Stat(filepath.Join(dir, link)); err != nil {
			continue
		}
		if o.debug = o.ctx.GetDebugImage(link); o.debug != nil {
			return
		}
	}
	// Last chance: next to the original image.
	path := filepath.Join(filepath.Dir(o.io.Name()), link)
	if _, err := os.Stat(path); err == nil {
		o.debug = o.ctx.openDebug(path)
	}
}

// adjustPrelink compensates for a prelinked primary image: if the
// .dynamic sections of the two images disagree on their address, every
// debug section address and segment virtual address is rebased by the
// difference.
func (o *Object) adjustPrelink() {
	s := o.Section(".dynamic", SHT_NULL)
	d := o.debug.Section(".dynamic", SHT_NULL)
	if s == nil || d == nil || s.hdr.Addr == d.hdr.Addr {
		return
	}
	diff := s.hdr.Addr - d.hdr.Addr
	o.ctx.warnf("debug image %s loaded for %s at different offset (diff %#x), assuming %s is prelinked",
		o.debug.io.Name(), o.io.Name(), diff, o.io.Name())

	for _, sect := range o.debug.sections {
		sect.hdr.Addr += diff
	}
	for _, phdrs := range o.debug.phdrs {
		for i := range phdrs {
			phdrs[i].Vaddr += diff
		}
	}
}
