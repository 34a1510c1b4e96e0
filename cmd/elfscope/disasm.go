// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/elfscope/elfscope/internal/arch"
	"github.com/elfscope/elfscope/internal/elf"
)

var machineToArch = map[uint16]*arch.Arch{
	elf.EM_X86_64:  arch.AMD64,
	elf.EM_386:     arch.I386,
	elf.EM_AARCH64: arch.ARM64,
}

func cmdDisasm(args []string) {
	obj, rest := load("disasm", flag.NewFlagSet("disasm", flag.ExitOnError), args, 1)
	name := rest[0]

	a := machineToArch[obj.Header.Machine]
	if a == nil {
		fmt.Fprintf(os.Stderr, "unsupported machine %d\n", obj.Header.Machine)
		os.Exit(1)
	}

	sym, _, ok := obj.FindDebugSymbol(name)
	if !ok {
		sym, _, ok = obj.FindDynamicSymbol(name)
	}
	if !ok || sym.Size == 0 {
		fmt.Fprintf(os.Stderr, "%s: no symbol with code\n", name)
		os.Exit(1)
	}

	code, err := readSymbolCode(obj, sym)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		os.Exit(1)
	}

	pc := sym.Value
	for len(code) > 0 {
		text, size, err := a.Disasm(code, pc)
		if err != nil {
			fmt.Printf("%#014x\t?\n", pc)
			size = 1
		} else {
			fmt.Printf("%#014x\t%s\n", pc, text)
		}
		code = code[size:]
		pc += uint64(size)
	}
}

// readSymbolCode reads the symbol's bytes out of its section content.
func readSymbolCode(obj *elf.Object, sym elf.Sym) ([]byte, error) {
	sec := obj.SectionAt(uint32(sym.Shndx))
	if sec == nil {
		return nil, fmt.Errorf("symbol section %d not present", sym.Shndx)
	}
	hdr := sec.Header()
	if sym.Value < hdr.Addr || sym.Value+sym.Size > hdr.Addr+hdr.Size {
		return nil, fmt.Errorf("symbol lies outside section %s", sec.Name())
	}
	code := make([]byte, sym.Size)
	sr := io.NewSectionReader(sec.IO(), int64(sym.Value-hdr.Addr), int64(sym.Size))
	if _, err := io.ReadFull(sr, code); err != nil {
		return nil, err
	}
	return code, nil
}
