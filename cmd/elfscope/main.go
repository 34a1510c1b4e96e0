// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Elfscope inspects ELF images: sections, segments, symbols, notes,
// versioning, and address-to-symbol resolution, following split debug
// info the same way a stack tracer would.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cespare/subcmd"
	"github.com/sirupsen/logrus"

	"github.com/elfscope/elfscope/internal/debuginfod"
	"github.com/elfscope/elfscope/internal/elf"
)

func main() {
	cmds := []subcmd.Command{
		{Name: "sections", Description: "list section headers", Do: cmdSections},
		{Name: "segments", Description: "list program headers", Do: cmdSegments},
		{Name: "symbols", Description: "list the debug symbol table", Do: cmdSymbols},
		{Name: "dynsym", Description: "look up a dynamic symbol by name", Do: cmdDynsym},
		{Name: "notes", Description: "list note segments", Do: cmdNotes},
		{Name: "addr", Description: "resolve an address to a symbol", Do: cmdAddr},
		{Name: "versions", Description: "dump symbol versioning data", Do: cmdVersions},
		{Name: "interp", Description: "print the program interpreter", Do: cmdInterp},
		{Name: "disasm", Description: "disassemble a function", Do: cmdDisasm},
	}
	subcmd.Run(cmds)
}

// commonFlags registers the flags shared by every subcommand and
// returns a constructor for the resulting context.
func commonFlags(fs *flag.FlagSet) func() *elf.Context {
	debugDirs := fs.String("debug-dir", "", "colon-separated `directories` searched for split debug info")
	noExtDebug := fs.Bool("no-ext-debug", false, "do not load separate debug images")
	debuginfodURLs := fs.String("debuginfod", os.Getenv("DEBUGINFOD_URLS"), "space-separated debuginfod server `urls`")
	verbose := fs.Int("v", 0, "diagnostic verbosity `level`")
	return func() *elf.Context {
		log := logrus.New()
		log.SetOutput(os.Stderr)
		if *verbose > 0 {
			log.SetLevel(logrus.DebugLevel)
		}
		ctx := &elf.Context{
			Log:        log,
			Verbose:    *verbose,
			NoExtDebug: *noExtDebug,
		}
		if *debugDirs != "" {
			ctx.DebugDirectories = strings.Split(*debugDirs, ":")
		}
		if urls := strings.Fields(*debuginfodURLs); len(urls) > 0 {
			cache, err := os.UserCacheDir()
			if err != nil {
				cache = os.TempDir()
			}
			c := debuginfod.New(urls, cache+"/elfscope/debuginfod")
			c.Log = log
			ctx.Debuginfod = c
		}
		return ctx
	}
}

// load parses flags, expecting the image path as the first positional
// argument, and opens the image.
func load(name string, fs *flag.FlagSet, args []string, extra int) (*elf.Object, []string) {
	mkCtx := commonFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s %s [flags] elf-image%s\n", os.Args[0], name, strings.Repeat(" arg", extra))
		fs.PrintDefaults()
	}
	fs.Parse(args)
	if fs.NArg() != 1+extra {
		fs.Usage()
		os.Exit(2)
	}
	obj, err := mkCtx().Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
	return obj, fs.Args()[1:]
}

func cmdSections(args []string) {
	obj, _ := load("sections", flag.NewFlagSet("sections", flag.ExitOnError), args, 0)
	fmt.Printf("%-4s %-24s %-12s %-18s %-10s %-10s\n", "idx", "name", "type", "addr", "offset", "size")
	for i, s := range obj.Sections() {
		hdr := s.Header()
		fmt.Printf("%-4d %-24s %-12s %#-18x %#-10x %#-10x\n",
			i, s.Name(), sectionTypeName(hdr.Type), hdr.Addr, hdr.Off, hdr.Size)
	}
}

func cmdSegments(args []string) {
	obj, _ := load("segments", flag.NewFlagSet("segments", flag.ExitOnError), args, 0)
	fmt.Printf("%-12s %-18s %-18s %-10s %-10s\n", "type", "vaddr", "memsz", "offset", "filesz")
	for typ, phdrs := range obj.AllSegments() {
		for _, ph := range phdrs {
			fmt.Printf("%-12s %#-18x %#-18x %#-10x %#-10x\n",
				segmentTypeName(typ), ph.Vaddr, ph.Memsz, ph.Off, ph.Filesz)
		}
	}
}

func cmdSymbols(args []string) {
	obj, _ := load("symbols", flag.NewFlagSet("symbols", flag.ExitOnError), args, 0)
	syms := obj.DebugSymbols()
	for i, n := uint32(0), syms.Len(); i < n; i++ {
		sym, err := syms.Symbol(i)
		if err != nil {
			break
		}
		fmt.Printf("%#018x %8d %s\n", sym.Value, sym.Size, syms.Name(sym))
	}
}

func cmdDynsym(args []string) {
	obj, rest := load("dynsym", flag.NewFlagSet("dynsym", flag.ExitOnError), args, 1)
	name := rest[0]
	sym, idx, ok := obj.FindDynamicSymbol(name)
	if !ok {
		fmt.Printf("%s: not found\n", name)
		os.Exit(1)
	}
	fmt.Printf("%s: index %d value %#x size %d\n", name, idx, sym.Value, sym.Size)
	if vidx, ok := obj.VersionIdxForSymbol(idx); ok {
		if ver, ok := obj.SymbolVersion(vidx); ok {
			fmt.Printf("version: %s\n", ver)
		}
	}
}

func cmdNotes(args []string) {
	obj, _ := load("notes", flag.NewFlagSet("notes", flag.ExitOnError), args, 0)
	for ns := obj.Notes(); ns.Next(); {
		n := ns.Note()
		fmt.Printf("%-16s type %-4d %d bytes\n", n.Name(), n.Type(), n.Header().Descsz)
	}
	if id, ok := obj.BuildID(); ok {
		fmt.Printf("build-id: %x\n", id)
	}
}

func cmdAddr(args []string) {
	obj, rest := load("addr", flag.NewFlagSet("addr", flag.ExitOnError), args, 1)
	addr, err := strconv.ParseUint(strings.TrimPrefix(rest[0], "0x"), 16, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad address %q: %v\n", rest[0], err)
		os.Exit(2)
	}
	sym, name, ok := obj.FindSymbolByAddress(addr, elf.STT_NOTYPE)
	if !ok {
		fmt.Printf("%#x: no symbol\n", addr)
		os.Exit(1)
	}
	fmt.Printf("%#x: %s+%#x\n", addr, name, addr-sym.Value)
	if seg := obj.SegmentForAddress(addr); seg != nil {
		fmt.Printf("segment: vaddr %#x memsz %#x\n", seg.Vaddr, seg.Memsz)
	}
}

func cmdVersions(args []string) {
	obj, _ := load("versions", flag.NewFlagSet("versions", flag.ExitOnError), args, 0)
	sv := obj.SymbolVersions()
	for idx, name := range sv.Versions {
		fmt.Printf("%4d %s", idx, name)
		if pred, ok := sv.Predecessors[idx]; ok {
			fmt.Printf(" (predecessor %s)", pred)
		}
		fmt.Println()
	}
	for file, idxs := range sv.Files {
		fmt.Printf("%s: %v\n", file, idxs)
	}
}

func cmdInterp(args []string) {
	obj, _ := load("interp", flag.NewFlagSet("interp", flag.ExitOnError), args, 0)
	if interp := obj.Interpreter(); interp != "" {
		fmt.Println(interp)
	}
}

func sectionTypeName(typ uint32) string {
	switch typ {
	case elf.SHT_NULL:
		return "NULL"
	case elf.SHT_PROGBITS:
		return "PROGBITS"
	case elf.SHT_SYMTAB:
		return "SYMTAB"
	case elf.SHT_STRTAB:
		return "STRTAB"
	case elf.SHT_HASH:
		return "HASH"
	case elf.SHT_DYNAMIC:
		return "DYNAMIC"
	case elf.SHT_NOTE:
		return "NOTE"
	case elf.SHT_NOBITS:
		return "NOBITS"
	case elf.SHT_DYNSYM:
		return "DYNSYM"
	case elf.SHT_GNU_HASH:
		return "GNU_HASH"
	case elf.SHT_GNU_versym:
		return "GNU_versym"
	case elf.SHT_GNU_verneed:
		return "GNU_verneed"
	case elf.SHT_GNU_verdef:
		return "GNU_verdef"
	}
	return fmt.Sprintf("%#x", typ)
}

func segmentTypeName(typ uint32) string {
	switch typ {
	case elf.PT_LOAD:
		return "LOAD"
	case elf.PT_INTERP:
		return "INTERP"
	case elf.PT_NOTE:
		return "NOTE"
	}
	return fmt.Sprintf("%#x", typ)
}
