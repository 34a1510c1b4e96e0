// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package arch describes the machine architectures whose code the
// inspector can disassemble.
package arch

import (
	"strings"

	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"
)

// Arch describes one machine architecture.
type Arch struct {
	// Name is the conventional GOARCH-style name.
	Name string

	// PtrSize is the number of bytes in a pointer.
	PtrSize int

	// Disasm decodes the instruction at the start of code, which sits
	// at pc, returning its text and encoded length.
	Disasm func(code []byte, pc uint64) (text string, size int, err error)
}

var (
	AMD64 = &Arch{"amd64", 8, disasmX86(64)}
	I386  = &Arch{"386", 4, disasmX86(32)}
	ARM64 = &Arch{"arm64", 8, disasmARM64}
)

func (a *Arch) String() string {
	if a == nil {
		return "<nil>"
	}
	return a.Name
}

func disasmX86(mode int) func([]byte, uint64) (string, int, error) {
	return func(code []byte, pc uint64) (string, int, error) {
		inst, err := x86asm.Decode(code, mode)
		if err != nil {
			return "", 0, err
		}
		return x86asm.GNUSyntax(inst, pc, nil), inst.Len, nil
	}
}

func disasmARM64(code []byte, pc uint64) (string, int, error) {
	inst, err := arm64asm.Decode(code)
	if err != nil {
		return "", 0, err
	}
	return strings.TrimSpace(arm64asm.GNUSyntax(inst)), 4, nil
}
