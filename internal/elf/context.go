// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elf

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/elfscope/elfscope/internal/reader"
)

// DebuginfodClient fetches debug info for a build ID from an external
// debuginfo server. The returned file is owned by the caller.
type DebuginfodClient interface {
	FetchDebuginfo(buildID []byte) (*os.File, error)
}

// Context carries the environment shared by a family of Objects: where
// to look for split debug info and where to send diagnostics.
type Context struct {
	// DebugDirectories lists directories searched for split debug
	// images, both by basename and by .build-id path.
	DebugDirectories []string

	// Log receives warnings and progress diagnostics. nil silences
	// everything.
	Log logrus.FieldLogger

	// Verbose gates progress diagnostics; warnings are emitted at any
	// level.
	Verbose int

	// NoExtDebug disables separate-debug-image resolution entirely.
	NoExtDebug bool

	// Debuginfod, if set, is consulted as the last step of debug-image
	// resolution.
	Debuginfod DebuginfodClient
}

func (c *Context) warnf(format string, args ...interface{}) {
	if c.Log != nil {
		c.Log.Warnf(format, args...)
	}
}

func (c *Context) debugf(level int, format string, args ...interface{}) {
	if c.Log != nil && c.Verbose >= level {
		c.Log.Debugf(format, args...)
	}
}

// Open loads the ELF image at path, preferring a memory-mapped reader
// and falling back to plain file reads.
func (c *Context) Open(path string) (*Object, error) {
	r, err := c.openReader(path)
	if err != nil {
		return nil, err
	}
	return New(c, r, false)
}

func (c *Context) openReader(path string) (reader.Reader, error) {
	if m, err := reader.OpenMmap(path); err == nil {
		return m, nil
	}
	return reader.OpenFile(path)
}

// openDebug loads path as a debug image, returning nil if it is
// missing or unparsable.
func (c *Context) openDebug(path string) *Object {
	r, err := c.openReader(path)
	if err != nil {
		return nil
	}
	obj, err := New(c, r, true)
	if err != nil {
		c.debugf(1, "failed to load debug image %s: %v", path, err)
		return nil
	}
	return obj
}

// GetDebugImage resolves rel against each debug directory and loads
// the first image that parses.
func (c *Context) GetDebugImage(rel string) *Object {
	for _, dir := range c.DebugDirectories {
		path := filepath.Join(dir, rel)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if obj := c.openDebug(path); obj != nil {
			return obj
		}
	}
	return nil
}
