// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package reader

import (
	"io"

	"github.com/elastic/go-freelru"
)

const (
	cachePageSize  = 4096
	cachePageCount = 256
)

// Cache memoizes page-granular reads from a slow parent reader. It is
// intended for readers backed by remote or freshly-downloaded files
// where the same small headers get re-read many times during parsing.
type Cache struct {
	parent Reader
	pages  *freelru.LRU[int64, []byte]
}

// NewCache wraps parent in a page cache.
func NewCache(parent Reader) *Cache {
	pages, err := freelru.New[int64, []byte](cachePageCount, func(page int64) uint32 {
		return uint32(page) ^ uint32(page>>32)
	})
	if err != nil {
		// Only reachable with a bad capacity constant.
		panic(err)
	}
	return &Cache{parent, pages}
}

func (c *Cache) page(n int64) ([]byte, error) {
	if p, ok := c.pages.Get(n); ok {
		return p, nil
	}
	off := n * cachePageSize
	size := int64(cachePageSize)
	if rest := c.parent.Size() - off; rest < size {
		size = rest
	}
	if size <= 0 {
		return nil, io.EOF
	}
	p := make([]byte, size)
	if _, err := io.ReadFull(io.NewSectionReader(c.parent, off, size), p); err != nil {
		return nil, err
	}
	c.pages.Add(n, p)
	return p, nil
}

func (c *Cache) ReadAt(p []byte, off int64) (int, error) {
	total := 0
	for total < len(p) {
		pos := off + int64(total)
		page, err := c.page(pos / cachePageSize)
		if err != nil {
			if total > 0 && err == io.EOF {
				return total, io.EOF
			}
			return total, err
		}
		in := pos % cachePageSize
		if in >= int64(len(page)) {
			return total, io.EOF
		}
		total += copy(p[total:], page[in:])
	}
	return total, nil
}

func (c *Cache) ReadString(off int64) (string, error) { return readString(c, off) }
func (c *Cache) Size() int64                          { return c.parent.Size() }
func (c *Cache) Name() string                         { return c.parent.Name() }

func (c *Cache) View(name string, off, length int64) Reader {
	return clipView(c, name, off, length)
}
