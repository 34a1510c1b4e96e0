// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package debuginfod fetches split debug info from debuginfod servers
// by build ID. The ELF core consumes only the fetch-by-build-id
// capability; this package supplies the HTTP implementation.
package debuginfod

import (
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Client downloads debug info over the debuginfod protocol
// (GET /buildid/<hex>/debuginfo) and caches the results on disk.
type Client struct {
	// URLs are the server base URLs, tried in order.
	URLs []string

	// CacheDir stores downloaded debug info keyed by build ID.
	CacheDir string

	// HTTP overrides the transport; nil uses a client with a sane
	// timeout.
	HTTP *http.Client

	// Log receives download diagnostics. nil silences them.
	Log logrus.FieldLogger
}

// New returns a Client for the given servers, caching under cacheDir.
func New(urls []string, cacheDir string) *Client {
	return &Client{URLs: urls, CacheDir: cacheDir}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 90 * time.Second}
}

// FetchDebuginfo downloads the debug info for buildID, returning an
// open file positioned at the start. Cached downloads are reused.
func (c *Client) FetchDebuginfo(buildID []byte) (*os.File, error) {
	if len(buildID) == 0 {
		return nil, errors.New("debuginfod: empty build ID")
	}
	id := hex.EncodeToString(buildID)

	cached := filepath.Join(c.CacheDir, id, "debuginfo")
	if f, err := os.Open(cached); err == nil {
		return f, nil
	}

	var lastErr error
	for _, base := range c.URLs {
		url := fmt.Sprintf("%s/buildid/%s/debuginfo", base, id)
		if err := c.download(url, cached); err != nil {
			if c.Log != nil {
				c.Log.Debugf("debuginfod: %s: %v", url, err)
			}
			lastErr = err
			continue
		}
		return os.Open(cached)
	}
	if lastErr == nil {
		lastErr = errors.New("no debuginfod servers configured")
	}
	return nil, errors.Wrapf(lastErr, "debuginfod: build ID %s", id)
}

// download fetches url into dest, retrying transient failures with
// exponential backoff. A 404 is permanent: the server simply does not
// have this build ID.
func (c *Client) download(url, dest string) error {
	op := func() error {
		resp, err := c.httpClient().Get(url)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(errors.Errorf("not found (%s)", resp.Status))
		case resp.StatusCode >= 500:
			return errors.Errorf("server error (%s)", resp.Status)
		default:
			return backoff.Permanent(errors.Errorf("unexpected status %s", resp.Status))
		}

		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return backoff.Permanent(err)
		}
		tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
		if err != nil {
			return backoff.Permanent(err)
		}
		defer os.Remove(tmp.Name())
		if _, err := io.Copy(tmp, resp.Body); err != nil {
			tmp.Close()
			return err
		}
		if err := tmp.Close(); err != nil {
			return err
		}
		return os.Rename(tmp.Name(), dest)
	}
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	return backoff.Retry(op, policy)
}
