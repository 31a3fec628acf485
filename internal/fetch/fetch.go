// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

// Package fetch opens remote or local resources addressed by URL.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// DefaultUserAgent is sent with every HTTP request.
const DefaultUserAgent = "Mozilla/5.0 (compatible; WorkTools)"

// HTTPClient is the subset of *http.Client used here.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError reports a non-200 HTTP response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Code)
}

// Open returns a reader for rawURL and its size, or -1 when unknown.
// http and https go through client, file URLs and bare paths are read from
// disk.
func Open(ctx context.Context, client HTTPClient, rawURL, userAgent string) (io.ReadCloser, int64, error) {
	if filepath.IsAbs(rawURL) {
		return openFile(rawURL)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, -1, fmt.Errorf("fetch: parse url: %w", err)
	}

	switch u.Scheme {
	case "http", "https":
		return openHTTP(ctx, client, rawURL, userAgent)
	case "file", "":
		return openFile(LocalPath(u))
	default:
		return nil, -1, fmt.Errorf("fetch: unsupported scheme %q", u.Scheme)
	}
}

// IsLocal reports whether rawURL points at the local filesystem.
func IsLocal(rawURL string) bool {
	if filepath.IsAbs(rawURL) {
		return true
	}
	u, err := url.Parse(rawURL)
	return err == nil && (u.Scheme == "file" || u.Scheme == "")
}

// LocalPath converts a file URL into a filesystem path.
func LocalPath(u *url.URL) string {
	if u.Scheme == "" {
		return u.Path
	}
	p := u.Path
	if runtime.GOOS == "windows" && len(p) > 2 && p[0] == '/' && p[2] == ':' {
		p = p[1:]
	}
	return filepath.FromSlash(p)
}

func openHTTP(ctx context.Context, client HTTPClient, rawURL, userAgent string) (io.ReadCloser, int64, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, -1, fmt.Errorf("fetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, -1, fmt.Errorf("fetch: request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, -1, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}

	return resp.Body, resp.ContentLength, nil
}

func openFile(path string) (io.ReadCloser, int64, error) {
	if strings.TrimSpace(path) == "" {
		return nil, -1, fmt.Errorf("fetch: empty path")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, -1, fmt.Errorf("fetch: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, -1, fmt.Errorf("fetch: %w", err)
	}
	return f, info.Size(), nil
}

// ReadAll fetches rawURL fully, refusing bodies larger than limit bytes.
func ReadAll(ctx context.Context, client HTTPClient, rawURL, userAgent string, limit int64) ([]byte, error) {
	body, _, err := Open(ctx, client, rawURL, userAgent)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("fetch %s: body exceeds %d bytes", rawURL, limit)
	}
	return data, nil
}
