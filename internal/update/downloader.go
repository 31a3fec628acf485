// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package update

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kyeo-hub/worktools/internal/fetch"
	"github.com/kyeo-hub/worktools/internal/slogs"
)

// ChunkSize is the read size used while streaming a download.
const ChunkSize = 8 * 1024

const maxSignatureSize = 64 * 1024

var (
	// ErrChecksumMismatch is returned when a bundle's SHA-256 differs from the
	// descriptor.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrMissingSignature is returned when a verifier is configured but the
	// descriptor carries no signature.
	ErrMissingSignature = errors.New("update is not signed")
)

// ProgressFunc receives the bytes written so far and the expected total.
type ProgressFunc func(downloaded, total int64)

// Downloader streams update bundles to disk.
type Downloader struct {
	opts options
}

// NewDownloader creates a downloader.
func NewDownloader(opts ...Option) *Downloader {
	return &Downloader{opts: newOptions(DefaultDownloadTimeout, opts)}
}

// Download writes d.DownloadURL to dst. Progress is reported only when the
// size is known. dst is replaced only after every check passed.
func (dl *Downloader) Download(ctx context.Context, d Descriptor, dst string, progress ProgressFunc) error {
	if d.DownloadURL == "" {
		return fmt.Errorf("download: descriptor has no download url")
	}
	if dl.opts.verifier != nil && d.SignatureURL == "" {
		return ErrMissingSignature
	}

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("download: create dir: %w", err)
	}

	body, total, err := dl.open(ctx, d.DownloadURL)
	if err != nil {
		return err
	}
	defer body.Close()

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return fmt.Errorf("download: temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpPath)
	}()

	hasher := sha256.New()
	var reader io.Reader = body
	if progress != nil && total > 0 {
		reader = &progressReader{r: body, total: total, report: progress}
	}

	if _, err := io.CopyBuffer(io.MultiWriter(tmp, hasher), reader, make([]byte, ChunkSize)); err != nil {
		return fmt.Errorf("download: write file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("download: sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("download: close file: %w", err)
	}

	if d.SHA256 != "" {
		actual := hex.EncodeToString(hasher.Sum(nil))
		if !strings.EqualFold(actual, d.SHA256) {
			return fmt.Errorf("%w: got %s want %s", ErrChecksumMismatch, actual, d.SHA256)
		}
	}

	if dl.opts.verifier != nil {
		sig, err := fetch.ReadAll(ctx, dl.opts.client, d.SignatureURL, dl.opts.userAgent, maxSignatureSize)
		if err != nil {
			return fmt.Errorf("download signature: %w", err)
		}
		if err := dl.opts.verifier.VerifyFile(tmpPath, sig); err != nil {
			return err
		}
	}

	if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("download: remove existing: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("download: finalize file: %w", err)
	}

	dl.opts.logger.Info("update downloaded", slogs.URL, d.DownloadURL, slogs.Path, dst, slogs.Size, total)
	return nil
}

// open applies the download timeout to connection setup and headers only.
func (dl *Downloader) open(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	if dl.opts.timeout <= 0 || fetch.IsLocal(url) {
		return fetch.Open(ctx, dl.opts.client, url, dl.opts.userAgent)
	}

	ctx, cancel := context.WithCancel(ctx)
	timer := time.AfterFunc(dl.opts.timeout, cancel)
	body, size, err := fetch.Open(ctx, dl.opts.client, url, dl.opts.userAgent)
	timer.Stop()
	if err != nil {
		cancel()
		return nil, -1, err
	}
	return &cancelReadCloser{ReadCloser: body, cancel: cancel}, size, nil
}

type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	report ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		p.report(p.read, p.total)
	}
	return n, err
}
