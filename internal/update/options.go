// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package update

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/kyeo-hub/worktools/internal/fetch"
)

// DefaultCheckTimeout bounds a version check.
const DefaultCheckTimeout = 10 * time.Second

// DefaultDownloadTimeout bounds the time to first byte of a download.
const DefaultDownloadTimeout = 30 * time.Second

type options struct {
	client    fetch.HTTPClient
	userAgent string
	timeout   time.Duration
	url       string
	verifier  *Verifier
	logger    *slog.Logger
}

// Option configures a Checker or Downloader.
type Option func(*options)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c fetch.HTTPClient) Option {
	return func(o *options) {
		if c != nil {
			o.client = c
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *options) {
		o.userAgent = ua
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithURL sets the version document URL used when the local document has
// none.
func WithURL(url string) Option {
	return func(o *options) {
		o.url = url
	}
}

// WithVerifier requires downloads to carry a valid detached signature.
func WithVerifier(v *Verifier) Option {
	return func(o *options) {
		o.verifier = v
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func newOptions(timeout time.Duration, opts []Option) options {
	o := options{
		client:    http.DefaultClient,
		userAgent: fetch.DefaultUserAgent,
		timeout:   timeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
