// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package repository

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kyeo-hub/worktools/internal/fetch"
	"github.com/kyeo-hub/worktools/internal/slogs"
)

// DefaultTimeout bounds a catalog fetch.
const DefaultTimeout = 10 * time.Second

const maxCatalogSize = 8 << 20

// Client fetches plugin catalogs.
type Client struct {
	http      fetch.HTTPClient
	userAgent string
	timeout   time.Duration
	logger    *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c fetch.HTTPClient) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(cl *Client) {
		if ua != "" {
			cl.userAgent = ua
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// NewClient returns a catalog client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		http:      http.DefaultClient,
		userAgent: fetch.DefaultUserAgent,
		timeout:   DefaultTimeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch downloads and parses the catalog at url.
func (c *Client) Fetch(ctx context.Context, url string) (*Catalog, error) {
	if url == "" {
		return nil, fmt.Errorf("fetch catalog: no repository url configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.Info("Fetching plugin catalog", slogs.URL, url)
	data, err := fetch.ReadAll(ctx, c.http, url, c.userAgent, maxCatalogSize)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}

	cat, err := ParseCatalog(data)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Fetched plugin catalog", slogs.URL, url, slogs.Count, len(cat.Plugins))
	return cat, nil
}
