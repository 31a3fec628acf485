// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package update

import (
	"context"
	"errors"

	"github.com/kyeo-hub/worktools/internal/fetch"
	"github.com/kyeo-hub/worktools/internal/slogs"
)

// ErrNoUpdateURL is returned when neither the local document nor the
// configuration names a version document.
var ErrNoUpdateURL = errors.New("no update url configured")

const maxDocumentSize = 1 << 20

// Checker compares the local version with the remote version document.
type Checker struct {
	local *LocalVersion
	opts  options
}

// NewChecker creates a checker for the running build.
func NewChecker(local *LocalVersion, opts ...Option) *Checker {
	return &Checker{local: local, opts: newOptions(DefaultCheckTimeout, opts)}
}

// URL returns the version document the next check will fetch.
func (c *Checker) URL() string {
	if u := c.local.UpdateURL(); u != "" {
		return u
	}
	return c.opts.url
}

// Check fetches the remote document and compares versions.
func (c *Checker) Check(ctx context.Context) (*Result, error) {
	current := c.local.Version()
	url := c.URL()
	if url == "" {
		return nil, ErrNoUpdateURL
	}

	if c.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.timeout)
		defer cancel()
	}

	c.opts.logger.Debug("checking for updates", slogs.URL, url, slogs.CurrentVersion, current)

	data, err := fetch.ReadAll(ctx, c.opts.client, url, c.opts.userAgent, maxDocumentSize)
	if err != nil {
		return nil, err
	}

	desc, err := ParseDescriptor(data, current)
	if err != nil {
		return nil, err
	}

	cmp, err := Compare(desc.Version, current)
	if err != nil {
		return nil, err
	}

	res := &Result{
		HasUpdate:      cmp > 0,
		CurrentVersion: current,
		LatestVersion:  desc.Version,
	}
	if res.HasUpdate {
		res.Descriptor = desc
	}

	c.opts.logger.Info("update check completed",
		slogs.CurrentVersion, current,
		slogs.LatestVersion, desc.Version,
		slogs.Status, res.HasUpdate)
	return res, nil
}
