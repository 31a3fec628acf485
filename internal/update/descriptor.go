// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package update

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// Descriptor is the remote description of the latest release.
type Descriptor struct {
	Version      string   `json:"version" yaml:"version"`
	Changelog    []string `json:"changelog" yaml:"changelog"`
	DownloadURL  string   `json:"download_url" yaml:"download_url"`
	Mandatory    bool     `json:"mandatory" yaml:"mandatory"`
	PublishedAt  string   `json:"published_at" yaml:"published_at"`
	SHA256       string   `json:"sha256,omitempty" yaml:"sha256,omitempty"`
	SignatureURL string   `json:"signature_url,omitempty" yaml:"signature_url,omitempty"`
}

// Result is the outcome of a version check.
type Result struct {
	HasUpdate      bool        `json:"has_update" yaml:"has_update"`
	CurrentVersion string      `json:"current_version" yaml:"current_version"`
	LatestVersion  string      `json:"latest_version" yaml:"latest_version"`
	Descriptor     *Descriptor `json:"descriptor,omitempty" yaml:"descriptor,omitempty"`
}

// Mandatory reports whether the pending update may not be postponed.
func (r *Result) Mandatory() bool {
	return r != nil && r.HasUpdate && r.Descriptor != nil && r.Descriptor.Mandatory
}

// ParseDescriptor decodes a remote version document. A missing version is
// reported as current, so the result never offers an update for it. The
// changelog may be a list or a single string.
func ParseDescriptor(data []byte, current string) (*Descriptor, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("decode version document: invalid JSON")
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, fmt.Errorf("decode version document: not an object")
	}

	d := &Descriptor{
		Version:      current,
		DownloadURL:  doc.Get("download_url").String(),
		Mandatory:    doc.Get("mandatory").Bool(),
		PublishedAt:  doc.Get("published_at").String(),
		SHA256:       doc.Get("sha256").String(),
		SignatureURL: doc.Get("signature_url").String(),
	}
	if v := doc.Get("version"); v.Exists() && v.String() != "" {
		d.Version = v.String()
	}

	switch cl := doc.Get("changelog"); {
	case cl.IsArray():
		for _, item := range cl.Array() {
			d.Changelog = append(d.Changelog, item.String())
		}
	case cl.Exists() && cl.String() != "":
		d.Changelog = []string{cl.String()}
	}

	return d, nil
}
