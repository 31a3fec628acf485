// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package update

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	// DefaultLocalVersion is assumed when no version document exists.
	DefaultLocalVersion = "0.1.0"
	// UnversionedLocalVersion is used when the document has no version key.
	UnversionedLocalVersion = "0.0.0"
)

// LocalVersion reads the version.json document shipped with the build.
type LocalVersion struct {
	path string
}

// NewLocalVersion creates a reader for the document at path.
func NewLocalVersion(path string) *LocalVersion {
	return &LocalVersion{path: path}
}

// Path returns the document location.
func (l *LocalVersion) Path() string {
	return l.path
}

func (l *LocalVersion) read() (gjson.Result, bool) {
	data, err := os.ReadFile(l.path)
	if err != nil || !gjson.ValidBytes(data) {
		return gjson.Result{}, false
	}
	return gjson.ParseBytes(data), true
}

// Version returns the running version.
func (l *LocalVersion) Version() string {
	doc, ok := l.read()
	if !ok {
		return DefaultLocalVersion
	}
	v := doc.Get("version")
	if !v.Exists() || v.String() == "" {
		return UnversionedLocalVersion
	}
	return v.String()
}

// ErrInvalidDocument is returned by Validate for a document that is not
// JSON.
var ErrInvalidDocument = errors.New("version document is not valid JSON")

// Validate reports problems with the document: a missing file wraps
// fs.ErrNotExist, bad JSON is ErrInvalidDocument and an unparsable version
// is ErrInvalidVersion.
func (l *LocalVersion) Validate() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("read version document: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("%w: %s", ErrInvalidDocument, l.path)
	}
	if v := gjson.GetBytes(data, "version"); v.Exists() {
		if _, err := ParseVersion(v.String()); err != nil {
			return err
		}
	}
	return nil
}

// UpdateURL returns the document's update_url, or "".
func (l *LocalVersion) UpdateURL() string {
	doc, ok := l.read()
	if !ok {
		return ""
	}
	return doc.Get("update_url").String()
}

// SetVersion rewrites the version key, keeping every other field.
func (l *LocalVersion) SetVersion(version string) error {
	return l.set("version", version)
}

// SetUpdateURL rewrites the update_url key, keeping every other field.
func (l *LocalVersion) SetUpdateURL(url string) error {
	return l.set("update_url", url)
}

func (l *LocalVersion) set(key, value string) error {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !gjson.ValidBytes(data)) {
		data = []byte("{}")
	} else if err != nil {
		return fmt.Errorf("read %s: %w", l.path, err)
	}

	out, err := sjson.SetBytes(data, key, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return writeAtomic(l.path, out, 0o644)
}

func writeAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	return os.Rename(tmpPath, path)
}
