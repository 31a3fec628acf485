// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package update

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupportedArchive is returned for archive formats Extract cannot read.
	ErrUnsupportedArchive = errors.New("unsupported archive format")
	// ErrIllegalPath is returned for entries that would land outside the
	// destination.
	ErrIllegalPath = errors.New("illegal path in archive")
)

// Extract unpacks a .zip, .tar.gz or .tgz archive into dest. dest is wiped
// first.
func Extract(archive, dest string) error {
	kind := archiveKind(archive)
	if kind == "" {
		return fmt.Errorf("%w: %s", ErrUnsupportedArchive, filepath.Base(archive))
	}

	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("extract: clear %s: %w", dest, err)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("extract: create %s: %w", dest, err)
	}

	if kind == "zip" {
		return extractZip(archive, dest)
	}
	return extractTarGz(archive, dest)
}

// IsArchive reports whether name has an extension Extract understands.
func IsArchive(name string) bool {
	return archiveKind(name) != ""
}

func archiveKind(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return "zip"
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return "tgz"
	default:
		return ""
	}
}

func extractZip(archive, dest string) error {
	r, err := zip.OpenReader(archive)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return fmt.Errorf("extract: open archive: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		target, err := entryPath(dest, f.Name)
		if err != nil {
			return err
		}
		if target == "" {
			continue
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("extract: mkdir %s: %w", target, err)
			}
			continue
		}
		if !f.Mode().IsRegular() {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("extract: open %s: %w", f.Name, err)
		}
		err = writeFile(target, rc, f.Mode().Perm())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func extractTarGz(archive, dest string) error {
	file, err := os.Open(archive)
	if err != nil {
		return fmt.Errorf("extract: open archive: %w", err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("extract: gzip reader: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("extract: read archive: %w", err)
		}

		target, err := entryPath(dest, header.Name)
		if err != nil {
			return err
		}
		if target == "" {
			continue
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("extract: mkdir %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, os.FileMode(header.Mode).Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := symlinkWithin(dest, target, header.Linkname); err != nil {
				return err
			}
		}
	}
}

// entryPath maps an archive entry name into dest. It returns "" for the
// root entry itself.
func entryPath(dest, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(name, "./")))
	if clean == "." || clean == "" {
		return "", nil
	}
	if filepath.IsAbs(clean) || filepath.VolumeName(clean) != "" {
		return "", fmt.Errorf("%w: %s", ErrIllegalPath, name)
	}

	target := filepath.Join(dest, clean)
	if err := ensureWithinRoot(dest, target); err != nil {
		return "", fmt.Errorf("%w: %s", ErrIllegalPath, name)
	}
	return target, nil
}

func ensureWithinRoot(root, target string) error {
	root = filepath.Clean(root)
	target = filepath.Clean(target)
	if target == root {
		return nil
	}
	if !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return fmt.Errorf("extract: illegal path %s", target)
	}
	return nil
}

func symlinkWithin(root, target, link string) error {
	if filepath.IsAbs(link) {
		return fmt.Errorf("%w: absolute symlink %s", ErrIllegalPath, link)
	}
	resolved := filepath.Join(filepath.Dir(target), link)
	if err := ensureWithinRoot(root, resolved); err != nil {
		return fmt.Errorf("%w: symlink %s", ErrIllegalPath, link)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("extract: mkdir for %s: %w", target, err)
	}
	if err := os.Symlink(link, target); err != nil {
		return fmt.Errorf("extract: symlink %s: %w", target, err)
	}
	return nil
}

func writeFile(target string, r io.Reader, perm os.FileMode) error {
	if perm == 0 {
		perm = 0o644
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("extract: mkdir for file %s: %w", target, err)
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("extract: create file %s: %w", target, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("extract: copy file %s: %w", target, err)
	}
	return f.Close()
}
