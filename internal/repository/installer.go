// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"

	"github.com/kyeo-hub/worktools/internal/fetch"
	"github.com/kyeo-hub/worktools/internal/slogs"
	"github.com/kyeo-hub/worktools/internal/update"
)

const (
	// DefaultDownloadTimeout bounds the time to first byte of a package
	// download.
	DefaultDownloadTimeout = 30 * time.Second
	// ChunkSize is the read size used while streaming a package.
	ChunkSize = 8 * 1024

	deletedMarker = ".deleted_"
)

// ProgressFunc receives the bytes written so far and the expected total,
// which is 0 when the server does not announce a length.
type ProgressFunc func(downloaded, total int64)

// Cloner fetches a git repository into dest.
type Cloner func(ctx context.Context, remote, dest string, progress io.Writer) error

// Installer manages the packages present in a plugin directory.
type Installer struct {
	dir       string
	http      fetch.HTTPClient
	userAgent string
	timeout   time.Duration
	clone     Cloner
	logger    *slog.Logger

	now       func() time.Time
	removeAll func(string) error
}

// InstallerOption configures an Installer.
type InstallerOption func(*Installer)

// WithDownloadClient replaces the HTTP client used for package downloads.
func WithDownloadClient(c fetch.HTTPClient) InstallerOption {
	return func(in *Installer) {
		if c != nil {
			in.http = c
		}
	}
}

// WithDownloadTimeout overrides DefaultDownloadTimeout.
func WithDownloadTimeout(d time.Duration) InstallerOption {
	return func(in *Installer) {
		if d > 0 {
			in.timeout = d
		}
	}
}

// WithCloner replaces the git clone implementation.
func WithCloner(c Cloner) InstallerOption {
	return func(in *Installer) {
		if c != nil {
			in.clone = c
		}
	}
}

// WithInstallerLogger sets the installer logger.
func WithInstallerLogger(l *slog.Logger) InstallerOption {
	return func(in *Installer) {
		if l != nil {
			in.logger = l
		}
	}
}

// NewInstaller returns an installer for the plugin directory dir.
func NewInstaller(dir string, opts ...InstallerOption) *Installer {
	in := &Installer{
		dir:       dir,
		http:      http.DefaultClient,
		userAgent: fetch.DefaultUserAgent,
		timeout:   DefaultDownloadTimeout,
		clone:     GitClone,
		logger:    slog.Default(),
		now:       time.Now,
		removeAll: os.RemoveAll,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Dir returns the plugin directory.
func (in *Installer) Dir() string {
	return in.dir
}

// Installed returns the ids present in the plugin directory: file names
// without extension and directory names. A missing directory has none.
func (in *Installer) Installed() ([]string, error) {
	entries, err := os.ReadDir(in.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read plugin dir: %w", err)
	}

	seen := make(map[string]struct{})
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		id, ok := entryID(e)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// IsInstalled reports whether id has an entry in the plugin directory.
func (in *Installer) IsInstalled(id string) bool {
	paths, err := in.entriesFor(id)
	return err == nil && len(paths) > 0
}

// Install installs id and any of its dependencies that are not installed
// yet, dependencies first. It returns the ids it installed, in order.
func (in *Installer) Install(ctx context.Context, cat *Catalog, id string, progress ProgressFunc) ([]string, error) {
	plan, err := in.plan(cat, id)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(in.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create plugin dir: %w", err)
	}

	done := make([]string, 0, len(plan))
	for _, p := range plan {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		in.logger.Info("Installing plugin package",
			slogs.ID, p.ID,
			slogs.URL, p.URL,
		)
		if err := in.installOne(ctx, p, progress); err != nil {
			return done, fmt.Errorf("install %s: %w", p.ID, err)
		}
		done = append(done, p.ID)
	}
	return done, nil
}

// plan orders id after its missing dependencies.
func (in *Installer) plan(cat *Catalog, id string) ([]Package, error) {
	if _, ok := cat.Lookup(id); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPackage, id)
	}

	var (
		order    []Package
		visiting = make(map[string]bool)
		visited  = make(map[string]bool)
		visit    func(id string, chain []string) error
	)
	visit = func(id string, chain []string) error {
		if visited[id] {
			return nil
		}
		chain = append(chain, id)
		if visiting[id] {
			return fmt.Errorf("%w: %s", ErrDependencyCycle, strings.Join(chain, " -> "))
		}
		p, ok := cat.Lookup(id)
		if !ok {
			return fmt.Errorf("%w: %s (required by %s)", ErrUnknownPackage, id, chain[len(chain)-2])
		}

		visiting[id] = true
		for _, dep := range p.Dependencies {
			if dep == "" || (visited[dep] || (!visiting[dep] && in.IsInstalled(dep))) {
				continue
			}
			if err := visit(dep, chain); err != nil {
				return err
			}
		}
		visiting[id] = false
		visited[id] = true
		order = append(order, p)
		return nil
	}

	if err := visit(id, nil); err != nil {
		return nil, err
	}
	return order, nil
}

func (in *Installer) installOne(ctx context.Context, p Package, progress ProgressFunc) error {
	if IsGitURL(p.URL) {
		return in.installGit(ctx, p, progress)
	}
	return in.installFile(ctx, p, progress)
}

func (in *Installer) installGit(ctx context.Context, p Package, progress ProgressFunc) error {
	dest := filepath.Join(in.dir, p.ID)
	w := &logWriter{logger: in.logger, id: p.ID}
	if err := in.clone(ctx, GitRemote(p.URL), dest, w); err != nil {
		return err
	}
	if progress != nil {
		progress(1, 1)
	}
	return nil
}

func (in *Installer) installFile(ctx context.Context, p Package, progress ProgressFunc) error {
	name := packageFileName(p)

	openCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	timer := time.AfterFunc(in.timeout, cancel)
	body, total, err := fetch.Open(openCtx, in.http, p.URL, in.userAgent)
	if !timer.Stop() && err != nil {
		return fmt.Errorf("download timed out after %s: %w", in.timeout, err)
	}
	if err != nil {
		return err
	}
	defer body.Close()
	if total < 0 {
		total = 0
	}

	tmp, err := os.CreateTemp(in.dir, ".download-*-"+name)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	hasher := sha256.New()
	var dst io.Writer = io.MultiWriter(tmp, hasher)
	if progress != nil {
		dst = &progressWriter{w: dst, total: total, report: progress}
	}
	_, err = io.CopyBuffer(dst, body, make([]byte, ChunkSize))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}

	if p.SHA256 != "" {
		actual := hex.EncodeToString(hasher.Sum(nil))
		if !strings.EqualFold(actual, p.SHA256) {
			return fmt.Errorf("%w: got %s want %s", ErrChecksumMismatch, actual, p.SHA256)
		}
	}

	if strings.EqualFold(filepath.Ext(name), ".zip") {
		return in.unpack(tmpPath)
	}
	return os.Rename(tmpPath, filepath.Join(in.dir, name))
}

// unpack extracts archive next to the installed plugins. Top-level entries
// replace existing ones with the same name.
func (in *Installer) unpack(archive string) error {
	staging, err := os.MkdirTemp(in.dir, ".extract-")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	if err := update.Extract(archive, staging); err != nil {
		return err
	}

	entries, err := os.ReadDir(staging)
	if err != nil {
		return fmt.Errorf("read staging dir: %w", err)
	}
	for _, e := range entries {
		target := filepath.Join(in.dir, e.Name())
		if err := in.removeAll(target); err != nil {
			return fmt.Errorf("replace %s: %w", e.Name(), err)
		}
		if err := os.Rename(filepath.Join(staging, e.Name()), target); err != nil {
			return fmt.Errorf("move %s: %w", e.Name(), err)
		}
	}
	return nil
}

// Uninstall removes every entry installed under id. Entries that cannot be
// removed for lack of permission, such as files held open on Windows, are
// renamed with a .deleted_<unix> suffix instead.
func (in *Installer) Uninstall(id string) error {
	paths, err := in.entriesFor(id)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("%w: %s", ErrNotInstalled, id)
	}

	for _, p := range paths {
		err := in.removeAll(p)
		if err == nil {
			in.logger.Info("Removed plugin entry", slogs.ID, id, slogs.Path, p)
			continue
		}
		if !errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("uninstall %s: %w", id, err)
		}
		marked := fmt.Sprintf("%s%s%d", p, deletedMarker, in.now().Unix())
		if rerr := os.Rename(p, marked); rerr != nil {
			return fmt.Errorf("uninstall %s: %w", id, rerr)
		}
		in.logger.Warn("Plugin entry in use, marked for deletion",
			slogs.ID, id,
			slogs.Path, marked,
		)
	}
	return nil
}

func (in *Installer) entriesFor(id string) ([]string, error) {
	entries, err := os.ReadDir(in.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read plugin dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if got, ok := entryID(e); ok && got == id {
			paths = append(paths, filepath.Join(in.dir, e.Name()))
		}
	}
	return paths, nil
}

func entryID(e fs.DirEntry) (string, bool) {
	name := e.Name()
	if strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") || strings.Contains(name, deletedMarker) {
		return "", false
	}
	if e.IsDir() {
		return name, true
	}
	return strings.TrimSuffix(name, filepath.Ext(name)), true
}

// packageFileName is the last path element of the package URL, falling back
// to the package id.
func packageFileName(p Package) string {
	var name string
	if filepath.IsAbs(p.URL) {
		name = filepath.Base(p.URL)
	} else if u, err := url.Parse(p.URL); err == nil {
		name = path.Base(u.Path)
	}
	if name == "" || name == "." || name == "/" || name == ".." {
		return p.ID
	}
	return name
}

// IsGitURL reports whether rawURL names a git repository: a git+ prefix or
// a .git suffix.
func IsGitURL(rawURL string) bool {
	return strings.HasPrefix(rawURL, "git+") ||
		strings.HasSuffix(strings.TrimSuffix(rawURL, "/"), ".git")
}

// GitRemote strips the git+ prefix from rawURL.
func GitRemote(rawURL string) string {
	return strings.TrimPrefix(rawURL, "git+")
}

// GitClone shallow-clones the default branch of remote into dest, replacing
// anything already there.
func GitClone(ctx context.Context, remote, dest string, progress io.Writer) error {
	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("clone: clear %s: %w", dest, err)
	}
	_, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{
		URL:          remote,
		Depth:        1,
		SingleBranch: true,
		Progress:     progress,
	})
	if err != nil {
		os.RemoveAll(dest)
		return fmt.Errorf("clone %s: %w", remote, err)
	}
	return nil
}

type progressWriter struct {
	w       io.Writer
	written int64
	total   int64
	report  ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	if n > 0 {
		p.written += int64(n)
		p.report(p.written, p.total)
	}
	return n, err
}

// logWriter forwards git sideband progress to the debug log.
type logWriter struct {
	logger *slog.Logger
	id     string
}

func (l *logWriter) Write(b []byte) (int, error) {
	if msg := strings.TrimSpace(string(b)); msg != "" {
		l.logger.Debug("git progress", slogs.ID, l.id, slogs.Status, msg)
	}
	return len(b), nil
}
