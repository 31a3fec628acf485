// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package update

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kyeo-hub/worktools/internal/slogs"
)

var (
	// ErrBusy is returned when a check or download is already running.
	ErrBusy = errors.New("update already in progress")
	// ErrMandatoryDeclined is returned when the user refuses a mandatory
	// update. The host must not keep running.
	ErrMandatoryDeclined = errors.New("mandatory update declined")
)

// NotifiedError wraps a failure the Notifier has already shown.
type NotifiedError struct {
	Err error
}

func (e *NotifiedError) Error() string { return e.Err.Error() }
func (e *NotifiedError) Unwrap() error { return e.Err }

// Notified reports whether err was already shown through the Notifier.
func Notified(err error) bool {
	var n *NotifiedError
	return errors.As(err, &n)
}

// Notifier presents update messages to the user.
type Notifier interface {
	Info(title, message string)
	Warn(title, message string)
	// Confirm asks whether to install the pending update. A mandatory
	// update offers no way to postpone.
	Confirm(res *Result) (bool, error)
	Progress(downloaded, total int64)
}

// Updater runs the check, prompt, download and install flow.
type Updater struct {
	checker    *Checker
	downloader *Downloader
	notifier   Notifier
	history    HistoryRecorder
	logger     *slog.Logger

	workDir    string
	installDir string
	executable string
	goos       string
	launch     func(script string) error
	exit       func()

	checking atomic.Bool
	applying atomic.Bool
}

// UpdaterOption configures an Updater.
type UpdaterOption func(*Updater)

// WithNotifier sets where user-facing messages go.
func WithNotifier(n Notifier) UpdaterOption {
	return func(u *Updater) {
		u.notifier = n
	}
}

// WithHistory records every outcome.
func WithHistory(h HistoryRecorder) UpdaterOption {
	return func(u *Updater) {
		u.history = h
	}
}

// WithUpdaterLogger sets the logger.
func WithUpdaterLogger(logger *slog.Logger) UpdaterOption {
	return func(u *Updater) {
		u.logger = logger
	}
}

// WithWorkDir sets where bundles are downloaded and unpacked.
func WithWorkDir(dir string) UpdaterOption {
	return func(u *Updater) {
		u.workDir = dir
	}
}

// WithExecutable sets the binary that is replaced and relaunched. Its
// directory becomes the install directory.
func WithExecutable(exe string) UpdaterOption {
	return func(u *Updater) {
		u.executable = exe
		u.installDir = filepath.Dir(exe)
	}
}

// WithPlatform overrides the target operating system for the script.
func WithPlatform(goos string) UpdaterOption {
	return func(u *Updater) {
		u.goos = goos
	}
}

// WithLauncher replaces how the update script is started.
func WithLauncher(fn func(script string) error) UpdaterOption {
	return func(u *Updater) {
		u.launch = fn
	}
}

// WithExitFunc is called once the update script is running. The host uses
// it to save state and quit.
func WithExitFunc(fn func()) UpdaterOption {
	return func(u *Updater) {
		u.exit = fn
	}
}

// NewUpdater creates an updater.
func NewUpdater(checker *Checker, downloader *Downloader, opts ...UpdaterOption) *Updater {
	u := &Updater{
		checker:    checker,
		downloader: downloader,
		notifier:   nopNotifier{},
		history:    nopRecorder{},
		logger:     slog.Default(),
		workDir:    os.TempDir(),
		goos:       runtime.GOOS,
		launch:     Launch,
	}
	if exe, err := os.Executable(); err == nil {
		u.executable = exe
		u.installDir = filepath.Dir(exe)
	}

	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Check compares versions. With silent set, "up to date" and failure
// notices are suppressed.
func (u *Updater) Check(ctx context.Context, silent bool) (*Result, error) {
	if !u.checking.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer u.checking.Store(false)

	res, err := u.checker.Check(ctx)
	if err != nil {
		u.logger.Error("update check failed", slogs.Error, err, slogs.Silent, silent)
		u.record(ctx, KindCheck, u.checker.local.Version(), "", OutcomeFailed, err)
		if !silent {
			u.notifier.Warn("Update check failed", fmt.Sprintf("Unable to reach the update server:\n%v", err))
			return nil, &NotifiedError{Err: err}
		}
		return nil, err
	}

	if !res.HasUpdate {
		u.record(ctx, KindCheck, res.CurrentVersion, res.LatestVersion, OutcomeUpToDate, nil)
		if !silent {
			u.notifier.Info("Check for updates", fmt.Sprintf("You are running the latest version (%s).", res.CurrentVersion))
		}
		return res, nil
	}

	u.record(ctx, KindCheck, res.CurrentVersion, res.LatestVersion, OutcomeAvailable, nil)
	return res, nil
}

// Run checks and, when an update exists, offers it.
func (u *Updater) Run(ctx context.Context, silent bool) error {
	res, err := u.Check(ctx, silent)
	if err != nil {
		return err
	}
	if !res.HasUpdate {
		return nil
	}
	return u.Offer(ctx, res)
}

// Offer asks the user to install res and applies it on consent.
func (u *Updater) Offer(ctx context.Context, res *Result) error {
	ok, err := u.notifier.Confirm(res)
	if err != nil {
		return err
	}
	if !ok {
		u.record(ctx, KindApply, res.CurrentVersion, res.LatestVersion, OutcomeDeclined, nil)
		if res.Mandatory() {
			return ErrMandatoryDeclined
		}
		u.logger.Info("update postponed", slogs.LatestVersion, res.LatestVersion)
		return nil
	}
	return u.Apply(ctx, res)
}

// Apply downloads, unpacks and hands the bundle to the update script, then
// calls the exit hook. Only one Apply runs at a time.
func (u *Updater) Apply(ctx context.Context, res *Result) (err error) {
	if res == nil || !res.HasUpdate || res.Descriptor == nil {
		return fmt.Errorf("apply: no pending update")
	}
	if !u.applying.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer u.applying.Store(false)

	defer func() {
		if err != nil {
			u.logger.Error("update failed", slogs.LatestVersion, res.LatestVersion, slogs.Error, err)
			u.record(ctx, KindApply, res.CurrentVersion, res.LatestVersion, OutcomeFailed, err)
			u.notifier.Warn("Update failed", err.Error())
			err = &NotifiedError{Err: err}
		}
	}()

	archive := filepath.Join(u.workDir, archiveName(res.Descriptor.DownloadURL))
	if err := u.downloader.Download(ctx, *res.Descriptor, archive, u.notifier.Progress); err != nil {
		return fmt.Errorf("download update: %w", err)
	}

	extractDir := filepath.Join(u.workDir, "worktools_update")
	if err := Extract(archive, extractDir); err != nil {
		return fmt.Errorf("unpack update: %w", err)
	}

	script, err := WriteScript(u.workDir, u.goos, ScriptParams{
		ExtractDir: extractDir,
		InstallDir: u.installDir,
		Archive:    archive,
		Executable: u.executable,
		PID:        os.Getpid(),
	})
	if err != nil {
		return err
	}

	u.notifier.Info("Update ready", "The update is ready. WorkTools will close and install it now.")

	if err := u.launch(script); err != nil {
		return err
	}

	u.logger.Info("update script started", slogs.Script, script, slogs.LatestVersion, res.LatestVersion)
	u.record(ctx, KindApply, res.CurrentVersion, res.LatestVersion, OutcomeReady, nil)

	if u.exit != nil {
		u.exit()
	}
	return nil
}

func (u *Updater) record(ctx context.Context, kind HistoryKind, current, latest, outcome string, err error) {
	entry := HistoryEntry{
		ID:             uuid.New(),
		Kind:           kind,
		CurrentVersion: current,
		LatestVersion:  latest,
		Outcome:        outcome,
		CreatedAt:      time.Now().UTC(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if rerr := u.history.Record(context.WithoutCancel(ctx), entry); rerr != nil {
		u.logger.Warn("failed to record update history", slogs.Error, rerr)
	}
}

// archiveName keeps the bundle's extension so Extract can pick a format.
func archiveName(downloadURL string) string {
	base := path.Base(strings.SplitN(downloadURL, "?", 2)[0])
	if IsArchive(base) {
		lower := strings.ToLower(base)
		if strings.HasSuffix(lower, ".tar.gz") {
			return "worktools_update.tar.gz"
		}
		return "worktools_update" + strings.ToLower(filepath.Ext(base))
	}
	return "worktools_update.zip"
}

type nopNotifier struct{}

func (nopNotifier) Info(string, string)           {}
func (nopNotifier) Warn(string, string)           {}
func (nopNotifier) Confirm(*Result) (bool, error) { return false, nil }
func (nopNotifier) Progress(int64, int64)         {}
