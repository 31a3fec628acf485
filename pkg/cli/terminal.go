// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

// Package cli renders WorkTools notifications on a terminal.
package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/mattn/go-colorable"

	"github.com/kyeo-hub/worktools/internal/update"
)

// Terminal prints notifications and asks questions on a terminal. It
// implements update.Notifier.
type Terminal struct {
	out     io.Writer
	in      *bufio.Reader
	noColor bool
	plain   bool

	mu  sync.Mutex
	bar progressBar
}

var _ update.Notifier = (*Terminal)(nil)

// TerminalOption configures a Terminal.
type TerminalOption func(*Terminal)

// WithOutput redirects notifications.
func WithOutput(w io.Writer) TerminalOption {
	return func(t *Terminal) {
		if w != nil {
			t.out = w
		}
	}
}

// WithInput sets where answers are read from.
func WithInput(r io.Reader) TerminalOption {
	return func(t *Terminal) {
		if r != nil {
			t.in = bufio.NewReader(r)
		}
	}
}

// WithNoColor disables colors and the animated progress bar.
func WithNoColor(noColor bool) TerminalOption {
	return func(t *Terminal) {
		t.noColor = noColor
		t.plain = t.plain || noColor
	}
}

// WithPlainProgress prints progress as lines instead of an animated bar.
func WithPlainProgress() TerminalOption {
	return func(t *Terminal) {
		t.plain = true
	}
}

// NewTerminal returns a terminal on stdout and stdin. Colors and the
// animated progress bar are off when stdout is not a terminal.
func NewTerminal(opts ...TerminalOption) *Terminal {
	t := &Terminal{
		out:     colorable.NewColorableStdout(),
		in:      bufio.NewReader(os.Stdin),
		noColor: color.NoColor,
		plain:   color.NoColor,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Out returns the notification writer.
func (t *Terminal) Out() io.Writer {
	return t.out
}

// Info prints an informational notification.
func (t *Terminal) Info(title, message string) {
	t.Done()
	t.notify(colorFunc(t.noColor, color.FgCyan, color.Bold), title, message)
}

// Warn prints a warning notification.
func (t *Terminal) Warn(title, message string) {
	t.Done()
	t.notify(colorFunc(t.noColor, color.FgYellow, color.Bold), title, message)
}

// Error prints an error notification.
func (t *Terminal) Error(title, message string) {
	t.Done()
	t.notify(colorFunc(t.noColor, color.FgRed, color.Bold), title, message)
}

// Success prints a completion notification.
func (t *Terminal) Success(title, message string) {
	t.Done()
	t.notify(colorFunc(t.noColor, color.FgGreen, color.Bold), title, message)
}

func (t *Terminal) notify(paint func(...interface{}) string, title, message string) {
	lines := strings.Split(strings.TrimRight(message, "\n"), "\n")
	fmt.Fprintf(t.out, "%s %s\n", paint(title+":"), lines[0])
	for _, l := range lines[1:] {
		fmt.Fprintf(t.out, "  %s\n", l)
	}
}

// Confirm shows the pending update and asks whether to install it now. A
// mandatory update is announced as such; declining it is reported by the
// updater.
func (t *Terminal) Confirm(res *update.Result) (bool, error) {
	t.Done()
	fmt.Fprintln(t.out, t.UpdateNotice(res))

	prompt := "Install now? [y/N] "
	if res.Mandatory() {
		prompt = "This update is required to continue. Install now? [y/N] "
	}
	return t.Ask(prompt)
}

// Ask prints prompt and reads a yes/no answer. Anything but y or yes,
// including end of input, is no.
func (t *Terminal) Ask(prompt string) (bool, error) {
	fmt.Fprint(t.out, prompt)
	line, err := t.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read answer: %w", err)
	}
	if errors.Is(err, io.EOF) && line == "" {
		fmt.Fprintln(t.out)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// UpdateNotice renders the boxed release summary.
func (t *Terminal) UpdateNotice(res *update.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New version found: %s\n", res.LatestVersion)
	fmt.Fprintf(&b, "Current version: %s", res.CurrentVersion)
	if d := res.Descriptor; d != nil {
		if d.PublishedAt != "" {
			fmt.Fprintf(&b, "\nPublished: %s", d.PublishedAt)
		}
		if len(d.Changelog) > 0 {
			b.WriteString("\n\nWhat's new:")
			for _, c := range d.Changelog {
				fmt.Fprintf(&b, "\n  • %s", c)
			}
		}
	}
	if res.Mandatory() {
		b.WriteString("\n\nThis is a mandatory update.")
	}

	if t.noColor {
		return lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			Padding(0, 1).
			Render(b.String())
	}

	border := lipgloss.Color("86")
	if res.Mandatory() {
		border = lipgloss.Color("196")
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1).
		Render(b.String())
}

// Progress reports download progress. The first call starts the bar, Done
// or any other notification stops it.
func (t *Terminal) Progress(downloaded, total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bar == nil {
		if t.plain {
			t.bar = newLineBar(t.out)
		} else {
			t.bar = newTeaBar(t.out)
		}
	}
	t.bar.Update(downloaded, total)
}

// Done stops a running progress bar.
func (t *Terminal) Done() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bar != nil {
		t.bar.Stop()
		t.bar = nil
	}
}
