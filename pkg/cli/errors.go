// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/kyeo-hub/worktools/internal/config"
	"github.com/kyeo-hub/worktools/internal/fetch"
	"github.com/kyeo-hub/worktools/internal/plugin"
	"github.com/kyeo-hub/worktools/internal/repository"
	"github.com/kyeo-hub/worktools/internal/update"
)

// ErrorDisplayMode controls how errors are displayed
type ErrorDisplayMode int

const (
	// ErrorDisplaySimple shows the error message and one hint
	ErrorDisplaySimple ErrorDisplayMode = iota
	// ErrorDisplayDetailed also shows the wrapped error chain
	ErrorDisplayDetailed
	// ErrorDisplayJSON shows error in JSON format
	ErrorDisplayJSON
)

// ErrorHandler turns command errors into terminal notifications.
type ErrorHandler struct {
	Mode    ErrorDisplayMode
	NoColor bool
	Out     io.Writer
}

// NewErrorHandler creates a new error handler writing to stderr.
func NewErrorHandler(detailed bool, noColor bool) *ErrorHandler {
	mode := ErrorDisplaySimple
	if detailed {
		mode = ErrorDisplayDetailed
	}

	return &ErrorHandler{
		Mode:    mode,
		NoColor: noColor,
		Out:     os.Stderr,
	}
}

type errorReport struct {
	Operation string   `json:"operation,omitempty"`
	Error     string   `json:"error"`
	Hint      string   `json:"hint,omitempty"`
	Causes    []string `json:"causes,omitempty"`
}

// HandleError formats and displays err. operation names what failed.
func (h *ErrorHandler) HandleError(err error, operation string) {
	if err == nil {
		return
	}

	report := errorReport{
		Operation: operation,
		Error:     err.Error(),
		Hint:      Hint(err),
	}
	if h.Mode != ErrorDisplaySimple {
		report.Causes = causes(err)
	}

	if h.Mode == ErrorDisplayJSON {
		enc := json.NewEncoder(h.out())
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
		return
	}

	red := h.colorFunc(color.FgRed)
	yellow := h.colorFunc(color.FgYellow)

	if operation != "" {
		fmt.Fprintf(h.out(), "%s %s failed: %v\n", red("Error:"), operation, err)
	} else {
		fmt.Fprintf(h.out(), "%s %v\n", red("Error:"), err)
	}

	var verrs config.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 1 {
		for _, v := range verrs {
			fmt.Fprintf(h.out(), "  • %s: %s\n", v.Field, v.Message)
		}
	}

	if report.Hint != "" {
		fmt.Fprintf(h.out(), "%s %s\n", yellow("Hint:"), report.Hint)
	}
	for _, c := range report.Causes {
		fmt.Fprintf(h.out(), "  caused by: %s\n", c)
	}
}

// Hint returns a suggestion for a well-known error, or "".
func Hint(err error) string {
	var status *fetch.StatusError
	switch {
	case errors.Is(err, plugin.ErrNotFound):
		return "Run 'worktools plugin list' to see the loaded plugins."
	case errors.Is(err, plugin.ErrDisabled):
		return "The plugin is disabled and cannot be activated."
	case errors.Is(err, repository.ErrNotInstalled):
		return "Run 'worktools repo list' to see what is installed."
	case errors.Is(err, repository.ErrUnknownPackage):
		return "Run 'worktools repo list' to browse the plugin catalog."
	case errors.Is(err, repository.ErrDependencyCycle):
		return "The catalog declares circular dependencies; report it to the repository maintainer."
	case errors.Is(err, repository.ErrChecksumMismatch), errors.Is(err, update.ErrChecksumMismatch):
		return "The download is corrupt or was tampered with. Try again later."
	case errors.Is(err, update.ErrBadSignature), errors.Is(err, update.ErrMissingSignature):
		return "The update is not signed by a trusted key and was not installed."
	case errors.Is(err, update.ErrNoUpdateURL):
		return "Set one with 'worktools config set update.url <url>'."
	case errors.Is(err, update.ErrBusy):
		return "Another update operation is already running."
	case errors.Is(err, update.ErrInvalidVersion):
		return "Check the version field of the version document."
	case errors.As(err, &status):
		return fmt.Sprintf("The server answered %d; check the URL or try again later.", status.Code)
	}
	return ""
}

func causes(err error) []string {
	var out []string
	for e := errors.Unwrap(err); e != nil; e = errors.Unwrap(e) {
		out = append(out, e.Error())
	}
	return out
}

func (h *ErrorHandler) out() io.Writer {
	if h.Out == nil {
		return os.Stderr
	}
	return h.Out
}

// colorFunc returns a color function or identity function if colors are disabled
func (h *ErrorHandler) colorFunc(attr color.Attribute) func(...interface{}) string {
	return colorFunc(h.NoColor, attr)
}

func colorFunc(noColor bool, attrs ...color.Attribute) func(...interface{}) string {
	if noColor {
		return func(a ...interface{}) string {
			return fmt.Sprint(a...)
		}
	}
	c := color.New(attrs...)
	c.EnableColor()
	return c.SprintFunc()
}
