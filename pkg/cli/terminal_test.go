// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyeo-hub/worktools/internal/update"
)

func newTestTerminal(input string) (*Terminal, *bytes.Buffer) {
	var out bytes.Buffer
	return NewTerminal(WithOutput(&out), WithInput(strings.NewReader(input)), WithNoColor(true)), &out
}

func pending(mandatory bool) *update.Result {
	return &update.Result{
		HasUpdate:      true,
		CurrentVersion: "1.0.0",
		LatestVersion:  "1.2.0",
		Descriptor: &update.Descriptor{
			Version:   "1.2.0",
			Changelog: []string{"Faster startup", "New catalog view"},
			Mandatory: mandatory,
		},
	}
}

func TestTerminal_Confirm(t *testing.T) {
	uu := map[string]struct {
		input     string
		mandatory bool
		e         bool
	}{
		"yes":           {input: "y\n", e: true},
		"yes_word":      {input: " YES \n", e: true},
		"no":            {input: "n\n"},
		"empty":         {input: "\n"},
		"eof":           {input: ""},
		"mandatory_yes": {input: "y\n", mandatory: true, e: true},
		"mandatory_no":  {input: "no\n", mandatory: true},
	}

	for k := range uu {
		u := uu[k]
		t.Run(k, func(t *testing.T) {
			term, out := newTestTerminal(u.input)
			ok, err := term.Confirm(pending(u.mandatory))
			require.NoError(t, err)
			assert.Equal(t, u.e, ok)

			text := out.String()
			assert.Contains(t, text, "New version found: 1.2.0")
			assert.Contains(t, text, "• Faster startup")
			if u.mandatory {
				assert.Contains(t, text, "mandatory update")
				assert.Contains(t, text, "required to continue")
			} else {
				assert.NotContains(t, text, "mandatory")
			}
		})
	}
}

func TestTerminal_Notifications(t *testing.T) {
	term, out := newTestTerminal("")

	term.Info("Check for updates", "You are running the latest version (1.0.0).")
	term.Warn("Update failed", "line one\nline two")
	term.Error("Error", "boom")
	term.Success("Installed", "notes")

	assert.Equal(t,
		"Check for updates: You are running the latest version (1.0.0).\n"+
			"Update failed: line one\n"+
			"  line two\n"+
			"Error: boom\n"+
			"Installed: notes\n",
		out.String())
}

func TestTerminal_PlainProgress(t *testing.T) {
	term, out := newTestTerminal("")

	for _, n := range []int64{0, 10, 50, 99, 100} {
		term.Progress(n, 100)
	}
	term.Done()

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, []string{
		RenderBar(0, 100, barWidth),
		RenderBar(10, 100, barWidth),
		RenderBar(50, 100, barWidth),
		RenderBar(99, 100, barWidth),
		RenderBar(100, 100, barWidth),
	}, lines)
}

func TestRenderBar(t *testing.T) {
	uu := map[string]struct {
		done, total int64
		e           string
	}{
		"unknown": {done: 2048, e: "Downloading... 2048 bytes"},
		"empty":   {done: 0, total: 10, e: "Downloading [----------]   0% (0/10 bytes)"},
		"half":    {done: 5, total: 10, e: "Downloading [#####-----]  50% (5/10 bytes)"},
		"full":    {done: 10, total: 10, e: "Downloading [##########] 100% (10/10 bytes)"},
		"over":    {done: 12, total: 10, e: "Downloading [##########] 100% (10/10 bytes)"},
	}

	for k := range uu {
		u := uu[k]
		t.Run(k, func(t *testing.T) {
			assert.Equal(t, u.e, RenderBar(u.done, u.total, 10))
		})
	}
}

func TestProgressModel(t *testing.T) {
	m, cmd := progressModel{}.Update(progressMsg{downloaded: 5, total: 10})
	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "50%")

	_, cmd = m.Update(progressMsg{downloaded: 10, total: 10})
	assert.NotNil(t, cmd)
}
