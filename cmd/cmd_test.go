// SPDX-License-Identifier: MIT
// Copyright Authors of WorkTools

package cmd

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyeo-hub/worktools/internal/plugin"
	"github.com/kyeo-hub/worktools/internal/update"
	"github.com/kyeo-hub/worktools/pkg/cli"
)

type notes struct {
	plugin.Base
}

func (n *notes) View() string { return "3 notes" }

type silent struct {
	plugin.Base
}

func newTestShell(t *testing.T) (*shell, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	m := plugin.NewManager()
	ctx := context.Background()

	n := &notes{Base: plugin.NewBase("notes", "Take notes")}
	n.SetCategory("text")
	require.NoError(t, m.Register(ctx, n))
	s := &silent{Base: plugin.NewBase("quiet", "Has no panel")}
	require.NoError(t, m.Register(ctx, s))

	a := &app{
		logger: slog.Default(),
		term:   cli.NewTerminal(cli.WithOutput(&buf), cli.WithNoColor(true), cli.WithPlainProgress()),
	}
	sh := &shell{app: a, manager: m, out: &buf}
	m.AddListener(plugin.ListenerFunc(sh.pluginEvent))

	return sh, &buf
}

func TestShellExec(t *testing.T) {
	uu := map[string]struct {
		lines []string
		quit  bool
		err   error
		e     []string
	}{
		"empty": {
			lines: []string{"   "},
		},
		"quit": {
			lines: []string{"quit"},
			quit:  true,
		},
		"list": {
			lines: []string{"list"},
			e:     []string{"notes", "quiet", "Total: 2"},
		},
		"categories": {
			lines: []string{"categories"},
			e:     []string{"text", "notes"},
		},
		"use_with_view": {
			lines: []string{"use notes"},
			e:     []string{"Activated: notes", "3 notes"},
		},
		"use_without_view": {
			lines: []string{"use quiet"},
			e:     []string{"quiet: Has no panel"},
		},
		"switch": {
			lines: []string{"use notes", "use quiet"},
			e:     []string{"Deactivated: notes", "Activated: quiet"},
		},
		"close_active": {
			lines: []string{"use notes", "close"},
			e:     []string{"Deactivated: notes"},
		},
		"close_nothing": {
			lines: []string{"close"},
			err:   plugin.ErrNotActive,
		},
		"use_unknown": {
			lines: []string{"use nope"},
			err:   plugin.ErrNotFound,
		},
		"info_unknown": {
			lines: []string{"info nope"},
			err:   plugin.ErrNotFound,
		},
		"info_active": {
			lines: []string{"use notes", "info"},
			e:     []string{"Take notes"},
		},
		"view_idle": {
			lines: []string{"view"},
			e:     []string{"No plugin is active"},
		},
		"help": {
			lines: []string{"help"},
			e:     []string{"check-update", "uninstall <id>"},
		},
	}

	for k := range uu {
		u := uu[k]
		t.Run(k, func(t *testing.T) {
			sh, buf := newTestShell(t)

			var (
				quit bool
				err  error
			)
			for _, l := range u.lines {
				quit, err = sh.exec(context.Background(), l)
			}

			if u.err != nil {
				assert.ErrorIs(t, err, u.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, u.quit, quit)
			for _, e := range u.e {
				assert.Contains(t, buf.String(), e)
			}
		})
	}
}

func TestShellExec_UnknownCommand(t *testing.T) {
	sh, _ := newTestShell(t)

	_, err := sh.exec(context.Background(), "frobnicate now")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown command "frobnicate"`)
}

func TestLineReader(t *testing.T) {
	r := newLineReader(strings.NewReader("first\nsecond\n"))
	br := bufio.NewReader(r)

	line, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "first\n", line)

	line, err = br.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "second\n", line)

	_, err = br.ReadString('\n')
	assert.Error(t, err)
}

func TestShellLoop_EndOfInput(t *testing.T) {
	sh, buf := newTestShell(t)
	sh.lines = newLineReader(strings.NewReader("use notes\nlist\n"))

	require.NoError(t, sh.loop(context.Background(), nil))
	assert.Contains(t, buf.String(), shellPrompt)
	assert.Contains(t, buf.String(), "*  notes")
}

func TestShellLoop_UpdateFailureReportedOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/version.json" {
			_, _ = w.Write([]byte(`{"version":"1.1.0","download_url":"http://` + r.Host + `/missing.zip"}`))
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	local := filepath.Join(t.TempDir(), "version.json")
	require.NoError(t, os.WriteFile(local, []byte(`{"version":"1.0.0","update_url":"`+srv.URL+`/version.json"}`), 0o644))

	sh, buf := newTestShell(t)
	sh.app.term = cli.NewTerminal(
		cli.WithOutput(buf),
		cli.WithInput(strings.NewReader("y\n")),
		cli.WithNoColor(true),
		cli.WithPlainProgress(),
	)
	sh.updater = update.NewUpdater(
		update.NewChecker(update.NewLocalVersion(local)),
		update.NewDownloader(),
		update.WithNotifier(sh.app.term),
		update.WithWorkDir(t.TempDir()),
	)
	sh.lines = newLineReader(strings.NewReader("check-update\n"))

	require.NoError(t, sh.loop(context.Background(), nil))
	assert.Contains(t, buf.String(), "New version found: 1.1.0")
	assert.Equal(t, 1, strings.Count(buf.String(), "Update failed:"))
	assert.NotContains(t, buf.String(), "Error:")
}

func TestPrintVersion(t *testing.T) {
	var buf bytes.Buffer
	printVersion(&buf, true)
	assert.Equal(t, "WorkTools dev\n", buf.String())

	buf.Reset()
	printVersion(&buf, false)
	assert.Contains(t, buf.String(), "Commit:")
	assert.Contains(t, buf.String(), "Plugin Host for Work Tools")
}

func TestConfigSetGet(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)

	path := filepath.Join(dir, "config.yaml")
	prev := *wtFlags.ConfigFile
	*wtFlags.ConfigFile = path
	t.Cleanup(func() { *wtFlags.ConfigFile = prev })

	set := configSetCmd()
	set.SetArgs([]string{"repository.url", "file:///srv/plugins.json"})
	set.SetOut(&bytes.Buffer{})
	require.NoError(t, set.Execute())

	var out bytes.Buffer
	get := configGetCmd()
	get.SetArgs([]string{"repository.url"})
	get.SetOut(&out)
	require.NoError(t, get.Execute())
	assert.Equal(t, "file:///srv/plugins.json\n", out.String())

	bad := configSetCmd()
	bad.SetArgs([]string{"update.schedule", "whenever"})
	bad.SetOut(&bytes.Buffer{})
	bad.SetErr(&bytes.Buffer{})
	assert.Error(t, bad.Execute())

	unknown := configGetCmd()
	unknown.SetArgs([]string{"nope.key"})
	unknown.SetOut(&bytes.Buffer{})
	unknown.SetErr(&bytes.Buffer{})
	assert.Error(t, unknown.Execute())
}

func TestRootCmd_SubcommandRunsLoggingHook(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)

	prevConfig, prevLog, prevLevel := *wtFlags.ConfigFile, *wtFlags.LogFile, *wtFlags.LogLevel
	prevLogger := slog.Default()
	t.Cleanup(func() {
		*wtFlags.ConfigFile, *wtFlags.LogFile, *wtFlags.LogLevel = prevConfig, prevLog, prevLevel
		slog.SetDefault(prevLogger)
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
	})

	logPath := filepath.Join(dir, "logs", "worktools.log")
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{
		"--config", filepath.Join(dir, "config.yaml"),
		"--logFile", logPath,
		"--logLevel", "debug",
		"config", "path",
	})

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, filepath.Join(dir, "config.yaml")+"\n", buf.String())
	assert.Nil(t, logFile)

	_, err := os.Stat(logPath)
	assert.NoError(t, err)
}
