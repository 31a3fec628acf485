// SPDX-License-Identifier: MIT
// Copyright Authors of WorkTools

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/kyeo-hub/worktools/internal/plugin"
	"github.com/kyeo-hub/worktools/internal/slogs"
	"github.com/kyeo-hub/worktools/internal/update"
	"github.com/kyeo-hub/worktools/internal/view"
	"github.com/kyeo-hub/worktools/pkg/cli"
)

const shellPrompt = "worktools> "

// viewer is implemented by tools that render a text panel.
type viewer interface {
	View() string
}

// lineReader feeds stdin lines to whoever asks next: the shell loop or an
// update prompt.
type lineReader struct {
	lines chan string
	buf   []byte
	once  sync.Once
	src   io.Reader
}

func newLineReader(src io.Reader) *lineReader {
	return &lineReader{lines: make(chan string), src: src}
}

func (r *lineReader) start() {
	r.once.Do(func() {
		go func() {
			defer close(r.lines)
			sc := bufio.NewScanner(r.src)
			for sc.Scan() {
				r.lines <- sc.Text()
			}
		}()
	})
}

// Read hands out one line at a time.
func (r *lineReader) Read(p []byte) (int, error) {
	r.start()
	if len(r.buf) == 0 {
		line, ok := <-r.lines
		if !ok {
			return 0, io.EOF
		}
		r.buf = []byte(line + "\n")
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// schedulerRunner checks silently and hands any update to the shell loop so
// the prompt never races the command line.
type schedulerRunner struct {
	updater *update.Updater
	pending chan<- *update.Result
}

func (r schedulerRunner) Run(ctx context.Context, silent bool) error {
	res, err := r.updater.Check(ctx, silent)
	if err != nil || !res.HasUpdate {
		return err
	}
	select {
	case r.pending <- res:
	case <-ctx.Done():
	}
	return nil
}

type shell struct {
	app     *app
	manager *plugin.Manager
	updater *update.Updater
	lines   *lineReader
	out     io.Writer
}

// runCmd starts the host shell. It is also what the bare root command does.
func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "run",
		Aliases: []string{"shell"},
		Short:   "Start the interactive plugin host",
		Args:    cobra.NoArgs,
		RunE:    runShell,
	}
}

func runShell(cmd *cobra.Command, _ []string) (err error) {
	defer recoverBoom(&err)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	lines := newLineReader(cmd.InOrStdin())
	a, err := newApp(cli.WithInput(lines))
	if err != nil {
		return err
	}

	sh := &shell{app: a, lines: lines, out: out}
	m, err := a.plugins(ctx)
	if err != nil {
		return err
	}
	sh.manager = m
	defer func() {
		a.saveStates(context.Background())
		a.close(context.Background())
	}()
	m.AddListener(plugin.ListenerFunc(sh.pluginEvent))

	sh.updater, err = a.updater(cancel)
	if err != nil {
		return err
	}

	pending := make(chan *update.Result, 1)
	schedOpts := []update.SchedulerOption{
		update.WithSchedule(a.settings.Update.Schedule),
		update.WithSchedulerLogger(a.logger.With(slogs.Component, "scheduler")),
	}
	if a.settings.Update.CheckOnStartup {
		schedOpts = append(schedOpts, update.WithStartupCheck(a.settings.Update.StartupDelay))
	}
	sched := update.NewScheduler(schedulerRunner{updater: sh.updater, pending: pending}, schedOpts...)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	fmt.Fprintf(sh.out, "WorkTools %s - %d plugins loaded. Type 'help' for commands.\n", a.localVersion().Version(), m.Len())
	return sh.loop(ctx, pending)
}

func (sh *shell) loop(ctx context.Context, pending <-chan *update.Result) error {
	sh.lines.start()
	for {
		fmt.Fprint(sh.out, shellPrompt)

		select {
		case <-ctx.Done():
			fmt.Fprintln(sh.out)
			return nil

		case res := <-pending:
			fmt.Fprintln(sh.out)
			if err := sh.updater.Offer(ctx, res); err != nil {
				if errors.Is(err, update.ErrMandatoryDeclined) {
					return err
				}
				if !update.Notified(err) {
					sh.app.term.Error("Update failed", err.Error())
				}
			}

		case line, ok := <-sh.lines.lines:
			if !ok {
				fmt.Fprintln(sh.out)
				return nil
			}
			quit, err := sh.exec(ctx, line)
			if err != nil {
				if errors.Is(err, update.ErrMandatoryDeclined) {
					return err
				}
				if !update.Notified(err) {
					sh.app.term.Error("Error", err.Error())
				}
			}
			if quit {
				return nil
			}
		}
	}
}

// exec runs one shell command and reports whether the shell should exit.
func (sh *shell) exec(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]
	arg := strings.Join(args, " ")

	switch name {
	case "quit", "exit", "q":
		return true, nil
	case "help", "?":
		sh.help()
	case "list", "ls":
		return false, view.PluginList(sh.out, view.FormatTable, sh.manager.List(), sh.manager.ActiveName())
	case "categories", "cats":
		return false, view.Categories(sh.out, view.FormatTable, sh.manager.Categories())
	case "info":
		if arg == "" {
			arg = sh.manager.ActiveName()
		}
		d, ok := findDescriptor(sh.manager.List(), arg)
		if !ok {
			return false, fmt.Errorf("%s: %w", arg, plugin.ErrNotFound)
		}
		return false, view.PluginInfo(sh.out, view.FormatTable, d)
	case "use", "activate", "open":
		if arg == "" {
			return false, fmt.Errorf("usage: %s <plugin>", name)
		}
		if err := sh.manager.Activate(ctx, arg); err != nil {
			return false, err
		}
		sh.show()
	case "close", "deactivate":
		active := sh.manager.ActiveName()
		if active == "" {
			return false, plugin.ErrNotActive
		}
		return false, sh.manager.Deactivate(ctx, active)
	case "view", "show":
		sh.show()
	case "refresh":
		c, err := sh.app.catalog(ctx)
		if err != nil {
			return false, err
		}
		if err := c.Refresh(ctx); err != nil {
			return false, err
		}
		sh.show()
	case "install":
		return false, sh.install(ctx, arg)
	case "uninstall":
		c, err := sh.app.catalog(ctx)
		if err != nil {
			return false, err
		}
		if err := c.Uninstall(arg); err != nil {
			return false, err
		}
		sh.app.term.Success("Uninstalled", fmt.Sprintf("Plugin %s was removed. Restart WorkTools to unload it.", arg))
	case "check-update", "update":
		return false, sh.updater.Run(ctx, false)
	case "version":
		printVersion(sh.out, false)
	default:
		return false, fmt.Errorf("unknown command %q, type 'help' for a list", name)
	}
	return false, nil
}

func (sh *shell) install(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("usage: install <plugin id>")
	}
	c, err := sh.app.catalog(ctx)
	if err != nil {
		return err
	}
	installed, err := c.Install(ctx, id, sh.app.term.Progress)
	sh.app.term.Done()
	if err != nil {
		return err
	}
	sh.app.term.Success("Installed", fmt.Sprintf("%s. Restart WorkTools to load new plugins.", strings.Join(installed, ", ")))
	return nil
}

// show prints the active tool's panel, or its description when it has none.
func (sh *shell) show() {
	p, ok := sh.manager.Active()
	if !ok {
		fmt.Fprintln(sh.out, "No plugin is active. Use 'use <plugin>' to open one.")
		return
	}
	if v, ok := p.(viewer); ok {
		fmt.Fprintln(sh.out, v.View())
		return
	}
	fmt.Fprintf(sh.out, "%s: %s\n", p.Name(), p.Description())
}

func (sh *shell) pluginEvent(e plugin.Event) {
	switch e.Type {
	case plugin.EventError:
		msg := e.Message
		if e.Err != nil {
			msg = e.Err.Error()
		}
		sh.app.term.Error("Plugin error", fmt.Sprintf("%s: %s", e.Plugin, msg))
	case plugin.EventActivated:
		sh.app.term.Info("Activated", e.Plugin)
	case plugin.EventDeactivated:
		sh.app.term.Info("Deactivated", e.Plugin)
	}
}

func (sh *shell) help() {
	fmt.Fprint(sh.out, `Commands:
  list                 List loaded plugins
  categories           List plugins by category
  info [plugin]        Show plugin details
  use <plugin>         Activate a plugin
  close                Deactivate the active plugin
  view                 Show the active plugin
  refresh              Reload the plugin catalog
  install <id>         Install a plugin from the catalog
  uninstall <id>       Remove an installed plugin
  check-update         Check for a new WorkTools release
  version              Print version info
  quit                 Save state and exit
`)
}

func findDescriptor(list []plugin.Descriptor, name string) (plugin.Descriptor, bool) {
	for _, d := range list {
		if d.Name == name {
			return d, true
		}
	}
	return plugin.Descriptor{}, false
}
