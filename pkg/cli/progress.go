// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package cli

import (
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const barWidth = 30

type progressBar interface {
	Update(downloaded, total int64)
	Stop()
}

// RenderBar draws a fixed-width text progress bar. An unknown total shows
// the byte count only.
func RenderBar(downloaded, total int64, width int) string {
	if total <= 0 {
		return fmt.Sprintf("Downloading... %d bytes", downloaded)
	}
	if downloaded > total {
		downloaded = total
	}
	filled := int(int64(width) * downloaded / total)
	percent := int(downloaded * 100 / total)
	return fmt.Sprintf("Downloading [%s%s] %3d%% (%d/%d bytes)",
		strings.Repeat("#", filled),
		strings.Repeat("-", width-filled),
		percent, downloaded, total)
}

// lineBar prints one line per whole ten percent.
type lineBar struct {
	out  io.Writer
	last int
}

func newLineBar(out io.Writer) *lineBar {
	return &lineBar{out: out, last: -1}
}

func (b *lineBar) Update(downloaded, total int64) {
	step := 0
	if total > 0 {
		step = int(downloaded*100/total) / 10
	}
	if step == b.last {
		return
	}
	b.last = step
	fmt.Fprintln(b.out, RenderBar(downloaded, total, barWidth))
}

func (b *lineBar) Stop() {}

type progressMsg struct {
	downloaded, total int64
}

type progressModel struct {
	downloaded, total int64
}

func (m progressModel) Init() tea.Cmd {
	return nil
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progressMsg:
		m.downloaded, m.total = msg.downloaded, msg.total
		if m.total > 0 && m.downloaded >= m.total {
			return m, tea.Quit
		}
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m progressModel) View() string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	return style.Render(RenderBar(m.downloaded, m.total, barWidth)) + "\n"
}

// teaBar runs the progress model on its own bubbletea program.
type teaBar struct {
	program *tea.Program
	done    chan struct{}
}

func newTeaBar(out io.Writer) *teaBar {
	b := &teaBar{
		program: tea.NewProgram(progressModel{}, tea.WithOutput(out), tea.WithInput(nil)),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(b.done)
		_, _ = b.program.Run()
	}()
	return b
}

func (b *teaBar) Update(downloaded, total int64) {
	select {
	case <-b.done:
	default:
		b.program.Send(progressMsg{downloaded: downloaded, total: total})
	}
}

func (b *teaBar) Stop() {
	b.program.Quit()
	<-b.done
}
