// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/Thermoquad/inkwell/pkg/epdlink"
	"github.com/Thermoquad/inkwell/pkg/transfer"
)

// Messages
type pageMsg struct {
	page  int
	total int
	plane string
}
type transferDoneMsg struct {
	err   error
	stats transfer.Statistics
}
type sendTickMsg time.Time

// sendModel shows one progress bar per plane
type sendModel struct {
	connInfo string
	source   string
	slot     int

	bars    map[string]progress.Model
	pages   map[string]int
	started time.Time
	now     time.Time

	done   bool
	err    error
	stats  transfer.Statistics
	cancel context.CancelFunc
}

func newSendModel(connInfo, source string, slot int, cancel context.CancelFunc) sendModel {
	bars := make(map[string]progress.Model, len(epdlink.Colors))
	for _, c := range epdlink.Colors {
		bar := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
		if c == epdlink.ColorRED {
			bar = progress.New(progress.WithGradient("#FF7F7F", "#D00000"), progress.WithoutPercentage())
		}
		bar.Width = 50
		bars[c.String()] = bar
	}

	now := time.Now()
	return sendModel{
		connInfo: connInfo,
		source:   source,
		slot:     slot,
		bars:     bars,
		pages:    make(map[string]int),
		started:  now,
		now:      now,
		cancel:   cancel,
	}
}

func (m sendModel) Init() tea.Cmd {
	return sendTickCmd()
}

func sendTickCmd() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg {
		return sendTickMsg(t)
	})
}

func (m sendModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.done {
				return m, tea.Quit
			}
			// Abort the transfer, the done message quits
			m.cancel()
		}

	case tea.WindowSizeMsg:
		width := min(msg.Width-10, 80)
		for name, bar := range m.bars {
			bar.Width = max(width, 10)
			m.bars[name] = bar
		}

	case pageMsg:
		m.pages[msg.plane] = msg.page

	case sendTickMsg:
		if m.done {
			return m, nil
		}
		m.now = time.Time(msg)
		return m, sendTickCmd()

	case transferDoneMsg:
		m.done = true
		m.err = msg.err
		m.stats = msg.stats
		m.now = time.Now()
		return m, tea.Quit
	}

	return m, nil
}

func (m sendModel) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Width(5)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	okStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10")).
		Bold(true)

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	var b strings.Builder
	b.WriteString(titleStyle.Render("Inkwell - Image Transfer"))
	b.WriteString("\n")
	b.WriteString(headerStyle.Render(fmt.Sprintf("%s | %s | slot %d | %.1fs",
		m.connInfo, m.source, m.slot, m.now.Sub(m.started).Seconds())))
	b.WriteString("\n\n")

	for _, c := range epdlink.Colors {
		name := c.String()
		page := m.pages[name]
		bar := m.bars[name]
		b.WriteString(labelStyle.Render(name))
		b.WriteString(bar.ViewAs(float64(page) / epdlink.PagesPerPlane))
		b.WriteString(fmt.Sprintf(" %2d/%d\n", page, epdlink.PagesPerPlane))
	}
	b.WriteString("\n")

	switch {
	case m.done && m.err != nil:
		b.WriteString(errorStyle.Render("Transfer failed: " + m.err.Error()))
		b.WriteString("\n")
	case m.done:
		b.WriteString(okStyle.Render("Transfer complete"))
		b.WriteString("\n")
	default:
		b.WriteString(headerStyle.Render("Press q to abort"))
		b.WriteString("\n")
	}
	return b.String()
}

// runSendTUI runs the transfer on its own goroutine and renders progress
func runSendTUI(ctx context.Context, conn Connection, connInfo, desc string, bw, red []byte, slot int, opts []transfer.Option) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := newSendModel(connInfo, desc, slot, cancel)
	p := tea.NewProgram(m)

	// Log lines would tear the display
	opts = append(opts,
		transfer.WithLogger(logger.Level(zerolog.Disabled)),
		transfer.WithListener(transfer.ListenerFuncs{
			Progress: func(page, total int, plane string) {
				p.Send(pageMsg{page: page, total: total, plane: plane})
			},
		}),
	)
	sender := transfer.NewSender(conn, opts...)
	defer sender.Close()

	go func() {
		err := sender.SendImageContext(ctx, bw, red, slot)
		p.Send(transferDoneMsg{err: err, stats: sender.Stats()})
	}()

	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}

	result := final.(sendModel)
	fmt.Print(result.stats.String())
	return result.err
}
