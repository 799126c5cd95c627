// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tui renders the live watch dashboard.
//
// # Description
//
// A bubbletea model showing check runs as they complete: a scrolling
// table of recent results with pass/fail coloring and a summary line.
// Runs arrive over a channel fed by the watcher's OnRun callback.
//
// # Thread Safety
//
// The model is single-threaded inside the bubbletea event loop. Only
// the run channel crosses goroutines.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harborworks/breakwater/services/checks/watch"
)

// maxVisibleRuns bounds the dashboard's own run list.
const maxVisibleRuns = 200

// =============================================================================
// Messages
// =============================================================================

// RunMsg delivers one completed run to the dashboard.
type RunMsg struct {
	Run watch.Run
}

// tickMsg refreshes relative timestamps.
type tickMsg time.Time

// =============================================================================
// Model
// =============================================================================

// DashboardModel is the bubbletea model for `breakwater watch`.
type DashboardModel struct {
	root string
	runs <-chan watch.Run

	history  []watch.Run
	passed   int
	failed   int
	viewport viewport.Model

	width    int
	height   int
	ready    bool
	quitting bool
}

// NewDashboardModel creates a dashboard reading runs from the channel.
//
// # Inputs
//
//   - root: Project root, shown in the header.
//   - runs: Channel fed by the watcher. Closing it stops updates.
func NewDashboardModel(root string, runs <-chan watch.Run) DashboardModel {
	return DashboardModel{root: root, runs: runs}
}

// Init implements tea.Model.
func (m DashboardModel) Init() tea.Cmd {
	return tea.Batch(m.waitForRun(), tick())
}

// waitForRun blocks on the run channel as a tea.Cmd.
func (m DashboardModel) waitForRun() tea.Cmd {
	return func() tea.Msg {
		run, ok := <-m.runs
		if !ok {
			return nil
		}
		return RunMsg{Run: run}
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 2
		footerHeight := 2
		viewportHeight := m.height - headerHeight - footerHeight

		if !m.ready {
			m.viewport = viewport.New(m.width, viewportHeight)
			m.viewport.YPosition = headerHeight
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = viewportHeight
		}
		m.refreshContent()

	case RunMsg:
		m.history = append(m.history, msg.Run)
		if len(m.history) > maxVisibleRuns {
			m.history = m.history[len(m.history)-maxVisibleRuns:]
		}
		if msg.Run.Passed {
			m.passed++
		} else {
			m.failed++
		}
		m.refreshContent()
		m.viewport.GotoBottom()
		cmds = append(cmds, m.waitForRun())

	case tickMsg:
		m.refreshContent()
		cmds = append(cmds, tick())

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "j", "down":
			m.viewport.LineDown(1)
		case "k", "up":
			m.viewport.LineUp(1)
		case "g", "home":
			m.viewport.GotoTop()
		case "G", "end":
			m.viewport.GotoBottom()
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m DashboardModel) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Watching...\n"
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

// =============================================================================
// Rendering
// =============================================================================

func (m *DashboardModel) refreshContent() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderRuns())
}

func (m DashboardModel) renderHeader() string {
	title := titleStyle.Render("breakwater watch")
	root := mutedStyle.Render(m.root)
	return title + "  " + root
}

func (m DashboardModel) renderRuns() string {
	if len(m.history) == 0 {
		return mutedStyle.Render("Waiting for file changes...")
	}

	var b strings.Builder
	for _, run := range m.history {
		b.WriteString(renderRunLine(run))
		b.WriteString("\n")
		for _, failure := range run.Failures {
			b.WriteString("    " + failStyle.Render(failure) + "\n")
		}
	}
	return b.String()
}

// renderRunLine formats one run as a single table row.
func renderRunLine(run watch.Run) string {
	badge := passBadge.Render("PASS")
	if !run.Passed {
		badge = failBadge.Render("FAIL")
	}

	when := mutedStyle.Render(relativeTime(time.Since(run.StartedAt)))
	duration := mutedStyle.Render(run.Duration.Round(time.Millisecond).String())

	line := fmt.Sprintf("%s %s  %s  %s", badge, pathStyle.Render(run.Path), duration, when)
	if run.Language != "" {
		line += "  " + mutedStyle.Render(run.Language)
	}
	return line
}

func (m DashboardModel) renderFooter() string {
	summary := fmt.Sprintf("%s passed  %s failed",
		passStyle.Render(fmt.Sprintf("%d", m.passed)),
		failStyle.Render(fmt.Sprintf("%d", m.failed)),
	)
	help := mutedStyle.Render("j/k scroll · q quit")
	return summary + "   " + help
}

// relativeTime renders a duration as a compact "ago" string.
func relativeTime(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
}

// =============================================================================
// Styles
// =============================================================================

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	pathStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	passStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	passBadge = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Background(lipgloss.Color("22")).
			Padding(0, 1)

	failBadge = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Background(lipgloss.Color("52")).
			Padding(0, 1)
)
