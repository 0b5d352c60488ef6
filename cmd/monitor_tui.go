// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/lumidox/pkg/device"
	"github.com/Thermoquad/lumidox/pkg/lumidox"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Latest polled register values
type registerSnapshot struct {
	timestamp     time.Time
	mode          int
	armCurrentMA  int
	fireCurrentMA int
}

// monitorModel is the Bubble Tea model for the monitor TUI
type monitorModel struct {
	connInfo string
	interval time.Duration
	showAll  bool

	stats    *lumidox.Statistics
	log      eventLog
	last     *registerSnapshot
	lastMode int
	spinner  spinner.Model

	width    int
	height   int
	done     bool
	quitting bool
}

// Messages
type tickMsg time.Time

type pollBatchMsg struct {
	results []pollResult
}

type pollDoneMsg struct{}

func initialMonitorModel(connInfo string, interval time.Duration, showAll bool) monitorModel {
	return monitorModel{
		connInfo: connInfo,
		interval: interval,
		showAll:  showAll,
		stats:    lumidox.NewStatistics(),
		lastMode: -1,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		width:    80,
		height:   24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.spinner.Tick)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			m.log.add("Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case pollBatchMsg:
		m.applyBatch(msg.results)

	case pollDoneMsg:
		m.done = true
		m.log.add("Polling finished", false)
	}

	return m, nil
}

// applyBatch records one poll round and logs problems and mode changes
func (m *monitorModel) applyBatch(results []pollResult) {
	snap := registerSnapshot{timestamp: time.Now(), mode: -1, armCurrentMA: -1, fireCurrentMA: -1}
	if m.last != nil {
		snap = *m.last
		snap.timestamp = time.Now()
	}

	for _, r := range results {
		r.record(m.stats)
		name := lumidox.FormatCode(r.command.Code())

		switch {
		case r.err != nil:
			m.log.add(fmt.Sprintf("%s: %v", name, r.err), true)
			continue
		case len(r.anomalies) > 0:
			for _, a := range r.anomalies {
				m.log.add(fmt.Sprintf("%s: %s", name, a.Message), true)
			}
		case m.showAll:
			m.log.add(lumidox.FormatResponse(r.command, r.response), false)
		}

		v := int(r.response.Value())
		switch r.command.Code() {
		case lumidox.CmdReadRemoteMode:
			snap.mode = v
		case lumidox.CmdReadArmCurrent:
			snap.armCurrentMA = v
		case lumidox.CmdReadFireCurrent:
			snap.fireCurrentMA = v
		}
	}

	if snap.mode != m.lastMode && snap.mode >= 0 {
		if m.lastMode >= 0 {
			m.log.add(fmt.Sprintf("Mode %s -> %s", modeName(m.lastMode), modeName(snap.mode)), false)
		}
		m.lastMode = snap.mode
	}
	m.last = &snap
}

func modeName(v int) string {
	if mode, ok := device.ModeFromValue(v); ok {
		return mode.String()
	}
	return lumidox.FormatModeValue(v)
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	st := newStyles()
	var s strings.Builder

	// Header
	s.WriteString(st.title.Render("LUMIDOX - MONITOR"))
	s.WriteString("\n")
	filter := "Errors only"
	if m.showAll {
		filter = "All replies"
	}
	s.WriteString(st.header.Render(fmt.Sprintf("%s | Poll: %s | %s | q=quit r=reset",
		m.connInfo, m.interval, filter)))
	s.WriteString("\n\n")

	if m.done {
		s.WriteString(st.value.Render("Polling finished"))
	} else {
		s.WriteString(m.spinner.View())
		s.WriteString(st.warning.Render(fmt.Sprintf(" Polling for %s", formatElapsed(time.Since(m.stats.StartTime)))))
	}
	s.WriteString("\n\n")

	// Registers
	var regs strings.Builder
	if m.last == nil {
		regs.WriteString(st.header.Render("Waiting for the first poll..."))
	} else {
		current := func(v int) string {
			if v < 0 {
				return st.err.Render("n/a")
			}
			return st.value.Render(fmt.Sprintf("%d mA", v))
		}
		mode := st.err.Render("n/a")
		if m.last.mode >= 0 {
			mode = st.value.Render(modeName(m.last.mode))
		}
		fmt.Fprintf(&regs, "%s %s   %s %s   %s %s   %s %s",
			st.label.Render("Mode:"), mode,
			st.label.Render("ARM:"), current(m.last.armCurrentMA),
			st.label.Render("FIRE:"), current(m.last.fireCurrentMA),
			st.label.Render("Updated:"), st.header.Render(m.last.timestamp.Format("15:04:05")))
	}
	s.WriteString(st.box.Width(m.width - 4).Render(regs.String()))
	s.WriteString("\n\n")

	// Statistics
	s.WriteString(renderStatisticsBar(st, *m.stats, m.width))
	s.WriteString("\n")
	if m.stats.Timeouts+m.stats.MalformedFrames+m.stats.ChecksumMismatch+m.stats.AnomalousValues > 0 {
		s.WriteString(st.header.Render(fmt.Sprintf(" timeouts: %d  malformed: %d  checksum: %d  anomalous: %d  transport: %d",
			m.stats.Timeouts, m.stats.MalformedFrames, m.stats.ChecksumMismatch,
			m.stats.AnomalousValues, m.stats.TransportErrors)))
	}
	s.WriteString("\n\n")

	// Event log
	s.WriteString(renderEventLog(st, m.log, m.height-16, m.width))

	return s.String()
}
