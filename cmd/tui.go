// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Thermoquad/lumidox/pkg/lumidox"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

const maxLogEntries = 100

// Event log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for information
}

// eventLog keeps the most recent maxLogEntries entries
type eventLog []errorLogEntry

func (l *eventLog) add(message string, isError bool) {
	*l = append(*l, errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(*l) > maxLogEntries {
		*l = (*l)[len(*l)-maxLogEntries:]
	}
}

// tuiStyles is the palette shared by the monitor and control views
type tuiStyles struct {
	title         lipgloss.Style
	header        lipgloss.Style
	label         lipgloss.Style
	value         lipgloss.Style
	err           lipgloss.Style
	warning       lipgloss.Style
	box           lipgloss.Style
	focusedBox    lipgloss.Style
	button        lipgloss.Style
	focusedButton lipgloss.Style
}

func newStyles() tuiStyles {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)
	button := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 2)

	return tuiStyles{
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1),
		header:        lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		label:         lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		value:         lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		err:           lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		warning:       lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		box:           box,
		focusedBox:    box.BorderForeground(lipgloss.Color("12")),
		button:        button,
		focusedButton: button.Background(lipgloss.Color("10")),
	}
}

// isInteractive reports whether stdin and stdout are both terminals
func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// formatElapsed formats a duration as a human-friendly string
func formatElapsed(d time.Duration) string {
	seconds := int64(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	parts := []string{}
	for _, p := range []struct {
		n    int64
		unit string
	}{{days, "day"}, {hours, "hour"}, {minutes, "minute"}} {
		switch {
		case p.n == 1:
			parts = append(parts, "1 "+p.unit)
		case p.n > 1:
			parts = append(parts, fmt.Sprintf("%d %ss", p.n, p.unit))
		}
	}
	if seconds > 0 || len(parts) == 0 {
		if seconds == 1 {
			parts = append(parts, "1 second")
		} else {
			parts = append(parts, fmt.Sprintf("%d seconds", seconds))
		}
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func renderStatisticsBar(st tuiStyles, stats lumidox.Statistics, width int) string {
	stats.CalculateRates()
	var validPercent, errorPercent float64
	if stats.TotalRequests > 0 {
		validPercent = float64(stats.ValidResponses) * 100.0 / float64(stats.TotalRequests)
		errorPercent = 100.0 - validPercent
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s",
		st.label.Render("Requests:"), st.value.Render(fmt.Sprintf("%d", stats.TotalRequests)),
		st.label.Render("Valid:"), st.value.Render(fmt.Sprintf("%.1f%%", validPercent)),
		st.label.Render("Errors:"), func() string {
			if errorPercent > 0 {
				return st.err.Render(fmt.Sprintf("%.1f%%", errorPercent))
			}
			return st.value.Render("0.0%")
		}(),
		st.label.Render("RTT:"), st.value.Render(stats.AverageRoundTrip().Round(time.Millisecond).String()),
		st.label.Render("Rate:"), st.value.Render(fmt.Sprintf("%.1f req/s", stats.RequestRate)),
	)

	return st.box.Width(width - 4).Render(content)
}

func renderEventLog(st tuiStyles, log eventLog, height, width int) string {
	var s strings.Builder
	s.WriteString(st.label.Render("EVENTS"))
	s.WriteString("\n")

	if height < 5 {
		height = 5
	}
	startIdx := len(log) - height
	if startIdx < 0 {
		startIdx = 0
	}

	var content strings.Builder
	if len(log) == 0 {
		content.WriteString(st.header.Render("  (no events yet)"))
	} else {
		for _, entry := range log[startIdx:] {
			icon, style := "i", st.warning
			if entry.isError {
				icon, style = "x", st.err
			}
			fmt.Fprintf(&content, "%s %s %s\n",
				st.header.Render(entry.timestamp.Format("15:04:05.000")),
				style.Render(icon),
				entry.message)
		}
	}

	s.WriteString(st.box.Width(width - 4).Render(content.String()))
	return s.String()
}
