// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Thermoquad/lumidox/pkg/lumidox"
	"github.com/Thermoquad/lumidox/pkg/transport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	monitorInterval      time.Duration
	monitorStatsInterval time.Duration
	monitorCount         int
	monitorShowAll       bool
	monitorTUI           bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Poll the device and report errors and anomalies",
	Long: `Poll the remote mode and the active ARM and FIRE current registers and
track link errors with statistics.

Every reply is validated and the monitor reports:
  - Timeouts and transport failures
  - Malformed frames and checksum mismatches
  - Anomalous values (negative currents, unknown modes)
  - Request and error rates

Only problems are shown by default. Use --show-all to display every reply.
The monitor never writes to the device.

The terminal UI is used when stdin and stdout are terminals; --tui=false
forces text mode.`,
	Args: exactArgs(0),
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 500*time.Millisecond, "Delay between polls")
	monitorCmd.Flags().DurationVar(&monitorStatsInterval, "stats-interval", 10*time.Second, "Statistics summary interval (text mode)")
	monitorCmd.Flags().IntVar(&monitorCount, "count", 0, "Stop after this many polls (0 runs until interrupted)")
	monitorCmd.Flags().BoolVar(&monitorShowAll, "show-all", false, "Show all replies (not just errors)")
	monitorCmd.Flags().BoolVar(&monitorTUI, "tui", true, "Use terminal UI (false for text mode)")
}

// pollCommands are the read-only requests of one poll
func pollCommands() []*lumidox.Command {
	return []*lumidox.Command{
		lumidox.NewReadRemoteMode(),
		lumidox.NewReadArmCurrent(),
		lumidox.NewReadFireCurrent(),
	}
}

// pollResult is the outcome of one request
type pollResult struct {
	command   *lumidox.Command
	response  *lumidox.Response
	err       error
	timeout   bool
	rtt       time.Duration
	anomalies []lumidox.ValidationError
}

func (r pollResult) failed() bool {
	return r.err != nil || len(r.anomalies) > 0
}

func (r pollResult) record(s *lumidox.Statistics) {
	s.Update(r.rtt, r.err, r.timeout, r.anomalies)
}

// pollOnce sends c and validates the reply
func pollOnce(t transport.Transport, c *lumidox.Command) pollResult {
	start := time.Now()
	raw, err := t.Request(lumidox.Encode(c))
	res := pollResult{command: c, rtt: time.Since(start)}
	if err != nil {
		res.err = err
		res.timeout = errors.Is(err, transport.ErrTimeout)
		return res
	}

	r, err := lumidox.ParseResponse(raw)
	if err != nil {
		res.err = err
		return res
	}
	res.response = r
	res.anomalies = lumidox.ValidateResponse(c, r)
	return res
}

// poll runs one round of pollCommands
func poll(t transport.Transport) []pollResult {
	cmds := pollCommands()
	results := make([]pollResult, 0, len(cmds))
	for _, c := range cmds {
		results = append(results, pollOnce(t, c))
	}
	return results
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if monitorInterval <= 0 {
		return usageError{fmt.Errorf("--interval must be positive")}
	}

	t, connInfo, err := OpenTransport(cmd.Context())
	if err != nil {
		return err
	}
	defer t.Close()

	if monitorTUI && isInteractive() {
		return runMonitorTUI(cmd.Context(), t, connInfo)
	}
	return runMonitorText(cmd.Context(), cmd.OutOrStdout(), t, connInfo)
}

// printPollResult prints a failed request in highlighted format, or any
// reply with --show-all
func printPollResult(w io.Writer, r pollResult) {
	timestamp := time.Now().Format("15:04:05.000")
	name := lumidox.FormatCode(r.command.Code())

	switch {
	case r.timeout:
		fmt.Fprintf(w, "[%s] \033[1;31mTIMEOUT:\033[0m %s\n", timestamp, name)
	case r.err != nil:
		fmt.Fprintf(w, "[%s] \033[1;31mERROR:\033[0m %s: %v\n", timestamp, name, r.err)
	case len(r.anomalies) > 0:
		fmt.Fprintf(w, "[%s] \033[1;33mANOMALY:\033[0m %s\n", timestamp, lumidox.FormatResponse(r.command, r.response))
		for i, a := range r.anomalies {
			fmt.Fprintf(w, "  Issue %d: %s (%s)\n", i+1, a.Message, a.Type)
		}
	case monitorShowAll:
		fmt.Fprintln(w, lumidox.FormatResponse(r.command, r.response))
	}
}

// runMonitorText polls until the context ends or --count polls are done
func runMonitorText(ctx context.Context, w io.Writer, t transport.Transport, connInfo string) error {
	fmt.Fprintf(w, "Lumidox - Monitor\n")
	fmt.Fprintf(w, "Connection: %s\n", connInfo)
	fmt.Fprintf(w, "Poll interval: %s\n", monitorInterval)
	if monitorShowAll {
		fmt.Fprintf(w, "Mode: All replies\n")
	} else {
		fmt.Fprintf(w, "Mode: Errors only\n")
	}
	fmt.Fprintf(w, "Press Ctrl+C to exit\n\n")

	stats := lumidox.NewStatistics()
	pollTicker := time.NewTicker(monitorInterval)
	defer pollTicker.Stop()
	statsTicker := time.NewTicker(monitorStatsInterval)
	defer statsTicker.Stop()

	for polls := 1; ; polls++ {
		for _, r := range poll(t) {
			r.record(stats)
			printPollResult(w, r)
		}

		if monitorCount > 0 && polls >= monitorCount {
			fmt.Fprintln(w)
			fmt.Fprint(w, stats.String())
			return nil
		}

	wait:
		for {
			select {
			case <-ctx.Done():
				fmt.Fprintln(w)
				fmt.Fprint(w, stats.String())
				return nil
			case <-statsTicker.C:
				fmt.Fprintln(w)
				fmt.Fprint(w, stats.String())
				fmt.Fprintln(w)
			case <-pollTicker.C:
				break wait
			}
		}
	}
}

// runMonitorTUI polls on a worker goroutine and feeds results to the UI
func runMonitorTUI(ctx context.Context, t transport.Transport, connInfo string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := initialMonitorModel(connInfo, monitorInterval, monitorShowAll)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	go func() {
		ticker := time.NewTicker(monitorInterval)
		defer ticker.Stop()
		for polls := 1; ; polls++ {
			p.Send(pollBatchMsg{results: poll(t)})
			if monitorCount > 0 && polls >= monitorCount {
				p.Send(pollDoneMsg{})
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
