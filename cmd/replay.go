// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Thermoquad/lumidox/pkg/lumidox"
	"github.com/Thermoquad/lumidox/pkg/transport"
	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Display a recorded transcript in human-readable format",
	Long: `Decode a transcript written with --transcript and show every exchange
with its timestamp, command, decoded reply and round trip. A summary of the
recorded exchanges is printed at the end.`,
	Args: exactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
}

type replayEntry struct {
	Time      time.Time     `yaml:"time"`
	Link      string        `yaml:"link"`
	Request   string        `yaml:"request"`
	Command   string        `yaml:"command,omitempty"`
	Response  string        `yaml:"response,omitempty"`
	Value     string        `yaml:"value,omitempty"`
	Error     string        `yaml:"error,omitempty"`
	RoundTrip time.Duration `yaml:"round_trip"`
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open transcript: %w", err)
	}
	defer f.Close()

	entries, err := transport.ReadTranscript(f)
	if err != nil && len(entries) == 0 {
		return err
	}
	truncated := err

	stats := lumidox.NewStatistics()
	if len(entries) > 0 {
		stats.StartTime = entries[0].Time
	}
	report := make([]replayEntry, 0, len(entries))
	for _, e := range entries {
		report = append(report, decodeEntry(e, stats))
	}

	if err := render(cmd, report, func(w io.Writer) {
		for _, e := range report {
			fmt.Fprintf(w, "[%s] %s -> %s", e.Time.Format("15:04:05.000"), e.Link, e.Request)
			if e.Command != "" {
				fmt.Fprintf(w, " %s", e.Command)
			}
			fmt.Fprintln(w)
			switch {
			case e.Error != "":
				fmt.Fprintf(w, "    [ERROR] %s\n", e.Error)
			default:
				fmt.Fprintf(w, "    <- %s = %s (%s)\n", e.Response, e.Value, e.RoundTrip.Round(time.Microsecond))
			}
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Exchanges:       %8d\n", stats.TotalRequests)
		fmt.Fprintf(w, "Valid Responses: %8d\n", stats.ValidResponses)
		fmt.Fprintf(w, "Failures:        %8d\n", stats.Timeouts+stats.TransportErrors+stats.MalformedFrames)
		fmt.Fprintf(w, "Avg Round Trip:  %8s\n", stats.AverageRoundTrip().Round(time.Microsecond))
	}); err != nil {
		return err
	}

	if truncated != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", truncated)
	}
	return nil
}

// decodeEntry renders one exchange and accounts for it in stats
func decodeEntry(e transport.Entry, stats *lumidox.Statistics) replayEntry {
	out := replayEntry{
		Time:      e.Time,
		Link:      e.Link,
		Request:   lumidox.FormatFrame(e.Request),
		Response:  lumidox.FormatFrame(e.Response),
		Error:     e.Error,
		RoundTrip: e.RoundTrip,
	}

	c, err := lumidox.DecodeCommand(e.Request)
	if err == nil {
		out.Command = lumidox.FormatCode(c.Code())
	}

	if e.Error != "" {
		stats.Update(e.RoundTrip, errors.New(e.Error), false, nil)
		return out
	}

	r, err := lumidox.ParseResponse(e.Response)
	if err != nil {
		out.Error = err.Error()
		stats.Update(e.RoundTrip, err, false, nil)
		return out
	}

	if c != nil {
		out.Value = r.Interpret(c.Kind()).String()
		stats.Update(e.RoundTrip, nil, false, lumidox.ValidateResponse(c, r))
	} else {
		out.Value = r.Interpret(lumidox.KindInteger).String()
		stats.Update(e.RoundTrip, nil, false, nil)
	}
	return out
}
