// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"

	"github.com/Thermoquad/lumidox/pkg/lumidox"
	"github.com/spf13/cobra"
)

var rawCmd = &cobra.Command{
	Use:   "raw <code> [value]",
	Short: "Send one raw command and show the reply",
	Long: `Send a single command frame and decode the reply.

The code and value accept decimal or 0x-prefixed hex. Stage register codes
are decoded with their register's value kind. Mode and current checks are
bypassed: this is a diagnostic tool and writes exactly what it is given.

Examples:
  lumidox raw 0x02          # firmware version
  lumidox raw 0x13          # remote mode
  lumidox raw 0x7b          # stage 1 total power`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) < 1 || len(args) > 2 {
			return usageError{fmt.Errorf("accepts 1 or 2 arg(s), received %d", len(args))}
		}
		return nil
	},
	RunE: runRaw,
}

func init() {
	rootCmd.AddCommand(rawCmd)
}

type rawReport struct {
	Command   string   `yaml:"command"`
	Request   string   `yaml:"request"`
	Response  string   `yaml:"response"`
	Value     string   `yaml:"value"`
	Checksum  bool     `yaml:"checksum_valid"`
	Anomalies []string `yaml:"anomalies,omitempty"`
}

func runRaw(cmd *cobra.Command, args []string) error {
	code, err := parseIntArg("code", args[0])
	if err != nil {
		return err
	}
	if code < 0 || code > 0xFF {
		return usageError{fmt.Errorf("invalid code %q: must be 0x00-0xFF", args[0])}
	}
	value := 0
	if len(args) == 2 {
		if value, err = parseIntArg("value", args[1]); err != nil {
			return err
		}
	}

	frame, err := lumidox.EncodeCommand(uint8(code), value)
	if err != nil {
		return usageError{err}
	}
	c, err := lumidox.DecodeCommand(frame)
	if err != nil {
		return err
	}

	t, _, err := OpenTransport(cmd.Context())
	if err != nil {
		return err
	}
	defer t.Close()

	reply, err := t.Request(frame)
	if err != nil {
		return err
	}
	r, err := lumidox.ParseResponse(reply)
	if err != nil {
		return err
	}

	report := rawReport{
		Command:  lumidox.FormatCode(c.Code()),
		Request:  lumidox.FormatFrame(frame),
		Response: lumidox.FormatFrame(reply),
		Value:    r.Interpret(c.Kind()).String(),
		Checksum: r.ChecksumValid(),
	}
	for _, a := range lumidox.ValidateResponse(c, r) {
		report.Anomalies = append(report.Anomalies, a.Message)
	}

	return render(cmd, report, func(w io.Writer) {
		fmt.Fprintf(w, "%s  %s\n", report.Request, lumidox.FormatCommand(c))
		fmt.Fprintf(w, "%s  %s\n", report.Response, lumidox.FormatResponse(c, r))
		for _, a := range report.Anomalies {
			fmt.Fprintf(w, "[ANOMALY] %s\n", a)
		}
	})
}
