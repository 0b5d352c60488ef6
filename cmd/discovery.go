// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"

	"github.com/Thermoquad/lumidox/pkg/connection"
	"github.com/spf13/cobra"
)

var detectPorts []string

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports in probe order",
	Long: `List available serial ports. FTDI adapters (USB vendor 0403) are listed
first, then other USB ports, then the rest. An empty list is not an error.`,
	Args: exactArgs(0),
	RunE: runPorts,
}

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Probe serial ports and baud rates for a Lumidox device",
	Long: `Probe every serial port (or the ports given with --probe) at every baud
candidate by reading the firmware version, and list the scored candidates.

Scores:
  100 - well-formed firmware version
   10 - bytes received but not decodable
    0 - no reply

Exit codes:
  0 - At least one device answered
  4 - No responding device found`,
	Args: exactArgs(0),
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(detectCmd)
	detectCmd.Flags().StringSliceVar(&detectPorts, "probe", nil, "Ports to probe (default: all enumerated ports)")
}

type portReport struct {
	Name         string `yaml:"name"`
	USB          bool   `yaml:"usb"`
	VID          string `yaml:"vid,omitempty"`
	PID          string `yaml:"pid,omitempty"`
	SerialNumber string `yaml:"serial_number,omitempty"`
	Product      string `yaml:"product,omitempty"`
}

func newManager() *connection.Manager {
	return connection.NewManager(logger, connection.Config{
		Timeout:      cfg.Serial.Timeout,
		ProbeTimeout: cfg.Serial.ProbeTimeout,
	})
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := newManager().EnumeratePorts()
	if err != nil {
		return err
	}

	reports := make([]portReport, 0, len(ports))
	for _, p := range ports {
		reports = append(reports, portReport{
			Name:         p.Name,
			USB:          p.IsUSB,
			VID:          p.VID,
			PID:          p.PID,
			SerialNumber: p.SerialNumber,
			Product:      p.Product,
		})
	}

	return render(cmd, reports, func(w io.Writer) {
		if len(reports) == 0 {
			fmt.Fprintln(w, "No serial ports found")
			return
		}
		for _, p := range ports {
			line := p.Name
			if p.IsUSB {
				line += fmt.Sprintf("  USB %s:%s", p.VID, p.PID)
				if p.Product != "" {
					line += "  " + p.Product
				}
				if p.IsFTDI() {
					line += "  (FTDI)"
				}
			}
			fmt.Fprintln(w, line)
		}
	})
}

type candidateReport struct {
	Port     string `yaml:"port"`
	Baud     int    `yaml:"baud"`
	Score    int    `yaml:"score"`
	Firmware string `yaml:"firmware,omitempty"`
	Model    string `yaml:"model,omitempty"`
	Error    string `yaml:"error,omitempty"`
}

func runDetect(cmd *cobra.Command, args []string) error {
	m := newManager()

	ports := detectPorts
	if len(ports) == 0 {
		infos, err := m.EnumeratePorts()
		if err != nil {
			return err
		}
		for _, p := range infos {
			ports = append(ports, p.Name)
		}
	}

	candidates, err := m.ProbeAll(cmd.Context(), ports, cfg.Serial.BaudCandidates)
	if err != nil {
		return err
	}

	reports := make([]candidateReport, 0, len(candidates))
	found := false
	for _, c := range candidates {
		r := candidateReport{Port: c.Port, Baud: c.Baud, Score: c.Score, Firmware: c.Firmware, Model: c.Model}
		if c.Err != nil {
			r.Error = c.Err.Error()
		}
		if c.Score > connection.ScoreGarbled {
			found = true
		}
		reports = append(reports, r)
	}

	if err := render(cmd, reports, func(w io.Writer) {
		fmt.Fprintf(w, "Probed %d port(s) at %v baud\n\n", len(ports), cfg.Serial.BaudCandidates)
		for _, c := range candidates {
			fmt.Fprintln(w, c.String())
		}
	}); err != nil {
		return err
	}

	if !found {
		return connection.ErrNoCandidate
	}
	return nil
}
