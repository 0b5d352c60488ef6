// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show firmware version, model, serial number and wavelength",
	Args:  exactArgs(0),
	RunE:  runInfo,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the device mode and active currents",
	Long: `Read the remote mode register and the active ARM and FIRE current
registers. Nothing is written to the device.`,
	Args: exactArgs(0),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(statusCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	c, connInfo, err := OpenController(cmd.Context())
	if err != nil {
		return err
	}
	defer c.Close()

	info, err := c.DeviceInfo()
	if err != nil {
		return err
	}

	return render(cmd, info, func(w io.Writer) {
		fmt.Fprintf(w, "Connection: %s\n", connInfo)
		fmt.Fprintf(w, "Firmware:   %s\n", info.Firmware)
		fmt.Fprintf(w, "Model:      %s\n", info.Model)
		fmt.Fprintf(w, "Serial:     %s\n", info.Serial)
		fmt.Fprintf(w, "Wavelength: %s\n", info.Wavelength)
	})
}

type statusReport struct {
	Connection    string `yaml:"connection"`
	Mode          string `yaml:"mode"`
	ArmCurrentMA  int    `yaml:"arm_current_ma"`
	FireCurrentMA int    `yaml:"fire_current_ma"`
	MaxCurrentMA  int    `yaml:"max_current_ma"`
	Optimized     bool   `yaml:"optimize_transitions"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, connInfo, err := OpenController(cmd.Context())
	if err != nil {
		return err
	}
	defer c.Close()

	r := statusReport{Connection: connInfo, Mode: c.Mode().String(), Optimized: c.OptimizeTransitions()}
	if r.ArmCurrentMA, err = c.ReadArmCurrent(); err != nil {
		return err
	}
	if r.FireCurrentMA, err = c.ReadFireCurrent(); err != nil {
		return err
	}
	if r.MaxCurrentMA, err = c.MaxCurrent(); err != nil {
		return err
	}

	return render(cmd, r, func(w io.Writer) {
		fmt.Fprintf(w, "Connection:   %s\n", r.Connection)
		fmt.Fprintf(w, "Mode:         %s\n", r.Mode)
		fmt.Fprintf(w, "ARM current:  %d mA\n", r.ArmCurrentMA)
		fmt.Fprintf(w, "FIRE current: %d mA\n", r.FireCurrentMA)
		fmt.Fprintf(w, "Max current:  %d mA\n", r.MaxCurrentMA)
		if r.Optimized {
			fmt.Fprintf(w, "Transitions:  optimized\n")
		} else {
			fmt.Fprintf(w, "Transitions:  full safety sequence\n")
		}
	})
}
