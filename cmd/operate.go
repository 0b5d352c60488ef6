// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"

	"github.com/Thermoquad/lumidox/pkg/device"
	"github.com/spf13/cobra"
)

var armFirst bool

var armCmd = &cobra.Command{
	Use:   "arm",
	Short: "Arm the device",
	Long:  `Switch the device to Armed. Arming is accepted from every mode.`,
	Args:  exactArgs(0),
	RunE:  runArm,
}

var fireCmd = &cobra.Command{
	Use:   "fire <stage>",
	Short: "Fire a stage at its configured FIRE current",
	Long: `Fire stage 1-5 at the FIRE current stored in the device.

The device must be Armed or already firing. With --arm (the default) a
device that cannot fire is armed first.

Unless transitions are optimized the device is cycled through Standby and
Armed before every fire.`,
	Args: exactArgs(1),
	RunE: runFire,
}

var fireCurrentCmd = &cobra.Command{
	Use:   "fire-current <mA>",
	Short: "Fire at a custom current",
	Long: `Fire at a custom current between 1 mA and the maximum current. The
maximum is --max-current when set, otherwise the stage 5 FIRE current.`,
	Args: exactArgs(1),
	RunE: runFireCurrent,
}

var setArmCurrentCmd = &cobra.Command{
	Use:   "set-arm-current <mA>",
	Short: "Set the ARM current",
	Args:  exactArgs(1),
	RunE:  runSetArmCurrent,
}

var offCmd = &cobra.Command{
	Use:   "off",
	Short: "Stop output and return to Standby",
	Args:  exactArgs(0),
	RunE:  runOff,
}

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Stop output and return the device to local control",
	Args:  exactArgs(0),
	RunE:  runShutdown,
}

func init() {
	rootCmd.AddCommand(armCmd)
	rootCmd.AddCommand(fireCmd)
	rootCmd.AddCommand(fireCurrentCmd)
	rootCmd.AddCommand(setArmCurrentCmd)
	rootCmd.AddCommand(offCmd)
	rootCmd.AddCommand(shutdownCmd)

	for _, c := range []*cobra.Command{fireCmd, fireCurrentCmd} {
		c.Flags().BoolVar(&armFirst, "arm", true, "Arm first when the device cannot fire")
	}
}

type modeReport struct {
	Mode string `yaml:"mode"`
}

func renderMode(cmd *cobra.Command, c *device.Controller, action string) error {
	r := modeReport{Mode: c.Mode().String()}
	return render(cmd, r, func(w io.Writer) {
		fmt.Fprintf(w, "%s (mode %s)\n", action, r.Mode)
	})
}

func runArm(cmd *cobra.Command, args []string) error {
	c, _, err := OpenController(cmd.Context())
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Arm(); err != nil {
		return err
	}
	return renderMode(cmd, c, "Armed")
}

type fireReport struct {
	Stage      int     `yaml:"stage,omitempty"`
	CurrentMA  int     `yaml:"current_ma"`
	TotalPower float64 `yaml:"total_power,omitempty"`
	TotalUnits string  `yaml:"total_units,omitempty"`
	Optimized  bool    `yaml:"optimized"`
	Mode       string  `yaml:"mode"`
}

// prepareFire arms a device that cannot fire when --arm is set
func prepareFire(c *device.Controller) error {
	if armFirst && !c.Mode().CanFire() {
		return c.Arm()
	}
	return nil
}

func renderFire(cmd *cobra.Command, c *device.Controller, res device.FireResult) error {
	r := fireReport{
		Stage:      res.Stage,
		CurrentMA:  res.CurrentMA,
		TotalPower: res.TotalPower,
		TotalUnits: res.TotalUnits,
		Optimized:  res.Optimized,
		Mode:       c.Mode().String(),
	}
	return render(cmd, r, func(w io.Writer) {
		if r.Stage > 0 {
			fmt.Fprintf(w, "Firing stage %d at %d mA", r.Stage, r.CurrentMA)
			if r.TotalUnits != "" {
				fmt.Fprintf(w, " (%.1f %s)", r.TotalPower, r.TotalUnits)
			}
			fmt.Fprintln(w)
		} else {
			fmt.Fprintf(w, "Firing at %d mA\n", r.CurrentMA)
		}
		if r.Optimized {
			fmt.Fprintln(w, "Transition: optimized")
		}
	})
}

func runFire(cmd *cobra.Command, args []string) error {
	stage, err := parseIntArg("stage", args[0])
	if err != nil {
		return err
	}

	c, _, err := OpenController(cmd.Context())
	if err != nil {
		return err
	}
	defer c.Close()

	if err := prepareFire(c); err != nil {
		return err
	}
	res, err := c.FireStage(stage)
	if err != nil {
		return err
	}
	return renderFire(cmd, c, res)
}

func runFireCurrent(cmd *cobra.Command, args []string) error {
	current, err := parseIntArg("current", args[0])
	if err != nil {
		return err
	}

	c, _, err := OpenController(cmd.Context())
	if err != nil {
		return err
	}
	defer c.Close()

	if err := prepareFire(c); err != nil {
		return err
	}
	res, err := c.FireWithCurrent(current)
	if err != nil {
		return err
	}
	return renderFire(cmd, c, res)
}

func runSetArmCurrent(cmd *cobra.Command, args []string) error {
	current, err := parseIntArg("current", args[0])
	if err != nil {
		return err
	}

	c, _, err := OpenController(cmd.Context())
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.SetArmCurrent(current); err != nil {
		return err
	}
	r := struct {
		ArmCurrentMA int `yaml:"arm_current_ma"`
	}{current}
	return render(cmd, r, func(w io.Writer) {
		fmt.Fprintf(w, "ARM current set to %d mA\n", r.ArmCurrentMA)
	})
}

func runOff(cmd *cobra.Command, args []string) error {
	c, _, err := OpenController(cmd.Context())
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.TurnOff(); err != nil {
		return err
	}
	return renderMode(cmd, c, "Output off")
}

func runShutdown(cmd *cobra.Command, args []string) error {
	c, _, err := OpenController(cmd.Context())
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Shutdown(); err != nil {
		return err
	}
	return renderMode(cmd, c, "Shut down")
}
