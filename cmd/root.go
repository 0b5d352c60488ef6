// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/Thermoquad/lumidox/pkg/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	configFile   string
	simulate     bool
	outputFormat string
	noCache      bool

	// Loaded by the root pre-run hook
	cfg    *config.Config
	logger = zap.NewNop()
)

// flagKeys maps persistent flags to configuration keys
var flagKeys = map[string]string{
	"port":          "serial.port",
	"baud":          "serial.baud",
	"url":           "bridge.url",
	"username":      "bridge.username",
	"no-ssl-verify": "bridge.insecure",
	"optimize":      "device.optimize_transitions",
	"max-current":   "device.max_current_ma",
	"log-level":     "log.level",
	"log-format":    "log.format",
	"transcript":    "transcript.file",
}

var rootCmd = &cobra.Command{
	Use:   "lumidox",
	Short: "Lumidox II LED array controller",
	Long: `Lumidox - control and inspect Lumidox II LED arrays over their serial link.

Reads device identity and stage parameters, arms and fires stages or custom
currents, estimates optical output and records exchange transcripts.

Connection modes:
  Auto-detect: no flags (last working port is cached)
  Serial:      --port /dev/ttyUSB0 [--baud 19200]
  WebSocket:   --url ws://host/path [--username user]
  Simulator:   --simulate

For WebSocket authentication, the password is read from the
LUMIDOX_BRIDGE_PASSWORD environment variable, or prompted interactively if not
set. The --password flag is intentionally not provided to avoid leaking
credentials in shell history.

Settings can also come from a YAML config file and LUMIDOX_* environment
variables (e.g. LUMIDOX_SERIAL_PORT, LUMIDOX_DEVICE_OPTIMIZE_TRANSITIONS).

Exit codes:
  0 - Success
  1 - General failure
  2 - Invalid input or usage
  3 - Device not ready (arm first)
  4 - No device found or port unavailable`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&configFile, "config", "", "Config file (default: $XDG_CONFIG_HOME/lumidox/config.yaml, ./lumidox.yaml)")

	// Serial connection flags
	f.StringP("port", "p", "", "Serial port device (auto-detected when empty)")
	f.IntP("baud", "b", 0, "Baud rate (serial only, 0 searches the configured candidates)")
	f.BoolVar(&noCache, "no-cache", false, "Do not use or update the port cache")

	// WebSocket connection flags
	f.StringP("url", "u", "", "WebSocket bridge URL (ws:// or wss://)")
	f.String("username", "admin", "Username for HTTP Basic auth")
	f.Bool("no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	f.BoolVar(&simulate, "simulate", false, "Use the built-in device simulator")

	// Controller flags
	f.Bool("optimize", false, "Fire directly from Armed/Remote without cycling Standby and Armed")
	f.Int("max-current", 0, "Current limit in mA (0 uses the stage 5 FIRE current)")

	// Output flags
	f.StringVarP(&outputFormat, "output", "o", "text", "Output format: text or yaml")
	f.String("log-level", "warn", "Log level: debug, info, warn, error")
	f.String("log-format", "console", "Log format: console or json")
	f.String("transcript", "", "Record every exchange to a CBOR transcript file")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})
}

// bindFlags binds the persistent flags to their configuration keys
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", name, err)
		}
	}
	return nil
}

func loadConfig(cmd *cobra.Command, args []string) error {
	if outputFormat != "text" && outputFormat != "yaml" {
		return usageError{fmt.Errorf("unknown output format %q (use text or yaml)", outputFormat)}
	}

	v := config.New()
	if err := bindFlags(v, cmd.Root().PersistentFlags()); err != nil {
		return err
	}
	if noCache {
		v.Set("cache.enabled", false)
	}

	c, err := config.Load(v, configFile)
	if err != nil {
		return usageError{err}
	}
	l, err := c.Log.BuildLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	cfg, logger = c, l
	return nil
}

// Execute runs the root command. Ctrl+C cancels the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
