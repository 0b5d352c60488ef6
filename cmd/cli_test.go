// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Thermoquad/lumidox/pkg/lumidox"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// ============================================================================
// Helpers
// ============================================================================

// resetFlags restores every flag of c and its subcommands to its default
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if !f.Changed {
			return
		}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.PersistentFlags().VisitAll(reset)
	c.Flags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// isolate points config and cache lookups at a temp dir and shortens the
// controller delays
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	t.Setenv("LUMIDOX_DEVICE_SETTLE_DELAY", "10ms")
	t.Setenv("LUMIDOX_DEVICE_OFF_DELAY", "10ms")
	simDevice = nil
	return dir
}

// runCLI executes the root command with args and returns stdout
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCLI(t, args...)
	if err != nil {
		t.Fatalf("lumidox %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func expectExit(t *testing.T, want int, args ...string) {
	t.Helper()
	_, err := runCLI(t, args...)
	if got := ExitCode(err); got != want {
		t.Errorf("lumidox %s: exit code = %d, want %d (err: %v)", strings.Join(args, " "), got, want, err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func assertContains(t *testing.T, out string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

// ============================================================================
// Query commands
// ============================================================================

func TestInfoCommand(t *testing.T) {
	isolate(t)
	out := mustRun(t, "--simulate", "info")
	assertContains(t, out,
		"Connection: Simulator",
		"Firmware:   1.28",
		"Model:      LDX-2-96",
		"Serial:     LX2000123456",
		"Wavelength: 365nm",
	)
}

func TestStatusYAML(t *testing.T) {
	isolate(t)
	out := mustRun(t, "--simulate", "-o", "yaml", "status")

	var r statusReport
	if err := yaml.Unmarshal([]byte(out), &r); err != nil {
		t.Fatalf("invalid YAML: %v\n%s", err, out)
	}
	if r.Mode != "Local" {
		t.Errorf("mode = %q, want Local", r.Mode)
	}
	if r.MaxCurrentMA != 795 {
		t.Errorf("max current = %d, want 795", r.MaxCurrentMA)
	}
	if r.Optimized {
		t.Error("optimized should default to false")
	}
}

func TestStageCommand(t *testing.T) {
	isolate(t)

	t.Run("one stage", func(t *testing.T) {
		out := mustRun(t, "--simulate", "stage", "3")
		assertContains(t, out,
			"Stage 3",
			"ARM current:  200 mA",
			"FIRE current: 230 mA",
			"Volt limit:   11.0 V",
			"Total power:  2.4 W TOTAL RADIANT POWER",
			"Per power:    25.0 mW PER WELL",
		)
	})

	t.Run("all stages", func(t *testing.T) {
		out := mustRun(t, "--simulate", "-o", "yaml", "stage")
		var reports []stageReport
		if err := yaml.Unmarshal([]byte(out), &reports); err != nil {
			t.Fatalf("invalid YAML: %v", err)
		}
		if len(reports) != lumidox.StageCount {
			t.Fatalf("got %d stages, want %d", len(reports), lumidox.StageCount)
		}
		if reports[4].FireCurrentMA != 795 || math.Abs(reports[4].TotalPower-9.6) > 1e-9 {
			t.Errorf("stage 5 = %+v", reports[4])
		}
	})

	t.Run("invalid", func(t *testing.T) {
		expectExit(t, ExitInvalidInput, "--simulate", "stage", "6")
		expectExit(t, ExitInvalidInput, "--simulate", "stage", "x")
		expectExit(t, ExitInvalidInput, "--simulate", "stage", "1", "2")
	})
}

func TestPowerCommand(t *testing.T) {
	isolate(t)

	t.Run("device stage", func(t *testing.T) {
		out := mustRun(t, "--simulate", "-o", "yaml", "power", "--stage", "5")
		var r powerReport
		if err := yaml.Unmarshal([]byte(out), &r); err != nil {
			t.Fatalf("invalid YAML: %v", err)
		}
		if r.CurrentMA != 795 || r.Source != "device stage" {
			t.Errorf("report = %+v", r)
		}
		if math.Abs(r.TotalMW-9600) > 1e-6 || math.Abs(r.PerUnitMW-100) > 1e-6 {
			t.Errorf("output = %v mW / %v mW, want 9600 / 100", r.TotalMW, r.PerUnitMW)
		}
		if r.SurfaceMWPerCM2 <= 0 || r.WellBottomMWPerCM2 <= 0 {
			t.Errorf("irradiance not computed: %+v", r)
		}
	})

	t.Run("offline", func(t *testing.T) {
		out := mustRun(t, "power", "--offline", "--current", "110")
		assertContains(t, out, "Source:             calibration table", "Total power:        1000.0 mW")
	})

	t.Run("lid", func(t *testing.T) {
		out := mustRun(t, "power", "--offline", "--stage", "2", "--lid")
		assertContains(t, out, "(with lid)")
	})

	t.Run("invalid", func(t *testing.T) {
		expectExit(t, ExitInvalidInput, "--simulate", "power")
		expectExit(t, ExitInvalidInput, "power", "--offline")
		expectExit(t, ExitInvalidInput, "--simulate", "power", "--stage", "7")
		expectExit(t, ExitInvalidInput, "--simulate", "power", "--current", "-1")
	})
}

// ============================================================================
// Control commands
// ============================================================================

func TestControlSequence(t *testing.T) {
	isolate(t)

	// A fresh device is in Local and cannot fire without arming
	expectExit(t, ExitNotReady, "--simulate", "fire", "2", "--arm=false")

	out := mustRun(t, "--simulate", "arm")
	assertContains(t, out, "Armed (mode Armed)")
	if got := simDevice.Mode(); got != lumidox.ModeValueArmed {
		t.Fatalf("device mode = %d, want armed", got)
	}

	out = mustRun(t, "--simulate", "fire", "2")
	assertContains(t, out, "Firing stage 2 at 110 mA (1.0 W TOTAL RADIANT POWER)")
	if got := simDevice.Mode(); got != lumidox.ModeValueRemote {
		t.Errorf("device mode = %d, want remote", got)
	}
	if got := simDevice.Register(lumidox.CmdReadFireCurrent); got != 110 {
		t.Errorf("FIRE current = %d, want 110", got)
	}

	expectExit(t, ExitInvalidInput, "--simulate", "fire-current", "900")
	expectExit(t, ExitInvalidInput, "--simulate", "fire-current", "0")
	expectExit(t, ExitInvalidInput, "--simulate", "fire", "0")

	out = mustRun(t, "--simulate", "fire-current", "300")
	assertContains(t, out, "Firing at 300 mA")

	out = mustRun(t, "--simulate", "set-arm-current", "150")
	assertContains(t, out, "ARM current set to 150 mA")
	if got := simDevice.Register(lumidox.CmdReadArmCurrent); got != 150 {
		t.Errorf("ARM current = %d, want 150", got)
	}

	out = mustRun(t, "--simulate", "off")
	assertContains(t, out, "Output off (mode Standby)")

	out = mustRun(t, "--simulate", "shutdown")
	assertContains(t, out, "Shut down (mode Local)")
	if got := simDevice.Mode(); got != lumidox.ModeValueLocal {
		t.Errorf("device mode = %d, want local", got)
	}
}

func TestOptimizedFire(t *testing.T) {
	isolate(t)
	mustRun(t, "--simulate", "arm")
	simDevice.ClearReceived()

	out := mustRun(t, "--simulate", "--optimize", "-o", "yaml", "fire", "1")
	var r fireReport
	if err := yaml.Unmarshal([]byte(out), &r); err != nil {
		t.Fatalf("invalid YAML: %v", err)
	}
	if !r.Optimized || r.Mode != "Remote" || r.CurrentMA != 60 {
		t.Errorf("report = %+v", r)
	}

	for _, c := range simDevice.Received() {
		if c.Code() == lumidox.CmdSetMode && c.Value() == lumidox.ModeValueStandby {
			t.Error("optimized fire cycled through Standby")
		}
	}
}

func TestMaxCurrentFlag(t *testing.T) {
	isolate(t)
	mustRun(t, "--simulate", "arm")
	expectExit(t, ExitInvalidInput, "--simulate", "--max-current", "200", "fire-current", "250")
	mustRun(t, "--simulate", "--max-current", "200", "fire-current", "200")
}

// ============================================================================
// Diagnostics
// ============================================================================

func TestRawCommand(t *testing.T) {
	isolate(t)

	out := mustRun(t, "--simulate", "raw", "0x02")
	assertContains(t, out, "FIRMWARE_VERSION", "(firmware 1.28)", `*001cf4^`)

	out = mustRun(t, "--simulate", "-o", "yaml", "raw", "0x7b")
	var r rawReport
	if err := yaml.Unmarshal([]byte(out), &r); err != nil {
		t.Fatalf("invalid YAML: %v", err)
	}
	if r.Value != "0.5" || !r.Checksum {
		t.Errorf("report = %+v", r)
	}

	expectExit(t, ExitInvalidInput, "--simulate", "raw", "0x100")
	expectExit(t, ExitInvalidInput, "--simulate", "raw", "0x02", "70000")
	expectExit(t, ExitInvalidInput, "--simulate", "raw")
}

func TestTranscriptReplay(t *testing.T) {
	dir := isolate(t)
	file := filepath.Join(dir, "session.cbor")

	mustRun(t, "--simulate", "--transcript", file, "info")

	out := mustRun(t, "replay", file)
	assertContains(t, out,
		"simulator -> *02",
		"FIRMWARE_VERSION",
		"READ_REMOTE_MODE",
		"Valid Responses:",
	)
	if strings.Contains(out, "[ERROR]") {
		t.Errorf("clean session replayed with errors:\n%s", out)
	}

	expectExit(t, ExitFailure, "replay", filepath.Join(dir, "missing.cbor"))
}

func TestPingCommand(t *testing.T) {
	isolate(t)
	out := mustRun(t, "--simulate", "ping", "--count", "2", "--interval", "1ms")
	assertContains(t, out, "firmware 1.28", "2 requests sent, 2 replies received, 0% loss")

	simulator().SetSilent(true)
	expectExit(t, ExitFailure, "--simulate", "ping", "--count", "1")
}

func TestMonitorText(t *testing.T) {
	isolate(t)
	out := mustRun(t, "--simulate", "monitor", "--tui=false", "--count", "2", "--interval", "1ms", "--show-all")
	assertContains(t, out, "Lumidox - Monitor", "READ_REMOTE_MODE", "READ_FIRE_CURRENT", "=== Statistics")

	simulator().FailCode(lumidox.CmdReadArmCurrent)
	out = mustRun(t, "--simulate", "monitor", "--tui=false", "--count", "1", "--interval", "1ms")
	assertContains(t, out, "TIMEOUT:", "READ_ARM_CURRENT", "Timeouts:")
}

// ============================================================================
// Flags and configuration
// ============================================================================

func TestUsageErrors(t *testing.T) {
	isolate(t)
	expectExit(t, ExitInvalidInput, "--simulate", "-o", "json", "info")
	expectExit(t, ExitInvalidInput, "--simulate", "--bogus", "info")
	expectExit(t, ExitInvalidInput, "--simulate", "--baud", "1234", "info")
	expectExit(t, ExitInvalidInput, "--simulate", "info", "extra")
}

func TestConfigFile(t *testing.T) {
	dir := isolate(t)
	file := filepath.Join(dir, "lumidox.yaml")
	writeFile(t, file, "device:\n  max_current_ma: 300\n")

	out := mustRun(t, "--simulate", "--config", file, "status")
	assertContains(t, out, "Max current:  300 mA")

	expectExit(t, ExitInvalidInput, "--simulate", "--config", filepath.Join(dir, "missing.yaml"), "status")
}
