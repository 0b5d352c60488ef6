// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Thermoquad/lumidox/pkg/lumidox"
	"github.com/Thermoquad/lumidox/pkg/power"
	"github.com/Thermoquad/lumidox/pkg/transport"
)

// ============================================================================
// Helpers
// ============================================================================

func newTestController(t *testing.T, cfg Config) (*Controller, *lumidox.Simulator) {
	t.Helper()
	sim := lumidox.NewSimulator()
	if cfg.Sleep == nil {
		cfg.Sleep = func(time.Duration) {}
	}
	c := NewController(nil, transport.NewLoopback("sim", sim), cfg)
	t.Cleanup(func() { c.Close() })
	return c, sim
}

// setModes filters the received commands down to SET_MODE values
func setModes(sim *lumidox.Simulator) []uint16 {
	var out []uint16
	for _, c := range sim.Received() {
		if c.Code() == lumidox.CmdSetMode {
			out = append(out, c.Value())
		}
	}
	return out
}

func equalModes(got []uint16, want ...Mode) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != uint16(want[i]) {
			return false
		}
	}
	return true
}

func contains(codes []uint8, code uint8) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// ============================================================================
// Mode
// ============================================================================

func TestModeFromValue(t *testing.T) {
	tests := []struct {
		value  int
		want   Mode
		wantOK bool
	}{
		{0, ModeLocal, true},
		{1, ModeStandby, true},
		{2, ModeArmed, true},
		{3, ModeRemote, true},
		{4, ModeLocal, false},
		{-1, ModeLocal, false},
	}

	for _, tt := range tests {
		got, ok := ModeFromValue(tt.value)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ModeFromValue(%d) = %v, %v; want %v, %v", tt.value, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestModePredicates(t *testing.T) {
	tests := []struct {
		mode    Mode
		name    string
		ready   bool
		canFire bool
	}{
		{ModeLocal, "Local", false, false},
		{ModeStandby, "Standby", true, false},
		{ModeArmed, "Armed", true, true},
		{ModeRemote, "Remote", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.mode.String() != tt.name {
				t.Errorf("String() = %q, want %q", tt.mode.String(), tt.name)
			}
			if tt.mode.Ready() != tt.ready {
				t.Errorf("Ready() = %v, want %v", tt.mode.Ready(), tt.ready)
			}
			if tt.mode.CanFire() != tt.canFire {
				t.Errorf("CanFire() = %v, want %v", tt.mode.CanFire(), tt.canFire)
			}
		})
	}
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestController_StartsLocal(t *testing.T) {
	c, _ := newTestController(t, Config{})
	if c.Mode() != ModeLocal {
		t.Errorf("Mode() = %v, want Local", c.Mode())
	}
	if c.Ended() {
		t.Error("new controller reports ended session")
	}
}

func TestController_Initialize(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(sim *lumidox.Simulator)
		want    Mode
		wantErr bool
	}{
		{"local", func(sim *lumidox.Simulator) {}, ModeLocal, false},
		{"standby", func(sim *lumidox.Simulator) {
			sim.SetRegister(lumidox.CmdReadRemoteMode, lumidox.ModeValueStandby)
		}, ModeStandby, false},
		{"remote", func(sim *lumidox.Simulator) {
			sim.SetRegister(lumidox.CmdReadRemoteMode, lumidox.ModeValueRemote)
		}, ModeRemote, false},
		{"unknown value", func(sim *lumidox.Simulator) {
			sim.SetRegister(lumidox.CmdReadRemoteMode, 9)
		}, ModeLocal, false},
		{"malformed reply", func(sim *lumidox.Simulator) {
			sim.SetGarbled([]byte("*zz^"))
		}, ModeLocal, false},
		{"no reply", func(sim *lumidox.Simulator) {
			sim.SetSilent(true)
		}, ModeLocal, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, sim := newTestController(t, Config{})
			tt.setup(sim)

			got, err := c.Initialize()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Initialize() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, transport.ErrTimeout) {
				t.Errorf("error %v does not match ErrTimeout", err)
			}
			if got != tt.want || c.Mode() != tt.want {
				t.Errorf("Initialize() = %v (Mode() %v), want %v", got, c.Mode(), tt.want)
			}
		})
	}
}

func TestController_EndToEnd(t *testing.T) {
	c, sim := newTestController(t, Config{})

	if _, err := c.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := c.Arm(); err != nil {
		t.Fatalf("Arm failed: %v", err)
	}
	if c.Mode() != ModeArmed {
		t.Fatalf("Mode() after Arm = %v, want Armed", c.Mode())
	}

	res, err := c.FireStage(3)
	if err != nil {
		t.Fatalf("FireStage(3) failed: %v", err)
	}
	if c.Mode() != ModeRemote {
		t.Errorf("Mode() after fire = %v, want Remote", c.Mode())
	}
	if res.Stage != 3 || res.CurrentMA != 230 {
		t.Errorf("FireResult = %+v, want stage 3 at 230mA", res)
	}
	if res.TotalPower != 2.4 || res.TotalUnits != "W TOTAL RADIANT POWER" {
		t.Errorf("FireResult power = %v %q", res.TotalPower, res.TotalUnits)
	}
	if !contains(sim.ReceivedCodes(), 0x8B) {
		t.Error("stage 3 base command 0x8B was not sent")
	}
	if !contains(sim.ReceivedCodes(), 0x8B-3) {
		t.Error("stage 3 FIRE current register was not read")
	}
	if sim.Register(lumidox.CmdReadFireCurrent) != 230 {
		t.Errorf("device fire current = %d, want 230", sim.Register(lumidox.CmdReadFireCurrent))
	}
	if sim.Mode() != lumidox.ModeValueRemote {
		t.Errorf("device mode = %d, want Remote", sim.Mode())
	}

	if err := c.TurnOff(); err != nil {
		t.Fatalf("TurnOff failed: %v", err)
	}
	if c.Mode() != ModeStandby || sim.Mode() != lumidox.ModeValueStandby {
		t.Errorf("after TurnOff mode = %v / device %d, want Standby", c.Mode(), sim.Mode())
	}

	if err := c.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if c.Mode() != ModeLocal || !c.Ended() {
		t.Errorf("after Shutdown mode = %v ended = %v", c.Mode(), c.Ended())
	}
	if !equalModes(setModes(sim), ModeArmed, ModeStandby, ModeArmed, ModeRemote, ModeStandby, ModeStandby, ModeLocal) {
		t.Errorf("SET_MODE sequence = %v", setModes(sim))
	}

	stats := c.Statistics()
	if stats.TotalRequests == 0 || stats.ValidResponses != stats.TotalRequests {
		t.Errorf("statistics = %d requests, %d valid", stats.TotalRequests, stats.ValidResponses)
	}
}

func TestController_ShutdownEndsSession(t *testing.T) {
	c, sim := newTestController(t, Config{})
	if err := c.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	first := c.Session()

	sim.ClearReceived()
	if err := c.Arm(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Arm after shutdown error = %v, want ErrNotReady", err)
	}
	if err := c.SetArmCurrent(100); !errors.Is(err, ErrNotReady) {
		t.Errorf("SetArmCurrent after shutdown error = %v, want ErrNotReady", err)
	}
	if err := c.TurnOff(); !errors.Is(err, ErrNotReady) {
		t.Errorf("TurnOff after shutdown error = %v, want ErrNotReady", err)
	}
	if len(sim.Received()) != 0 {
		t.Errorf("rejected operations sent %d commands", len(sim.Received()))
	}
	if c.Mode() != ModeLocal {
		t.Errorf("mode after rejected operations = %v, want Local", c.Mode())
	}
	if sim.Mode() != int(ModeLocal) {
		t.Errorf("device mode = %d, want Local", sim.Mode())
	}

	if err := c.Shutdown(); err != nil {
		t.Errorf("second Shutdown failed: %v", err)
	}
	if _, err := c.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if c.Ended() {
		t.Error("Initialize did not restart the session")
	}
	if c.Session() == first {
		t.Error("Initialize kept the ended session id")
	}
	if err := c.Arm(); err != nil {
		t.Errorf("Arm after Initialize failed: %v", err)
	}
}

// ============================================================================
// Preconditions
// ============================================================================

func TestController_FireNotReady(t *testing.T) {
	tests := []struct {
		name  string
		setup func(c *Controller, sim *lumidox.Simulator)
	}{
		{"local", func(c *Controller, sim *lumidox.Simulator) {}},
		{"standby", func(c *Controller, sim *lumidox.Simulator) {
			sim.SetRegister(lumidox.CmdReadRemoteMode, lumidox.ModeValueStandby)
			c.Initialize()
		}},
		{"after shutdown", func(c *Controller, sim *lumidox.Simulator) {
			c.Arm()
			c.Shutdown()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, sim := newTestController(t, Config{MaxCurrentMA: 1000})
			tt.setup(c, sim)
			before := c.Mode()
			sim.ClearReceived()

			if _, err := c.FireStage(2); !errors.Is(err, ErrNotReady) {
				t.Errorf("FireStage error = %v, want ErrNotReady", err)
			}
			if _, err := c.FireWithCurrent(100); !errors.Is(err, ErrNotReady) {
				t.Errorf("FireWithCurrent error = %v, want ErrNotReady", err)
			}
			if len(sim.Received()) != 0 {
				t.Errorf("rejected fire sent %d commands", len(sim.Received()))
			}
			if c.Mode() != before {
				t.Errorf("Mode() = %v, want unchanged %v", c.Mode(), before)
			}
		})
	}
}

func TestController_InvalidStage(t *testing.T) {
	for _, stage := range []int{0, 6, -1} {
		c, sim := newTestController(t, Config{})
		c.Arm()
		sim.ClearReceived()

		_, err := c.FireStage(stage)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("FireStage(%d) error = %v, want ErrInvalidInput", stage, err)
		}
		if _, err := c.StageParameters(stage); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("StageParameters(%d) error = %v, want ErrInvalidInput", stage, err)
		}
		if _, err := c.PowerInfo(stage); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("PowerInfo(%d) error = %v, want ErrInvalidInput", stage, err)
		}
		if len(sim.Received()) != 0 {
			t.Errorf("stage %d: sent %d commands", stage, len(sim.Received()))
		}
		if c.Mode() != ModeArmed {
			t.Errorf("stage %d: Mode() = %v, want Armed", stage, c.Mode())
		}
	}
}

func TestController_SetArmCurrent(t *testing.T) {
	tests := []struct {
		name      string
		currentMA int
		wantErr   error
	}{
		{"zero", 0, ErrInvalidInput},
		{"negative", -5, ErrInvalidInput},
		{"at stage 5 fire current", 795, nil},
		{"above stage 5 fire current", 796, ErrInvalidInput},
		{"typical", 150, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, sim := newTestController(t, Config{})

			err := c.SetArmCurrent(tt.currentMA)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("SetArmCurrent(%d) error = %v, want %v", tt.currentMA, err, tt.wantErr)
				}
				if contains(sim.ReceivedCodes(), lumidox.CmdSetArmCurrent) {
					t.Error("rejected current was written")
				}
				return
			}
			if err != nil {
				t.Fatalf("SetArmCurrent(%d) failed: %v", tt.currentMA, err)
			}
			if got := sim.Register(lumidox.CmdReadArmCurrent); int(got) != tt.currentMA {
				t.Errorf("device arm current = %d, want %d", got, tt.currentMA)
			}
			if c.Mode() != ModeLocal {
				t.Errorf("Mode() = %v, SetArmCurrent must not change mode", c.Mode())
			}
		})
	}
}

func TestController_FireWithCurrentLimit(t *testing.T) {
	c, sim := newTestController(t, Config{MaxCurrentMA: 500})
	c.Arm()
	sim.ClearReceived()

	if _, err := c.FireWithCurrent(501); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("FireWithCurrent(501) error = %v, want ErrInvalidInput", err)
	}
	if len(sim.Received()) != 0 {
		t.Errorf("rejected fire sent %d commands", len(sim.Received()))
	}

	res, err := c.FireWithCurrent(500)
	if err != nil {
		t.Fatalf("FireWithCurrent(500) failed: %v", err)
	}
	if res.Stage != 0 || res.CurrentMA != 500 {
		t.Errorf("FireResult = %+v", res)
	}
	if sim.Register(lumidox.CmdReadFireCurrent) != 500 {
		t.Errorf("device fire current = %d, want 500", sim.Register(lumidox.CmdReadFireCurrent))
	}
}

// ============================================================================
// Transition policy
// ============================================================================

func TestController_TransitionSequences(t *testing.T) {
	tests := []struct {
		name          string
		optimize      bool
		wantOptimized bool
		wantModes     []Mode
	}{
		{"full cycle", false, false, []Mode{ModeStandby, ModeArmed, ModeRemote}},
		{"optimized", true, true, []Mode{ModeRemote}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, sim := newTestController(t, Config{OptimizeTransitions: tt.optimize})
			if err := c.Arm(); err != nil {
				t.Fatalf("Arm failed: %v", err)
			}
			sim.ClearReceived()

			res, err := c.FireStage(1)
			if err != nil {
				t.Fatalf("FireStage failed: %v", err)
			}
			if res.Optimized != tt.wantOptimized {
				t.Errorf("Optimized = %v, want %v", res.Optimized, tt.wantOptimized)
			}
			if !equalModes(setModes(sim), tt.wantModes...) {
				t.Errorf("SET_MODE sequence = %v, want %v", setModes(sim), tt.wantModes)
			}

			// SET_CURRENT must come right before the final SET_MODE Remote
			codes := sim.ReceivedCodes()
			n := len(codes)
			if n < 2 || codes[n-2] != lumidox.CmdSetCurrent || codes[n-1] != lumidox.CmdSetMode {
				t.Errorf("command tail = % X", codes)
			}
		})
	}
}

func TestController_SettleDelays(t *testing.T) {
	var slept []time.Duration
	c, _ := newTestController(t, Config{
		SettleDelay: 5 * time.Millisecond,
		OffDelay:    7 * time.Millisecond,
		Sleep:       func(d time.Duration) { slept = append(slept, d) },
	})

	c.Arm()
	c.FireStage(1)
	c.TurnOff()

	want := []time.Duration{5, 5, 5, 7}
	if len(slept) != len(want) {
		t.Fatalf("slept %v, want %v ms", slept, want)
	}
	for i := range want {
		if slept[i] != want[i]*time.Millisecond {
			t.Errorf("sleep %d = %v, want %vms", i, slept[i], int(want[i]))
		}
	}
}

// ============================================================================
// Errors
// ============================================================================

func TestController_ChecksumMismatch(t *testing.T) {
	c, sim := newTestController(t, Config{})
	frame := lumidox.EncodeResponse(lumidox.ModeValueArmed)
	frame[5], frame[6] = '0', '0'
	sim.SetGarbled(frame)

	err := c.Arm()
	if !errors.Is(err, lumidox.ErrMalformed) {
		t.Fatalf("Arm error = %v, want ErrMalformed", err)
	}
	if c.Mode() != ModeLocal {
		t.Errorf("Mode() = %v, unconfirmed step changed mode", c.Mode())
	}
	if c.Statistics().ChecksumMismatch == 0 {
		t.Error("checksum mismatch not counted")
	}
}

func TestController_TransportFailureKeepsMode(t *testing.T) {
	c, sim := newTestController(t, Config{})
	c.Arm()
	sim.FailCode(lumidox.CmdSetCurrent)

	_, err := c.FireStage(2)
	if !errors.Is(err, transport.ErrTimeout) {
		t.Fatalf("FireStage error = %v, want ErrTimeout", err)
	}
	var derr *Error
	if !errors.As(err, &derr) || derr.Stage != 2 || derr.Op != "fire" {
		t.Errorf("error context = %+v", derr)
	}
	if c.Mode() != ModeArmed {
		t.Errorf("Mode() = %v, want last confirmed Armed", c.Mode())
	}
}

func TestController_ReadMode(t *testing.T) {
	c, sim := newTestController(t, Config{})

	sim.SetRegister(lumidox.CmdReadRemoteMode, lumidox.ModeValueRemote)
	mode, err := c.ReadMode()
	if err != nil || mode != ModeRemote || c.Mode() != ModeRemote {
		t.Errorf("ReadMode() = %v, %v; Mode() = %v", mode, err, c.Mode())
	}

	sim.FailCode(lumidox.CmdReadRemoteMode)
	if _, err := c.ReadMode(); !errors.Is(err, transport.ErrTimeout) {
		t.Errorf("ReadMode error = %v, want ErrTimeout", err)
	}
	if c.Mode() != ModeRemote {
		t.Errorf("failed read changed mode to %v", c.Mode())
	}
}

func TestError_Format(t *testing.T) {
	err := &Error{Op: "fire", Stage: 2, CurrentMA: 110, Err: ErrNotReady, Reason: "arm first"}
	want := "fire stage 2 at 110mA: device not ready (arm first)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

// ============================================================================
// Reads
// ============================================================================

func TestController_StageParameters(t *testing.T) {
	c, _ := newTestController(t, Config{})

	p, err := c.StageParameters(5)
	if err != nil {
		t.Fatalf("StageParameters(5) failed: %v", err)
	}
	if p.ArmCurrentMA != 700 || p.FireCurrentMA != 795 {
		t.Errorf("currents = %d/%d, want 700/795", p.ArmCurrentMA, p.FireCurrentMA)
	}
	if p.VoltLimit != 12.0 || p.VoltStart != 11.8 {
		t.Errorf("voltages = %v/%v, want 12.0/11.8", p.VoltLimit, p.VoltStart)
	}
	if p.TotalPower != 9.6 || p.TotalUnits != "W TOTAL RADIANT POWER" {
		t.Errorf("total = %v %q", p.TotalPower, p.TotalUnits)
	}
	if p.PerPower != 100 || p.PerUnits != "mW PER WELL" {
		t.Errorf("per = %v %q", p.PerPower, p.PerUnits)
	}

	if r := p.Reading(); r.Stage != 5 || r.FireCurrentMA != 795 {
		t.Errorf("Reading() = %+v", r)
	}
}

func TestController_CurrentReads(t *testing.T) {
	c, sim := newTestController(t, Config{})

	tests := []struct {
		name string
		read func() (int, error)
		want int
	}{
		{"stage 1 arm", func() (int, error) { return c.StageArmCurrent(1) }, 50},
		{"stage 4 fire", func() (int, error) { return c.StageFireCurrent(4) }, 420},
		{"max current", c.MaxCurrent, 795},
		{"active arm", c.ReadArmCurrent, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.read()
			if err != nil {
				t.Fatalf("read failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}

	c.Arm()
	c.FireWithCurrent(321)
	if got, err := c.ReadFireCurrent(); err != nil || got != 321 {
		t.Errorf("ReadFireCurrent() = %d, %v; want 321", got, err)
	}
	if sim.Register(lumidox.CmdReadFireCurrent) != 321 {
		t.Errorf("device fire current = %d", sim.Register(lumidox.CmdReadFireCurrent))
	}
}

func TestController_MaxCurrentConfigured(t *testing.T) {
	c, sim := newTestController(t, Config{MaxCurrentMA: 400})
	got, err := c.MaxCurrent()
	if err != nil || got != 400 {
		t.Errorf("MaxCurrent() = %d, %v; want 400", got, err)
	}
	if len(sim.Received()) != 0 {
		t.Errorf("configured limit sent %d commands", len(sim.Received()))
	}
}

func TestController_PowerInfo(t *testing.T) {
	c, _ := newTestController(t, Config{})
	info, err := c.PowerInfo(2)
	if err != nil {
		t.Fatalf("PowerInfo(2) failed: %v", err)
	}
	if info.TotalPower != 1.0 || info.PerPower != 10.0 {
		t.Errorf("PowerInfo = %+v", info)
	}
	if info.PerUnits != "mW PER WELL" {
		t.Errorf("PerUnits = %q", info.PerUnits)
	}
}

func TestController_DeviceInfo(t *testing.T) {
	c, _ := newTestController(t, Config{})
	info, err := c.DeviceInfo()
	if err != nil {
		t.Fatalf("DeviceInfo failed: %v", err)
	}
	want := Info{Firmware: "1.28", Model: "LDX-2-96", Serial: "LX2000123456", Wavelength: "365nm"}
	if info != want {
		t.Errorf("DeviceInfo() = %+v, want %+v", info, want)
	}
}

func TestController_EstimatePower(t *testing.T) {
	c, sim := newTestController(t, Config{})

	info, cons, err := c.EstimatePower(795, 5)
	if err != nil {
		t.Fatalf("EstimatePower failed: %v", err)
	}
	if cons.Suspect {
		t.Errorf("simulator readings flagged suspect: %s", cons.Reason)
	}
	if info.Source != power.SourceDeviceStage {
		t.Errorf("Source = %v, want device stage", info.Source)
	}
	if math.Abs(info.TotalMW-9600) > 1e-6 || math.Abs(info.PerUnitMW-100) > 1e-6 {
		t.Errorf("estimate = %v / %v mW", info.TotalMW, info.PerUnitMW)
	}

	// Identical readings across stages are treated as placeholders
	for stage := 1; stage <= lumidox.StageCount; stage++ {
		sim.SetStageRegister(stage, lumidox.RegTotalPower, 50)
		sim.SetStageRegister(stage, lumidox.RegPerPower, 50)
	}
	info, cons, err = c.EstimatePower(795, 5)
	if err != nil {
		t.Fatalf("EstimatePower failed: %v", err)
	}
	if !cons.Suspect || !info.Suspect || info.Source != power.SourceCalibration {
		t.Errorf("suspect readings: consistency %+v, info %+v", cons, info)
	}

	if _, _, err := c.EstimatePower(-1, 0); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("negative current error = %v, want ErrInvalidInput", err)
	}
}
