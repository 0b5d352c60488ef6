// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Thermoquad/lumidox/pkg/connection"
	"github.com/Thermoquad/lumidox/pkg/device"
	"github.com/Thermoquad/lumidox/pkg/transport"
)

// ============================================================================
// Exit codes
// ============================================================================

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"usage", usageError{errors.New("bad flag")}, ExitInvalidInput},
		{"invalid input", &device.Error{Op: "fire", Stage: 9, Err: device.ErrInvalidInput}, ExitInvalidInput},
		{"not ready", fmt.Errorf("wrapped: %w", &device.Error{Op: "fire", Err: device.ErrNotReady}), ExitNotReady},
		{"no candidate", fmt.Errorf("%w (probed 0 candidates)", connection.ErrNoCandidate), ExitNoDevice},
		{"unavailable", &transport.Error{Op: "open", Port: "/dev/ttyUSB0", Kind: transport.ErrUnavailable, Err: errors.New("busy")}, ExitNoDevice},
		{"timeout", &transport.Error{Op: "request", Port: "/dev/ttyUSB0", Kind: transport.ErrTimeout}, ExitFailure},
		{"other", errors.New("boom"), ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestParseIntArg(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"12", 12, false},
		{"0x1F", 31, false},
		{"0", 0, false},
		{"-3", -3, false},
		{"abc", 0, true},
		{"", 0, true},
		{"99999999999", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseIntArg("value", tt.in)
			if tt.wantErr {
				var ue usageError
				if !errors.As(err, &ue) {
					t.Errorf("parseIntArg(%q) err = %v, want usage error", tt.in, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("parseIntArg(%q) = %d, %v, want %d", tt.in, got, err, tt.want)
			}
		})
	}
}

// ============================================================================
// Formatting helpers
// ============================================================================

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0 seconds"},
		{1 * time.Second, "1 second"},
		{45 * time.Second, "45 seconds"},
		{time.Minute, "1 minute"},
		{61 * time.Second, "1 minute and 1 second"},
		{2*time.Hour + 5*time.Second, "2 hours and 5 seconds"},
		{time.Hour + time.Minute + time.Second, "1 hour, 1 minute, and 1 second"},
		{26 * time.Hour, "1 day and 2 hours"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := formatElapsed(tt.d); got != tt.want {
				t.Errorf("formatElapsed(%v) = %q, want %q", tt.d, got, tt.want)
			}
		})
	}
}

func TestEventLogBounded(t *testing.T) {
	var log eventLog
	for i := 0; i < maxLogEntries+10; i++ {
		log.add(fmt.Sprintf("event %d", i), i%2 == 0)
	}
	if len(log) != maxLogEntries {
		t.Fatalf("len = %d, want %d", len(log), maxLogEntries)
	}
	if log[0].message != "event 10" {
		t.Errorf("oldest entry = %q, want event 10", log[0].message)
	}
}
