// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/Thermoquad/lumidox/pkg/connection"
	"github.com/Thermoquad/lumidox/pkg/device"
	"github.com/Thermoquad/lumidox/pkg/transport"
	"github.com/spf13/cobra"
)

// Process exit codes
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitInvalidInput = 2
	ExitNotReady     = 3
	ExitNoDevice     = 4
)

// usageError marks bad flags, arguments or configuration
type usageError struct {
	err error
}

func (e usageError) Error() string {
	return e.err.Error()
}

func (e usageError) Unwrap() error {
	return e.err
}

// ExitCode maps an error returned by Execute to a process exit code
func ExitCode(err error) int {
	var ue usageError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &ue), errors.Is(err, device.ErrInvalidInput):
		return ExitInvalidInput
	case errors.Is(err, device.ErrNotReady):
		return ExitNotReady
	case errors.Is(err, connection.ErrNoCandidate), errors.Is(err, transport.ErrUnavailable):
		return ExitNoDevice
	default:
		return ExitFailure
	}
}

// exactArgs is cobra.ExactArgs reporting a usage error
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

// maxArgs is cobra.MaximumNArgs reporting a usage error
func maxArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MaximumNArgs(n)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

// parseIntArg parses a decimal or 0x-prefixed integer argument
func parseIntArg(name, s string) (int, error) {
	n, err := strconv.ParseInt(s, 0, 32)
	if err != nil {
		return 0, usageError{fmt.Errorf("invalid %s %q: must be an integer", name, s)}
	}
	return int(n), nil
}
