// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Lumidox - Lumidox II LED Controller CLI
//
// A CLI tool for discovering, querying and driving Lumidox II light
// sources over their serial protocol.

package main

import (
	"fmt"
	"os"

	"github.com/Thermoquad/lumidox/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cmd.ExitCode(err))
	}
}
