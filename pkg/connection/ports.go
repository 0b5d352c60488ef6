// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package connection

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

// FTDIVendorID is the USB vendor id of the adapter the device ships with
const FTDIVendorID = "0403"

// PortInfo describes one serial port
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// IsFTDI reports whether the port is an FTDI USB adapter
func (p PortInfo) IsFTDI() bool {
	return p.IsUSB && strings.EqualFold(p.VID, FTDIVendorID)
}

// PortLister lists available serial ports
type PortLister interface {
	ListPorts() ([]PortInfo, error)
}

// SystemPorts lists ports through the OS enumerator, falling back to
// device-node globbing when the enumerator finds nothing.
type SystemPorts struct{}

// ListPorts returns a de-duplicated list of ports sorted by name
func (SystemPorts) ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil && len(details) > 0 {
		out := make([]PortInfo, 0, len(details))
		seen := make(map[string]struct{}, len(details))
		for _, d := range details {
			if d == nil || d.Name == "" {
				continue
			}
			if _, ok := seen[d.Name]; ok {
				continue
			}
			seen[d.Name] = struct{}{}
			out = append(out, PortInfo{
				Name:         d.Name,
				IsUSB:        d.IsUSB,
				VID:          d.VID,
				PID:          d.PID,
				SerialNumber: d.SerialNumber,
				Product:      d.Product,
			})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return out, nil
	}

	var names []string
	switch runtime.GOOS {
	case "windows":
		// The enumerator is authoritative on Windows
		if err != nil {
			return nil, err
		}
		return nil, nil
	case "darwin":
		names = listByGlob("/dev/cu.usbserial*", "/dev/cu.usbmodem*")
	default:
		names = listByGlob("/dev/ttyUSB*", "/dev/ttyACM*")
	}

	out := make([]PortInfo, 0, len(names))
	for _, n := range names {
		out = append(out, PortInfo{Name: n, IsUSB: true})
	}
	return out, nil
}

// listByGlob expands glob patterns into a stable, de-duplicated list
func listByGlob(patterns ...string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, 16)
	for _, pat := range patterns {
		matches, _ := filepath.Glob(pat)
		for _, m := range matches {
			if _, err := os.Stat(m); err != nil {
				continue
			}
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

// StaticPorts is a fixed port list
type StaticPorts []PortInfo

func (s StaticPorts) ListPorts() ([]PortInfo, error) {
	return append([]PortInfo(nil), s...), nil
}

// OrderPorts returns ports in probe order: FTDI adapters, then other USB
// ports, then the rest, each group by name. Order never affects scoring.
func OrderPorts(ports []PortInfo) []PortInfo {
	out := append([]PortInfo(nil), ports...)
	rank := func(p PortInfo) int {
		switch {
		case p.IsFTDI():
			return 0
		case p.IsUSB:
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rank(out[i]), rank(out[j])
		if ri != rj {
			return ri < rj
		}
		return out[i].Name < out[j].Name
	})
	return out
}
