// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"strings"

	"github.com/Thermoquad/lumidox/pkg/lumidox"
)

// Info identifies the connected device
type Info struct {
	Firmware   string `json:"firmware" yaml:"firmware"`
	Model      string `json:"model" yaml:"model"`
	Serial     string `json:"serial" yaml:"serial"`
	Wavelength string `json:"wavelength" yaml:"wavelength"`
}

// DeviceInfo reads the firmware version and identity strings
func (c *Controller) DeviceInfo() (Info, error) {
	c.op.Lock()
	defer c.op.Unlock()

	const op = "read device info"
	var info Info

	r, err := c.exchange(lumidox.NewFirmwareVersionRequest())
	if err != nil {
		return info, &Error{Op: op, Mode: c.Mode(), Err: err}
	}
	info.Firmware = lumidox.FirmwareString(int(r.Value()))

	if info.Model, err = c.readString(lumidox.ModelLength, lumidox.NewModelCharRequest); err != nil {
		return info, &Error{Op: op, Mode: c.Mode(), Err: err}
	}
	if info.Serial, err = c.readString(lumidox.SerialLength, lumidox.NewSerialCharRequest); err != nil {
		return info, &Error{Op: op, Mode: c.Mode(), Err: err}
	}
	if info.Wavelength, err = c.readString(len(lumidox.WavelengthCodes), lumidox.NewWavelengthCharRequest); err != nil {
		return info, &Error{Op: op, Mode: c.Mode(), Err: err}
	}
	return info, nil
}

// readString reads a string one character per register. NUL and
// non-printable registers are skipped.
func (c *Controller) readString(length int, request func(int) (*lumidox.Command, error)) (string, error) {
	var b strings.Builder
	for i := 0; i < length; i++ {
		cmd, err := request(i)
		if err != nil {
			return "", err
		}
		r, err := c.exchange(cmd)
		if err != nil {
			return "", err
		}
		if ch := r.Value(); ch >= 0x20 && ch < 0x7F {
			b.WriteByte(byte(ch))
		}
	}
	return strings.TrimSpace(b.String()), nil
}
