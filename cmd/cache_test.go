// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"path/filepath"
	"testing"
)

func TestPortCache(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		c := newPortCache(filepath.Join(dir, "none.yaml"))
		if _, ok := c.Load(); ok {
			t.Error("missing file should be a miss")
		}
	})

	t.Run("round trip", func(t *testing.T) {
		c := newPortCache(filepath.Join(dir, "sub", "port.yaml"))
		want := cacheEntry{Port: "/dev/ttyUSB0", Baud: 9600, Firmware: "1.28", Model: "LDX-2-96"}
		if err := c.Save(want); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		got, ok := c.Load()
		if !ok {
			t.Fatal("Load missed after Save")
		}
		if got.Port != want.Port || got.Baud != want.Baud || got.Firmware != want.Firmware || got.Model != want.Model {
			t.Errorf("Load = %+v, want %+v", got, want)
		}
		if got.Updated.IsZero() {
			t.Error("Updated not stamped")
		}
	})

	t.Run("invalidate", func(t *testing.T) {
		c := newPortCache(filepath.Join(dir, "inv.yaml"))
		if err := c.Save(cacheEntry{Port: "COM3", Baud: 19200}); err != nil {
			t.Fatal(err)
		}
		if err := c.Invalidate(); err != nil {
			t.Fatalf("Invalidate failed: %v", err)
		}
		if _, ok := c.Load(); ok {
			t.Error("Load hit after Invalidate")
		}
		if err := c.Invalidate(); err != nil {
			t.Errorf("second Invalidate = %v, want nil", err)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		path := filepath.Join(dir, "garbage.yaml")
		writeFile(t, path, "::: not yaml [")
		if _, ok := newPortCache(path).Load(); ok {
			t.Error("garbage file should be a miss")
		}

		writeFile(t, path, "port: /dev/ttyUSB0\n")
		if _, ok := newPortCache(path).Load(); ok {
			t.Error("entry without baud should be a miss")
		}
	})
}
