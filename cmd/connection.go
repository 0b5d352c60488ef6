// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/Thermoquad/lumidox/pkg/config"
	"github.com/Thermoquad/lumidox/pkg/connection"
	"github.com/Thermoquad/lumidox/pkg/device"
	"github.com/Thermoquad/lumidox/pkg/lumidox"
	"github.com/Thermoquad/lumidox/pkg/transport"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// simDevice backs --simulate. It lives for the whole process so that
// consecutive commands in one run see the same device state.
var simDevice *lumidox.Simulator

func simulator() *lumidox.Simulator {
	if simDevice == nil {
		simDevice = lumidox.NewSimulator()
	}
	return simDevice
}

// GetPassword retrieves the bridge password from config/environment or
// prompts the user
func GetPassword() (string, error) {
	if cfg.Bridge.Password != "" {
		return cfg.Bridge.Password, nil
	}

	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", usageError{fmt.Errorf("bridge password required: set LUMIDOX_BRIDGE_PASSWORD")}
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// OpenTransport opens the simulator, bridge or serial link selected by the
// configuration, wrapped in a transcript recorder when one is configured
func OpenTransport(ctx context.Context) (transport.Transport, string, error) {
	var (
		t    transport.Transport
		info string
		err  error
	)

	switch {
	case simulate:
		t, info = transport.NewLoopback("simulator", simulator()), "Simulator"

	case cfg.Bridge.URL != "":
		bc := cfg.BridgeTransport()
		if bc.Username != "" {
			if bc.Password, err = GetPassword(); err != nil {
				return nil, "", err
			}
		}
		var ws *transport.WebSocketTransport
		if ws, err = transport.DialBridge(ctx, bc); err != nil {
			return nil, "", err
		}
		t, info = ws, fmt.Sprintf("WebSocket: %s", bc.URL)

	default:
		m := connection.NewManager(logger, connection.Config{
			Timeout:      cfg.Serial.Timeout,
			ProbeTimeout: cfg.Serial.ProbeTimeout,
		})
		var cache *portCache
		if cfg.Cache.Enabled {
			cache = newPortCache(cfg.Cache.File)
		}
		if t, info, err = connectSerial(ctx, m, cfg.Serial, cache); err != nil {
			return nil, "", err
		}
	}

	if cfg.Transcript.File != "" {
		f, err := os.Create(cfg.Transcript.File)
		if err != nil {
			t.Close()
			return nil, "", fmt.Errorf("failed to create transcript: %w", err)
		}
		rec, err := transport.NewRecorder(t, f)
		if err != nil {
			f.Close()
			t.Close()
			return nil, "", err
		}
		t = rec
	}

	return t, info, nil
}

// connectSerial opens the configured port, or the cached port when it still
// answers, or the best auto-detected port. A configured port without a
// configured baud is probed at each baud candidate.
func connectSerial(ctx context.Context, m *connection.Manager, sc config.SerialConfig, cache *portCache) (transport.Transport, string, error) {
	if sc.Port != "" && sc.AutoBaud {
		t, best, err := m.AutoConnect(ctx, sc.Port, sc.BaudCandidates)
		if err != nil {
			return nil, "", err
		}
		return t, fmt.Sprintf("Serial: %s @ %d baud", best.Port, best.Baud), nil
	}
	if sc.Port != "" {
		t, err := m.Connect(sc.Port, sc.Baud)
		if err != nil {
			return nil, "", err
		}
		return t, fmt.Sprintf("Serial: %s @ %d baud", sc.Port, sc.Baud), nil
	}

	if cache != nil {
		if e, ok := cache.Load(); ok {
			if c := m.Probe(e.Port, e.Baud); c.Score >= connection.ScoreFirmware {
				t, err := m.Connect(e.Port, e.Baud)
				if err == nil {
					logger.Debug("Using cached port", zap.String("port", e.Port), zap.Int("baud", e.Baud))
					return t, fmt.Sprintf("Serial: %s @ %d baud (cached)", e.Port, e.Baud), nil
				}
			}
			logger.Info("Cached port did not answer, searching", zap.String("port", e.Port))
			if err := cache.Invalidate(); err != nil {
				logger.Warn("Failed to invalidate port cache", zap.Error(err))
			}
		}
	}

	t, best, err := m.AutoConnect(ctx, "", sc.BaudCandidates)
	if err != nil {
		return nil, "", err
	}
	if cache != nil {
		if err := cache.Save(cacheEntry{Port: best.Port, Baud: best.Baud, Firmware: best.Firmware, Model: best.Model}); err != nil {
			logger.Warn("Failed to update port cache", zap.Error(err))
		}
	}
	return t, fmt.Sprintf("Serial: %s @ %d baud", best.Port, best.Baud), nil
}

// OpenController opens the configured link and initializes a controller
// on it. The caller owns the controller.
func OpenController(ctx context.Context) (*device.Controller, string, error) {
	t, info, err := OpenTransport(ctx)
	if err != nil {
		return nil, "", err
	}

	c := device.NewController(logger, t, cfg.Controller())
	if _, err := c.Initialize(); err != nil {
		c.Close()
		return nil, "", err
	}
	return c, info, nil
}
