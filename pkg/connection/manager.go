// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package connection finds a working (port, baud) link to a device.
//
// Each candidate pair is probed on its own short-lived transport by asking
// for the firmware version. Candidates are scored by how well the device
// answered and the best one above a threshold is opened for use.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Thermoquad/lumidox/pkg/lumidox"
	"github.com/Thermoquad/lumidox/pkg/transport"
	"go.uber.org/zap"
)

// ErrNoCandidate means no probed pair scored above the minimum
var ErrNoCandidate = errors.New("no responding device found")

// Probe scores
const (
	ScoreSilent   = 0   // no reply within the probe timeout
	ScoreGarbled  = 10  // bytes arrived but did not decode
	ScoreFirmware = 100 // well-formed firmware version
)

// Dialer opens a transport to port at baud with a per-request timeout
type Dialer func(port string, baud int, timeout time.Duration) (transport.Transport, error)

// SerialDialer returns a Dialer opening serial ports through opener
func SerialDialer(opener transport.Opener) Dialer {
	return func(port string, baud int, timeout time.Duration) (transport.Transport, error) {
		t, err := transport.OpenWith(opener, transport.Config{Port: port, BaudRate: baud, Timeout: timeout})
		if err != nil {
			return nil, err
		}
		return t, nil
	}
}

// Candidate is a scored (port, baud) pair
type Candidate struct {
	Port     string
	Baud     int
	Score    int
	Firmware string
	Model    string
	Err      error
}

func (c Candidate) String() string {
	s := fmt.Sprintf("%s @ %d baud: score %d", c.Port, c.Baud, c.Score)
	if c.Firmware != "" {
		s += ", firmware " + c.Firmware
	}
	if c.Model != "" {
		s += ", model " + c.Model
	}
	if c.Err != nil {
		s += fmt.Sprintf(" (%v)", c.Err)
	}
	return s
}

// Config holds manager settings. Zero values take defaults.
type Config struct {
	Lister       PortLister
	Dialer       Dialer
	Timeout      time.Duration // operational timeout of the returned transport
	ProbeTimeout time.Duration
	// MinScore is exclusive: a candidate must score above it
	MinScore int
}

// Manager enumerates, probes and selects device links
type Manager struct {
	logger       *zap.Logger
	lister       PortLister
	dial         Dialer
	timeout      time.Duration
	probeTimeout time.Duration
	minScore     int
}

// NewManager creates a manager. A nil logger disables logging.
func NewManager(logger *zap.Logger, cfg Config) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		logger:       logger,
		lister:       cfg.Lister,
		dial:         cfg.Dialer,
		timeout:      cfg.Timeout,
		probeTimeout: cfg.ProbeTimeout,
		minScore:     cfg.MinScore,
	}
	if m.lister == nil {
		m.lister = SystemPorts{}
	}
	if m.dial == nil {
		m.dial = SerialDialer(transport.OpenSerialPort)
	}
	if m.timeout <= 0 {
		m.timeout = lumidox.DefaultTimeout
	}
	if m.probeTimeout <= 0 {
		m.probeTimeout = lumidox.DefaultProbeTimeout
	}
	if m.probeTimeout >= m.timeout {
		m.probeTimeout = m.timeout / 2
	}
	if m.minScore <= 0 {
		m.minScore = ScoreGarbled
	}
	return m
}

// EnumeratePorts returns available ports in probe order. No ports is not
// an error.
func (m *Manager) EnumeratePorts() ([]PortInfo, error) {
	ports, err := m.lister.ListPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return OrderPorts(ports), nil
}

// Probe opens port at baud with the probe timeout and asks for the
// firmware version. A decoded version also reads the model string.
func (m *Manager) Probe(port string, baud int) Candidate {
	c := Candidate{Port: port, Baud: baud}

	t, err := m.dial(port, baud, m.probeTimeout)
	if err != nil {
		c.Err = err
		return c
	}
	defer t.Close()

	raw, err := t.Request(lumidox.Encode(lumidox.NewFirmwareVersionRequest()))
	if err != nil {
		c.Err = err
		return c
	}

	r, err := lumidox.ParseResponse(raw)
	if err != nil {
		c.Score = ScoreGarbled
		c.Err = err
		return c
	}
	if !r.ChecksumValid() || r.Value() < 0 {
		c.Score = ScoreGarbled
		c.Err = fmt.Errorf("implausible firmware reply %q", raw)
		return c
	}

	c.Score = ScoreFirmware
	c.Firmware = lumidox.FirmwareString(int(r.Value()))
	c.Model = readModel(t)
	return c
}

// readModel reads the model string, returning "" on any failure
func readModel(t transport.Transport) string {
	var b strings.Builder
	for i := 0; i < lumidox.ModelLength; i++ {
		cmd, err := lumidox.NewModelCharRequest(i)
		if err != nil {
			return ""
		}
		raw, err := t.Request(lumidox.Encode(cmd))
		if err != nil {
			return ""
		}
		r, err := lumidox.ParseResponse(raw)
		if err != nil || !r.ChecksumValid() {
			return ""
		}
		v := r.Value()
		if v == 0 {
			continue
		}
		if v < 0x20 || v > 0x7E {
			return ""
		}
		b.WriteByte(byte(v))
	}
	return strings.TrimSpace(b.String())
}

// ProbeAll probes every port across bauds. Ports are probed in parallel,
// each on its own transports; bauds on one port are probed in order.
// Results are returned in selection order.
func (m *Manager) ProbeAll(ctx context.Context, ports []string, bauds []int) ([]Candidate, error) {
	if len(bauds) == 0 {
		bauds = lumidox.DefaultBaudCandidates
	}

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		found []Candidate
	)
	for _, port := range ports {
		wg.Add(1)
		go func(port string) {
			defer wg.Done()
			for _, baud := range bauds {
				if ctx.Err() != nil {
					return
				}
				c := m.Probe(port, baud)
				m.logger.Debug("Probed candidate",
					zap.String("port", c.Port),
					zap.Int("baud", c.Baud),
					zap.Int("score", c.Score),
					zap.String("firmware", c.Firmware),
					zap.String("model", c.Model),
					zap.Error(c.Err))
				mu.Lock()
				found = append(found, c)
				mu.Unlock()
			}
		}(port)
	}
	wg.Wait()

	SortCandidates(found)
	return found, ctx.Err()
}

// SortCandidates orders candidates best first: higher score, then a
// non-empty model, then lower baud, then port name.
func SortCandidates(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if (a.Model != "") != (b.Model != "") {
			return a.Model != ""
		}
		if a.Baud != b.Baud {
			return a.Baud < b.Baud
		}
		return a.Port < b.Port
	})
}

// AutoConnect finds and opens the best link. With preferred set only that
// port is probed; otherwise every enumerated port. The returned transport
// uses the operational timeout and is owned by the caller.
func (m *Manager) AutoConnect(ctx context.Context, preferred string, bauds []int) (transport.Transport, Candidate, error) {
	var ports []string
	if preferred != "" {
		ports = []string{preferred}
	} else {
		infos, err := m.EnumeratePorts()
		if err != nil {
			return nil, Candidate{}, err
		}
		for _, p := range infos {
			ports = append(ports, p.Name)
		}
	}

	m.logger.Info("Searching for device",
		zap.Strings("ports", ports),
		zap.Ints("bauds", bauds))

	candidates, err := m.ProbeAll(ctx, ports, bauds)
	if err != nil {
		return nil, Candidate{}, err
	}
	if len(candidates) == 0 || candidates[0].Score <= m.minScore {
		return nil, Candidate{}, fmt.Errorf("%w (probed %d candidates on %d ports)", ErrNoCandidate, len(candidates), len(ports))
	}

	best := candidates[0]
	t, err := m.dial(best.Port, best.Baud, m.timeout)
	if err != nil {
		return nil, best, fmt.Errorf("failed to open selected candidate %s: %w", best.Port, err)
	}

	m.logger.Info("Device found",
		zap.String("port", best.Port),
		zap.Int("baud", best.Baud),
		zap.String("firmware", best.Firmware),
		zap.String("model", best.Model))

	return t, best, nil
}

// Connect opens port at baud with the operational timeout, without probing
func (m *Manager) Connect(port string, baud int) (transport.Transport, error) {
	if baud == 0 {
		baud = lumidox.DefaultBaudRate
	}
	return m.dial(port, baud, m.timeout)
}
