// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package device implements the Lumidox II controller state machine.
//
// A Controller exclusively owns one transport and tracks the device mode
// (Local, Standby, Armed, Remote). Every operation checks its mode and
// input preconditions before anything is sent, then performs its exchanges
// strictly in sequence. The mode only changes after the device confirms a
// step. Controller methods block for the duration of their exchanges;
// callers that need responsiveness run them on a worker goroutine.
package device

import (
	"errors"
	"sync"
	"time"

	"github.com/Thermoquad/lumidox/pkg/lumidox"
	"github.com/Thermoquad/lumidox/pkg/transport"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Default delays between mode changes
const (
	DefaultSettleDelay = 100 * time.Millisecond
	DefaultOffDelay    = 1000 * time.Millisecond
)

// Config holds controller settings supplied by the caller
type Config struct {
	// OptimizeTransitions fires directly from Armed/Remote instead of
	// cycling Standby and Armed before every fire.
	OptimizeTransitions bool
	// MaxCurrentMA caps fire and arm currents. Zero reads the stage 5
	// FIRE current from the device.
	MaxCurrentMA int
	SettleDelay  time.Duration
	OffDelay     time.Duration
	// Sleep waits between steps; nil uses time.Sleep
	Sleep func(time.Duration)
}

// Operations is the set of device control operations front ends call
type Operations interface {
	Initialize() (Mode, error)
	Mode() Mode
	ReadMode() (Mode, error)
	Arm() error
	FireStage(stage int) (FireResult, error)
	FireWithCurrent(currentMA int) (FireResult, error)
	SetArmCurrent(currentMA int) error
	TurnOff() error
	Shutdown() error
	StageParameters(stage int) (StageParameters, error)
	StageArmCurrent(stage int) (int, error)
	StageFireCurrent(stage int) (int, error)
	PowerInfo(stage int) (PowerInfo, error)
	MaxCurrent() (int, error)
	ReadArmCurrent() (int, error)
	ReadFireCurrent() (int, error)
	DeviceInfo() (Info, error)
	Close() error
}

var _ Operations = (*Controller)(nil)

// Controller is the device state machine over one transport
type Controller struct {
	logger *zap.Logger
	t      transport.Transport
	cfg    Config

	// op serializes operations: one exchange in flight at a time
	op sync.Mutex

	mu      sync.RWMutex
	mode    Mode
	ended   bool
	session uuid.UUID
	stats   *lumidox.Statistics
}

// NewController takes ownership of t. The controller starts in Local
// until Initialize reads the actual mode. A nil logger disables logging.
func NewController(logger *zap.Logger, t transport.Transport, cfg Config) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.OffDelay <= 0 {
		cfg.OffDelay = DefaultOffDelay
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}
	session := uuid.New()
	return &Controller{
		logger:  logger.With(zap.String("session", session.String()), zap.String("link", t.Name())),
		t:       t,
		cfg:     cfg,
		mode:    ModeLocal,
		session: session,
		stats:   lumidox.NewStatistics(),
	}
}

// Session returns the id attached to this controller's log lines
func (c *Controller) Session() uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// Mode returns the last confirmed device mode
func (c *Controller) Mode() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// Ended reports whether Shutdown ended the session
func (c *Controller) Ended() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ended
}

// OptimizeTransitions reports the configured stage transition policy
func (c *Controller) OptimizeTransitions() bool {
	return c.cfg.OptimizeTransitions
}

// Statistics returns a snapshot of exchange statistics
func (c *Controller) Statistics() lumidox.Statistics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return *c.stats
}

// Initialize reads the device mode and starts a session. An unreadable or
// unknown mode starts in Local; a transport failure is returned.
func (c *Controller) Initialize() (Mode, error) {
	c.op.Lock()
	defer c.op.Unlock()

	r, err := c.exchange(lumidox.NewReadRemoteMode())
	if err != nil && !errors.Is(err, lumidox.ErrMalformed) {
		return c.Mode(), &Error{Op: "initialize", Mode: c.Mode(), Err: err}
	}

	mode := ModeLocal
	if err == nil {
		if m, ok := ModeFromValue(int(r.Value())); ok {
			mode = m
		} else {
			c.logger.Warn("Unknown mode value, assuming Local", zap.Int16("value", r.Value()))
		}
	} else {
		c.logger.Warn("Unreadable mode, assuming Local", zap.Error(err))
	}

	c.mu.Lock()
	if c.ended {
		c.session = uuid.New()
		c.logger = c.logger.With(zap.String("session", c.session.String()))
	}
	c.ended = false
	c.mu.Unlock()

	c.setMode(mode, "initialize")
	return mode, nil
}

// ReadMode reads the mode register. Unknown values read as Local.
func (c *Controller) ReadMode() (Mode, error) {
	c.op.Lock()
	defer c.op.Unlock()

	r, err := c.exchange(lumidox.NewReadRemoteMode())
	if err != nil {
		return c.Mode(), &Error{Op: "read mode", Mode: c.Mode(), Err: err}
	}
	mode, _ := ModeFromValue(int(r.Value()))
	c.setMode(mode, "read mode")
	return mode, nil
}

// Close releases the transport
func (c *Controller) Close() error {
	c.op.Lock()
	defer c.op.Unlock()
	return c.t.Close()
}

func (c *Controller) log() *zap.Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

func (c *Controller) setMode(m Mode, reason string) {
	c.mu.Lock()
	from := c.mode
	c.mode = m
	logger := c.logger
	c.mu.Unlock()

	if from != m {
		logger.Info("Mode changed",
			zap.String("from", from.String()),
			zap.String("to", m.String()),
			zap.String("reason", reason))
	}
}

// exchange sends one command and decodes the reply. A reply whose
// checksum does not match is rejected as malformed.
func (c *Controller) exchange(cmd *lumidox.Command) (*lumidox.Response, error) {
	start := time.Now()
	raw, err := c.t.Request(lumidox.Encode(cmd))
	rtt := time.Since(start)

	if err != nil {
		c.record(rtt, err, errors.Is(err, transport.ErrTimeout), nil)
		c.logger.Debug("Exchange failed",
			zap.String("command", lumidox.FormatCode(cmd.Code())),
			zap.Error(err))
		return nil, err
	}

	r, err := lumidox.ParseResponse(raw)
	if err != nil {
		c.record(rtt, err, false, nil)
		c.logger.Debug("Malformed reply",
			zap.String("command", lumidox.FormatCode(cmd.Code())),
			zap.String("raw", lumidox.FormatFrame(raw)))
		return nil, err
	}

	anomalies := lumidox.ValidateResponse(cmd, r)
	c.record(rtt, nil, false, anomalies)
	for _, a := range anomalies {
		c.logger.Warn("Response anomaly",
			zap.String("command", lumidox.FormatCode(cmd.Code())),
			zap.String("type", a.Type.String()),
			zap.String("message", a.Message))
	}
	if !r.ChecksumValid() {
		return nil, &lumidox.ProtocolError{Raw: r.Raw(), Reason: "checksum mismatch"}
	}

	c.logger.Debug("Exchange",
		zap.String("command", lumidox.FormatCode(cmd.Code())),
		zap.Uint16("value", cmd.Value()),
		zap.Int16("reply", r.Value()),
		zap.Duration("rtt", rtt))
	return r, nil
}

func (c *Controller) record(rtt time.Duration, err error, timeout bool, anomalies []lumidox.ValidationError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Update(rtt, err, timeout, anomalies)
}
