// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/lumidox/pkg/device"
	"github.com/Thermoquad/lumidox/pkg/lumidox"
	"github.com/Thermoquad/lumidox/pkg/transport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for controlling the device",
	Long: `Control a Lumidox II via an interactive terminal UI.

Features:
  - Stage list with FIRE currents and reported output
  - Fire a stage or a custom current
  - Arm, set the ARM current, turn off and shut down
  - Statistics tracking
  - Event logging
  - Automatic reconnection on connection loss

Tab switches between the stage list, the current input and the buttons.
Enter on a stage fires it; Enter in the current input fires that current.
Output is turned off when the UI exits.

Supports serial, WebSocket bridge and simulator connections.`,
	Args: exactArgs(0),
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
}

// controlOp is one operation queued for the worker
type controlOp struct {
	name string
	run  func(c *device.Controller) (string, error)
}

// controlSession owns the controller. All device work happens on its
// worker goroutine so the UI never blocks on an exchange.
type controlSession struct {
	mu       sync.RWMutex
	c        *device.Controller
	connInfo string

	p   *tea.Program
	ops chan controlOp
}

func (s *controlSession) controller() *device.Controller {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.c
}

func (s *controlSession) setController(c *device.Controller, connInfo string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c = c
	s.connInfo = connInfo
}

// submit queues op without blocking. It reports false while another
// operation is in flight.
func (s *controlSession) submit(op controlOp) bool {
	select {
	case s.ops <- op:
		return true
	default:
		return false
	}
}

func runControl(cmd *cobra.Command, args []string) error {
	if !isInteractive() {
		return usageError{fmt.Errorf("control needs an interactive terminal")}
	}

	c, connInfo, err := OpenController(cmd.Context())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	s := &controlSession{c: c, connInfo: connInfo, ops: make(chan controlOp, 1)}
	m := initialControlModel(s, connInfo, c.OptimizeTransitions())
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	s.p = p

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.worker(ctx)
	}()

	_, runErr := p.Run()
	cancel()
	wg.Wait()

	c = s.controller()
	if c.Mode().CanFire() {
		if err := c.TurnOff(); err != nil {
			logger.Warn("Failed to turn off output on exit", zap.Error(err))
		}
	}
	c.Close()

	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", runErr)
	}
	return nil
}

// worker runs queued operations and reconnects when the link is lost
func (s *controlSession) worker(ctx context.Context) {
	s.loadStages()
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-s.ops:
			c := s.controller()
			message, err := op.run(c)
			if err != nil && !errors.Is(err, transport.ErrUnavailable) {
				// The device may have confirmed some steps before failing
				if _, rerr := c.ReadMode(); rerr != nil {
					logger.Debug("Mode refresh failed", zap.Error(rerr))
				}
			}
			s.p.Send(opResultMsg{
				name:    op.name,
				message: message,
				err:     err,
				mode:    c.Mode(),
				stats:   c.Statistics(),
			})

			if errors.Is(err, transport.ErrUnavailable) {
				s.p.Send(connectionLostMsg{})
				if !s.reconnect(ctx) {
					return
				}
				s.loadStages()
			}
		}
	}
}

// loadStages reads device information and every stage block
func (s *controlSession) loadStages() {
	c := s.controller()
	msg := stagesLoadedMsg{mode: c.Mode()}

	msg.info, msg.err = c.DeviceInfo()
	if msg.err == nil {
		for n := 1; n <= lumidox.StageCount; n++ {
			p, err := c.StageParameters(n)
			if err != nil {
				msg.err = err
				break
			}
			msg.stages = append(msg.stages, p)
		}
	}
	msg.stats = c.Statistics()
	s.p.Send(msg)
}

// reconnect attempts to reconnect with exponential backoff.
// Returns false if shutdown was requested during reconnection.
func (s *controlSession) reconnect(ctx context.Context) bool {
	s.controller().Close()

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}

		c, connInfo, err := OpenController(ctx)
		if err == nil {
			s.setController(c, connInfo)
			s.p.Send(reconnectedMsg{connInfo: connInfo, mode: c.Mode()})
			return true
		}
		logger.Debug("Reconnect failed", zap.Error(err), zap.Duration("backoff", backoff))

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// Operations offered by the UI

func armOp() controlOp {
	return controlOp{name: "arm", run: func(c *device.Controller) (string, error) {
		if err := c.Arm(); err != nil {
			return "", err
		}
		return "Armed", nil
	}}
}

// armIfNeeded arms a device that cannot fire yet
func armIfNeeded(c *device.Controller) error {
	if c.Mode().CanFire() {
		return nil
	}
	return c.Arm()
}

func fireStageOp(stage int) controlOp {
	return controlOp{name: "fire", run: func(c *device.Controller) (string, error) {
		if err := armIfNeeded(c); err != nil {
			return "", err
		}
		res, err := c.FireStage(stage)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Firing stage %d at %d mA (%.1f %s)", res.Stage, res.CurrentMA, res.TotalPower, res.TotalUnits), nil
	}}
}

func fireCurrentOp(currentMA int) controlOp {
	return controlOp{name: "fire current", run: func(c *device.Controller) (string, error) {
		if err := armIfNeeded(c); err != nil {
			return "", err
		}
		res, err := c.FireWithCurrent(currentMA)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Firing at %d mA", res.CurrentMA), nil
	}}
}

func setArmCurrentOp(currentMA int) controlOp {
	return controlOp{name: "set arm current", run: func(c *device.Controller) (string, error) {
		if err := c.SetArmCurrent(currentMA); err != nil {
			return "", err
		}
		return fmt.Sprintf("ARM current set to %d mA", currentMA), nil
	}}
}

func offOp() controlOp {
	return controlOp{name: "off", run: func(c *device.Controller) (string, error) {
		if err := c.TurnOff(); err != nil {
			return "", err
		}
		return "Output off", nil
	}}
}

func shutdownOp() controlOp {
	return controlOp{name: "shutdown", run: func(c *device.Controller) (string, error) {
		if err := c.Shutdown(); err != nil {
			return "", err
		}
		return "Shut down, device returned to local control", nil
	}}
}

func initializeOp() controlOp {
	return controlOp{name: "initialize", run: func(c *device.Controller) (string, error) {
		mode, err := c.Initialize()
		if err != nil {
			return "", err
		}
		return "Session started in mode " + mode.String(), nil
	}}
}
